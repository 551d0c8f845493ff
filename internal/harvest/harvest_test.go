package harvest_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/jacorycyjin/smart-library-crawler/internal/harvest"
)

// seqIDs mints deterministic 32-char identifiers.
type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%032d", g.n), nil
}

type stubBookSource struct {
	candidates    []harvest.BookCandidate
	candidatesErr error
	details       map[string]harvest.BookDetail
	detailErr     map[string]error
}

func (s *stubBookSource) Candidates(_ context.Context, _ string, count int) ([]harvest.BookCandidate, error) {
	if s.candidatesErr != nil {
		return nil, s.candidatesErr
	}
	if len(s.candidates) > count {
		return s.candidates[:count], nil
	}
	return s.candidates, nil
}

func (s *stubBookSource) BookDetail(_ context.Context, isbn string) (harvest.BookDetail, error) {
	if err, ok := s.detailErr[isbn]; ok {
		return harvest.BookDetail{}, err
	}
	d, ok := s.details[isbn]
	if !ok {
		return harvest.BookDetail{}, fmt.Errorf("isbn %s: %w", isbn, harvest.ErrNotFound)
	}
	return d, nil
}

type stubAuthorSource struct {
	searchURL      string
	searchErr      error
	detail         harvest.AuthorDetail
	detailErr      error
	detailErrCalls int // when > 0, detailErr clears after this many Detail calls
}

func (s *stubAuthorSource) Search(_ context.Context, _ string) (string, error) {
	if s.searchErr != nil {
		return "", s.searchErr
	}
	return s.searchURL, nil
}

func (s *stubAuthorSource) Detail(_ context.Context, _ string) (harvest.AuthorDetail, error) {
	if s.detailErr != nil {
		err := s.detailErr
		if s.detailErrCalls > 0 {
			s.detailErrCalls--
			if s.detailErrCalls == 0 {
				s.detailErr = nil
			}
		}
		return harvest.AuthorDetail{}, err
	}
	return s.detail, nil
}

type stubEbookSource struct {
	result      harvest.EbookSearchResult
	searchErr   error
	files       map[string][]byte
	downloadErr map[string]error
}

func (s *stubEbookSource) Search(_ context.Context, _ string) (harvest.EbookSearchResult, error) {
	if s.searchErr != nil {
		return harvest.EbookSearchResult{}, s.searchErr
	}
	return s.result, nil
}

func (s *stubEbookSource) Download(_ context.Context, url string) ([]byte, error) {
	if err, ok := s.downloadErr[url]; ok {
		return nil, err
	}
	data, ok := s.files[url]
	if !ok {
		return nil, fmt.Errorf("no file at %s", url)
	}
	return data, nil
}

// stubImages serves fixed bytes for every URL unless the URL is listed as
// failing.
type stubImages struct {
	contentType string
	failing     map[string]bool
}

func (s *stubImages) Download(_ context.Context, url string) ([]byte, string, error) {
	if s.failing[url] {
		return nil, "", fmt.Errorf("download %s: connection reset", url)
	}
	ct := s.contentType
	if ct == "" {
		ct = "image/jpeg"
	}
	return []byte("imgdata"), ct, nil
}

func testBuckets() harvest.Buckets {
	return harvest.Buckets{
		Covers:      "library-covers",
		Attachments: "library-attachments",
		Avatars:     "library-avatars",
	}
}
