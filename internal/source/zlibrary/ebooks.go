// Package zlibrary scrapes e-book download links from Z-Library mirrors.
package zlibrary

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	collyfetcher "github.com/jacorycyjin/smart-library-crawler/internal/fetcher/colly"
	"github.com/jacorycyjin/smart-library-crawler/internal/harvest"
)

// Config holds the mirror endpoints. The first base URL is used; the rest
// are kept as documented fallbacks for operators to rotate in.
type Config struct {
	BaseURLs []string
}

// Fetcher fetches pages with politeness pacing and challenge classification
// already applied.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (collyfetcher.Page, error)
	Download(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// EbookSource searches the catalog by ISBN and downloads volumes.
type EbookSource struct {
	fetch   Fetcher
	baseURL string
	log     *zap.Logger
}

// NewEbookSource builds an EbookSource.
func NewEbookSource(fetch Fetcher, cfg Config, log *zap.Logger) (*EbookSource, error) {
	if len(cfg.BaseURLs) == 0 {
		return nil, fmt.Errorf("at least one base url is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EbookSource{fetch: fetch, baseURL: strings.TrimRight(cfg.BaseURLs[0], "/"), log: log}, nil
}

// Search looks the ISBN up and extracts download links plus tags from the
// first result's detail page. No result returns harvest.ErrNotFound.
func (s *EbookSource) Search(ctx context.Context, isbn string) (harvest.EbookSearchResult, error) {
	searchURL := fmt.Sprintf("%s/s/%s", s.baseURL, isbn)
	page, err := s.fetch.Fetch(ctx, searchURL)
	if err != nil {
		return harvest.EbookSearchResult{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return harvest.EbookSearchResult{}, fmt.Errorf("parse search page: %w", harvest.ErrUnparsable)
	}

	item := doc.Find(".resItemBox").First()
	if item.Length() == 0 {
		return harvest.EbookSearchResult{}, fmt.Errorf("no result for %s: %w", isbn, harvest.ErrNotFound)
	}
	href, ok := item.Find(`a[href^="/book/"]`).First().Attr("href")
	if !ok || href == "" {
		return harvest.EbookSearchResult{}, fmt.Errorf("result without detail link: %w", harvest.ErrUnparsable)
	}
	return s.parseDetail(ctx, s.baseURL+href)
}

func (s *EbookSource) parseDetail(ctx context.Context, detailURL string) (harvest.EbookSearchResult, error) {
	page, err := s.fetch.Fetch(ctx, detailURL)
	if err != nil {
		return harvest.EbookSearchResult{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return harvest.EbookSearchResult{}, fmt.Errorf("parse detail page: %w", harvest.ErrUnparsable)
	}

	var result harvest.EbookSearchResult
	doc.Find(".bookProperty").Each(func(_ int, prop *goquery.Selection) {
		if !strings.Contains(prop.Find(".property_label").Text(), "Tags") {
			return
		}
		prop.Find(".property_value a").Each(func(_ int, link *goquery.Selection) {
			if tag := strings.TrimSpace(link.Text()); tag != "" {
				result.Tags = append(result.Tags, tag)
			}
		})
	})

	doc.Find(`a[href*="/dl/"]`).Each(func(_ int, btn *goquery.Selection) {
		href, ok := btn.Attr("href")
		if !ok {
			return
		}
		format, ok := detectFormat(btn.Text())
		if !ok {
			return
		}
		result.Downloads = append(result.Downloads, harvest.EbookDownload{
			Format: format,
			URL:    s.baseURL + href,
		})
	})
	return result, nil
}

// Download fetches one volume, rejecting responses that are not file content.
func (s *EbookSource) Download(ctx context.Context, url string) ([]byte, error) {
	data, contentType, err := s.fetch.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(contentType, "application") && !strings.Contains(contentType, "octet-stream") {
		return nil, fmt.Errorf("download returned %q instead of file content", contentType)
	}
	return data, nil
}

func detectFormat(buttonText string) (harvest.FileFormat, bool) {
	text := strings.ToUpper(buttonText)
	switch {
	case strings.Contains(text, "PDF"):
		return harvest.FormatPDF, true
	case strings.Contains(text, "EPUB"):
		return harvest.FormatEPUB, true
	case strings.Contains(text, "MOBI"):
		return harvest.FormatMOBI, true
	default:
		return 0, false
	}
}
