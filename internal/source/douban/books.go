// Package douban scrapes book and author pages from the Douban catalog.
package douban

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/jacorycyjin/smart-library-crawler/internal/catalog"
	collyfetcher "github.com/jacorycyjin/smart-library-crawler/internal/fetcher/colly"
	"github.com/jacorycyjin/smart-library-crawler/internal/harvest"
)

// Config holds the catalog endpoints.
type Config struct {
	BaseURL   string // e.g. https://book.douban.com
	SearchURL string // e.g. https://www.douban.com/search
}

// Fetcher fetches pages with politeness pacing and challenge classification
// already applied.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (collyfetcher.Page, error)
}

// BookSource discovers books under category tags and extracts detail pages.
type BookSource struct {
	fetch Fetcher
	cfg   Config
	log   *zap.Logger
}

// NewBookSource builds a BookSource.
func NewBookSource(fetch Fetcher, cfg Config, log *zap.Logger) *BookSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &BookSource{fetch: fetch, cfg: cfg, log: log}
}

// Candidates lists up to count books under the tag listing. Each listing
// entry links a detail page; the ISBN is read from there. Entries whose
// detail page is missing or unparsable are skipped.
func (s *BookSource) Candidates(ctx context.Context, tag string, count int) ([]harvest.BookCandidate, error) {
	listURL := fmt.Sprintf("%s/tag/%s?type=T", s.cfg.BaseURL, url.PathEscape(tag))
	page, err := s.fetch.Fetch(ctx, listURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse tag listing: %w", harvest.ErrUnparsable)
	}

	var bookURLs []string
	doc.Find(".subject-item .info h2 a").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok && href != "" {
			bookURLs = append(bookURLs, href)
		}
	})

	var candidates []harvest.BookCandidate
	for _, bookURL := range bookURLs {
		if len(candidates) >= count {
			break
		}
		isbn, err := s.isbnFromDetail(ctx, bookURL)
		if err != nil {
			if isSkippable(err) {
				s.log.Debug("skipping listing entry", zap.String("url", bookURL), zap.Error(err))
				continue
			}
			return nil, err
		}
		if isbn == "" {
			continue
		}
		candidates = append(candidates, harvest.BookCandidate{ISBN: isbn})
	}
	return candidates, nil
}

func (s *BookSource) isbnFromDetail(ctx context.Context, bookURL string) (string, error) {
	page, err := s.fetch.Fetch(ctx, bookURL)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return "", fmt.Errorf("parse detail page: %w", harvest.ErrUnparsable)
	}
	info := doc.Find("#info")
	if info.Length() == 0 {
		return "", fmt.Errorf("missing metadata block: %w", harvest.ErrUnparsable)
	}
	return extractField(info.Text(), "ISBN:"), nil
}

// BookDetail fetches the ISBN detail page and extracts a structured record.
func (s *BookSource) BookDetail(ctx context.Context, isbn string) (harvest.BookDetail, error) {
	detailURL := fmt.Sprintf("%s/isbn/%s/", s.cfg.BaseURL, url.PathEscape(isbn))
	page, err := s.fetch.Fetch(ctx, detailURL)
	if err != nil {
		return harvest.BookDetail{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return harvest.BookDetail{}, fmt.Errorf("parse book page: %w", harvest.ErrUnparsable)
	}

	title := strings.TrimSpace(doc.Find("#wrapper h1 span").First().Text())
	if title == "" {
		return harvest.BookDetail{}, fmt.Errorf("missing title: %w", harvest.ErrUnparsable)
	}
	info := doc.Find("#info")
	if info.Length() == 0 {
		return harvest.BookDetail{}, fmt.Errorf("missing metadata block: %w", harvest.ErrUnparsable)
	}
	infoText := info.Text()

	resource := catalog.Resource{
		Title:        title,
		Summary:      strings.TrimSpace(doc.Find("#link-report .intro").First().Text()),
		Type:         catalog.ResourceTypeBook,
		ISBN:         isbn,
		Publisher:    publisherFrom(info),
		PubDate:      normalizeDate(extractField(infoText, "出版年:")),
		PageCount:    pageCountFrom(infoText),
		Price:        priceFrom(infoText),
		SourceOrigin: catalog.OriginDouban,
		SourceURL:    detailURL,
		SourceScore:  ratingFrom(doc),
	}
	if sub := extractField(infoText, "副标题:"); sub != "" {
		resource.SubTitle = sub
	}

	authors := contributorsFrom(info, "作者")
	translators := contributorsFrom(info, "译者")
	resource.AuthorName = joinNames(authors)
	resource.TranslatorName = joinNames(translators)

	return harvest.BookDetail{
		Resource:    resource,
		CoverURL:    coverFrom(doc),
		Authors:     authors,
		Translators: translators,
	}, nil
}

func publisherFrom(info *goquery.Selection) string {
	var publisher string
	info.Find("span.pl").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !strings.Contains(sel.Text(), "出版社") {
			return true
		}
		next := sel.Next()
		if goquery.NodeName(next) == "a" {
			publisher = strings.TrimSpace(next.Text())
		}
		return false
	})
	if publisher == "" {
		publisher = extractField(info.Text(), "出版社:")
	}
	return publisher
}

// contributorsFrom collects the links on the metadata line labeled with the
// given role, cleaning each display name.
func contributorsFrom(info *goquery.Selection, label string) []harvest.Contributor {
	var out []harvest.Contributor
	info.Find("span.pl").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !strings.Contains(sel.Text(), label) {
			return true
		}
		sel.Parent().Find("a").Each(func(_ int, link *goquery.Selection) {
			name := cleanContributorName(link.Text())
			if name == "" {
				return
			}
			href, _ := link.Attr("href")
			out = append(out, harvest.Contributor{Name: name, DetailURL: href})
		})
		return false
	})
	return out
}

func joinNames(contributors []harvest.Contributor) string {
	names := make([]string, 0, len(contributors))
	for _, c := range contributors {
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}

func pageCountFrom(infoText string) int {
	raw := extractField(infoText, "页数:")
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "页", ""))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func priceFrom(infoText string) float64 {
	raw := extractField(infoText, "定价:")
	raw = strings.ReplaceAll(raw, "元", "")
	raw = strings.ReplaceAll(raw, "CNY", "")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	p, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return p
}

func ratingFrom(doc *goquery.Document) float64 {
	raw := strings.TrimSpace(doc.Find("#interest_sectl .rating_num").First().Text())
	if raw == "" {
		return 0
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return score
}

// coverFrom returns the large-size cover URL; listing pages embed the small
// variant under /s/.
func coverFrom(doc *goquery.Document) string {
	src, ok := doc.Find("#mainpic img").First().Attr("src")
	if !ok {
		return ""
	}
	return strings.Replace(src, "/s/", "/l/", 1)
}

func isSkippable(err error) bool {
	return errors.Is(err, harvest.ErrNotFound) || errors.Is(err, harvest.ErrUnparsable)
}
