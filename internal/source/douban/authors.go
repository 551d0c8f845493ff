package douban

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/jacorycyjin/smart-library-crawler/internal/harvest"
)

// AuthorSource resolves author pages through the site search and extracts
// biographical detail.
type AuthorSource struct {
	fetch Fetcher
	cfg   Config
	log   *zap.Logger
}

// NewAuthorSource builds an AuthorSource.
func NewAuthorSource(fetch Fetcher, cfg Config, log *zap.Logger) *AuthorSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthorSource{fetch: fetch, cfg: cfg, log: log}
}

// Search returns the detail URL for an author name. Result links pass
// through a redirect wrapper; the real URL is unwrapped from its query.
// Book-author pages are preferred over film-person pages.
func (s *AuthorSource) Search(ctx context.Context, name string) (string, error) {
	searchURL := s.cfg.SearchURL + "?q=" + url.QueryEscape(name)
	page, err := s.fetch.Fetch(ctx, searchURL)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return "", fmt.Errorf("parse search page: %w", harvest.ErrUnparsable)
	}

	var matches []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !strings.HasPrefix(href, "http") {
			return
		}
		decoded, err := url.QueryUnescape(href)
		if err != nil {
			decoded = href
		}
		if !isAuthorLink(decoded) {
			return
		}
		if strings.Contains(href, "www.douban.com/link2/") {
			if real := unwrapRedirect(href); real != "" {
				matches = append(matches, real)
			}
			return
		}
		matches = append(matches, href)
	})

	if len(matches) == 0 {
		return "", fmt.Errorf("no author page for %q: %w", name, harvest.ErrNotFound)
	}
	for _, m := range matches {
		if strings.Contains(m, "book.douban.com/author/") {
			return m, nil
		}
	}
	return matches[0], nil
}

// Detail fetches an author page, following any redirect from the book-author
// alias to the canonical person page.
func (s *AuthorSource) Detail(ctx context.Context, rawURL string) (harvest.AuthorDetail, error) {
	if strings.HasPrefix(rawURL, "/") {
		rawURL = s.cfg.BaseURL + rawURL
	}
	page, err := s.fetch.Fetch(ctx, rawURL)
	if err != nil {
		return harvest.AuthorDetail{}, err
	}
	if !isAuthorPage(page.URL) {
		return harvest.AuthorDetail{}, fmt.Errorf("not an author page: %s: %w", page.URL, harvest.ErrUnparsable)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return harvest.AuthorDetail{}, fmt.Errorf("parse author page: %w", harvest.ErrUnparsable)
	}

	detail := harvest.AuthorDetail{
		Description: introFrom(doc),
		PhotoURL:    photoFrom(doc),
		SourceURL:   page.URL,
	}
	info := doc.Find("#content .info")
	if info.Length() == 0 {
		info = doc.Find("#content")
	}
	if info.Length() > 0 {
		infoText := info.Text()
		detail.OriginalName = extractLabeledLine(infoText, "原名")
		detail.Country = extractLabeledLine(infoText, "国籍")
	}
	return detail, nil
}

func isAuthorLink(href string) bool {
	return strings.Contains(href, "/personage/") ||
		strings.Contains(href, "/celebrity/") ||
		strings.Contains(href, "book.douban.com/author/")
}

// Alias /author/ URLs redirect to a canonical person page; a landing URL
// that is still an alias means the person page does not exist.
func isAuthorPage(finalURL string) bool {
	return strings.Contains(finalURL, "/personage/") ||
		strings.Contains(finalURL, "/celebrity/")
}

func unwrapRedirect(wrapped string) string {
	u, err := url.Parse(wrapped)
	if err != nil {
		return ""
	}
	return u.Query().Get("url")
}

// introFrom tries the selectors used across the person and book-author page
// variants, preferring the expanded text when present.
func introFrom(doc *goquery.Document) string {
	for _, selector := range []string{"#intro .bd", ".intro", "#intro", "div.bd"} {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		text := strings.TrimSpace(sel.Find(".all").First().Text())
		if text == "" {
			text = strings.TrimSpace(sel.Text())
		}
		if utf8.RuneCountInString(text) > 10 && !strings.HasPrefix(text, "展开") {
			return text
		}
	}
	return ""
}

// photoFrom returns the portrait URL, skipping the site's placeholder avatar.
func photoFrom(doc *goquery.Document) string {
	for _, selector := range []string{"#content .pic img", ".article .pic img", "#mainpic img", "div.pic img"} {
		src, ok := doc.Find(selector).First().Attr("src")
		if !ok || src == "" {
			continue
		}
		if strings.Contains(src, "icon/user_normal") || strings.Contains(src, "icon/u") {
			continue
		}
		return src
	}
	return ""
}
