// Package collyfetcher implements polite page fetching using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jacorycyjin/smart-library-crawler/internal/harvest"
)

// Config controls collector behavior.
type Config struct {
	UserAgent       string
	Timeout         time.Duration
	DownloadTimeout time.Duration
	// ChallengeHosts are hostnames serving anti-automation challenge pages;
	// a redirect landing on one classifies the fetch as blocked.
	ChallengeHosts []string
}

// Waiter paces outbound requests per domain.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Page is the outcome of a successful fetch. URL is the final URL after
// redirects, which may differ from the one requested.
type Page struct {
	URL  string
	Body []byte
}

// Fetcher fetches pages and binaries through a shared Colly collector,
// classifying anti-automation challenges and missing pages.
type Fetcher struct {
	cfg           Config
	limiter       Waiter
	baseCollector *colly.Collector
	challenge     map[string]bool
}

// New builds a Fetcher.
func New(cfg Config, limiter Waiter) *Fetcher {
	// Collectors are synchronous by default; colly v2.1.0's Async option
	// ignores its argument and always enables async, so it must not be passed.
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.WithTransport(newHTTPTransport())

	challenge := make(map[string]bool, len(cfg.ChallengeHosts))
	for _, h := range cfg.ChallengeHosts {
		challenge[h] = true
	}
	return &Fetcher{
		cfg:           cfg,
		limiter:       limiter,
		baseCollector: c,
		challenge:     challenge,
	}
}

// Fetch executes a single HTTP GET and returns the final URL plus body.
// A 403 or a redirect onto a challenge host returns harvest.ErrBlocked, a
// 404 returns harvest.ErrNotFound.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	body, _, finalURL, err := f.visit(ctx, rawURL, f.timeout())
	if err != nil {
		return Page{}, err
	}
	return Page{URL: finalURL, Body: body}, nil
}

// Download fetches binary content and reports its content type. The same
// blocked/not-found classification applies.
func (f *Fetcher) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	timeout := f.cfg.DownloadTimeout
	if timeout == 0 {
		timeout = f.timeout()
	}
	body, contentType, _, err := f.visit(ctx, rawURL, timeout)
	if err != nil {
		return nil, "", err
	}
	return body, contentType, nil
}

func (f *Fetcher) timeout() time.Duration {
	if f.cfg.Timeout > 0 {
		return f.cfg.Timeout
	}
	return 15 * time.Second
}

func (f *Fetcher) visit(ctx context.Context, rawURL string, timeout time.Duration) (body []byte, contentType, finalURL string, err error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return nil, "", "", err
		}
	}

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(timeout)

	var (
		status   int
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
		contentType = r.Headers.Get("Content-Type")
		finalURL = r.Request.URL.String()
	})
	collector.OnError(func(r *colly.Response, cbErr error) {
		if r != nil {
			status = r.StatusCode
			finalURL = r.Request.URL.String()
		}
		fetchErr = cbErr
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()
	select {
	case <-ctx.Done():
		return nil, "", "", fmt.Errorf("fetch canceled: %w", ctx.Err())
	case visitErr := <-done:
		if cerr := f.classify(status, finalURL); cerr != nil {
			return nil, "", "", cerr
		}
		if visitErr != nil {
			return nil, "", "", fmt.Errorf("fetch %s: %w", rawURL, visitErr)
		}
		if fetchErr != nil {
			return nil, "", "", fmt.Errorf("fetch %s: %w", rawURL, fetchErr)
		}
		return body, contentType, finalURL, nil
	}
}

func (f *Fetcher) classify(status int, finalURL string) error {
	if finalURL != "" {
		if u, err := url.Parse(finalURL); err == nil && f.challenge[u.Hostname()] {
			return fmt.Errorf("%s: %w", u.Hostname(), harvest.ErrBlocked)
		}
	}
	switch status {
	case http.StatusForbidden:
		return fmt.Errorf("status 403: %w", harvest.ErrBlocked)
	case http.StatusNotFound:
		return fmt.Errorf("status 404: %w", harvest.ErrNotFound)
	default:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
