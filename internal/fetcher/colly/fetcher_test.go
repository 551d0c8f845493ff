package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jacorycyjin/smart-library-crawler/internal/harvest"
)

type countingWaiter struct {
	mu    sync.Mutex
	calls int
}

func (w *countingWaiter) Wait(_ context.Context, _ string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	return nil
}

func TestFetchReturnsFinalURLAndBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer server.Close()

	waiter := &countingWaiter{}
	f := New(Config{UserAgent: "test-agent", Timeout: 5 * time.Second}, waiter)

	page, err := f.Fetch(context.Background(), server.URL+"/old")
	require.NoError(t, err)
	require.Equal(t, server.URL+"/new", page.URL)
	require.Contains(t, string(page.Body), "hello")
	require.Equal(t, 1, waiter.calls)
}

func TestFetchClassifiesForbiddenAsBlocked(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	f := New(Config{Timeout: 5 * time.Second}, nil)

	_, err := f.Fetch(context.Background(), server.URL)
	require.ErrorIs(t, err, harvest.ErrBlocked)
}

func TestFetchClassifiesChallengeHost(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("please verify you are human"))
	}))
	defer server.Close()

	f := New(Config{Timeout: 5 * time.Second, ChallengeHosts: []string{"127.0.0.1"}}, nil)

	_, err := f.Fetch(context.Background(), server.URL)
	require.ErrorIs(t, err, harvest.ErrBlocked)
}

func TestFetchClassifiesNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := New(Config{Timeout: 5 * time.Second}, nil)

	_, err := f.Fetch(context.Background(), server.URL+"/missing")
	require.ErrorIs(t, err, harvest.ErrNotFound)
}

func TestDownloadReportsContentType(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/epub+zip")
		w.Write([]byte("epub-bytes"))
	}))
	defer server.Close()

	f := New(Config{Timeout: 5 * time.Second}, nil)

	data, contentType, err := f.Download(context.Background(), server.URL+"/book.epub")
	require.NoError(t, err)
	require.Equal(t, []byte("epub-bytes"), data)
	require.Equal(t, "application/epub+zip", contentType)
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	f := New(Config{Timeout: 30 * time.Second}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, server.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
