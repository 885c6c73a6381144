package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/williampepple1/site-scraper/internal/config"
	"github.com/williampepple1/site-scraper/internal/log"
)

func testConfig() *config.AppConfig {
	cfg := config.CreateDefault()
	cfg.Scraper.Timeout = 2 * time.Second
	return cfg
}

func newTestFetcher(t *testing.T, cfg *config.AppConfig) *HTTPFetcher {
	t.Helper()
	f, err := NewHTTPFetcher(cfg, log.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

// closedURL returns the URL of a server that is no longer listening.
func closedURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}

func TestHTTPFetcherFetch(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html><head><title>ok</title></head></html>")
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/missing", http.NotFound)
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		res, err := newTestFetcher(t, testConfig()).Fetch(context.Background(), srv.URL+"/page", Options{})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Contains(t, res.RawHTML, "<title>ok</title>")
		assert.Equal(t, srv.URL+"/page", res.FinalURL)
		assert.False(t, res.FetchedAt.IsZero())
	})

	t.Run("redirect reports final url", func(t *testing.T) {
		t.Parallel()

		res, err := newTestFetcher(t, testConfig()).Fetch(context.Background(), srv.URL+"/old", Options{})
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/page", res.FinalURL)
	})

	t.Run("non 2xx is an http status error", func(t *testing.T) {
		t.Parallel()

		_, err := newTestFetcher(t, testConfig()).Fetch(context.Background(), srv.URL+"/missing", Options{})
		var fe *FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, KindHTTPStatus, fe.Kind)
		assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.Scraper.Timeout = 100 * time.Millisecond
		_, err := newTestFetcher(t, cfg).Fetch(context.Background(), srv.URL+"/slow", Options{})
		assert.True(t, IsKind(err, KindTimeout), "got %v", err)
	})

	t.Run("unreachable host", func(t *testing.T) {
		t.Parallel()

		_, err := newTestFetcher(t, testConfig()).Fetch(context.Background(), closedURL(t), Options{})
		assert.True(t, IsKind(err, KindConnectionFailed), "got %v", err)
	})

	t.Run("cancelled context is passed through", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newTestFetcher(t, testConfig()).Fetch(ctx, srv.URL+"/page", Options{})
		assert.ErrorIs(t, err, context.Canceled)
		var fe *FetchError
		assert.False(t, errors.As(err, &fe))
	})
}

func TestHTTPFetcherValidation(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(t, testConfig())
	for _, raw := range []string{"", "   ", "example.com/page", "ftp://example.com/file", "http://", "::bad"} {
		_, err := f.Fetch(context.Background(), raw, Options{})
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve, "url %q", raw)
	}
}

func TestHTTPFetcherDecoding(t *testing.T) {
	t.Parallel()

	const page = "<html><body><p>decoded</p></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		switch r.URL.Path {
		case "/gzip":
			gz := gzip.NewWriter(&buf)
			_, _ = io.WriteString(gz, page)
			_ = gz.Close()
			w.Header().Set("Content-Encoding", "gzip")
		case "/br":
			br := brotli.NewWriter(&buf)
			_, _ = io.WriteString(br, page)
			_ = br.Close()
			w.Header().Set("Content-Encoding", "br")
		default:
			buf.WriteString(page)
		}
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)

	f := newTestFetcher(t, testConfig())
	for _, path := range []string{"/gzip", "/br", "/plain"} {
		res, err := f.Fetch(context.Background(), srv.URL+path, Options{})
		require.NoError(t, err, path)
		assert.Equal(t, page, res.RawHTML, path)
	}
}

func TestHTTPFetcherBodyLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 2048))
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.Scraper.MaxBodySize = 1024
	_, err := newTestFetcher(t, cfg).Fetch(context.Background(), srv.URL, Options{})
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestHTTPFetcherUserAgent(t *testing.T) {
	t.Parallel()

	seen := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.UserAgent()
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.Scraper.UserAgents = []string{"test-agent/1.0"}
	_, err := newTestFetcher(t, cfg).Fetch(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, "test-agent/1.0", <-seen)
}

func TestHTTPFetcherCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	f, err := NewHTTPFetcher(testConfig(), log.Discard())
	require.NoError(t, err)
	assert.NoError(t, f.Close())
	assert.NoError(t, f.Close())
}

func TestNewSelectsBackend(t *testing.T) {
	t.Parallel()

	f, err := New(testConfig(), log.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	assert.False(t, Rendered(f))
	assert.Same(t, f, Static(f))
}

func TestStaticBackendOfBrowser(t *testing.T) {
	t.Parallel()

	h, err := NewHTTPFetcher(testConfig(), log.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	b := &BrowserFetcher{static: h}
	assert.True(t, Rendered(b))
	assert.Same(t, h, b.Static())
	assert.Same(t, h, Static(b))
	assert.Nil(t, Static(nil))
}
