// Package fetcher retrieves page markup through one of two backends: a
// static HTTP client or a headless Chrome driven by chromedp. The backend is
// chosen once when the Fetcher is built.
package fetcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/williampepple1/site-scraper/internal/config"
)

// Options tune a single fetch.
type Options struct {
	// SettleDelay is slept after a rendered page loads. Ignored by the
	// static backend. Zero falls back to browser.wait_time.
	SettleDelay time.Duration
}

// FetchResult is the raw outcome of one fetch.
type FetchResult struct {
	FinalURL   string
	RawHTML    string
	FetchedAt  time.Time
	StatusCode int
}

// Fetcher defines the interface for a page fetch backend
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts Options) (*FetchResult, error)
	Close() error
}

// New creates a new fetcher based on the configuration
func New(cfg *config.AppConfig, logger *slog.Logger) (Fetcher, error) {
	static, err := NewHTTPFetcher(cfg, logger)
	if err != nil {
		return nil, err
	}
	if !cfg.Browser.Enabled {
		return static, nil
	}
	rendered, err := NewBrowserFetcher(cfg, static, logger)
	if err != nil {
		_ = static.Close()
		return nil, err
	}
	return rendered, nil
}

// Static returns the static backend behind f. The rendered backend keeps
// one for sitemaps and non-DOM authentication.
func Static(f Fetcher) *HTTPFetcher {
	switch v := f.(type) {
	case *HTTPFetcher:
		return v
	case *BrowserFetcher:
		return v.Static()
	default:
		return nil
	}
}

// Rendered reports whether f drives a browser.
func Rendered(f Fetcher) bool {
	_, ok := f.(*BrowserFetcher)
	return ok
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
