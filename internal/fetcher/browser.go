package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/williampepple1/site-scraper/internal/config"
)

// BrowserFetcher renders pages in headless Chrome. One browser process is
// started per fetcher and shared by all fetches; each fetch runs in its own
// tab and the number of open tabs is bounded by browser.max_tabs.
type BrowserFetcher struct {
	static   *HTTPFetcher
	logger   *slog.Logger
	timeout  time.Duration
	settle   time.Duration
	tabs     chan struct{}
	browser  context.Context
	cancelFn []context.CancelFunc

	closeOnce sync.Once
}

// NewBrowserFetcher starts the browser. static is closed together with the
// returned fetcher.
func NewBrowserFetcher(cfg *config.AppConfig, static *HTTPFetcher, logger *slog.Logger) (*BrowserFetcher, error) {
	logger = loggerOrDefault(logger)

	userAgent := cfg.Browser.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgents[0]
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Browser.Headless),
		chromedp.UserAgent(userAgent),
		chromedp.DisableGPU,
	)
	if cfg.Browser.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.Browser.ExecPath))
	}
	if cfg.Browser.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
		}))

	// Running no actions starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, &FetchError{Kind: KindRendererUnavailable, Err: err}
	}

	maxTabs := cfg.Browser.MaxTabs
	if maxTabs <= 0 {
		maxTabs = 1
	}
	timeout := cfg.Scraper.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}

	logger.Debug("browser started", "headless", cfg.Browser.Headless, "max_tabs", maxTabs)
	return &BrowserFetcher{
		static:   static,
		logger:   logger,
		timeout:  timeout,
		settle:   cfg.Browser.WaitTime,
		tabs:     make(chan struct{}, maxTabs),
		browser:  browserCtx,
		cancelFn: []context.CancelFunc{browserCancel, allocCancel},
	}, nil
}

// Fetch navigates a fresh tab to rawURL, waits for the settle delay and
// returns the rendered markup. StatusCode is always zero.
func (b *BrowserFetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*FetchResult, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	target := u.String()
	settle := opts.SettleDelay
	if settle <= 0 {
		settle = b.settle
	}

	var html, location string
	err = b.runTab(ctx, settle, chromedp.Tasks{
		chromedp.Navigate(target),
		chromedp.Sleep(settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	})
	if err != nil {
		return nil, b.wrap(ctx, target, err)
	}
	if location == "" {
		location = target
	}
	return &FetchResult{
		FinalURL:  location,
		RawHTML:   html,
		FetchedAt: time.Now(),
	}, nil
}

// SubmitForm opens loginURL, types each value into the input with the
// matching name attribute, clicks submitSelector and returns the URL the
// tab ends up on after the settle delay.
func (b *BrowserFetcher) SubmitForm(ctx context.Context, loginURL string, fields map[string]string, submitSelector string, settle time.Duration) (string, error) {
	if settle <= 0 {
		settle = b.settle
	}
	tasks := chromedp.Tasks{
		chromedp.Navigate(loginURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	for _, name := range sortedKeys(fields) {
		tasks = append(tasks, chromedp.SendKeys(fmt.Sprintf("[name=%q]", name), fields[name], chromedp.ByQuery))
	}
	var location string
	tasks = append(tasks,
		chromedp.Click(submitSelector, chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.Location(&location),
	)
	if err := b.runTab(ctx, settle, tasks); err != nil {
		return "", b.wrap(ctx, loginURL, err)
	}
	return location, nil
}

// runTab runs tasks in a new tab once a tab slot is free.
func (b *BrowserFetcher) runTab(ctx context.Context, settle time.Duration, tasks chromedp.Tasks) error {
	select {
	case b.tabs <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-b.tabs }()

	tabCtx, cancelTab := chromedp.NewContext(b.browser)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout+settle)
	defer cancelTimeout()

	return chromedp.Run(tabCtx, tasks)
}

func (b *BrowserFetcher) wrap(ctx context.Context, target string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, URL: target, Err: err}
	}
	return &FetchError{Kind: KindRendererFailed, URL: target, Err: err}
}

// Static returns the static backend used for non-DOM requests.
func (b *BrowserFetcher) Static() *HTTPFetcher {
	return b.static
}

// Close shuts down the browser and the static backend. It is safe to call
// more than once.
func (b *BrowserFetcher) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if cerr := chromedp.Cancel(b.browser); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = cerr
		}
		for _, cancel := range b.cancelFn {
			cancel()
		}
		if b.static != nil {
			err = errors.Join(err, b.static.Close())
		}
		b.logger.Debug("browser closed")
	})
	return err
}
