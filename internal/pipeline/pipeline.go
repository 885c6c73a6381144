// Package pipeline composes fetching, extraction, sitemap resolution and
// crawling into the four run modes exposed to the CLI.
//
// A Scraper owns one fetch backend for its lifetime. Build it once, run as
// many requests as needed and Close it when done:
//
//	s, err := pipeline.NewScraper(cfg, logger)
//	if err != nil { ... }
//	defer s.Close()
//	out, err := s.Run(ctx, pipeline.Request{URL: u, Mode: models.ModeCrawl})
package pipeline

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"cloudeng.io/errors"

	"github.com/williampepple1/site-scraper/internal/config"
	"github.com/williampepple1/site-scraper/internal/crawler"
	"github.com/williampepple1/site-scraper/internal/document"
	"github.com/williampepple1/site-scraper/internal/extraction"
	"github.com/williampepple1/site-scraper/internal/fetcher"
	"github.com/williampepple1/site-scraper/internal/sitemap"
	"github.com/williampepple1/site-scraper/internal/worker"
	"github.com/williampepple1/site-scraper/pkg/models"
)

// Options tune one run.
type Options struct {
	// UseRenderedFetch fetches pages through the browser. The Scraper must
	// have been built with browser.enabled.
	UseRenderedFetch bool
	// MaxPages bounds crawl modes. Zero uses scraper.max_pages; values
	// above 100 are clamped.
	MaxPages int
	// SameDomainOnly keeps crawls on the start URL's host.
	SameDomainOnly bool
	// SettleDelay is the post-load wait for rendered fetches.
	SettleDelay time.Duration
	// ReuseDocuments extracts from the crawl's own parsed pages in
	// crawl-and-scrape mode instead of fetching every page again. Faster,
	// but the extraction runs while the crawl is still in progress.
	ReuseDocuments bool
}

// Request is one pipeline run.
type Request struct {
	URL string
	// URLs is the page list for models.ModeBatch, which ignores URL.
	URLs      []string
	Mode      models.Mode
	Selectors extraction.SelectorSpec
	// XPath and Regex add fields evaluated with the matching engine.
	XPath   map[string]string
	Regex   map[string]string
	Options Options
}

func (r Request) extraction() *config.ExtractionConfig {
	return &config.ExtractionConfig{Selectors: r.Selectors, XPath: r.XPath, Regex: r.Regex}
}

// Scraper runs pipeline requests.
type Scraper struct {
	cfg      *config.AppConfig
	logger   *slog.Logger
	fetcher  fetcher.Fetcher
	resolver *sitemap.Resolver

	closeOnce sync.Once
	closeErr  error
}

// NewScraper validates cfg and constructs the fetch backend it selects.
func NewScraper(cfg *config.AppConfig, logger *slog.Logger) (*Scraper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f, err := fetcher.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Scraper{
		cfg:      cfg,
		logger:   logger,
		fetcher:  f,
		resolver: sitemap.NewResolver(fetcher.Static(f), cfg.Scraper.SitemapDepth, logger),
	}, nil
}

// Run executes req. Invalid input is reported as a *fetcher.ValidationError
// or *extraction.SelectorError before any page is fetched. Batch modes skip
// pages that fail and return what succeeded; on cancellation crawl modes
// return the partial output along with the context error.
func (s *Scraper) Run(ctx context.Context, req Request) (*models.Output, error) {
	if !req.Mode.Valid() {
		return nil, &fetcher.ValidationError{Field: "mode", Value: string(req.Mode), Reason: "unknown mode"}
	}
	var err error
	if req.Mode == models.ModeBatch {
		if req.URLs, err = validateURLs(req.URLs); err != nil {
			return nil, err
		}
	} else {
		u, err := fetcher.ValidateURL(req.URL)
		if err != nil {
			return nil, err
		}
		req.URL = u.String()
	}
	if req.Options.UseRenderedFetch && !fetcher.Rendered(s.fetcher) {
		return nil, &fetcher.ValidationError{Field: "use_rendered_fetch", Reason: "scraper was built without browser support"}
	}

	var extractor *extraction.Extractor
	if req.Mode != models.ModeCrawl {
		extractor = extraction.NewExtractor(req.extraction(), s.logger)
		if err := extractor.Validate(); err != nil {
			return nil, err
		}
	}

	out := &models.Output{Mode: req.Mode, URL: req.URL, StartedAt: time.Now()}
	s.logger.Info("run started", "mode", string(req.Mode), "url", req.URL, "rendered", req.Options.UseRenderedFetch)

	switch req.Mode {
	case models.ModeSingle:
		out.Fields, err = s.scrapeOne(ctx, req, extractor, req.URL)
	case models.ModeSitemap:
		out.Sitemap, err = s.scrapeSitemap(ctx, req, extractor)
	case models.ModeBatch:
		out.Batch, err = s.extractAll(ctx, req, extractor, req.URLs)
	case models.ModeCrawl:
		out.Crawl, err = s.crawl(ctx, req, nil)
	case models.ModeCrawlAndScrape:
		out.Combined, err = s.crawlAndScrape(ctx, req, extractor)
	}
	out.Duration = time.Since(out.StartedAt)

	if err != nil && !out.HasPayload() {
		return nil, err
	}
	s.logger.Info("run finished", "mode", string(req.Mode), "url", req.URL, "elapsed", out.Duration)
	return out, err
}

func validateURLs(urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, &fetcher.ValidationError{Field: "urls", Reason: "no urls given"}
	}
	valid := make([]string, 0, len(urls))
	for _, raw := range urls {
		u, err := fetcher.ValidateURL(raw)
		if err != nil {
			return nil, err
		}
		valid = append(valid, u.String())
	}
	return valid, nil
}

// backend returns the fetcher matching the request's rendering flag.
func (s *Scraper) backend(req Request) fetcher.Fetcher {
	if req.Options.UseRenderedFetch {
		return s.fetcher
	}
	return fetcher.Static(s.fetcher)
}

func (s *Scraper) fetchOptions(req Request) fetcher.Options {
	return fetcher.Options{SettleDelay: req.Options.SettleDelay}
}

func (s *Scraper) scrapeOne(ctx context.Context, req Request, ex *extraction.Extractor, pageURL string) (models.ExtractionResult, error) {
	res, err := s.backend(req).Fetch(ctx, pageURL, s.fetchOptions(req))
	if err != nil {
		return nil, err
	}
	doc, err := document.Parse(res.RawHTML, res.FinalURL)
	if err != nil {
		return nil, err
	}
	return ex.Extract(doc)
}

// extractAll fetches and extracts urls with the worker pool.
func (s *Scraper) extractAll(ctx context.Context, req Request, ex *extraction.Extractor, urls []string) (map[string]models.ExtractionResult, error) {
	task := func(ctx context.Context, pageURL string) (models.ExtractionResult, error) {
		return s.scrapeOne(ctx, req, ex, pageURL)
	}
	pool := worker.NewPool(s.cfg.Scraper.Workers, s.cfg.Scraper.RateLimit, task, s.logger)
	return pool.Run(ctx, urls)
}

func (s *Scraper) scrapeSitemap(ctx context.Context, req Request, ex *extraction.Extractor) (map[string]models.ExtractionResult, error) {
	urls, err := s.resolver.Resolve(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	s.logger.Info("sitemap resolved", "url", req.URL, "pages", len(urls))
	return s.extractAll(ctx, req, ex, urls)
}

func (s *Scraper) crawl(ctx context.Context, req Request, handler crawler.PageHandler) (*models.CrawlReport, error) {
	maxPages := req.Options.MaxPages
	if maxPages <= 0 {
		maxPages = s.cfg.Scraper.MaxPages
	}
	opts := []crawler.Option{
		crawler.WithWorkers(s.cfg.Scraper.Workers),
		crawler.WithDelay(s.cfg.Scraper.RateLimit),
		crawler.WithFetchOptions(s.fetchOptions(req)),
		crawler.WithLogger(s.logger),
	}
	if handler != nil {
		opts = append(opts, crawler.WithPageHandler(handler))
	}
	return crawler.New(s.backend(req), opts...).Crawl(ctx, req.URL, maxPages, req.Options.SameDomainOnly)
}

// crawlAndScrape crawls the site, then extracts every visited page. With
// ReuseDocuments extraction happens on the crawl's parsed pages.
func (s *Scraper) crawlAndScrape(ctx context.Context, req Request, ex *extraction.Extractor) (*models.CombinedReport, error) {
	if req.Options.ReuseDocuments {
		var mu sync.Mutex
		scraped := make(map[string]models.ExtractionResult)
		handler := func(_ context.Context, pageURL string, doc *document.Document) {
			fields, err := ex.Extract(doc)
			if err != nil {
				s.logger.Warn("extraction failed, skipping", "url", pageURL, "error", err)
				return
			}
			mu.Lock()
			scraped[pageURL] = fields
			mu.Unlock()
		}
		report, err := s.crawl(ctx, req, handler)
		if report == nil {
			return nil, err
		}
		return &models.CombinedReport{CrawlInfo: *report, ScrapedData: scraped}, err
	}

	report, err := s.crawl(ctx, req, nil)
	if report == nil {
		return nil, err
	}
	combined := &models.CombinedReport{CrawlInfo: *report, ScrapedData: map[string]models.ExtractionResult{}}
	if err != nil {
		return combined, err
	}

	urls := make([]string, 0, len(report.Pages))
	for u := range report.Pages {
		urls = append(urls, u)
	}
	slices.Sort(urls)
	combined.ScrapedData, err = s.extractAll(ctx, req, ex, urls)
	return combined, err
}

// Authenticate logs in so later runs carry the session. See
// fetcher.Authenticate for the strategies.
func (s *Scraper) Authenticate(ctx context.Context, loginURL string, strategy fetcher.Strategy, creds fetcher.Credentials) fetcher.AuthResult {
	return fetcher.Authenticate(ctx, s.fetcher, loginURL, strategy, creds, s.logger)
}

// Rendered reports whether the scraper drives a browser.
func (s *Scraper) Rendered() bool {
	return fetcher.Rendered(s.fetcher)
}

// Close releases the fetch backend. It is safe to call more than once.
func (s *Scraper) Close() error {
	s.closeOnce.Do(func() {
		var errs errors.M
		errs.Append(s.fetcher.Close())
		if static := fetcher.Static(s.fetcher); static != nil {
			errs.Append(static.Close())
		}
		s.closeErr = errs.Err()
	})
	return s.closeErr
}
