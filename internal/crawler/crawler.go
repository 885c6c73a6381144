package crawler

import (
	"context"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/williampepple1/site-scraper/internal/config"
	"github.com/williampepple1/site-scraper/internal/document"
	"github.com/williampepple1/site-scraper/internal/fetcher"
	"github.com/williampepple1/site-scraper/internal/worker"
	"github.com/williampepple1/site-scraper/pkg/models"
)

// PageHandler receives every page the crawler visits, after its record is
// stored. It runs on the worker goroutine and must not retain doc past the
// call unless it owns the copy.
type PageHandler func(ctx context.Context, pageURL string, doc *document.Document)

// Crawler discovers and visits pages starting from one URL.
type Crawler struct {
	fetcher   fetcher.Fetcher
	fetchOpts fetcher.Options
	workers   int
	delay     time.Duration
	handler   PageHandler
	logger    *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithWorkers sets the number of concurrent fetches. Values below one
// select one.
func WithWorkers(n int) Option {
	return func(c *Crawler) {
		c.workers = max(n, 1)
	}
}

// WithDelay sets the pause each worker takes between its fetches.
func WithDelay(d time.Duration) Option {
	return func(c *Crawler) {
		c.delay = d
	}
}

// WithFetchOptions sets the options passed to every fetch.
func WithFetchOptions(opts fetcher.Options) Option {
	return func(c *Crawler) {
		c.fetchOpts = opts
	}
}

// WithPageHandler registers h to be called for each visited page.
func WithPageHandler(h PageHandler) Option {
	return func(c *Crawler) {
		c.handler = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = l
	}
}

// New returns a Crawler fetching through f. By default it runs one worker
// with a one second delay.
func New(f fetcher.Fetcher, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher: f,
		workers: config.DefaultWorkers,
		delay:   config.DefaultCrawlDelay,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl visits pages reachable from startURL until the frontier is empty
// or maxPages pages have been visited. maxPages is clamped by
// config.EffectiveMaxPages. A page that fails to fetch or parse is logged
// and skipped; it does not count toward the budget and is not retried.
// With sameDomainOnly, links to hosts other than startURL's are dropped.
//
// On cancellation the pages visited so far are returned along with the
// context error.
func (c *Crawler) Crawl(ctx context.Context, startURL string, maxPages int, sameDomainOnly bool) (*models.CrawlReport, error) {
	start, err := fetcher.ValidateURL(startURL)
	if err != nil {
		return nil, err
	}
	budget := config.EffectiveMaxPages(maxPages)
	front := newFrontier(normalizeURL(start), budget)

	stop := context.AfterFunc(ctx, front.stop)
	defer stop()

	scope := &scope{host: start.Host, sameDomainOnly: sameDomainOnly}
	c.logger.Info("crawl started", "url", start.String(), "max_pages", budget,
		"same_domain_only", sameDomainOnly, "workers", c.workers)

	g, gctx := errgroup.WithContext(ctx)
	for id := 1; id <= c.workers; id++ {
		g.Go(func() error {
			return c.work(gctx, id, front, scope)
		})
	}
	werr := g.Wait()

	pages := front.pages()
	report := &models.CrawlReport{
		BaseURL:    start.String(),
		TotalPages: len(pages),
		Pages:      pages,
	}
	c.logger.Info("crawl finished", "url", start.String(), "pages", report.TotalPages)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, werr
}

// work visits pages until the frontier is exhausted. It returns a non-nil
// error only when ctx ends.
func (c *Crawler) work(ctx context.Context, id int, front *frontier, scope *scope) error {
	limiter := worker.NewLimiter(c.delay)

	for {
		if err := worker.Pace(ctx, limiter); err != nil {
			return err
		}
		pageURL, ok := front.next()
		if !ok {
			return ctx.Err()
		}
		c.logger.Debug("visiting", "worker", id, "url", pageURL)

		doc, rec, links, err := c.visit(ctx, pageURL, scope)
		if err != nil {
			front.fail(pageURL)
			if err := ctx.Err(); err != nil {
				return err
			}
			c.logger.Warn("page skipped", "url", pageURL, "error", err)
			continue
		}
		front.complete(pageURL, rec, links)
		if c.handler != nil {
			c.handler(ctx, pageURL, doc)
		}
	}
}

// visit fetches and parses one page and returns its record and the links
// that pass the scope filter.
func (c *Crawler) visit(ctx context.Context, pageURL string, scope *scope) (*document.Document, models.CrawlRecord, []string, error) {
	res, err := c.fetcher.Fetch(ctx, pageURL, c.fetchOpts)
	if err != nil {
		return nil, models.CrawlRecord{}, nil, err
	}
	doc, err := document.Parse(res.RawHTML, res.FinalURL)
	if err != nil {
		return nil, models.CrawlRecord{}, nil, err
	}

	seen := make(map[string]bool)
	var links []string
	for _, l := range doc.Links() {
		u, ok := scope.accept(l.URL)
		if !ok || seen[u] {
			continue
		}
		seen[u] = true
		links = append(links, u)
	}
	slices.Sort(links)

	rec := models.CrawlRecord{Links: links, VisitedAt: time.Now()}
	if title, ok := doc.Title(); ok {
		rec.Title = &title
	}
	return doc, rec, links, nil
}

// scope decides which discovered links enter the frontier.
type scope struct {
	host           string
	sameDomainOnly bool
}

// accept returns the normalized link when it is http(s) and, with
// sameDomainOnly, on the start host.
func (s *scope) accept(link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	if s.sameDomainOnly && !strings.EqualFold(u.Host, s.host) {
		return "", false
	}
	return normalizeURL(u), true
}

// normalizeURL drops the fragment, lowercases scheme and host and maps an
// empty path to "/".
func normalizeURL(u *url.URL) string {
	n := *u
	n.Fragment = ""
	n.RawFragment = ""
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = strings.ToLower(n.Host)
	if n.Path == "" {
		n.Path = "/"
	}
	return n.String()
}
