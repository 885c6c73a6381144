// Package sitemap expands sitemaps and sitemap indexes into page URLs.
package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/williampepple1/site-scraper/internal/config"
	"github.com/williampepple1/site-scraper/internal/fetcher"
)

// maxUncompressed is the sitemap protocol's size limit.
const maxUncompressed = 50 * 1024 * 1024

const (
	indexLocs = "/*[local-name()='sitemapindex']/*[local-name()='sitemap']/*[local-name()='loc']"
	urlsetLoc = "/*[local-name()='urlset']/*[local-name()='url']/*[local-name()='loc']"
	anyLoc    = "//*[local-name()='loc']"
)

// Resolver fetches sitemaps through a static fetcher.
type Resolver struct {
	fetcher  fetcher.Fetcher
	maxDepth int
	logger   *slog.Logger
}

// NewResolver returns a Resolver. maxDepth bounds index nesting; zero or
// less selects config.DefaultSitemapDepth.
func NewResolver(f fetcher.Fetcher, maxDepth int, logger *slog.Logger) *Resolver {
	if maxDepth <= 0 {
		maxDepth = config.DefaultSitemapDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{fetcher: f, maxDepth: maxDepth, logger: logger}
}

// Resolve returns the page URLs listed by sitemapURL. Child sitemaps of an
// index are resolved in document order and their results concatenated. A
// child that cannot be fetched or parsed is logged and contributes nothing,
// as is a sitemap seen before in this call or nested deeper than the depth
// bound. Only an invalid sitemapURL or cancellation is returned as an error.
func (r *Resolver) Resolve(ctx context.Context, sitemapURL string) ([]string, error) {
	u, err := fetcher.ValidateURL(sitemapURL)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	urls := r.resolve(ctx, u.String(), 0, seen)
	if err := ctx.Err(); err != nil {
		return urls, err
	}
	return urls, nil
}

func (r *Resolver) resolve(ctx context.Context, loc string, depth int, seen map[string]bool) []string {
	if ctx.Err() != nil {
		return nil
	}
	logger := r.logger.With("sitemap", loc, "depth", depth)
	if seen[loc] {
		logger.Warn("sitemap already resolved, skipping")
		return nil
	}
	if depth > r.maxDepth {
		logger.Warn("sitemap nested too deep, skipping", "max_depth", r.maxDepth)
		return nil
	}
	seen[loc] = true

	res, err := r.fetcher.Fetch(ctx, loc, fetcher.Options{})
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("sitemap fetch failed", "error", err)
		}
		return nil
	}
	doc, err := parse([]byte(res.RawHTML))
	if err != nil {
		logger.Warn("sitemap parse failed", "error", err)
		return nil
	}

	if rootName(doc) != "sitemapindex" {
		expr := urlsetLoc
		if rootName(doc) != "urlset" {
			expr = anyLoc
		}
		urls := locs(doc, expr)
		logger.Debug("sitemap resolved", "urls", len(urls))
		return urls
	}

	var urls []string
	for _, child := range locs(doc, indexLocs) {
		urls = append(urls, r.resolve(ctx, child, depth+1, seen)...)
	}
	return urls
}

func parse(body []byte) (*xmlquery.Node, error) {
	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		body, err = io.ReadAll(io.LimitReader(gz, maxUncompressed+1))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		if len(body) > maxUncompressed {
			return nil, errors.New("uncompressed sitemap exceeds 50MB")
		}
	}
	return xmlquery.Parse(bytes.NewReader(body))
}

func rootName(doc *xmlquery.Node) string {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n.Data
		}
	}
	return ""
}

func locs(doc *xmlquery.Node, expr string) []string {
	var out []string
	for _, n := range xmlquery.Find(doc, expr) {
		if loc := strings.TrimSpace(n.InnerText()); loc != "" {
			out = append(out, loc)
		}
	}
	return out
}
