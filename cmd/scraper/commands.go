package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/williampepple1/site-scraper/internal/config"
	resultio "github.com/williampepple1/site-scraper/internal/io"
	"github.com/williampepple1/site-scraper/internal/pipeline"
	"github.com/williampepple1/site-scraper/pkg/models"
)

// NewScrapeCmd creates the scrape command.
func NewScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [url...]",
		Short: "Extract fields from one or more pages",
		Long: `Scrape fetches each page and extracts the configured fields.

A field that matches one node yields a string, several nodes a list, and no
node null. With several URLs (arguments or --input) the result maps each
page URL to its fields; pages that fail are logged and left out.

Examples:
  # Extract the main heading
  scraper scrape https://example.com --selector title=h1

  # Several fields, rendered with a headless browser
  scraper scrape https://example.com --render --settle 2s \
    --selectors '{"title":"h1","prices":".price"}'

  # Every URL listed in a file, as Markdown
  scraper scrape --input urls.txt --selector title=h1 --format markdown`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args, scrapeRequest)
		},
	}
	cmd.Flags().String("input", "", "File containing URLs to scrape (one per line, # comments)")
	addExtractionFlags(cmd)
	addRunFlags(cmd)
	return cmd
}

func scrapeRequest(_ *cobra.Command, cfg *config.AppConfig, args []string) (pipeline.Request, error) {
	urls := append([]string(nil), args...)
	if cfg.IO.InputFile != "" {
		listed, err := resultio.NewURLReader(&cfg.IO).GetURLs()
		if err != nil {
			return pipeline.Request{}, err
		}
		urls = append(urls, listed...)
	}

	switch len(urls) {
	case 0:
		return pipeline.Request{}, errors.New("no URLs to scrape: pass a URL or --input")
	case 1:
		return newRequest(cfg, models.ModeSingle, urls[0]), nil
	default:
		req := newRequest(cfg, models.ModeBatch, "")
		req.URLs = urls
		return req, nil
	}
}

// NewSitemapCmd creates the sitemap command.
func NewSitemapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitemap <sitemap-url>",
		Short: "Extract fields from every page listed in a sitemap",
		Long: `Sitemap resolves a sitemap, following nested sitemap indexes and gzip
compressed files, then extracts the configured fields from every page it lists.
The result maps each page URL to its fields.

Example:
  scraper sitemap https://example.com/sitemap.xml --selector title=h1 -w 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args, singleURL(models.ModeSitemap))
		},
	}
	addExtractionFlags(cmd)
	addRunFlags(cmd)
	return cmd
}

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <start-url>",
		Short: "Crawl a site and record its pages",
		Long: `Crawl visits pages reachable from the start URL and records each page's
title, outgoing links and visit time. Failed pages are logged and skipped.

Examples:
  scraper crawl https://example.com --max-pages 50
  scraper crawl https://example.com --same-domain=false -w 4 --delay 500ms`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args, singleURL(models.ModeCrawl))
		},
	}
	addCrawlFlags(cmd)
	addRunFlags(cmd)
	return cmd
}

// NewCrawlScrapeCmd creates the crawl-scrape command.
func NewCrawlScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl-scrape <start-url>",
		Short: "Crawl a site, then extract fields from every visited page",
		Long: `Crawl-scrape crawls like the crawl command, then extracts the configured
fields from every visited page. The result carries both the crawl report and
the extracted data.

Example:
  scraper crawl-scrape https://example.com --selector title=h1 --max-pages 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args, func(cmd *cobra.Command, cfg *config.AppConfig, args []string) (pipeline.Request, error) {
				req := newRequest(cfg, models.ModeCrawlAndScrape, args[0])
				req.Options.ReuseDocuments, _ = cmd.Flags().GetBool("reuse-documents")
				return req, nil
			})
		},
	}
	cmd.Flags().Bool("reuse-documents", false, "Extract from the crawled pages instead of fetching them again")
	addExtractionFlags(cmd)
	addCrawlFlags(cmd)
	addRunFlags(cmd)
	return cmd
}

func singleURL(mode models.Mode) requestFunc {
	return func(_ *cobra.Command, cfg *config.AppConfig, args []string) (pipeline.Request, error) {
		return newRequest(cfg, mode, args[0]), nil
	}
}
