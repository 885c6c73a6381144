// Package main provides the site-scraper command line.
//
// Usage:
//
//	scraper scrape https://example.com --selector title=h1
//	scraper sitemap https://example.com/sitemap.xml --selectors '{"title":"h1"}'
//	scraper crawl https://example.com --max-pages 50
//	scraper crawl-scrape https://example.com --selector price=.price
//
// See --help for all available options.
package main

func main() {
	Execute()
}
