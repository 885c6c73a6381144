package models

import (
	"time"
)

// ExtractionResult maps a field name to a string, a []string when the
// selector matched several nodes, or nil when it matched none.
type ExtractionResult map[string]any

// CrawlRecord describes one visited page
type CrawlRecord struct {
	Title     *string   `json:"title"`
	Links     []string  `json:"links"`
	VisitedAt time.Time `json:"visited_at"`
}

// CrawlReport is the result of a crawl
type CrawlReport struct {
	BaseURL    string                 `json:"base_url"`
	TotalPages int                    `json:"total_pages"`
	Pages      map[string]CrawlRecord `json:"pages"`
}

// CombinedReport is the result of a crawl followed by extraction
type CombinedReport struct {
	CrawlInfo   CrawlReport                 `json:"crawl_info"`
	ScrapedData map[string]ExtractionResult `json:"scraped_data"`
}

// Mode selects what a pipeline run produces
type Mode string

const (
	ModeSingle         Mode = "single"
	ModeSitemap        Mode = "sitemap"
	ModeCrawl          Mode = "crawl"
	ModeCrawlAndScrape Mode = "crawl-and-scrape"
	// ModeBatch extracts the same fields from an explicit URL list.
	ModeBatch Mode = "batch"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeSingle, ModeSitemap, ModeCrawl, ModeCrawlAndScrape, ModeBatch:
		return true
	}
	return false
}

// Output is the result of one pipeline run. Exactly one of the payload
// fields is set, matching Mode.
type Output struct {
	Mode      Mode
	URL       string
	StartedAt time.Time
	Duration  time.Duration

	Fields   ExtractionResult
	Sitemap  map[string]ExtractionResult
	Batch    map[string]ExtractionResult
	Crawl    *CrawlReport
	Combined *CombinedReport
}

// Payload returns the value persisted for the run's mode.
func (o *Output) Payload() any {
	switch o.Mode {
	case ModeSitemap:
		return o.Sitemap
	case ModeBatch:
		return o.Batch
	case ModeCrawl:
		return o.Crawl
	case ModeCrawlAndScrape:
		return o.Combined
	default:
		return o.Fields
	}
}

// HasPayload reports whether the payload field for Mode is set.
func (o *Output) HasPayload() bool {
	switch o.Mode {
	case ModeSitemap:
		return o.Sitemap != nil
	case ModeBatch:
		return o.Batch != nil
	case ModeCrawl:
		return o.Crawl != nil
	case ModeCrawlAndScrape:
		return o.Combined != nil
	default:
		return o.Fields != nil
	}
}

// Pages returns the crawl report carried by the output, if any.
func (o *Output) Pages() *CrawlReport {
	switch {
	case o.Crawl != nil:
		return o.Crawl
	case o.Combined != nil:
		return &o.Combined.CrawlInfo
	default:
		return nil
	}
}
