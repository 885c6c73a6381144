package io

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/williampepple1/site-scraper/pkg/models"
)

// WriteMarkdown renders out as a Markdown report: a summary table followed
// by one section per payload part.
func WriteMarkdown(dst io.Writer, out *models.Output) error {
	md := markdown.NewMarkdown(dst)

	md.H1("Scrape Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"URL", cell(out.URL)},
			{"Mode", string(out.Mode)},
			{"Started", out.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", out.Duration.Round(time.Millisecond).String()},
		},
	})
	md.PlainText("")

	switch out.Mode {
	case models.ModeSitemap:
		writePages(md, "Pages", out.Sitemap)
	case models.ModeBatch:
		writePages(md, "Pages", out.Batch)
	case models.ModeCrawl:
		writeCrawl(md, out.Crawl)
	case models.ModeCrawlAndScrape:
		if out.Combined != nil {
			writeCrawl(md, &out.Combined.CrawlInfo)
			writePages(md, "Scraped Data", out.Combined.ScrapedData)
		}
	default:
		writeFields(md, out.Fields)
	}

	if err := md.Build(); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	return nil
}

func writeFields(md *markdown.Markdown, fields models.ExtractionResult) {
	md.H2("Fields")
	md.PlainText("")
	if len(fields) == 0 {
		md.PlainText("No fields extracted.")
		md.PlainText("")
		return
	}
	rows := make([][]string, 0, len(fields))
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		rows = append(rows, []string{name, value(fields[name])})
	}
	md.Table(markdown.TableSet{Header: []string{"Field", "Value"}, Rows: rows})
	md.PlainText("")
}

// writePages renders one row per page with a column per field name seen on
// any page.
func writePages(md *markdown.Markdown, title string, pages map[string]models.ExtractionResult) {
	md.H2(title)
	md.PlainText("")
	if len(pages) == 0 {
		md.PlainText("No pages scraped.")
		md.PlainText("")
		return
	}

	names := map[string]struct{}{}
	for _, fields := range pages {
		for name := range fields {
			names[name] = struct{}{}
		}
	}
	columns := slices.Sorted(maps.Keys(names))

	rows := make([][]string, 0, len(pages))
	for _, u := range slices.Sorted(maps.Keys(pages)) {
		row := []string{cell(u)}
		for _, name := range columns {
			row = append(row, value(pages[u][name]))
		}
		rows = append(rows, row)
	}
	md.Table(markdown.TableSet{Header: append([]string{"URL"}, columns...), Rows: rows})
	md.PlainText("")
}

func writeCrawl(md *markdown.Markdown, report *models.CrawlReport) {
	md.H2("Crawl")
	md.PlainText("")
	if report == nil {
		md.PlainText("No pages visited.")
		md.PlainText("")
		return
	}
	md.PlainText("Visited " + strconv.Itoa(report.TotalPages) + " pages from " + cell(report.BaseURL) + ".")
	md.PlainText("")

	rows := make([][]string, 0, len(report.Pages))
	for _, u := range slices.Sorted(maps.Keys(report.Pages)) {
		rec := report.Pages[u]
		title := ""
		if rec.Title != nil {
			title = cell(*rec.Title)
		}
		rows = append(rows, []string{
			cell(u),
			title,
			strconv.Itoa(len(rec.Links)),
			rec.VisitedAt.Format(time.RFC3339),
		})
	}
	md.Table(markdown.TableSet{Header: []string{"URL", "Title", "Links", "Visited"}, Rows: rows})
	md.PlainText("")
}

func value(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return cell(v)
	case []string:
		parts := make([]string, len(v))
		for i, s := range v {
			parts[i] = cell(s)
		}
		return strings.Join(parts, "<br>")
	default:
		return cell(fmt.Sprint(v))
	}
}

// cell makes s safe inside a table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}
