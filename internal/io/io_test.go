package io

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/williampepple1/site-scraper/internal/config"
	"github.com/williampepple1/site-scraper/pkg/models"
)

func TestURLReader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("# seeds\nhttps://a.example.com\n\n  https://b.example.com  \n#https://c.example.com\n"), 0o644))

	r := NewURLReader(&config.IOConfig{InputFile: path})
	urls, err := r.GetURLs()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, urls)

	_, err = NewURLReader(&config.IOConfig{}).GetURLs()
	assert.ErrorIs(t, err, ErrNoInput)

	_, err = r.ReadFromFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func fixedWriter(cfg *config.IOConfig) *ResultWriter {
	w := NewResultWriter(cfg)
	w.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }
	return w
}

func TestResultWriterPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.IOConfig
		want string
	}{
		{"explicit file", config.IOConfig{OutputFile: "out/result.json", OutputDir: "ignored"}, "out/result.json"},
		{"json in dir", config.IOConfig{OutputDir: "results"}, filepath.Join("results", "scraped_data_20240309_140507.json")},
		{"markdown in dir", config.IOConfig{OutputDir: "results", OutputFormat: "markdown"}, filepath.Join("results", "scraped_data_20240309_140507.md")},
		{"xdg default", config.IOConfig{}, filepath.Join(config.XDGDataDir(), "scraped_data_20240309_140507.json")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, fixedWriter(&tt.cfg).Path())
		})
	}
}

func TestSaveJSON(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested")
	out := &models.Output{
		Mode: models.ModeSingle,
		Fields: models.ExtractionResult{
			"title": "Café <b>&</b>",
			"tags":  []string{"a", "b"},
			"none":  nil,
		},
	}

	path, err := fixedWriter(&config.IOConfig{OutputDir: dir}).Save(out)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scraped_data_20240309_140507.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title": "Café <b>&</b>"`)
	assert.Contains(t, string(data), "\n  \"tags\": [\n    \"a\",")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Café <b>&</b>", decoded["title"])
	assert.Equal(t, []any{"a", "b"}, decoded["tags"])
	assert.Nil(t, decoded["none"])
	assert.Contains(t, decoded, "none")
}

func TestWriteJSONCrawlShape(t *testing.T) {
	t.Parallel()

	title := "Home"
	out := &models.Output{
		Mode: models.ModeCrawlAndScrape,
		Combined: &models.CombinedReport{
			CrawlInfo: models.CrawlReport{
				BaseURL:    "https://example.com",
				TotalPages: 1,
				Pages: map[string]models.CrawlRecord{
					"https://example.com/": {Title: &title, Links: []string{}, VisitedAt: time.Unix(0, 0).UTC()},
				},
			},
			ScrapedData: map[string]models.ExtractionResult{"https://example.com/": {"h1": "Hi"}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, NewResultWriter(&config.IOConfig{}).Write(&buf, out))

	var decoded struct {
		CrawlInfo struct {
			BaseURL    string `json:"base_url"`
			TotalPages int    `json:"total_pages"`
			Pages      map[string]struct {
				Title     *string  `json:"title"`
				Links     []string `json:"links"`
				VisitedAt string   `json:"visited_at"`
			} `json:"pages"`
		} `json:"crawl_info"`
		ScrapedData map[string]map[string]any `json:"scraped_data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "https://example.com", decoded.CrawlInfo.BaseURL)
	assert.Equal(t, 1, decoded.CrawlInfo.TotalPages)
	assert.Equal(t, "Home", *decoded.CrawlInfo.Pages["https://example.com/"].Title)
	assert.Equal(t, "1970-01-01T00:00:00Z", decoded.CrawlInfo.Pages["https://example.com/"].VisitedAt)
	assert.Equal(t, "Hi", decoded.ScrapedData["https://example.com/"]["h1"])
}

func TestWriteMarkdown(t *testing.T) {
	t.Parallel()

	title := "Home | Site"
	tests := []struct {
		name string
		out  *models.Output
		want []string
	}{
		{
			name: "single",
			out: &models.Output{Mode: models.ModeSingle, URL: "https://example.com", Fields: models.ExtractionResult{
				"heading": "Welcome",
				"tags":    []string{"go", "web"},
			}},
			want: []string{"# Scrape Report", "## Fields", "Welcome", "go<br>web", "https://example.com"},
		},
		{
			name: "sitemap",
			out: &models.Output{Mode: models.ModeSitemap, Sitemap: map[string]models.ExtractionResult{
				"https://example.com/a": {"h1": "A"},
				"https://example.com/b": {"h1": "B"},
			}},
			want: []string{"## Pages", "https://example.com/a", "https://example.com/b"},
		},
		{
			name: "crawl",
			out: &models.Output{Mode: models.ModeCrawl, Crawl: &models.CrawlReport{
				BaseURL:    "https://example.com",
				TotalPages: 1,
				Pages:      map[string]models.CrawlRecord{"https://example.com/": {Title: &title}},
			}},
			want: []string{"## Crawl", "Visited 1 pages", "Home", "Site"},
		},
		{
			name: "empty fields",
			out:  &models.Output{Mode: models.ModeSingle},
			want: []string{"No fields extracted."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			require.NoError(t, NewResultWriter(&config.IOConfig{OutputFormat: FormatMarkdown}).Write(&buf, tt.out))
			for _, want := range tt.want {
				assert.True(t, strings.Contains(buf.String(), want), "missing %q in:\n%s", want, buf.String())
			}
		})
	}
}

func TestWriteUnsupportedFormat(t *testing.T) {
	t.Parallel()

	err := NewResultWriter(&config.IOConfig{OutputFormat: "csv"}).Write(&bytes.Buffer{}, &models.Output{})
	assert.ErrorIs(t, err, config.ErrUnsupportedFormat)
}
