package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/williampepple1/site-scraper/internal/config"
	"github.com/williampepple1/site-scraper/pkg/models"
)

func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	assert.Equal(t, "scraper", cmd.Use)
	assert.NotEmpty(t, cmd.Version)

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"scrape", "sitemap", "crawl", "crawl-scrape", "history", "version"}, names)
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "scraper version")
	assert.Contains(t, out.String(), "commit:")
}

func TestParseKeyValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{"simple", []string{"title=h1", "price=.price"}, map[string]string{"title": "h1", "price": ".price"}, false},
		{"value with equals", []string{"link=a[href='x=1']"}, map[string]string{"link": "a[href='x=1']"}, false},
		{"empty value", []string{"token="}, map[string]string{"token": ""}, false},
		{"missing equals", []string{"title"}, nil, true},
		{"empty key", []string{"=h1"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseKeyValues(tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlScrapeCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--selectors", `{"title":"h1","price":".old"}`,
		"--selector", "price=.price",
		"--xpath", "heading=//h2",
		"--workers", "4",
		"--delay", "250ms",
		"--max-pages", "30",
		"--same-domain=false",
		"--format", "markdown",
		"--auth-url", "https://example.com/login",
		"--auth-type", "form",
		"--auth", "username=alice",
		"--auth", "password=secret",
		"--auth-extra", "remember=1",
	}))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"title": "h1", "price": ".price"}, cfg.Extraction.Selectors)
	assert.Equal(t, map[string]string{"heading": "//h2"}, cfg.Extraction.XPath)
	assert.Equal(t, 4, cfg.Scraper.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Scraper.RateLimit)
	assert.Equal(t, 30, cfg.Scraper.MaxPages)
	assert.False(t, cfg.Scraper.SameDomainOnly)
	assert.Equal(t, "markdown", cfg.IO.OutputFormat)
	assert.Equal(t, "form", cfg.Auth.Strategy)
	assert.Equal(t, map[string]string{"username": "alice", "password": "secret"}, cfg.Auth.Credentials)
	assert.Equal(t, map[string]string{"remember": "1"}, cfg.Auth.Extra)

	req := newRequest(cfg, models.ModeCrawlAndScrape, "https://example.com")
	assert.Equal(t, 30, req.Options.MaxPages)
	assert.False(t, req.Options.SameDomainOnly)
	assert.False(t, req.Options.UseRenderedFetch)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"selectors not json", []string{"--selectors", "h1"}},
		{"selector without name", []string{"--selector", "h1"}},
		{"zero workers", []string{"--workers", "0"}},
		{"unknown format", []string{"--format", "csv"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cmd := NewScrapeCmd()
			require.NoError(t, cmd.ParseFlags(tt.args))
			_, err := loadConfig(cmd)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"crawl", "https://example.com", "-c", filepath.Join(t.TempDir(), "nope.yaml")})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.ErrorIs(t, cmd.Execute(), config.ErrConfigNotFound)
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/":      `<html><head><title>Home</title></head><body><h1>Welcome</h1><a href="/about">About</a></body></html>`,
		"/about": `<html><head><title>About</title></head><body><h1>About</h1><a href="/">Home</a></body></html>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--verbose"))
	err := cmd.Execute()
	return out.String(), err
}

func TestScrapeCommandWritesFile(t *testing.T) {
	t.Parallel()

	site := newSite(t)
	path := filepath.Join(t.TempDir(), "out", "result.json")

	stdout, err := execute(t, "scrape", site.URL, "--selector", "heading=h1", "--delay", "0", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Results saved to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, map[string]any{"heading": "Welcome"}, fields)
}

func TestScrapeCommandBatchFromInput(t *testing.T) {
	t.Parallel()

	site := newSite(t)
	input := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(input, []byte("# pages\n"+site.URL+"/about\n"+site.URL+"/missing\n"), 0o644))

	stdout, err := execute(t, "scrape", site.URL, "--input", input, "--selector", "heading=h1", "--delay", "0", "-o", "-")
	require.NoError(t, err)

	var pages map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &pages))
	assert.Equal(t, map[string]map[string]any{
		site.URL:            {"heading": "Welcome"},
		site.URL + "/about": {"heading": "About"},
	}, pages)
}

func TestScrapeCommandNeedsURL(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "scrape", "--selector", "heading=h1")
	assert.ErrorContains(t, err, "no URLs to scrape")
}

func TestCrawlArchiveAndHistory(t *testing.T) {
	t.Parallel()

	site := newSite(t)
	storeDir := t.TempDir()

	stdout, err := execute(t, "crawl", site.URL, "--delay", "0", "-o", "-", "--archive", "--store-dir", storeDir)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"total_pages": 2`)
	assert.Contains(t, stdout, "Archived as run 1")

	stdout, err = execute(t, "history", "--store-dir", storeDir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "ID")
	assert.Contains(t, stdout, "crawl")
	assert.Contains(t, stdout, site.URL)

	stdout, err = execute(t, "history", "--store-dir", storeDir, "--show", "1")
	require.NoError(t, err)
	var report models.CrawlReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, 2, report.TotalPages)
}
