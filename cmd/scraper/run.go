package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/williampepple1/site-scraper/internal/config"
	"github.com/williampepple1/site-scraper/internal/fetcher"
	resultio "github.com/williampepple1/site-scraper/internal/io"
	"github.com/williampepple1/site-scraper/internal/log"
	"github.com/williampepple1/site-scraper/internal/pipeline"
	"github.com/williampepple1/site-scraper/internal/store"
	"github.com/williampepple1/site-scraper/pkg/models"
)

// stdoutPath as --output writes results to stdout instead of a file.
const stdoutPath = "-"

// addExtractionFlags registers the field flags of the extracting commands.
func addExtractionFlags(cmd *cobra.Command) {
	cmd.Flags().String("selectors", "",
		`Fields as a JSON object of name to CSS selector, e.g. '{"title":"h1"}'`)
	cmd.Flags().StringArray("selector", nil, "Field as name=css (repeatable)")
	cmd.Flags().StringArray("xpath", nil, "Field as name=xpath (repeatable)")
	cmd.Flags().StringArray("regex", nil, "Field as name=pattern matched against the raw HTML (repeatable)")
}

// addCrawlFlags registers the crawl bounds.
func addCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		fmt.Sprintf("Maximum number of pages to visit (at most %d)", config.MaxPagesCeiling))
	cmd.Flags().Bool("same-domain", true, "Only follow links on the start URL's host")
}

// addRunFlags registers the fetch, output and auth flags shared by every
// scraping command.
func addRunFlags(cmd *cobra.Command) {
	// Fetch flags
	cmd.Flags().Bool("render", false, "Fetch pages with a headless browser")
	cmd.Flags().Duration("settle", config.DefaultSettleDelay,
		"Wait after page load before reading rendered HTML")
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers, "Number of concurrent workers")
	cmd.Flags().Duration("delay", config.DefaultCrawlDelay, "Delay between two requests of one worker")

	// Output flags
	cmd.Flags().StringP("output", "o", "",
		"Write results to this file, '-' for stdout (default: scraped_data_<timestamp> in the data dir)")
	cmd.Flags().String("format", resultio.FormatJSON, "Output format: json or markdown")
	cmd.Flags().Bool("archive", false, "Record the run in the SQLite archive")
	addStoreDirFlag(cmd)

	// Auth flags
	cmd.Flags().String("auth-url", "", "Log in at this URL before scraping")
	cmd.Flags().String("auth-type", string(fetcher.StrategyBasic), "Login strategy: basic, form or api")
	cmd.Flags().StringArray("auth", nil, "Login credential as key=value (repeatable)")
	cmd.Flags().StringArray("auth-extra", nil, "Extra login form field as key=value (repeatable)")
}

func addStoreDirFlag(cmd *cobra.Command) {
	cmd.Flags().String("store-dir", "", "Archive directory (default: store.dir or the XDG data dir)")
}

// changed reports whether the flag exists on cmd and was set by the user.
func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

// parseKeyValues parses key=value pairs. The value may contain '='.
func parseKeyValues(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid key=value pair %q", pair)
		}
		out[key] = value
	}
	return out, nil
}

// mergeKeyValues adds the pairs of flag name to dst, allocating it if needed.
func mergeKeyValues(cmd *cobra.Command, name string, dst map[string]string) (map[string]string, error) {
	if !changed(cmd, name) {
		return dst, nil
	}
	pairs, err := cmd.Flags().GetStringArray(name)
	if err != nil {
		return nil, err
	}
	kv, err := parseKeyValues(pairs)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	if dst == nil {
		dst = make(map[string]string, len(kv))
	}
	maps.Copy(dst, kv)
	return dst, nil
}

// loadConfig reads the configuration file, or the defaults when there is
// none, and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	found := config.FindConfigFile(path)
	if path != "" && found == "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, path)
	}

	cfg := config.CreateDefault()
	if found != "" {
		var err error
		if cfg, err = config.Load(found); err != nil {
			return nil, fmt.Errorf("load %s: %w", found, err)
		}
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.AppConfig) error {
	flags := cmd.Flags()
	var err error

	if changed(cmd, "workers") {
		cfg.Scraper.Workers, _ = flags.GetInt("workers")
	}
	if changed(cmd, "delay") {
		cfg.Scraper.RateLimit, _ = flags.GetDuration("delay")
	}
	if changed(cmd, "max-pages") {
		cfg.Scraper.MaxPages, _ = flags.GetInt("max-pages")
	}
	if changed(cmd, "same-domain") {
		cfg.Scraper.SameDomainOnly, _ = flags.GetBool("same-domain")
	}
	if changed(cmd, "render") {
		cfg.Browser.Enabled, _ = flags.GetBool("render")
	}
	if changed(cmd, "settle") {
		cfg.Browser.WaitTime, _ = flags.GetDuration("settle")
	}
	if changed(cmd, "output") {
		cfg.IO.OutputFile, _ = flags.GetString("output")
	}
	if changed(cmd, "format") {
		cfg.IO.OutputFormat, _ = flags.GetString("format")
	}
	if changed(cmd, "input") {
		cfg.IO.InputFile, _ = flags.GetString("input")
	}
	if changed(cmd, "archive") {
		cfg.Store.Enabled, _ = flags.GetBool("archive")
	}
	if changed(cmd, "store-dir") {
		cfg.Store.Dir, _ = flags.GetString("store-dir")
	}

	if changed(cmd, "selectors") {
		raw, _ := flags.GetString("selectors")
		var spec map[string]string
		if err := json.Unmarshal([]byte(raw), &spec); err != nil {
			return fmt.Errorf("--selectors must be a JSON object of strings: %w", err)
		}
		if cfg.Extraction.Selectors == nil {
			cfg.Extraction.Selectors = make(map[string]string, len(spec))
		}
		maps.Copy(cfg.Extraction.Selectors, spec)
	}
	if cfg.Extraction.Selectors, err = mergeKeyValues(cmd, "selector", cfg.Extraction.Selectors); err != nil {
		return err
	}
	if cfg.Extraction.XPath, err = mergeKeyValues(cmd, "xpath", cfg.Extraction.XPath); err != nil {
		return err
	}
	if cfg.Extraction.Regex, err = mergeKeyValues(cmd, "regex", cfg.Extraction.Regex); err != nil {
		return err
	}

	if changed(cmd, "auth-url") {
		cfg.Auth.URL, _ = flags.GetString("auth-url")
	}
	if changed(cmd, "auth-type") {
		cfg.Auth.Strategy, _ = flags.GetString("auth-type")
	}
	if cfg.Auth.Credentials, err = mergeKeyValues(cmd, "auth", cfg.Auth.Credentials); err != nil {
		return err
	}
	if cfg.Auth.Extra, err = mergeKeyValues(cmd, "auth-extra", cfg.Auth.Extra); err != nil {
		return err
	}
	return nil
}

// newRequest builds the pipeline request for mode from the merged
// configuration.
func newRequest(cfg *config.AppConfig, mode models.Mode, target string) pipeline.Request {
	return pipeline.Request{
		URL:       target,
		Mode:      mode,
		Selectors: cfg.Extraction.Selectors,
		XPath:     cfg.Extraction.XPath,
		Regex:     cfg.Extraction.Regex,
		Options: pipeline.Options{
			UseRenderedFetch: cfg.Browser.Enabled,
			MaxPages:         cfg.Scraper.MaxPages,
			SameDomainOnly:   cfg.Scraper.SameDomainOnly,
			SettleDelay:      cfg.Browser.WaitTime,
		},
	}
}

// requestFunc turns the command arguments into a pipeline request.
type requestFunc func(cmd *cobra.Command, cfg *config.AppConfig, args []string) (pipeline.Request, error)

// runPipeline is the RunE body shared by the scraping commands.
func runPipeline(cmd *cobra.Command, args []string, build requestFunc) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	req, err := build(cmd, cfg, args)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := log.New(cmd.ErrOrStderr(), verbose)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scraper, err := pipeline.NewScraper(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := scraper.Close(); err != nil {
			logger.Warn("failed to release fetch backend", "error", err)
		}
	}()

	if err := authenticate(ctx, scraper, cfg); err != nil {
		return err
	}

	stopSpinner := startSpinner(cmd.ErrOrStderr(), !verbose, fmt.Sprintf("%s %s", req.Mode, target(req)))
	out, runErr := scraper.Run(ctx, req)
	stopSpinner()
	if out == nil {
		return runErr
	}
	if runErr != nil {
		logger.Warn("run ended early, writing partial results", "error", runErr)
	}

	if err := writeOutput(cmd.OutOrStdout(), cfg, out); err != nil {
		return err
	}
	if cfg.Store.Enabled {
		if err := archive(context.WithoutCancel(ctx), cmd.OutOrStdout(), cfg, out); err != nil {
			return err
		}
	}
	return runErr
}

func target(req pipeline.Request) string {
	if req.Mode == models.ModeBatch {
		return fmt.Sprintf("%d urls", len(req.URLs))
	}
	return req.URL
}

// authenticate logs in when an auth URL is configured.
func authenticate(ctx context.Context, scraper *pipeline.Scraper, cfg *config.AppConfig) error {
	if cfg.Auth.URL == "" {
		return nil
	}
	strategy := fetcher.Strategy(cfg.Auth.Strategy)
	if strategy == "" {
		strategy = fetcher.StrategyBasic
	}
	res := scraper.Authenticate(ctx, cfg.Auth.URL, strategy, fetcher.Credentials{
		Values: cfg.Auth.Credentials,
		Extra:  cfg.Auth.Extra,
	})
	if !res.OK {
		return fmt.Errorf("authentication failed: %s", res)
	}
	return nil
}

// startSpinner shows progress on w and returns the function stopping it.
func startSpinner(w io.Writer, enabled bool, suffix string) func() {
	if !enabled {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + suffix
	s.Start()
	return s.Stop
}

func writeOutput(w io.Writer, cfg *config.AppConfig, out *models.Output) error {
	writer := resultio.NewResultWriter(&cfg.IO)
	if cfg.IO.OutputFile == stdoutPath {
		return writer.Write(w, out)
	}
	path, err := writer.Save(out)
	if err != nil {
		return fmt.Errorf("error saving results: %w", err)
	}
	fmt.Fprintf(w, "%s\n", summary(out))
	fmt.Fprintf(w, "Results saved to %s\n", path)
	return nil
}

func summary(out *models.Output) string {
	elapsed := out.Duration.Round(time.Millisecond)
	switch out.Mode {
	case models.ModeSitemap:
		return fmt.Sprintf("Scraped %d sitemap pages in %v", len(out.Sitemap), elapsed)
	case models.ModeBatch:
		return fmt.Sprintf("Scraped %d pages in %v", len(out.Batch), elapsed)
	case models.ModeCrawl:
		return fmt.Sprintf("Crawled %d pages in %v", out.Crawl.TotalPages, elapsed)
	case models.ModeCrawlAndScrape:
		return fmt.Sprintf("Crawled %d pages and scraped %d in %v",
			out.Combined.CrawlInfo.TotalPages, len(out.Combined.ScrapedData), elapsed)
	default:
		return fmt.Sprintf("Extracted %d fields in %v", len(out.Fields), elapsed)
	}
}

// storeDir returns the archive directory from cfg.
func storeDir(cfg *config.AppConfig) string {
	if cfg.Store.Dir != "" {
		return cfg.Store.Dir
	}
	return config.XDGDataDir()
}

func archive(ctx context.Context, w io.Writer, cfg *config.AppConfig, out *models.Output) error {
	db, err := store.Open(storeDir(cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := db.SaveRun(ctx, out)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Archived as run %d in %s\n", id, db.Path())
	return nil
}
