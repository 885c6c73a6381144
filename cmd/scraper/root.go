package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scraper",
		Short: "Fetch, crawl and extract structured data from websites",
		Long: `scraper fetches web pages over plain HTTP or through a headless browser,
extracts named fields with CSS selectors, XPath expressions or regular
expressions, resolves sitemaps and crawls sites.

Results are written as JSON or Markdown. Settings come from a YAML file
(--config, or config.yaml in the XDG config directory) and flags override them.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file path (default: XDG config dir)")

	cmd.AddCommand(NewScrapeCmd())
	cmd.AddCommand(NewSitemapCmd())
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewCrawlScrapeCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
