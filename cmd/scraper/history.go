package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/williampepple1/site-scraper/internal/store"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived runs",
		Long: `History lists the runs recorded with --archive (or store.enabled in the
configuration file), newest first. Use --show to print the stored result of
one run.

Examples:
  scraper history
  scraper history --limit 5
  scraper history --show 12`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to list (0 for all)")
	cmd.Flags().Int64("show", 0, "Print the stored result of this run id")
	addStoreDirFlag(cmd)
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := store.Open(storeDir(cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if id, _ := cmd.Flags().GetInt64("show"); id > 0 {
		raw, err := db.Result(ctx, id)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return fmt.Errorf("stored result of run %d is not valid JSON: %w", id, err)
		}
		buf.WriteByte('\n')
		_, err = buf.WriteTo(out)
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs archived yet.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODE\tPAGES\tCREATED\tURL")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", r.ID, r.Mode, r.Pages, r.CreatedAt.Local().Format(time.DateTime), r.URL)
	}
	return tw.Flush()
}
