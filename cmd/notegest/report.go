package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgallion1/notegest/internal/manifest"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the last recorded conversion run and its failed pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		return runReport(cmd.Context(), viper.GetString("manifest"), all, cmd.OutOrStdout())
	},
}

func init() {
	reportCmd.Flags().Bool("all", false, "list every page, not only failures")

	rootCmd.AddCommand(reportCmd)
}

func runReport(ctx context.Context, path string, all bool, w io.Writer) error {
	if path == "" {
		return fmt.Errorf("--manifest is required")
	}
	store, err := manifest.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.LastRun(ctx)
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	finished := "in progress"
	if run.FinishedAt != nil {
		finished = run.FinishedAt.Local().Format(time.DateTime)
	}
	fmt.Fprintf(w, "Run %s (%s) from %s\n", run.ID, run.Dialect, run.Source)
	fmt.Fprintf(w, "  started: %s  finished: %s\n", run.StartedAt.Local().Format(time.DateTime), finished)
	fmt.Fprintf(w, "  pages: %d  converted: %d  failed: %d  unrecognized: %d  images: %d  files: %d\n",
		run.Pages, run.Converted, run.Failed, run.Unrecognized, run.Images, run.Files)

	pages, err := store.Pages(ctx, run.ID, !all)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return nil
	}
	if all {
		fmt.Fprintln(w, "\nPages:")
	} else {
		fmt.Fprintln(w, "\nFailed pages:")
	}
	for _, p := range pages {
		switch {
		case !p.OK:
			fmt.Fprintf(w, "  FAIL %s/%s: %s\n", p.Section, p.Name, p.Error)
		case p.Unrecognized > 0:
			fmt.Fprintf(w, "  ok   %s/%s %q (%d unrecognized)\n", p.Section, p.Name, p.Title, p.Unrecognized)
		default:
			fmt.Fprintf(w, "  ok   %s/%s %q\n", p.Section, p.Name, p.Title)
		}
	}
	return nil
}
