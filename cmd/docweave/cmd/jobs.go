package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/docweave/docweave/internal/checkpoint"
)

func newJobsCmd() *cobra.Command {
	var (
		jsonOutput bool
		all        bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List incomplete generation jobs",
		Long: `List generation jobs with checkpoints that have not completed.

By default only jobs updated within the configured resume window
(checkpoints.max_age, default 24h) are shown; --all lists every
incomplete checkpoint regardless of age.`,
		Example: `  # Resumable jobs
  docweave jobs

  # Everything still on disk
  docweave jobs --all

  # Machine-readable
  docweave jobs --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJobs(cmd.Context(), jsonOutput, all, limit)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&all, "all", false, "Include jobs older than the resume window")
	cmd.Flags().IntVar(&limit, "limit", checkpoint.DefaultListLimit, "Maximum number of jobs to list")

	return cmd
}

func runJobs(ctx context.Context, jsonOutput, all bool, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openCheckpoints(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	maxAge := cfg.Checkpoints.MaxAge
	if all {
		maxAge = 0
	}

	jobs, err := store.ListIncomplete(ctx, maxAge, limit)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}

	if len(jobs) == 0 {
		fmt.Println("No incomplete jobs.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REPO ID\tSTATUS\tPROGRESS\tSTEP\tUPDATED")
	for _, job := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%d%%\t%s\t%s\n",
			job.RepoID, job.Status, job.Progress,
			job.CurrentStep, relativeTime(job.LastUpdated))
	}
	return w.Flush()
}

// relativeTime renders a timestamp the way job listings read best.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("2006-01-02 15:04")
	}
}
