package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	werrors "github.com/docweave/docweave/internal/errors"
	"github.com/docweave/docweave/internal/ui"
)

func newResumeCmd() *cobra.Command {
	var (
		output string
		plain  bool
	)

	cmd := &cobra.Command{
		Use:   "resume <repo_id>",
		Short: "Resume an interrupted generation job",
		Long: `Continue a generation job from its last checkpoint.

The job picks up at the earliest phase whose artifacts are missing:
stored corpus files skip ingestion, a stored outline skips planning, a
valid index skips embedding, and stored markdown goes straight to the
merge. Completed jobs cannot be resumed.

List resumable jobs with 'docweave jobs'.`,
		Example: `  docweave resume acme_tool_1756180000`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd.Context(), args[0], output, plain)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Markdown output path (default <repo>-documentation.md)")
	cmd.Flags().BoolVar(&plain, "plain", false, "Plain line-per-event output instead of the TUI")

	return cmd
}

func runResume(ctx context.Context, repoID, output string, plain bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	renderer := ui.NewRenderer(ui.NewConfig(os.Stdout,
		ui.WithForcePlain(plain),
		ui.WithRepoName(repoID)))
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	s, err := newStack(ctx, cfg, stackOptions{
		runner:   true,
		progress: &rendererSink{renderer: renderer},
	})
	if err != nil {
		return err
	}
	defer s.Close()

	start := time.Now()
	result, err := s.runner.Resume(ctx, repoID)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "\nGeneration interrupted again. The checkpoint is preserved.")
			return err
		}
		renderer.AddError(ui.ErrorEvent{Err: err})
		return fmt.Errorf("%s", werrors.FormatForCLI(err))
	}

	outPath := output
	if outPath == "" {
		outPath = defaultOutputPath(result)
	}
	if err := os.WriteFile(outPath, []byte(result.Markdown), 0o644); err != nil {
		return fmt.Errorf("failed to write markdown: %w", err)
	}

	renderer.Complete(ui.CompletionStats{
		Files:        result.RepoInfo.TotalFiles,
		Chapters:     len(result.Chapters),
		Duration:     time.Since(start),
		Warnings:     len(result.Warnings),
		MarkdownPath: outPath,
		PDFPath:      result.PDFRef,
	})
	return nil
}
