package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docweave/docweave/internal/checkpoint"
	"github.com/docweave/docweave/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status <repo_id>",
		Short: "Show the state of a generation job",
		Long: `Display a generation job's checkpoint: status, progress, current
step, chapter counts, and which artifacts have been produced so far.

Completed jobs delete their checkpoint, so status only covers jobs
that are running, interrupted, or failed.`,
		Example: `  docweave status acme_tool_1756180000
  docweave status acme_tool_1756180000 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, repoID string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openCheckpoints(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	cp, err := store.Get(ctx, repoID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return fmt.Errorf("no generation found for '%s'\nCompleted jobs remove their checkpoint; see 'docweave jobs' for incomplete ones", repoID)
		}
		return fmt.Errorf("failed to read checkpoint: %w", err)
	}

	info := statusInfo(cp)

	renderer := ui.NewStatusRenderer(os.Stdout, ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

// statusInfo shapes a checkpoint for display.
func statusInfo(cp *checkpoint.Checkpoint) ui.StatusInfo {
	info := ui.StatusInfo{
		RepoID:      cp.RepoID,
		Type:        cp.Type,
		Status:      string(cp.Status),
		Progress:    cp.Progress,
		CurrentStep: cp.CurrentStep,
		Chapters:    cp.CompletedSteps,
		TotalSteps:  cp.TotalSteps,
		Files:       len(cp.Artifacts.Files),
		StartedAt:   cp.StartedAt,
		LastUpdated: cp.LastUpdated,
		Error:       cp.Error,
	}

	if cp.Artifacts.Markdown != "" {
		info.MarkdownSize = int64(len(cp.Artifacts.Markdown))
	}
	if cp.Artifacts.PDFRef != "" {
		info.PDFPath = cp.Artifacts.PDFRef
	}
	if ref := cp.Artifacts.IndexRef; ref != "" {
		info.IndexPath = ref
		if st, err := os.Stat(ref); err == nil {
			info.IndexSize = st.Size()
		}
	}
	return info
}
