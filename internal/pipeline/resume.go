package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docweave/docweave/internal/checkpoint"
	werrors "github.com/docweave/docweave/internal/errors"
	"github.com/docweave/docweave/internal/store"
)

// Resume continues an interrupted job from the earliest phase whose
// prerequisite artifacts are still present. A stale or missing artifact
// re-executes the phase that produces it. Completed jobs cannot be
// resumed.
func (r *Runner) Resume(ctx context.Context, repoID string) (*Result, error) {
	cp, err := r.checkpoints.Get(ctx, repoID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, werrors.NotFoundError(fmt.Sprintf("No checkpoint found for '%s'", repoID), err)
		}
		return nil, werrors.InternalError("Failed to load checkpoint", err)
	}
	if cp.Status == checkpoint.StatusCompleted {
		return nil, werrors.ValidationError(fmt.Sprintf(
			"Job '%s' already completed and cannot be resumed", repoID), nil)
	}

	job := &jobState{
		repoID:     cp.RepoID,
		jobType:    cp.Type,
		sourceURL:  cp.Artifacts.SourceURL,
		owner:      cp.Artifacts.Owner,
		repoName:   cp.Artifacts.RepoName,
		totalFiles: cp.Artifacts.TotalFiles,
		totalChars: cp.Artifacts.TotalChars,
		files:      cp.Artifacts.Files,
		chapters:   cp.Artifacts.Chapters,
		markdown:   cp.Artifacts.Markdown,
		progress:   cp.Progress,
		steps:      cp.CompletedSteps,
		resumed:    true,
	}

	var from phase
	switch {
	case len(job.files) == 0:
		src, err := r.newSource(cp)
		if err != nil {
			return nil, err
		}
		job.source = src
		from = phaseIngest
	case len(job.chapters) == 0:
		from = phaseScan
	case job.markdown != "":
		// Chapters are already merged; only the PDF and completion
		// remain, so the index no longer matters.
		from = phaseMerge
	case !r.indexUsable(cp):
		from = phaseIndex
	default:
		from = phaseGenerate
	}
	if from >= phaseGenerate {
		job.indexRef = cp.Artifacts.IndexRef
		job.index = cp.Artifacts.Index
	}

	slog.Info("job_resume",
		slog.String("repo_id", repoID),
		slog.String("checkpoint_status", string(cp.Status)),
		slog.String("from", from.String()))

	return r.execute(ctx, job, from)
}

// indexUsable reloads both index artifacts and compares them against the
// checkpoint snapshot. Anything off reruns the indexing phase.
func (r *Runner) indexUsable(cp *checkpoint.Checkpoint) bool {
	ref := cp.Artifacts.IndexRef
	if ref == "" {
		return false
	}
	index, err := store.LoadFlatIndex(ref)
	if err != nil {
		slog.Warn("stale_index_artifact",
			slog.String("index", ref),
			slog.String("error", err.Error()))
		return false
	}
	if snap := cp.Artifacts.Index; snap != nil {
		if index.Count() != snap.Chunks || index.Dimensions() != snap.Dimensions {
			slog.Warn("stale_index_artifact",
				slog.String("index", ref),
				slog.Int("chunks", index.Count()),
				slog.Int("want_chunks", snap.Chunks))
			return false
		}
	}
	return true
}
