package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/docweave/docweave/internal/chapter"
	"github.com/docweave/docweave/internal/checkpoint"
	werrors "github.com/docweave/docweave/internal/errors"
	"github.com/docweave/docweave/internal/fetch"
	"github.com/docweave/docweave/internal/outline"
	"github.com/docweave/docweave/internal/rag"
)

type phase int

const (
	phaseIngest phase = iota
	phaseScan
	phaseIndex
	phaseGenerate
	phaseMerge
)

func (p phase) String() string {
	switch p {
	case phaseIngest:
		return "ingesting"
	case phaseScan:
		return "scanning"
	case phaseIndex:
		return "indexing"
	case phaseGenerate:
		return "generating"
	default:
		return "merging"
	}
}

// downloadReporter is implemented by sources that report per-file
// download progress.
type downloadReporter interface {
	SetProgress(func(done, total int))
}

// jobState accumulates artifacts as phases complete. One run owns one
// jobState; nothing here is shared between goroutines.
type jobState struct {
	repoID    string
	jobType   string
	source    fetch.Source
	sourceURL string

	owner      string
	repoName   string
	totalFiles int
	totalChars int

	files    []fetch.CorpusFile
	chapters []outline.Chapter
	indexRef string
	index    *checkpoint.IndexSnapshot
	contents []string
	markdown string
	pdfRef   string

	warnings []string
	progress int
	steps    int

	// Resumed jobs exist because the caller depends on the checkpoint
	// store, so save failures turn fatal for them.
	resumed bool
}

// artifacts snapshots everything accumulated so far. Checkpoint saves
// replace the artifact document wholesale, so every save carries the
// full set.
func (j *jobState) artifacts() *checkpoint.Artifacts {
	return &checkpoint.Artifacts{
		SourceURL:  j.sourceURL,
		Owner:      j.owner,
		RepoName:   j.repoName,
		TotalFiles: j.totalFiles,
		TotalChars: j.totalChars,
		Files:      j.files,
		Chapters:   j.chapters,
		IndexRef:   j.indexRef,
		Index:      j.index,
		Markdown:   j.markdown,
		PDFRef:     j.pdfRef,
	}
}

// Run executes a full documentation job. Fatal errors mark the
// checkpoint failed and are returned. Cancellation is not failure: the
// checkpoint keeps its in-flight phase so the job can resume later.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Source == nil {
		return nil, werrors.ValidationError("A corpus source is required", nil)
	}
	job := &jobState{
		repoID:    req.RepoID,
		source:    req.Source,
		sourceURL: req.SourceURL,
	}
	return r.execute(ctx, job, phaseIngest)
}

func (r *Runner) execute(ctx context.Context, job *jobState, from phase) (*Result, error) {
	start := time.Now()
	slog.Info("job_started",
		slog.String("repo_id", job.repoID),
		slog.String("phase", from.String()),
		slog.Bool("resumed", job.resumed))

	for p := from; p <= phaseMerge; p++ {
		if err := ctx.Err(); err != nil {
			return nil, r.interrupt(ctx, job, err)
		}
		var err error
		switch p {
		case phaseIngest:
			err = r.ingest(ctx, job)
		case phaseScan:
			err = r.plan(ctx, job)
		case phaseIndex:
			err = r.buildIndex(ctx, job)
		case phaseGenerate:
			err = r.generate(ctx, job)
		case phaseMerge:
			err = r.finish(ctx, job)
		}
		if err != nil {
			return nil, r.fail(ctx, job, err)
		}
	}

	duration := time.Since(start)
	slog.Info("job_completed",
		slog.String("repo_id", job.repoID),
		slog.Int("files", len(job.files)),
		slog.Int("chapters", len(job.chapters)),
		slog.Bool("pdf", job.pdfRef != ""),
		slog.Duration("duration", duration))

	return &Result{
		RepoID:   job.repoID,
		Markdown: job.markdown,
		PDFRef:   job.pdfRef,
		Chapters: job.chapters,
		RepoInfo: RepoInfo{
			Owner:      job.owner,
			RepoName:   job.repoName,
			TotalFiles: job.totalFiles,
			TotalChars: job.totalChars,
		},
		DurationSeconds: math.Round(duration.Seconds()*100) / 100,
		Warnings:        job.warnings,
	}, nil
}

// ingest acquires the corpus. Download progress from the source maps
// onto the 10..20 band.
func (r *Runner) ingest(ctx context.Context, job *jobState) error {
	if job.repoID != "" {
		if err := r.transition(ctx, job, checkpoint.StatusIngesting, progressIngestStart, "Downloading repository files"); err != nil {
			return err
		}
	} else {
		// No checkpoint key until the corpus names itself.
		r.emit(job, checkpoint.StatusIngesting, progressIngestStart, "Downloading repository files")
	}

	if reporter, ok := job.source.(downloadReporter); ok {
		reporter.SetProgress(func(done, total int) {
			if total <= 0 {
				return
			}
			pct := progressDownloadBase + done*(progressIngestDone-progressDownloadBase)/total
			r.emit(job, checkpoint.StatusIngesting, pct,
				fmt.Sprintf("Downloading files (%d/%d)", done, total))
		})
	}

	corpus, err := job.source.Fetch(ctx)
	if err != nil {
		return err
	}
	if len(corpus.Included) == 0 {
		return werrors.ValidationError("No files could be downloaded from repository", nil)
	}

	if job.repoID == "" {
		job.repoID = corpus.RepoID
	}
	job.jobType = string(corpus.Source)
	job.owner = corpus.Owner
	job.repoName = corpus.RepoName
	job.totalFiles = corpus.TotalFiles
	job.totalChars = corpus.TotalChars
	job.files = corpus.Included
	job.warnings = append(job.warnings, corpus.Warnings...)

	slog.Info("corpus_ingested",
		slog.String("repo_id", job.repoID),
		slog.String("owner", job.owner),
		slog.String("repo", job.repoName),
		slog.Int("files", len(job.files)),
		slog.Int("total_chars", job.totalChars))

	return r.transition(ctx, job, checkpoint.StatusScanning, progressIngestDone, "Scanning repository structure")
}

func (r *Runner) plan(ctx context.Context, job *jobState) error {
	chapters, err := r.planner.Plan(ctx, job.files, job.owner, job.repoName)
	if err != nil {
		return err
	}
	job.chapters = chapters

	slog.Info("outline_ready",
		slog.String("repo_id", job.repoID),
		slog.Int("chapters", len(chapters)))

	return r.transition(ctx, job, checkpoint.StatusIndexing, progressScanDone, "Building vector index")
}

// buildIndex embeds the corpus into a fresh index. Embedding progress
// maps onto the 30..45 band.
func (r *Runner) buildIndex(ctx context.Context, job *jobState) error {
	res, err := r.indexer.Build(ctx, job.repoID, job.files, rag.BuildOptions{
		OnProgress: func(done, total int) {
			if total <= 0 {
				return
			}
			pct := progressScanDone + done*(progressIndexDone-progressScanDone)/total
			r.emit(job, checkpoint.StatusIndexing, pct,
				fmt.Sprintf("Embedding chunks (%d/%d)", done, total))
		},
	})
	if err != nil {
		return err
	}
	job.indexRef = res.IndexRef
	job.index = &checkpoint.IndexSnapshot{Chunks: len(res.Meta), Dimensions: res.Dimensions}
	job.warnings = append(job.warnings, res.Warnings...)

	return r.transition(ctx, job, checkpoint.StatusGenerating, progressIndexDone, "Generating documentation")
}

// generate writes the chapters sequentially. Finished-chapter counts map
// onto the 50..90 band; each completed chapter is recorded on the
// checkpoint so a crash resumes with an accurate count.
func (r *Runner) generate(ctx context.Context, job *jobState) error {
	total := len(job.chapters)
	contents := make([]string, 0, total)
	job.steps = 0

	for i, ch := range job.chapters {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := fmt.Sprintf("Generating chapter %d/%d: %s", i+1, total, ch.Title)
		r.emit(job, checkpoint.StatusGenerating, chapterProgress(i, total), step)

		content, err := r.chapters.Generate(ctx, ch, job.indexRef, job.repoName, i+1, total)
		if err != nil {
			return err
		}
		contents = append(contents, content)
		job.steps = i + 1

		patch := checkpoint.Patch{
			Progress:       checkpoint.Ptr(chapterProgress(job.steps, total)),
			CurrentStep:    checkpoint.Ptr(step),
			CompletedSteps: checkpoint.Ptr(job.steps),
		}
		if err := r.saveCheckpoint(ctx, job, patch); err != nil {
			return err
		}
	}

	job.contents = contents
	return r.transition(ctx, job, checkpoint.StatusMerging, progressMerging, "Merging documentation")
}

// finish merges the chapters, requests the PDF, and retires the
// checkpoint.
func (r *Runner) finish(ctx context.Context, job *jobState) error {
	if job.markdown == "" {
		job.markdown = chapter.Merge(job.owner, job.repoName, job.chapters, job.contents, time.Now())
	}

	// Persist the markdown before the PDF call so a crash in rendering
	// resumes here instead of regenerating every chapter.
	if err := r.saveCheckpoint(ctx, job, checkpoint.Patch{Artifacts: job.artifacts()}); err != nil {
		return err
	}

	job.pdfRef = r.renderPDF(ctx, job)
	if err := ctx.Err(); err != nil {
		return err
	}

	if job.repoID != "" {
		stable := context.WithoutCancel(ctx)
		if err := r.checkpoints.MarkCompleted(stable, job.repoID); err != nil {
			slog.Warn("checkpoint_mark_completed_failed",
				slog.String("repo_id", job.repoID),
				slog.String("error", err.Error()))
		}
		if err := r.checkpoints.Delete(stable, job.repoID); err != nil {
			slog.Warn("checkpoint_delete_failed",
				slog.String("repo_id", job.repoID),
				slog.String("error", err.Error()))
		}
	}

	r.emit(job, checkpoint.StatusCompleted, progressCompleted, "Completed")
	return nil
}

// renderPDF is best-effort: any failure leaves the reference empty and
// the job completes without a PDF.
func (r *Runner) renderPDF(ctx context.Context, job *jobState) string {
	if r.cfg.UploadDir == "" {
		slog.Debug("pdf_output_dir_not_configured")
		return ""
	}
	filename := fmt.Sprintf("repo-doc-%s-%d.pdf", job.repoID, time.Now().Unix())
	outputPath := filepath.Join(r.cfg.UploadDir, filename)

	if err := os.MkdirAll(r.cfg.UploadDir, 0o755); err != nil {
		slog.Error("pdf_generation_failed",
			slog.String("repo_id", job.repoID),
			slog.String("error", err.Error()))
		return ""
	}
	if err := r.pdf.Render(ctx, job.markdown, outputPath); err != nil {
		slog.Error("pdf_generation_failed",
			slog.String("repo_id", job.repoID),
			slog.String("error", err.Error()))
		return ""
	}
	if _, err := os.Stat(outputPath); err != nil {
		// A renderer may accept the request without producing a file.
		return ""
	}

	slog.Info("pdf_generated", slog.String("path", outputPath))
	return "/uploads/" + filename
}

// chapterProgress maps finished-chapter counts onto the 50..90 band.
func chapterProgress(done, total int) int {
	if total <= 0 {
		return progressChapterBase
	}
	return progressChapterBase + done*(progressMerging-progressChapterBase)/total
}

// transition persists a phase boundary and emits its progress event.
func (r *Runner) transition(ctx context.Context, job *jobState, status checkpoint.Status, pct int, step string) error {
	if pct < job.progress {
		pct = job.progress
	}
	patch := checkpoint.Patch{
		Type:           checkpoint.Ptr(job.jobType),
		Status:         checkpoint.Ptr(status),
		Progress:       checkpoint.Ptr(pct),
		CurrentStep:    checkpoint.Ptr(step),
		TotalSteps:     checkpoint.Ptr(len(job.chapters)),
		CompletedSteps: checkpoint.Ptr(job.steps),
		Artifacts:      job.artifacts(),
	}
	if err := r.saveCheckpoint(ctx, job, patch); err != nil {
		return err
	}
	r.emit(job, status, pct, step)
	return nil
}

// saveCheckpoint persists job state. Saves are best-effort for fresh
// runs and fatal for resumed ones.
func (r *Runner) saveCheckpoint(ctx context.Context, job *jobState, patch checkpoint.Patch) error {
	if job.repoID == "" {
		return nil
	}
	err := r.checkpoints.Save(ctx, job.repoID, patch)
	if err == nil {
		return nil
	}
	if job.resumed {
		return werrors.InternalError("Failed to persist checkpoint for resumed job", err)
	}
	slog.Warn("checkpoint_save_failed",
		slog.String("repo_id", job.repoID),
		slog.String("error", err.Error()))
	return nil
}

// emit publishes a progress event, clamped so progress never decreases.
func (r *Runner) emit(job *jobState, status checkpoint.Status, pct int, step string) {
	if pct < job.progress {
		pct = job.progress
	}
	job.progress = pct
	r.progress.Publish(Event{
		RepoID:         job.repoID,
		Type:           job.jobType,
		Status:         status,
		Progress:       pct,
		CurrentStep:    step,
		TotalSteps:     len(job.chapters),
		CompletedSteps: job.steps,
		FileCount:      len(job.files),
	})
}

// fail records a fatal error on the checkpoint, which is retained for
// diagnostics. Cancellation routes to interrupt instead.
func (r *Runner) fail(ctx context.Context, job *jobState, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return r.interrupt(ctx, job, err)
	}

	slog.Error("job_failed",
		slog.String("repo_id", job.repoID),
		slog.String("error", err.Error()))

	if job.repoID != "" {
		if mErr := r.checkpoints.MarkFailed(context.WithoutCancel(ctx), job.repoID, err.Error()); mErr != nil {
			slog.Warn("checkpoint_mark_failed",
				slog.String("repo_id", job.repoID),
				slog.String("error", mErr.Error()))
		}
	}
	r.progress.Publish(Event{
		RepoID:      job.repoID,
		Type:        job.jobType,
		Status:      checkpoint.StatusFailed,
		Progress:    job.progress,
		CurrentStep: "Failed",
		Error:       err.Error(),
	})
	return err
}

// interrupt persists in-flight state when the context dies. The
// checkpoint keeps the phase recorded at the last transition, so a
// resume re-enters there.
func (r *Runner) interrupt(ctx context.Context, job *jobState, err error) error {
	slog.Info("job_interrupted",
		slog.String("repo_id", job.repoID),
		slog.Int("progress", job.progress))

	if job.repoID != "" {
		patch := checkpoint.Patch{
			Progress:       checkpoint.Ptr(job.progress),
			CompletedSteps: checkpoint.Ptr(job.steps),
			Artifacts:      job.artifacts(),
		}
		if sErr := r.checkpoints.Save(context.WithoutCancel(ctx), job.repoID, patch); sErr != nil {
			slog.Warn("checkpoint_save_failed",
				slog.String("repo_id", job.repoID),
				slog.String("error", sErr.Error()))
		}
	}
	return err
}
