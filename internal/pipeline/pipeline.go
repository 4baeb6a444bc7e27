// Package pipeline orchestrates the repository-to-documentation flow:
// ingest a corpus, plan an outline, build the vector index, generate
// chapters, merge, and hand the result to the PDF renderer. Every phase
// transition persists a checkpoint and emits a progress event, so
// interrupted jobs can resume from the last completed phase.
package pipeline

import (
	"context"
	"fmt"

	"github.com/docweave/docweave/internal/checkpoint"
	werrors "github.com/docweave/docweave/internal/errors"
	"github.com/docweave/docweave/internal/fetch"
	"github.com/docweave/docweave/internal/outline"
	"github.com/docweave/docweave/internal/rag"
)

// Progress anchors for each phase. Values between anchors are
// interpolated from the phase's own progress (download count, embedded
// chunks, finished chapters). Progress never decreases within a run.
const (
	progressIngestStart  = 5
	progressDownloadBase = 10
	progressIngestDone   = 20
	progressScanDone     = 30
	progressIndexDone    = 45
	progressChapterBase  = 50
	progressMerging      = 90
	progressCompleted    = 100
)

// Planner produces the chapter outline for a corpus.
type Planner interface {
	Plan(ctx context.Context, files []fetch.CorpusFile, owner, repoName string) ([]outline.Chapter, error)
}

// Indexer builds the vector index artifacts for a corpus.
type Indexer interface {
	Build(ctx context.Context, repoID string, files []fetch.CorpusFile, opts rag.BuildOptions) (*rag.BuildResult, error)
}

// ChapterWriter generates the markdown for one chapter.
type ChapterWriter interface {
	Generate(ctx context.Context, ch outline.Chapter, indexRef, repoName string, number, total int) (string, error)
}

// PDFRenderer converts merged markdown into a PDF file at outputPath.
// Rendering is best-effort: failures never fail the job, they only leave
// the PDF reference absent.
type PDFRenderer interface {
	Render(ctx context.Context, markdown, outputPath string) error
}

// Event is one progress update from a running job.
type Event struct {
	RepoID         string            `json:"repo_id"`
	Type           string            `json:"type"`
	Status         checkpoint.Status `json:"status"`
	Progress       int               `json:"progress"`
	CurrentStep    string            `json:"current_step"`
	TotalSteps     int               `json:"total_steps,omitempty"`
	CompletedSteps int               `json:"completed_steps,omitempty"`
	FileCount      int               `json:"file_count,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// ProgressSink receives progress events. Publish is called inline from
// the job goroutine and must not block.
type ProgressSink interface {
	Publish(Event)
}

type nopSink struct{}

func (nopSink) Publish(Event) {}

type multiSink []ProgressSink

func (s multiSink) Publish(e Event) {
	for _, sink := range s {
		sink.Publish(e)
	}
}

// MultiSink fans each event out to every sink, in order.
func MultiSink(sinks ...ProgressSink) ProgressSink {
	return multiSink(sinks)
}

// Config tunes runner behavior.
type Config struct {
	// UploadDir receives rendered PDFs. Served references use the
	// /uploads/ prefix.
	UploadDir string

	// GitHub configures corpus re-fetching when a resumed job has no
	// stored files.
	GitHub fetch.GitHubConfig
}

// Request describes one documentation job.
type Request struct {
	// RepoID keys the job, its checkpoint, and its index artifacts.
	// Derived from the fetched corpus when empty.
	RepoID string

	// Source produces the corpus (required).
	Source fetch.Source

	// SourceURL is the repository reference behind Source, when there is
	// one. Persisted so an interrupted GitHub job can re-fetch on resume.
	SourceURL string
}

// RepoInfo identifies the documented repository. Totals count what the
// fetch selector admitted, before download failures.
type RepoInfo struct {
	Owner      string `json:"owner"`
	RepoName   string `json:"repo_name"`
	TotalFiles int    `json:"total_files"`
	TotalChars int    `json:"total_chars"`
}

// Result is the final output of a documentation job.
type Result struct {
	RepoID          string            `json:"repo_id"`
	Markdown        string            `json:"markdown"`
	PDFRef          string            `json:"pdf_ref,omitempty"`
	Chapters        []outline.Chapter `json:"chapters"`
	RepoInfo        RepoInfo          `json:"repo_info"`
	DurationSeconds float64           `json:"duration_seconds"`
	Warnings        []string          `json:"warnings,omitempty"`
}

// Dependencies contains the injected collaborators for Runner.
type Dependencies struct {
	// Planner produces the chapter outline (required).
	Planner Planner

	// Indexer builds vector index artifacts (required).
	Indexer Indexer

	// Chapters writes individual chapters (required).
	Chapters ChapterWriter

	// Checkpoints persists job state at phase boundaries. Defaults to
	// checkpoint.NopStore.
	Checkpoints checkpoint.Store

	// PDF renders the merged markdown. Defaults to NopRenderer.
	PDF PDFRenderer

	// Progress receives job progress events. Defaults to a no-op sink.
	Progress ProgressSink

	// Config tunes run behavior.
	Config Config
}

// Runner executes documentation jobs with checkpointing and progress
// reporting. It accepts injected dependencies for testability.
type Runner struct {
	planner     Planner
	indexer     Indexer
	chapters    ChapterWriter
	checkpoints checkpoint.Store
	pdf         PDFRenderer
	progress    ProgressSink
	cfg         Config

	// newSource reconstructs a corpus source for resumed jobs whose
	// files are gone from the checkpoint.
	newSource func(cp *checkpoint.Checkpoint) (fetch.Source, error)
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(deps Dependencies) (*Runner, error) {
	if deps.Planner == nil {
		return nil, fmt.Errorf("planner is required")
	}
	if deps.Indexer == nil {
		return nil, fmt.Errorf("indexer is required")
	}
	if deps.Chapters == nil {
		return nil, fmt.Errorf("chapter writer is required")
	}

	checkpoints := deps.Checkpoints
	if checkpoints == nil {
		checkpoints = checkpoint.NopStore{}
	}
	pdf := deps.PDF
	if pdf == nil {
		pdf = NopRenderer{}
	}
	progress := deps.Progress
	if progress == nil {
		progress = nopSink{}
	}

	r := &Runner{
		planner:     deps.Planner,
		indexer:     deps.Indexer,
		chapters:    deps.Chapters,
		checkpoints: checkpoints,
		pdf:         pdf,
		progress:    progress,
		cfg:         deps.Config,
	}
	r.newSource = r.refetchSource
	return r, nil
}

// refetchSource rebuilds a source from checkpoint metadata. Only GitHub
// corpora carry a reference that can be fetched again; uploaded archives
// and local directories are gone once their bytes are.
func (r *Runner) refetchSource(cp *checkpoint.Checkpoint) (fetch.Source, error) {
	if cp.Type != string(fetch.SourceGitHub) || cp.Artifacts.SourceURL == "" {
		return nil, werrors.ValidationError(fmt.Sprintf(
			"Job '%s' has no stored corpus files and its source cannot be fetched again. Start a new generation instead.",
			cp.RepoID), nil)
	}
	return fetch.NewGitHubSource(cp.Artifacts.SourceURL, r.cfg.GitHub)
}
