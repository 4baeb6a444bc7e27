// Package checkpoint persists per-repository job state so interrupted
// documentation runs can resume from the last completed phase.
//
// Writes are idempotent upserts keyed by repo_id, and saves are best-effort
// by contract: the pipeline treats a failed save as a warning unless the
// caller asked to resume. Three backends share the Store interface: SQLite
// for the default local setup, Postgres for shared deployments, and Nop
// when checkpointing is disabled.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/docweave/docweave/internal/fetch"
	"github.com/docweave/docweave/internal/outline"
)

// ErrNotFound reports that no checkpoint exists for the repository.
var ErrNotFound = errors.New("checkpoint not found")

// DefaultListLimit caps ListIncomplete when the caller passes no limit.
const DefaultListLimit = 100

// Status is the job phase recorded in the checkpoint.
type Status string

const (
	StatusPending    Status = "pending"
	StatusIngesting  Status = "ingesting"
	StatusScanning   Status = "scanning"
	StatusIndexing   Status = "indexing"
	StatusGenerating Status = "generating"
	StatusMerging    Status = "merging"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status ends the job.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IndexSnapshot is the compact description of a built index, enough to
// revalidate the on-disk artifacts when resuming.
type IndexSnapshot struct {
	Chunks     int `json:"chunks"`
	Dimensions int `json:"dimensions"`
}

// Artifacts holds the phase outputs a resumed run can pick up instead of
// recomputing.
type Artifacts struct {
	SourceURL  string             `json:"source_url,omitempty"`
	Owner      string             `json:"owner,omitempty"`
	RepoName   string             `json:"repo_name,omitempty"`
	TotalFiles int                `json:"total_files,omitempty"`
	TotalChars int                `json:"total_chars,omitempty"`
	Files      []fetch.CorpusFile `json:"files,omitempty"`
	Chapters   []outline.Chapter  `json:"chapters,omitempty"`
	IndexRef   string             `json:"index_ref,omitempty"`
	Index      *IndexSnapshot     `json:"index,omitempty"`
	Markdown   string             `json:"markdown,omitempty"`
	PDFRef     string             `json:"pdf_ref,omitempty"`
}

// Checkpoint is one job's persisted state.
type Checkpoint struct {
	RepoID         string    `json:"repo_id"`
	Type           string    `json:"type"`
	Status         Status    `json:"status"`
	Progress       int       `json:"progress"`
	CurrentStep    string    `json:"current_step"`
	TotalSteps     int       `json:"total_steps"`
	CompletedSteps int       `json:"completed_steps"`
	StartedAt      time.Time `json:"started_at"`
	LastUpdated    time.Time `json:"last_updated"`
	Error          string    `json:"error,omitempty"`
	Artifacts      Artifacts `json:"artifacts"`
}

// Patch is a partial checkpoint update. Nil fields keep their stored
// values; Artifacts replaces the stored artifacts wholesale when set.
type Patch struct {
	Type           *string
	Status         *Status
	Progress       *int
	CurrentStep    *string
	TotalSteps     *int
	CompletedSteps *int
	Error          *string
	Artifacts      *Artifacts
}

// Ptr returns a pointer to v, for building patches inline.
func Ptr[T any](v T) *T { return &v }

// Store persists checkpoints.
type Store interface {
	// Save upserts the patch for repoID. The stored progress never
	// decreases and started_at is set only on first insert.
	Save(ctx context.Context, repoID string, patch Patch) error

	// Get returns the latest snapshot, or ErrNotFound.
	Get(ctx context.Context, repoID string) (*Checkpoint, error)

	// ListIncomplete returns jobs with a non-terminal status whose
	// last_updated falls within maxAge, newest first. A non-positive
	// maxAge means no age bound; a non-positive limit selects the
	// default.
	ListIncomplete(ctx context.Context, maxAge time.Duration, limit int) ([]*Checkpoint, error)

	// MarkCompleted sets the terminal success status and progress 100.
	MarkCompleted(ctx context.Context, repoID string) error

	// MarkFailed sets the terminal failure status with the error message.
	// The checkpoint is retained for inspection and resume.
	MarkFailed(ctx context.Context, repoID, message string) error

	// Delete removes the checkpoint.
	Delete(ctx context.Context, repoID string) error

	Close() error
}

// NopStore satisfies Store without persisting anything, for runs with
// checkpointing disabled.
type NopStore struct{}

func (NopStore) Save(context.Context, string, Patch) error { return nil }

func (NopStore) Get(context.Context, string) (*Checkpoint, error) { return nil, ErrNotFound }

func (NopStore) ListIncomplete(context.Context, time.Duration, int) ([]*Checkpoint, error) {
	return nil, nil
}

func (NopStore) MarkCompleted(context.Context, string) error { return nil }

func (NopStore) MarkFailed(context.Context, string, string) error { return nil }

func (NopStore) Delete(context.Context, string) error { return nil }

func (NopStore) Close() error { return nil }
