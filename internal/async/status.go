package async

import (
	"time"

	"github.com/docweave/docweave/internal/checkpoint"
)

// JobSnapshot is an immutable snapshot of one job's state, shaped for
// JSON status responses.
type JobSnapshot struct {
	RepoID         string `json:"repo_id"`
	Type           string `json:"type,omitempty"`
	Running        bool   `json:"running"`
	Resumed        bool   `json:"resumed,omitempty"`
	Status         string `json:"status"`
	Progress       int    `json:"progress"`
	CurrentStep    string `json:"current_step,omitempty"`
	TotalSteps     int    `json:"total_steps,omitempty"`
	CompletedSteps int    `json:"completed_steps,omitempty"`
	FileCount      int    `json:"file_count,omitempty"`
	ElapsedSeconds int    `json:"elapsed_seconds"`
	Error          string `json:"error,omitempty"`
}

// Snapshot returns an immutable copy of the job's current state. Before
// the first runner event arrives the status reads pending.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	status := string(j.latest.Status)
	if status == "" {
		status = string(checkpoint.StatusPending)
	}

	// Cancelled jobs never publish a failed event, so surface the run
	// error when the last event carries none.
	errMsg := j.latest.Error
	if errMsg == "" && j.err != nil {
		errMsg = j.err.Error()
	}

	end := j.finished
	if end.IsZero() {
		end = time.Now()
	}

	return JobSnapshot{
		RepoID:         j.repoID,
		Type:           j.latest.Type,
		Running:        j.running,
		Resumed:        j.resumed,
		Status:         status,
		Progress:       j.latest.Progress,
		CurrentStep:    j.latest.CurrentStep,
		TotalSteps:     j.latest.TotalSteps,
		CompletedSteps: j.latest.CompletedSteps,
		FileCount:      j.latest.FileCount,
		ElapsedSeconds: int(end.Sub(j.started).Seconds()),
		Error:          errMsg,
	}
}
