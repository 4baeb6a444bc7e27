// Package async runs documentation jobs in background goroutines with
// cross-process locking and an in-memory registry for status lookups
// and cancellation.
package async

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	werrors "github.com/docweave/docweave/internal/errors"
	"github.com/docweave/docweave/internal/pipeline"
)

// JobRunner executes documentation jobs. *pipeline.Runner satisfies it.
type JobRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Resume(ctx context.Context, repoID string) (*pipeline.Result, error)
}

// ManagerConfig configures the Manager.
type ManagerConfig struct {
	// DataDir holds per-repository lock files under locks/.
	DataDir string
}

// Manager tracks background documentation jobs keyed by repository ID.
// It implements pipeline.ProgressSink so runner events land on the
// registry as they happen.
type Manager struct {
	config ManagerConfig

	// Runner executes submitted jobs.
	// This can be injected for testing.
	Runner JobRunner

	mu   sync.Mutex
	jobs map[string]*Job
}

// NewManager creates a manager with no running jobs.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		config: cfg,
		jobs:   make(map[string]*Job),
	}
}

// Job is one background documentation run.
type Job struct {
	repoID  string
	resumed bool
	lock    *JobLock
	started time.Time

	// Lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}

	mu       sync.Mutex
	running  bool
	stopped  bool
	finished time.Time
	latest   pipeline.Event
	result   *pipeline.Result
	err      error
}

// Submit starts a documentation job in a background goroutine and
// returns immediately. The job runs detached from the caller's context;
// Cancel or Shutdown stops it. The request must carry a repository ID
// so the job can be tracked and locked before the corpus is fetched.
func (m *Manager) Submit(req pipeline.Request) (*Job, error) {
	if req.RepoID == "" {
		return nil, werrors.ValidationError("A repository ID is required to submit a job", nil)
	}
	return m.start(req.RepoID, false, func(ctx context.Context) (*pipeline.Result, error) {
		return m.Runner.Run(ctx, req)
	})
}

// Resume continues an interrupted job from its checkpoint in a
// background goroutine.
func (m *Manager) Resume(repoID string) (*Job, error) {
	if repoID == "" {
		return nil, werrors.ValidationError("A repository ID is required to resume a job", nil)
	}
	return m.start(repoID, true, func(ctx context.Context) (*pipeline.Result, error) {
		return m.Runner.Resume(ctx, repoID)
	})
}

func (m *Manager) start(repoID string, resumed bool, fn func(context.Context) (*pipeline.Result, error)) (*Job, error) {
	if m.Runner == nil {
		return nil, werrors.InternalError("No job runner configured", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.jobs[repoID]; ok && existing.IsRunning() {
		return nil, werrors.ValidationError(fmt.Sprintf("A job for '%s' is already running", repoID), nil)
	}

	lock := NewJobLock(m.config.DataDir, repoID)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, werrors.InternalError(fmt.Sprintf("Failed to acquire job lock for '%s'", repoID), err)
	}
	if !acquired {
		return nil, werrors.ValidationError(fmt.Sprintf("A job for '%s' is already running in another process", repoID), nil)
	}

	job := &Job{
		repoID:  repoID,
		resumed: resumed,
		lock:    lock,
		started: time.Now(),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		running: true,
	}
	m.jobs[repoID] = job

	go job.run(fn)
	return job, nil
}

// run executes the job in the background.
func (j *Job) run(fn func(context.Context) (*pipeline.Result, error)) {
	defer close(j.doneCh)
	defer func() { _ = j.lock.Unlock() }()
	defer func() {
		j.mu.Lock()
		j.running = false
		j.finished = time.Now()
		j.mu.Unlock()
	}()

	// Jobs outlive the request that submitted them; the stop channel is
	// the only cancellation path.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-j.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	res, err := fn(ctx)

	j.mu.Lock()
	j.result = res
	j.err = err
	j.mu.Unlock()
}

// Publish implements pipeline.ProgressSink, routing runner events to
// the job registry by repository ID. Events for unknown jobs are
// dropped.
func (m *Manager) Publish(e pipeline.Event) {
	if e.RepoID == "" {
		return
	}
	m.mu.Lock()
	job, ok := m.jobs[e.RepoID]
	m.mu.Unlock()
	if !ok {
		return
	}
	job.mu.Lock()
	job.latest = e
	job.mu.Unlock()
}

// Get returns the job for repoID if the manager knows it.
func (m *Manager) Get(repoID string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[repoID]
	return job, ok
}

// Status reports the latest snapshot for one repository.
func (m *Manager) Status(repoID string) (JobSnapshot, bool) {
	job, ok := m.Get(repoID)
	if !ok {
		return JobSnapshot{}, false
	}
	return job.Snapshot(), true
}

// Jobs returns snapshots of every known job, newest first.
func (m *Manager) Jobs() []JobSnapshot {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].started.After(jobs[b].started)
	})
	out := make([]JobSnapshot, len(jobs))
	for i, j := range jobs {
		out[i] = j.Snapshot()
	}
	return out
}

// Cancel signals a running job to stop. It does not wait for the job
// to finish; the checkpoint keeps its in-flight state for a resume.
func (m *Manager) Cancel(repoID string) error {
	job, ok := m.Get(repoID)
	if !ok {
		return werrors.NotFoundError(fmt.Sprintf("No job found for '%s'", repoID), nil)
	}
	if !job.IsRunning() {
		return werrors.ValidationError(fmt.Sprintf("Job '%s' has already finished", repoID), nil)
	}
	job.signalStop()
	return nil
}

// Remove forgets a finished job so it no longer appears in listings.
// Unknown IDs are a no-op; running jobs must be cancelled first.
func (m *Manager) Remove(repoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[repoID]
	if !ok {
		return nil
	}
	if job.IsRunning() {
		return werrors.ValidationError(fmt.Sprintf("Job '%s' is still running; cancel it first", repoID), nil)
	}
	delete(m.jobs, repoID)
	return nil
}

// Wait blocks until the job for repoID finishes and returns its result.
func (m *Manager) Wait(repoID string) (*pipeline.Result, error) {
	job, ok := m.Get(repoID)
	if !ok {
		return nil, werrors.NotFoundError(fmt.Sprintf("No job found for '%s'", repoID), nil)
	}
	return job.Wait()
}

// Shutdown stops every running job and waits for them to finish, or
// returns ctx's error if it expires first.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	for _, j := range jobs {
		j.signalStop()
	}
	for _, j := range jobs {
		select {
		case <-j.doneCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// RepoID returns the repository the job operates on.
func (j *Job) RepoID() string { return j.repoID }

// IsRunning returns true while the job goroutine is alive.
func (j *Job) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// Done is closed when the job finishes.
func (j *Job) Done() <-chan struct{} { return j.doneCh }

// Wait blocks until the job completes and returns its result.
func (j *Job) Wait() (*pipeline.Result, error) {
	<-j.doneCh
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// Stop signals the job to stop and waits for it to finish.
func (j *Job) Stop() {
	j.signalStop()
	<-j.doneCh
}

func (j *Job) signalStop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stopped {
		return
	}
	j.stopped = true
	close(j.stopCh)
}
