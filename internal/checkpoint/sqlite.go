package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteStore persists checkpoints in a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	ownsDB bool
}

// NewSQLiteStore wraps an existing database connection and creates the
// checkpoint schema. The caller keeps ownership of db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens (or creates) the checkpoint database at path with the
// pragmas a single-writer store wants, and owns the connection.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL must be set via PRAGMA for modernc.org/sqlite; DSN params may
	// be ignored.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		repo_id         TEXT PRIMARY KEY,
		type            TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL DEFAULT 'pending',
		progress        INTEGER NOT NULL DEFAULT 0,
		current_step    TEXT NOT NULL DEFAULT '',
		total_steps     INTEGER NOT NULL DEFAULT 0,
		completed_steps INTEGER NOT NULL DEFAULT 0,
		started_at      INTEGER NOT NULL,
		last_updated    INTEGER NOT NULL,
		error           TEXT NOT NULL DEFAULT '',
		artifacts       TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON checkpoints(status);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_last_updated ON checkpoints(last_updated);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create checkpoint schema: %w", err)
	}
	return nil
}

// Save upserts the patch. Absent patch fields keep their stored values,
// progress never decreases, and started_at survives updates.
func (s *SQLiteStore) Save(ctx context.Context, repoID string, patch Patch) error {
	artifacts, err := artifactsJSON(patch.Artifacts)
	if err != nil {
		return err
	}
	now := time.Now().UTC().UnixNano()

	vals := []any{
		nullable(patch.Type),
		nullableStatus(patch.Status),
		nullable(patch.Progress),
		nullable(patch.CurrentStep),
		nullable(patch.TotalSteps),
		nullable(patch.CompletedSteps),
		nullable(patch.Error),
		artifacts,
	}
	args := make([]any, 0, 2*len(vals)+3)
	args = append(args, repoID)
	args = append(args, vals...)
	args = append(args, now, now)
	args = append(args, vals...)
	args = append(args, now)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (
			repo_id, type, status, progress, current_step, total_steps,
			completed_steps, error, artifacts, started_at, last_updated
		) VALUES (
			?, COALESCE(?, ''), COALESCE(?, 'pending'), COALESCE(?, 0),
			COALESCE(?, ''), COALESCE(?, 0), COALESCE(?, 0), COALESCE(?, ''),
			COALESCE(?, '{}'), ?, ?
		)
		ON CONFLICT(repo_id) DO UPDATE SET
			type            = COALESCE(?, type),
			status          = COALESCE(?, status),
			progress        = MAX(COALESCE(?, progress), progress),
			current_step    = COALESCE(?, current_step),
			total_steps     = COALESCE(?, total_steps),
			completed_steps = COALESCE(?, completed_steps),
			error           = COALESCE(?, error),
			artifacts       = COALESCE(?, artifacts),
			last_updated    = ?
	`, args...)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Get returns the stored checkpoint, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, repoID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT repo_id, type, status, progress, current_step, total_steps,
		       completed_steps, started_at, last_updated, error, artifacts
		FROM checkpoints
		WHERE repo_id = ?
	`, repoID)

	cp, err := scanSQLiteRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return cp, nil
}

// ListIncomplete returns non-terminal jobs updated within maxAge, newest
// first.
func (s *SQLiteStore) ListIncomplete(ctx context.Context, maxAge time.Duration, limit int) ([]*Checkpoint, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var cutoff int64
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge).UTC().UnixNano()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT repo_id, type, status, progress, current_step, total_steps,
		       completed_steps, started_at, last_updated, error, artifacts
		FROM checkpoints
		WHERE status NOT IN (?, ?) AND last_updated >= ?
		ORDER BY last_updated DESC
		LIMIT ?
	`, string(StatusCompleted), string(StatusFailed), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list incomplete checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		cp, err := scanSQLiteRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// MarkCompleted sets the success terminal state.
func (s *SQLiteStore) MarkCompleted(ctx context.Context, repoID string) error {
	return s.Save(ctx, repoID, Patch{
		Status:   Ptr(StatusCompleted),
		Progress: Ptr(100),
	})
}

// MarkFailed sets the failure terminal state and keeps the row.
func (s *SQLiteStore) MarkFailed(ctx context.Context, repoID, message string) error {
	return s.Save(ctx, repoID, Patch{
		Status: Ptr(StatusFailed),
		Error:  Ptr(message),
	})
}

// Delete removes the checkpoint. Deleting a missing row is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, repoID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE repo_id = ?`, repoID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close releases the connection when this store opened it; injected
// connections stay open for their owner.
func (s *SQLiteStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func scanSQLiteRow(scan func(dest ...any) error) (*Checkpoint, error) {
	var (
		cp          Checkpoint
		status      string
		startedAt   int64
		lastUpdated int64
		artifacts   string
	)
	err := scan(&cp.RepoID, &cp.Type, &status, &cp.Progress, &cp.CurrentStep,
		&cp.TotalSteps, &cp.CompletedSteps, &startedAt, &lastUpdated,
		&cp.Error, &artifacts)
	if err != nil {
		return nil, err
	}
	cp.Status = Status(status)
	cp.StartedAt = time.Unix(0, startedAt).UTC()
	cp.LastUpdated = time.Unix(0, lastUpdated).UTC()
	if err := json.Unmarshal([]byte(artifacts), &cp.Artifacts); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}
	return &cp, nil
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableStatus(p *Status) any {
	if p == nil {
		return nil
	}
	return string(*p)
}

func artifactsJSON(a *Artifacts) (any, error) {
	if a == nil {
		return nil, nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal artifacts: %w", err)
	}
	return string(raw), nil
}
