package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists checkpoints in Postgres for deployments where
// several workers share one store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database at url and creates the
// checkpoint schema.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		repo_id         TEXT PRIMARY KEY,
		type            TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL DEFAULT 'pending',
		progress        INTEGER NOT NULL DEFAULT 0,
		current_step    TEXT NOT NULL DEFAULT '',
		total_steps     INTEGER NOT NULL DEFAULT 0,
		completed_steps INTEGER NOT NULL DEFAULT 0,
		started_at      TIMESTAMPTZ NOT NULL,
		last_updated    TIMESTAMPTZ NOT NULL,
		error           TEXT NOT NULL DEFAULT '',
		artifacts       JSONB NOT NULL DEFAULT '{}'::jsonb
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON checkpoints(status);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_last_updated ON checkpoints(last_updated);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create checkpoint schema: %w", err)
	}
	return nil
}

// Save upserts the patch with the same semantics as the SQLite backend.
func (s *PostgresStore) Save(ctx context.Context, repoID string, patch Patch) error {
	artifacts, err := artifactsJSON(patch.Artifacts)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO checkpoints (
			repo_id, type, status, progress, current_step, total_steps,
			completed_steps, error, artifacts, started_at, last_updated
		) VALUES (
			$1, COALESCE($2, ''), COALESCE($3, 'pending'), COALESCE($4, 0),
			COALESCE($5, ''), COALESCE($6, 0), COALESCE($7, 0), COALESCE($8, ''),
			COALESCE($9::jsonb, '{}'::jsonb), $10, $10
		)
		ON CONFLICT(repo_id) DO UPDATE SET
			type            = COALESCE($2, checkpoints.type),
			status          = COALESCE($3, checkpoints.status),
			progress        = GREATEST(COALESCE($4, checkpoints.progress), checkpoints.progress),
			current_step    = COALESCE($5, checkpoints.current_step),
			total_steps     = COALESCE($6, checkpoints.total_steps),
			completed_steps = COALESCE($7, checkpoints.completed_steps),
			error           = COALESCE($8, checkpoints.error),
			artifacts       = COALESCE($9::jsonb, checkpoints.artifacts),
			last_updated    = $10
	`, repoID,
		nullable(patch.Type),
		nullableStatus(patch.Status),
		nullable(patch.Progress),
		nullable(patch.CurrentStep),
		nullable(patch.TotalSteps),
		nullable(patch.CompletedSteps),
		nullable(patch.Error),
		artifacts,
		now)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Get returns the stored checkpoint, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, repoID string) (*Checkpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT repo_id, type, status, progress, current_step, total_steps,
		       completed_steps, started_at, last_updated, error, artifacts
		FROM checkpoints
		WHERE repo_id = $1
	`, repoID)

	cp, err := scanPostgresRow(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return cp, nil
}

// ListIncomplete returns non-terminal jobs updated within maxAge, newest
// first.
func (s *PostgresStore) ListIncomplete(ctx context.Context, maxAge time.Duration, limit int) ([]*Checkpoint, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = time.Now().UTC().Add(-maxAge)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT repo_id, type, status, progress, current_step, total_steps,
		       completed_steps, started_at, last_updated, error, artifacts
		FROM checkpoints
		WHERE status NOT IN ($1, $2) AND last_updated >= $3
		ORDER BY last_updated DESC
		LIMIT $4
	`, string(StatusCompleted), string(StatusFailed), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list incomplete checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		cp, err := scanPostgresRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// MarkCompleted sets the success terminal state.
func (s *PostgresStore) MarkCompleted(ctx context.Context, repoID string) error {
	return s.Save(ctx, repoID, Patch{
		Status:   Ptr(StatusCompleted),
		Progress: Ptr(100),
	})
}

// MarkFailed sets the failure terminal state and keeps the row.
func (s *PostgresStore) MarkFailed(ctx context.Context, repoID, message string) error {
	return s.Save(ctx, repoID, Patch{
		Status: Ptr(StatusFailed),
		Error:  Ptr(message),
	})
}

// Delete removes the checkpoint. Deleting a missing row is not an error.
func (s *PostgresStore) Delete(ctx context.Context, repoID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE repo_id = $1`, repoID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgresRow(scan func(dest ...any) error) (*Checkpoint, error) {
	var (
		cp        Checkpoint
		status    string
		artifacts []byte
	)
	err := scan(&cp.RepoID, &cp.Type, &status, &cp.Progress, &cp.CurrentStep,
		&cp.TotalSteps, &cp.CompletedSteps, &cp.StartedAt, &cp.LastUpdated,
		&cp.Error, &artifacts)
	if err != nil {
		return nil, err
	}
	cp.Status = Status(status)
	cp.StartedAt = cp.StartedAt.UTC()
	cp.LastUpdated = cp.LastUpdated.UTC()
	if err := json.Unmarshal(artifacts, &cp.Artifacts); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}
	return &cp, nil
}
