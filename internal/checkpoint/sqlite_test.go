package checkpoint

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docweave/docweave/internal/fetch"
	"github.com/docweave/docweave/internal/outline"
)

func setupStore(t *testing.T) (*SQLiteStore, *sql.DB) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "checkpoints.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return store, db
}

func fullPatch() Patch {
	return Patch{
		Type:           Ptr("github_repo"),
		Status:         Ptr(StatusIndexing),
		Progress:       Ptr(45),
		CurrentStep:    Ptr("Building vector index"),
		TotalSteps:     Ptr(6),
		CompletedSteps: Ptr(3),
		Artifacts: &Artifacts{
			Owner:      "acme",
			RepoName:   "widget",
			TotalFiles: 2,
			TotalChars: 31,
			Files: []fetch.CorpusFile{
				{Path: "src/app.py", Content: "print('hi')", Size: 11, Extension: "py"},
			},
			Chapters: []outline.Chapter{
				{Title: "Overview", Description: "Intro", Queries: []string{"readme"}},
			},
			IndexRef: "/tmp/widget_1700000000.index",
			Index:    &IndexSnapshot{Chunks: 12, Dimensions: 768},
		},
	}
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store, _ := setupStore(t)

	require.NoError(t, store.Save(t.Context(), "repo_1", fullPatch()))

	cp, err := store.Get(t.Context(), "repo_1")
	require.NoError(t, err)

	assert.Equal(t, "repo_1", cp.RepoID)
	assert.Equal(t, "github_repo", cp.Type)
	assert.Equal(t, StatusIndexing, cp.Status)
	assert.Equal(t, 45, cp.Progress)
	assert.Equal(t, "Building vector index", cp.CurrentStep)
	assert.Equal(t, 6, cp.TotalSteps)
	assert.Equal(t, 3, cp.CompletedSteps)
	assert.Empty(t, cp.Error)
	assert.Equal(t, *fullPatch().Artifacts, cp.Artifacts)
	assert.WithinDuration(t, time.Now(), cp.StartedAt, 5*time.Second)
	assert.WithinDuration(t, time.Now(), cp.LastUpdated, 5*time.Second)
}

func TestSQLiteStore_PartialPatchKeepsStoredFields(t *testing.T) {
	store, _ := setupStore(t)
	require.NoError(t, store.Save(t.Context(), "repo_1", fullPatch()))

	before, err := store.Get(t.Context(), "repo_1")
	require.NoError(t, err)

	require.NoError(t, store.Save(t.Context(), "repo_1", Patch{
		Progress:    Ptr(60),
		CurrentStep: Ptr("Generating chapter 2/6"),
	}))

	cp, err := store.Get(t.Context(), "repo_1")
	require.NoError(t, err)

	assert.Equal(t, 60, cp.Progress)
	assert.Equal(t, "Generating chapter 2/6", cp.CurrentStep)
	assert.Equal(t, "github_repo", cp.Type)
	assert.Equal(t, StatusIndexing, cp.Status)
	assert.Equal(t, before.Artifacts, cp.Artifacts)
	assert.Equal(t, before.StartedAt, cp.StartedAt)
	assert.False(t, cp.LastUpdated.Before(before.LastUpdated))
}

func TestSQLiteStore_ProgressNeverDecreases(t *testing.T) {
	store, _ := setupStore(t)
	require.NoError(t, store.Save(t.Context(), "repo_1", Patch{Progress: Ptr(45)}))

	require.NoError(t, store.Save(t.Context(), "repo_1", Patch{Progress: Ptr(20)}))

	cp, err := store.Get(t.Context(), "repo_1")
	require.NoError(t, err)
	assert.Equal(t, 45, cp.Progress)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store, _ := setupStore(t)

	_, err := store.Get(t.Context(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListIncomplete(t *testing.T) {
	store, db := setupStore(t)

	require.NoError(t, store.Save(t.Context(), "repo_old", Patch{Status: Ptr(StatusGenerating)}))
	require.NoError(t, store.Save(t.Context(), "repo_recent", Patch{Status: Ptr(StatusIndexing)}))
	require.NoError(t, store.Save(t.Context(), "repo_done", Patch{Status: Ptr(StatusCompleted)}))
	require.NoError(t, store.Save(t.Context(), "repo_dead", Patch{Status: Ptr(StatusFailed)}))

	// Pin update times so ordering and the age cutoff are deterministic.
	setUpdated := func(repoID string, at time.Time) {
		_, err := db.Exec(`UPDATE checkpoints SET last_updated = ? WHERE repo_id = ?`,
			at.UnixNano(), repoID)
		require.NoError(t, err)
	}
	setUpdated("repo_old", time.Now().Add(-2*time.Hour))
	setUpdated("repo_recent", time.Now().Add(-time.Minute))

	all, err := store.ListIncomplete(t.Context(), 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "repo_recent", all[0].RepoID)
	assert.Equal(t, "repo_old", all[1].RepoID)

	fresh, err := store.ListIncomplete(t.Context(), time.Hour, 0)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "repo_recent", fresh[0].RepoID)

	limited, err := store.ListIncomplete(t.Context(), 0, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "repo_recent", limited[0].RepoID)
}

func TestSQLiteStore_MarkCompleted(t *testing.T) {
	store, _ := setupStore(t)
	require.NoError(t, store.Save(t.Context(), "repo_1", Patch{Status: Ptr(StatusMerging), Progress: Ptr(90)}))

	require.NoError(t, store.MarkCompleted(t.Context(), "repo_1"))

	cp, err := store.Get(t.Context(), "repo_1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, cp.Status)
	assert.Equal(t, 100, cp.Progress)
	assert.True(t, cp.Status.Terminal())
}

func TestSQLiteStore_MarkFailed(t *testing.T) {
	store, _ := setupStore(t)
	require.NoError(t, store.Save(t.Context(), "repo_1", Patch{Status: Ptr(StatusIngesting), Progress: Ptr(10)}))

	require.NoError(t, store.MarkFailed(t.Context(), "repo_1", "No files could be downloaded from repository"))

	cp, err := store.Get(t.Context(), "repo_1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, cp.Status)
	assert.Equal(t, "No files could be downloaded from repository", cp.Error)
	assert.Equal(t, 10, cp.Progress)
}

func TestSQLiteStore_Delete(t *testing.T) {
	store, _ := setupStore(t)
	require.NoError(t, store.Save(t.Context(), "repo_1", Patch{Status: Ptr(StatusPending)}))

	require.NoError(t, store.Delete(t.Context(), "repo_1"))

	_, err := store.Get(t.Context(), "repo_1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, store.Delete(t.Context(), "repo_1"))
}

func TestOpenSQLite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")

	store, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Save(t.Context(), "repo_1", Patch{
		Status:   Ptr(StatusScanning),
		Progress: Ptr(20),
	}))

	cp, err := store.Get(t.Context(), "repo_1")
	require.NoError(t, err)
	assert.Equal(t, StatusScanning, cp.Status)
	assert.Equal(t, 20, cp.Progress)
}

func TestNopStore(t *testing.T) {
	var store Store = NopStore{}

	assert.NoError(t, store.Save(t.Context(), "x", Patch{Status: Ptr(StatusPending)}))

	_, err := store.Get(t.Context(), "x")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := store.ListIncomplete(t.Context(), time.Hour, 10)
	assert.NoError(t, err)
	assert.Empty(t, list)

	assert.NoError(t, store.MarkCompleted(t.Context(), "x"))
	assert.NoError(t, store.MarkFailed(t.Context(), "x", "boom"))
	assert.NoError(t, store.Delete(t.Context(), "x"))
	assert.NoError(t, store.Close())
}
