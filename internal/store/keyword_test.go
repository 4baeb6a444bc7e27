package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keywordChunks() []ChunkMeta {
	return []ChunkMeta{
		{ChunkID: 0, Text: "parseHTTPRequest reads the inbound request headers", FilePath: "internal/http/parse.go", Filename: "parse.go", ChunkIndex: 0},
		{ChunkID: 1, Text: "binary tree rotation keeps the index balanced", FilePath: "internal/avl/rotate.go", Filename: "rotate.go", ChunkIndex: 0},
		{ChunkID: 2, Text: "checkpoint records survive process restarts", FilePath: "internal/checkpoint/sqlite.go", Filename: "sqlite.go", ChunkIndex: 0},
	}
}

func TestKeywordIndex_InMemorySearch(t *testing.T) {
	k, err := OpenKeywordIndex("")
	require.NoError(t, err)
	defer k.Close()

	require.NoError(t, k.Index(context.Background(), keywordChunks()))
	assert.Equal(t, 3, k.Count())

	hits, err := k.Search(context.Background(), "rotation", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, 1, hits[0].ChunkID)
}

func TestKeywordIndex_CamelCaseQuery(t *testing.T) {
	k, err := OpenKeywordIndex("")
	require.NoError(t, err)
	defer k.Close()

	require.NoError(t, k.Index(context.Background(), keywordChunks()))

	// identifier splitting lets a full camelCase symbol match its parts
	hits, err := k.Search(context.Background(), "parseHTTPRequest", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, 0, hits[0].ChunkID)
}

func TestKeywordIndex_FilePathMatches(t *testing.T) {
	k, err := OpenKeywordIndex("")
	require.NoError(t, err)
	defer k.Close()

	require.NoError(t, k.Index(context.Background(), keywordChunks()))

	hits, err := k.Search(context.Background(), "avl", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, 1, hits[0].ChunkID)
}

func TestKeywordIndex_EmptyQuery(t *testing.T) {
	k, err := OpenKeywordIndex("")
	require.NoError(t, err)
	defer k.Close()

	hits, err := k.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestKeywordIndex_DiskRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyword.bleve")

	k, err := OpenKeywordIndex(path)
	require.NoError(t, err)
	require.NoError(t, k.Index(context.Background(), keywordChunks()))
	require.NoError(t, k.Close())

	reopened, err := OpenKeywordIndex(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 3, reopened.Count())
	hits, err := reopened.Search(context.Background(), "checkpoint", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, 2, hits[0].ChunkID)
}

func TestKeywordIndex_CorruptIndexRecreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyword.bleve")
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), nil, 0o644))

	k, err := OpenKeywordIndex(path)
	require.NoError(t, err, "corrupt index is cleared and recreated")
	defer k.Close()

	assert.Equal(t, 0, k.Count())
	require.NoError(t, k.Index(context.Background(), keywordChunks()))
	assert.Equal(t, 3, k.Count())
}

func TestKeywordIndex_CloseIdempotent(t *testing.T) {
	k, err := OpenKeywordIndex("")
	require.NoError(t, err)

	require.NoError(t, k.Close())
	require.NoError(t, k.Close())

	_, err = k.Search(context.Background(), "anything", 5)
	require.Error(t, err)
}
