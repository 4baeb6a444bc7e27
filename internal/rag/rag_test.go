package rag

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	werrors "github.com/docweave/docweave/internal/errors"
	"github.com/docweave/docweave/internal/fetch"
	"github.com/docweave/docweave/internal/store"
)

// fakeEmbedder returns registered vectors for exact texts and a distant
// constant vector for everything else, so test geometry stays predictable.
type fakeEmbedder struct {
	mu     sync.Mutex
	dim    int
	byText map[string][]float32
	fail   map[string]struct{}
	calls  int
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{
		dim:    dim,
		byText: make(map[string][]float32),
		fail:   make(map[string]struct{}),
	}
}

func (f *fakeEmbedder) set(text string, vec ...float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byText[text] = vec
}

func (f *fakeEmbedder) failOn(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[text] = struct{}{}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if _, bad := f.fail[text]; bad {
		return nil, werrors.TransientError("embedding endpoint unreachable", nil)
	}
	if vec, ok := f.byText[text]; ok {
		return vec, nil
	}

	far := make([]float32, f.dim)
	far[0] = 100
	return far, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int                  { return f.dim }
func (f *fakeEmbedder) ModelName() string                { return "fake-embed" }
func (f *fakeEmbedder) Available(_ context.Context) bool { return true }
func (f *fakeEmbedder) Close() error                     { return nil }

func TestBuild_CreatesArtifacts(t *testing.T) {
	dir := t.TempDir()
	eng := New(newFakeEmbedder(2), nil, Config{IndexDir: dir})

	files := []fetch.CorpusFile{
		{Path: "src/app.py", Content: "alpha beta gamma"},
		{Path: "README.md", Content: "hello world"},
	}

	var progress [][2]int
	res, err := eng.Build(t.Context(), "repo_1", files, BuildOptions{
		OnProgress: func(done, total int) { progress = append(progress, [2]int{done, total}) },
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, 2, res.Files)
	assert.Empty(t, res.Warnings)
	assert.True(t, strings.HasPrefix(res.IndexRef, filepath.Join(dir, "repo_1_")), "index ref %q", res.IndexRef)
	assert.True(t, strings.HasSuffix(res.IndexRef, ".index"))

	require.Len(t, res.Meta, 2)
	assert.Equal(t, 0, res.Meta[0].ChunkID)
	assert.Equal(t, 1, res.Meta[1].ChunkID)
	assert.Equal(t, "src/app.py", res.Meta[0].FilePath)
	assert.Equal(t, "app.py", res.Meta[0].Filename)
	assert.Equal(t, "alpha beta gamma", res.Meta[0].Text)

	require.Equal(t, [2]int{2, 2}, progress[len(progress)-1])

	loaded, err := store.LoadFlatIndex(res.IndexRef)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Count())

	kw, err := store.OpenKeywordIndex(store.KeywordPath(res.IndexRef))
	require.NoError(t, err)
	defer kw.Close()
	assert.Equal(t, 2, kw.Count())

	ref, err := eng.LatestIndexRef("repo_1")
	require.NoError(t, err)
	assert.Equal(t, res.IndexRef, ref)
}

func TestLatestIndexRef_PicksNewestBuild(t *testing.T) {
	dir := t.TempDir()
	eng := New(newFakeEmbedder(2), nil, Config{IndexDir: dir})

	for _, name := range []string{
		"repo_1_1700000000.index",
		"repo_1_1700000500.index",
		"repo_1_extra_1700009999.index",
		"repo_1_notes.index",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	ref, err := eng.LatestIndexRef("repo_1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "repo_1_1700000500.index"), ref)
}

func TestLatestIndexRef_Missing(t *testing.T) {
	eng := New(newFakeEmbedder(2), nil, Config{IndexDir: t.TempDir()})

	_, err := eng.LatestIndexRef("repo_1")
	require.Error(t, err)
	assert.Equal(t, werrors.ErrCodeIndexNotFound, werrors.GetCode(err))
}

func TestBuild_NoChunksFails(t *testing.T) {
	eng := New(newFakeEmbedder(2), nil, Config{IndexDir: t.TempDir()})

	for _, files := range [][]fetch.CorpusFile{
		nil,
		{{Path: "blank.py", Content: "   \n\t"}},
	} {
		_, err := eng.Build(t.Context(), "repo_1", files, BuildOptions{})
		require.Error(t, err)
		assert.Equal(t, werrors.ErrCodeEmptyCorpus, werrors.GetCode(err))
		assert.Contains(t, err.Error(), "No chunks created from repository files")
	}
}

func TestBuild_SkipsEmptyFiles(t *testing.T) {
	eng := New(newFakeEmbedder(2), nil, Config{IndexDir: t.TempDir()})

	res, err := eng.Build(t.Context(), "repo_1", []fetch.CorpusFile{
		{Path: "real.py", Content: "alpha beta"},
		{Path: "empty.py", Content: "  "},
	}, BuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, 1, res.Files)
}

func TestBuild_EmbeddingFailureAborts(t *testing.T) {
	fe := newFakeEmbedder(2)
	fe.failOn("alpha beta gamma")
	eng := New(fe, nil, Config{IndexDir: t.TempDir()})

	_, err := eng.Build(t.Context(), "repo_1", []fetch.CorpusFile{
		{Path: "a.py", Content: "alpha beta gamma"},
		{Path: "b.py", Content: "delta epsilon"},
	}, BuildOptions{})
	require.Error(t, err)

	assert.Contains(t, err.Error(), "Failed to embed chunk 1/2")
	assert.Equal(t, werrors.ErrCodeConnectionFailed, werrors.GetCode(err))
}

func TestBuild_AppendsToExistingIndex(t *testing.T) {
	dir := t.TempDir()
	eng := New(newFakeEmbedder(2), nil, Config{IndexDir: dir})

	first, err := eng.Build(t.Context(), "repo_1", []fetch.CorpusFile{
		{Path: "a.py", Content: "alpha beta"},
		{Path: "b.py", Content: "gamma delta"},
	}, BuildOptions{})
	require.NoError(t, err)

	second, err := eng.Build(t.Context(), "repo_1", []fetch.CorpusFile{
		{Path: "c.py", Content: "epsilon zeta"},
	}, BuildOptions{ExistingRef: first.IndexRef})
	require.NoError(t, err)

	assert.Equal(t, first.IndexRef, second.IndexRef)
	assert.Equal(t, 1, second.Chunks)
	require.Len(t, second.Meta, 3)
	assert.Equal(t, 2, second.Meta[2].ChunkID)
	assert.Equal(t, 0, second.Meta[2].ChunkIndex)

	loaded, err := store.LoadFlatIndex(first.IndexRef)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Count())
}

func TestBuild_UnusableExistingIndexStartsFresh(t *testing.T) {
	dir := t.TempDir()
	eng := New(newFakeEmbedder(2), nil, Config{IndexDir: dir})

	res, err := eng.Build(t.Context(), "repo_1", []fetch.CorpusFile{
		{Path: "a.py", Content: "alpha beta"},
	}, BuildOptions{ExistingRef: filepath.Join(dir, "gone.index")})
	require.NoError(t, err)

	assert.NotEqual(t, filepath.Join(dir, "gone.index"), res.IndexRef)
	assert.Equal(t, 0, res.Meta[0].ChunkID)
}

func TestBuild_ContextCancellation(t *testing.T) {
	eng := New(newFakeEmbedder(2), nil, Config{IndexDir: t.TempDir()})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := eng.Build(ctx, "repo_1", []fetch.CorpusFile{
		{Path: "a.py", Content: "alpha beta"},
	}, BuildOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuild_MultiChunkFile(t *testing.T) {
	dir := t.TempDir()
	eng := New(newFakeEmbedder(2), nil, Config{
		IndexDir:       dir,
		ChunkSizeWords: 8,
		OverlapWords:   2,
	})

	var sentences []string
	for i := 0; i < 12; i++ {
		sentences = append(sentences, "alpha beta gamma delta.")
	}
	res, err := eng.Build(t.Context(), "repo_1", []fetch.CorpusFile{
		{Path: "doc.md", Content: strings.Join(sentences, " ")},
	}, BuildOptions{})
	require.NoError(t, err)

	assert.Greater(t, res.Chunks, 1)
	assert.Equal(t, 1, res.Files)
	for i, m := range res.Meta {
		assert.Equal(t, i, m.ChunkID)
		assert.Equal(t, "doc.md", m.FilePath)
	}
}
