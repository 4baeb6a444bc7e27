package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	werrors "github.com/docweave/docweave/internal/errors"
)

var _ Embedder = (*CachedClient)(nil)

// fakeEmbedder counts calls and returns the text length as a 1-dim vector.
type fakeEmbedder struct {
	model      string
	embedCalls int
	batchCalls [][]string
	failNext   bool
	closed     bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.embedCalls++
	if f.failNext {
		f.failNext = false
		return nil, werrors.New(werrors.ErrCodeConnectionFailed, "embedding endpoint unreachable", nil)
	}
	return []float32{float32(len(text))}, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.batchCalls = append(f.batchCalls, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int                  { return 1 }
func (f *fakeEmbedder) ModelName() string                { return f.model }
func (f *fakeEmbedder) Available(_ context.Context) bool { return true }
func (f *fakeEmbedder) Close() error                     { f.closed = true; return nil }

func TestCachedClient_RepeatedQueryHitsCache(t *testing.T) {
	inner := &fakeEmbedder{model: "test-embed"}
	cached := NewCachedClient(inner, 10)

	first, err := cached.Embed(context.Background(), "rotate left")
	require.NoError(t, err)
	second, err := cached.Embed(context.Background(), "rotate left")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.embedCalls)
}

func TestCachedClient_BatchEmbedsOnlyMisses(t *testing.T) {
	inner := &fakeEmbedder{model: "test-embed"}
	cached := NewCachedClient(inner, 10)

	_, err := cached.Embed(context.Background(), "alpha")
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	assert.Equal(t, []float32{5}, vecs[0])
	assert.Equal(t, []float32{4}, vecs[1])
	require.Len(t, inner.batchCalls, 1)
	assert.Equal(t, []string{"beta"}, inner.batchCalls[0])
}

func TestCachedClient_AllHitsSkipInner(t *testing.T) {
	inner := &fakeEmbedder{model: "test-embed"}
	cached := NewCachedClient(inner, 10)

	_, err := cached.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)

	_, err = cached.EmbedBatch(context.Background(), []string{"beta", "alpha"})
	require.NoError(t, err)

	assert.Len(t, inner.batchCalls, 1)
}

func TestCachedClient_ModelChangeInvalidatesKey(t *testing.T) {
	inner := &fakeEmbedder{model: "model-a"}
	cached := NewCachedClient(inner, 10)

	_, err := cached.Embed(context.Background(), "query")
	require.NoError(t, err)

	inner.model = "model-b"
	_, err = cached.Embed(context.Background(), "query")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.embedCalls)
}

func TestCachedClient_ErrorsAreNotCached(t *testing.T) {
	inner := &fakeEmbedder{model: "test-embed", failNext: true}
	cached := NewCachedClient(inner, 10)

	_, err := cached.Embed(context.Background(), "query")
	require.Error(t, err)

	vec, err := cached.Embed(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, []float32{5}, vec)
	assert.Equal(t, 2, inner.embedCalls)
}

func TestCachedClient_Passthroughs(t *testing.T) {
	inner := &fakeEmbedder{model: "test-embed"}
	cached := NewCachedClient(inner, 0)

	assert.Equal(t, 1, cached.Dimensions())
	assert.Equal(t, "test-embed", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))

	require.NoError(t, cached.Close())
	assert.True(t, inner.closed)
}
