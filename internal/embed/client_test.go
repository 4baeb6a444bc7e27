package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	werrors "github.com/docweave/docweave/internal/errors"
)

var _ Embedder = (*Client)(nil)

// embedServer is a minimal OpenAI-style endpoint for tests. vectors maps
// input text to the embedding returned; unknown inputs get fallback.
type embedServer struct {
	t        *testing.T
	models   []string
	vectors  map[string][]float32
	fallback []float32

	posts      atomic.Int64
	modelCalls atomic.Int64
	lastInput  atomic.Value
	lastModel  atomic.Value
	hadModel   atomic.Bool
}

func (s *embedServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		s.modelCalls.Add(1)
		type entry struct {
			ID string `json:"id"`
		}
		var data []entry
		for _, id := range s.models {
			data = append(data, entry{ID: id})
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		s.posts.Add(1)

		var body map[string]any
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&body))

		input, _ := body["input"].(string)
		s.lastInput.Store(input)
		if model, ok := body["model"]; ok {
			s.hadModel.Store(true)
			s.lastModel.Store(model.(string))
		}

		vec, ok := s.vectors[input]
		if !ok {
			vec = s.fallback
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": vec}},
		})
	})
	return mux
}

func newEmbedServer(t *testing.T) (*embedServer, *httptest.Server) {
	s := &embedServer{
		t:        t,
		vectors:  map[string][]float32{},
		fallback: []float32{0.1, 0.2, 0.3},
	}
	ts := httptest.NewServer(s.handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func newTestClient(ts *httptest.Server, model string) *Client {
	return NewClient(Config{
		BaseURL:    ts.URL + "/v1",
		Model:      model,
		Timeout:    2 * time.Second,
		MaxRetries: 1,
	})
}

func TestEmbed_SingleText(t *testing.T) {
	srv, ts := newEmbedServer(t)
	client := newTestClient(ts, "test-embed")
	defer client.Close()

	vec, err := client.Embed(context.Background(), "hello world")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "hello world", srv.lastInput.Load())
	assert.Equal(t, 3, client.Dimensions())
}

func TestEmbed_DiscoversModelFromCatalog(t *testing.T) {
	srv, ts := newEmbedServer(t)
	srv.models = []string{"qwen-chat", "text-embedding-nomic", "llama-3"}
	client := newTestClient(ts, "")
	defer client.Close()

	_, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "text-embedding-nomic", srv.lastModel.Load())
	assert.Equal(t, "text-embedding-nomic", client.ModelName())
	assert.Equal(t, int64(1), srv.modelCalls.Load())

	// Discovery runs once; later requests reuse the resolved id.
	_, err = client.Embed(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, int64(1), srv.modelCalls.Load())
}

func TestEmbed_NoEmbedModelLeavesFieldUnset(t *testing.T) {
	srv, ts := newEmbedServer(t)
	srv.models = []string{"qwen-chat", "llama-3"}
	client := newTestClient(ts, "")
	defer client.Close()

	_, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.False(t, srv.hadModel.Load(), "model field should be omitted")
	assert.Equal(t, "", client.ModelName())
}

func TestEmbed_ExplicitModelSkipsDiscovery(t *testing.T) {
	srv, ts := newEmbedServer(t)
	srv.models = []string{"text-embedding-nomic"}
	client := newTestClient(ts, "my-model")
	defer client.Close()

	_, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "my-model", srv.lastModel.Load())
	assert.Equal(t, int64(0), srv.modelCalls.Load())
}

func TestEmbed_EmptyTextUsesKnownDimension(t *testing.T) {
	srv, ts := newEmbedServer(t)
	srv.fallback = []float32{1, 2, 3, 4}
	client := newTestClient(ts, "test-embed")
	defer client.Close()

	_, err := client.Embed(context.Background(), "real text")
	require.NoError(t, err)

	vec, err := client.Embed(context.Background(), "   ")
	require.NoError(t, err)

	assert.Equal(t, []float32{0, 0, 0, 0}, vec)
	assert.Equal(t, int64(1), srv.posts.Load(), "empty text must not hit the endpoint")
}

func TestEmbed_EmptyTextProbesUnknownDimension(t *testing.T) {
	srv, ts := newEmbedServer(t)
	client := newTestClient(ts, "test-embed")
	defer client.Close()

	vec, err := client.Embed(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, []float32{0, 0, 0}, vec)
	assert.Equal(t, "dimension detection", srv.lastInput.Load())
}

func TestEmbedBatch_PreservesOrderAndSkipsEmpty(t *testing.T) {
	srv, ts := newEmbedServer(t)
	srv.vectors["alpha"] = []float32{1, 0}
	srv.vectors["beta"] = []float32{2, 0}
	client := newTestClient(ts, "test-embed")
	defer client.Close()

	vecs, err := client.EmbedBatch(context.Background(), []string{"alpha", "", "beta"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{0, 0}, vecs[1])
	assert.Equal(t, []float32{2, 0}, vecs[2])
	assert.Equal(t, int64(2), srv.posts.Load())
}

func TestEmbedBatch_Empty(t *testing.T) {
	_, ts := newEmbedServer(t)
	client := newTestClient(ts, "test-embed")
	defer client.Close()

	vecs, err := client.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestEmbedBatch_CancelledContext(t *testing.T) {
	_, ts := newEmbedServer(t)
	client := newTestClient(ts, "test-embed")
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.EmbedBatch(ctx, []string{"alpha"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbed_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.5}}},
		})
	}))
	defer ts.Close()

	client := NewClient(Config{
		BaseURL:    ts.URL,
		Model:      "test-embed",
		Timeout:    2 * time.Second,
		MaxRetries: 3,
	})
	defer client.Close()

	vec, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.5}, vec)
	assert.Equal(t, int64(3), attempts.Load())
}

func TestEmbed_ModelMissingNotRetried(t *testing.T) {
	var attempts atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewClient(Config{
		BaseURL:    ts.URL,
		Model:      "missing-model",
		Timeout:    2 * time.Second,
		MaxRetries: 3,
	})
	defer client.Close()

	_, err := client.Embed(context.Background(), "hello")
	require.Error(t, err)

	assert.Equal(t, werrors.ErrCodeEmbedModelMissing, werrors.GetCode(err))
	assert.Equal(t, int64(1), attempts.Load(), "4xx must not be retried")
}

func TestEmbed_EmptyVectorIsInvalidResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer ts.Close()

	client := NewClient(Config{BaseURL: ts.URL, Model: "test-embed", MaxRetries: 1})
	defer client.Close()

	_, err := client.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, werrors.ErrCodeInvalidResponse, werrors.GetCode(err))
}

func TestEmbed_ConnectionFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	client := NewClient(Config{BaseURL: url, Model: "test-embed", MaxRetries: 1})
	defer client.Close()

	_, err := client.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, werrors.ErrCodeConnectionFailed, werrors.GetCode(err))
}

func TestAvailable(t *testing.T) {
	_, ts := newEmbedServer(t)
	client := newTestClient(ts, "test-embed")
	defer client.Close()

	assert.True(t, client.Available(context.Background()))

	down := NewClient(Config{BaseURL: "http://127.0.0.1:1", MaxRetries: 1})
	defer down.Close()
	assert.False(t, down.Available(context.Background()))
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(Config{})
	defer client.Close()

	assert.Equal(t, DefaultBaseURL, client.baseURL)
	assert.Equal(t, DefaultTimeout, client.timeout)
	assert.Equal(t, DefaultMaxRetries, client.maxRetries)
	assert.Equal(t, 0, client.Dimensions())
}
