package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docweave/docweave/internal/checkpoint"
	"github.com/docweave/docweave/internal/llm"
	"github.com/docweave/docweave/internal/outline"
	"github.com/docweave/docweave/internal/pipeline"
	"github.com/docweave/docweave/internal/rag"
)

// fakeLLM returns canned responses and records nothing; errors are
// injected per method.
type fakeLLM struct {
	generateErr error
	completeErr error
	streamErr   error
}

func (f *fakeLLM) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	return "generated", f.generateErr
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.ChatRequest) (string, error) {
	return "completed", f.completeErr
}

func (f *fakeLLM) ChatStream(ctx context.Context, req llm.ChatRequest) (*llm.Stream, error) {
	return nil, f.streamErr
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, f.err
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, f.err
}

func (f *fakeEmbedder) Dimensions() int { return 2 }

func (f *fakeEmbedder) ModelName() string { return "fake-embed" }

func (f *fakeEmbedder) Available(ctx context.Context) bool { return true }

func (f *fakeEmbedder) Close() error { return nil }

type fakeChapters struct {
	err error
}

func (f *fakeChapters) Generate(ctx context.Context, ch outline.Chapter, indexRef, repoName string, number, total int) (string, error) {
	return "## " + ch.Title, f.err
}

func TestMetrics_JobCounters(t *testing.T) {
	m := New()

	m.JobStarted("github_repo")
	m.JobStarted("github_repo")
	m.JobStarted("zip_upload")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsStarted.WithLabelValues("github_repo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsStarted.WithLabelValues("zip_upload")))
}

func TestMetrics_PublishCountsTerminalEvents(t *testing.T) {
	m := New()

	m.Publish(pipeline.Event{RepoID: "r", Status: checkpoint.StatusIngesting, Progress: 10})
	m.Publish(pipeline.Event{RepoID: "r", Status: checkpoint.StatusGenerating, Progress: 60})
	m.Publish(pipeline.Event{RepoID: "r", Status: checkpoint.StatusCompleted, Progress: 100})
	m.Publish(pipeline.Event{RepoID: "s", Status: checkpoint.StatusFailed, Error: "boom"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsFailed))
}

func TestInstrumentedLLM_CountsByKindAndOutcome(t *testing.T) {
	m := New()
	inner := &fakeLLM{completeErr: errors.New("boom")}
	client := m.WrapLLM(inner)

	out, err := client.Generate(t.Context(), llm.GenerateRequest{Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, "generated", out)

	_, err = client.Complete(t.Context(), llm.ChatRequest{})
	require.Error(t, err)

	_, err = client.ChatStream(t.Context(), llm.ChatRequest{})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmCalls.WithLabelValues(KindGenerate, OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmCalls.WithLabelValues(KindComplete, OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmCalls.WithLabelValues(KindStream, OutcomeOK)))
}

func TestInstrumentedLLM_SatisfiesClientInterfaces(t *testing.T) {
	client := New().WrapLLM(&fakeLLM{})
	var _ outline.Generator = client
	var _ rag.ChatClient = client
}

func TestInstrumentedEmbedder_CountsCalls(t *testing.T) {
	m := New()
	emb := m.WrapEmbedder(&fakeEmbedder{})

	_, err := emb.Embed(t.Context(), "hello")
	require.NoError(t, err)
	_, err = emb.EmbedBatch(t.Context(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.embeddingCalls.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 2, emb.Dimensions())
	assert.Equal(t, "fake-embed", emb.ModelName())
}

func TestInstrumentedEmbedder_CountsErrors(t *testing.T) {
	m := New()
	emb := m.WrapEmbedder(&fakeEmbedder{err: errors.New("down")})

	_, err := emb.Embed(t.Context(), "hello")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.embeddingCalls.WithLabelValues(OutcomeError)))
}

func TestInstrumentedChapters_CountsOnlySuccesses(t *testing.T) {
	m := New()

	ok := m.WrapChapters(&fakeChapters{})
	_, err := ok.Generate(t.Context(), outline.Chapter{Title: "Overview"}, "ref", "repo", 1, 3)
	require.NoError(t, err)

	failing := m.WrapChapters(&fakeChapters{err: errors.New("boom")})
	_, err = failing.Generate(t.Context(), outline.Chapter{Title: "Internals"}, "ref", "repo", 2, 3)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.chaptersGenerated))
}

func TestRetrievalTier_MatchesRagHook(t *testing.T) {
	m := New()

	// The method signature doubles as rag.Config.OnRetrieval.
	cfg := rag.Config{OnRetrieval: m.RetrievalTier}
	cfg.OnRetrieval(rag.TierAdaptive)
	cfg.OnRetrieval(rag.TierHead)
	cfg.OnRetrieval(rag.TierHead)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.retrievalTiers.WithLabelValues(rag.TierAdaptive)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.retrievalTiers.WithLabelValues(rag.TierHead)))
}

func TestHandler_ExposesSeries(t *testing.T) {
	m := New()
	m.JobStarted("github_repo")
	m.Publish(pipeline.Event{Status: checkpoint.StatusCompleted})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `docweave_jobs_started_total{type="github_repo"} 1`)
	assert.Contains(t, string(body), "docweave_jobs_completed_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
