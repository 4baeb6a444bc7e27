package metrics

import (
	"context"

	"github.com/docweave/docweave/internal/embed"
	"github.com/docweave/docweave/internal/llm"
	"github.com/docweave/docweave/internal/outline"
	"github.com/docweave/docweave/internal/pipeline"
)

var (
	_ embed.Embedder         = (*InstrumentedEmbedder)(nil)
	_ pipeline.ChapterWriter = (*InstrumentedChapters)(nil)
)

// LLMClient is the slice of the chat client the wrapper observes.
// *llm.Client satisfies it.
type LLMClient interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (string, error)
	Complete(ctx context.Context, req llm.ChatRequest) (string, error)
	ChatStream(ctx context.Context, req llm.ChatRequest) (*llm.Stream, error)
}

// InstrumentedLLM counts every call passing through to the inner client.
// It satisfies outline.Generator, chapter.ContentGenerator, and
// rag.ChatClient, so it drops in wherever the bare client would.
type InstrumentedLLM struct {
	inner LLMClient
	m     *Metrics
}

// WrapLLM returns a counting wrapper around client.
func (m *Metrics) WrapLLM(client LLMClient) *InstrumentedLLM {
	return &InstrumentedLLM{inner: client, m: m}
}

func (c *InstrumentedLLM) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	out, err := c.inner.Generate(ctx, req)
	c.m.LLMCall(KindGenerate, err)
	return out, err
}

func (c *InstrumentedLLM) Complete(ctx context.Context, req llm.ChatRequest) (string, error) {
	out, err := c.inner.Complete(ctx, req)
	c.m.LLMCall(KindComplete, err)
	return out, err
}

// ChatStream counts the stream open. Failures after the stream is
// established surface through Stream.Err and are not re-counted.
func (c *InstrumentedLLM) ChatStream(ctx context.Context, req llm.ChatRequest) (*llm.Stream, error) {
	stream, err := c.inner.ChatStream(ctx, req)
	c.m.LLMCall(KindStream, err)
	return stream, err
}

// InstrumentedEmbedder counts embedding calls around an inner embedder.
// Dimensions, ModelName, Available, and Close pass through untouched.
type InstrumentedEmbedder struct {
	embed.Embedder
	m *Metrics
}

// WrapEmbedder returns a counting wrapper around embedder.
func (m *Metrics) WrapEmbedder(embedder embed.Embedder) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{Embedder: embedder, m: m}
}

func (e *InstrumentedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.Embedder.Embed(ctx, text)
	e.m.EmbeddingCall(err)
	return vec, err
}

func (e *InstrumentedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.Embedder.EmbedBatch(ctx, texts)
	e.m.EmbeddingCall(err)
	return vecs, err
}

// InstrumentedChapters counts successfully generated chapters around an
// inner pipeline.ChapterWriter.
type InstrumentedChapters struct {
	inner pipeline.ChapterWriter
	m     *Metrics
}

// WrapChapters returns a counting wrapper around writer.
func (m *Metrics) WrapChapters(writer pipeline.ChapterWriter) *InstrumentedChapters {
	return &InstrumentedChapters{inner: writer, m: m}
}

func (w *InstrumentedChapters) Generate(ctx context.Context, ch outline.Chapter, indexRef, repoName string, number, total int) (string, error) {
	out, err := w.inner.Generate(ctx, ch, indexRef, repoName, number, total)
	if err == nil {
		w.m.ChapterGenerated()
	}
	return out, err
}
