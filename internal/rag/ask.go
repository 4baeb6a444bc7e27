package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docweave/docweave/internal/llm"
	"github.com/docweave/docweave/internal/store"
)

// answerReserveTokens is held back from the context budget for the model's
// answer when sizing multipart batches.
const answerReserveTokens = 500

// defaultSystemPrompt applies when the caller provides none.
const defaultSystemPrompt = "You are a helpful AI assistant that answers questions based on the provided context."

// AskOptions tune a single Ask call. Zero values use the engine and chat
// client defaults.
type AskOptions struct {
	SystemPrompt string
	Temperature  float64
	TopP         float64
	TopK         int
}

// Ask answers a question over an index and streams the response.
//
// Retrieved chunks are inlined into the system prompt when the estimated
// token footprint of prompt, context, and question fits MaxContextTokens.
// Larger contexts are split into batches answered with separate
// non-streaming calls, and a final streaming call synthesizes the partial
// answers into one response. A failed batch degrades to an error marker in
// the synthesis input instead of failing the whole question.
func (e *Engine) Ask(ctx context.Context, indexRef, question string, opts AskOptions) (*llm.Stream, error) {
	chunks, err := e.Query(ctx, indexRef, []string{question}, opts.TopK)
	if err != nil {
		return nil, err
	}

	contextBlock := formatChunks(chunks)
	footprint := estimateTokens(opts.SystemPrompt) +
		estimateTokens(contextBlock) +
		estimateTokens(question)

	if footprint <= e.cfg.MaxContextTokens {
		prompt := buildPrompt(opts.SystemPrompt, contextBlock, question)
		return e.chat.ChatStream(ctx, llm.ChatRequest{
			Messages: []llm.Message{
				{Role: "system", Content: prompt},
				{Role: "user", Content: question},
			},
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
		})
	}

	slog.Info("multipart_answer",
		slog.Int("estimated_tokens", footprint),
		slog.Int("chunks", len(chunks)))
	return e.askMultipart(ctx, chunks, question, opts)
}

// askMultipart answers batch by batch, then streams a synthesis of the
// partial answers.
func (e *Engine) askMultipart(ctx context.Context, chunks []store.ChunkMeta, question string, opts AskOptions) (*llm.Stream, error) {
	batches := splitByTokenLimit(chunks, e.cfg.MaxContextTokens, opts.SystemPrompt, question)

	partials := make([]string, 0, len(batches))
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batchSystem := fmt.Sprintf(
			"%s\n\nNote: This is part %d of %d. Focus on answering based on the provided context chunk.",
			strings.TrimSpace(opts.SystemPrompt), i+1, len(batches))
		prompt := buildPrompt(batchSystem, formatChunks(batch), question)

		answer, err := e.chat.Complete(ctx, llm.ChatRequest{
			Messages: []llm.Message{
				{Role: "system", Content: prompt},
				{Role: "user", Content: question},
			},
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
		})
		if err != nil {
			slog.Error("multipart_batch_failed",
				slog.Int("part", i+1),
				slog.Int("parts", len(batches)),
				slog.String("error", err.Error()))
			answer = fmt.Sprintf("[Error processing part %d]", i+1)
		}
		partials = append(partials, answer)
	}

	labeled := make([]string, len(partials))
	for i, partial := range partials {
		labeled[i] = fmt.Sprintf("Part %d:\n%s", i+1, partial)
	}

	synthesis := fmt.Sprintf(
		"%s\n\n"+
			"You have received multiple partial answers to the user's question. "+
			"Synthesize them into a single, coherent, and comprehensive answer. "+
			"Remove redundancy and ensure the final answer flows naturally.\n\n"+
			"User question: %s\n\n"+
			"Partial answers:\n%s\n\n"+
			"Provide the final synthesized answer:",
		strings.TrimSpace(opts.SystemPrompt), question, strings.Join(labeled, "\n\n"))

	return e.chat.ChatStream(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: synthesis},
			{Role: "user", Content: "Synthesize the partial answers into a final answer."},
		},
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	})
}

// buildPrompt assembles the system prompt for one answer call.
func buildPrompt(systemPrompt, contextBlock, question string) string {
	system := strings.TrimSpace(systemPrompt)
	if system == "" {
		system = defaultSystemPrompt
	}

	return fmt.Sprintf(`%s

## Context from Documents:
%s

## User Question:
%s

## Instructions:
- Answer the user's question based on the context provided above
- Use the context to provide accurate, relevant information
- If the context doesn't contain relevant information, say so politely
- Cite specific parts of the context when making claims
- Be concise but thorough
- If the user is just greeting or making small talk, respond naturally while being ready to answer questions about the documents`,
		system, contextBlock, question)
}

// chunkLine renders one chunk for a context block.
func chunkLine(meta store.ChunkMeta) string {
	return fmt.Sprintf("[%d] %s", meta.ChunkID, meta.Text)
}

// formatChunks renders chunks as a context block.
func formatChunks(chunks []store.ChunkMeta) string {
	lines := make([]string, len(chunks))
	for i, c := range chunks {
		lines[i] = chunkLine(c)
	}
	return strings.Join(lines, "\n\n")
}

// estimateTokens approximates tokens as one per four characters.
func estimateTokens(text string) int {
	return len(text) / 4
}

// splitByTokenLimit partitions chunks into batches whose rendered context
// fits the token budget after prompt overhead. A chunk bigger than the
// remaining budget still ships alone rather than being dropped.
func splitByTokenLimit(chunks []store.ChunkMeta, maxTokens int, systemPrompt, question string) [][]store.ChunkMeta {
	overhead := estimateTokens(systemPrompt) + estimateTokens(question) + answerReserveTokens
	available := maxTokens - overhead

	var batches [][]store.ChunkMeta
	var current []store.ChunkMeta
	tokens := 0

	for _, c := range chunks {
		t := estimateTokens(chunkLine(c))
		if tokens+t > available && len(current) > 0 {
			batches = append(batches, current)
			current = []store.ChunkMeta{c}
			tokens = t
		} else {
			current = append(current, c)
			tokens += t
		}
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
