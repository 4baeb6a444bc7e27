// Package chapter turns one planned chapter into Markdown prose and merges
// finished chapters into the final document.
//
// Chapter generation degrades instead of failing: a chapter with no
// retrievable context or a failed LLM call becomes a stub section, so one
// bad chapter never sinks the document. Only cancellation and a missing
// index abort.
package chapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	werrors "github.com/docweave/docweave/internal/errors"
	"github.com/docweave/docweave/internal/llm"
	"github.com/docweave/docweave/internal/outline"
	"github.com/docweave/docweave/internal/store"
)

// DefaultTimeout bounds one chapter's LLM call. Large local models
// routinely take tens of minutes on a long context.
const DefaultTimeout = 45 * time.Minute

// Retriever fetches context chunks for a chapter's queries.
type Retriever interface {
	Query(ctx context.Context, indexRef string, queries []string, topK int) ([]store.ChunkMeta, error)
}

// ContentGenerator is the slice of the LLM client chapter generation needs.
type ContentGenerator interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (string, error)
}

// Generator produces chapter Markdown from retrieved context.
type Generator struct {
	retriever Retriever
	llm       ContentGenerator
	timeout   time.Duration
}

// NewGenerator creates a chapter generator. A non-positive timeout selects
// the default.
func NewGenerator(retriever Retriever, generator ContentGenerator, timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Generator{retriever: retriever, llm: generator, timeout: timeout}
}

// Generate writes the Markdown for one chapter. Number and total are
// 1-based and feed the prompt so the model knows where the chapter sits.
// A chapter without usable context or with a failed LLM call returns a
// stub section and a nil error.
func (g *Generator) Generate(ctx context.Context, ch outline.Chapter, indexRef, repoName string, number, total int) (string, error) {
	slog.Info("chapter_generation_started",
		slog.Int("number", number),
		slog.Int("total", total),
		slog.String("title", ch.Title))

	chunks, err := g.retriever.Query(ctx, indexRef, ch.Queries, 0)
	if err != nil {
		if werrors.GetCode(err) == werrors.ErrCodeNoContent {
			slog.Warn("chapter_no_context", slog.String("title", ch.Title))
			return emptyStub(ch.Title), nil
		}
		return "", err
	}

	prompt := chapterPrompt(ch, contextBlock(chunks), repoName, number, total)

	markdown, err := g.llm.Generate(ctx, llm.GenerateRequest{
		Content:     prompt,
		ContentType: llm.ContentTypeCode,
		Title:       ch.Title,
		Timeout:     g.timeout,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Error("chapter_generation_failed",
			slog.String("title", ch.Title),
			slog.String("error", err.Error()))
		return errorStub(ch.Title, err), nil
	}

	if !strings.HasPrefix(strings.TrimSpace(markdown), "#") {
		markdown = fmt.Sprintf("## %s\n\n%s", ch.Title, markdown)
	}
	return markdown, nil
}

// Merge assembles the final document: a title page with a table of
// contents, then the chapter bodies joined by blank lines.
func Merge(owner, repoName string, chapters []outline.Chapter, contents []string, generatedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Documentation\n\n**Repository:** %s/%s  \n**Generated:** %s\n\n---\n\n## Table of Contents\n\n",
		repoName, owner, repoName, generatedAt.Format("2006-01-02 15:04:05"))
	for i, ch := range chapters {
		fmt.Fprintf(&b, "%d. [%s](#%s)\n", i+1, ch.Title, anchor(ch.Title))
	}
	b.WriteString("\n---\n\n")
	b.WriteString(strings.Join(contents, "\n\n"))
	return b.String()
}

func anchor(title string) string {
	return strings.ReplaceAll(strings.ToLower(title), " ", "-")
}

func contextBlock(chunks []store.ChunkMeta) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		path := c.FilePath
		if path == "" {
			path = "unknown"
		}
		parts = append(parts, fmt.Sprintf("**File:** `%s`\n\n%s\n\n---\n", path, c.Text))
	}
	return strings.Join(parts, "\n")
}

func emptyStub(title string) string {
	return fmt.Sprintf("## %s\n\n*No relevant content found for this chapter.*\n", title)
}

func errorStub(title string, err error) string {
	return fmt.Sprintf("## %s\n\n*Error generating content: %s*\n", title, err)
}

func chapterPrompt(ch outline.Chapter, contextBlock, repoName string, number, total int) string {
	return fmt.Sprintf(`Generate comprehensive documentation for the following chapter.

CHAPTER: %s (%d of %d)
DESCRIPTION: %s

REPOSITORY: %s

CONTEXT (relevant code chunks retrieved from repository):
%s

TASK: Write a detailed, professional documentation chapter covering:
- %s
- All relevant code examples and explanations
- Clear structure with subsections
- Code blocks with proper syntax highlighting
- Practical examples where applicable

REQUIREMENTS:
- Use proper markdown formatting
- Include code examples from the context
- Be thorough but concise
- Maintain professional technical writing style
- Do not invent information not present in the context

OUTPUT: Complete markdown chapter content starting with ## %s`,
		ch.Title, number, total, ch.Description, repoName, contextBlock, ch.Description, ch.Title)
}
