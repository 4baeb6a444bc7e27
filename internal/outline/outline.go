// Package outline plans the documentation chapters for a repository.
//
// The planner summarizes the corpus file tree, asks the LLM for a JSON
// outline, and degrades gracefully: malformed JSON falls back to a Markdown
// parse, and anything still unusable falls back to a fixed five-chapter
// plan. Every returned plan satisfies the same shape guarantees regardless
// of which path produced it: 5 to 12 chapters, each with 1 to 5 retrieval
// queries.
package outline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docweave/docweave/internal/fetch"
	"github.com/docweave/docweave/internal/llm"
)

const (
	// summaryFileLimit caps how many files the outline prompt lists.
	summaryFileLimit = 50

	// planTimeout bounds the outline call. Scanning a large repo with a
	// slow local model routinely takes minutes.
	planTimeout = 5 * time.Minute

	// Plan size bounds. Outside them the default plan substitutes.
	minChapters = 5
	maxChapters = 12

	// Per-chapter query bounds.
	minQueries = 3
	maxQueries = 5
)

// Chapter is one planned documentation chapter with the retrieval queries
// that will gather its context.
type Chapter struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Queries     []string `json:"queries"`
}

// Generator is the slice of the LLM client the planner needs.
type Generator interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (string, error)
}

// Planner produces documentation outlines.
type Planner struct {
	llm Generator
}

// NewPlanner creates a planner over the given generator.
func NewPlanner(generator Generator) *Planner {
	return &Planner{llm: generator}
}

// Summary renders the corpus file tree for the outline prompt: the first 50
// files with their line counts, then an elided remainder.
func Summary(files []fetch.CorpusFile) string {
	parts := make([]string, 0, summaryFileLimit+1)
	for i, f := range files {
		if i >= summaryFileLimit {
			break
		}
		parts = append(parts, fmt.Sprintf("- %s (%d lines)", f.Path, lineCount(f.Content)))
	}
	if len(files) > summaryFileLimit {
		parts = append(parts, fmt.Sprintf("\n... and %d more files", len(files)-summaryFileLimit))
	}
	return strings.Join(parts, "\n")
}

// Plan asks the LLM for a chapter outline over the corpus. The outline is
// parsed permissively and normalized; an LLM failure degrades to the default
// plan rather than failing the job, unless the context itself was cancelled.
func (p *Planner) Plan(ctx context.Context, files []fetch.CorpusFile, owner, repoName string) ([]Chapter, error) {
	prompt := outlinePrompt(owner, repoName, Summary(files), len(files))

	text, err := p.llm.Generate(ctx, llm.GenerateRequest{
		Content:     prompt,
		ContentType: llm.ContentTypeText,
		Title:       fmt.Sprintf("%s Documentation Outline", repoName),
		Timeout:     planTimeout,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("outline_generation_failed",
			slog.String("repo", repoName),
			slog.String("error", err.Error()))
		return DefaultPlan(), nil
	}

	chapters := normalize(parseOutline(text))
	slog.Info("outline_planned",
		slog.String("repo", repoName),
		slog.Int("chapters", len(chapters)))
	return chapters, nil
}

// lineCount counts lines the way a text editor displays them: a trailing
// newline does not open another line.
func lineCount(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}

func outlinePrompt(owner, repoName, fileSummary string, fileCount int) string {
	return fmt.Sprintf(`Analyze this GitHub repository and generate a comprehensive documentation outline.

REPOSITORY: %s/%s
TOTAL FILES: %d

FILE STRUCTURE:
%s

TASK: Generate a documentation outline with chapters and retrieval queries.

OUTPUT FORMAT (JSON-like structure):
{
  "chapters": [
    {
      "title": "Chapter Title",
      "description": "What this chapter covers",
      "queries": ["query 1", "query 2", "query 3"]
    }
  ]
}

REQUIREMENTS:
1. Create 5-10 logical chapters covering:
   - Overview/Introduction
   - Architecture/Design
   - Core Components/Modules
   - API/Interfaces
   - Configuration
   - Usage/Examples
   - Testing
   - Deployment
   - Contributing (if applicable)
   - Summary/Conclusion

2. For each chapter, provide 3-5 retrieval queries that would find relevant code chunks.
   - Queries should be specific and search for concepts, functions, classes, or patterns
   - Examples: "authentication middleware", "database connection setup", "API route handlers"

3. Base chapters on the actual file structure and content.

OUTPUT ONLY the JSON structure, no markdown formatting or explanations.`,
		owner, repoName, fileCount, fileSummary)
}
