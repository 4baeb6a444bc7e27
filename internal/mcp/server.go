// Package mcp exposes indexed corpora and generation jobs to MCP
// clients (Claude Code, Cursor) over stdio: grounded question
// answering, semantic and keyword search, and job status lookups.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docweave/docweave/internal/checkpoint"
	"github.com/docweave/docweave/internal/llm"
	"github.com/docweave/docweave/internal/rag"
	"github.com/docweave/docweave/internal/store"
	"github.com/docweave/docweave/pkg/version"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
	defaultListLimit   = 20
)

// Engine answers questions and queries over indexed corpora.
// *rag.Engine satisfies it.
type Engine interface {
	Ask(ctx context.Context, indexRef, question string, opts rag.AskOptions) (*llm.Stream, error)
	Query(ctx context.Context, indexRef string, queries []string, topK int) ([]store.ChunkMeta, error)
	LatestIndexRef(repoID string) (string, error)
}

// Server bridges MCP clients with the retrieval engine and the
// checkpoint store.
type Server struct {
	mcp         *mcp.Server
	engine      Engine
	checkpoints checkpoint.Store
	logger      *slog.Logger
}

// NewServer creates the MCP server and registers its tools.
func NewServer(engine Engine, checkpoints checkpoint.Store) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if checkpoints == nil {
		checkpoints = checkpoint.NopStore{}
	}

	s := &Server{
		engine:      engine,
		checkpoints: checkpoints,
		logger:      slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "DocWeave",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Run serves MCP over stdio until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ask_corpus",
		Description: "Answer a question about an indexed repository. Retrieves the most relevant chunks and asks the model with them as context. Use search_corpus first if you need to verify coverage.",
	}, s.handleAskCorpus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_corpus",
		Description: "Semantic search over an indexed repository. Ranks chunks by embedding similarity to the query. Best for conceptual questions where exact terms are unknown.",
	}, s.handleSearchCorpus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "keyword_search",
		Description: "Keyword search over an indexed repository. Identifier-aware matching that splits camelCase and snake_case. Best for finding a known function, type, or exact phrase.",
	}, s.handleKeywordSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "generation_status",
		Description: "Report the phase and progress of a documentation generation job.",
	}, s.handleGenerationStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_generations",
		Description: "List incomplete documentation generation jobs, newest first.",
	}, s.handleListGenerations)

	s.logger.Debug("MCP tools registered", slog.Int("count", 5))
}

func (s *Server) handleAskCorpus(ctx context.Context, _ *mcp.CallToolRequest, input AskCorpusInput) (
	*mcp.CallToolResult,
	AskCorpusOutput,
	error,
) {
	if strings.TrimSpace(input.RepoID) == "" {
		return nil, AskCorpusOutput{}, NewInvalidParamsError("repo_id is required")
	}
	if strings.TrimSpace(input.Question) == "" {
		return nil, AskCorpusOutput{}, NewInvalidParamsError("question is required")
	}

	indexRef, err := s.engine.LatestIndexRef(input.RepoID)
	if err != nil {
		return nil, AskCorpusOutput{}, MapError(err)
	}

	stream, err := s.engine.Ask(ctx, indexRef, input.Question, rag.AskOptions{
		TopK:        input.TopK,
		Temperature: input.Temperature,
	})
	if err != nil {
		return nil, AskCorpusOutput{}, MapError(err)
	}
	answer, err := stream.Text()
	if err != nil {
		return nil, AskCorpusOutput{}, MapError(err)
	}

	return nil, AskCorpusOutput{Answer: answer}, nil
}

func (s *Server) handleSearchCorpus(ctx context.Context, _ *mcp.CallToolRequest, input SearchCorpusInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.RepoID) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("repo_id is required")
	}
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}
	limit := clampLimit(input.Limit)

	indexRef, err := s.engine.LatestIndexRef(input.RepoID)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	chunks, err := s.engine.Query(ctx, indexRef, []string{input.Query}, limit)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	out := SearchOutput{Results: make([]SearchResult, 0, len(chunks))}
	for _, m := range chunks {
		out.Results = append(out.Results, SearchResult{
			FilePath: m.FilePath,
			ChunkID:  m.ChunkID,
			Text:     m.Text,
		})
	}
	return nil, out, nil
}

func (s *Server) handleKeywordSearch(ctx context.Context, _ *mcp.CallToolRequest, input KeywordSearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.RepoID) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("repo_id is required")
	}
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}
	limit := clampLimit(input.Limit)

	indexRef, err := s.engine.LatestIndexRef(input.RepoID)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	keyword, err := store.OpenKeywordIndex(store.KeywordPath(indexRef))
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	defer func() { _ = keyword.Close() }()

	hits, err := keyword.Search(ctx, input.Query, limit)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	if len(hits) == 0 {
		return nil, SearchOutput{Results: []SearchResult{}}, nil
	}

	meta, err := store.LoadChunkMeta(indexRef)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	byID := make(map[int]store.ChunkMeta, len(meta))
	for _, m := range meta {
		byID[m.ChunkID] = m
	}

	out := SearchOutput{Results: make([]SearchResult, 0, len(hits))}
	for _, hit := range hits {
		m, ok := byID[hit.ChunkID]
		if !ok {
			continue
		}
		out.Results = append(out.Results, SearchResult{
			FilePath:     m.FilePath,
			ChunkID:      m.ChunkID,
			Text:         m.Text,
			Score:        hit.Score,
			MatchedTerms: hit.Terms,
		})
	}
	return nil, out, nil
}

func (s *Server) handleGenerationStatus(ctx context.Context, _ *mcp.CallToolRequest, input GenerationStatusInput) (
	*mcp.CallToolResult,
	GenerationStatusOutput,
	error,
) {
	if strings.TrimSpace(input.RepoID) == "" {
		return nil, GenerationStatusOutput{}, NewInvalidParamsError("repo_id is required")
	}

	cp, err := s.checkpoints.Get(ctx, input.RepoID)
	if err != nil {
		return nil, GenerationStatusOutput{}, MapError(err)
	}
	return nil, statusOutput(cp), nil
}

func (s *Server) handleListGenerations(ctx context.Context, _ *mcp.CallToolRequest, input ListGenerationsInput) (
	*mcp.CallToolResult,
	ListGenerationsOutput,
	error,
) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	cps, err := s.checkpoints.ListIncomplete(ctx, 0, limit)
	if err != nil {
		return nil, ListGenerationsOutput{}, MapError(err)
	}

	out := ListGenerationsOutput{Generations: make([]GenerationStatusOutput, 0, len(cps))}
	for _, cp := range cps {
		out.Generations = append(out.Generations, statusOutput(cp))
	}
	return nil, out, nil
}

func statusOutput(cp *checkpoint.Checkpoint) GenerationStatusOutput {
	out := GenerationStatusOutput{
		RepoID:         cp.RepoID,
		Status:         string(cp.Status),
		Progress:       cp.Progress,
		CurrentStep:    cp.CurrentStep,
		TotalSteps:     cp.TotalSteps,
		CompletedSteps: cp.CompletedSteps,
		Files:          cp.Artifacts.TotalFiles,
		Error:          cp.Error,
	}
	if !cp.LastUpdated.IsZero() {
		out.LastUpdated = cp.LastUpdated.Format(time.RFC3339)
	}
	return out
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	if limit > maxSearchLimit {
		return maxSearchLimit
	}
	return limit
}
