package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/docweave/docweave/internal/chapter"
	"github.com/docweave/docweave/internal/checkpoint"
	"github.com/docweave/docweave/internal/config"
	"github.com/docweave/docweave/internal/embed"
	"github.com/docweave/docweave/internal/fetch"
	"github.com/docweave/docweave/internal/llm"
	"github.com/docweave/docweave/internal/metrics"
	"github.com/docweave/docweave/internal/outline"
	"github.com/docweave/docweave/internal/pipeline"
	"github.com/docweave/docweave/internal/rag"
)

// loadConfig loads the layered configuration from the working directory.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// stack is the wired set of collaborators most commands need. Build what
// the command uses, close what was built.
type stack struct {
	cfg         *config.Config
	llm         *llm.Client
	embedder    *embed.Client
	engine      *rag.Engine
	checkpoints checkpoint.Store
	runner      *pipeline.Runner
	metrics     *metrics.Metrics
}

// stackOptions select the optional parts of the stack.
type stackOptions struct {
	// checkpoints opens the configured checkpoint backend. Commands that
	// only query an index leave it off.
	checkpoints bool

	// runner wires the full pipeline (implies checkpoints).
	runner bool

	// metrics adds counting wrappers around the endpoint clients, for
	// long-lived processes that expose /metrics.
	metrics bool

	// progress receives pipeline events when the runner is built.
	progress pipeline.ProgressSink
}

// chatLLM is the full call surface the pipeline needs from the LLM
// client. Both *llm.Client and *metrics.InstrumentedLLM satisfy it, so the
// counting wrapper drops in transparently.
type chatLLM interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (string, error)
	Complete(ctx context.Context, req llm.ChatRequest) (string, error)
	ChatStream(ctx context.Context, req llm.ChatRequest) (*llm.Stream, error)
}

// newStack wires clients and engines from the configuration.
func newStack(ctx context.Context, cfg *config.Config, opts stackOptions) (*stack, error) {
	s := &stack{cfg: cfg}

	if opts.metrics {
		s.metrics = metrics.New()
	}

	s.llm = llm.NewClient(llm.Config{
		BaseURL: cfg.Endpoints.LLMBaseURL,
		Model:   cfg.Endpoints.ChatModel,
		APIKey:  cfg.Endpoints.APIKey,
		Timeout: cfg.Endpoints.RequestTimeout,
	})
	s.embedder = embed.NewClient(embed.Config{
		BaseURL: cfg.ResolvedEmbeddingsBaseURL(),
		Model:   cfg.Endpoints.EmbedModel,
		APIKey:  cfg.Endpoints.APIKey,
		Timeout: cfg.Endpoints.RequestTimeout,
	})

	var chat chatLLM = s.llm
	var embedder embed.Embedder = embed.NewCachedClient(s.embedder, cfg.RAG.CacheSize)
	if s.metrics != nil {
		chat = s.metrics.WrapLLM(s.llm)
		embedder = s.metrics.WrapEmbedder(embedder)
	}

	ragCfg := rag.Config{
		IndexDir:         filepath.Join(cfg.ResolvedDataDir(), "indexes"),
		ChunkSizeWords:   cfg.Chunking.ChunkSizeWords,
		OverlapWords:     cfg.Chunking.OverlapWords,
		TopK:             cfg.RAG.TopK,
		MaxContextTokens: cfg.RAG.MaxContextTokens,
		CodeAware:        cfg.Chunking.CodeAware,
	}
	if s.metrics != nil {
		ragCfg.OnRetrieval = s.metrics.RetrievalTier
	}
	s.engine = rag.New(embedder, chat, ragCfg)

	if opts.checkpoints || opts.runner {
		store, err := openCheckpoints(ctx, cfg)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.checkpoints = store
	}

	if opts.runner {
		planner := outline.NewPlanner(chat)
		var chapters pipeline.ChapterWriter = chapter.NewGenerator(
			s.engine, chat, cfg.Generation.ChapterTimeout)
		if s.metrics != nil {
			chapters = s.metrics.WrapChapters(chapters)
		}

		var pdf pipeline.PDFRenderer
		if cfg.Generation.PDFRendererURL != "" {
			pdf = pipeline.NewWebhookRenderer(cfg.Generation.PDFRendererURL, cfg.Endpoints.RequestTimeout)
		}

		progress := opts.progress
		if s.metrics != nil {
			if progress != nil {
				progress = pipeline.MultiSink(progress, s.metrics)
			} else {
				progress = s.metrics
			}
		}

		runner, err := pipeline.NewRunner(pipeline.Dependencies{
			Planner:     planner,
			Indexer:     s.engine,
			Chapters:    chapters,
			Checkpoints: s.checkpoints,
			PDF:         pdf,
			Progress:    progress,
			Config: pipeline.Config{
				UploadDir: filepath.Join(cfg.ResolvedDataDir(), "uploads"),
				GitHub:    githubConfig(cfg),
			},
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		s.runner = runner
	}

	return s, nil
}

// Close releases everything the stack opened.
func (s *stack) Close() {
	if s.engine != nil {
		s.engine.Close()
	}
	if s.llm != nil {
		_ = s.llm.Close()
	}
	if s.embedder != nil {
		_ = s.embedder.Close()
	}
	if s.checkpoints != nil {
		_ = s.checkpoints.Close()
	}
}

// openCheckpoints opens the configured checkpoint backend.
func openCheckpoints(ctx context.Context, cfg *config.Config) (checkpoint.Store, error) {
	switch strings.ToLower(cfg.Checkpoints.Backend) {
	case "none":
		return checkpoint.NopStore{}, nil
	case "postgres":
		return checkpoint.NewPostgresStore(ctx, cfg.Checkpoints.PostgresDSN)
	default:
		return checkpoint.OpenSQLite(cfg.ResolvedCheckpointPath())
	}
}

// githubConfig maps the loaded configuration onto the fetch package.
func githubConfig(cfg *config.Config) fetch.GitHubConfig {
	return fetch.GitHubConfig{
		APIBase: cfg.GitHub.APIBase,
		Token:   cfg.GitHub.Token,
		Timeout: cfg.GitHub.FetchTimeout,
		Limits:  corpusLimits(cfg),
	}
}

// corpusLimits maps the filter budgets onto the fetch package.
func corpusLimits(cfg *config.Config) fetch.Limits {
	return fetch.Limits{
		MaxFiles:      cfg.Filters.MaxFiles,
		MaxTotalChars: cfg.Filters.MaxTotalBytes,
		MaxFileBytes:  cfg.Filters.MaxFileBytes,
	}
}
