// Package docgen is the embeddable front door to the documentation
// pipeline: point it at OpenAI-compatible endpoints, hand it a corpus
// source, and get merged Markdown back. The docweave CLI and HTTP
// server are wrappers around the same internals; this package exposes
// them to Go programs without the process boundary.
package docgen

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/docweave/docweave/internal/chapter"
	"github.com/docweave/docweave/internal/checkpoint"
	"github.com/docweave/docweave/internal/config"
	"github.com/docweave/docweave/internal/embed"
	"github.com/docweave/docweave/internal/fetch"
	"github.com/docweave/docweave/internal/llm"
	"github.com/docweave/docweave/internal/outline"
	"github.com/docweave/docweave/internal/pipeline"
	"github.com/docweave/docweave/internal/rag"
)

// Config holds the connection and storage settings a Client needs.
// Zero values fall back to the same defaults the CLI uses.
type Config struct {
	// LLMBaseURL is the chat endpoint base, including the /v1 suffix
	// (default: http://localhost:11434/v1).
	LLMBaseURL string

	// EmbeddingsBaseURL is the embeddings endpoint base. Empty means
	// "same as LLMBaseURL".
	EmbeddingsBaseURL string

	// ChatModel and EmbedModel are model ids. Empty triggers discovery
	// from the endpoint's /models listing.
	ChatModel  string
	EmbedModel string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// GitHubToken authenticates repository fetches.
	GitHubToken string

	// DataDir holds indexes and checkpoints (default: ~/.docweave).
	DataDir string

	// RequestTimeout bounds ordinary model calls.
	RequestTimeout time.Duration

	// ChapterTimeout bounds a single chapter generation call.
	ChapterTimeout time.Duration
}

// Source produces the corpus for a generation run.
type Source struct {
	inner fetch.Source
	url   string
}

// GitHub ingests a public or token-accessible repository by URL.
func GitHub(repoURL string) Source {
	return Source{url: repoURL}
}

// Dir ingests a local directory, honoring its .gitignore.
func Dir(path string) Source {
	return Source{inner: fetch.NewDirSource(path, fetch.DirConfig{})}
}

// Zip ingests an archive already in memory.
func Zip(name string, data []byte) Source {
	return Source{inner: fetch.NewZipSource(data, fetch.ZipConfig{Name: name})}
}

// Result is a finished generation run.
type Result struct {
	// RepoID keys the run's index and checkpoint; pass it to Ask,
	// Search, and Resume.
	RepoID string

	// Markdown is the merged documentation.
	Markdown string

	// Chapters is how many chapters the outline produced.
	Chapters int

	// Files is how many corpus files were admitted.
	Files int

	// Warnings records recoverable degradations (skipped files,
	// stubbed chapters).
	Warnings []string
}

// Match is one search hit.
type Match struct {
	FilePath string
	ChunkID  int
	Text     string
}

// Client runs the documentation pipeline in-process.
type Client struct {
	cfg      *config.Config
	llm      *llm.Client
	embedder *embed.Client
	engine   *rag.Engine
	store    checkpoint.Store
	runner   *pipeline.Runner
}

// New wires a client from cfg. Call Close when done.
func New(cfg Config) (*Client, error) {
	base := config.NewConfig()
	if cfg.LLMBaseURL != "" {
		base.Endpoints.LLMBaseURL = cfg.LLMBaseURL
	}
	base.Endpoints.EmbeddingsBaseURL = cfg.EmbeddingsBaseURL
	base.Endpoints.ChatModel = cfg.ChatModel
	base.Endpoints.EmbedModel = cfg.EmbedModel
	base.Endpoints.APIKey = cfg.APIKey
	base.GitHub.Token = cfg.GitHubToken
	if cfg.DataDir != "" {
		base.Storage.DataDir = cfg.DataDir
	}
	if cfg.RequestTimeout > 0 {
		base.Endpoints.RequestTimeout = cfg.RequestTimeout
	}
	if cfg.ChapterTimeout > 0 {
		base.Generation.ChapterTimeout = cfg.ChapterTimeout
	}
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c := &Client{cfg: base}
	c.llm = llm.NewClient(llm.Config{
		BaseURL: base.Endpoints.LLMBaseURL,
		Model:   base.Endpoints.ChatModel,
		APIKey:  base.Endpoints.APIKey,
		Timeout: base.Endpoints.RequestTimeout,
	})
	c.embedder = embed.NewClient(embed.Config{
		BaseURL: base.ResolvedEmbeddingsBaseURL(),
		Model:   base.Endpoints.EmbedModel,
		APIKey:  base.Endpoints.APIKey,
		Timeout: base.Endpoints.RequestTimeout,
	})

	cached := embed.NewCachedClient(c.embedder, base.RAG.CacheSize)
	c.engine = rag.New(cached, c.llm, rag.Config{
		IndexDir:         filepath.Join(base.ResolvedDataDir(), "indexes"),
		ChunkSizeWords:   base.Chunking.ChunkSizeWords,
		OverlapWords:     base.Chunking.OverlapWords,
		TopK:             base.RAG.TopK,
		MaxContextTokens: base.RAG.MaxContextTokens,
	})

	cps, err := checkpoint.OpenSQLite(base.ResolvedCheckpointPath())
	if err != nil {
		c.Close()
		return nil, err
	}
	c.store = cps

	runner, err := pipeline.NewRunner(pipeline.Dependencies{
		Planner:     outline.NewPlanner(c.llm),
		Indexer:     c.engine,
		Chapters:    chapter.NewGenerator(c.engine, c.llm, base.Generation.ChapterTimeout),
		Checkpoints: cps,
		Config: pipeline.Config{
			UploadDir: filepath.Join(base.ResolvedDataDir(), "uploads"),
			GitHub: fetch.GitHubConfig{
				APIBase: base.GitHub.APIBase,
				Token:   base.GitHub.Token,
				Timeout: base.GitHub.FetchTimeout,
			},
		},
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	c.runner = runner

	return c, nil
}

// Generate runs the full pipeline for src and returns the merged
// documentation. Interrupted runs can be continued with Resume.
func (c *Client) Generate(ctx context.Context, src Source) (*Result, error) {
	inner := src.inner
	if inner == nil {
		if src.url == "" {
			return nil, errors.New("source is required")
		}
		gh, err := fetch.NewGitHubSource(src.url, fetch.GitHubConfig{
			APIBase: c.cfg.GitHub.APIBase,
			Token:   c.cfg.GitHub.Token,
			Timeout: c.cfg.GitHub.FetchTimeout,
		})
		if err != nil {
			return nil, err
		}
		inner = gh
	}

	res, err := c.runner.Run(ctx, pipeline.Request{Source: inner, SourceURL: src.url})
	if err != nil {
		return nil, err
	}
	return toResult(res), nil
}

// Resume continues an interrupted run from its last checkpoint.
func (c *Client) Resume(ctx context.Context, repoID string) (*Result, error) {
	res, err := c.runner.Resume(ctx, repoID)
	if err != nil {
		return nil, err
	}
	return toResult(res), nil
}

// Ask answers a question from the newest index built for repoID.
func (c *Client) Ask(ctx context.Context, repoID, question string) (string, error) {
	indexRef, err := c.engine.LatestIndexRef(repoID)
	if err != nil {
		return "", err
	}
	stream, err := c.engine.Ask(ctx, indexRef, question, rag.AskOptions{})
	if err != nil {
		return "", err
	}
	return stream.Text()
}

// Search returns the chunks most similar to query from the newest index
// built for repoID.
func (c *Client) Search(ctx context.Context, repoID, query string, limit int) ([]Match, error) {
	indexRef, err := c.engine.LatestIndexRef(repoID)
	if err != nil {
		return nil, err
	}
	chunks, err := c.engine.Query(ctx, indexRef, []string{query}, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(chunks))
	for _, m := range chunks {
		out = append(out, Match{FilePath: m.FilePath, ChunkID: m.ChunkID, Text: m.Text})
	}
	return out, nil
}

// Close releases clients and the checkpoint store.
func (c *Client) Close() error {
	var errs []error
	if c.engine != nil {
		c.engine.Close()
	}
	if c.llm != nil {
		errs = append(errs, c.llm.Close())
	}
	if c.embedder != nil {
		errs = append(errs, c.embedder.Close())
	}
	if c.store != nil {
		errs = append(errs, c.store.Close())
	}
	return errors.Join(errs...)
}

func toResult(res *pipeline.Result) *Result {
	return &Result{
		RepoID:   res.RepoID,
		Markdown: res.Markdown,
		Chapters: len(res.Chapters),
		Files:    res.RepoInfo.TotalFiles,
		Warnings: res.Warnings,
	}
}
