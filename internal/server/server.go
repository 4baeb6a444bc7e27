// Package server exposes the documentation pipeline over HTTP: job
// submission for repositories and uploaded archives, status and artifact
// retrieval, SSE progress streams, and a streaming chat proxy grounded in
// indexed corpora.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docweave/docweave/internal/async"
	"github.com/docweave/docweave/internal/checkpoint"
	werrors "github.com/docweave/docweave/internal/errors"
	"github.com/docweave/docweave/internal/fetch"
	"github.com/docweave/docweave/internal/llm"
	"github.com/docweave/docweave/internal/metrics"
	"github.com/docweave/docweave/internal/rag"
	"github.com/docweave/docweave/pkg/version"
)

// DefaultEventPollInterval is how often the SSE progress stream samples
// job snapshots when the caller does not override it.
const DefaultEventPollInterval = 500 * time.Millisecond

// AskEngine answers questions over an indexed corpus. *rag.Engine
// satisfies it.
type AskEngine interface {
	Ask(ctx context.Context, indexRef, question string, opts rag.AskOptions) (*llm.Stream, error)
	LatestIndexRef(repoID string) (string, error)
}

// ChatStreamer opens a plain streaming chat call. *llm.Client satisfies
// it.
type ChatStreamer interface {
	ChatStream(ctx context.Context, req llm.ChatRequest) (*llm.Stream, error)
}

// Config tunes the HTTP server.
type Config struct {
	// Host and Port form the listen address.
	Host string
	Port int

	// CORSOrigins lists allowed origins. Empty or "*" allows any.
	CORSOrigins []string

	// GitHub configures corpus fetching for submitted repositories.
	GitHub fetch.GitHubConfig

	// ZipLimits bounds how much of an uploaded archive is admitted.
	ZipLimits fetch.Limits

	// UploadDir, when set, is served under /uploads for rendered PDFs.
	UploadDir string

	// EventPollInterval is the SSE progress sampling cadence.
	EventPollInterval time.Duration
}

// Dependencies are the collaborators behind the API.
type Dependencies struct {
	// Manager runs and tracks background jobs (required).
	Manager *async.Manager

	// Checkpoints resolves jobs from previous runs of the process
	// (required). Use checkpoint.NopStore when persistence is disabled.
	Checkpoints checkpoint.Store

	// Engine answers corpus-grounded chat. Nil disables it.
	Engine AskEngine

	// Chat answers plain chat without a corpus. Nil disables it.
	Chat ChatStreamer

	// Metrics counts jobs and serves /metrics. Nil disables both.
	Metrics *metrics.Metrics
}

// Server is the HTTP front end over the async job manager.
type Server struct {
	cfg  Config
	deps Dependencies
	http *http.Server
}

// New builds the server and its router.
func New(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Manager == nil {
		return nil, fmt.Errorf("job manager is required")
	}
	if deps.Checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if cfg.EventPollInterval <= 0 {
		cfg.EventPollInterval = DefaultEventPollInterval
	}

	s := &Server{cfg: cfg, deps: deps}
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(), cors(s.cfg.CORSOrigins))

	r.GET("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}
	if s.cfg.UploadDir != "" {
		r.Static("/uploads", s.cfg.UploadDir)
	}

	api := r.Group("/api")
	{
		api.POST("/generations", s.handleCreateGeneration)
		api.POST("/uploads", s.handleUpload)
		api.GET("/generations", s.handleListGenerations)
		api.GET("/generations/:repo_id", s.handleGetGeneration)
		api.DELETE("/generations/:repo_id", s.handleDeleteGeneration)
		api.GET("/generations/:repo_id/markdown", s.handleMarkdown)
		api.GET("/events/:repo_id", s.handleEvents)
		api.POST("/chat", s.handleChat)
	}
	return r
}

// Handler returns the HTTP handler behind the server, for tests and
// embedding.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	err := s.http.ListenAndServe()
	if stderrors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests. Background jobs keep running;
// stopping them is the job manager's concern.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Short()})
}

// writeError renders an error as the API envelope, mapping its category
// to an HTTP status.
func writeError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	var we *werrors.WeaveError
	if stderrors.As(err, &we) {
		body["error"] = we.Message
		body["code"] = we.Code
		if we.Suggestion != "" {
			body["suggestion"] = we.Suggestion
		}
	}
	c.JSON(werrors.HTTPStatus(err), body)
}

// countStarted records a job submission when metrics are wired.
func (s *Server) countStarted(sourceType fetch.SourceType) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.JobStarted(string(sourceType))
	}
}
