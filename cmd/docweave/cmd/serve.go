package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docweave/docweave/internal/async"
	"github.com/docweave/docweave/internal/config"
	"github.com/docweave/docweave/internal/fetch"
	"github.com/docweave/docweave/internal/logging"
	"github.com/docweave/docweave/internal/pipeline"
	"github.com/docweave/docweave/internal/server"
	"github.com/docweave/docweave/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var (
		host     string
		port     int
		watchDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Run the HTTP API server.

The server accepts generation jobs over REST (GitHub URLs and zip
uploads), streams progress over SSE, serves finished artifacts, and
proxies corpus-grounded chat. Interrupted jobs from previous runs are
listed under /api/generations and resumable via the API.

With --watch, the server also watches a local directory and submits a
fresh generation job whenever its files settle after a change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if watchDir != "" {
				cfg.Watch.Enabled = true
			}
			return runServe(cmd.Context(), cfg, watchDir)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Listen host")
	cmd.Flags().IntVar(&port, "port", 8765, "Listen port")
	cmd.Flags().StringVar(&watchDir, "watch", "", "Directory to watch; regenerate documentation on changes")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, watchDir string) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	logCfg.FilePath = logging.ServerLogPath()
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := async.NewManager(async.ManagerConfig{DataDir: cfg.ResolvedDataDir()})

	s, err := newStack(ctx, cfg, stackOptions{
		runner:   true,
		metrics:  true,
		progress: manager,
	})
	if err != nil {
		return err
	}
	defer s.Close()
	manager.Runner = s.runner

	srv, err := server.New(server.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		GitHub:      githubConfig(cfg),
		ZipLimits:   corpusLimits(cfg),
		UploadDir:   filepath.Join(cfg.ResolvedDataDir(), "uploads"),
	}, server.Dependencies{
		Manager:     manager,
		Checkpoints: s.checkpoints,
		Engine:      s.engine,
		Chat:        s.llm,
		Metrics:     s.metrics,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", slog.String("addr", srv.Addr()))
		errCh <- srv.Start()
	}()

	if watchDir != "" {
		if err := startWatch(ctx, cfg, manager, watchDir); err != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			return err
		}
	}

	select {
	case <-ctx.Done():
		slog.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Server shutdown incomplete", slog.String("error", err.Error()))
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Jobs did not stop cleanly", slog.String("error", err.Error()))
	}
	return nil
}

// startWatch submits a generation job for dir each time the watcher
// reports a settled batch of changes.
func startWatch(ctx context.Context, cfg *config.Config, manager *async.Manager, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("invalid watch directory: %w", err)
	}

	debounce, err := time.ParseDuration(cfg.Watch.Debounce)
	if err != nil {
		debounce = 500 * time.Millisecond
	}
	w, err := watcher.New(watcher.Config{
		Dir:      abs,
		Debounce: debounce,
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", abs, err)
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", abs, err)
	}

	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				slog.Warn("Watcher error", slog.String("error", err.Error()))
			case batch, ok := <-w.Events():
				if !ok {
					return
				}
				slog.Info("Directory changed, regenerating",
					slog.String("dir", abs),
					slog.Int("events", len(batch)))
				src := fetch.NewDirSource(abs, fetch.DirConfig{Limits: corpusLimits(cfg)})
				if _, err := manager.Submit(pipeline.Request{Source: src, SourceURL: abs}); err != nil {
					slog.Warn("Watch job not submitted", slog.String("error", err.Error()))
				}
			}
		}
	}()

	slog.Info("Watching directory", slog.String("dir", abs))
	return nil
}
