package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docweave/docweave/internal/logging"
	"github.com/docweave/docweave/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server over stdio",
		Long: `Run the MCP server over stdio.

Exposes indexed corpora and generation jobs to MCP clients such as
Claude Code and Cursor: ask_corpus, search_corpus, keyword_search,
generation_status, and list_generations.

Stdout carries the protocol, so logs go to file only. Register with:

  claude mcp add docweave -- docweave mcp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Stdout is the transport; keep it clean.
			logCfg := logging.DefaultConfig()
			logCfg.WriteToStderr = false
			logger, cleanup, err := logging.Setup(logCfg)
			if err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}
			defer cleanup()
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			s, err := newStack(ctx, cfg, stackOptions{checkpoints: true})
			if err != nil {
				return err
			}
			defer s.Close()

			srv, err := mcp.NewServer(s.engine, s.checkpoints)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
}
