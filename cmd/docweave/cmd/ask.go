package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	werrors "github.com/docweave/docweave/internal/errors"
	"github.com/docweave/docweave/internal/rag"
)

func newAskCmd() *cobra.Command {
	var (
		topK        int
		temperature float64
	)

	cmd := &cobra.Command{
		Use:   "ask <repo_id> <question...>",
		Short: "Ask a question about an indexed repository",
		Long: `Answer a question using the newest index built for a repository.

Relevant chunks are retrieved and handed to the chat model; the answer
streams to the terminal as it is generated. Questions whose retrieved
context exceeds the model budget are answered in parts and synthesized
into one response.`,
		Example: `  docweave ask acme_tool_1756180000 "how does the retry logic work?"`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args[1:], " ")
			return runAsk(cmd.Context(), args[0], question, topK, temperature)
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 0, "Chunks to retrieve per query (default from config)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Sampling temperature (default 0.4)")

	return cmd
}

func runAsk(ctx context.Context, repoID, question string, topK int, temperature float64) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := newStack(ctx, cfg, stackOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	indexRef, err := s.engine.LatestIndexRef(repoID)
	if err != nil {
		return fmt.Errorf("%s", werrors.FormatForCLI(err))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := s.engine.Ask(ctx, indexRef, question, rag.AskOptions{
		TopK:        topK,
		Temperature: temperature,
	})
	if err != nil {
		return fmt.Errorf("%s", werrors.FormatForCLI(err))
	}

	for chunk := range stream.Chunks() {
		fmt.Print(chunk)
	}
	fmt.Println()

	if err := stream.Err(); err != nil {
		return fmt.Errorf("%s", werrors.FormatForCLI(err))
	}
	return nil
}
