package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	werrors "github.com/docweave/docweave/internal/errors"
	"github.com/docweave/docweave/internal/output"
	"github.com/docweave/docweave/internal/store"
)

func newSearchCmd() *cobra.Command {
	var (
		semantic bool
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "search <repo_id> <query...>",
		Short: "Search an indexed repository",
		Long: `Search the newest index built for a repository.

By default the keyword index answers: identifier-aware text matching
that splits camelCase and snake_case terms. --semantic searches the
vector index instead, ranking chunks by embedding similarity.`,
		Example: `  # Keyword search
  docweave search acme_tool_1756180000 "retry backoff"

  # Semantic search
  docweave search acme_tool_1756180000 --semantic "how errors propagate"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args[1:], " ")
			return runSearch(cmd.Context(), args[0], query, semantic, limit)
		},
	}

	cmd.Flags().BoolVar(&semantic, "semantic", false, "Search the vector index instead of the keyword index")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")

	return cmd
}

func runSearch(ctx context.Context, repoID, query string, semantic bool, limit int) error {
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

	w := output.New(os.Stdout)

	if semantic {
		chunks, err := s.engine.Query(ctx, indexRef, []string{query}, limit)
		if err != nil {
			return fmt.Errorf("%s", werrors.FormatForCLI(err))
		}
		printChunks(w, chunks)
		return nil
	}

	keyword, err := store.OpenKeywordIndex(store.KeywordPath(indexRef))
	if err != nil {
		return fmt.Errorf("keyword index unavailable: %w\nTry --semantic, or rebuild the index", err)
	}
	defer func() { _ = keyword.Close() }()

	hits, err := keyword.Search(ctx, query, limit)
	if err != nil {
		return fmt.Errorf("keyword search failed: %w", err)
	}
	if len(hits) == 0 {
		w.Status("", "No matches.")
		return nil
	}

	meta, err := store.LoadChunkMeta(indexRef)
	if err != nil {
		return fmt.Errorf("%s", werrors.FormatForCLI(err))
	}
	byID := make(map[int]store.ChunkMeta, len(meta))
	for _, m := range meta {
		byID[m.ChunkID] = m
	}

	for i, hit := range hits {
		m, ok := byID[hit.ChunkID]
		if !ok {
			continue
		}
		w.Statusf("", "%d. %s (chunk %d, score %.2f)", i+1, m.FilePath, m.ChunkID, hit.Score)
		if len(hit.Terms) > 0 {
			w.Statusf("", "   matched: %s", strings.Join(hit.Terms, ", "))
		}
		w.Code(snippet(m.Text))
		w.Newline()
	}
	return nil
}

func printChunks(w *output.Writer, chunks []store.ChunkMeta) {
	if len(chunks) == 0 {
		w.Status("", "No matches.")
		return
	}
	for i, m := range chunks {
		w.Statusf("", "%d. %s (chunk %d)", i+1, m.FilePath, m.ChunkID)
		w.Code(snippet(m.Text))
		w.Newline()
	}
}

// snippet trims chunk text for terminal display.
func snippet(text string) string {
	const maxLen = 400
	text = strings.TrimSpace(text)
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
