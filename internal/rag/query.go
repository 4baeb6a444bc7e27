package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	werrors "github.com/docweave/docweave/internal/errors"
	"github.com/docweave/docweave/internal/store"
)

// Threshold tiers, tried in order until one returns at least one chunk.
const (
	specificThreshold = 0.2
	lowThreshold      = 0.1
)

// Tier names reported through Config.OnRetrieval.
const (
	TierAdaptive = "adaptive"
	TierLow      = "low"
	TierZero     = "zero"
	TierHead     = "head"
)

var tierNames = [...]string{TierAdaptive, TierLow, TierZero}

// genericWords marks a query as conversational rather than technical.
// Matching is per token; substring matching would catch "hi" inside
// "architecture" and make nearly every query generic.
var genericWords = map[string]struct{}{
	"hello": {}, "hi": {}, "hey": {}, "help": {},
	"what": {}, "how": {}, "why": {}, "when": {}, "where": {},
	"sales": {}, "tell": {}, "show": {},
}

// Query retrieves chunks for the given queries, deduplicated by index
// position in order of first appearance.
//
// Retrieval escalates through four tiers until one yields a chunk: an
// adaptive threshold (0.2, relaxed to 0 for generic queries and small
// indexes), a low threshold, no threshold, and finally the head of the
// index. Only an index with no usable chunks at all returns an error, so
// downstream prompts always have material to work with.
func (e *Engine) Query(ctx context.Context, indexRef string, queries []string, topK int) ([]store.ChunkMeta, error) {
	if topK <= 0 {
		topK = e.cfg.TopK
	}

	index, err := loadIndex(indexRef)
	if err != nil {
		return nil, err
	}

	vecs := e.embedQueries(ctx, queries)
	smallIndex := distinctFiles(index) <= 3

	adaptive := func(q string) float64 {
		if smallIndex || genericQuery(q) {
			return 0
		}
		return specificThreshold
	}
	fixed := func(threshold float64) func(string) float64 {
		return func(string) float64 { return threshold }
	}

	for tier, threshold := range []func(string) float64{
		adaptive, fixed(lowThreshold), fixed(0),
	} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if chunks := searchAll(index, vecs, topK, threshold); len(chunks) > 0 {
			if tier > 0 {
				slog.Debug("retrieval_threshold_relaxed",
					slog.Int("tier", tier), slog.Int("chunks", len(chunks)))
			}
			e.observeTier(tierNames[tier])
			return chunks, nil
		}
	}

	if chunks := headChunks(index, topK); len(chunks) > 0 {
		slog.Debug("retrieval_head_fallback", slog.Int("chunks", len(chunks)))
		e.observeTier(TierHead)
		return chunks, nil
	}

	return nil, werrors.NoContentError(
		"Index contains no retrievable content. Rebuild the index from the repository.")
}

func (e *Engine) observeTier(tier string) {
	if e.cfg.OnRetrieval != nil {
		e.cfg.OnRetrieval(tier)
	}
}

// loadIndex opens the vector index behind a reference.
func loadIndex(indexRef string) (*store.FlatIndex, error) {
	if _, err := os.Stat(indexRef); err != nil {
		return nil, werrors.NotFoundError(
			fmt.Sprintf("Index not found at '%s'. Rebuild the index to restore it.", indexRef), err)
	}
	return store.LoadFlatIndex(indexRef)
}

// queryVec pairs a query with its embedding.
type queryVec struct {
	query string
	vec   []float32
}

// embedQueries embeds each query once. Failures skip the query with a
// warning; the tier policy and head fallback keep retrieval alive even when
// every embedding fails.
func (e *Engine) embedQueries(ctx context.Context, queries []string) []queryVec {
	vecs := make([]queryVec, 0, len(queries))
	for _, q := range queries {
		if strings.TrimSpace(q) == "" {
			continue
		}
		vec, err := e.embedder.Embed(ctx, q)
		if err != nil {
			slog.Warn("query_embedding_failed",
				slog.String("query", q),
				slog.String("error", err.Error()))
			continue
		}
		vecs = append(vecs, queryVec{query: q, vec: vec})
	}
	return vecs
}

// searchAll runs every query at the tier's threshold and merges hits by
// first appearance.
func searchAll(index *store.FlatIndex, vecs []queryVec, topK int, threshold func(string) float64) []store.ChunkMeta {
	seen := make(map[int]struct{})
	var out []store.ChunkMeta
	for _, qv := range vecs {
		hits, err := index.Search(qv.vec, topK, threshold(qv.query))
		if err != nil {
			slog.Warn("index_search_failed",
				slog.String("query", qv.query),
				slog.String("error", err.Error()))
			continue
		}
		for _, hit := range hits {
			if _, dup := seen[hit.Position]; dup {
				continue
			}
			seen[hit.Position] = struct{}{}
			out = append(out, hit.Meta)
		}
	}
	return out
}

// headChunks returns the first topK non-empty chunks by position.
func headChunks(index *store.FlatIndex, topK int) []store.ChunkMeta {
	var out []store.ChunkMeta
	for pos := 0; pos < index.Count() && len(out) < topK; pos++ {
		meta, ok := index.MetaAt(pos)
		if !ok {
			break
		}
		if strings.TrimSpace(meta.Text) == "" {
			continue
		}
		out = append(out, meta)
	}
	return out
}

// genericQuery reports whether a query reads as conversational: short, or
// carrying a greeting or question word.
func genericQuery(q string) bool {
	words := strings.Fields(strings.ToLower(q))
	if len(words) <= 5 {
		return true
	}
	for _, w := range words {
		if _, ok := genericWords[strings.Trim(w, ".,!?;:'\"")]; ok {
			return true
		}
	}
	return false
}

// distinctFiles counts the distinct file paths in the index metadata.
func distinctFiles(index *store.FlatIndex) int {
	files := make(map[string]struct{})
	for pos := 0; pos < index.Count(); pos++ {
		meta, ok := index.MetaAt(pos)
		if !ok {
			break
		}
		files[meta.FilePath] = struct{}{}
	}
	return len(files)
}
