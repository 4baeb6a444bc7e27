// Package rag builds and queries the retrieval substrate behind
// documentation generation and corpus chat.
//
// Build chunks a fetched corpus, embeds every chunk, and persists three
// artifacts side by side: the flat vector index, its metadata sidecar, and a
// keyword index. Query retrieves chunks for a set of queries with an
// escalating threshold policy that always prefers returning something over
// returning nothing. Ask answers a free-form question over an index,
// splitting oversized context into a multipart synthesis.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docweave/docweave/internal/chunk"
	"github.com/docweave/docweave/internal/embed"
	werrors "github.com/docweave/docweave/internal/errors"
	"github.com/docweave/docweave/internal/fetch"
	"github.com/docweave/docweave/internal/llm"
	"github.com/docweave/docweave/internal/store"
)

const (
	// DefaultTopK is the per-query retrieval depth.
	DefaultTopK = 5

	// DefaultMaxContextTokens bounds the estimated prompt footprint of a
	// single chat call. Anything larger goes through multipart synthesis.
	DefaultMaxContextTokens = 5000
)

// ChatClient is the slice of the LLM client the engine needs: bare
// completions for multipart partial answers and a normalized stream for the
// final response.
type ChatClient interface {
	Complete(ctx context.Context, req llm.ChatRequest) (string, error)
	ChatStream(ctx context.Context, req llm.ChatRequest) (*llm.Stream, error)
}

// Config holds engine settings. Zero values fall back to the defaults above
// and the chunker's word budgets.
type Config struct {
	// IndexDir is where index artifacts are written.
	IndexDir string

	// ChunkSizeWords and OverlapWords configure the splitter.
	ChunkSizeWords int
	OverlapWords   int

	// TopK is the default retrieval depth when callers pass 0.
	TopK int

	// MaxContextTokens overrides DefaultMaxContextTokens when positive.
	MaxContextTokens int

	// CodeAware splits source files on declaration boundaries instead of
	// sentences. Off by default; the sentence splitter handles code
	// acceptably and needs no grammars.
	CodeAware bool

	// OnRetrieval, when set, observes which threshold tier satisfied each
	// retrieval. Called from Query with one of the Tier constants.
	OnRetrieval func(tier string)
}

// Engine ties the embedder, the index store, and the chat client together.
type Engine struct {
	embedder embed.Embedder
	chat     ChatClient
	cfg      Config

	splitter *chunk.Splitter
	code     *chunk.CodeSplitter
}

// New creates an engine. The chat client may be nil when only Build and
// Query are used.
func New(embedder embed.Embedder, chat ChatClient, cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = DefaultMaxContextTokens
	}

	e := &Engine{
		embedder: embedder,
		chat:     chat,
		cfg:      cfg,
		splitter: chunk.NewSplitter(cfg.ChunkSizeWords, cfg.OverlapWords),
	}
	if cfg.CodeAware {
		e.code = chunk.NewCodeSplitter(cfg.ChunkSizeWords, cfg.OverlapWords)
	}
	return e
}

// Close releases splitter resources.
func (e *Engine) Close() {
	if e.code != nil {
		e.code.Close()
	}
}

// BuildOptions tune a single build.
type BuildOptions struct {
	// ExistingRef appends this build's chunks to a previous index instead
	// of creating a fresh one. Chunk ids continue from the current
	// metadata length. When the referenced artifacts no longer load, the
	// build silently starts fresh.
	ExistingRef string

	// OnProgress, when set, receives embedding progress after each chunk.
	OnProgress func(done, total int)
}

// BuildResult reports what a build produced.
type BuildResult struct {
	// IndexRef is the vector artifact path; the sidecar and keyword index
	// paths derive from it.
	IndexRef string

	// Meta is the full metadata of the index after the build, existing
	// records included.
	Meta []store.ChunkMeta

	// Files and Chunks count what this build contributed.
	Files  int
	Chunks int

	// Dimensions is the vector dimensionality of the saved index.
	Dimensions int

	// Warnings carries non-fatal problems, currently only keyword index
	// failures.
	Warnings []string
}

// Build chunks and embeds the corpus files and persists the index artifacts.
// Embedding is sequential; a single failed chunk fails the build, since a
// hole in the vector set would silently skew every later search.
func (e *Engine) Build(ctx context.Context, repoID string, files []fetch.CorpusFile, opts BuildOptions) (*BuildResult, error) {
	existing, existingMeta, indexRef := e.loadExisting(opts.ExistingRef)
	offset := len(existingMeta)

	texts, metas, fileCount := e.chunkFiles(ctx, files, offset)
	if len(texts) == 0 {
		return nil, werrors.ValidationError("No chunks created from repository files", nil)
	}

	slog.Info("index_build_started",
		slog.String("repo_id", repoID),
		slog.Int("files", fileCount),
		slog.Int("chunks", len(texts)),
		slog.Int("existing_chunks", offset))

	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vec, err := e.embedder.Embed(ctx, text)
		if err != nil {
			return nil, werrors.New(werrors.GetCode(err),
				fmt.Sprintf("Failed to embed chunk %d/%d", i+1, len(texts)), err)
		}
		vectors = append(vectors, vec)

		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(texts))
		}
		if (i+1)%10 == 0 {
			slog.Debug("embedding_progress",
				slog.Int("current", i+1), slog.Int("total", len(texts)))
		}
	}

	index := existing
	if index != nil {
		if err := index.Add(vectors, metas); err != nil {
			return nil, err
		}
	} else {
		var err error
		index, err = store.BuildFlatIndex(vectors, metas)
		if err != nil {
			return nil, err
		}
		indexRef = filepath.Join(e.cfg.IndexDir, fmt.Sprintf("%s_%d.index", repoID, time.Now().Unix()))
	}

	if err := index.Save(indexRef); err != nil {
		return nil, werrors.InternalError(fmt.Sprintf("Failed to save index to %s", indexRef), err)
	}
	if err := verifyArtifacts(indexRef); err != nil {
		return nil, err
	}

	result := &BuildResult{
		IndexRef:   indexRef,
		Meta:       append(existingMeta, metas...),
		Files:      fileCount,
		Chunks:     len(metas),
		Dimensions: index.Dimensions(),
	}

	if err := e.buildKeywordIndex(ctx, indexRef, metas); err != nil {
		warning := fmt.Sprintf("Keyword index unavailable: %v", err)
		result.Warnings = append(result.Warnings, warning)
		slog.Warn("keyword_index_build_failed",
			slog.String("index", indexRef),
			slog.String("error", err.Error()))
	}

	slog.Info("index_build_completed",
		slog.String("repo_id", repoID),
		slog.String("index", indexRef),
		slog.Int("chunks", index.Count()))
	return result, nil
}

// chunkFiles splits every non-empty file and assigns global chunk ids
// starting at offset.
func (e *Engine) chunkFiles(ctx context.Context, files []fetch.CorpusFile, offset int) (texts []string, metas []store.ChunkMeta, fileCount int) {
	for _, f := range files {
		if strings.TrimSpace(f.Content) == "" {
			continue
		}

		var pieces []string
		if e.code != nil && e.code.Supports(f.Path) {
			pieces = e.code.Split(ctx, f.Path, f.Content)
		} else {
			pieces = e.splitter.Split(f.Content)
		}

		added := false
		for _, piece := range pieces {
			if strings.TrimSpace(piece) == "" {
				continue
			}
			metas = append(metas, store.ChunkMeta{
				ChunkID:    offset + len(metas),
				Text:       piece,
				FilePath:   f.Path,
				Filename:   filepath.Base(f.Path),
				ChunkIndex: len(metas),
			})
			texts = append(texts, piece)
			added = true
		}
		if added {
			fileCount++
		}
	}
	return texts, metas, fileCount
}

// loadExisting opens the index named by ref for an additive build. Any load
// failure falls back to a fresh build; the previous artifacts stay on disk
// untouched until the new ones are written.
func (e *Engine) loadExisting(ref string) (*store.FlatIndex, []store.ChunkMeta, string) {
	if ref == "" {
		return nil, nil, ""
	}

	index, err := store.LoadFlatIndex(ref)
	if err != nil {
		slog.Warn("existing_index_unusable",
			slog.String("index", ref),
			slog.String("error", err.Error()))
		return nil, nil, ""
	}
	return index, index.HeadMeta(index.Count()), ref
}

// LatestIndexRef locates the newest index artifact built for repoID. Build
// names artifacts <repoID>_<unix>.index, so among same-length timestamps the
// lexicographically greatest path is the most recent build.
func (e *Engine) LatestIndexRef(repoID string) (string, error) {
	if repoID == "" {
		return "", werrors.ValidationError("A repository ID is required to locate an index", nil)
	}
	matches, err := filepath.Glob(filepath.Join(e.cfg.IndexDir, repoID+"_*.index"))
	if err != nil {
		return "", werrors.InternalError(fmt.Sprintf("Failed to scan index directory for '%s'", repoID), err)
	}
	latest := ""
	for _, m := range matches {
		// The glob also catches repositories whose ID extends this one;
		// a real match leaves only the timestamp between ID and extension.
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), repoID+"_"), ".index")
		if !allDigits(stamp) {
			continue
		}
		if latest == "" || m > latest {
			latest = m
		}
	}
	if latest == "" {
		return "", werrors.NotFoundError(
			fmt.Sprintf("No index found for '%s'. Generate documentation for it first.", repoID), nil)
	}
	return latest, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// verifyArtifacts confirms both vector artifacts exist after a save.
func verifyArtifacts(indexRef string) error {
	if _, err := os.Stat(indexRef); err != nil {
		return werrors.InternalError(fmt.Sprintf("Index artifact missing after save: %s", indexRef), err)
	}
	if _, err := os.Stat(store.MetaPath(indexRef)); err != nil {
		return werrors.InternalError(fmt.Sprintf("Metadata artifact missing after save: %s", store.MetaPath(indexRef)), err)
	}
	return nil
}

// buildKeywordIndex writes the bleve sidecar for this build's chunks.
func (e *Engine) buildKeywordIndex(ctx context.Context, indexRef string, metas []store.ChunkMeta) error {
	kw, err := store.OpenKeywordIndex(store.KeywordPath(indexRef))
	if err != nil {
		return err
	}
	defer kw.Close()
	return kw.Index(ctx, metas)
}
