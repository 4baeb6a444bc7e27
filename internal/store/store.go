// Package store persists the retrieval artifacts for a generation job: the
// flat vector index, its JSON metadata sidecar, and the bleve keyword index.
package store

import (
	"fmt"

	werrors "github.com/docweave/docweave/internal/errors"
)

// ChunkMeta describes one indexed chunk. The slice of these is the
// `<index>.meta.json` sidecar; its order matches vector positions exactly.
type ChunkMeta struct {
	// ChunkID is the chunk's global position across the whole index,
	// stable across resumed builds (appends continue the numbering).
	ChunkID    int    `json:"chunk_id"`
	Text       string `json:"text"`
	FilePath   string `json:"file_path"`
	Filename   string `json:"filename"`
	ChunkIndex int    `json:"chunk_index"`
}

// SearchResult is one vector search hit, ordered by descending similarity.
type SearchResult struct {
	// Position is the vector's position in the index.
	Position int

	// Distance is the squared L2 distance reported by the flat scan. The
	// retrieval thresholds are calibrated against these values, so it is
	// deliberately not square-rooted.
	Distance float32

	// Similarity is 1 / (1 + Distance), in (0, 1].
	Similarity float64

	// Meta is the metadata record at Position.
	Meta ChunkMeta
}

// KeywordHit is one keyword search hit.
type KeywordHit struct {
	ChunkID int
	Score   float64
	Terms   []string
}

func dimensionError(expected, got int) error {
	return werrors.New(werrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil)
}
