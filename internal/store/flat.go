package store

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	werrors "github.com/docweave/docweave/internal/errors"
)

// flatMagic identifies the vector artifact on disk.
var flatMagic = []byte("DWVX1")

// FlatIndex is an append-only exact L2 index. Every search scans all rows,
// which stays comfortably fast at corpus scale (a few thousand chunks) and
// never misses a neighbor.
//
// Vectors and metadata are kept in lockstep: every Add takes both, so the
// metadata count equals the vector count at all observable points.
type FlatIndex struct {
	mu      sync.RWMutex
	dim     int
	vectors []float32 // row-major, len == Count()*dim
	meta    []ChunkMeta
}

// BuildFlatIndex creates an index from the first batch of vectors.
// The dimension is fixed by the first vector.
func BuildFlatIndex(vectors [][]float32, meta []ChunkMeta) (*FlatIndex, error) {
	if len(vectors) == 0 {
		return nil, werrors.New(werrors.ErrCodeEmptyCorpus, "no embeddings provided to build index", nil)
	}

	x := &FlatIndex{dim: len(vectors[0])}
	if err := x.Add(vectors, meta); err != nil {
		return nil, err
	}
	return x, nil
}

// Add appends vectors with their metadata records.
func (x *FlatIndex) Add(vectors [][]float32, meta []ChunkMeta) error {
	if len(vectors) != len(meta) {
		return werrors.New(werrors.ErrCodeMetadataMismatch,
			fmt.Sprintf("vectors and metadata length mismatch: %d vs %d", len(vectors), len(meta)), nil)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for _, v := range vectors {
		if len(v) != x.dim {
			return dimensionError(x.dim, len(v))
		}
	}

	for _, v := range vectors {
		x.vectors = append(x.vectors, v...)
	}
	x.meta = append(x.meta, meta...)
	return nil
}

// Count returns the number of indexed vectors.
func (x *FlatIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.meta)
}

// Dimensions returns the vector dimension.
func (x *FlatIndex) Dimensions() int {
	return x.dim
}

// MetaAt returns the metadata record at a vector position.
func (x *FlatIndex) MetaAt(pos int) (ChunkMeta, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if pos < 0 || pos >= len(x.meta) {
		return ChunkMeta{}, false
	}
	return x.meta[pos], true
}

// HeadMeta returns up to n metadata records from the front of the index.
func (x *FlatIndex) HeadMeta(n int) []ChunkMeta {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if n > len(x.meta) {
		n = len(x.meta)
	}
	if n <= 0 {
		return nil
	}
	out := make([]ChunkMeta, n)
	copy(out, x.meta[:n])
	return out
}

// Search returns up to topK hits ordered by descending similarity, where
// similarity is 1 / (1 + distance).
//
// With minSimilarity > 0 the scan considers 3*topK nearest candidates and
// filters them by the threshold, so a strict threshold can return fewer
// than topK hits. With minSimilarity == 0 no filtering happens and exactly
// the topK nearest come back.
func (x *FlatIndex) Search(query []float32, topK int, minSimilarity float64) ([]SearchResult, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(query) != x.dim {
		return nil, dimensionError(x.dim, len(query))
	}

	count := len(x.meta)
	if count == 0 || topK <= 0 {
		return nil, nil
	}

	searchK := topK
	if minSimilarity > 0 {
		searchK = topK * 3
	}
	if searchK > count {
		searchK = count
	}

	dists := make([]float32, count)
	for pos := 0; pos < count; pos++ {
		dists[pos] = squaredL2(query, x.vectors[pos*x.dim:(pos+1)*x.dim])
	}

	order := make([]int, count)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		if dists[order[i]] != dists[order[j]] {
			return dists[order[i]] < dists[order[j]]
		}
		return order[i] < order[j]
	})

	results := make([]SearchResult, 0, topK)
	for _, pos := range order[:searchK] {
		sim := 1.0 / (1.0 + float64(dists[pos]))
		if minSimilarity > 0 && sim < minSimilarity {
			continue
		}
		results = append(results, SearchResult{
			Position:   pos,
			Distance:   dists[pos],
			Similarity: sim,
			Meta:       x.meta[pos],
		})
		if len(results) >= topK {
			break
		}
	}
	return results, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(sum)
}

// Save writes the vector artifact, then the metadata sidecar. Both writes
// go through a temp file and rename; the sidecar is written strictly after
// the index so a loader never sees metadata for vectors that do not exist.
func (x *FlatIndex) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}

	if err := x.encode(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write index: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	return saveChunkMeta(path, x.meta)
}

func (x *FlatIndex) encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(flatMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(x.dim)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(x.meta))); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, x.vectors); err != nil {
		return err
	}
	return bw.Flush()
}

// LoadFlatIndex reads both artifacts back and validates that they agree.
func LoadFlatIndex(path string) (*FlatIndex, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat index file: %w", err)
	}

	r := bufio.NewReader(file)

	magic := make([]byte, len(flatMagic))
	if _, err := io.ReadFull(r, magic); err != nil || !bytes.Equal(magic, flatMagic) {
		return nil, werrors.New(werrors.ErrCodeIndexCorrupt,
			fmt.Sprintf("%s is not a vector index artifact", path), err)
	}

	var dim32, count32 uint32
	if err := binary.Read(r, binary.LittleEndian, &dim32); err != nil {
		return nil, werrors.New(werrors.ErrCodeIndexCorrupt, "truncated index header", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count32); err != nil {
		return nil, werrors.New(werrors.ErrCodeIndexCorrupt, "truncated index header", err)
	}

	dim, count := int(dim32), int(count32)
	if dim == 0 {
		return nil, werrors.New(werrors.ErrCodeIndexCorrupt, "index header has zero dimension", nil)
	}
	expected := int64(len(flatMagic)) + 8 + int64(dim)*int64(count)*4
	if info.Size() != expected {
		return nil, werrors.New(werrors.ErrCodeIndexCorrupt,
			fmt.Sprintf("index size %d does not match header (want %d)", info.Size(), expected), nil)
	}

	vectors := make([]float32, dim*count)
	if err := binary.Read(r, binary.LittleEndian, vectors); err != nil {
		return nil, werrors.New(werrors.ErrCodeIndexCorrupt, "truncated vector data", err)
	}

	meta, err := LoadChunkMeta(path)
	if err != nil {
		return nil, err
	}
	if len(meta) != count {
		return nil, werrors.New(werrors.ErrCodeMetadataMismatch,
			fmt.Sprintf("metadata count %d does not match vector count %d", len(meta), count), nil)
	}

	return &FlatIndex{dim: dim, vectors: vectors, meta: meta}, nil
}
