package store

import (
	"encoding/json"
	"fmt"
	"os"

	werrors "github.com/docweave/docweave/internal/errors"
)

// MetaPath returns the metadata sidecar path for an index path.
func MetaPath(indexPath string) string {
	return indexPath + ".meta.json"
}

// saveChunkMeta writes the metadata sidecar via temp file and rename.
func saveChunkMeta(indexPath string, meta []ChunkMeta) error {
	if meta == nil {
		meta = []ChunkMeta{}
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode chunk metadata: %w", err)
	}

	metaPath := MetaPath(indexPath)
	tmpPath := metaPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write chunk metadata: %w", err)
	}
	if err := os.Rename(tmpPath, metaPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename chunk metadata: %w", err)
	}
	return nil
}

// LoadChunkMeta reads the metadata sidecar for an index path.
func LoadChunkMeta(indexPath string) ([]ChunkMeta, error) {
	metaPath := MetaPath(indexPath)

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, werrors.New(werrors.ErrCodeMetadataMismatch,
			fmt.Sprintf("metadata sidecar missing: %s", metaPath), err)
	}

	var meta []ChunkMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, werrors.New(werrors.ErrCodeIndexCorrupt,
			fmt.Sprintf("metadata sidecar corrupt: %s", metaPath), err)
	}
	return meta, nil
}
