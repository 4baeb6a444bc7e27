package fetch

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	werrors "github.com/docweave/docweave/internal/errors"
	"github.com/docweave/docweave/internal/extract"
)

// ZipConfig holds settings for ingesting an uploaded archive.
type ZipConfig struct {
	// Name labels the corpus; uploads usually carry a user-facing title.
	Name string

	// Limits bounds how much of the archive is admitted.
	Limits Limits
}

// ZipSource reads a corpus from an in-memory zip archive. Entries run
// through the same filter pipeline as repository trees; unsafe paths and
// undecodable entries are skipped with a reason.
type ZipSource struct {
	data   []byte
	name   string
	limits Limits
}

// NewZipSource wraps uploaded archive bytes.
func NewZipSource(data []byte, cfg ZipConfig) *ZipSource {
	name := cfg.Name
	if name == "" {
		name = "Uploaded Project"
	}
	return &ZipSource{
		data:   data,
		name:   name,
		limits: cfg.Limits.orDefaults(),
	}
}

// Fetch extracts, filters, and decodes the archive.
func (z *ZipSource) Fetch(ctx context.Context) (*Corpus, error) {
	reader, err := zip.NewReader(bytes.NewReader(z.data), int64(len(z.data)))
	if err != nil {
		return nil, werrors.New(werrors.ErrCodeInvalidArchive, "Invalid zip file format", err)
	}

	sel := newSelector(z.limits)
	var included []CorpusFile

	for _, entry := range reader.File {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if strings.HasSuffix(entry.Name, "/") {
			continue
		}

		entryPath, ok := safeZipPath(entry.Name)
		if !ok {
			sel.skip(entry.Name, "unsafe path")
			continue
		}

		if !sel.consider(entryPath, int(entry.UncompressedSize64)) {
			if sel.full {
				break
			}
			continue
		}

		data, err := readZipEntry(entry)
		if err != nil {
			sel.skip(entryPath, fmt.Sprintf("read error: %v", err))
			continue
		}
		content, err := extract.Bytes(entryPath, data)
		if err != nil {
			if werrors.GetCode(err) == werrors.ErrCodeNoContent {
				sel.skip(entryPath, "empty file")
			} else {
				sel.skip(entryPath, fmt.Sprintf("read error: %v", err))
			}
			continue
		}

		sel.accept(len(content))
		included = append(included, CorpusFile{
			Path:      entryPath,
			Content:   content,
			Size:      len(content),
			Extension: fileExtension(entryPath),
		})
	}

	if len(included) == 0 {
		return nil, werrors.ValidationError(
			"No supported files found in zip archive. Ensure the zip contains code files with allowed extensions.", nil)
	}

	return &Corpus{
		Source:     SourceZipUpload,
		Owner:      "user",
		RepoName:   z.name,
		RepoID:     fmt.Sprintf("zip_upload_%d", time.Now().Unix()),
		Included:   included,
		Skipped:    sel.skipped,
		Warnings:   sel.warnings,
		TotalFiles: sel.included,
		TotalChars: sel.chars,
	}, nil
}

// safeZipPath normalizes an archive entry name and rejects anything that
// would escape the extraction root.
func safeZipPath(name string) (string, bool) {
	p := strings.ReplaceAll(name, `\`, "/")
	p = strings.TrimPrefix(p, "./")
	if p == "" || strings.HasPrefix(p, "/") {
		return "", false
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}

func readZipEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
