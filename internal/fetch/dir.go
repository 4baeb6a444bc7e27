package fetch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	werrors "github.com/docweave/docweave/internal/errors"
	"github.com/docweave/docweave/internal/extract"
	"github.com/docweave/docweave/internal/scanner"
)

// DirConfig holds settings for ingesting a local directory.
type DirConfig struct {
	// FollowSymlinks resolves symlinked files instead of skipping them.
	FollowSymlinks bool

	// NoGitignore disables .gitignore handling. By default ignore rules
	// apply, matching what the repository's own tooling would index.
	NoGitignore bool

	// Limits bounds how much of the directory is admitted.
	Limits Limits
}

// DirSource walks a local directory through the scanner and runs whatever
// survives the walk through the shared filter pipeline.
type DirSource struct {
	dir    string
	cfg    DirConfig
	limits Limits
}

// NewDirSource prepares a source for the directory at dir.
func NewDirSource(dir string, cfg DirConfig) *DirSource {
	return &DirSource{dir: dir, cfg: cfg, limits: cfg.Limits.orDefaults()}
}

// Fetch scans the directory and reads every admitted file.
func (d *DirSource) Fetch(ctx context.Context) (*Corpus, error) {
	abs, err := filepath.Abs(d.dir)
	if err != nil {
		return nil, werrors.New(werrors.ErrCodeInvalidPath,
			fmt.Sprintf("resolving directory %s", d.dir), err)
	}

	sc, err := scanner.New()
	if err != nil {
		return nil, werrors.InternalError("creating scanner", err)
	}

	scanCtx, cancelScan := context.WithCancel(ctx)
	defer cancelScan()

	results, err := sc.Scan(scanCtx, scanner.ScanOptions{
		RootDir:          abs,
		RespectGitignore: !d.cfg.NoGitignore,
		FollowSymlinks:   d.cfg.FollowSymlinks,
	})
	if err != nil {
		return nil, werrors.New(werrors.ErrCodeInvalidPath, err.Error(), err)
	}

	sel := newSelector(d.limits)
	var included []CorpusFile

	for res := range results {
		if res.Error != nil {
			sel.warn("Scan error: %v", res.Error)
			continue
		}
		if sel.full {
			continue
		}

		f := res.File
		if !sel.consider(f.Path, int(f.Size)) {
			if sel.full {
				// Stop the walk; remaining buffered results drain above.
				cancelScan()
			}
			continue
		}

		content, err := extract.File(f.AbsPath)
		if err != nil {
			if werrors.GetCode(err) == werrors.ErrCodeNoContent {
				sel.skip(f.Path, "empty file")
			} else {
				sel.skip(f.Path, fmt.Sprintf("read error: %v", err))
			}
			continue
		}

		sel.accept(len(content))
		included = append(included, CorpusFile{
			Path:      f.Path,
			Content:   content,
			Size:      len(content),
			Extension: fileExtension(f.Path),
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(included) == 0 {
		return nil, werrors.ValidationError(
			"No supported files found in directory. Ensure the directory contains code files with allowed extensions.", nil)
	}

	name := filepath.Base(abs)
	return &Corpus{
		Source:     SourceDirectory,
		Owner:      "local",
		RepoName:   name,
		RepoID:     fmt.Sprintf("local_%s_%d", slugify(name), time.Now().Unix()),
		Included:   included,
		Skipped:    sel.skipped,
		Warnings:   sel.warnings,
		TotalFiles: sel.included,
		TotalChars: sel.chars,
	}, nil
}

// slugify keeps repo ids filesystem-safe; they name index artifacts later.
func slugify(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, s)
}
