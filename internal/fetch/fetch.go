// Package fetch acquires documentation corpora from GitHub repositories,
// uploaded zip archives, and local directories. Every source runs the same
// filter pipeline (ignored paths, extension whitelist, size budgets) so the
// indexer receives one shape regardless of origin.
package fetch

import "context"

// SourceType identifies where a corpus came from.
type SourceType string

const (
	SourceGitHub    SourceType = "github_repo"
	SourceZipUpload SourceType = "zip_upload"
	SourceDirectory SourceType = "directory"
)

// CorpusFile is one file admitted into a corpus.
type CorpusFile struct {
	Path      string `json:"path"`                // Canonical forward-slash path, unique within the corpus
	Content   string `json:"content"`             // Decoded text content
	Size      int    `json:"size"`                // Size counted against the total budget
	Extension string `json:"extension,omitempty"` // Lowercase extension without the dot, "" if none
}

// Corpus is the result of fetching and filtering one source.
type Corpus struct {
	Source   SourceType
	Owner    string
	RepoName string
	RepoID   string

	Included []CorpusFile
	Skipped  []string // "path (reason)" lines for every rejected file
	Warnings []string // Operator-facing notices: caps reached, download failures

	// TotalFiles and TotalChars are fixed when selection finishes. A file
	// that later fails to download is dropped from Included but stays in
	// the totals.
	TotalFiles int
	TotalChars int
}

// Limits bounds how much of a source is admitted.
type Limits struct {
	MaxFiles      int // Maximum number of files per corpus
	MaxTotalChars int // Cumulative character budget
	MaxFileBytes  int // Per-file size cap
}

// DefaultLimits returns the service defaults. Generation quality degrades
// well before these budgets do, so raising them is rarely the fix.
func DefaultLimits() Limits {
	return Limits{
		MaxFiles:      100,
		MaxTotalChars: 200000,
		MaxFileBytes:  200000,
	}
}

func (l Limits) orDefaults() Limits {
	d := DefaultLimits()
	if l.MaxFiles <= 0 {
		l.MaxFiles = d.MaxFiles
	}
	if l.MaxTotalChars <= 0 {
		l.MaxTotalChars = d.MaxTotalChars
	}
	if l.MaxFileBytes <= 0 {
		l.MaxFileBytes = d.MaxFileBytes
	}
	return l
}

// Source produces a corpus. Implementations: GitHubSource, ZipSource,
// DirSource.
type Source interface {
	Fetch(ctx context.Context) (*Corpus, error)
}
