// Package ui provides terminal UI components for generation progress and
// job status display.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage represents a documentation generation stage.
type Stage int

const (
	// StageFetching is the corpus download stage.
	StageFetching Stage = iota
	// StageScanning is the corpus scanning stage.
	StageScanning
	// StageIndexing is the chunking, embedding, and index building stage.
	StageIndexing
	// StageWriting is the outline and chapter generation stage.
	StageWriting
	// StageMerging is the document merge and render stage.
	StageMerging
	// StageComplete indicates generation is complete.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageFetching:
		return "Fetching"
	case StageScanning:
		return "Scanning"
	case StageIndexing:
		return "Indexing"
	case StageWriting:
		return "Writing"
	case StageMerging:
		return "Merging"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage icon for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageFetching:
		return "FETCH"
	case StageScanning:
		return "SCAN"
	case StageIndexing:
		return "INDEX"
	case StageWriting:
		return "WRITE"
	case StageMerging:
		return "MERGE"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// StageForStatus maps a checkpoint status string to a display stage.
func StageForStatus(status string) Stage {
	switch status {
	case "scanning":
		return StageScanning
	case "indexing":
		return StageIndexing
	case "generating":
		return StageWriting
	case "merging":
		return StageMerging
	case "completed":
		return StageComplete
	default:
		// pending, ingesting, and anything unrecognized start at the front
		return StageFetching
	}
}

// ProgressEvent represents a progress update for a generation job.
type ProgressEvent struct {
	Stage   Stage
	Percent int    // Overall job progress, 0-100
	Current int    // Completed chapters (0 outside the writing stage)
	Total   int    // Planned chapters (0 until the outline exists)
	Step    string // Human-readable current step
}

// ErrorEvent represents an error during generation.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// CompletionStats contains final generation statistics.
type CompletionStats struct {
	Files        int
	Chapters     int
	Duration     time.Duration
	Errors       int
	Warnings     int
	MarkdownPath string
	PDFPath      string
}

// Renderer defines the interface for progress display.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	RepoName   string // Repository name to display in header
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithRepoName sets the repository name to display in the header.
func WithRepoName(name string) ConfigOption {
	return func(c *Config) {
		c.RepoName = name
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{
		Output:     output,
		ForcePlain: false,
		NoColor:    false,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

// NewRenderer creates an appropriate renderer based on config and environment.
// It returns a TUI renderer for interactive terminals, and a plain text
// renderer for CI environments, pipes, or when --no-tui is specified.
func NewRenderer(cfg Config) Renderer {
	// Force plain mode if requested
	if cfg.ForcePlain {
		return NewPlainRenderer(cfg)
	}

	// Use plain mode for non-TTY outputs
	if !IsTTY(cfg.Output) {
		return NewPlainRenderer(cfg)
	}

	// Use plain mode in CI environments
	if DetectCI() {
		return NewPlainRenderer(cfg)
	}

	// Try TUI mode, fall back to plain on failure
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}

	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}

	// Check if it's a file that's a terminal
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
