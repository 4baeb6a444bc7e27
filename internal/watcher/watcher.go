// Package watcher reports settled batches of file changes under a
// directory. fsnotify is the primary mechanism with a polling fallback
// for filesystems that do not deliver events (network mounts, some
// container volumes). Rapid changes from editors and git operations are
// coalesced per path before a batch is emitted, and ignored paths
// (.git, node_modules, and friends) never produce events.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/docweave/docweave/internal/gitignore"
)

// Operation is the kind of change observed on a path.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one coalesced change.
type FileEvent struct {
	// Path is relative to the watched directory.
	Path string

	Op    Operation
	IsDir bool

	// Time is when the change was last observed.
	Time time.Time
}

// alwaysIgnored are directory patterns that never produce events,
// on top of whatever .gitignore excludes.
var alwaysIgnored = []string{
	".git/",
	"node_modules/",
	"dist/",
	"build/",
	"venv/",
	"__pycache__/",
	".idea/",
	".vscode/",
	".docweave/",
}

// Config tunes the watcher.
type Config struct {
	// Dir is the directory to watch recursively (required).
	Dir string

	// Debounce is the quiet period before a batch is emitted
	// (default: 500ms).
	Debounce time.Duration

	// PollInterval is the scan cadence for the polling fallback
	// (default: 5s).
	PollInterval time.Duration

	// Ignore adds gitignore-syntax patterns on top of the built-in
	// ignores and the directory's .gitignore.
	Ignore []string

	// BufferSize is the batch channel capacity (default: 16).
	BufferSize int
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = 500 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 16
	}
	return c
}

// Watcher emits debounced batches of file changes.
type Watcher struct {
	cfg       Config
	root      string
	fsw       *fsnotify.Watcher
	poller    *poller
	debouncer *debouncer
	ignores   *gitignore.Matcher
	errs      chan error

	mu      sync.Mutex
	started bool
	closed  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a watcher for cfg.Dir. The directory must exist.
func New(cfg Config) (*Watcher, error) {
	cfg = cfg.withDefaults()
	if cfg.Dir == "" {
		return nil, errors.New("watch directory is required")
	}
	root, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve watch directory: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root)
	}

	ignores := gitignore.New()
	for _, p := range alwaysIgnored {
		ignores.Add(p)
	}
	for _, p := range cfg.Ignore {
		ignores.Add(p)
	}
	// Best-effort; a repo without .gitignore is fine.
	_ = ignores.AddFromFile(filepath.Join(root, ".gitignore"), "")

	w := &Watcher{
		cfg:       cfg,
		root:      root,
		debouncer: newDebouncer(cfg.Debounce, cfg.BufferSize),
		ignores:   ignores,
		errs:      make(chan error, 8),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("fsnotify unavailable, falling back to polling",
			slog.String("error", err.Error()))
		w.poller = newPoller(root, cfg.PollInterval, w.admit)
	} else {
		w.fsw = fsw
	}

	return w, nil
}

// Start begins watching in a background goroutine. The watcher stops
// when the context is canceled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("watcher already started")
	}
	if w.closed {
		w.mu.Unlock()
		return errors.New("watcher is closed")
	}
	w.started = true
	w.mu.Unlock()

	if w.fsw != nil {
		if err := w.addRecursive(w.root); err != nil {
			return fmt.Errorf("watch %s: %w", w.root, err)
		}
		go w.runFsnotify(ctx)
		return nil
	}

	if err := w.poller.baseline(); err != nil {
		return fmt.Errorf("scan %s: %w", w.root, err)
	}
	go w.runPolling(ctx)
	return nil
}

// Events returns the batch channel. Closed when the watcher stops.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.debouncer.batches()
}

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Close stops the watcher and releases resources. Safe to call twice.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	started := w.started
	close(w.stopCh)
	w.mu.Unlock()

	if started {
		<-w.doneCh
	} else {
		w.shutdown()
	}
	return nil
}

// shutdown tears down the transport and downstream channels. Called
// exactly once, from the run goroutine or from Close when never started.
func (w *Watcher) shutdown() {
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
	w.debouncer.stop()
	close(w.errs)
}

func (w *Watcher) runFsnotify(ctx context.Context) {
	defer close(w.doneCh)
	defer w.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFsnotify(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) {
	defer close(w.doneCh)
	defer w.shutdown()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.poller.scan(); err != nil {
				w.emitError(err)
			}
		}
	}
}

func (w *Watcher) handleFsnotify(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}

	info, statErr := os.Stat(event.Name)
	isDir := statErr == nil && info.IsDir()

	var op Operation
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
		// New directories must be added to the watch set or changes
		// inside them go unseen.
		if isDir {
			if err := w.addRecursive(event.Name); err != nil {
				w.emitError(err)
			}
		}
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		op = OpRename
	case event.Has(fsnotify.Chmod):
		return
	default:
		return
	}

	w.admit(FileEvent{Path: rel, Op: op, IsDir: isDir, Time: time.Now()})
}

// admit filters one event against the ignore rules and hands it to the
// debouncer. Shared by both transports.
func (w *Watcher) admit(e FileEvent) {
	if e.Path == "." || e.Path == "" {
		return
	}
	if w.ignores.Match(e.Path, e.IsDir) {
		return
	}
	w.debouncer.add(e)
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr == nil && rel != "." && w.ignores.Match(rel, true) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.emitError(fmt.Errorf("watch %s: %w", path, err))
		}
		return nil
	})
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errs <- err:
	default:
		slog.Debug("Watcher error dropped", slog.String("error", err.Error()))
	}
}
