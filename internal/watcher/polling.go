package watcher

import (
	"io/fs"
	"path/filepath"
	"time"
)

// poller detects changes by comparing directory snapshots. It is the
// fallback transport for filesystems where fsnotify delivers nothing.
type poller struct {
	root  string
	every time.Duration
	emit  func(FileEvent)
	seen  map[string]snapshot
}

type snapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

func newPoller(root string, every time.Duration, emit func(FileEvent)) *poller {
	return &poller{
		root:  root,
		every: every,
		emit:  emit,
		seen:  make(map[string]snapshot),
	}
}

// baseline records the current tree without emitting events, so the
// first scan after Start reports only real changes.
func (p *poller) baseline() error {
	state, err := p.collect()
	if err != nil {
		return err
	}
	p.seen = state
	return nil
}

// scan diffs the tree against the previous snapshot and emits one event
// per changed path.
func (p *poller) scan() error {
	now := time.Now()
	state, err := p.collect()
	if err != nil {
		return err
	}

	for path, cur := range state {
		prev, existed := p.seen[path]
		switch {
		case !existed:
			p.emit(FileEvent{Path: path, Op: OpCreate, IsDir: cur.isDir, Time: now})
		case !cur.isDir && (cur.modTime != prev.modTime || cur.size != prev.size):
			p.emit(FileEvent{Path: path, Op: OpModify, IsDir: false, Time: now})
		}
	}
	for path, prev := range p.seen {
		if _, still := state[path]; !still {
			p.emit(FileEvent{Path: path, Op: OpDelete, IsDir: prev.isDir, Time: now})
		}
	}

	p.seen = state
	return nil
}

func (p *poller) collect() (map[string]snapshot, error) {
	state := make(map[string]snapshot, len(p.seen))
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A file deleted mid-walk is a change the next diff reports.
			return nil
		}
		rel, relErr := filepath.Rel(p.root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		state[rel] = snapshot{
			modTime: info.ModTime(),
			size:    info.Size(),
			isDir:   d.IsDir(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}
