package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// debouncer coalesces rapid changes so one save-compile-format burst
// becomes a single batch. Events for the same path within the window
// merge by operation:
//
//	CREATE + MODIFY → CREATE  (still a new file)
//	CREATE + DELETE → dropped (never really existed)
//	MODIFY + DELETE → DELETE
//	DELETE + CREATE → MODIFY  (replaced in place)
type debouncer struct {
	window time.Duration
	out    chan []FileEvent

	mu      sync.Mutex
	pending map[string]FileEvent
	timer   *time.Timer
	stopped bool
}

func newDebouncer(window time.Duration, bufferSize int) *debouncer {
	return &debouncer{
		window:  window,
		out:     make(chan []FileEvent, bufferSize),
		pending: make(map[string]FileEvent),
	}
}

func (d *debouncer) batches() <-chan []FileEvent {
	return d.out
}

func (d *debouncer) add(e FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if prev, ok := d.pending[e.Path]; ok {
		merged, keep := coalesce(prev, e)
		if !keep {
			delete(d.pending, e.Path)
		} else {
			d.pending[e.Path] = merged
		}
	} else {
		d.pending[e.Path] = e
	}

	// Restart the quiet period; the batch fires only once changes stop.
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func coalesce(prev, next FileEvent) (FileEvent, bool) {
	switch {
	case prev.Op == OpCreate && next.Op == OpModify:
		prev.Time = next.Time
		return prev, true
	case prev.Op == OpCreate && next.Op == OpDelete:
		return FileEvent{}, false
	case prev.Op == OpDelete && next.Op == OpCreate:
		next.Op = OpModify
		return next, true
	default:
		return next, true
	}
}

func (d *debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	batch := make([]FileEvent, 0, len(d.pending))
	for _, e := range d.pending {
		batch = append(batch, e)
	}
	d.pending = make(map[string]FileEvent)
	d.mu.Unlock()

	select {
	case d.out <- batch:
	default:
		// A slow consumer loses the oldest batch, not the newest state:
		// the next flush re-reports whatever changed after this one.
		slog.Debug("Watch batch dropped", slog.Int("events", len(batch)))
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = nil
	d.mu.Unlock()

	close(d.out)
}
