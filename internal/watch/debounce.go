package watch

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Debouncer aggregates qualifying events and emits them as one Batch once no
// new event has arrived for the window. Observe never blocks on emit.
type Debouncer struct {
	window time.Duration
	emit   func(Batch)

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]fsnotify.Op
	stopped bool
}

// NewDebouncer creates a Debouncer.
func NewDebouncer(window time.Duration, emit func(Batch)) *Debouncer {
	return &Debouncer{
		window:  window,
		emit:    emit,
		pending: make(map[string]fsnotify.Op),
	}
}

// Observe records ev if it qualifies and restarts the quiet window. It
// reports whether the event was recorded.
func (d *Debouncer) Observe(ev fsnotify.Event) bool {
	if !Qualifies(ev) {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	d.pending[ev.Name] |= ev.Op
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.Flush)
	return true
}

// Flush emits pending changes immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if len(d.pending) == 0 || d.stopped {
		d.mu.Unlock()
		return
	}
	batch := make(Batch, 0, len(d.pending))
	for path, op := range d.pending {
		batch = append(batch, Change{Path: path, Op: op})
	}
	d.pending = make(map[string]fsnotify.Op)
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	slices.SortFunc(batch, func(a, b Change) int { return strings.Compare(a.Path, b.Path) })
	d.emit(batch)
}

// Stop discards pending changes and disables further emits.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = make(map[string]fsnotify.Op)
}
