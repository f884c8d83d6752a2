// Package watch turns raw filesystem notifications into debounced change
// batches.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/twinbuild/internal/logfields"
)

// Change is one qualifying filesystem event.
type Change struct {
	Path string
	Op   fsnotify.Op
}

// Batch is the set of changes collected within one quiet window, one entry
// per path (ops are merged).
type Batch []Change

// Paths returns the changed paths.
func (b Batch) Paths() []string {
	out := make([]string, len(b))
	for i, c := range b {
		out[i] = c.Path
	}
	return out
}

// Watcher watches directories recursively and delivers debounced batches.
type Watcher struct {
	fs        *fsnotify.Watcher
	debouncer *Debouncer

	mu      sync.Mutex
	watched map[string]struct{}
}

// New creates a Watcher that calls onBatch after window has passed without
// new qualifying events.
func New(window time.Duration, onBatch func(Batch)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	return &Watcher{
		fs:        fsw,
		debouncer: NewDebouncer(window, onBatch),
		watched:   make(map[string]struct{}),
	}, nil
}

// Add starts watching path. Directories are added recursively; for a file
// its parent directory is watched.
func (w *Watcher) Add(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return w.addDir(filepath.Dir(path))
	}
	return w.addDirsRecursive(path)
}

func (w *Watcher) addDir(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[dir]; ok {
		return nil
	}
	if err := w.fs.Add(dir); err != nil {
		return err
	}
	w.watched[dir] = struct{}{}
	return nil
}

func (w *Watcher) addDirsRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.addDir(path); err != nil {
			slog.Warn("watch add failed", "dir", path, logfields.Error(err))
		}
		return nil
	})
}

// Watched returns the number of watched directories.
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

// Run processes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.debouncer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() && !skipDir(fi.Name()) {
			_ = w.addDirsRecursive(ev.Name)
		}
	}
	if w.debouncer.Observe(ev) {
		slog.Debug("File change detected", logfields.Path(ev.Name), "op", ev.Op.String())
	}
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	w.debouncer.Stop()
	return w.fs.Close()
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}

// Qualifies reports whether ev should count toward a rebuild: only add,
// change and remove events on non-temporary files do.
func Qualifies(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return !shouldIgnoreEvent(ev.Name)
}

// shouldIgnoreEvent returns true for paths that should not trigger rebuilds.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)

	// Hidden files, including .DS_Store and editor lock files like .#foo
	if strings.HasPrefix(base, ".") {
		return true
	}

	// Editor temp/swap files
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}

	return base == "Thumbs.db"
}
