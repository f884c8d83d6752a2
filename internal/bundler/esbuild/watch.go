package esbuild

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/twinbuild/internal/bundler"
	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/twinbuild/internal/logfields"
	"git.home.luguber.info/inful/twinbuild/internal/watch"
)

// Watch creates an incremental esbuild context, compiles once and rebuilds
// whenever a watched input changes or the handle is invalidated.
func (b *Bundler) Watch(ctx context.Context, cfg bundler.Config, cb bundler.Callbacks) (bundler.Handle, *bundler.Result, error) {
	opts, err := buildOptions(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	bctx, cerr := api.Context(opts)
	if cerr != nil {
		msgs := convertMessages(cerr.Errors)
		text := "create esbuild context"
		if len(msgs) > 0 {
			text = msgs[0].Text
		}
		return nil, nil, foundationerrors.InternalError(text).WithContext("pipeline", cfg.Name).Build()
	}

	h := &handle{cfg: cfg, cb: cb, bctx: bctx}
	h.watcher, err = watch.New(b.Debounce, func(watch.Batch) { h.loop.Trigger() })
	if err != nil {
		bctx.Dispose()
		return nil, nil, foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "create file watcher").Build()
	}

	first, err := h.rebuild()
	if err != nil {
		_ = h.watcher.Close()
		bctx.Dispose()
		return nil, nil, err
	}
	for _, dir := range cfg.WatchDirs {
		if err := h.watcher.Add(dir); err != nil {
			slog.Warn("Cannot watch directory", logfields.Pipeline(cfg.Name), logfields.Path(dir), logfields.Error(err))
		}
	}

	wctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.loop = bundler.NewRebuildLoop(h.onTrigger)
	h.loop.Start(wctx)
	go func() {
		if err := h.watcher.Run(wctx); err != nil {
			slog.Warn("Watcher stopped", logfields.Pipeline(cfg.Name), logfields.Error(err))
		}
	}()

	return h, first, nil
}

type handle struct {
	cfg     bundler.Config
	cb      bundler.Callbacks
	bctx    api.BuildContext
	watcher *watch.Watcher
	loop    *bundler.RebuildLoop
	cancel  context.CancelFunc

	mu      sync.Mutex
	stopped bool
}

func (h *handle) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.loop.Trigger()
}

func (h *handle) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	h.mu.Unlock()

	h.cancel()
	h.loop.Stop()
	err := h.watcher.Close()
	h.bctx.Dispose()
	return err
}

func (h *handle) onTrigger() {
	if h.cb.OnStart != nil {
		h.cb.OnStart()
	}
	res, err := h.rebuild()
	if err != nil {
		slog.Error("Rebuild failed", logfields.Pipeline(h.cfg.Name), logfields.Error(err))
		res = &bundler.Result{Errors: []bundler.Message{{Text: err.Error()}}}
	}
	if h.cb.OnRebuild != nil {
		h.cb.OnRebuild(res)
	}
}

func (h *handle) rebuild() (*bundler.Result, error) {
	start := time.Now()
	br := h.bctx.Rebuild()
	res, err := collect(h.cfg, br, time.Since(start))
	if err != nil {
		return nil, err
	}
	if res.Output != nil {
		h.watchInputs(res.Output.InputFiles)
	}
	return res, nil
}

// watchInputs adds the directories of new inputs to the watcher. Dependencies
// under node_modules are not watched.
func (h *handle) watchInputs(files []string) {
	sep := string(filepath.Separator)
	for _, f := range files {
		if strings.Contains(f, sep+"node_modules"+sep) {
			continue
		}
		if err := h.watcher.Add(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Debug("Cannot watch input", logfields.Pipeline(h.cfg.Name), logfields.Path(f), logfields.Error(err))
		}
	}
}
