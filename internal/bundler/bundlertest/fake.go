// Package bundlertest provides an in-memory bundler for tests.
package bundlertest

import (
	"context"
	"sync"

	"git.home.luguber.info/inful/twinbuild/internal/bundler"
)

// Fake is an in-memory bundler.Bundler. Every compile loads all registered
// virtual modules, applies the transforms to file entries and then returns
// whatever Output yields for the config.
type Fake struct {
	// Output produces the result of a compile. A nil Output yields an empty
	// successful result.
	Output func(cfg bundler.Config) *bundler.Result

	// ExportsByFile answers Exports.
	ExportsByFile map[string][]string

	mu          sync.Mutex
	handles     map[string]*Handle
	compiles    map[string]int
	loaded      map[string]map[string]string
	transformed map[string]map[string]string
}

var _ bundler.Bundler = (*Fake)(nil)

// NewFake returns a Fake with the given output function.
func NewFake(output func(cfg bundler.Config) *bundler.Result) *Fake {
	return &Fake{
		Output:        output,
		ExportsByFile: make(map[string][]string),
		handles:       make(map[string]*Handle),
		compiles:      make(map[string]int),
		loaded:        make(map[string]map[string]string),
		transformed:   make(map[string]map[string]string),
	}
}

func (f *Fake) Compile(ctx context.Context, cfg bundler.Config) (*bundler.Result, error) {
	return f.compile(ctx, cfg), nil
}

func (f *Fake) Watch(ctx context.Context, cfg bundler.Config, cb bundler.Callbacks) (bundler.Handle, *bundler.Result, error) {
	h := &Handle{fake: f, cfg: cfg, cb: cb}
	f.mu.Lock()
	f.handles[cfg.Name] = h
	f.mu.Unlock()
	return h, f.compile(ctx, cfg), nil
}

func (f *Fake) Exports(_ context.Context, files []string) (map[string][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]string, len(files))
	for _, file := range files {
		out[file] = append([]string(nil), f.ExportsByFile[file]...)
	}
	return out, nil
}

// SetExports replaces the exports reported for file.
func (f *Fake) SetExports(file string, names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ExportsByFile[file] = names
}

// Handle returns the watch handle of the named config, or nil.
func (f *Fake) Handle(name string) *Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[name]
}

// Compiles returns how many compiles ran for the named config.
func (f *Fake) Compiles(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.compiles[name]
}

// Loaded returns the content a virtual module had in the last compile of the
// named config.
func (f *Fake) Loaded(name, id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded[name][id]
}

// Transformed returns the transformed source of an entry file in the last
// compile of the named config.
func (f *Fake) Transformed(name, path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.transformed[name][path]
	return src, ok
}

func (f *Fake) compile(ctx context.Context, cfg bundler.Config) *bundler.Result {
	loaded := make(map[string]string)
	transformed := make(map[string]string)
	var errs []bundler.Message

	if cfg.Virtual != nil {
		for _, id := range cfg.Virtual.IDs() {
			src, err := cfg.Virtual.Load(ctx, id)
			if err != nil {
				errs = append(errs, bundler.Message{Text: err.Error(), File: id})
				continue
			}
			loaded[id] = src
		}
	}
	for _, e := range cfg.Entries {
		if bundler.IsVirtual(e.Path) {
			continue
		}
		for _, t := range cfg.Transforms {
			if !t.Test(e.Path) {
				continue
			}
			src, err := t.Apply(ctx, e.Path)
			if err != nil {
				errs = append(errs, bundler.Message{Text: err.Error(), File: e.Path})
				break
			}
			transformed[e.Path] = src
			break
		}
	}

	f.mu.Lock()
	f.compiles[cfg.Name]++
	f.loaded[cfg.Name] = loaded
	f.transformed[cfg.Name] = transformed
	f.mu.Unlock()

	if len(errs) > 0 {
		return &bundler.Result{Errors: errs}
	}
	if f.Output == nil {
		return &bundler.Result{Output: &bundler.CompilationOutput{Version: "0", Groups: map[string][]string{}}}
	}
	return f.Output(cfg)
}

// Handle is the watch handle of a Fake. Rebuilds only happen when the test
// calls Rebuild.
type Handle struct {
	fake *Fake
	cfg  bundler.Config
	cb   bundler.Callbacks

	mu            sync.Mutex
	invalidations int
	stopped       bool
}

func (h *Handle) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invalidations++
}

func (h *Handle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	return nil
}

// Invalidations returns how often Invalidate was called.
func (h *Handle) Invalidations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.invalidations
}

// Stopped reports whether Stop was called.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Rebuild runs one watch round synchronously, invoking the callbacks.
func (h *Handle) Rebuild(ctx context.Context) *bundler.Result {
	if h.cb.OnStart != nil {
		h.cb.OnStart()
	}
	res := h.fake.compile(ctx, h.cfg)
	if h.cb.OnRebuild != nil {
		h.cb.OnRebuild(res)
	}
	return res
}
