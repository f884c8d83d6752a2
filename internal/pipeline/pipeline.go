// Package pipeline wraps one bundler invocation per build target. The client
// pipeline produces the browser assets the manifest is derived from; the
// server pipeline embeds that manifest.
package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/twinbuild/internal/bundler"
	"git.home.luguber.info/inful/twinbuild/internal/config"
	"git.home.luguber.info/inful/twinbuild/internal/events"
	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/twinbuild/internal/logfields"
	"git.home.luguber.info/inful/twinbuild/internal/manifest"
	"git.home.luguber.info/inful/twinbuild/internal/routes"
)

// Pipeline names.
const (
	Client = "client"
	Server = "server"
)

// Options carries what both pipelines are derived from.
type Options struct {
	Config  *config.Config
	Entries config.Entries
	Routes  routes.Table
	Exports routes.ExportSet
	Bundler bundler.Bundler

	// Bus receives RebuildStarted and RebuildCompleted for watch rounds
	// after the initial one. It may be nil for one-shot builds.
	Bus *events.Bus
}

// Pipeline is one watched compilation target.
type Pipeline struct {
	name    string
	bundler bundler.Bundler
	bus     *events.Bus
	virtual *bundler.VirtualModules
	derive  func() bundler.Config

	round atomic.Uint64

	mu       sync.Mutex
	table    routes.Table
	exports  routes.ExportSet
	appDir   string
	handle   bundler.Handle
	manifest *bundler.Deferred[*manifest.AssetManifest]
	// loading is the manifest read by the in-flight compile; embedded is the
	// one the last finished compile used.
	loading  *manifest.AssetManifest
	embedded *manifest.AssetManifest
}

func newPipeline(name string, opts Options) *Pipeline {
	return &Pipeline{
		name:    name,
		bundler: opts.Bundler,
		bus:     opts.Bus,
		virtual: bundler.NewVirtualModules(),
		table:   opts.Routes.Clone(),
		exports: opts.Exports,
		appDir:  opts.Config.AppDirectory,
	}
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Virtual exposes the pipeline's virtual module registry.
func (p *Pipeline) Virtual() *bundler.VirtualModules { return p.virtual }

// BundlerConfig returns the config the next compile will use.
func (p *Pipeline) BundlerConfig() bundler.Config { return p.derive() }

// Compile runs one compilation.
func (p *Pipeline) Compile(ctx context.Context) (*bundler.Result, error) {
	p.beginRound()
	res, err := p.bundler.Compile(ctx, p.derive())
	if err != nil {
		return nil, err
	}
	p.endRound()
	return res, nil
}

// Start performs the initial compile in watch mode and returns its result.
// Later rounds are published on the bus.
func (p *Pipeline) Start(ctx context.Context) (*bundler.Result, error) {
	p.mu.Lock()
	if p.handle != nil {
		p.mu.Unlock()
		return nil, foundationerrors.SequencingError("pipeline already started").
			WithContext("pipeline", p.name).
			Build()
	}
	p.mu.Unlock()

	cb := bundler.Callbacks{
		OnStart: func() {
			round := p.beginRound()
			p.publish(ctx, events.RebuildStarted{Pipeline: p.name, Round: round, At: time.Now()})
		},
		OnRebuild: func(res *bundler.Result) {
			embedded := p.endRound()
			p.publish(ctx, events.RebuildCompleted{
				Pipeline: p.name,
				Round:    p.round.Load(),
				Result:   res,
				Embedded: embedded,
				At:       time.Now(),
			})
		},
	}

	p.beginRound()
	handle, res, err := p.bundler.Watch(ctx, p.derive(), cb)
	if err != nil {
		return nil, err
	}
	p.endRound()

	p.mu.Lock()
	p.handle = handle
	p.mu.Unlock()
	return res, nil
}

// Invalidate forces a rebuild of a started pipeline.
func (p *Pipeline) Invalidate(reason string) {
	p.mu.Lock()
	h := p.handle
	p.mu.Unlock()
	if h == nil {
		return
	}
	slog.Debug("Invalidating pipeline", logfields.Pipeline(p.name), "reason", reason)
	h.Invalidate()
}

// Stop ends the watch.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	h := p.handle
	p.handle = nil
	p.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.Stop()
}

// Round returns the number of compiles started so far.
func (p *Pipeline) Round() uint64 { return p.round.Load() }

// RouteExports returns the export set the pipeline is configured with.
func (p *Pipeline) RouteExports() routes.ExportSet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exports
}

// SetRouteExports replaces the export set used by the next compile.
func (p *Pipeline) SetRouteExports(exports routes.ExportSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exports = exports
}

// Routes returns the route table the pipeline was configured with.
func (p *Pipeline) Routes() routes.Table {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.table
}

// Embedded returns the manifest the last finished compile embedded, if any.
func (p *Pipeline) Embedded() *manifest.AssetManifest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.embedded
}

func (p *Pipeline) beginRound() uint64 {
	p.mu.Lock()
	p.loading = nil
	p.mu.Unlock()
	return p.round.Add(1)
}

func (p *Pipeline) endRound() *manifest.AssetManifest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loading != nil {
		p.embedded = p.loading
	}
	return p.loading
}

func (p *Pipeline) publish(ctx context.Context, evt events.Event) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, evt); err != nil {
		slog.Debug("Dropped pipeline event", logfields.Pipeline(p.name), "event", evt.EventName(), logfields.Error(err))
	}
}

// routeFile returns the absolute path of a route module.
func (p *Pipeline) routeFile(r routes.RouteDefinition) string {
	return filepath.Join(p.appDir, filepath.FromSlash(r.File))
}
