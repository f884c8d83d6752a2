// Package orchestrator coordinates the client and server pipelines: the
// one-shot build, the watch loop and the convergence gate that decides when
// connected browsers may reload.
package orchestrator

import (
	"sync"

	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/twinbuild/internal/bundler"
	"git.home.luguber.info/inful/twinbuild/internal/config"
	"git.home.luguber.info/inful/twinbuild/internal/events"
	"git.home.luguber.info/inful/twinbuild/internal/hmr"
	"git.home.luguber.info/inful/twinbuild/internal/journal"
	"git.home.luguber.info/inful/twinbuild/internal/manifest"
	"git.home.luguber.info/inful/twinbuild/internal/metrics"
	"git.home.luguber.info/inful/twinbuild/internal/notify"
	"git.home.luguber.info/inful/twinbuild/internal/pipeline"
	"git.home.luguber.info/inful/twinbuild/internal/routes"
)

// State is the orchestrator's view of the two pipelines.
type State string

const (
	StateIdle           State = "idle"
	StateClientBuilding State = "client_building"
	StateServerBuilding State = "server_building"
	StateConverged      State = "converged"
)

// Options configures an Orchestrator. Bundler, Config and Routes are
// required; every other collaborator defaults to a no-op.
type Options struct {
	Config  *config.Config
	Entries config.Entries
	Routes  routes.Table
	Bundler bundler.Bundler

	Engine   *hmr.Engine
	Bus      *events.Bus
	Recorder metrics.Recorder
	Journal  journal.Journal
	Notifier notify.Publisher

	// Registry is exposed on the dev server when metrics are enabled.
	Registry *prom.Registry
}

// Orchestrator owns both pipelines and the convergence state bridging their
// asynchronous completions.
type Orchestrator struct {
	cfg      *config.Config
	entries  config.Entries
	table    routes.Table
	bundler  bundler.Bundler
	engine   *hmr.Engine
	bus      *events.Bus
	recorder metrics.Recorder
	journal  journal.Journal
	notifier notify.Publisher
	registry *prom.Registry
	session  string

	mu           sync.Mutex
	client       *pipeline.Pipeline
	server       *pipeline.Pipeline
	needsReload  bool
	lastManifest *manifest.AssetManifest
	clientBusy   bool
	serverBusy   bool
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		cfg:      opts.Config,
		entries:  opts.Entries,
		table:    opts.Routes,
		bundler:  opts.Bundler,
		engine:   opts.Engine,
		bus:      opts.Bus,
		recorder: opts.Recorder,
		journal:  opts.Journal,
		notifier: opts.Notifier,
		registry: opts.Registry,
		session:  uuid.NewString(),
	}
	if o.engine == nil {
		o.engine = hmr.NewEngine()
	}
	if o.bus == nil {
		o.bus = events.NewBus()
	}
	if o.recorder == nil {
		o.recorder = metrics.NoopRecorder{}
	}
	if o.journal == nil {
		o.journal = journal.Noop{}
	}
	if o.notifier == nil {
		o.notifier = notify.Noop{}
	}
	return o
}

// Session identifies this orchestrator run in logs, the journal and
// notifications.
func (o *Orchestrator) Session() string { return o.session }

// Engine returns the notification engine.
func (o *Orchestrator) Engine() *hmr.Engine { return o.engine }

// Bus returns the event bus pipelines publish on.
func (o *Orchestrator) Bus() *events.Bus { return o.bus }

// State reports what the pipelines are doing.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case o.clientBusy:
		return StateClientBuilding
	case o.serverBusy:
		return StateServerBuilding
	case o.converged():
		return StateConverged
	default:
		return StateIdle
	}
}

// NeedsReload reports whether a reload is pending on the next qualifying
// completion.
func (o *Orchestrator) NeedsReload() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.needsReload
}

// Manifest returns the last manifest the client produced.
func (o *Orchestrator) Manifest() *manifest.AssetManifest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastManifest
}

func (o *Orchestrator) converged() bool {
	if o.needsReload || o.lastManifest == nil || o.server == nil {
		return false
	}
	return manifest.Equal(o.server.Embedded(), o.lastManifest)
}

func (o *Orchestrator) pipelineOptions(exports routes.ExportSet, bus *events.Bus) pipeline.Options {
	return pipeline.Options{
		Config:  o.cfg,
		Entries: o.entries,
		Routes:  o.table,
		Exports: exports,
		Bundler: o.bundler,
		Bus:     bus,
	}
}
