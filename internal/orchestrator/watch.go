package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/twinbuild/internal/bundler"
	"git.home.luguber.info/inful/twinbuild/internal/events"
	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/twinbuild/internal/hmr"
	"git.home.luguber.info/inful/twinbuild/internal/journal"
	"git.home.luguber.info/inful/twinbuild/internal/logfields"
	"git.home.luguber.info/inful/twinbuild/internal/manifest"
	"git.home.luguber.info/inful/twinbuild/internal/pipeline"
	"git.home.luguber.info/inful/twinbuild/internal/routes"
)

// Ready is called once both pipelines finished their initial build.
type Ready func()

// Watch builds both pipelines, then keeps them watching until ctx is done.
// Rebuild completions are consumed one at a time by a single loop, which
// runs the convergence gate. A failed initial build is returned as an error;
// failed later rounds are logged and leave the last good state in place.
func (o *Orchestrator) Watch(ctx context.Context, ready Ready) error {
	pipelineEvents, unsubscribe := events.Subscribe[events.PipelineEvent](o.bus, 16)
	defer unsubscribe()

	if err := o.startPipelines(ctx); err != nil {
		o.stopPipelines()
		return err
	}
	defer o.stopPipelines()

	slog.Info("Watching for changes",
		logfields.Session(o.session),
		logfields.Version(o.Manifest().Version))
	if ready != nil {
		ready()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-pipelineEvents:
			if !ok {
				return nil
			}
			o.handle(ctx, evt)
		}
	}
}

func (o *Orchestrator) startPipelines(ctx context.Context) error {
	exports, err := routes.ScanExports(ctx, o.bundler, o.cfg.AppDirectory, o.table)
	if err != nil {
		return err
	}

	opts := o.pipelineOptions(exports, o.bus)
	client := pipeline.NewClient(opts)
	server := pipeline.NewServer(opts)
	o.mu.Lock()
	o.client, o.server = client, server
	o.mu.Unlock()

	res, err := client.Start(ctx)
	if err != nil {
		return err
	}
	o.recordRound(ctx, pipeline.Client, res)
	if res.HasErrors() {
		return o.buildFailed("Client build failed", pipeline.Client, res)
	}

	m, err := manifest.Build(o.table, exports, res.Output, o.cfg.PublicPath)
	if err != nil {
		return err
	}
	if err := o.writeManifest(ctx, m); err != nil {
		return err
	}
	server.SetManifest(m)
	o.mu.Lock()
	o.lastManifest = m
	o.mu.Unlock()
	o.feedGraph(res.Output)

	res, err = server.Start(ctx)
	if err != nil {
		return err
	}
	o.recordRound(ctx, pipeline.Server, res)
	if res.HasErrors() {
		return o.buildFailed("Server build failed", pipeline.Server, res)
	}
	return nil
}

func (o *Orchestrator) stopPipelines() {
	o.mu.Lock()
	client, server := o.client, o.server
	o.mu.Unlock()
	for _, p := range []*pipeline.Pipeline{client, server} {
		if p == nil {
			continue
		}
		if err := p.Stop(); err != nil {
			slog.Warn("Failed to stop pipeline", logfields.Pipeline(p.Name()), logfields.Error(err))
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, evt events.PipelineEvent) {
	switch e := evt.(type) {
	case events.RebuildStarted:
		o.mu.Lock()
		if e.Pipeline == pipeline.Client {
			o.clientBusy = true
		} else {
			o.serverBusy = true
		}
		o.mu.Unlock()
		slog.Debug("Rebuild started", logfields.Pipeline(e.Pipeline), logfields.Round(e.Round))
	case events.RebuildCompleted:
		if e.Pipeline == pipeline.Client {
			o.onClientRebuild(ctx, e)
		} else {
			o.onServerRebuild(ctx, e)
		}
		o.recordRound(ctx, e.Pipeline, e.Result)
	}
}

// onClientRebuild runs the client half of the convergence gate. Only the
// watch loop writes gate state; o.mu is held for the reads and writes
// themselves, never across disk, bundler or bus calls.
func (o *Orchestrator) onClientRebuild(ctx context.Context, e events.RebuildCompleted) {
	o.mu.Lock()
	o.clientBusy = false
	last := o.lastManifest
	o.mu.Unlock()

	if !e.Success() {
		o.logFailedRound("Client build failed", e)
		return
	}

	exports, err := routes.ScanExports(ctx, o.bundler, o.cfg.AppDirectory, o.table)
	if err != nil {
		slog.Error("Route export analysis failed", logfields.Round(e.Round), logfields.Error(err))
		return
	}
	m, err := manifest.Build(o.table, exports, e.Result.Output, o.cfg.PublicPath)
	if err != nil {
		slog.Error("Manifest derivation failed", logfields.Round(e.Round), logfields.Error(err))
		return
	}

	shouldReload := true
	if !manifest.Equal(m, last) {
		if err := o.writeManifest(ctx, m); err != nil {
			slog.Error("Manifest write failed", logfields.Version(m.Version), logfields.Error(err))
			return
		}
		slog.Debug("Manifest changed\n"+manifest.Diff(last, m), logfields.Version(m.Version))
		o.mu.Lock()
		o.lastManifest = m
		o.mu.Unlock()
		o.server.SetManifest(m)
		o.invalidate(ctx, o.server, "manifest changed")
		shouldReload = false
	}

	if !exports.Equal(o.client.RouteExports()) {
		o.client.SetRouteExports(exports)
		o.invalidate(ctx, o.client, "route exports changed")
		shouldReload = false
	}

	o.feedGraph(e.Result.Output)

	o.mu.Lock()
	reload := o.needsReload && shouldReload
	o.needsReload = !reload
	o.mu.Unlock()
	if reload {
		o.broadcastReload(ctx, pipeline.Client)
	}
}

// onServerRebuild runs the server half of the convergence gate: a pending
// reload fires once the server embeds the manifest the client produced last.
func (o *Orchestrator) onServerRebuild(ctx context.Context, e events.RebuildCompleted) {
	o.mu.Lock()
	o.serverBusy = false
	if !e.Success() {
		o.mu.Unlock()
		o.logFailedRound("Server build failed", e)
		return
	}

	embedded := e.Embedded
	if embedded == nil {
		embedded = o.server.Embedded()
	}
	reload := o.needsReload && manifest.Equal(embedded, o.lastManifest)
	if reload {
		o.needsReload = false
	}
	o.mu.Unlock()

	if reload {
		o.broadcastReload(ctx, pipeline.Server)
	}
}

func (o *Orchestrator) logFailedRound(message string, e events.RebuildCompleted) {
	err := foundationerrors.CompileError(message).
		WithContext("pipeline", e.Pipeline).
		WithContext("round", e.Round).
		Build()
	slog.Error(message+"\n"+bundler.Report(e.Result, o.cfg.Dev.WarningFilters),
		logfields.Pipeline(e.Pipeline),
		logfields.Round(e.Round),
		logfields.Error(err))
}

func (o *Orchestrator) invalidate(ctx context.Context, p *pipeline.Pipeline, reason string) {
	p.Invalidate(reason)
	o.recorder.IncInvalidation(p.Name(), reason)
	o.record(ctx, journal.Entry{Pipeline: p.Name(), Kind: journal.KindInvalidate, Success: true, Detail: reason})
}

// writeManifest persists m; the artifact is never written for a failed round.
func (o *Orchestrator) writeManifest(ctx context.Context, m *manifest.AssetManifest) error {
	path, err := manifest.WriteArtifact(o.cfg.ManifestDirectory(), m)
	if err != nil {
		return err
	}
	o.recorder.IncManifestWrite()
	slog.Info("Manifest written", logfields.Version(m.Version), logfields.Path(path))
	o.record(ctx, journal.Entry{Kind: journal.KindManifest, Version: m.Version, Success: true, Detail: path})
	o.publish(ctx, events.ManifestWritten{Version: m.Version, Path: path, At: time.Now()})
	return nil
}

func (o *Orchestrator) broadcastReload(ctx context.Context, trigger string) {
	n, err := o.engine.Broadcast(hmr.ReloadMessage)
	if err != nil {
		slog.Error("Reload broadcast failed", logfields.Error(err))
		return
	}
	version, url := "", ""
	if m := o.Manifest(); m != nil {
		version, url = m.Version, m.URL
	}
	o.recorder.IncReload()
	slog.Info("Reloading browsers", logfields.Version(version), logfields.Subscribers(n), "trigger", trigger)
	o.record(ctx, journal.Entry{Pipeline: trigger, Kind: journal.KindReload, Version: version, Success: true})
	o.publish(ctx, events.ReloadBroadcast{Version: version, ManifestURL: url, Trigger: trigger, Subscribers: n, At: time.Now()})
}

// feedGraph records the asset-level import edges of a client build.
func (o *Orchestrator) feedGraph(out *bundler.CompilationOutput) {
	if out == nil {
		return
	}
	graph := o.engine.Graph()
	for file, imports := range out.Imports {
		urls := make([]string, len(imports))
		for i, imp := range imports {
			urls[i] = manifest.CreateURL(o.cfg.PublicPath, imp)
		}
		graph.SetEntry(manifest.CreateURL(o.cfg.PublicPath, file), urls, o.cfg.IsDevelopment())
	}
}

func (o *Orchestrator) recordRound(ctx context.Context, name string, res *bundler.Result) {
	success := !res.HasErrors()
	var d time.Duration
	version := ""
	if res != nil {
		d = res.Duration
		if res.Output != nil {
			version = res.Output.Version
		}
	}
	o.recorder.ObserveRebuild(name, d, success)
	o.record(ctx, journal.Entry{Pipeline: name, Kind: journal.KindRebuild, Version: version, Success: success, Duration: d})
	slog.Debug("Rebuild finished", logfields.Pipeline(name), logfields.Duration(d), "success", success)
}

func (o *Orchestrator) record(ctx context.Context, e journal.Entry) {
	e.ID = uuid.New()
	e.Session = o.session
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if err := o.journal.Record(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("Failed to record journal entry", "kind", string(e.Kind), logfields.Error(err))
	}
}

// publish hands evt to side subscribers without blocking the watch loop
// beyond the bus buffer.
func (o *Orchestrator) publish(ctx context.Context, evt events.Event) {
	if err := o.bus.Publish(ctx, evt); err != nil {
		slog.Debug("Event not delivered", "event", evt.EventName(), logfields.Error(err))
	}
}
