package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/twinbuild/internal/logfields"
	"git.home.luguber.info/inful/twinbuild/internal/manifest"
)

// Run is watch mode: the dev server, the watch loop, manifest pruning and
// reload notifications, until ctx is done or one of them fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", o.cfg.Dev.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return foundationerrors.TransportError(fmt.Sprintf("cannot listen on %s", addr)).
			WithCause(err).
			Fatal().
			Build()
	}
	return o.RunWithListener(ctx, ln)
}

// RunWithListener is Run on an existing listener.
func (o *Orchestrator) RunWithListener(ctx context.Context, ln net.Listener) error {
	stopRelay := o.startRelay(ctx)
	defer stopRelay()

	pruner, err := NewPruner(o.cfg.ManifestDirectory(), o.cfg.Dev.KeepManifests, o.cfg.Dev.PruneEvery(), o.currentManifestPath)
	if err != nil {
		_ = ln.Close()
		return foundationerrors.WrapError(err, foundationerrors.CategoryInternal, "start manifest pruning").Build()
	}
	defer func() {
		if err := pruner.Stop(); err != nil {
			slog.Warn("Failed to stop manifest pruning", logfields.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.Serve(gctx, ln) })
	g.Go(func() error { return o.Watch(gctx, pruner.Start) })
	return g.Wait()
}

func (o *Orchestrator) currentManifestPath() string {
	m := o.Manifest()
	if m == nil {
		return ""
	}
	return filepath.Join(o.cfg.ManifestDirectory(), manifest.Filename(m.Version))
}
