package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/twinbuild/internal/bundler/esbuild"
	"git.home.luguber.info/inful/twinbuild/internal/config"
	"git.home.luguber.info/inful/twinbuild/internal/hmr"
	"git.home.luguber.info/inful/twinbuild/internal/journal"
	"git.home.luguber.info/inful/twinbuild/internal/logfields"
	"git.home.luguber.info/inful/twinbuild/internal/metrics"
	"git.home.luguber.info/inful/twinbuild/internal/notify"
	"git.home.luguber.info/inful/twinbuild/internal/orchestrator"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Port int `short:"p" help:"Dev server port (overrides dev.port)"`
}

// apply overlays the command flags. Watch mode always compiles for
// development; a configured production mode only applies to 'build'.
func (w *WatchCmd) apply(cfg *config.Config) {
	if cfg.Mode != config.ModeDevelopment {
		slog.Warn("Watch mode ignores configured mode", "mode", string(cfg.Mode))
		cfg.Mode = config.ModeDevelopment
	}
	if w.Port > 0 {
		cfg.Dev.Port = w.Port
	}
}

func (w *WatchCmd) Run(_ *Global, root *CLI) error {
	p, err := loadProject(root.Config)
	if err != nil {
		return err
	}
	w.apply(p.cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(reg)
	engine := hmr.NewEngine(hmr.WithSubscriberObserver(recorder.SetSubscribers))

	var jr journal.Journal = journal.Noop{}
	if p.cfg.Journal.Enabled {
		store, err := journal.Open(p.cfg.Journal.Path)
		if err != nil {
			return err
		}
		jr = store
	}
	defer func() {
		if err := jr.Close(); err != nil {
			slog.Warn("Failed to close journal", logfields.Error(err))
		}
	}()

	var notifier notify.Publisher = notify.Noop{}
	if p.cfg.Notify.NATSURL != "" {
		pub, err := notify.NewNATSPublisher(p.cfg.Notify.NATSURL, p.cfg.Notify.Subject)
		if err != nil {
			return err
		}
		notifier = pub
	}
	defer func() { _ = notifier.Close() }()

	o := orchestrator.New(orchestrator.Options{
		Config:   p.cfg,
		Entries:  p.entries,
		Routes:   p.table,
		Bundler:  esbuild.New(p.cfg.Dev.DebounceWindow()),
		Engine:   engine,
		Recorder: recorder,
		Journal:  jr,
		Notifier: notifier,
		Registry: reg,
	})

	slog.Info("Starting watch mode",
		logfields.Session(o.Session()),
		"port", p.cfg.Dev.Port,
		"routes", len(p.table))
	if err := o.Run(ctx); err != nil {
		return err
	}
	slog.Info("Watch mode stopped")
	return nil
}
