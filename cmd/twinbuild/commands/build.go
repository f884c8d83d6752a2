package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/twinbuild/internal/bundler/esbuild"
	"git.home.luguber.info/inful/twinbuild/internal/config"
	"git.home.luguber.info/inful/twinbuild/internal/orchestrator"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Mode string `short:"m" help:"Override the build mode (development|production)"`
}

func (b *BuildCmd) Run(_ *Global, root *CLI) error {
	p, err := loadProject(root.Config)
	if err != nil {
		return err
	}
	if b.Mode != "" {
		p.cfg.Mode = config.Mode(b.Mode)
		if err := config.ValidateConfig(p.cfg); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("Starting build", "mode", string(p.cfg.Mode), "routes", len(p.table))
	o := orchestrator.New(orchestrator.Options{
		Config:  p.cfg,
		Entries: p.entries,
		Routes:  p.table,
		Bundler: esbuild.New(p.cfg.Dev.DebounceWindow()),
	})
	report, err := o.Build(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Built version %s\n", report.Manifest.Version)
	fmt.Printf("Manifest: %s\n", report.ManifestPath)
	fmt.Printf("Server build: %s\n", p.cfg.ServerBuildPath)
	return nil
}
