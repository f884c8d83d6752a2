package orchestrator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/twinbuild/internal/logfields"
	"git.home.luguber.info/inful/twinbuild/internal/manifest"
)

// Pruner periodically removes stale manifest artifacts.
type Pruner struct {
	scheduler gocron.Scheduler
	dir       string
	keep      int
	current   func() string
}

// NewPruner schedules pruning of dir every interval, keeping the keep most
// recent artifacts and always the one current returns.
func NewPruner(dir string, keep int, every time.Duration, current func() string) (*Pruner, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	p := &Pruner{scheduler: s, dir: dir, keep: keep, current: current}

	_, err = s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(p.Prune),
		gocron.WithName("manifest-prune"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to create manifest prune job: %w", err)
	}
	return p, nil
}

// Start begins the schedule.
func (p *Pruner) Start() { p.scheduler.Start() }

// Stop waits for a running prune and stops the schedule.
func (p *Pruner) Stop() error { return p.scheduler.Shutdown() }

// Prune removes stale artifacts now.
func (p *Pruner) Prune() {
	removed, err := manifest.Prune(p.dir, p.keep, p.current())
	if err != nil {
		slog.Warn("Manifest pruning failed", logfields.Path(p.dir), logfields.Error(err))
		return
	}
	if len(removed) > 0 {
		slog.Debug("Pruned stale manifests", logfields.Path(p.dir), "removed", len(removed))
	}
}
