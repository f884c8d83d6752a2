package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/twinbuild/internal/events"
	"git.home.luguber.info/inful/twinbuild/internal/logfields"
	"git.home.luguber.info/inful/twinbuild/internal/notify"
)

// startRelay forwards reload broadcasts to the notifier until the returned
// stop function is called.
func (o *Orchestrator) startRelay(ctx context.Context) func() {
	reloads, unsubscribe := events.Subscribe[events.ReloadBroadcast](o.bus, 16)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for evt := range reloads {
			n := notify.Notification{
				Type:        "reload",
				Session:     o.session,
				Version:     evt.Version,
				ManifestURL: evt.ManifestURL,
				Subscribers: evt.Subscribers,
				Timestamp:   evt.At,
			}
			if err := o.notifier.Publish(ctx, n); err != nil {
				slog.Warn("Reload notification failed", logfields.Version(evt.Version), logfields.Error(err))
			}
		}
	}()

	return func() {
		unsubscribe()
		wg.Wait()
	}
}
