package bundler

import (
	"context"
	"sync"
)

// RebuildLoop runs build on demand from a single goroutine. Triggers that
// arrive while a build is running collapse into exactly one follow-up build.
type RebuildLoop struct {
	build   func()
	trigger chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewRebuildLoop creates a loop that calls build for each coalesced trigger.
func NewRebuildLoop(build func()) *RebuildLoop {
	return &RebuildLoop{
		build:   build,
		trigger: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the loop; it exits when ctx is done or Stop is called.
func (l *RebuildLoop) Start(ctx context.Context) {
	go func() {
		defer close(l.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stop:
				return
			case <-l.trigger:
				select {
				case <-l.stop:
					return
				default:
				}
				l.build()
			}
		}
	}()
}

// Trigger requests a build without blocking.
func (l *RebuildLoop) Trigger() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

// Stop ends the loop and waits for an in-flight build to finish.
func (l *RebuildLoop) Stop() {
	l.once.Do(func() { close(l.stop) })
	<-l.done
}
