// Package events carries pipeline lifecycle notifications between the two
// build pipelines and the orchestrator loop that consumes them.
package events

import (
	"context"
	"reflect"
	"sync"

	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
)

// Bus is a typed in-process fan-out. Publish blocks until every matching
// subscriber has accepted the event or ctx is done, so events from one
// publisher are observed in order.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	closed bool
}

type subscription struct {
	match   func(evt any) bool
	deliver func(ctx context.Context, evt any) error

	// done unblocks pending deliveries; closeCh must only run under the
	// write lock so no delivery is in flight.
	done       chan struct{}
	cancelOnce sync.Once
	closeCh    func()
}

func (s *subscription) cancel() {
	s.cancelOnce.Do(func() { close(s.done) })
}

// NewBus returns an open bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel receiving every published event assignable to
// T, and a function that cancels the subscription. When T is an interface,
// all implementing event types are delivered.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	want := reflect.TypeFor[T]()
	ch := make(chan T, buffer)

	sub := &subscription{done: make(chan struct{})}
	var once sync.Once
	sub.closeCh = func() { once.Do(func() { close(ch) }) }
	sub.match = func(evt any) bool {
		got := reflect.TypeOf(evt)
		if want.Kind() == reflect.Interface {
			return got.Implements(want)
		}
		return got == want
	}
	sub.deliver = func(ctx context.Context, evt any) error {
		select {
		case ch <- evt.(T):
			return nil
		case <-sub.done:
			return nil
		case <-ctx.Done():
			return foundationerrors.WrapError(ctx.Err(), foundationerrors.CategoryRuntime, "event publish canceled").
				WithContext("event_type", reflect.TypeOf(evt).String()).
				Build()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.cancel()
		sub.closeCh()
		return ch, func() {}
	}
	b.subs = append(b.subs, sub)

	return ch, func() { b.unsubscribe(sub) }
}

func (b *Bus) unsubscribe(sub *subscription) {
	// Unblock an in-flight delivery before taking the write lock.
	sub.cancel()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	sub.closeCh()
}

// Publish delivers evt to all matching subscribers.
func (b *Bus) Publish(ctx context.Context, evt any) error {
	if evt == nil {
		return foundationerrors.ValidationError("event cannot be nil").Build()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return foundationerrors.RuntimeError("event bus is closed").Build()
	}
	for _, s := range b.subs {
		if !s.match(evt) {
			continue
		}
		if err := s.deliver(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription channel. Publishing afterwards fails.
func (b *Bus) Close() {
	b.mu.RLock()
	subs := append([]*subscription(nil), b.subs...)
	b.mu.RUnlock()
	for _, s := range subs {
		s.cancel()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		s.cancel()
		s.closeCh()
	}
	b.subs = nil
}
