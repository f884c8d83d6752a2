// Package hmr is the notification engine of the dev server: it keeps the
// module dependency graph and fans reload messages out to connected
// browsers over websocket or server-sent events.
package hmr

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/twinbuild/internal/logfields"
)

// Message types exchanged with browsers.
const (
	TypeReload    = "reload"
	TypeHotAccept = "hotAccept"
)

// Message is the JSON envelope for both directions.
type Message struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// ReloadMessage asks every browser to reload the page.
var ReloadMessage = Message{Type: TypeReload}

// Transport is one live connection to a browser.
type Transport interface {
	Send(data []byte) error
	Open() bool
	Close() error
}

// Subscription is a connected Transport. Once disconnected it cannot be
// reused; the browser has to connect again.
type Subscription struct {
	id        uint64
	transport Transport
	out       chan []byte
	done      chan struct{}
	once      sync.Once
}

// Done is closed when the subscription is disconnected.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) shutdown() {
	s.once.Do(func() {
		close(s.done)
		_ = s.transport.Close()
	})
}

// Option configures an Engine.
type Option func(*Engine)

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) Option {
	return func(e *Engine) { e.buffer = n }
}

// WithSubscriberObserver is called with the subscriber count after every
// connect and disconnect.
func WithSubscriberObserver(fn func(int)) Option {
	return func(e *Engine) { e.observe = fn }
}

// Engine owns the dependency graph and the subscriber set.
type Engine struct {
	graph   *Graph
	buffer  int
	observe func(int)

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// NewEngine creates an Engine with an empty graph.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		graph:  NewGraph(),
		buffer: 8,
		subs:   make(map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Graph returns the dependency graph.
func (e *Engine) Graph() *Graph { return e.graph }

// Connect registers t and starts its writer.
func (e *Engine) Connect(t Transport) (*Subscription, error) {
	if !t.Open() {
		return nil, foundationerrors.TransportError("cannot subscribe a closed transport").Build()
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		_ = t.Close()
		return nil, foundationerrors.TransportError("notification engine is shut down").Build()
	}
	e.nextID++
	sub := &Subscription{
		id:        e.nextID,
		transport: t,
		out:       make(chan []byte, e.buffer),
		done:      make(chan struct{}),
	}
	e.subs[sub.id] = sub
	count := len(e.subs)
	e.mu.Unlock()

	e.notify(count)
	go e.write(sub)
	return sub, nil
}

func (e *Engine) write(sub *Subscription) {
	for {
		select {
		case <-sub.done:
			return
		case data := <-sub.out:
			if err := sub.transport.Send(data); err != nil {
				slog.Debug("hmr send failed", logfields.Error(err))
				e.Disconnect(sub)
				return
			}
		}
	}
}

// Disconnect removes sub and closes its transport.
func (e *Engine) Disconnect(sub *Subscription) {
	e.mu.Lock()
	_, ok := e.subs[sub.id]
	delete(e.subs, sub.id)
	count := len(e.subs)
	e.mu.Unlock()

	sub.shutdown()
	if ok {
		e.notify(count)
	}
}

// Broadcast serializes payload once and queues it for every open
// subscriber. Subscribers found closed, or too slow to keep up, are
// disconnected. It returns the number of subscribers the payload was
// queued for.
func (e *Engine) Broadcast(payload any) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, foundationerrors.WrapError(err, foundationerrors.CategoryInternal, "encode broadcast").Build()
	}

	e.mu.Lock()
	snapshot := make([]*Subscription, 0, len(e.subs))
	for _, s := range e.subs {
		snapshot = append(snapshot, s)
	}
	e.mu.Unlock()

	sent, dropped := 0, 0
	for _, s := range snapshot {
		if !s.transport.Open() {
			dropped++
			e.Disconnect(s)
			continue
		}
		select {
		case s.out <- data:
			sent++
		default:
			dropped++
			e.Disconnect(s)
		}
	}
	slog.Debug("hmr broadcast", "payload", string(data), logfields.Subscribers(sent), "dropped", dropped)
	return sent, nil
}

// HandleMessage applies a message received from a browser.
func (e *Engine) HandleMessage(data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryValidation, "decode hmr message").Build()
	}
	switch msg.Type {
	case TypeHotAccept:
		if msg.ID == "" {
			return foundationerrors.ValidationError("hotAccept without id").Build()
		}
		e.graph.Accept(msg.ID)
		return nil
	default:
		return foundationerrors.ValidationError(fmt.Sprintf("unknown hmr message type %q", msg.Type)).Build()
	}
}

// Subscribers returns the number of connected subscribers.
func (e *Engine) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// DisconnectAll closes every subscriber and refuses new connections.
func (e *Engine) DisconnectAll() {
	e.mu.Lock()
	e.closed = true
	subs := e.subs
	e.subs = make(map[uint64]*Subscription)
	e.mu.Unlock()

	for _, s := range subs {
		s.shutdown()
	}
	e.notify(0)
}

func (e *Engine) notify(count int) {
	if e.observe != nil {
		e.observe(count)
	}
}
