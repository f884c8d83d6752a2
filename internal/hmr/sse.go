package hmr

import (
	"bufio"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
)

// sseTransport hands messages to the request goroutine that owns the
// ResponseWriter.
type sseTransport struct {
	ch     chan []byte
	closed atomic.Bool
}

func (t *sseTransport) Send(data []byte) error {
	if t.closed.Load() {
		return foundationerrors.TransportError("event stream closed").Build()
	}
	select {
	case t.ch <- data:
		return nil
	default:
		return foundationerrors.TransportError("event stream backlog full").Build()
	}
}

func (t *sseTransport) Open() bool { return !t.closed.Load() }

func (t *sseTransport) Close() error {
	t.closed.Store(true)
	return nil
}

// SSEHandler serves the same messages as the websocket channel as a
// text/event-stream, for browsers or tools without websocket support.
func (e *Engine) SSEHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "stream unsupported", http.StatusInternalServerError)
			return
		}

		t := &sseTransport{ch: make(chan []byte, 8)}
		sub, err := e.Connect(t)
		if err != nil {
			http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
			return
		}
		defer e.Disconnect(sub)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		bw := bufio.NewWriter(w)
		write := func(s string) bool {
			if _, err := bw.WriteString(s); err != nil {
				slog.Debug("livereload write", "error", err)
				return false
			}
			if err := bw.Flush(); err != nil {
				return false
			}
			flusher.Flush()
			return true
		}
		if !write(": connected\n\n") {
			return
		}

		hb := time.NewTicker(30 * time.Second)
		defer hb.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-sub.Done():
				return
			case <-hb.C:
				if !write(": ping\n\n") {
					return
				}
			case data := <-t.ch:
				if !write("data: " + string(data) + "\n\n") {
					return
				}
			}
		}
	})
}
