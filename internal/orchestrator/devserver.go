package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"git.home.luguber.info/inful/twinbuild/internal/hmr"
	"git.home.luguber.info/inful/twinbuild/internal/logfields"
	"git.home.luguber.info/inful/twinbuild/internal/metrics"
)

// Status is served on /__status.
type Status struct {
	Session     string `json:"session"`
	State       State  `json:"state"`
	Version     string `json:"version,omitempty"`
	NeedsReload bool   `json:"needsReload"`
	Subscribers int    `json:"subscribers"`
}

// PathStatus serves the orchestrator status as JSON.
const PathStatus = "/__status"

// Handler returns the dev server routes: the reload channels, the browser
// runtime, the status endpoint and, when enabled, metrics.
func (o *Orchestrator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(hmr.PathWebsocket, o.engine.WebsocketHandler())
	mux.Handle(hmr.PathSSE, corsMiddleware(o.engine.SSEHandler()))
	mux.Handle(hmr.PathClient, corsMiddleware(hmr.ClientHandler(o.cfg.Dev.Port)))
	mux.Handle(PathStatus, corsMiddleware(http.HandlerFunc(o.serveStatus)))
	if o.cfg.Metrics.Enabled && o.registry != nil {
		mux.Handle(o.cfg.Metrics.Path, metrics.HTTPHandler(o.registry))
	}
	return mux
}

func (o *Orchestrator) serveStatus(w http.ResponseWriter, _ *http.Request) {
	st := Status{
		Session:     o.session,
		State:       o.State(),
		NeedsReload: o.NeedsReload(),
		Subscribers: o.engine.Subscribers(),
	}
	if m := o.Manifest(); m != nil {
		st.Version = m.Version
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		slog.Debug("failed to write status", logfields.Error(err))
	}
}

// corsMiddleware lets pages served from another port reach the dev server.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Serve runs the dev server on ln until ctx is done. Subscribers are
// disconnected before the server shuts down.
func (o *Orchestrator) Serve(ctx context.Context, ln net.Listener) error {
	// Long-lived SSE and websocket connections: no read/write timeouts.
	srv := &http.Server{Handler: o.Handler(), ReadHeaderTimeout: 10 * time.Second, IdleTimeout: 300 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Dev server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	o.engine.DisconnectAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Dev server shutdown", logfields.Error(err))
		return srv.Close()
	}
	return nil
}
