package hmr

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/net/websocket"

	"git.home.luguber.info/inful/twinbuild/internal/logfields"
)

// Protocol is the websocket sub-protocol browsers must request.
const Protocol = "esm-hmr"

var errProtocol = errors.New("websocket sub-protocol " + Protocol + " required")

type wsTransport struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed atomic.Bool
}

func (t *wsTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return websocket.Message.Send(t.conn, string(data))
}

func (t *wsTransport) Open() bool { return !t.closed.Load() }

func (t *wsTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.conn.Close()
}

// WebsocketHandler serves the reload channel. Upgrades that do not request
// the esm-hmr sub-protocol are refused.
func (e *Engine) WebsocketHandler() http.Handler {
	return websocket.Server{
		Handshake: func(cfg *websocket.Config, _ *http.Request) error {
			if !slices.Contains(cfg.Protocol, Protocol) {
				return errProtocol
			}
			cfg.Protocol = []string{Protocol}
			return nil
		},
		Handler: e.serveConn,
	}
}

func (e *Engine) serveConn(conn *websocket.Conn) {
	t := &wsTransport{conn: conn}
	sub, err := e.Connect(t)
	if err != nil {
		slog.Debug("hmr connect refused", logfields.Error(err))
		_ = t.Close()
		return
	}
	defer e.Disconnect(sub)

	for {
		var msg string
		if err := websocket.Message.Receive(conn, &msg); err != nil {
			return
		}
		if err := e.HandleMessage([]byte(msg)); err != nil {
			slog.Debug("hmr message ignored", logfields.Error(err))
		}
	}
}
