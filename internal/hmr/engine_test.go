package hmr

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

type fakeTransport struct {
	mu     sync.Mutex
	sent   []string
	open   atomic.Bool
	block  chan struct{}
	failed bool
}

func newFakeTransport() *fakeTransport {
	t := &fakeTransport{}
	t.open.Store(true)
	return t
}

func (f *fakeTransport) Send(data []byte) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed {
		return errors.New("broken pipe")
	}
	f.sent = append(f.sent, string(data))
	return nil
}

func (f *fakeTransport) Open() bool   { return f.open.Load() }
func (f *fakeTransport) Close() error { f.open.Store(false); return nil }

func (f *fakeTransport) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestEngine_BroadcastReachesOpenSubscribers(t *testing.T) {
	var observed atomic.Int32
	e := NewEngine(WithSubscriberObserver(func(n int) { observed.Store(int32(n)) }))
	a, b := newFakeTransport(), newFakeTransport()
	_, err := e.Connect(a)
	require.NoError(t, err)
	_, err = e.Connect(b)
	require.NoError(t, err)
	assert.Equal(t, int32(2), observed.Load())

	sent, err := e.Broadcast(ReloadMessage)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	for _, tr := range []*fakeTransport{a, b} {
		require.Eventually(t, func() bool { return len(tr.messages()) == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, `{"type":"reload"}`, tr.messages()[0])
	}
}

func TestEngine_ClosedSubscriberRemovedDuringBroadcast(t *testing.T) {
	e := NewEngine()
	live, dead := newFakeTransport(), newFakeTransport()
	_, err := e.Connect(live)
	require.NoError(t, err)
	deadSub, err := e.Connect(dead)
	require.NoError(t, err)

	dead.open.Store(false)
	sent, err := e.Broadcast(ReloadMessage)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, e.Subscribers())

	select {
	case <-deadSub.Done():
	case <-time.After(time.Second):
		t.Fatal("dead subscriber not disconnected")
	}
}

func TestEngine_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	e := NewEngine(WithBuffer(1))
	slow := newFakeTransport()
	slow.block = make(chan struct{})
	defer close(slow.block)
	fast := newFakeTransport()

	_, err := e.Connect(slow)
	require.NoError(t, err)
	_, err = e.Connect(fast)
	require.NoError(t, err)

	for range 4 {
		_, err := e.Broadcast(ReloadMessage)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, 1, e.Subscribers())
	require.Eventually(t, func() bool { return len(fast.messages()) == 4 }, time.Second, 5*time.Millisecond)
}

func TestEngine_SendFailureDisconnects(t *testing.T) {
	e := NewEngine()
	broken := newFakeTransport()
	broken.failed = true
	sub, err := e.Connect(broken)
	require.NoError(t, err)

	_, err = e.Broadcast(ReloadMessage)
	require.NoError(t, err)

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscriber not disconnected after send failure")
	}
	assert.Equal(t, 0, e.Subscribers())
}

func TestEngine_ConnectRejectsClosedTransport(t *testing.T) {
	e := NewEngine()
	tr := newFakeTransport()
	tr.open.Store(false)
	_, err := e.Connect(tr)
	assert.Error(t, err)
}

func TestEngine_DisconnectAll(t *testing.T) {
	e := NewEngine()
	a := newFakeTransport()
	sub, err := e.Connect(a)
	require.NoError(t, err)

	e.DisconnectAll()
	<-sub.Done()
	assert.False(t, a.Open())
	assert.Equal(t, 0, e.Subscribers())

	_, err = e.Connect(newFakeTransport())
	assert.Error(t, err)
}

func TestEngine_HandleMessage(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.HandleMessage([]byte(`{"type":"hotAccept","id":"/build/routes/index-A.js"}`)))

	n, ok := e.Graph().GetEntry("/build/routes/index-A.js", false)
	require.True(t, ok)
	assert.True(t, n.HMRAccepted)

	assert.Error(t, e.HandleMessage([]byte(`{"type":"hotAccept"}`)))
	assert.Error(t, e.HandleMessage([]byte(`{"type":"bogus"}`)))
	assert.Error(t, e.HandleMessage([]byte(`not json`)))
}

func dialHMR(t *testing.T, srv *httptest.Server, protocols ...string) (*websocket.Conn, error) {
	t.Helper()
	cfg, err := websocket.NewConfig("ws"+strings.TrimPrefix(srv.URL, "http")+PathWebsocket, srv.URL)
	require.NoError(t, err)
	cfg.Protocol = protocols
	return websocket.DialConfig(cfg)
}

func TestWebsocketHandler(t *testing.T) {
	e := NewEngine()
	mux := http.NewServeMux()
	mux.Handle(PathWebsocket, e.WebsocketHandler())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := dialHMR(t, srv, "other")
	require.Error(t, err, "handshake without esm-hmr must fail")

	conn, err := dialHMR(t, srv, Protocol)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return e.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, websocket.Message.Send(conn, `{"type":"hotAccept","id":"/build/root-B.js"}`))
	require.Eventually(t, func() bool {
		n, ok := e.Graph().GetEntry("/build/root-B.js", false)
		return ok && n.HMRAccepted
	}, time.Second, 5*time.Millisecond)

	_, err = e.Broadcast(ReloadMessage)
	require.NoError(t, err)

	var got string
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, websocket.Message.Receive(conn, &got))
	assert.Equal(t, `{"type":"reload"}`, got)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return e.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSSEHandler(t *testing.T) {
	e := NewEngine()
	srv := httptest.NewServer(e.SSEHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return e.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	_, err = e.Broadcast(ReloadMessage)
	require.NoError(t, err)

	buf := make([]byte, 0, 256)
	chunk := make([]byte, 256)
	deadline := time.Now().Add(time.Second)
	for !strings.Contains(string(buf), "data: ") && time.Now().Before(deadline) {
		n, err := resp.Body.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			break
		}
	}
	assert.Contains(t, string(buf), `data: {"type":"reload"}`)
}

func TestClientScript(t *testing.T) {
	js := ClientScript(8002)
	assert.Contains(t, js, `":8002" + "/__hmr"`)
	assert.Contains(t, js, `"esm-hmr"`)
	assert.Contains(t, js, `type: "hotAccept"`)

	rec := httptest.NewRecorder()
	ClientHandler(8002).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, PathClient, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
}
