package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/twinbuild/internal/events"
	"git.home.luguber.info/inful/twinbuild/internal/hmr"
	"git.home.luguber.info/inful/twinbuild/internal/metrics"
	"git.home.luguber.info/inful/twinbuild/internal/notify"
)

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHandler_Routes(t *testing.T) {
	f := newFixture(t)
	reg := prom.NewRegistry()
	f.orch.registry = reg
	f.orch.recorder = metrics.NewPrometheusRecorder(reg)
	f.cfg.Metrics.Enabled = true
	f.watch()

	srv := httptest.NewServer(f.orch.Handler())
	defer srv.Close()

	resp, body := get(t, srv.URL+hmr.PathClient)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "javascript")
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, body, "esm-hmr")

	resp, body = get(t, srv.URL+PathStatus)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var st Status
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.Equal(t, f.orch.Session(), st.Session)
	assert.Equal(t, StateConverged, st.State)
	assert.Equal(t, "v1", st.Version)
	assert.Equal(t, 1, st.Subscribers)

	resp, body = get(t, srv.URL+f.cfg.Metrics.Path)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "twinbuild_")

	req, err := http.NewRequest(http.MethodOptions, srv.URL+hmr.PathSSE, nil)
	require.NoError(t, err)
	preflight, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = preflight.Body.Close()
	assert.Equal(t, http.StatusNoContent, preflight.StatusCode)
}

func TestHandler_MetricsDisabled(t *testing.T) {
	f := newFixture(t)
	f.orch.registry = prom.NewRegistry()

	srv := httptest.NewServer(f.orch.Handler())
	defer srv.Close()

	resp, _ := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.orch.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + PathStatus)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Zero(t, f.orch.Engine().Subscribers())
}

func TestPruner_KeepsNewestAndCurrent(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	names := []string{"manifest-A.js", "manifest-B.js", "manifest-C.js", "manifest-D.js"}
	for i, name := range names {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		mtime := now.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(p, mtime, mtime))
	}
	current := filepath.Join(dir, "manifest-A.js")

	p, err := NewPruner(dir, 2, time.Hour, func() string { return current })
	require.NoError(t, err)
	defer func() { _ = p.Stop() }()

	p.Prune()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var left []string
	for _, e := range entries {
		left = append(left, e.Name())
	}
	assert.ElementsMatch(t, []string{"manifest-A.js", "manifest-C.js", "manifest-D.js"}, left)
}

type capturingNotifier struct {
	ch chan notify.Notification
}

func (c *capturingNotifier) Publish(_ context.Context, n notify.Notification) error {
	c.ch <- n
	return nil
}

func (c *capturingNotifier) Close() error { return nil }

func TestRelay_ForwardsReloadBroadcasts(t *testing.T) {
	f := newFixture(t)
	n := &capturingNotifier{ch: make(chan notify.Notification, 1)}
	f.orch.notifier = n

	stop := f.orch.startRelay(t.Context())
	defer stop()

	require.NoError(t, f.orch.Bus().Publish(t.Context(), events.ReloadBroadcast{
		Version:     "v3",
		ManifestURL: "/build/manifest-V3.js",
		Trigger:     "server",
		Subscribers: 2,
		At:          time.Now(),
	}))

	select {
	case got := <-n.ch:
		assert.Equal(t, "reload", got.Type)
		assert.Equal(t, f.orch.Session(), got.Session)
		assert.Equal(t, "v3", got.Version)
		assert.Equal(t, "/build/manifest-V3.js", got.ManifestURL)
		assert.Equal(t, 2, got.Subscribers)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not relayed")
	}
}

func TestStatusJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(Status{Session: "s", State: StateIdle, NeedsReload: true})
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"needsReload":true`))
}
