package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/twinbuild/internal/bundler"
	"git.home.luguber.info/inful/twinbuild/internal/bundler/bundlertest"
	"git.home.luguber.info/inful/twinbuild/internal/config"
	"git.home.luguber.info/inful/twinbuild/internal/events"
	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/twinbuild/internal/hmr"
	"git.home.luguber.info/inful/twinbuild/internal/manifest"
	"git.home.luguber.info/inful/twinbuild/internal/routes"
)

func testOptions(t *testing.T, fake *bundlertest.Fake) Options {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{RootDirectory: root}
	require.NoError(t, config.NewDefaultApplier().ApplyDefaults(cfg))

	table := routes.Table{
		"root":         {ID: "root", File: "root.tsx"},
		"routes/index": {ID: "routes/index", ParentID: "root", File: "routes/index.tsx", Index: true},
		"routes/docs":  {ID: "routes/docs", ParentID: "root", Path: "docs", File: "routes/docs.tsx"},
	}
	return Options{
		Config:  cfg,
		Entries: config.Entries{Client: "entry.client.tsx", Server: "entry.server.tsx", Root: "root.tsx"},
		Routes:  table,
		Exports: routes.ExportSet{
			"root":         {"default", "links"},
			"routes/index": {"default", "loader", "meta"},
			"routes/docs":  {"action", "default"},
		},
		Bundler: fake,
	}
}

func TestClient_DevelopmentEntryLoadsHMRRuntime(t *testing.T) {
	fake := bundlertest.NewFake(nil)
	opts := testOptions(t, fake)
	p := NewClient(opts)

	cfg := p.BundlerConfig()
	assert.Equal(t, Client, cfg.Name)
	assert.Equal(t, bundler.TargetBrowser, cfg.Target)
	assert.Equal(t, opts.Config.AssetsBuildDirectory, cfg.OutDir)
	require.Len(t, cfg.Entries, 4)
	assert.Equal(t, bundler.Entry{Name: manifest.GroupEntryClient, Path: ClientEntryModule}, cfg.Entries[0])
	assert.Equal(t, "root", cfg.Entries[1].Name)
	assert.Equal(t, filepath.Join(opts.Config.AppDirectory, "routes", "docs.tsx"), cfg.Entries[2].Path)

	_, err := p.Compile(t.Context())
	require.NoError(t, err)
	assert.Equal(t, hmr.ClientScript(8002), fake.Loaded(Client, HMRRuntimeModule))
	assert.Contains(t, fake.Loaded(Client, ClientEntryModule), filepath.Join(opts.Config.AppDirectory, "entry.client.tsx"))
}

func TestClient_ProductionUsesEntryFileDirectly(t *testing.T) {
	fake := bundlertest.NewFake(nil)
	opts := testOptions(t, fake)
	opts.Config.Mode = config.ModeProduction
	p := NewClient(opts)

	cfg := p.BundlerConfig()
	assert.True(t, cfg.Production)
	assert.Equal(t, filepath.Join(opts.Config.AppDirectory, "entry.client.tsx"), cfg.Entries[0].Path)
	assert.False(t, p.Virtual().Has(HMRRuntimeModule))
	assert.Equal(t, `"production"`, cfg.Define["process.env.NODE_ENV"])
}

func TestClient_FiltersServerOnlyExports(t *testing.T) {
	fake := bundlertest.NewFake(nil)
	opts := testOptions(t, fake)
	p := NewClient(opts)
	index := filepath.Join(opts.Config.AppDirectory, "routes", "index.tsx")
	docs := filepath.Join(opts.Config.AppDirectory, "routes", "docs.tsx")

	_, err := p.Compile(t.Context())
	require.NoError(t, err)

	src, ok := fake.Transformed(Client, index)
	require.True(t, ok)
	assert.Equal(t, `export { default, meta } from "`+index+`?source";`+"\n", src)

	src, ok = fake.Transformed(Client, docs)
	require.True(t, ok)
	assert.NotContains(t, src, "action")

	updated := opts.Exports
	updated["routes/index"] = []string{"ErrorBoundary", "default", "loader", "meta"}
	p.SetRouteExports(updated)

	_, err = p.Compile(t.Context())
	require.NoError(t, err)
	src, _ = fake.Transformed(Client, index)
	assert.Equal(t, `export { ErrorBoundary, default, meta } from "`+index+`?source";`+"\n", src)
}

func TestBrowserRouteModule_NothingToKeep(t *testing.T) {
	assert.Equal(t, "export {};\n", BrowserRouteModule("/app/routes/api.ts", []string{"loader", "action"}))
}

func TestServer_CompileWaitsForManifest(t *testing.T) {
	fake := bundlertest.NewFake(nil)
	p := NewServer(testOptions(t, fake))
	m := &manifest.AssetManifest{Version: "abc", Routes: map[string]manifest.Route{}}

	done := make(chan *bundler.Result, 1)
	go func() {
		res, err := p.Compile(context.Background())
		assert.NoError(t, err)
		done <- res
	}()

	select {
	case <-done:
		t.Fatal("server compile finished before a manifest was available")
	case <-time.After(50 * time.Millisecond):
	}

	p.SetManifest(m)
	select {
	case res := <-done:
		assert.False(t, res.HasErrors())
	case <-time.After(2 * time.Second):
		t.Fatal("server compile did not finish")
	}

	assert.Same(t, m, p.Embedded())
	src, err := m.ModuleSource()
	require.NoError(t, err)
	assert.Equal(t, src, fake.Loaded(Server, AssetsManifestModule))
}

func TestServer_RejectedManifestFailsCompile(t *testing.T) {
	fake := bundlertest.NewFake(nil)
	p := NewServer(testOptions(t, fake))
	p.RejectManifest(errors.New("client build failed"))

	res, err := p.Compile(t.Context())
	require.NoError(t, err)
	assert.True(t, res.HasErrors())
	assert.Nil(t, p.Embedded())
}

func TestServer_SetManifestReplacesValue(t *testing.T) {
	p := NewServer(testOptions(t, bundlertest.NewFake(nil)))
	_, ok := p.Manifest()
	assert.False(t, ok)

	m1 := &manifest.AssetManifest{Version: "1"}
	m2 := &manifest.AssetManifest{Version: "2"}
	p.SetManifest(m1)
	p.SetManifest(m2)

	got, ok := p.Manifest()
	require.True(t, ok)
	assert.Same(t, m2, got)
}

func TestServer_BundlerConfig(t *testing.T) {
	opts := testOptions(t, bundlertest.NewFake(nil))
	opts.Config.ServerModuleFormat = config.ModuleFormatESM
	cfg := NewServer(opts).BundlerConfig()

	assert.Equal(t, bundler.TargetNode, cfg.Target)
	assert.Equal(t, bundler.FormatESM, cfg.Format)
	assert.Equal(t, opts.Config.ServerBuildPath, cfg.OutFile)
	assert.Equal(t, []bundler.Entry{{Name: Server, Path: ServerBuildModule}}, cfg.Entries)
	assert.Empty(t, cfg.Transforms)
}

func TestServerBuildSource(t *testing.T) {
	table := routes.Table{
		"root":        {ID: "root", File: "root.tsx"},
		"routes/docs": {ID: "routes/docs", ParentID: "root", Path: "docs", File: "routes/docs.tsx", CaseSensitive: true},
	}
	src := ServerBuildSource("/app/entry.server.tsx", table, func(r routes.RouteDefinition) string {
		return "/app/" + r.File
	})

	assert.Contains(t, src, `import * as entryServer from "/app/entry.server.tsx";`)
	assert.Contains(t, src, `import * as route0 from "/app/root.tsx";`)
	assert.Contains(t, src, `import * as route1 from "/app/routes/docs.tsx";`)
	assert.Contains(t, src, `export { default as assets } from "virtual:assets-manifest";`)
	assert.Contains(t, src, "  \"routes/docs\": {\n    id: \"routes/docs\",\n    parentId: \"root\",\n    path: \"docs\",\n    index: undefined,\n    caseSensitive: true,\n    module: route1\n  },\n")
	assert.Contains(t, src, "parentId: undefined")
}

func TestStart_PublishesWatchRounds(t *testing.T) {
	fake := bundlertest.NewFake(nil)
	opts := testOptions(t, fake)
	bus := events.NewBus()
	defer bus.Close()
	opts.Bus = bus

	ch, cancel := events.Subscribe[events.Event](bus, 8)
	defer cancel()

	p := NewClient(opts)
	res, err := p.Start(t.Context())
	require.NoError(t, err)
	assert.False(t, res.HasErrors())
	assert.Equal(t, uint64(1), p.Round())

	_, err = p.Start(t.Context())
	require.Error(t, err)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategorySequencing))

	h := fake.Handle(Client)
	require.NotNil(t, h)
	p.Invalidate("test")
	assert.Equal(t, 1, h.Invalidations())

	h.Rebuild(t.Context())

	started := (<-ch).(events.RebuildStarted)
	assert.Equal(t, Client, started.Pipeline)
	assert.Equal(t, uint64(2), started.Round)

	completed := (<-ch).(events.RebuildCompleted)
	assert.Equal(t, uint64(2), completed.Round)
	assert.True(t, completed.Success())
	assert.Nil(t, completed.Embedded)

	require.NoError(t, p.Stop())
	assert.True(t, h.Stopped())
}
