package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/twinbuild/internal/routes"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, DefaultPath))
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.RootDirectory)
	assert.Equal(t, filepath.Join(dir, "app"), cfg.AppDirectory)
	assert.Equal(t, filepath.Join(dir, "public", "build"), cfg.AssetsBuildDirectory)
	assert.Equal(t, filepath.Join(dir, "build", "index.js"), cfg.ServerBuildPath)
	assert.Equal(t, "/build/", cfg.PublicPath)
	assert.Equal(t, ModeDevelopment, cfg.Mode)
	assert.Equal(t, ModuleFormatCJS, cfg.ServerModuleFormat)
	assert.Equal(t, 8002, cfg.Dev.Port)
	assert.Equal(t, 5, cfg.Dev.KeepManifests)
	assert.Equal(t, "100ms", cfg.Dev.Debounce)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, filepath.Join(dir, ".cache", "journal.db"), cfg.Journal.Path)
	assert.Equal(t, "twinbuild.reload", cfg.Notify.Subject)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, filepath.Join(dir, "build"), cfg.ServerBuildDirectory())
}

func TestLoad_ParsesYAMLAndExpandsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TWINBUILD_TEST_PUBLIC", "/assets/")
	writeFile(t, filepath.Join(dir, DefaultPath), `
app_directory: src
public_path: ${TWINBUILD_TEST_PUBLIC}
mode: production
dev:
  port: 3001
  debounce: 250ms
routes:
  - path: admin
    file: admin/layout.tsx
    children:
      - file: admin/index.tsx
        index: true
`)

	cfg, err := Load(filepath.Join(dir, DefaultPath))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "src"), cfg.AppDirectory)
	assert.Equal(t, "/assets/", cfg.PublicPath)
	assert.Equal(t, ModeProduction, cfg.Mode)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, 3001, cfg.Dev.Port)
	assert.Equal(t, "250ms", cfg.Dev.Debounce)
	require.Len(t, cfg.Routes, 1)
	require.Len(t, cfg.Routes[0].Children, 1)
	assert.True(t, cfg.Routes[0].Children[0].Index)
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TWINBUILD_TEST_MODE", "production")
	t.Cleanup(func() { _ = os.Unsetenv("TWINBUILD_TEST_FORMAT") })

	writeFile(t, filepath.Join(dir, ".env"), "TWINBUILD_TEST_MODE=development\nTWINBUILD_TEST_FORMAT=esm\n")
	writeFile(t, filepath.Join(dir, DefaultPath), "mode: ${TWINBUILD_TEST_MODE}\nserver_module_format: ${TWINBUILD_TEST_FORMAT}\n")

	cfg, err := Load(filepath.Join(dir, DefaultPath))
	require.NoError(t, err)
	assert.Equal(t, ModeProduction, cfg.Mode)
	assert.Equal(t, ModuleFormatESM, cfg.ServerModuleFormat)
}

func TestLoad_ModuleFormatFromPackageJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"app","type":"module"}`)

	cfg, err := Load(filepath.Join(dir, DefaultPath))
	require.NoError(t, err)
	assert.Equal(t, ModuleFormatESM, cfg.ServerModuleFormat)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, DefaultPath), "dev: [unclosed")

	_, err := Load(filepath.Join(dir, DefaultPath))
	require.Error(t, err)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryConfig))
}

func TestValidateConfig(t *testing.T) {
	base := func(t *testing.T) *Config {
		t.Helper()
		cfg := &Config{RootDirectory: t.TempDir()}
		require.NoError(t, NewDefaultApplier().ApplyDefaults(cfg))
		require.NoError(t, ValidateConfig(cfg))
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "staging" }},
		{"bad module format", func(c *Config) { c.ServerModuleFormat = "umd" }},
		{"public path without slash", func(c *Config) { c.PublicPath = "/build" }},
		{"port out of range", func(c *Config) { c.Dev.Port = 70000 }},
		{"bad debounce", func(c *Config) { c.Dev.Debounce = "soon" }},
		{"negative prune interval", func(c *Config) { c.Dev.PruneInterval = "-1m" }},
		{"relative metrics path", func(c *Config) { c.Metrics.Path = "metrics" }},
		{"route without file", func(c *Config) { c.Routes = []RouteConfig{{Path: "x"}} }},
		{"index route with children", func(c *Config) {
			c.Routes = []RouteConfig{{File: "a.tsx", Index: true, Children: []RouteConfig{{File: "b.tsx"}}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			require.Error(t, err)
			assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryValidation))
		})
	}
}

func TestDevConfigDurations(t *testing.T) {
	d := DevConfig{Debounce: "150ms", PruneInterval: "2m"}
	assert.Equal(t, "150ms", d.DebounceWindow().String())
	assert.Equal(t, "2m0s", d.PruneEvery().String())
}

func TestFindEntries(t *testing.T) {
	app := t.TempDir()
	writeFile(t, filepath.Join(app, "entry.client.tsx"), "")
	writeFile(t, filepath.Join(app, "entry.server.ts"), "")

	_, err := FindEntries(app)
	require.Error(t, err)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryConfig))
	assert.Contains(t, err.Error(), "No root file found in "+app)

	writeFile(t, filepath.Join(app, "root.jsx"), "")
	entries, err := FindEntries(app)
	require.NoError(t, err)
	assert.Equal(t, Entries{Client: "entry.client.tsx", Server: "entry.server.ts", Root: "root.jsx"}, entries)
}

func TestFindEntries_MissingClient(t *testing.T) {
	app := t.TempDir()
	_, err := FindEntries(app)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No entry.client file found in")
}

func TestResolveRoutes(t *testing.T) {
	dir := t.TempDir()
	app := filepath.Join(dir, "app")
	writeFile(t, filepath.Join(app, "root.tsx"), "")
	writeFile(t, filepath.Join(app, "entry.client.tsx"), "")
	writeFile(t, filepath.Join(app, "entry.server.tsx"), "")
	writeFile(t, filepath.Join(app, "routes", "index.tsx"), "")
	writeFile(t, filepath.Join(app, "routes", "docs.tsx"), "")
	writeFile(t, filepath.Join(app, "routes", "docs", "$slug.tsx"), "")

	cfg := &Config{
		RootDirectory: dir,
		Routes: []RouteConfig{
			{Path: "admin", File: "admin/layout.tsx", Children: []RouteConfig{
				{File: "admin/home.tsx", Index: true},
			}},
		},
	}
	require.NoError(t, NewDefaultApplier().ApplyDefaults(cfg))

	entries, err := FindEntries(cfg.AppDirectory)
	require.NoError(t, err)

	table, err := ResolveRoutes(cfg, entries, func(d *routes.Definer) error {
		return d.Route("about", "pages/about.tsx", routes.CaseSensitive())
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"admin/home",
		"admin/layout",
		"pages/about",
		"root",
		"routes/docs",
		"routes/docs/$slug",
		"routes/index",
	}, table.IDs())

	assert.Equal(t, "root.tsx", table["root"].File)
	assert.Equal(t, "routes/docs", table["routes/docs/$slug"].ParentID)
	assert.Equal(t, ":slug", table["routes/docs/$slug"].Path)
	assert.True(t, table["routes/index"].Index)
	assert.Equal(t, "admin/layout", table["admin/home"].ParentID)
	assert.Equal(t, routes.RootID, table["admin/layout"].ParentID)
	assert.True(t, table["pages/about"].CaseSensitive)
}

func TestResolveRoutes_SealedDefinerFails(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{RootDirectory: dir}
	require.NoError(t, NewDefaultApplier().ApplyDefaults(cfg))

	var leaked *routes.Definer
	_, err := ResolveRoutes(cfg, Entries{Root: "root.tsx"}, func(d *routes.Definer) error {
		leaked = d
		return nil
	})
	require.NoError(t, err)

	err = leaked.Route("late", "late.tsx")
	require.Error(t, err)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategorySequencing))
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultPath)
	require.NoError(t, Init(path, false))

	err := Init(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Routes, 1)
	assert.Equal(t, []string{"node_modules/"}, cfg.Dev.WarningFilters)
}
