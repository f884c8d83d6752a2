package pipeline

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/twinbuild/internal/bundler/esbuild"
	"git.home.luguber.info/inful/twinbuild/internal/config"
	"git.home.luguber.info/inful/twinbuild/internal/routes"
)

func writeSource(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestClient_ServerOnlyImportsStayOutOfBrowserBundle(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "app")
	writeSource(t, filepath.Join(app, "entry.client.js"), "console.log(\"client\");\n")
	writeSource(t, filepath.Join(app, "root.js"), "export default function Root() { return \"root-shell\"; }\n")
	writeSource(t, filepath.Join(app, "db.server.js"),
		"globalThis.SECRET_DB_CONNECT = \"postgres://secret\";\nexport function connect() { return globalThis.SECRET_DB_CONNECT; }\n")
	writeSource(t, filepath.Join(app, "format.js"), "export const title = (s) => \"page:\" + s;\n")
	writeSource(t, filepath.Join(app, "routes", "index.js"),
		"import { connect } from \"../db.server.js\";\n"+
			"import { title } from \"../format.js\";\n"+
			"export const loader = () => connect();\n"+
			"export default function Index() { return title(\"index-page\"); }\n")

	cfg := &config.Config{RootDirectory: root, Mode: config.ModeProduction}
	require.NoError(t, config.NewDefaultApplier().ApplyDefaults(cfg))

	p := NewClient(Options{
		Config:  cfg,
		Entries: config.Entries{Client: "entry.client.js", Server: "entry.server.js", Root: "root.js"},
		Routes: routes.Table{
			"root":         {ID: "root", File: "root.js"},
			"routes/index": {ID: "routes/index", ParentID: "root", File: "routes/index.js", Index: true},
		},
		Exports: routes.ExportSet{
			"root":         {"default"},
			"routes/index": {"default", "loader"},
		},
		Bundler: esbuild.New(0),
	})

	res, err := p.Compile(t.Context())
	require.NoError(t, err)
	require.False(t, res.HasErrors(), "%v", res.Errors)

	var emitted strings.Builder
	require.NoError(t, filepath.WalkDir(cfg.AssetsBuildDirectory, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		emitted.Write(data)
		return nil
	}))

	out := emitted.String()
	assert.Contains(t, out, "index-page")
	assert.Contains(t, out, "page:")
	assert.NotContains(t, out, "postgres://secret")
	assert.NotContains(t, out, "SECRET_DB_CONNECT")
}
