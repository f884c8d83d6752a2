package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/twinbuild/internal/bundler"
	"git.home.luguber.info/inful/twinbuild/internal/config"
	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/twinbuild/internal/manifest"
	"git.home.luguber.info/inful/twinbuild/internal/routes"
)

// Virtual modules of the server build.
const (
	ServerBuildModule    = bundler.VirtualPrefix + "server-build"
	AssetsManifestModule = bundler.VirtualPrefix + "assets-manifest"
)

// NewServer creates the server pipeline. Its single entry is an aggregate
// module importing every route; the client manifest is embedded through a
// virtual module that blocks until SetManifest is first called.
func NewServer(opts Options) *Pipeline {
	p := newPipeline(Server, opts)
	cfg := opts.Config
	p.manifest = bundler.NewDeferred[*manifest.AssetManifest]()

	entry := filepath.Join(cfg.AppDirectory, opts.Entries.Server)
	p.virtual.Write(ServerBuildModule, ServerBuildSource(entry, p.table, p.routeFile))
	p.virtual.Register(AssetsManifestModule, p.loadManifestModule)

	format := bundler.FormatCJS
	if cfg.ServerModuleFormat == config.ModuleFormatESM {
		format = bundler.FormatESM
	}

	p.derive = func() bundler.Config {
		return bundler.Config{
			Name:       Server,
			Target:     bundler.TargetNode,
			Format:     format,
			Production: !cfg.IsDevelopment(),
			RootDir:    cfg.RootDirectory,
			Entries:    []bundler.Entry{{Name: Server, Path: ServerBuildModule}},
			Virtual:    p.virtual,
			OutFile:    cfg.ServerBuildPath,
			PublicPath: cfg.PublicPath,
			Define:     define(cfg.Mode),
			WatchDirs:  []string{cfg.AppDirectory},
		}
	}
	return p
}

func (p *Pipeline) loadManifestModule(ctx context.Context) (string, error) {
	p.mu.Lock()
	d := p.manifest
	p.mu.Unlock()

	m, err := d.Wait(ctx)
	if err != nil {
		return "", foundationerrors.WrapError(err, foundationerrors.CategoryManifest, "client manifest unavailable").Build()
	}

	p.mu.Lock()
	p.loading = m
	p.mu.Unlock()
	return m.ModuleSource()
}

// SetManifest makes m the manifest the next server compile embeds. The
// first call releases compiles waiting for a manifest.
func (p *Pipeline) SetManifest(m *manifest.AssetManifest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.manifest == nil {
		return
	}
	if !p.manifest.Resolve(m) {
		p.manifest = bundler.Resolved(m)
	}
}

// RejectManifest fails compiles waiting for a manifest that will never be
// produced.
func (p *Pipeline) RejectManifest(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.manifest != nil {
		p.manifest.Reject(err)
	}
}

// Manifest returns the manifest the next compile will embed, once set.
func (p *Pipeline) Manifest() (*manifest.AssetManifest, bool) {
	p.mu.Lock()
	d := p.manifest
	p.mu.Unlock()
	if d == nil {
		return nil, false
	}
	return d.Peek()
}

// ServerBuildSource renders the aggregate server entry: every route module
// imported statically plus a descriptor table keyed by route id.
func ServerBuildSource(entryServer string, table routes.Table, file func(routes.RouteDefinition) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "import * as entryServer from %s;\n", jsString(entryServer))
	ids := table.IDs()
	for i, id := range ids {
		fmt.Fprintf(&b, "import * as route%d from %s;\n", i, jsString(file(table[id])))
	}
	fmt.Fprintf(&b, "export { default as assets } from %s;\n", jsString(AssetsManifestModule))
	b.WriteString("export const entry = { module: entryServer };\n")
	b.WriteString("export const routes = {\n")
	for i, id := range ids {
		r := table[id]
		fmt.Fprintf(&b, "  %s: {\n", jsString(id))
		fmt.Fprintf(&b, "    id: %s,\n", jsString(r.ID))
		fmt.Fprintf(&b, "    parentId: %s,\n", optionalString(r.ParentID))
		fmt.Fprintf(&b, "    path: %s,\n", optionalString(r.Path))
		fmt.Fprintf(&b, "    index: %s,\n", optionalBool(r.Index))
		fmt.Fprintf(&b, "    caseSensitive: %s,\n", optionalBool(r.CaseSensitive))
		fmt.Fprintf(&b, "    module: route%d\n", i)
		b.WriteString("  },\n")
	}
	b.WriteString("};\n")
	return b.String()
}

func optionalString(s string) string {
	if s == "" {
		return "undefined"
	}
	return jsString(s)
}

func optionalBool(v bool) string {
	if !v {
		return "undefined"
	}
	return "true"
}
