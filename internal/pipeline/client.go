package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"git.home.luguber.info/inful/twinbuild/internal/bundler"
	"git.home.luguber.info/inful/twinbuild/internal/config"
	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/twinbuild/internal/hmr"
	"git.home.luguber.info/inful/twinbuild/internal/manifest"
)

// Virtual modules of the client build.
const (
	HMRRuntimeModule  = bundler.VirtualPrefix + "hmr-runtime"
	ClientEntryModule = bundler.VirtualPrefix + "entry.client"
)

// BrowserSafeExports are the route module exports kept in browser bundles.
// Everything else, loader and action in particular, is stripped.
var BrowserSafeExports = []string{
	"CatchBoundary",
	"ErrorBoundary",
	"default",
	"handle",
	"links",
	"meta",
	"unstable_shouldReload",
}

// NewClient creates the browser pipeline. Every route is its own entry
// point; route modules pass through a transform that only re-exports the
// browser-safe names.
func NewClient(opts Options) *Pipeline {
	p := newPipeline(Client, opts)
	cfg := opts.Config

	entry := filepath.Join(cfg.AppDirectory, opts.Entries.Client)
	if cfg.IsDevelopment() {
		p.virtual.Write(HMRRuntimeModule, hmr.ClientScript(cfg.Dev.Port))
		p.virtual.Write(ClientEntryModule, "import "+jsString(HMRRuntimeModule)+";\nimport "+jsString(entry)+";\n")
		entry = ClientEntryModule
	}

	transform := p.browserRouteTransform()
	p.derive = func() bundler.Config {
		table := p.Routes()
		entries := []bundler.Entry{{Name: manifest.GroupEntryClient, Path: entry}}
		for _, id := range table.IDs() {
			entries = append(entries, bundler.Entry{Name: id, Path: p.routeFile(table[id])})
		}
		return bundler.Config{
			Name:       Client,
			Target:     bundler.TargetBrowser,
			Format:     bundler.FormatESM,
			Production: !cfg.IsDevelopment(),
			RootDir:    cfg.RootDirectory,
			Entries:    entries,
			Transforms: []bundler.Transform{transform},
			Virtual:    p.virtual,
			OutDir:     cfg.AssetsBuildDirectory,
			PublicPath: cfg.PublicPath,
			Define:     define(cfg.Mode),
			WatchDirs:  []string{cfg.AppDirectory},
		}
	}
	return p
}

func (p *Pipeline) browserRouteTransform() bundler.Transform {
	return bundler.Transform{
		Name:    "browser-route-modules",
		Isolate: true,
		Test: func(path string) bool {
			_, ok := p.routeIDForFile(path)
			return ok
		},
		Apply: func(_ context.Context, path string) (string, error) {
			id, ok := p.routeIDForFile(path)
			if !ok {
				return "", foundationerrors.InternalError(fmt.Sprintf("%s is not a route module", path)).Build()
			}
			return BrowserRouteModule(path, p.RouteExports()[id]), nil
		},
	}
}

func (p *Pipeline) routeIDForFile(path string) (string, bool) {
	path = filepath.Clean(path)
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, r := range p.table {
		if filepath.Join(p.appDir, filepath.FromSlash(r.File)) == path {
			return id, true
		}
	}
	return "", false
}

// BrowserRouteModule returns the source replacing a route module in the
// browser build: a re-export of the browser-safe names from the original.
func BrowserRouteModule(path string, exports []string) string {
	var keep []string
	for _, name := range exports {
		if slices.Contains(BrowserSafeExports, name) {
			keep = append(keep, name)
		}
	}
	if len(keep) == 0 {
		return "export {};\n"
	}
	slices.Sort(keep)
	return "export { " + strings.Join(keep, ", ") + " } from " + jsString(path+bundler.SourceSuffix) + ";\n"
}

func define(mode config.Mode) map[string]string {
	return map[string]string{"process.env.NODE_ENV": jsString(string(mode))}
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
