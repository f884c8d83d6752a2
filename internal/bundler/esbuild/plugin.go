package esbuild

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/twinbuild/internal/bundler"
)

const (
	namespaceVirtual = "virtual"
	namespaceSource  = "source"
)

var (
	virtualFilter = "^" + regexp.QuoteMeta(bundler.VirtualPrefix)
	sourceFilter  = regexp.QuoteMeta(bundler.SourceSuffix) + "$"
)

// plugin serves virtual modules, applies the config's transforms to file
// modules and resolves "?source" imports to the original file.
func plugin(ctx context.Context, cfg bundler.Config) api.Plugin {
	return api.Plugin{
		Name: "twinbuild",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: virtualFilter},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{Path: args.Path, Namespace: namespaceVirtual}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: namespaceVirtual},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					if cfg.Virtual == nil {
						return api.OnLoadResult{}, os.ErrNotExist
					}
					contents, err := cfg.Virtual.Load(ctx, args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					return api.OnLoadResult{
						Contents:   &contents,
						ResolveDir: cfg.RootDir,
						Loader:     api.LoaderJS,
					}, nil
				})

			build.OnResolve(api.OnResolveOptions{Filter: sourceFilter},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					p := strings.TrimSuffix(args.Path, bundler.SourceSuffix)
					if !filepath.IsAbs(p) {
						p = filepath.Join(args.ResolveDir, p)
					}
					return api.OnResolveResult{Path: p, Namespace: namespaceSource}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: namespaceSource}, loadSource)

			if len(cfg.Transforms) == 0 {
				return
			}
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					for _, t := range cfg.Transforms {
						if t.Test == nil || !t.Test(args.Path) {
							continue
						}
						contents, err := t.Apply(ctx, args.Path)
						if err != nil {
							return api.OnLoadResult{}, err
						}
						if t.Isolate {
							if contents, err = isolate(cfg, args.Path, contents); err != nil {
								return api.OnLoadResult{}, err
							}
						}
						return api.OnLoadResult{
							Contents:   &contents,
							ResolveDir: filepath.Dir(args.Path),
							Loader:     api.LoaderJS,
							PluginName: t.Name,
						}, nil
					}
					return api.OnLoadResult{}, nil
				})
		},
	}
}

// loadSource reads the untransformed file behind a "?source" import.
func loadSource(args api.OnLoadArgs) (api.OnLoadResult, error) {
	data, err := os.ReadFile(args.Path)
	if err != nil {
		return api.OnLoadResult{}, err
	}
	contents := string(data)
	return api.OnLoadResult{
		Contents:   &contents,
		ResolveDir: filepath.Dir(args.Path),
		Loader:     loaderFor(args.Path),
		WatchFiles: []string{args.Path},
	}, nil
}

func loaderFor(path string) api.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".jsx":
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}
