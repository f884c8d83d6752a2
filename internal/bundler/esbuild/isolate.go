package esbuild

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/twinbuild/internal/bundler"
	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
)

// isolate tree-shakes the rewritten module of path. The module may import
// path itself through "?source"; every other import is left external and
// marked side-effect free, so esbuild drops the ones nothing kept uses.
func isolate(cfg bundler.Config, path, contents string) (string, error) {
	self := filepath.Clean(path)

	res := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   contents,
			ResolveDir: filepath.Dir(self),
			Sourcefile: self,
			Loader:     api.LoaderJS,
		},
		Bundle:      true,
		TreeShaking: api.TreeShakingTrue,
		Write:       false,
		Format:      api.FormatESModule,
		Platform:    api.PlatformNeutral,
		Target:      api.ES2020,
		JSX:         api.JSXAutomatic,
		Define:      cfg.Define,
		LogLevel:    api.LogLevelSilent,
		Plugins: []api.Plugin{{
			Name: "twinbuild-isolate",
			Setup: func(build api.PluginBuild) {
				build.OnResolve(api.OnResolveOptions{Filter: ".*"},
					func(args api.OnResolveArgs) (api.OnResolveResult, error) {
						if p, ok := strings.CutSuffix(args.Path, bundler.SourceSuffix); ok {
							if !filepath.IsAbs(p) {
								p = filepath.Join(args.ResolveDir, p)
							}
							if filepath.Clean(p) == self {
								return api.OnResolveResult{Path: self, Namespace: namespaceSource}, nil
							}
						}
						return api.OnResolveResult{
							Path:        args.Path,
							External:    true,
							SideEffects: api.SideEffectsFalse,
						}, nil
					})
				build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: namespaceSource}, loadSource)
			},
		}},
	})

	if len(res.Errors) > 0 {
		msgs := convertMessages(res.Errors)
		return "", foundationerrors.CompileError(fmt.Sprintf("isolate %s: %s", path, msgs[0].Text)).
			WithContext("path", path).
			WithContext("errors", len(msgs)).
			Build()
	}
	if len(res.OutputFiles) == 0 {
		return "", nil
	}
	return string(res.OutputFiles[0].Contents), nil
}
