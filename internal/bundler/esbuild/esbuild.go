// Package esbuild implements bundler.Bundler on top of esbuild's Go API.
package esbuild

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/twinbuild/internal/bundler"
	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
)

// Bundler compiles with esbuild.
type Bundler struct {
	// Debounce is the quiet window applied to filesystem events in watch
	// mode.
	Debounce time.Duration
}

// New returns an esbuild-backed bundler.
func New(debounce time.Duration) *Bundler {
	return &Bundler{Debounce: debounce}
}

var _ bundler.Bundler = (*Bundler)(nil)

// Compile runs a single build.
func (b *Bundler) Compile(ctx context.Context, cfg bundler.Config) (*bundler.Result, error) {
	opts, err := buildOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res := api.Build(opts)
	return collect(cfg, res, time.Since(start))
}

// Exports lists the exports of each file by running esbuild without
// bundling and reading the metafile.
func (b *Bundler) Exports(ctx context.Context, files []string) (map[string][]string, error) {
	if len(files) == 0 {
		return map[string][]string{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	abs := make([]string, len(files))
	for i, f := range files {
		p, err := filepath.Abs(f)
		if err != nil {
			return nil, err
		}
		abs[i] = p
	}

	wd := commonDir(abs)
	res := api.Build(api.BuildOptions{
		EntryPoints:   abs,
		AbsWorkingDir: wd,
		Outdir:        filepath.Join(os.TempDir(), "twinbuild-exports"),
		Format:        api.FormatESModule,
		Platform:      api.PlatformNeutral,
		Metafile:      true,
		Write:         false,
		LogLevel:      api.LogLevelSilent,
		JSX:           api.JSXAutomatic,
	})
	if len(res.Errors) > 0 {
		msgs := convertMessages(res.Errors)
		return nil, foundationerrors.CompileError(fmt.Sprintf("export analysis failed: %s", msgs[0].Text)).
			WithContext("errors", len(msgs)).
			Build()
	}

	meta, err := parseMetafile(res.Metafile)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]string, len(files))
	for _, f := range files {
		out[f] = []string{}
	}
	for _, o := range meta.Outputs {
		if o.EntryPoint == "" {
			continue
		}
		ep := filepath.Join(wd, filepath.FromSlash(o.EntryPoint))
		if i := slices.Index(abs, ep); i >= 0 {
			out[files[i]] = slices.Clone(o.Exports)
		}
	}
	return out, nil
}

func buildOptions(ctx context.Context, cfg bundler.Config) (api.BuildOptions, error) {
	if cfg.RootDir == "" {
		return api.BuildOptions{}, foundationerrors.InternalError("bundler config has no root directory").Build()
	}
	if len(cfg.Entries) == 0 {
		return api.BuildOptions{}, foundationerrors.InternalError(fmt.Sprintf("bundler config %q has no entries", cfg.Name)).Build()
	}

	opts := api.BuildOptions{
		AbsWorkingDir:     cfg.RootDir,
		Bundle:            true,
		Write:             false,
		Metafile:          true,
		LogLevel:          api.LogLevelSilent,
		JSX:               api.JSXAutomatic,
		Define:            cfg.Define,
		PublicPath:        cfg.PublicPath,
		MinifyWhitespace:  cfg.Production,
		MinifyIdentifiers: cfg.Production,
		MinifySyntax:      cfg.Production,
		Plugins:           []api.Plugin{plugin(ctx, cfg)},
	}
	if !cfg.Production {
		opts.Sourcemap = api.SourceMapLinked
	}

	switch cfg.Target {
	case bundler.TargetNode:
		opts.Platform = api.PlatformNode
		opts.Packages = api.PackagesExternal
	default:
		opts.Platform = api.PlatformBrowser
		opts.Target = api.ES2020
	}

	switch cfg.Format {
	case bundler.FormatCJS:
		opts.Format = api.FormatCommonJS
	default:
		opts.Format = api.FormatESModule
	}

	for _, e := range cfg.Entries {
		opts.EntryPointsAdvanced = append(opts.EntryPointsAdvanced, api.EntryPoint{
			InputPath:  e.Path,
			OutputPath: e.Name,
		})
	}

	if cfg.OutFile != "" {
		opts.Outfile = cfg.OutFile
	} else {
		opts.Outdir = cfg.OutDir
		opts.EntryNames = "[dir]/[name]-[hash]"
		opts.ChunkNames = "_shared/[name]-[hash]"
		opts.AssetNames = "_assets/[name]-[hash]"
		opts.Splitting = opts.Format == api.FormatESModule
	}
	return opts, nil
}

// collect converts an esbuild result and writes the emitted files when the
// build succeeded.
func collect(cfg bundler.Config, res api.BuildResult, d time.Duration) (*bundler.Result, error) {
	result := &bundler.Result{
		Errors:   convertMessages(res.Errors),
		Warnings: convertMessages(res.Warnings),
		Duration: d,
	}
	if len(result.Errors) > 0 {
		return result, nil
	}

	if err := writeOutputs(res.OutputFiles); err != nil {
		return nil, err
	}

	meta, err := parseMetafile(res.Metafile)
	if err != nil {
		return nil, err
	}
	out := outputFromMeta(cfg, meta)
	out.Version = version(res.OutputFiles)
	result.Output = out
	return result, nil
}

func writeOutputs(files []api.OutputFile) error {
	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
			return foundationerrors.FileSystemError(fmt.Sprintf("create output directory: %v", err)).
				WithContext("path", f.Path).
				Build()
		}
		if err := os.WriteFile(f.Path, f.Contents, 0o644); err != nil {
			return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "write output file").
				WithContext("path", f.Path).
				Build()
		}
	}
	return nil
}

// version hashes every emitted file, so it changes whenever any output does.
func version(files []api.OutputFile) string {
	sorted := slices.Clone(files)
	slices.SortFunc(sorted, func(a, b api.OutputFile) int { return strings.Compare(a.Path, b.Path) })

	h := sha256.New()
	for _, f := range sorted {
		h.Write([]byte(f.Path))
		h.Write([]byte{0})
		h.Write(f.Contents)
	}
	return hex.EncodeToString(h.Sum(nil))[:8]
}

func convertMessages(msgs []api.Message) []bundler.Message {
	out := make([]bundler.Message, 0, len(msgs))
	for _, m := range msgs {
		msg := bundler.Message{Text: m.Text}
		if m.Location != nil {
			msg.File = m.Location.File
			msg.Line = m.Location.Line
			msg.Column = m.Location.Column
		}
		out = append(out, msg)
	}
	return out
}

// commonDir returns the deepest directory containing every path.
func commonDir(paths []string) string {
	dir := filepath.Dir(paths[0])
	for _, p := range paths[1:] {
		for !strings.HasPrefix(p, dir+string(filepath.Separator)) && dir != filepath.Dir(dir) {
			dir = filepath.Dir(dir)
		}
	}
	return dir
}
