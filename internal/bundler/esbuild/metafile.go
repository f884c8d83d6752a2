package esbuild

import (
	"encoding/json"
	"path/filepath"
	"slices"
	"strings"

	"git.home.luguber.info/inful/twinbuild/internal/bundler"
	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
)

type metafile struct {
	Inputs  map[string]metaInput  `json:"inputs"`
	Outputs map[string]metaOutput `json:"outputs"`
}

type metaInput struct {
	Bytes int `json:"bytes"`
}

type metaImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external"`
}

type metaOutput struct {
	Imports    []metaImport `json:"imports"`
	Exports    []string     `json:"exports"`
	EntryPoint string       `json:"entryPoint"`
}

func parseMetafile(raw string) (*metafile, error) {
	var m metafile
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryInternal, "parse esbuild metafile").Build()
	}
	return &m, nil
}

// outputFromMeta maps metafile outputs back to the configured entries.
// Metafile paths are relative to the working directory; files outside the
// file namespace carry a "<namespace>:" prefix.
func outputFromMeta(cfg bundler.Config, m *metafile) *bundler.CompilationOutput {
	outDir := cfg.OutDir
	if cfg.OutFile != "" {
		outDir = filepath.Dir(cfg.OutFile)
	}
	rel := func(key string) string {
		p, err := filepath.Rel(outDir, filepath.Join(cfg.RootDir, filepath.FromSlash(key)))
		if err != nil {
			return filepath.ToSlash(key)
		}
		return filepath.ToSlash(p)
	}

	entryKeys := make(map[string]string, len(cfg.Entries))
	for _, e := range cfg.Entries {
		entryKeys[entryKey(cfg.RootDir, e.Path)] = e.Name
	}

	out := &bundler.CompilationOutput{
		Groups:  make(map[string][]string),
		Imports: make(map[string][]string),
	}

	keys := make([]string, 0, len(m.Outputs))
	for k := range m.Outputs {
		if strings.HasSuffix(k, ".map") {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		var imports []string
		for _, imp := range m.Outputs[k].Imports {
			if imp.External || imp.Kind != "import-statement" {
				continue
			}
			imports = append(imports, rel(imp.Path))
		}
		out.Imports[rel(k)] = imports
	}

	for _, k := range keys {
		o := m.Outputs[k]
		if o.EntryPoint == "" || strings.HasSuffix(k, ".css") {
			continue
		}
		name, ok := entryKeys[o.EntryPoint]
		if !ok {
			continue
		}
		file := rel(k)
		out.Groups[name] = append(staticClosure(out.Imports, file), file)
	}

	for in := range m.Inputs {
		switch {
		case strings.HasPrefix(in, namespaceSource+":"):
			out.InputFiles = append(out.InputFiles, strings.TrimPrefix(in, namespaceSource+":"))
		case strings.Contains(in, ":") && !filepath.IsAbs(in):
		default:
			out.InputFiles = append(out.InputFiles, filepath.Join(cfg.RootDir, filepath.FromSlash(in)))
		}
	}
	slices.Sort(out.InputFiles)
	out.InputFiles = slices.Compact(out.InputFiles)
	return out
}

func entryKey(root, path string) string {
	if bundler.IsVirtual(path) {
		return namespaceVirtual + ":" + path
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// staticClosure lists every file reachable from file through static
// imports, depth first, excluding file itself.
func staticClosure(imports map[string][]string, file string) []string {
	seen := map[string]bool{file: true}
	var out []string
	var visit func(string)
	visit = func(f string) {
		for _, dep := range imports[f] {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			visit(dep)
			out = append(out, dep)
		}
	}
	visit(file)
	return out
}
