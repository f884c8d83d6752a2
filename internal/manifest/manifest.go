// Package manifest derives the versioned asset manifest from a client
// compilation and persists it as a browser-loadable artifact.
package manifest

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"git.home.luguber.info/inful/twinbuild/internal/bundler"
	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/twinbuild/internal/routes"
)

// Entry group names the client compilation must provide.
const (
	GroupEntryClient = "entry.client"
	GroupRuntime     = "runtime"
)

// EntryAssets locates the client entry module and everything it preloads.
type EntryAssets struct {
	Imports []string `json:"imports"`
	Module  string   `json:"module"`
}

// Route is the manifest entry for one route.
type Route struct {
	ID               string   `json:"id"`
	ParentID         string   `json:"parentId,omitempty"`
	Path             string   `json:"path,omitempty"`
	Index            bool     `json:"index,omitempty"`
	CaseSensitive    bool     `json:"caseSensitive,omitempty"`
	Module           string   `json:"module"`
	Imports          []string `json:"imports"`
	HasAction        bool     `json:"hasAction"`
	HasLoader        bool     `json:"hasLoader"`
	HasCatchBoundary bool     `json:"hasCatchBoundary"`
	HasErrorBoundary bool     `json:"hasErrorBoundary"`
}

// AssetManifest describes the assets of one client build. Values are never
// mutated after Build returns; a rebuild produces a new manifest.
type AssetManifest struct {
	Version string           `json:"version"`
	URL     string           `json:"url"`
	Entry   EntryAssets      `json:"entry"`
	Routes  map[string]Route `json:"routes"`
}

// Build derives the manifest for a client compilation.
func Build(table routes.Table, exports routes.ExportSet, out *bundler.CompilationOutput, publicPath string) (*AssetManifest, error) {
	if out == nil {
		return nil, foundationerrors.ManifestError("client compilation produced no output").Build()
	}

	group := func(name string) ([]string, error) {
		files, ok := out.Groups[name]
		if !ok || len(files) == 0 {
			return nil, foundationerrors.ManifestError(fmt.Sprintf("no assets emitted for %q", name)).
				WithContext("group", name).
				Build()
		}
		urls := make([]string, len(files))
		for i, f := range files {
			urls[i] = CreateURL(publicPath, f)
		}
		return urls, nil
	}

	entry, err := group(GroupEntryClient)
	if err != nil {
		return nil, err
	}
	root, err := group(routes.RootID)
	if err != nil {
		return nil, err
	}
	var runtime []string
	if _, ok := out.Groups[GroupRuntime]; ok {
		if runtime, err = group(GroupRuntime); err != nil {
			return nil, err
		}
	}

	m := &AssetManifest{
		Version: out.Version,
		URL:     CreateURL(publicPath, Filename(out.Version)),
		Entry: EntryAssets{
			Imports: dedupe(runtime, entry[:len(entry)-1], root),
			Module:  entry[len(entry)-1],
		},
		Routes: make(map[string]Route, len(table)),
	}

	for _, id := range table.IDs() {
		def := table[id]
		assets, err := group(id)
		if err != nil {
			return nil, err
		}
		m.Routes[id] = Route{
			ID:               def.ID,
			ParentID:         def.ParentID,
			Path:             def.Path,
			Index:            def.Index,
			CaseSensitive:    def.CaseSensitive,
			Module:           assets[len(assets)-1],
			Imports:          assets[:len(assets)-1],
			HasAction:        exports.Has(id, routes.ExportAction),
			HasLoader:        exports.Has(id, routes.ExportLoader),
			HasCatchBoundary: exports.Has(id, routes.ExportCatchBoundary),
			HasErrorBoundary: exports.Has(id, routes.ExportErrorBoundary),
		}
	}
	return m, nil
}

func dedupe(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, list := range lists {
		for _, u := range list {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}

// CreateURL joins publicPath and an output-relative file.
func CreateURL(publicPath, file string) string {
	return strings.ReplaceAll(publicPath, `\`, "/") + strings.ReplaceAll(file, `\`, "/")
}

// Filename is the artifact name for a manifest version.
func Filename(version string) string {
	return "manifest-" + strings.ToUpper(version) + ".js"
}

// Equal compares two manifests structurally. Import lists are compared as
// sets.
func Equal(a, b *AssetManifest) bool {
	if a == nil || b == nil {
		return a == b
	}
	return reflect.DeepEqual(a.normalized(), b.normalized())
}

func (m *AssetManifest) normalized() *AssetManifest {
	n := *m
	n.Entry.Imports = sortedSet(m.Entry.Imports)
	n.Routes = make(map[string]Route, len(m.Routes))
	for id, r := range m.Routes {
		r.Imports = sortedSet(r.Imports)
		n.Routes[id] = r
	}
	return &n
}

func sortedSet(in []string) []string {
	out := slices.Clone(in)
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// JSON encodes the manifest compactly.
func (m *AssetManifest) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// ModuleSource renders the manifest as an ES module default export, the form
// embedded into the server bundle.
func (m *AssetManifest) ModuleSource() (string, error) {
	data, err := m.JSON()
	if err != nil {
		return "", err
	}
	return "export default " + string(data) + ";", nil
}

func jsonIndent(m *AssetManifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
