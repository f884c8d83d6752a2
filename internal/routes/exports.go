package routes

import (
	"context"
	"path/filepath"
	"slices"

	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
)

// Well-known route module exports that drive manifest flags.
const (
	ExportAction        = "action"
	ExportLoader        = "loader"
	ExportCatchBoundary = "CatchBoundary"
	ExportErrorBoundary = "ErrorBoundary"
)

// ExportSet maps route id to the sorted names the route module exports.
type ExportSet map[string][]string

// Has reports whether route id exports name.
func (s ExportSet) Has(id, name string) bool {
	_, found := slices.BinarySearch(s[id], name)
	return found
}

// Equal reports whether both sets list the same exports for the same routes.
func (s ExportSet) Equal(other ExportSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id, names := range s {
		o, ok := other[id]
		if !ok || !slices.Equal(names, o) {
			return false
		}
	}
	return true
}

// Analyzer statically lists the exports of source files without executing
// them. Keys of the result are the paths passed in.
type Analyzer interface {
	Exports(ctx context.Context, files []string) (map[string][]string, error)
}

// ScanExports analyzes every route module in table.
func ScanExports(ctx context.Context, analyzer Analyzer, appDir string, table Table) (ExportSet, error) {
	ids := table.IDs()
	files := make([]string, len(ids))
	for i, id := range ids {
		files[i] = filepath.Join(appDir, filepath.FromSlash(table[id].File))
	}

	found, err := analyzer.Exports(ctx, files)
	if err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryCompile, "analyze route exports").
			WithRetry(foundationerrors.RetryNextRound).
			Build()
	}

	set := make(ExportSet, len(ids))
	for i, id := range ids {
		names := slices.Clone(found[files[i]])
		slices.Sort(names)
		set[id] = slices.Compact(names)
	}
	return set, nil
}
