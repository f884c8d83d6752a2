package routes

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
)

// RouteExtensions are the file extensions recognized as route modules.
var RouteExtensions = []string{".js", ".jsx", ".ts", ".tsx"}

// Scan discovers routes under appDir/routesDir using the nested-folder
// convention:
//
//	routes/index.tsx          -> index route of root
//	routes/docs.tsx           -> "docs"
//	routes/docs/$slug.tsx     -> ":slug" nested under routes/docs
//	routes/__auth/login.tsx   -> "login" under pathless layout routes/__auth
//	routes/blog.archive.tsx   -> "blog/archive"
//	routes/$.tsx              -> "*"
//
// Files in the returned table are relative to appDir.
func Scan(appDir, routesDir string) (Table, error) {
	files := make(map[string]string)
	base := filepath.Join(appDir, routesDir)

	if _, err := os.Stat(base); os.IsNotExist(err) {
		return make(Table), nil
	}

	err := filepath.WalkDir(base, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != base && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !slices.Contains(RouteExtensions, strings.ToLower(filepath.Ext(p))) {
			return nil
		}
		rel, err := filepath.Rel(appDir, p)
		if err != nil {
			return err
		}
		id := CreateRouteID(rel)
		if existing, dup := files[id]; dup {
			return foundationerrors.ValidationError(fmt.Sprintf("route %q is defined by both %s and %s", id, existing, rel)).Build()
		}
		files[id] = normalizeSlashes(rel)
		return nil
	})
	if err != nil {
		if _, ok := foundationerrors.AsClassified(err); ok {
			return nil, err
		}
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "scan routes directory").
			WithContext("dir", base).
			Build()
	}

	ids := make([]string, 0, len(files))
	for id := range files {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	prefix := normalizeSlashes(routesDir)
	return DefineRoutes(func(d *Definer) error {
		return defineNested(d, prefix, ids, files, "")
	})
}

func defineNested(d *Definer, prefix string, ids []string, files map[string]string, parentID string) error {
	for _, id := range ids {
		if findParentRouteID(ids, id) != parentID {
			continue
		}
		anchor := parentID
		if anchor == "" {
			anchor = prefix
		}
		path, index := createRoutePath(strings.TrimPrefix(id, anchor+"/"))

		var opts []RouteOption
		if index {
			opts = append(opts, Index())
		}
		if index {
			if err := d.Route(path, files[id], opts...); err != nil {
				return err
			}
			continue
		}
		err := d.Nest(path, files[id], func(d *Definer) error {
			return defineNested(d, prefix, ids, files, id)
		}, opts...)
		if err != nil {
			return err
		}
	}
	return nil
}

// findParentRouteID returns the longest id that is a directory prefix of
// child, or "" when there is none.
func findParentRouteID(ids []string, child string) string {
	parent := ""
	for _, id := range ids {
		if id != child && strings.HasPrefix(child, id+"/") && len(id) > len(parent) {
			parent = id
		}
	}
	return parent
}

// createRoutePath converts a route id fragment into a URL path pattern.
func createRoutePath(partial string) (string, bool) {
	var segments []string
	index := false

	parts := strings.FieldsFunc(partial, func(r rune) bool { return r == '/' || r == '.' })
	for i, part := range parts {
		switch {
		case strings.HasPrefix(part, "__"):
			continue
		case part == "index" && i == len(parts)-1:
			index = true
		case part == "$":
			segments = append(segments, "*")
		case strings.HasPrefix(part, "$"):
			segments = append(segments, ":"+part[1:])
		default:
			segments = append(segments, part)
		}
	}
	return strings.Join(segments, "/"), index
}

// Assemble composes the route table: the root route, the scanned routes and
// the manually defined ones, in that order of precedence (later wins).
// Routes without a parent are attached to the root.
func Assemble(rootFile string, scanned, manual Table) (Table, error) {
	table := make(Table, len(scanned)+len(manual)+1)
	for _, src := range []Table{scanned, manual} {
		for id, r := range src {
			if r.ParentID == "" {
				r.ParentID = RootID
			}
			table[id] = r
		}
	}
	table[RootID] = RouteDefinition{ID: RootID, File: normalizeSlashes(rootFile)}

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}
