package routes

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
)

// RootID is the id of the root document route.
const RootID = "root"

// RouteDefinition describes one entry of the route tree.
type RouteDefinition struct {
	ID            string `json:"id" yaml:"id"`
	ParentID      string `json:"parentId,omitempty" yaml:"parent_id,omitempty"`
	Path          string `json:"path,omitempty" yaml:"path,omitempty"`
	File          string `json:"file" yaml:"file"`
	Index         bool   `json:"index,omitempty" yaml:"index,omitempty"`
	CaseSensitive bool   `json:"caseSensitive,omitempty" yaml:"case_sensitive,omitempty"`
}

// Table maps route id to its definition.
type Table map[string]RouteDefinition

// IDs returns the route ids in lexical order.
func (t Table) IDs() []string {
	ids := make([]string, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Children returns the ids whose parent is parentID, sorted.
func (t Table) Children(parentID string) []string {
	var ids []string
	for id, r := range t {
		if r.ParentID == parentID && id != parentID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Clone returns a shallow copy of the table.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for id, r := range t {
		out[id] = r
	}
	return out
}

// Validate checks that ids are consistent with their keys and that every
// non-root parent reference resolves.
func (t Table) Validate() error {
	for _, id := range t.IDs() {
		r := t[id]
		if r.ID != id {
			return foundationerrors.ValidationError(fmt.Sprintf("route key %q does not match id %q", id, r.ID)).Build()
		}
		if r.File == "" {
			return foundationerrors.ValidationError(fmt.Sprintf("route %q has no file", id)).Build()
		}
		if id == RootID {
			continue
		}
		if r.ParentID == "" {
			return foundationerrors.ValidationError(fmt.Sprintf("route %q has no parent", id)).Build()
		}
		if _, ok := t[r.ParentID]; !ok {
			return foundationerrors.ValidationError(fmt.Sprintf("route %q references unknown parent %q", id, r.ParentID)).
				WithContext("route_id", id).
				Build()
		}
	}
	return nil
}

var fileExtension = regexp.MustCompile(`(?i)\.[a-z0-9]+$`)

// CreateRouteID derives a route id from a file path relative to the app
// directory.
func CreateRouteID(file string) string {
	return normalizeSlashes(fileExtension.ReplaceAllString(file, ""))
}

func normalizeSlashes(file string) string {
	return strings.ReplaceAll(filepath.ToSlash(file), `\`, "/")
}
