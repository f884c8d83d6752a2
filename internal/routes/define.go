package routes

import (
	"sync"

	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
)

// RouteOption adjusts a route while it is being defined.
type RouteOption func(*RouteDefinition)

// Index marks the route as the index route of its parent.
func Index() RouteOption {
	return func(r *RouteDefinition) { r.Index = true }
}

// CaseSensitive makes path matching for the route case sensitive.
func CaseSensitive() RouteOption {
	return func(r *RouteDefinition) { r.CaseSensitive = true }
}

// Definer registers routes during a DefineRoutes callback. A Definer is
// sealed once the callback returns; later calls fail with a sequencing error.
type Definer struct {
	mu      sync.Mutex
	routes  Table
	parents []string
	sealed  bool
}

// DefineRoutes runs fn with a fresh Definer and returns the routes it
// registered. Routes registered without an enclosing Nest have no parent.
func DefineRoutes(fn func(*Definer) error) (Table, error) {
	d := &Definer{routes: make(Table)}
	err := fn(d)

	d.mu.Lock()
	d.sealed = true
	routes := d.routes
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return routes, nil
}

// Route registers a leaf route.
func (d *Definer) Route(path, file string, opts ...RouteOption) error {
	_, err := d.define(path, file, opts)
	return err
}

// Nest registers a route and then runs children with the route pushed as the
// current parent.
func (d *Definer) Nest(path, file string, children func(*Definer) error, opts ...RouteOption) error {
	id, err := d.define(path, file, opts)
	if err != nil {
		return err
	}
	if children == nil {
		return nil
	}

	d.mu.Lock()
	d.parents = append(d.parents, id)
	d.mu.Unlock()

	err = children(d)

	d.mu.Lock()
	d.parents = d.parents[:len(d.parents)-1]
	d.mu.Unlock()
	return err
}

func (d *Definer) define(path, file string, opts []RouteOption) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sealed {
		return "", foundationerrors.SequencingError("routes defined after builder returned").
			WithContext("file", file).
			Build()
	}

	route := RouteDefinition{
		ID:   CreateRouteID(file),
		Path: path,
		File: file,
	}
	if n := len(d.parents); n > 0 {
		route.ParentID = d.parents[n-1]
	}
	for _, opt := range opts {
		opt(&route)
	}
	d.routes[route.ID] = route
	return route.ID, nil
}
