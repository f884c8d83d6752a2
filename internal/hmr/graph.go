package hmr

import (
	"slices"
	"sync"
)

// Node is a snapshot of one module in the dependency graph.
type Node struct {
	URL              string
	Dependencies     []string
	Dependents       []string
	NeedsReplacement bool
	HMREnabled       bool
	HMRAccepted      bool
}

type node struct {
	dependencies     map[string]struct{}
	dependents       map[string]struct{}
	needsReplacement bool
	hmrEnabled       bool
	hmrAccepted      bool
}

func (n *node) snapshot(url string) Node {
	return Node{
		URL:              url,
		Dependencies:     sortedKeys(n.dependencies),
		Dependents:       sortedKeys(n.dependents),
		NeedsReplacement: n.needsReplacement,
		HMREnabled:       n.hmrEnabled,
		HMRAccepted:      n.hmrAccepted,
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Graph tracks import relationships between module urls. Edges are kept
// symmetric: a dependency of A on B is always mirrored as B having
// dependent A.
type Graph struct {
	mu    sync.Mutex
	nodes map[string]*node
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// CreateEntry returns the node for url, creating it if needed.
func (g *Graph) CreateEntry(url string) Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entry(url, true).snapshot(url)
}

// GetEntry returns the node for url. With createIfMissing false an unknown
// url yields ok == false.
func (g *Graph) GetEntry(url string, createIfMissing bool) (Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.entry(url, createIfMissing)
	if n == nil {
		return Node{}, false
	}
	return n.snapshot(url), true
}

func (g *Graph) entry(url string, create bool) *node {
	if n, ok := g.nodes[url]; ok {
		return n
	}
	if !create {
		return nil
	}
	n := &node{
		dependencies: make(map[string]struct{}),
		dependents:   make(map[string]struct{}),
	}
	g.nodes[url] = n
	return n
}

// SetEntry replaces the dependency set of url with imports. Edges to
// imports no longer listed are removed in both directions.
func (g *Graph) SetEntry(url string, imports []string, hmrEnabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.entry(url, true)
	outdated := make(map[string]struct{}, len(n.dependencies))
	for dep := range n.dependencies {
		outdated[dep] = struct{}{}
	}
	n.hmrEnabled = hmrEnabled

	for _, imp := range imports {
		g.addRelationship(url, imp)
		delete(outdated, imp)
	}
	for imp := range outdated {
		g.removeRelationship(url, imp)
	}
}

// AddRelationship records that source imports target. Self edges are
// ignored.
func (g *Graph) AddRelationship(source, target string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addRelationship(source, target)
}

func (g *Graph) addRelationship(source, target string) {
	if source == target {
		return
	}
	g.entry(target, true).dependents[source] = struct{}{}
	g.entry(source, true).dependencies[target] = struct{}{}
}

// RemoveRelationship deletes the edge between source and target in both
// directions.
func (g *Graph) RemoveRelationship(source, target string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeRelationship(source, target)
}

func (g *Graph) removeRelationship(source, target string) {
	if source == target {
		return
	}
	if n := g.entry(target, false); n != nil {
		delete(n.dependents, source)
	}
	if n := g.entry(source, false); n != nil {
		delete(n.dependencies, target)
	}
}

// MarkForReplacement sets the replacement flag of an existing node.
func (g *Graph) MarkForReplacement(url string, state bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n := g.entry(url, false); n != nil {
		n.needsReplacement = state
	}
}

// Accept marks url as accepting hot updates.
func (g *Graph) Accept(url string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entry(url, true).hmrAccepted = true
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}
