package hmr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_LazyEntries(t *testing.T) {
	g := NewGraph()

	_, ok := g.GetEntry("/build/a.js", false)
	assert.False(t, ok)
	assert.Equal(t, 0, g.Len())

	_, ok = g.GetEntry("/build/a.js", true)
	assert.True(t, ok)
	g.CreateEntry("/build/a.js")
	assert.Equal(t, 1, g.Len())
}

func TestGraph_SymmetricEdges(t *testing.T) {
	g := NewGraph()
	g.AddRelationship("/a.js", "/b.js")

	a, _ := g.GetEntry("/a.js", false)
	b, _ := g.GetEntry("/b.js", false)
	assert.Equal(t, []string{"/b.js"}, a.Dependencies)
	assert.Equal(t, []string{"/a.js"}, b.Dependents)

	g.RemoveRelationship("/a.js", "/b.js")
	a, _ = g.GetEntry("/a.js", false)
	b, _ = g.GetEntry("/b.js", false)
	assert.Empty(t, a.Dependencies)
	assert.Empty(t, b.Dependents)
}

func TestGraph_SelfEdgesIgnored(t *testing.T) {
	g := NewGraph()
	g.AddRelationship("/a.js", "/a.js")
	assert.Equal(t, 0, g.Len())

	g.SetEntry("/a.js", []string{"/a.js", "/b.js"}, false)
	a, _ := g.GetEntry("/a.js", false)
	assert.Equal(t, []string{"/b.js"}, a.Dependencies)
	assert.Empty(t, a.Dependents)
}

func TestGraph_SetEntryPrunesOutdated(t *testing.T) {
	g := NewGraph()
	g.SetEntry("/entry.js", []string{"/a.js", "/b.js"}, true)
	g.SetEntry("/entry.js", []string{"/b.js", "/c.js"}, true)

	entry, _ := g.GetEntry("/entry.js", false)
	assert.Equal(t, []string{"/b.js", "/c.js"}, entry.Dependencies)
	assert.True(t, entry.HMREnabled)

	a, ok := g.GetEntry("/a.js", false)
	require.True(t, ok)
	assert.Empty(t, a.Dependents, "no dangling reverse edge")

	c, _ := g.GetEntry("/c.js", false)
	assert.Equal(t, []string{"/entry.js"}, c.Dependents)
}

func TestGraph_SetEntryIdempotent(t *testing.T) {
	g := NewGraph()
	imports := []string{"/a.js", "/b.js"}
	g.SetEntry("/entry.js", imports, false)
	first := snapshotAll(g, "/entry.js", "/a.js", "/b.js")

	g.SetEntry("/entry.js", imports, false)
	assert.Equal(t, first, snapshotAll(g, "/entry.js", "/a.js", "/b.js"))
}

func snapshotAll(g *Graph, urls ...string) []Node {
	out := make([]Node, 0, len(urls))
	for _, u := range urls {
		n, _ := g.GetEntry(u, false)
		out = append(out, n)
	}
	return out
}

func TestGraph_FlagsAndSnapshotsAreCopies(t *testing.T) {
	g := NewGraph()
	g.SetEntry("/a.js", []string{"/b.js"}, false)
	g.MarkForReplacement("/a.js", true)
	g.MarkForReplacement("/missing.js", true)
	g.Accept("/b.js")

	a, _ := g.GetEntry("/a.js", false)
	assert.True(t, a.NeedsReplacement)
	_, ok := g.GetEntry("/missing.js", false)
	assert.False(t, ok)

	b, _ := g.GetEntry("/b.js", false)
	assert.True(t, b.HMRAccepted)

	a.Dependencies[0] = "/mutated.js"
	again, _ := g.GetEntry("/a.js", false)
	assert.Equal(t, []string{"/b.js"}, again.Dependencies)
}
