package library

import (
	"sort"

	"github.com/OpenTraceLab/iprec/pkg/netgraph"
)

// components groups vertex ids into connected components using a
// union-find structure.
type components struct {
	parent map[int]int
	rank   map[int]int
	ids    []int
}

// newComponents starts with every id in its own component.
func newComponents(ids []int) *components {
	c := &components{
		parent: make(map[int]int, len(ids)),
		rank:   make(map[int]int, len(ids)),
		ids:    append([]int(nil), ids...),
	}
	for _, id := range ids {
		c.parent[id] = id
	}
	return c
}

// Connect merges the components of a and b.
func (c *components) Connect(a, b int) {
	rootA := c.Find(a)
	rootB := c.Find(b)
	if rootA == rootB {
		return
	}

	// Union by rank
	if c.rank[rootA] < c.rank[rootB] {
		c.parent[rootA] = rootB
	} else if c.rank[rootA] > c.rank[rootB] {
		c.parent[rootB] = rootA
	} else {
		c.parent[rootB] = rootA
		c.rank[rootA]++
	}
}

// Find returns the representative of id's component, compressing the path
// on the way.
func (c *components) Find(id int) int {
	root := id
	for c.parent[root] != root {
		root = c.parent[root]
	}
	for id != root {
		next := c.parent[id]
		c.parent[id] = root
		id = next
	}
	return root
}

// Finalize returns the components, each sorted ascending, largest first.
// Equal sizes are ordered by their smallest id.
func (c *components) Finalize() [][]int {
	groups := make(map[int][]int)
	for _, id := range c.ids {
		root := c.Find(id)
		groups[root] = append(groups[root], id)
	}
	out := make([][]int, 0, len(groups))
	for _, ids := range groups {
		sort.Ints(ids)
		out = append(out, ids)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i][0] < out[j][0]
	})
	return out
}

// Spans computes the connected components of g after removing the root,
// boundary I/O cells and every constant source. With primitiveOnly,
// hierarchical vertices are removed as well.
func Spans(g *netgraph.Graph, primitiveOnly bool, isConstant func(*netgraph.Vertex) bool) [][]int {
	keep := make(map[int]bool)
	var ids []int
	for _, v := range g.Vertices() {
		if v.ID == 0 || v.Color == netgraph.ColorBoundary || isConstant(v) {
			continue
		}
		if primitiveOnly && !v.IsPrimitive() {
			continue
		}
		keep[v.ID] = true
		ids = append(ids, v.ID)
	}
	c := newComponents(ids)
	for _, e := range g.Edges() {
		if keep[e.Source] && keep[e.Target] {
			c.Connect(e.Source, e.Target)
		}
	}
	return c.Finalize()
}
