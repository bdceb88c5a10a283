package library

import (
	"strings"

	"github.com/OpenTraceLab/iprec/pkg/match"
	"github.com/OpenTraceLab/iprec/pkg/netgraph"
)

// designIndex groups a design's vertices and edges by hierarchical parent
// so that every instance can be extracted without rescanning the design.
type designIndex struct {
	g        *netgraph.Graph
	children map[string][]int
	edges    map[string][]*netgraph.Edge
}

func indexDesign(g *netgraph.Graph) *designIndex {
	idx := &designIndex{
		g:        g,
		children: make(map[string][]int),
		edges:    make(map[string][]*netgraph.Edge),
	}
	for _, v := range g.Vertices() {
		idx.children[v.Parent] = append(idx.children[v.Parent], v.ID)
	}
	for _, e := range g.Edges() {
		idx.edges[e.Parent] = append(idx.edges[e.Parent], e)
	}
	return idx
}

// Extract returns the subgraph of hierarchical vertex v: v itself as the
// root, every vertex whose parent is v, and the edges of nets owned by v.
// Vertices are renamed to their last path component. The second result
// counts edges dropped because an endpoint lies outside the subgraph.
func (idx *designIndex) Extract(v int) (*netgraph.Graph, int) {
	root := idx.g.Vertex(v)
	sub := netgraph.New()
	short := root.ShortName()

	ids := make(map[int]int)
	rv := *root
	rv.Name, rv.Parent = short, ""
	ids[v] = sub.AddVertex(rv)
	for _, c := range idx.children[root.Name] {
		if c == v {
			continue
		}
		cv := *idx.g.Vertex(c)
		cv.Name, cv.Parent = cv.ShortName(), short
		ids[c] = sub.AddVertex(cv)
	}

	dropped := 0
	for _, e := range idx.edges[root.Name] {
		src, okSrc := ids[e.Source]
		dst, okDst := ids[e.Target]
		if !okSrc || !okDst {
			dropped++
			continue
		}
		ce := *e
		ce.Source, ce.Target = src, dst
		sub.AddEdge(ce)
	}
	return sub, dropped
}

// harvestProperties collects the CELL properties of every hierarchical
// vertex in the design, keyed by upper-cased name. Later vertices win.
func harvestProperties(g *netgraph.Graph) map[string]string {
	out := make(map[string]string)
	for _, v := range g.Vertices() {
		if v.IsPrimitive() {
			continue
		}
		for k, val := range v.Props {
			out[strings.ToUpper(k)] = val
		}
	}
	return out
}

// instanceProperties overlays the instance's own properties on the
// design-wide set.
func instanceProperties(designWide map[string]string, inst *netgraph.Vertex) map[string]string {
	out := make(map[string]string, len(designWide)+len(inst.Props))
	for k, v := range designWide {
		out[k] = v
	}
	for k, v := range inst.Props {
		out[strings.ToUpper(k)] = v
	}
	return out
}

type edgeKey struct {
	src, dst      int
	inPin, outPin string
}

// sameStructure reports exact structural equality of two template graphs:
// same vertices by name with equivalent cells, and the same multiset of
// edges under that name correspondence.
func sameStructure(mt *match.Matcher, a, b *netgraph.Graph) bool {
	if a.Len() != b.Len() {
		return false
	}
	byName := make(map[string]int, b.Len())
	for _, v := range b.Vertices() {
		if v.ID != 0 {
			byName[v.Name] = v.ID
		}
	}
	corr := map[int]int{0: 0}
	for _, v := range a.Vertices() {
		if v.ID == 0 {
			continue
		}
		id, ok := byName[v.Name]
		if !ok || !mt.SameCell(v, b.Vertex(id)) {
			return false
		}
		corr[v.ID] = id
	}

	if a.EdgeCount() != b.EdgeCount() {
		return false
	}
	counts := make(map[edgeKey]int)
	for _, e := range a.Edges() {
		counts[edgeKey{corr[e.Source], corr[e.Target], e.InPin, e.OutPin}]++
	}
	for _, e := range b.Edges() {
		k := edgeKey{e.Source, e.Target, e.InPin, e.OutPin}
		if counts[k] == 0 {
			return false
		}
		counts[k]--
	}
	return true
}
