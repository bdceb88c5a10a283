package netgraph

import (
	"sort"
	"strings"
)

// Kind separates atomic cells from hierarchical ones.
type Kind int

const (
	Primitive Kind = iota
	Hierarchical
)

func (k Kind) String() string {
	if k == Hierarchical {
		return "hierarchical"
	}
	return "primitive"
}

// Color is the classification tag used while searching. It starts out
// derived from Kind and the cell type, and becomes ColorConsumed when a
// vertex is replaced by a splice.
type Color string

const (
	ColorPrimitive    Color = "primitive"
	ColorHierarchical Color = "hierarchical"
	ColorBoundary     Color = "boundary_io"
	ColorConsumed     Color = "consumed"
)

// Signal classifies a connection.
type Signal string

const (
	SignalConst0    Signal = "const0"
	SignalConst1    Signal = "const1"
	SignalPrimitive Signal = "primitive"
	SignalPort      Signal = "port"
)

// ConstRefs names the cell types that drive constant ground and supply
// signals.
type ConstRefs struct {
	Ground string
	Supply string
}

// DefaultConstRefs returns the Xilinx ground and supply cell types.
func DefaultConstRefs() ConstRefs {
	return ConstRefs{Ground: GroundRef, Supply: SupplyRef}
}

func (c ConstRefs) orDefault() ConstRefs {
	if c.Ground == "" {
		c.Ground = GroundRef
	}
	if c.Supply == "" {
		c.Supply = SupplyRef
	}
	return c
}

// signal returns the signal of a leaf-level edge driven by a cell of type
// ref.
func (c ConstRefs) signal(ref string) Signal {
	switch ref {
	case c.Ground:
		return SignalConst0
	case c.Supply:
		return SignalConst1
	}
	return SignalPrimitive
}

// Vertex is one cell instance.
//
// Props holds BEL properties for primitives and CELL properties for
// hierarchical cells. Props maps are shared between clones and must be
// treated as read-only once the vertex is added to a graph.
type Vertex struct {
	ID       int
	Name     string
	Ref      string
	Kind     Kind
	Color    Color
	Parent   string
	Props    map[string]string
	CellName string
}

// IsPrimitive reports whether the vertex is an atomic cell.
func (v *Vertex) IsPrimitive() bool {
	return v.Kind == Primitive
}

// ShortName returns the last component of the hierarchical name.
func (v *Vertex) ShortName() string {
	return LastComponent(v.Name)
}

// Edge is one driver-to-receiver connection of a net.
type Edge struct {
	ID     int
	Source int
	Target int
	Net    string
	Parent string
	InPin  string
	OutPin string
	Signal Signal
}

// Graph is an arena-backed directed multigraph. Vertex and edge ids are
// stable slice indices; removed edges leave nil slots behind. Vertex 0 is
// the root of the graph.
type Graph struct {
	vertices []*Vertex
	edges    []*Edge
	in       [][]int
	out      [][]int
	live     int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{}
}

// AddVertex appends v and returns its id. The ID field of v is ignored.
func (g *Graph) AddVertex(v Vertex) int {
	id := len(g.vertices)
	v.ID = id
	g.vertices = append(g.vertices, &v)
	g.in = append(g.in, nil)
	g.out = append(g.out, nil)
	g.live++
	return id
}

// NextID returns the id the next AddVertex call will assign.
func (g *Graph) NextID() int {
	return len(g.vertices)
}

// Vertex returns the vertex with the given id, or nil.
func (g *Graph) Vertex(id int) *Vertex {
	if id < 0 || id >= len(g.vertices) {
		return nil
	}
	return g.vertices[id]
}

// Len returns the number of vertices.
func (g *Graph) Len() int {
	return g.live
}

// Vertices returns all vertices in id order.
func (g *Graph) Vertices() []*Vertex {
	out := make([]*Vertex, 0, g.live)
	for _, v := range g.vertices {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// AddEdge appends e between two existing vertices and returns its id.
// It returns -1 when either endpoint does not exist.
func (g *Graph) AddEdge(e Edge) int {
	if g.Vertex(e.Source) == nil || g.Vertex(e.Target) == nil {
		return -1
	}
	id := len(g.edges)
	e.ID = id
	g.edges = append(g.edges, &e)
	g.out[e.Source] = append(g.out[e.Source], id)
	g.in[e.Target] = append(g.in[e.Target], id)
	return id
}

// Edge returns the edge with the given id, or nil if it was removed.
func (g *Graph) Edge(id int) *Edge {
	if id < 0 || id >= len(g.edges) {
		return nil
	}
	return g.edges[id]
}

// Edges returns all live edges in id order.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// EdgeCount returns the number of live edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, e := range g.edges {
		if e != nil {
			n++
		}
	}
	return n
}

// RemoveEdge deletes an edge. Removing an unknown edge is a no-op.
func (g *Graph) RemoveEdge(id int) {
	e := g.Edge(id)
	if e == nil {
		return
	}
	g.out[e.Source] = without(g.out[e.Source], id)
	g.in[e.Target] = without(g.in[e.Target], id)
	g.edges[id] = nil
}

// InEdges returns the edges ending at v in id order.
func (g *Graph) InEdges(v int) []*Edge {
	if g.Vertex(v) == nil {
		return nil
	}
	return g.collect(g.in[v])
}

// OutEdges returns the edges leaving v in id order.
func (g *Graph) OutEdges(v int) []*Edge {
	if g.Vertex(v) == nil {
		return nil
	}
	return g.collect(g.out[v])
}

// OutDegree returns the number of edges leaving v.
func (g *Graph) OutDegree(v int) int {
	if g.Vertex(v) == nil {
		return 0
	}
	return len(g.out[v])
}

// Neighbors returns the sorted ids of all vertices adjacent to v in either
// direction.
func (g *Graph) Neighbors(v int) []int {
	if g.Vertex(v) == nil {
		return nil
	}
	seen := make(map[int]struct{})
	for _, id := range g.in[v] {
		seen[g.edges[id].Source] = struct{}{}
	}
	for _, id := range g.out[v] {
		seen[g.edges[id].Target] = struct{}{}
	}
	delete(seen, v)
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Consume marks v as consumed and drops all of its edges.
func (g *Graph) Consume(v int) {
	vx := g.Vertex(v)
	if vx == nil {
		return
	}
	vx.Color = ColorConsumed
	for _, id := range append(append([]int(nil), g.in[v]...), g.out[v]...) {
		g.RemoveEdge(id)
	}
}

// SwapVertices exchanges the ids of two vertices, rewriting every edge
// that references either of them.
func (g *Graph) SwapVertices(a, b int) {
	if a == b || g.Vertex(a) == nil || g.Vertex(b) == nil {
		return
	}
	swap := func(x int) int {
		switch x {
		case a:
			return b
		case b:
			return a
		}
		return x
	}
	touched := make(map[int]struct{})
	for _, v := range []int{a, b} {
		for _, id := range g.in[v] {
			touched[id] = struct{}{}
		}
		for _, id := range g.out[v] {
			touched[id] = struct{}{}
		}
	}
	for id := range touched {
		e := g.edges[id]
		e.Source = swap(e.Source)
		e.Target = swap(e.Target)
	}
	g.vertices[a], g.vertices[b] = g.vertices[b], g.vertices[a]
	g.vertices[a].ID = a
	g.vertices[b].ID = b
	g.in[a], g.in[b] = g.in[b], g.in[a]
	g.out[a], g.out[b] = g.out[b], g.out[a]
}

// Clone returns a deep copy of the graph structure. Props maps are shared.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		vertices: make([]*Vertex, len(g.vertices)),
		edges:    make([]*Edge, len(g.edges)),
		in:       make([][]int, len(g.in)),
		out:      make([][]int, len(g.out)),
		live:     g.live,
	}
	for i, v := range g.vertices {
		if v != nil {
			cp := *v
			c.vertices[i] = &cp
		}
	}
	for i, e := range g.edges {
		if e != nil {
			cp := *e
			c.edges[i] = &cp
		}
	}
	for i := range g.in {
		c.in[i] = append([]int(nil), g.in[i]...)
		c.out[i] = append([]int(nil), g.out[i]...)
	}
	return c
}

// CountColor returns how many vertices carry the given color.
func (g *Graph) CountColor(color Color) int {
	n := 0
	for _, v := range g.vertices {
		if v != nil && v.Color == color {
			n++
		}
	}
	return n
}

// LabelConstSources sets the signal of every edge leaving a ground or
// supply cell to const0 or const1.
func (g *Graph) LabelConstSources(groundRef, supplyRef string) {
	for _, e := range g.edges {
		if e == nil {
			continue
		}
		switch g.vertices[e.Source].Ref {
		case groundRef:
			e.Signal = SignalConst0
		case supplyRef:
			e.Signal = SignalConst1
		}
	}
}

// LastComponent returns the part of a '/'-separated path after the last
// separator.
func LastComponent(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// SplitPin splits a pin path such as "u0/lut/O" into its cell path and pin
// name.
func SplitPin(path string) (cell, pin string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

func (g *Graph) collect(ids []int) []*Edge {
	out := make([]*Edge, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.edges[id])
	}
	return out
}

func without(ids []int, id int) []int {
	for i, x := range ids {
		if x == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
