package match

import (
	"sort"

	"github.com/OpenTraceLab/iprec/pkg/eqn"
	"github.com/OpenTraceLab/iprec/pkg/netgraph"
)

// Options names the properties and cell types with special meaning.
type Options struct {
	// EquationProperty is compared with pin-swap tolerant equation
	// equivalence instead of string equality.
	EquationProperty string
	// IgnoredProperties are never compared.
	IgnoredProperties []string
	// ConstantRefs are ground/supply cell types. They match any vertex of
	// the same type without looking at their connections.
	ConstantRefs []string
}

// DefaultOptions returns the property rules for Xilinx 7-series netlists.
func DefaultOptions() Options {
	return Options{
		EquationProperty:  "CONFIG.EQN",
		IgnoredProperties: []string{"CONFIG.LATCH_OR_FF"},
		ConstantRefs:      []string{netgraph.GroundRef, netgraph.SupplyRef},
	}
}

// Matcher decides structural and parametric equivalence of vertices.
// It is stateless and safe for concurrent use.
type Matcher struct {
	equation  string
	ignored   map[string]bool
	constants map[string]bool
}

// NewMatcher creates a matcher for the given rules.
func NewMatcher(opts Options) *Matcher {
	m := &Matcher{
		equation:  opts.EquationProperty,
		ignored:   make(map[string]bool, len(opts.IgnoredProperties)),
		constants: make(map[string]bool, len(opts.ConstantRefs)),
	}
	for _, p := range opts.IgnoredProperties {
		m.ignored[p] = true
	}
	for _, r := range opts.ConstantRefs {
		m.constants[r] = true
	}
	return m
}

// IsConstant reports whether v is a ground or supply cell.
func (mt *Matcher) IsConstant(v *netgraph.Vertex) bool {
	return mt.constants[v.Ref]
}

// SameCell compares cell type and, for primitives, every property both
// vertices define.
func (mt *Matcher) SameCell(a, b *netgraph.Vertex) bool {
	if a.Ref != b.Ref || a.Kind != b.Kind {
		return false
	}
	if !a.IsPrimitive() {
		return true
	}
	for key, va := range a.Props {
		vb, ok := b.Props[key]
		if !ok || mt.ignored[key] {
			continue
		}
		if key == mt.equation {
			if !eqn.Equivalent(va, vb) {
				return false
			}
			continue
		}
		if va != vb {
			return false
		}
	}
	return true
}

// Match extends m so that design vertex v1 of g1 corresponds to vertex v2
// of g2, recursively pairing the neighbors reachable over non-port edges.
// Boundary I/O cells are never paired and the walk stops at them. On
// success it returns the extended copy; m itself is never modified.
func (mt *Matcher) Match(m *Mapping, g1 *netgraph.Graph, v1 int, g2 *netgraph.Graph, v2 int) (*Mapping, bool) {
	if isBoundary(g1.Vertex(v1)) || isBoundary(g2.Vertex(v2)) {
		return nil, false
	}
	work := m.Clone()
	if !work.Put(v1, v2) {
		return nil, false
	}
	r := &run{mt: mt, g1: g1, g2: g2}
	if !r.vertex(work, v1, v2) {
		return nil, false
	}
	work.trail = nil
	return work, true
}

type sigKey struct {
	in, out string
	signal  netgraph.Signal
}

type run struct {
	mt     *Matcher
	g1, g2 *netgraph.Graph
}

func (r *run) vertex(m *Mapping, v1, v2 int) bool {
	a, b := r.g1.Vertex(v1), r.g2.Vertex(v2)
	if a == nil || b == nil {
		return false
	}
	if r.mt.IsConstant(a) {
		return a.Ref == b.Ref
	}
	if !r.mt.SameCell(a, b) {
		return false
	}
	source := func(e *netgraph.Edge) int { return e.Source }
	target := func(e *netgraph.Edge) int { return e.Target }
	if !r.side(m, group(r.g1, r.g1.InEdges(v1), source), group(r.g2, r.g2.InEdges(v2), source)) {
		return false
	}
	return r.side(m, group(r.g1, r.g1.OutEdges(v1), target), group(r.g2, r.g2.OutEdges(v2), target))
}

// side resolves every neighbor on the g2 side against the candidates of
// the same signature on the g1 side.
func (r *run) side(m *Mapping, g1, g2 map[sigKey][]int) bool {
	keys := make([]sigKey, 0, len(g2))
	for k := range g2 {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].in != keys[j].in {
			return keys[i].in < keys[j].in
		}
		if keys[i].out != keys[j].out {
			return keys[i].out < keys[j].out
		}
		return keys[i].signal < keys[j].signal
	})

	for _, key := range keys {
		remaining := append([]int(nil), g1[key]...)
		for _, s2 := range g2[key] {
			if len(remaining) == 0 {
				return false
			}
			i := r.resolve(m, remaining, s2)
			if i < 0 {
				return false
			}
			remaining = append(remaining[:i], remaining[i+1:]...)
		}
	}
	return true
}

// resolve picks the candidate that corresponds to s2 and returns its
// index, or -1. With several candidates the first that matches wins.
func (r *run) resolve(m *Mapping, candidates []int, s2 int) int {
	if len(candidates) == 1 {
		s1 := candidates[0]
		if cur, ok := m.Get(s1); ok {
			if cur == s2 {
				return 0
			}
			return -1
		}
		if m.HasValue(s2) || !r.try(m, s1, s2) {
			return -1
		}
		return 0
	}
	for i, s1 := range candidates {
		if cur, ok := m.Get(s1); ok {
			if cur == s2 {
				return i
			}
			continue
		}
		if m.HasValue(s2) {
			continue
		}
		if r.try(m, s1, s2) {
			return i
		}
	}
	return -1
}

func (r *run) try(m *Mapping, s1, s2 int) bool {
	mark := m.mark()
	m.Put(s1, s2)
	if r.vertex(m, s1, s2) {
		return true
	}
	m.undo(mark)
	return false
}

// group buckets non-port edges by signature, leaving out edges to
// boundary I/O cells. Neighbor lists keep edge id order.
func group(g *netgraph.Graph, edges []*netgraph.Edge, other func(*netgraph.Edge) int) map[sigKey][]int {
	out := make(map[sigKey][]int)
	for _, e := range edges {
		if e.Signal == netgraph.SignalPort || isBoundary(g.Vertex(other(e))) {
			continue
		}
		k := sigKey{in: e.InPin, out: e.OutPin, signal: e.Signal}
		out[k] = append(out[k], other(e))
	}
	return out
}

func isBoundary(v *netgraph.Vertex) bool {
	return v != nil && v.Color == netgraph.ColorBoundary
}
