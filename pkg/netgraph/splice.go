package netgraph

import (
	"errors"
	"fmt"
)

// ErrPortMismatch is returned by the splice planners when a port of the
// inserted graph's boundary cell has no matching pin on the vertex it
// replaces.
var ErrPortMismatch = errors.New("netgraph: boundary port has no matching pin")

// Changeset is a planned, not yet applied, graph rewrite. Vertices are
// appended starting at Base; edge endpoints use final ids.
type Changeset struct {
	Base     int
	Vertices []Vertex
	Edges    []Edge
	Consume  []int
	Rename   map[int]string
	// SwapRoot, when non-zero, is exchanged with vertex 0 after everything
	// else has been applied.
	SwapRoot int
}

// Apply performs the changeset on g and returns the ids of the appended
// vertices, after any root swap. The changeset must have been planned
// against a graph in the same state.
func (g *Graph) Apply(cs *Changeset) ([]int, error) {
	if g.NextID() != cs.Base {
		return nil, fmt.Errorf("netgraph: changeset planned at %d, graph at %d", cs.Base, g.NextID())
	}
	added := make([]int, 0, len(cs.Vertices))
	for _, v := range cs.Vertices {
		added = append(added, g.AddVertex(v))
	}
	for id, name := range cs.Rename {
		if v := g.Vertex(id); v != nil {
			v.Name = name
		}
	}
	for _, e := range cs.Edges {
		if g.AddEdge(e) < 0 {
			return nil, fmt.Errorf("netgraph: changeset edge %d->%d has a missing endpoint", e.Source, e.Target)
		}
	}
	for _, v := range cs.Consume {
		g.Consume(v)
	}
	if cs.SwapRoot != 0 {
		g.SwapVertices(0, cs.SwapRoot)
		for i, id := range added {
			switch id {
			case cs.SwapRoot:
				added[i] = 0
			case 0:
				added[i] = cs.SwapRoot
			}
		}
	}
	return added, nil
}

// PlanDescend plans replacing the hierarchical vertex v of host with the
// contents of sub, whose vertex 0 is the boundary cell of the inserted
// structure. Inserted vertices are named below v's name. Rewired edges
// leaving a cell of one of consts' types carry a constant signal.
func PlanDescend(host *Graph, v int, sub *Graph, consts ConstRefs) (*Changeset, error) {
	outer := host.Vertex(v)
	if outer == nil {
		return nil, fmt.Errorf("netgraph: descend target %d does not exist", v)
	}
	if sub.Vertex(0) == nil {
		return nil, fmt.Errorf("netgraph: inserted graph has no root")
	}
	cs := &Changeset{Base: host.NextID()}
	tr := cs.appendAll(sub, func(sv *Vertex) (string, string) {
		name := outer.Name + "/" + sv.Name
		if sv.ID == 0 {
			return name, outer.Parent
		}
		parent, _ := SplitPin(name)
		return name, parent
	})

	lookup := cs.lookup(host)
	for _, e := range sub.Edges() {
		if e.Source == 0 || e.Target == 0 {
			continue
		}
		cs.Edges = append(cs.Edges, translated(e, tr))
	}

	err := cs.rewire(lookup, consts.orDefault(),
		translatedAll(sub.OutEdges(0), tr), translatedAll(sub.InEdges(0), tr),
		copied(host.InEdges(v)), copied(host.OutEdges(v)))
	if err != nil {
		return nil, err
	}
	cs.Consume = []int{v, tr[0]}
	return cs, nil
}

// PlanAscend plans wrapping host into the larger graph sub, where inner is
// the vertex of sub that host's root instantiates. The root of sub becomes
// vertex 0 and existing host vertices are renamed below inner's name.
func PlanAscend(host *Graph, sub *Graph, inner int, consts ConstRefs) (*Changeset, error) {
	instance := sub.Vertex(inner)
	if instance == nil || inner == 0 {
		return nil, fmt.Errorf("netgraph: ascend position %d is not an inner vertex", inner)
	}
	if host.Vertex(0) == nil || sub.Vertex(0) == nil {
		return nil, fmt.Errorf("netgraph: ascend needs rooted graphs")
	}
	cs := &Changeset{Base: host.NextID(), Rename: make(map[int]string)}
	tr := cs.appendAll(sub, func(sv *Vertex) (string, string) {
		return sv.Name, sv.Parent
	})
	for _, hv := range host.Vertices() {
		if hv.ID == 0 {
			continue
		}
		cs.Rename[hv.ID] = instance.Name + "/" + hv.Name
	}

	lookup := cs.lookup(host)
	for _, e := range sub.Edges() {
		if e.Source == inner || e.Target == inner {
			continue
		}
		cs.Edges = append(cs.Edges, translated(e, tr))
	}

	err := cs.rewire(lookup, consts.orDefault(),
		copied(host.OutEdges(0)), copied(host.InEdges(0)),
		translatedAll(sub.InEdges(inner), tr), translatedAll(sub.OutEdges(inner), tr))
	if err != nil {
		return nil, err
	}
	cs.Consume = []int{0, tr[inner]}
	cs.SwapRoot = tr[0]
	return cs, nil
}

// rewire connects the ports of a boundary cell (portOut: cell -> inside,
// portIn: inside -> cell) to the neighbors of the instance it stands for
// (pinIn: neighbor -> instance, pinOut: instance -> neighbor).
func (cs *Changeset) rewire(lookup func(int) *Vertex, consts ConstRefs, portOut, portIn, pinIn, pinOut []Edge) error {
	for _, port := range portOut {
		matched := false
		for _, pin := range pinIn {
			if pin.InPin != port.OutPin {
				continue
			}
			matched = true
			cs.Edges = append(cs.Edges, Edge{
				Source: pin.Source,
				Target: port.Target,
				Net:    port.Net,
				Parent: port.Parent,
				InPin:  port.InPin,
				OutPin: pin.OutPin,
				Signal: signalBetween(lookup(pin.Source), lookup(port.Target), consts),
			})
		}
		if !matched {
			return fmt.Errorf("%w: input %s", ErrPortMismatch, port.OutPin)
		}
	}
	for _, port := range portIn {
		matched := false
		for _, pin := range pinOut {
			if pin.OutPin != port.InPin {
				continue
			}
			matched = true
			cs.Edges = append(cs.Edges, Edge{
				Source: port.Source,
				Target: pin.Target,
				Net:    pin.Net,
				Parent: pin.Parent,
				InPin:  pin.InPin,
				OutPin: port.OutPin,
				Signal: signalBetween(lookup(port.Source), lookup(pin.Target), consts),
			})
		}
		if !matched {
			return fmt.Errorf("%w: output %s", ErrPortMismatch, port.InPin)
		}
	}
	return nil
}

func (cs *Changeset) appendAll(sub *Graph, name func(*Vertex) (string, string)) map[int]int {
	tr := make(map[int]int, sub.Len())
	for _, sv := range sub.Vertices() {
		v := *sv
		v.Name, v.Parent = name(sv)
		tr[sv.ID] = cs.Base + len(cs.Vertices)
		cs.Vertices = append(cs.Vertices, v)
	}
	return tr
}

func (cs *Changeset) lookup(host *Graph) func(int) *Vertex {
	return func(id int) *Vertex {
		if id >= cs.Base && id-cs.Base < len(cs.Vertices) {
			return &cs.Vertices[id-cs.Base]
		}
		return host.Vertex(id)
	}
}

func signalBetween(src, dst *Vertex, consts ConstRefs) Signal {
	if src == nil || dst == nil {
		return SignalPort
	}
	if src.Color == ColorHierarchical || dst.Color == ColorHierarchical {
		return SignalPort
	}
	return consts.signal(src.Ref)
}

func translated(e *Edge, tr map[int]int) Edge {
	out := *e
	out.Source = tr[e.Source]
	out.Target = tr[e.Target]
	return out
}

func translatedAll(edges []*Edge, tr map[int]int) []Edge {
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		out = append(out, translated(e, tr))
	}
	return out
}

func copied(edges []*Edge) []Edge {
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		out = append(out, *e)
	}
	return out
}
