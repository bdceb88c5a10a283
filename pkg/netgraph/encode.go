package netgraph

import (
	"encoding/json"
	"fmt"
	"sort"
)

type vertexJSON struct {
	ID       int               `json:"id"`
	Name     string            `json:"name"`
	Ref      string            `json:"ref"`
	Kind     Kind              `json:"kind"`
	Color    Color             `json:"color"`
	Parent   string            `json:"parent,omitempty"`
	Props    map[string]string `json:"properties,omitempty"`
	CellName string            `json:"cell_name,omitempty"`
}

type edgeJSON struct {
	Source int    `json:"source"`
	Target int    `json:"target"`
	Net    string `json:"net,omitempty"`
	Parent string `json:"parent,omitempty"`
	InPin  string `json:"in_pin"`
	OutPin string `json:"out_pin"`
	Signal Signal `json:"signal"`
}

type graphJSON struct {
	Vertices []vertexJSON `json:"vertices"`
	Edges    []edgeJSON   `json:"edges"`
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "primitive":
		*k = Primitive
	case "hierarchical":
		*k = Hierarchical
	default:
		return fmt.Errorf("netgraph: unknown vertex kind %q", text)
	}
	return nil
}

// MarshalJSON encodes the graph. Vertex ids are preserved; edge ids are
// not.
func (g *Graph) MarshalJSON() ([]byte, error) {
	out := graphJSON{
		Vertices: make([]vertexJSON, 0, g.live),
		Edges:    make([]edgeJSON, 0, len(g.edges)),
	}
	for _, v := range g.Vertices() {
		out.Vertices = append(out.Vertices, vertexJSON{
			ID:       v.ID,
			Name:     v.Name,
			Ref:      v.Ref,
			Kind:     v.Kind,
			Color:    v.Color,
			Parent:   v.Parent,
			Props:    v.Props,
			CellName: v.CellName,
		})
	}
	for _, e := range g.Edges() {
		out.Edges = append(out.Edges, edgeJSON{
			Source: e.Source,
			Target: e.Target,
			Net:    e.Net,
			Parent: e.Parent,
			InPin:  e.InPin,
			OutPin: e.OutPin,
			Signal: e.Signal,
		})
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a graph written by MarshalJSON.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var in graphJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	sort.Slice(in.Vertices, func(i, j int) bool { return in.Vertices[i].ID < in.Vertices[j].ID })

	*g = Graph{}
	for _, v := range in.Vertices {
		if v.ID < len(g.vertices) {
			return fmt.Errorf("netgraph: duplicate vertex id %d", v.ID)
		}
		for len(g.vertices) < v.ID {
			g.vertices = append(g.vertices, nil)
			g.in = append(g.in, nil)
			g.out = append(g.out, nil)
		}
		props := v.Props
		if props == nil {
			props = map[string]string{}
		}
		g.AddVertex(Vertex{
			Name:     v.Name,
			Ref:      v.Ref,
			Kind:     v.Kind,
			Color:    v.Color,
			Parent:   v.Parent,
			Props:    props,
			CellName: v.CellName,
		})
	}
	for _, e := range in.Edges {
		id := g.AddEdge(Edge{
			Source: e.Source,
			Target: e.Target,
			Net:    e.Net,
			Parent: e.Parent,
			InPin:  e.InPin,
			OutPin: e.OutPin,
			Signal: e.Signal,
		})
		if id < 0 {
			return fmt.Errorf("netgraph: edge %d->%d references a missing vertex", e.Source, e.Target)
		}
	}
	return nil
}
