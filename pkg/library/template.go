package library

import (
	"encoding/json"
	"sort"

	"github.com/OpenTraceLab/iprec/pkg/netgraph"
)

// Template is one version of a learned hierarchical cell.
type Template struct {
	Ref     string
	Version int
	Graph   *netgraph.Graph
	// PrimitiveSpan and Span are the connected components of the template
	// without and with hierarchical vertices, largest first.
	PrimitiveSpan  [][]int
	Span           [][]int
	PrimitiveCount int
	// UserProperties holds every distinct value seen per configurable
	// property across the instances merged into this template.
	UserProperties map[string][]string
}

type templateJSON struct {
	Ref            string              `json:"ref"`
	Version        int                 `json:"version"`
	Graph          *netgraph.Graph     `json:"graph"`
	PrimitiveSpan  [][]int             `json:"primitive_span"`
	Span           [][]int             `json:"span"`
	PrimitiveCount int                 `json:"primitive_count"`
	UserProperties map[string][]string `json:"user_properties"`
}

// NewTemplate wraps an extracted subgraph and derives its spans.
func NewTemplate(ref string, version int, g *netgraph.Graph, isConstant func(*netgraph.Vertex) bool, props map[string]string) *Template {
	t := &Template{
		Ref:            ref,
		Version:        version,
		Graph:          g,
		PrimitiveSpan:  Spans(g, true, isConstant),
		Span:           Spans(g, false, isConstant),
		PrimitiveCount: g.CountColor(netgraph.ColorPrimitive),
		UserProperties: make(map[string][]string),
	}
	t.Widen(props)
	return t
}

// Widen adds the property values of another instance and reports whether
// anything changed.
func (t *Template) Widen(props map[string]string) bool {
	changed := false
	for key, value := range props {
		values := t.UserProperties[key]
		i := sort.SearchStrings(values, value)
		if i < len(values) && values[i] == value {
			continue
		}
		values = append(values, "")
		copy(values[i+1:], values[i:])
		values[i] = value
		t.UserProperties[key] = values
		changed = true
	}
	return changed
}

// Contains returns the refs of the hierarchical cells instantiated inside
// the template, sorted and without duplicates.
func (t *Template) Contains() []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range t.Graph.Vertices() {
		if v.ID == 0 || v.IsPrimitive() || seen[v.Ref] {
			continue
		}
		seen[v.Ref] = true
		out = append(out, v.Ref)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON implements json.Marshaler.
func (t *Template) MarshalJSON() ([]byte, error) {
	return json.Marshal(templateJSON{
		Ref:            t.Ref,
		Version:        t.Version,
		Graph:          t.Graph,
		PrimitiveSpan:  t.PrimitiveSpan,
		Span:           t.Span,
		PrimitiveCount: t.PrimitiveCount,
		UserProperties: t.UserProperties,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Template) UnmarshalJSON(data []byte) error {
	var in templateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Graph == nil {
		in.Graph = netgraph.New()
	}
	if in.UserProperties == nil {
		in.UserProperties = make(map[string][]string)
	}
	*t = Template{
		Ref:            in.Ref,
		Version:        in.Version,
		Graph:          in.Graph,
		PrimitiveSpan:  in.PrimitiveSpan,
		Span:           in.Span,
		PrimitiveCount: in.PrimitiveCount,
		UserProperties: in.UserProperties,
	}
	return nil
}
