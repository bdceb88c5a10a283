package search

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/OpenTraceLab/iprec/pkg/match"
	"github.com/OpenTraceLab/iprec/pkg/netgraph"
)

// Result is the best state found by a search.
type Result struct {
	Found     bool
	Ref       string // template that seeded the result
	Version   int
	SessionID string
	Seeds     int
	Skeleton  *netgraph.Graph
	Mapping   *match.Mapping
}

// Size is the number of mapped design vertices.
func (r *Result) Size() int {
	if r == nil || r.Mapping == nil {
		return 0
	}
	return r.Mapping.Len()
}

// Level is one level of a recovered hierarchy: the primitives placed
// directly in it and its named sub-levels.
type Level struct {
	Leaves   []string
	Children map[string]*Level
}

func newLevel() *Level {
	return &Level{Children: make(map[string]*Level)}
}

func (l *Level) child(name string) *Level {
	c, ok := l.Children[name]
	if !ok {
		c = newLevel()
		l.Children[name] = c
	}
	return c
}

// MarshalJSON writes the level as an object with a sorted "LEAF" list and
// one key per sub-level.
func (l *Level) MarshalJSON() ([]byte, error) {
	leaves := append([]string{}, l.Leaves...)
	sort.Strings(leaves)
	out := make(map[string]any, len(l.Children)+1)
	for name, c := range l.Children {
		out[name] = c
	}
	out["LEAF"] = leaves
	return json.Marshal(out)
}

// Hierarchy is the module tree recovered from a result skeleton.
type Hierarchy struct {
	Root string
	Tree *Level
}

// MarshalJSON writes the tree under the root's name.
func (h *Hierarchy) MarshalJSON() ([]byte, error) {
	if h.Tree == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]*Level{h.Root: h.Tree})
}

// Hierarchy rebuilds the module tree of the result skeleton from vertex
// names split on '/'. Consumed vertices and I/O buffers are left out, and
// unresolved hierarchical vertices appear as empty levels.
func (r *Result) Hierarchy() *Hierarchy {
	if !r.Found || r.Skeleton == nil || r.Skeleton.Vertex(0) == nil {
		return &Hierarchy{}
	}
	h := &Hierarchy{Root: r.Skeleton.Vertex(0).Name, Tree: newLevel()}
	for _, v := range r.Skeleton.Vertices() {
		if v.ID == 0 || v.Color == netgraph.ColorConsumed || v.Color == netgraph.ColorBoundary {
			continue
		}
		parts := strings.Split(v.Name, "/")
		level := h.Tree
		for _, p := range parts[:len(parts)-1] {
			level = level.child(p)
		}
		name := parts[len(parts)-1]
		if v.IsPrimitive() {
			level.Leaves = append(level.Leaves, name)
		} else {
			level.child(name)
		}
	}
	return h
}

// Mismatch is a mapped pair whose cell names disagree.
type Mismatch struct {
	Design   string
	Skeleton string
}

// Coverage summarizes how much of a design the result explains.
type Coverage struct {
	Errors     int
	Correct    int
	Primitives int
	Percent    float64
	Mismatches []Mismatch
}

// Coverage scores the result against design. Every mapped primitive cell
// counts towards Correct; pairs whose last name components differ are
// also counted as errors. The percentage is taken over the design's
// primitive cells and never exceeds 100.
func (r *Result) Coverage(design *netgraph.Graph) Coverage {
	c := Coverage{Primitives: design.CountColor(netgraph.ColorPrimitive)}
	if r.Size() == 0 {
		return c
	}
	for _, d := range r.Mapping.Keys() {
		dv := design.Vertex(d)
		if dv != nil && dv.Color != netgraph.ColorPrimitive {
			continue
		}
		c.Correct++
		s, _ := r.Mapping.Get(d)
		sv := r.Skeleton.Vertex(s)
		if dv == nil || sv == nil {
			c.Errors++
			continue
		}
		name := dv.CellName
		if name == "" {
			name = dv.Name
		}
		if netgraph.LastComponent(name) != sv.ShortName() {
			c.Errors++
			c.Mismatches = append(c.Mismatches, Mismatch{Design: name, Skeleton: sv.Name})
		}
	}
	if c.Primitives > 0 {
		c.Percent = min(100, 100*float64(c.Correct)/float64(c.Primitives))
	}
	return c
}

// WriteReport prints the coverage summary, listing mismatches when
// verbose is set.
func WriteReport(w io.Writer, c Coverage, verbose bool) error {
	if verbose {
		for _, m := range c.Mismatches {
			if _, err := fmt.Fprintf(w, "  mismatch: %s -> %s\n", m.Design, m.Skeleton); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintf(w, "Total errors:     %d\nTotal correct:    %d\nTotal primitives: %d\nCoverage:         %.0f%%\n",
		c.Errors, c.Correct, c.Primitives, c.Percent)
	return err
}
