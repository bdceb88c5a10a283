package netgraph

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

var atomReplacer = strings.NewReplacer(
	" ", "_", "\t", "_", "\n", "_", "\r", "_",
	"(", "_", ")", "_", `"`, "_", ";", "_",
)

// WriteSexp writes a human-readable s-expression dump of the graph with
// every vertex property. Names and values are flattened into bare atoms,
// so the dump is lossy.
func (g *Graph) WriteSexp(w io.Writer, title string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "(graph (title %s)\n", atom(title))
	fmt.Fprintf(bw, "  (vertices\n")
	for _, v := range g.Vertices() {
		fmt.Fprintf(bw, "    (vertex (id %d) (name %s) (ref %s) (kind %s) (color %s) (props",
			v.ID, atom(v.Name), atom(v.Ref), v.Kind, v.Color)
		keys := make([]string, 0, len(v.Props))
		for k := range v.Props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(bw, " (%s %s)", atom(k), atom(v.Props[k]))
		}
		fmt.Fprintf(bw, "))\n")
	}
	fmt.Fprintf(bw, "  )\n")
	fmt.Fprintf(bw, "  (edges\n")
	for _, e := range g.Edges() {
		fmt.Fprintf(bw, "    (edge (source %d) (target %d) (out %s) (in %s) (signal %s))\n",
			e.Source, e.Target, atom(e.OutPin), atom(e.InPin), e.Signal)
	}
	fmt.Fprintf(bw, "  )\n")
	fmt.Fprintf(bw, ")\n")
	return bw.Flush()
}

func atom(s string) string {
	if s == "" {
		return "_"
	}
	return atomReplacer.Replace(s)
}
