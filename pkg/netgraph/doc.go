// Package netgraph provides the attributed multigraph shared by the library
// builder and the search engine.
//
// # Overview
//
// A Graph stores cell instances as vertices and driver-to-receiver net
// connections as edges. Both live in slices addressed by stable integer
// ids, so a vertex id stays valid while the graph is rewritten. Vertex 0 is
// the root: the top cell of a design, or the boundary cell of a template.
//
// Rewrites are planned as a Changeset against an unmodified graph and only
// applied once the plan validated:
//
//	cs, err := netgraph.PlanDescend(skeleton, v, template, netgraph.DefaultConstRefs())
//	if errors.Is(err, netgraph.ErrPortMismatch) {
//		// candidate rejected, skeleton untouched
//	}
//	work := skeleton.Clone()
//	added, err := work.Apply(cs)
//
// # Import
//
// Import reads the JSON interchange record (CELLS and NETS) produced by
// the netlist extraction scripts. Edges are classified as primitive when
// driver and receiver both sit at the leaf level, as port when the net
// crosses a hierarchy boundary, and as const0/const1 for ground and supply
// drivers. With ImportOptions.Flat the record is read as a flattened
// netlist, where only LEAF.0 is populated and every edge is primitive.
package netgraph
