package replace

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/OpenTraceLab/iprec/pkg/netgraph"
)

// task names one template version to splice at one skeleton vertex. Tasks
// are plain values so they can be handed to workers without sharing.
type task struct {
	vertex  int
	ref     string
	version int
}

// candidate is the outcome of evaluating a task.
type candidate struct {
	task
	ok         bool
	state      State
	added      []int
	primitives int
}

// decision is a vertex where several template versions splice
// successfully.
type decision struct {
	vertex     int
	ref        string
	candidates []candidate
}

// average is the mean primitive count of the passing versions.
func (d *decision) average() float64 {
	total := 0
	for _, c := range d.candidates {
		total += c.primitives
	}
	return float64(total) / float64(len(d.candidates))
}

// best returns the candidate with the largest mapping, the first one on
// ties.
func (d *decision) best() candidate {
	b := d.candidates[0]
	for _, c := range d.candidates[1:] {
		if c.state.Size() > b.state.Size() {
			b = c
		}
	}
	return b
}

// explore picks the decision whose candidates carry the most primitives
// on average, the first one on ties.
func explore(decisions []*decision) *decision {
	var out *decision
	for _, d := range decisions {
		if out == nil || d.average() > out.average() {
			out = d
		}
	}
	return out
}

// fallback picks the single best candidate over all decisions.
func fallback(decisions []*decision) (candidate, bool) {
	var (
		out   candidate
		found bool
	)
	for _, d := range decisions {
		c := d.best()
		if !found || c.state.Size() > out.state.Size() {
			out, found = c, true
		}
	}
	return out, found
}

// descend expands the hierarchical vertices next to the mapped region.
// Vertices with exactly one fitting template version are expanded right
// away and the pass repeats around the new vertices; vertices with
// several fitting versions are returned as decisions from the final pass.
func (s *Session) descend(ctx context.Context, st State) (State, []*decision, error) {
	ctx, span := tracer.Start(ctx, "replace.descend")
	defer span.End()
	start := time.Now()
	defer func() { passDuration.WithLabelValues("descend").Observe(time.Since(start).Seconds()) }()

	var (
		limit     []int
		decisions []*decision
		applied   int
	)
	for {
		decisions = decisions[:0]
		progressed := false
		for _, v := range s.frontier(st, limit) {
			if err := ctx.Err(); err != nil {
				return st, nil, err
			}
			vx := st.Skeleton.Vertex(v)
			if vx == nil || vx.Color != netgraph.ColorHierarchical {
				continue
			}
			tasks := s.pending(vx)
			if len(tasks) == 0 {
				continue
			}
			results, err := s.evaluate(ctx, st, tasks)
			if err != nil {
				return st, nil, err
			}

			var passing []candidate
			for _, c := range results {
				if c.ok {
					passing = append(passing, c)
					candidatesTotal.WithLabelValues("descend", "pass").Inc()
					continue
				}
				candidatesTotal.WithLabelValues("descend", "fail").Inc()
				s.failed[failureKey{vx.ID, vx.Name, c.ref, c.version}] = true
			}

			switch len(passing) {
			case 0:
			case 1:
				c := passing[0]
				s.logger.Debug("descend", "vertex", vx.Name, "ref", c.ref, "version", c.version, "mapped", c.state.Size())
				st = c.state
				limit = append(limit, c.added...)
				progressed = true
				applied++
			default:
				decisions = append(decisions, &decision{vertex: vx.ID, ref: vx.Ref, candidates: passing})
			}
		}
		if !progressed {
			break
		}
	}
	span.SetAttributes(
		attribute.Int("replace.applied", applied),
		attribute.Int("replace.decisions", len(decisions)),
	)
	return st, decisions, nil
}

// frontier returns the unexpanded hierarchical neighbors of the given
// skeleton vertices, or of every mapped vertex when limit is empty. The
// root is never included.
func (s *Session) frontier(st State, limit []int) []int {
	from := limit
	if len(from) == 0 {
		from = st.Mapping.Values()
	}
	seen := make(map[int]bool)
	var out []int
	for _, v := range from {
		for _, n := range st.Skeleton.Neighbors(v) {
			if n == 0 || seen[n] {
				continue
			}
			seen[n] = true
			if st.Skeleton.Vertex(n).Color == netgraph.ColorHierarchical {
				out = append(out, n)
			}
		}
	}
	sort.Ints(out)
	return out
}

// pending lists the template versions of v's ref not yet known to fail at
// v.
func (s *Session) pending(v *netgraph.Vertex) []task {
	var out []task
	for _, version := range s.lib.Versions(v.Ref) {
		if s.failed[failureKey{v.ID, v.Name, v.Ref, version}] {
			failureCacheHits.Inc()
			continue
		}
		out = append(out, task{vertex: v.ID, ref: v.Ref, version: version})
	}
	return out
}

// evaluate runs the tasks on a bounded worker pool. Each worker clones
// the skeleton; results keep task order.
func (s *Session) evaluate(ctx context.Context, st State, tasks []task) ([]candidate, error) {
	results := make([]candidate, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, t := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := s.tryDescend(st, t)
			if err != nil {
				return err
			}
			results[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Session) tryDescend(st State, t task) (candidate, error) {
	c := candidate{task: t}
	tpl, err := s.lib.Template(t.ref, t.version)
	if err != nil {
		return c, err
	}
	c.primitives = tpl.PrimitiveCount

	cs, err := netgraph.PlanDescend(st.Skeleton, t.vertex, tpl.Graph, s.opts.Consts)
	if errors.Is(err, netgraph.ErrPortMismatch) {
		return c, nil
	}
	if err != nil {
		return c, err
	}
	sk := st.Skeleton.Clone()
	added, err := sk.Apply(cs)
	if err != nil {
		return c, err
	}
	m, ok := s.extend(st.Mapping, sk, added)
	if !ok {
		return c, nil
	}
	c.ok = true
	c.state = State{Skeleton: sk, Mapping: m}
	c.added = added
	return c, nil
}
