package replace

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/OpenTraceLab/iprec/pkg/netgraph"
)

// ascend tries to wrap the skeleton root into every template that
// instantiates the root's ref, at every position holding such an
// instance. A single fitting case is applied; several are returned as
// decisions and the state is left as it was.
func (s *Session) ascend(ctx context.Context, st State) (State, []candidate, error) {
	ctx, span := tracer.Start(ctx, "replace.ascend")
	defer span.End()
	start := time.Now()
	defer func() { passDuration.WithLabelValues("ascend").Observe(time.Since(start).Seconds()) }()

	root := st.Skeleton.Vertex(0)
	var passing []candidate
	for _, ref := range s.lib.Containers(root.Ref) {
		for _, version := range s.lib.Versions(ref) {
			if err := ctx.Err(); err != nil {
				return st, nil, err
			}
			tpl, err := s.lib.Template(ref, version)
			if err != nil {
				return st, nil, err
			}
			for _, inner := range tpl.Graph.Vertices() {
				if inner.ID == 0 || inner.IsPrimitive() || inner.Ref != root.Ref {
					continue
				}
				c, err := s.tryAscend(st, task{vertex: inner.ID, ref: ref, version: version})
				if err != nil {
					return st, nil, err
				}
				if !c.ok {
					candidatesTotal.WithLabelValues("ascend", "fail").Inc()
					continue
				}
				candidatesTotal.WithLabelValues("ascend", "pass").Inc()
				c.primitives = tpl.PrimitiveCount
				passing = append(passing, c)
			}
		}
	}
	span.SetAttributes(attribute.Int("replace.passing", len(passing)))

	if len(passing) == 1 {
		c := passing[0]
		s.logger.Debug("ascend", "ref", c.ref, "version", c.version, "position", c.vertex, "mapped", c.state.Size())
		return c.state, nil, nil
	}
	return st, passing, nil
}

func (s *Session) tryAscend(st State, t task) (candidate, error) {
	c := candidate{task: t}
	tpl, err := s.lib.Template(t.ref, t.version)
	if err != nil {
		return c, err
	}
	cs, err := netgraph.PlanAscend(st.Skeleton, tpl.Graph, t.vertex, s.opts.Consts)
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

	m := st.Mapping.Clone()
	swap := cs.SwapRoot
	m.RemapValues(func(v int) int {
		switch v {
		case 0:
			return swap
		case swap:
			return 0
		}
		return v
	})
	m, ok := s.extend(m, sk, added)
	if !ok {
		return c, nil
	}
	c.ok = true
	c.state = State{Skeleton: sk, Mapping: m}
	c.added = added
	return c, nil
}
