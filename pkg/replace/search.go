package replace

import "context"

// settle alternates descend and ascend until the skeleton stops growing.
// The decisions returned belong to the final, unchanged state.
func (s *Session) settle(ctx context.Context, st State) (State, []*decision, []candidate, error) {
	for {
		n := st.Skeleton.NextID()
		next, descendDecisions, err := s.descend(ctx, st)
		if err != nil {
			return st, nil, nil, err
		}
		next, ascendDecisions, err := s.ascend(ctx, next)
		if err != nil {
			return st, nil, nil, err
		}
		st = next
		if st.Skeleton.NextID() == n {
			return st, descendDecisions, ascendDecisions, nil
		}
	}
}

// exhaustive settles st and then explores every candidate of the open
// decision: the descend decision with the richest candidates if there is
// one, otherwise every ascend case. The largest mapping wins; earlier
// branches win ties.
func (s *Session) exhaustive(ctx context.Context, st State) (State, error) {
	st, descendDecisions, ascendDecisions, err := s.settle(ctx, st)
	if err != nil {
		return st, err
	}
	branches := ascendDecisions
	if d := explore(descendDecisions); d != nil {
		branches = d.candidates
	}

	best := st
	for _, c := range branches {
		decisionsExplored.WithLabelValues("exhaustive").Inc()
		r, err := s.exhaustive(ctx, c.state)
		if err != nil {
			return best, err
		}
		if r.Size() > best.Size() {
			best = r
		}
	}
	return best, nil
}

// greedy settles st, resolves descend decisions in place with their best
// candidate and explores ascend decisions one level deeper. Branches
// stop at MaxDepth and return the state reached so far.
func (s *Session) greedy(ctx context.Context, st State, depth int) (State, error) {
	if depth >= s.opts.MaxDepth {
		return st, nil
	}
	for {
		settled, descendDecisions, ascendDecisions, err := s.settle(ctx, st)
		if err != nil {
			return st, err
		}
		st = settled
		if c, ok := fallback(descendDecisions); ok {
			decisionsExplored.WithLabelValues("greedy").Inc()
			st = c.state
			continue
		}

		best := st
		for _, c := range ascendDecisions {
			decisionsExplored.WithLabelValues("greedy").Inc()
			r, err := s.greedy(ctx, c.state, depth+1)
			if err != nil {
				return best, err
			}
			if r.Size() > best.Size() {
				best = r
			}
		}
		return best, nil
	}
}
