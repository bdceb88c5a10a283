// Package replace grows a seeded template match by rewriting the skeleton
// graph: hierarchical vertices are expanded into their template contents
// (descend) and the skeleton root is wrapped into the templates that
// instantiate it (ascend). Every rewrite is kept only if the mapping to
// the design can be extended across it.
package replace

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/OpenTraceLab/iprec/pkg/library"
	"github.com/OpenTraceLab/iprec/pkg/match"
	"github.com/OpenTraceLab/iprec/pkg/netgraph"
)

var tracer = otel.Tracer("iprec.replace")

// Options tunes the replacement search.
type Options struct {
	// Workers bounds the number of descend candidates evaluated at once.
	Workers int
	// EdgeLimit excludes mapped vertices with this many outgoing edges or
	// more from anchoring a mapping extension.
	EdgeLimit int
	// Greedy resolves descend decisions in place and explores ascend
	// decisions up to MaxDepth levels. Otherwise every decision is
	// explored.
	Greedy   bool
	MaxDepth int
	// Consts names the cell types whose rewired edges carry constant
	// signals. Empty fields fall back to GND and VCC.
	Consts netgraph.ConstRefs
	Logger *slog.Logger
}

// DefaultOptions returns the settings used by the CLI.
func DefaultOptions() Options {
	return Options{
		Workers:   8,
		EdgeLimit: 200,
		Greedy:    true,
		MaxDepth:  2,
		Consts:    netgraph.DefaultConstRefs(),
	}
}

// State is a skeleton graph together with its mapping from design
// vertices. States are treated as immutable once built.
type State struct {
	Skeleton *netgraph.Graph
	Mapping  *match.Mapping
}

// Size is the number of mapped design vertices.
func (s State) Size() int {
	if s.Mapping == nil {
		return 0
	}
	return s.Mapping.Len()
}

type failureKey struct {
	vertex  int
	name    string
	ref     string
	version int
}

// Session runs the replacement search for one seed. Template versions
// that fail to splice at a vertex are remembered for the lifetime of the
// session. A Session is not safe for concurrent use.
type Session struct {
	design  *netgraph.Graph
	lib     library.Source
	matcher *match.Matcher
	opts    Options
	logger  *slog.Logger

	failed map[failureKey]bool
}

// NewSession creates a session matching skeletons against design.
func NewSession(design *netgraph.Graph, lib library.Source, matcher *match.Matcher, opts Options) *Session {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.EdgeLimit <= 0 {
		opts.EdgeLimit = DefaultOptions().EdgeLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{
		design:  design,
		lib:     lib,
		matcher: matcher,
		opts:    opts,
		logger:  opts.Logger,
		failed:  make(map[failureKey]bool),
	}
}

// Run searches from st until no rewrite makes progress and returns the
// state with the largest mapping found.
func (s *Session) Run(ctx context.Context, st State) (State, error) {
	mode := "exhaustive"
	if s.opts.Greedy {
		mode = "greedy"
	}
	ctx, span := tracer.Start(ctx, "replace.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("replace.mode", mode),
		attribute.String("replace.root", st.Skeleton.Vertex(0).Ref),
		attribute.Int("replace.seed_size", st.Size()),
	)

	var (
		best State
		err  error
	)
	if s.opts.Greedy {
		best, err = s.greedy(ctx, st, 0)
	} else {
		best, err = s.exhaustive(ctx, st)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return State{}, fmt.Errorf("replace: %w", err)
	}
	span.SetAttributes(attribute.Int("replace.result_size", best.Size()))
	span.SetStatus(codes.Ok, "")
	mappingSize.Observe(float64(best.Size()))
	return best, nil
}

// extend re-verifies the mapping around the vertices a splice added. The
// mapped neighbors of the added vertices are re-matched one by one so the
// mapping grows into the new structure.
func (s *Session) extend(m *match.Mapping, sk *netgraph.Graph, added []int) (*match.Mapping, bool) {
	seen := make(map[int]bool)
	var anchors []int
	for _, a := range added {
		for _, n := range sk.Neighbors(a) {
			if !seen[n] && m.HasValue(n) {
				seen[n] = true
				anchors = append(anchors, n)
			}
		}
	}
	sort.Ints(anchors)

	cur := m.Clone()
	for _, y := range anchors {
		if sk.OutDegree(y) >= s.opts.EdgeLimit {
			continue
		}
		x, _ := cur.Key(y)
		next, ok := s.matcher.Match(cur, s.design, x, sk, y)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}
