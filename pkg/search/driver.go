// Package search sweeps a template library over a design. Every template
// span seeds a match at each design vertex of the span anchor's type, and
// accepted seeds are grown by the replacement engine. The largest mapping
// over the whole sweep is the result.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/OpenTraceLab/iprec/pkg/checkpoint"
	"github.com/OpenTraceLab/iprec/pkg/library"
	"github.com/OpenTraceLab/iprec/pkg/match"
	"github.com/OpenTraceLab/iprec/pkg/netgraph"
	"github.com/OpenTraceLab/iprec/pkg/replace"
)

var tracer = otel.Tracer("iprec.search")

var (
	seedsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iprec_search_seeds_total",
		Help: "Seed matches attempted by outcome",
	}, []string{"outcome"})

	bestMapping = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "iprec_search_best_mapping_size",
		Help: "Mapped design vertices of the best result so far",
	})
)

// Seed span selections.
const (
	SeedPrimitive = "primitive"
	SeedAll       = "all"
)

// ErrNoCheckpoints is returned by Resume when the driver has no
// checkpoint manager.
var ErrNoCheckpoints = errors.New("search: checkpoints are not configured")

// Options configures a Driver.
type Options struct {
	// MinSeedSpan skips spans with at most this many vertices, unless
	// they contain one of SpecialRefs.
	MinSeedSpan int
	SpecialRefs []string
	// SeedSpans selects the template spans used for seeding: primitive
	// spans or spans including hierarchical vertices.
	SeedSpans string
	Replace   replace.Options
	Logger    *slog.Logger
}

// DefaultOptions returns the sweep settings used by the CLI.
func DefaultOptions() Options {
	return Options{
		MinSeedSpan: 5,
		SpecialRefs: []string{"DSP48E1"},
		SeedSpans:   SeedPrimitive,
		Replace:     replace.DefaultOptions(),
	}
}

// Progress reports the state of a sweep.
type Progress struct {
	Phase   string // "template", "seed", "done"
	Ref     string
	Version int
	Index   int // template index (0-based)
	Total   int // number of templates
	Seeds   int // accepted seeds so far
	Best    int // largest mapping so far
}

// Driver runs searches against one library.
type Driver struct {
	lib         library.Source
	matcher     *match.Matcher
	checkpoints *checkpoint.Manager
	opts        Options
	logger      *slog.Logger
}

// NewDriver creates a driver. checkpoints may be nil.
func NewDriver(lib library.Source, matcher *match.Matcher, checkpoints *checkpoint.Manager, opts Options) *Driver {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Replace.Logger == nil {
		opts.Replace.Logger = opts.Logger
	}
	if opts.SeedSpans == "" {
		opts.SeedSpans = SeedPrimitive
	}
	return &Driver{
		lib:         lib,
		matcher:     matcher,
		checkpoints: checkpoints,
		opts:        opts,
		logger:      opts.Logger,
	}
}

type templateRef struct {
	ref     string
	version int
}

// Search sweeps every template of the library over design. Progress is
// sent on progress when it is non-nil. A sweep that finds nothing returns
// a Result with Found unset.
func (d *Driver) Search(ctx context.Context, design *netgraph.Graph, progress chan<- Progress) (*Result, error) {
	ctx, span := tracer.Start(ctx, "search.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("search.design_vertices", design.Len()))

	var all []templateRef
	for _, ref := range d.lib.Refs() {
		for _, v := range d.lib.Versions(ref) {
			all = append(all, templateRef{ref, v})
		}
	}

	best := &Result{}
	seeds := 0
	report := func(p Progress) error {
		if progress == nil {
			return nil
		}
		p.Total, p.Seeds, p.Best = len(all), seeds, best.Size()
		select {
		case progress <- p:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for i, tr := range all {
		tpl, err := d.lib.Template(tr.ref, tr.version)
		if err != nil {
			return nil, d.fail(span, err)
		}
		if err := report(Progress{Phase: "template", Ref: tr.ref, Version: tr.version, Index: i}); err != nil {
			return nil, d.fail(span, err)
		}
		for _, s := range d.spans(tpl) {
			if !d.qualifies(tpl, s) {
				continue
			}
			anchor := tpl.Graph.Vertex(s[0])
			for _, v := range design.Vertices() {
				if v.Ref != anchor.Ref {
					continue
				}
				if err := ctx.Err(); err != nil {
					return nil, d.fail(span, err)
				}
				m, ok := d.matcher.Match(match.NewMapping(), design, v.ID, tpl.Graph, anchor.ID)
				if !ok || m.Len() <= 1 {
					seedsTotal.WithLabelValues("rejected").Inc()
					continue
				}
				seedsTotal.WithLabelValues("accepted").Inc()
				seeds++

				res, err := d.grow(ctx, design, tr, replace.State{Skeleton: tpl.Graph.Clone(), Mapping: m})
				if err != nil {
					return nil, d.fail(span, err)
				}
				if res.Size() > best.Size() {
					best = res
					bestMapping.Set(float64(best.Size()))
					d.logger.Info("new best mapping", "ref", tr.ref, "version", tr.version,
						"anchor", v.Name, "mapped", best.Size(), "session", res.SessionID)
				}
				if err := report(Progress{Phase: "seed", Ref: tr.ref, Version: tr.version, Index: i}); err != nil {
					return nil, d.fail(span, err)
				}
			}
		}
	}

	best.Seeds = seeds
	if err := report(Progress{Phase: "done", Index: len(all)}); err != nil {
		return nil, d.fail(span, err)
	}
	span.SetAttributes(
		attribute.Int("search.seeds", seeds),
		attribute.Int("search.best", best.Size()),
	)
	span.SetStatus(codes.Ok, "")
	return best, nil
}

// grow runs one replacement session and checkpoints its outcome.
func (d *Driver) grow(ctx context.Context, design *netgraph.Graph, tr templateRef, st replace.State) (*Result, error) {
	sessionID := uuid.NewString()
	out, err := replace.NewSession(design, d.lib, d.matcher, d.opts.Replace).Run(ctx, st)
	if err != nil {
		return nil, err
	}
	if d.checkpoints != nil {
		meta := checkpoint.Meta{Ref: tr.ref, Version: tr.version, SessionID: sessionID}
		if _, err := d.checkpoints.Save(ctx, meta, out.Mapping, out.Skeleton); err != nil {
			return nil, err
		}
	}
	return &Result{
		Found:     true,
		Ref:       tr.ref,
		Version:   tr.version,
		SessionID: sessionID,
		Skeleton:  out.Skeleton,
		Mapping:   out.Mapping,
	}, nil
}

// Resume continues the search stored in checkpoint index, or in the
// latest checkpoint when index is negative.
func (d *Driver) Resume(ctx context.Context, design *netgraph.Graph, index int) (*Result, error) {
	if d.checkpoints == nil {
		return nil, ErrNoCheckpoints
	}
	ctx, span := tracer.Start(ctx, "search.Resume")
	defer span.End()
	span.SetAttributes(attribute.Int("search.checkpoint", index))

	cp, err := d.checkpoints.Load(ctx, index)
	if err != nil {
		return nil, d.fail(span, err)
	}
	for _, k := range cp.Mapping.Keys() {
		if design.Vertex(k) == nil {
			return nil, d.fail(span, fmt.Errorf("search: checkpoint %d maps vertex %d, which the design does not have", cp.Meta.Index, k))
		}
	}
	d.logger.Info("resuming", "checkpoint", cp.Meta.Index, "ref", cp.Meta.Ref, "version", cp.Meta.Version, "mapped", cp.Mapping.Len())

	res, err := d.grow(ctx, design, templateRef{cp.Meta.Ref, cp.Meta.Version},
		replace.State{Skeleton: cp.Skeleton, Mapping: cp.Mapping})
	if err != nil {
		return nil, d.fail(span, err)
	}
	res.Found = res.Size() > 0
	span.SetStatus(codes.Ok, "")
	return res, nil
}

func (d *Driver) spans(tpl *library.Template) [][]int {
	if d.opts.SeedSpans == SeedAll {
		return tpl.Span
	}
	return tpl.PrimitiveSpan
}

// qualifies reports whether a span is large enough to seed from, or holds
// a cell type of special interest.
func (d *Driver) qualifies(tpl *library.Template, span []int) bool {
	if len(span) == 0 {
		return false
	}
	if len(span) > d.opts.MinSeedSpan {
		return true
	}
	for _, id := range span {
		v := tpl.Graph.Vertex(id)
		if v == nil {
			continue
		}
		for _, ref := range d.opts.SpecialRefs {
			if v.Ref == ref {
				return true
			}
		}
	}
	return false
}

func (d *Driver) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
