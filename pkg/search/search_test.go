package search

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/iprec/pkg/checkpoint"
	"github.com/OpenTraceLab/iprec/pkg/library"
	"github.com/OpenTraceLab/iprec/pkg/match"
	"github.com/OpenTraceLab/iprec/pkg/netgraph"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	design  *netgraph.Graph
	lib     *library.Library
	matcher *match.Matcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return loadFixture(t, "../../testdata/samples", "../../testdata/target.json", netgraph.ImportOptions{Logger: quiet})
}

// newIOFixture builds a library from one design whose core instance sits
// between an IBUF and an OBUF.
func newIOFixture(t *testing.T, target string, flat bool) *fixture {
	t.Helper()
	return loadFixture(t, "../../testdata/io/samples", filepath.Join("../../testdata/io", target),
		netgraph.ImportOptions{Flat: flat, Logger: quiet})
}

func loadFixture(t *testing.T, samples, target string, opts netgraph.ImportOptions) *fixture {
	t.Helper()
	mt := match.NewMatcher(match.DefaultOptions())
	dir := t.TempDir()
	b, err := library.NewBuilder(dir, library.Options{Matcher: mt, Logger: quiet})
	require.NoError(t, err)
	_, err = b.BuildDir(context.Background(), samples)
	require.NoError(t, err)
	require.NoError(t, b.Save())

	lib, err := library.Open(dir)
	require.NoError(t, err)
	design, err := netgraph.ImportFile(target, opts)
	require.NoError(t, err)
	return &fixture{design: design, lib: lib, matcher: mt}
}

func (f *fixture) driver(cps *checkpoint.Manager, mutate func(*Options)) *Driver {
	opts := DefaultOptions()
	opts.MinSeedSpan = 0
	opts.Logger = quiet
	opts.Replace.Logger = quiet
	if mutate != nil {
		mutate(&opts)
	}
	return NewDriver(f.lib, f.matcher, cps, opts)
}

const wantHierarchy = `{
  "top": {
    "LEAF": [],
    "U0": {
      "LEAF": ["GND", "lut_a", "lut_b"],
      "sub": {"LEAF": ["ff_b", "ff_c"]}
    }
  }
}`

func TestSearchRecoversWholeDesign(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"greedy", nil},
		{"exhaustive", func(o *Options) { o.Replace.Greedy = false }},
		{"all spans", func(o *Options) { o.SeedSpans = SeedAll }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res, err := f.driver(nil, tt.mutate).Search(context.Background(), f.design, nil)
			require.NoError(t, err)
			require.True(t, res.Found)
			assert.Equal(t, "core", res.Ref)
			assert.Equal(t, 0, res.Version)
			assert.Equal(t, 5, res.Size())
			assert.NotEmpty(t, res.SessionID)

			cov := res.Coverage(f.design)
			assert.Equal(t, Coverage{Errors: 0, Correct: 5, Primitives: 5, Percent: 100}, cov)

			data, err := json.Marshal(res.Hierarchy())
			require.NoError(t, err)
			assert.JSONEq(t, wantHierarchy, string(data))
		})
	}
}

func TestSearchSingleInstanceMapsTemplatePrimitives(t *testing.T) {
	tests := []struct {
		name   string
		target string
		flat   bool
	}{
		{"driver records", "target.json", false},
		{"flat records", "target_flat.json", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIOFixture(t, tt.target, tt.flat)
			tpl, err := f.lib.Template("core", 0)
			require.NoError(t, err)
			require.Equal(t, 3, tpl.PrimitiveCount)

			res, err := f.driver(nil, nil).Search(context.Background(), f.design, nil)
			require.NoError(t, err)
			require.True(t, res.Found)
			assert.Equal(t, "core", res.Ref)
			assert.Equal(t, tpl.PrimitiveCount, res.Size())
			for _, d := range res.Mapping.Keys() {
				assert.NotEqual(t, netgraph.ColorBoundary, f.design.Vertex(d).Color, "%s is mapped", f.design.Vertex(d).Name)
			}

			assert.Equal(t, Coverage{Errors: 0, Correct: 3, Primitives: 3, Percent: 100}, res.Coverage(f.design))

			data, err := json.Marshal(res.Hierarchy())
			require.NoError(t, err)
			assert.JSONEq(t, `{"top": {"LEAF": [], "U0": {"LEAF": ["ff", "lut_a", "lut_b"]}}}`, string(data))
		})
	}
}

func TestSearchFlatRecordsNeedFlatImport(t *testing.T) {
	f := newIOFixture(t, "target_flat.json", false)
	res, err := f.driver(nil, nil).Search(context.Background(), f.design, nil)
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestSearchCountsAcceptedSeeds(t *testing.T) {
	f := newFixture(t)
	res, err := f.driver(nil, nil).Search(context.Background(), f.design, nil)
	require.NoError(t, err)
	// core v0 from lut_a and inner v0 from ff_b; core v1 expects a second
	// fanout of lut_a that the design lacks.
	assert.Equal(t, 2, res.Seeds)
}

func TestSearchSkipsSmallSpans(t *testing.T) {
	f := newFixture(t)
	res, err := f.driver(nil, func(o *Options) { o.MinSeedSpan = 5 }).Search(context.Background(), f.design, nil)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, 0, res.Size())
	assert.Equal(t, 0, res.Seeds)

	data, err := json.Marshal(res.Hierarchy())
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
	assert.Equal(t, 5, res.Coverage(f.design).Primitives)
	assert.Zero(t, res.Coverage(f.design).Percent)
}

func TestSearchSpecialRefOverridesSpanSize(t *testing.T) {
	f := newFixture(t)
	res, err := f.driver(nil, func(o *Options) {
		o.MinSeedSpan = 5
		o.SpecialRefs = []string{"LUT2"}
	}).Search(context.Background(), f.design, nil)
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, "core", res.Ref)
	assert.Equal(t, 5, res.Size())
	assert.Equal(t, 1, res.Seeds)
}

func TestSearchReportsProgress(t *testing.T) {
	f := newFixture(t)
	ch := make(chan Progress, 64)
	res, err := f.driver(nil, nil).Search(context.Background(), f.design, ch)
	require.NoError(t, err)
	close(ch)

	var got []Progress
	for p := range ch {
		got = append(got, p)
	}
	require.NotEmpty(t, got)
	assert.Equal(t, Progress{Phase: "template", Ref: "core", Version: 0, Index: 0, Total: 4}, got[0])

	last := got[len(got)-1]
	assert.Equal(t, "done", last.Phase)
	assert.Equal(t, 4, last.Total)
	assert.Equal(t, res.Size(), last.Best)
	assert.Equal(t, 2, last.Seeds)
}

func TestSearchHonorsCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.driver(nil, nil).Search(ctx, f.design, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchWritesCheckpointsAndResumes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dir := filepath.Join(t.TempDir(), "checkpoints")
	store, err := checkpoint.NewFileStore(dir)
	require.NoError(t, err)
	mgr := checkpoint.NewManager(store, quiet)

	d := f.driver(mgr, nil)
	res, err := d.Search(ctx, f.design, nil)
	require.NoError(t, err)
	require.True(t, res.Found)

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, latest)

	first, err := mgr.Load(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "core", first.Meta.Ref)
	assert.Equal(t, res.SessionID, first.Meta.SessionID)
	assert.Equal(t, 5, first.Meta.MappingSize)

	resumed, err := d.Resume(ctx, f.design, 0)
	require.NoError(t, err)
	require.True(t, resumed.Found)
	assert.Equal(t, "core", resumed.Ref)
	assert.Equal(t, 5, resumed.Size())
	assert.NotEqual(t, res.SessionID, resumed.SessionID)
	assert.Equal(t, 100.0, resumed.Coverage(f.design).Percent)

	// Resuming writes a checkpoint of its own.
	latest, err = store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, latest)
}

func TestResumeWithoutCheckpoints(t *testing.T) {
	f := newFixture(t)
	_, err := f.driver(nil, nil).Resume(context.Background(), f.design, -1)
	assert.ErrorIs(t, err, ErrNoCheckpoints)
}

func TestResumeRejectsForeignCheckpoint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mem, err := checkpoint.OpenBadger(checkpoint.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	mgr := checkpoint.NewManager(mem, quiet)
	defer mgr.Close()

	sk := netgraph.New()
	sk.AddVertex(netgraph.Vertex{Name: "top", Ref: "top", Kind: netgraph.Hierarchical, Color: netgraph.ColorHierarchical})
	id := sk.AddVertex(netgraph.Vertex{Name: "ff", Ref: "FDRE", Color: netgraph.ColorPrimitive})
	m := match.NewMapping()
	m.Put(999, id)
	_, err = mgr.Save(ctx, checkpoint.Meta{Ref: "top"}, m, sk)
	require.NoError(t, err)

	_, err = f.driver(mgr, nil).Resume(ctx, f.design, -1)
	assert.ErrorContains(t, err, "does not have")
}

func TestResumeMissingCheckpoint(t *testing.T) {
	f := newFixture(t)
	mem, err := checkpoint.OpenBadger(checkpoint.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	mgr := checkpoint.NewManager(mem, quiet)
	defer mgr.Close()

	_, err = f.driver(mgr, nil).Resume(context.Background(), f.design, 3)
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestHierarchyKeepsUnresolvedInstances(t *testing.T) {
	sk := netgraph.New()
	sk.AddVertex(netgraph.Vertex{Name: "top", Ref: "top", Kind: netgraph.Hierarchical, Color: netgraph.ColorHierarchical})
	sk.AddVertex(netgraph.Vertex{Name: "U0", Ref: "core", Kind: netgraph.Hierarchical, Color: netgraph.ColorConsumed})
	sk.AddVertex(netgraph.Vertex{Name: "U0/b", Ref: "LUT1", Color: netgraph.ColorPrimitive})
	sk.AddVertex(netgraph.Vertex{Name: "U0/a", Ref: "LUT1", Color: netgraph.ColorPrimitive})
	sk.AddVertex(netgraph.Vertex{Name: "U0/mem", Ref: "ram", Kind: netgraph.Hierarchical, Color: netgraph.ColorHierarchical})
	sk.AddVertex(netgraph.Vertex{Name: "pad", Ref: "IBUF", Color: netgraph.ColorBoundary})

	res := &Result{Found: true, Skeleton: sk, Mapping: match.NewMapping()}
	data, err := json.Marshal(res.Hierarchy())
	require.NoError(t, err)
	assert.JSONEq(t, `{"top": {"LEAF": [], "U0": {"LEAF": ["a", "b"], "mem": {"LEAF": []}}}}`, string(data))
}

func TestCoverageIgnoresBoundaryCells(t *testing.T) {
	design := netgraph.New()
	design.AddVertex(netgraph.Vertex{Name: "chip", Kind: netgraph.Hierarchical, Color: netgraph.ColorHierarchical})
	pad := design.AddVertex(netgraph.Vertex{Name: "pad", Ref: "IBUF", Color: netgraph.ColorBoundary})
	lut := design.AddVertex(netgraph.Vertex{Name: "lut", Ref: "LUT1", Color: netgraph.ColorPrimitive})

	sk := netgraph.New()
	sk.AddVertex(netgraph.Vertex{Name: "top", Kind: netgraph.Hierarchical, Color: netgraph.ColorHierarchical})
	spad := sk.AddVertex(netgraph.Vertex{Name: "pad", Ref: "IBUF", Color: netgraph.ColorBoundary})
	slut := sk.AddVertex(netgraph.Vertex{Name: "U0/lut", Ref: "LUT1", Color: netgraph.ColorPrimitive})
	m := match.NewMapping()
	m.Put(pad, spad)
	m.Put(lut, slut)

	res := &Result{Found: true, Skeleton: sk, Mapping: m}
	assert.Equal(t, Coverage{Errors: 0, Correct: 1, Primitives: 1, Percent: 100}, res.Coverage(design))
}

func TestCoverageCountsNameMismatches(t *testing.T) {
	design := netgraph.New()
	design.AddVertex(netgraph.Vertex{Name: "chip", Kind: netgraph.Hierarchical, Color: netgraph.ColorHierarchical})
	d1 := design.AddVertex(netgraph.Vertex{Name: "X/a", CellName: "X/a", Ref: "LUT1", Color: netgraph.ColorPrimitive})
	d2 := design.AddVertex(netgraph.Vertex{Name: "X/b", CellName: "X/b", Ref: "LUT1", Color: netgraph.ColorPrimitive})
	design.AddVertex(netgraph.Vertex{Name: "X/c", CellName: "X/c", Ref: "LUT1", Color: netgraph.ColorPrimitive})
	design.AddVertex(netgraph.Vertex{Name: "X/d", CellName: "X/d", Ref: "LUT1", Color: netgraph.ColorPrimitive})

	sk := netgraph.New()
	sk.AddVertex(netgraph.Vertex{Name: "top", Kind: netgraph.Hierarchical, Color: netgraph.ColorHierarchical})
	s1 := sk.AddVertex(netgraph.Vertex{Name: "U0/a", Ref: "LUT1", Color: netgraph.ColorPrimitive})
	s2 := sk.AddVertex(netgraph.Vertex{Name: "U0/c", Ref: "LUT1", Color: netgraph.ColorPrimitive})
	m := match.NewMapping()
	m.Put(d1, s1)
	m.Put(d2, s2)

	res := &Result{Found: true, Skeleton: sk, Mapping: m}
	cov := res.Coverage(design)
	assert.Equal(t, 1, cov.Errors)
	assert.Equal(t, 2, cov.Correct)
	assert.Equal(t, 4, cov.Primitives)
	assert.Equal(t, 50.0, cov.Percent)
	assert.Equal(t, []Mismatch{{Design: "X/b", Skeleton: "U0/c"}}, cov.Mismatches)

	var quietOut, verboseOut bytes.Buffer
	require.NoError(t, WriteReport(&quietOut, cov, false))
	require.NoError(t, WriteReport(&verboseOut, cov, true))
	assert.Contains(t, quietOut.String(), "Coverage:         50%")
	assert.NotContains(t, quietOut.String(), "mismatch")
	assert.Contains(t, verboseOut.String(), "mismatch: X/b -> U0/c")
}
