package match

import (
	"encoding/json"
	"testing"

	"github.com/OpenTraceLab/iprec/pkg/netgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type builder struct {
	g *netgraph.Graph
}

func newBuilder() *builder {
	b := &builder{g: netgraph.New()}
	b.g.AddVertex(netgraph.Vertex{Name: "top", Ref: "top", Kind: netgraph.Hierarchical, Color: netgraph.ColorHierarchical})
	return b
}

func (b *builder) prim(name, ref string, props ...string) int {
	p := make(map[string]string)
	for i := 0; i+1 < len(props); i += 2 {
		p[props[i]] = props[i+1]
	}
	return b.g.AddVertex(netgraph.Vertex{Name: name, Ref: ref, Kind: netgraph.Primitive, Color: netgraph.ColorPrimitive, Props: p})
}

func (b *builder) pad(name, ref string) int {
	return b.g.AddVertex(netgraph.Vertex{Name: name, Ref: ref, Kind: netgraph.Primitive, Color: netgraph.ColorBoundary, Props: map[string]string{}})
}

func (b *builder) wire(src, dst int, out, in string, sig netgraph.Signal) {
	b.g.AddEdge(netgraph.Edge{Source: src, Target: dst, OutPin: out, InPin: in, Signal: sig})
}

func assertInjective(t *testing.T, m *Mapping) {
	t.Helper()
	seen := make(map[int]int)
	for _, d := range m.Keys() {
		s, _ := m.Get(d)
		if prev, ok := seen[s]; ok {
			t.Fatalf("design vertices %d and %d both map to %d", prev, d, s)
		}
		seen[s] = d
	}
}

func TestMappingPut(t *testing.T) {
	m := NewMapping()
	assert.True(t, m.Put(1, 10))
	assert.True(t, m.Put(1, 10), "re-adding the same pair is accepted")
	assert.False(t, m.Put(1, 11), "key already mapped elsewhere")
	assert.False(t, m.Put(2, 10), "value already taken")
	assert.True(t, m.Put(2, 20))

	mark := m.mark()
	m.Put(3, 30)
	m.Put(4, 40)
	m.undo(mark)
	assert.Equal(t, 2, m.Len())
	assert.False(t, m.HasValue(30))

	d, ok := m.Key(20)
	assert.True(t, ok)
	assert.Equal(t, 2, d)
}

func TestMappingJSON(t *testing.T) {
	m := NewMapping()
	m.Put(4, 0)
	m.Put(7, 3)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"4":0,"7":3}`, string(data))

	back := NewMapping()
	require.NoError(t, json.Unmarshal(data, back))
	assert.Equal(t, []int{4, 7}, back.Keys())
	assert.Equal(t, []int{0, 3}, back.Values())

	assert.Error(t, json.Unmarshal([]byte(`{"1":2,"3":2}`), back))
}

func TestMappingRemapValues(t *testing.T) {
	m := NewMapping()
	m.Put(1, 0)
	m.Put(2, 5)
	m.RemapValues(func(s int) int {
		switch s {
		case 0:
			return 5
		case 5:
			return 0
		}
		return s
	})
	s, _ := m.Get(1)
	assert.Equal(t, 5, s)
	d, _ := m.Key(0)
	assert.Equal(t, 2, d)
}

func TestSameCell(t *testing.T) {
	mt := NewMatcher(DefaultOptions())
	lut := func(props ...string) *netgraph.Vertex {
		b := newBuilder()
		return b.g.Vertex(b.prim("l", "LUT3", props...))
	}

	tests := []struct {
		name string
		a, b *netgraph.Vertex
		want bool
	}{
		{"equal", lut("INIT", "8'h80"), lut("INIT", "8'h80"), true},
		{"different init", lut("INIT", "8'h80"), lut("INIT", "8'h40"), false},
		{"equation pins swapped", lut("CONFIG.EQN", "O6=(A1*~A2)"), lut("CONFIG.EQN", "O6=(A2*~A1)"), true},
		{"equation differs", lut("CONFIG.EQN", "O6=(A1*A2)"), lut("CONFIG.EQN", "O6=(A1+A2)"), false},
		{"latch flag ignored", lut("CONFIG.LATCH_OR_FF", "LATCH"), lut("CONFIG.LATCH_OR_FF", "FF"), true},
		{"one-sided property ignored", lut("INIT", "8'h80", "LOC", "SLICE_X0Y0"), lut("INIT", "8'h80"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mt.SameCell(tt.a, tt.b))
		})
	}

	b := newBuilder()
	x := b.g.Vertex(b.prim("x", "LUT3"))
	y := b.g.Vertex(b.prim("y", "LUT4"))
	assert.False(t, mt.SameCell(x, y))
}

func TestMatchChain(t *testing.T) {
	d := newBuilder()
	ibuf := d.prim("ibuf", "IBUF")
	lut := d.prim("lut", "LUT2", "CONFIG.EQN", "O6=(A1*A2)")
	ff := d.prim("ff", "FDRE")
	d.wire(ibuf, lut, "O", "I0", netgraph.SignalPrimitive)
	d.wire(lut, ff, "O", "D", netgraph.SignalPrimitive)

	tp := newBuilder()
	tlut := tp.prim("lut", "LUT2", "CONFIG.EQN", "O6=(A2*A1)")
	tff := tp.prim("ff", "FDRE")
	tp.wire(0, tlut, "din", "I0", netgraph.SignalPort)
	tp.wire(tlut, tff, "O", "D", netgraph.SignalPrimitive)

	mt := NewMatcher(DefaultOptions())
	seed := NewMapping()
	got, ok := mt.Match(seed, d.g, lut, tp.g, tlut)
	require.True(t, ok)
	assert.Equal(t, 2, got.Len())
	s, _ := got.Get(ff)
	assert.Equal(t, tff, s)
	assert.Equal(t, 0, seed.Len(), "input mapping must not change")
}

func TestMatchStopsAtBoundaryCells(t *testing.T) {
	build := func() (*builder, int, int, int, int) {
		b := newBuilder()
		in := b.pad("ibuf", "IBUF")
		lut := b.prim("lut", "LUT1", "CONFIG.EQN", "O6=(~A1)")
		ff := b.prim("ff", "FDRE")
		out := b.pad("obuf", "OBUF")
		b.wire(in, lut, "O", "I0", netgraph.SignalPrimitive)
		b.wire(lut, ff, "O", "D", netgraph.SignalPrimitive)
		b.wire(ff, out, "Q", "I", netgraph.SignalPrimitive)
		return b, in, lut, ff, out
	}
	d, din, dlut, dff, dout := build()
	tp, tin, tlut, _, _ := build()

	mt := NewMatcher(DefaultOptions())
	got, ok := mt.Match(NewMapping(), d.g, dlut, tp.g, tlut)
	require.True(t, ok)
	assert.Equal(t, []int{dlut, dff}, got.Keys())
	for _, v := range []int{din, dout} {
		_, mapped := got.Get(v)
		assert.False(t, mapped, "boundary cell %d must not be mapped", v)
	}

	_, ok = mt.Match(NewMapping(), d.g, din, tp.g, tin)
	assert.False(t, ok, "boundary cells cannot seed a match")
}

func TestMatchFailureLeavesMappingUntouched(t *testing.T) {
	d := newBuilder()
	lut := d.prim("lut", "LUT1")
	ff := d.prim("ff", "FDRE")
	tail := d.prim("tail", "LUT3")
	d.wire(lut, ff, "O", "D", netgraph.SignalPrimitive)
	d.wire(ff, tail, "Q", "I0", netgraph.SignalPrimitive)

	tp := newBuilder()
	tlut := tp.prim("lut", "LUT1")
	tff := tp.prim("ff", "FDRE")
	ttail := tp.prim("tail", "LUT2")
	tp.wire(tlut, tff, "O", "D", netgraph.SignalPrimitive)
	tp.wire(tff, ttail, "Q", "I0", netgraph.SignalPrimitive)

	mt := NewMatcher(DefaultOptions())
	seed := NewMapping()
	seed.Put(0, 0)
	_, ok := mt.Match(seed, d.g, lut, tp.g, tlut)
	assert.False(t, ok)
	assert.Equal(t, 1, seed.Len())
}

func TestMatchMissingNeighborFails(t *testing.T) {
	d := newBuilder()
	lut := d.prim("lut", "LUT1")

	tp := newBuilder()
	tlut := tp.prim("lut", "LUT1")
	tff := tp.prim("ff", "FDRE")
	tp.wire(tlut, tff, "O", "D", netgraph.SignalPrimitive)

	_, ok := NewMatcher(DefaultOptions()).Match(NewMapping(), d.g, lut, tp.g, tlut)
	assert.False(t, ok)
}

func TestMatchConstantSource(t *testing.T) {
	d := newBuilder()
	gnd := d.prim("GND", netgraph.GroundRef)
	lut := d.prim("lut", "LUT1")
	other := d.prim("other", "LUT6")
	d.wire(gnd, lut, "G", "I0", netgraph.SignalConst0)
	d.wire(gnd, other, "G", "I0", netgraph.SignalConst0)

	tp := newBuilder()
	tgnd := tp.prim("GND", netgraph.GroundRef)
	tlut := tp.prim("lut", "LUT1")
	tp.wire(tgnd, tlut, "G", "I0", netgraph.SignalConst0)

	got, ok := NewMatcher(DefaultOptions()).Match(NewMapping(), d.g, lut, tp.g, tlut)
	require.True(t, ok)
	s, _ := got.Get(gnd)
	assert.Equal(t, tgnd, s)
	assert.Equal(t, 2, got.Len())
}

func TestMatchAmbiguousCandidatesStayInjective(t *testing.T) {
	d := newBuilder()
	lut := d.prim("lut", "LUT1")
	ffA := d.prim("ffA", "FDRE")
	ffB := d.prim("ffB", "FDRE")
	d.wire(lut, ffA, "O", "D", netgraph.SignalPrimitive)
	d.wire(lut, ffB, "O", "D", netgraph.SignalPrimitive)

	t.Run("one template receiver", func(t *testing.T) {
		tp := newBuilder()
		tlut := tp.prim("lut", "LUT1")
		tff := tp.prim("ff", "FDRE")
		tp.wire(tlut, tff, "O", "D", netgraph.SignalPrimitive)

		got, ok := NewMatcher(DefaultOptions()).Match(NewMapping(), d.g, lut, tp.g, tlut)
		require.True(t, ok)
		assert.Equal(t, 2, got.Len())
		s, _ := got.Get(ffA)
		assert.Equal(t, tff, s, "first candidate wins")
		assertInjective(t, got)
	})

	t.Run("two template receivers", func(t *testing.T) {
		tp := newBuilder()
		tlut := tp.prim("lut", "LUT1")
		tff1 := tp.prim("ff1", "FDRE")
		tff2 := tp.prim("ff2", "FDRE")
		tp.wire(tlut, tff1, "O", "D", netgraph.SignalPrimitive)
		tp.wire(tlut, tff2, "O", "D", netgraph.SignalPrimitive)

		got, ok := NewMatcher(DefaultOptions()).Match(NewMapping(), d.g, lut, tp.g, tlut)
		require.True(t, ok)
		assert.Equal(t, 3, got.Len())
		assertInjective(t, got)
		a, _ := got.Get(ffA)
		b, _ := got.Get(ffB)
		assert.ElementsMatch(t, []int{tff1, tff2}, []int{a, b})
	})

	t.Run("more template receivers than design", func(t *testing.T) {
		tp := newBuilder()
		tlut := tp.prim("lut", "LUT1")
		for _, name := range []string{"ff1", "ff2", "ff3"} {
			tp.wire(tlut, tp.prim(name, "FDRE"), "O", "D", netgraph.SignalPrimitive)
		}
		_, ok := NewMatcher(DefaultOptions()).Match(NewMapping(), d.g, lut, tp.g, tlut)
		assert.False(t, ok)
	})
}

func TestMatchRejectsConflictingSeed(t *testing.T) {
	d := newBuilder()
	lut := d.prim("lut", "LUT1")
	tp := newBuilder()
	tlut := tp.prim("lut", "LUT1")

	seed := NewMapping()
	seed.Put(lut, 0)
	_, ok := NewMatcher(DefaultOptions()).Match(seed, d.g, lut, tp.g, tlut)
	assert.False(t, ok)
}
