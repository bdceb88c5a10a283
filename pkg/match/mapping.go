package match

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Mapping is a partial bijection from design vertex ids to skeleton (or
// template) vertex ids.
type Mapping struct {
	fwd   map[int]int
	rev   map[int]int
	trail []int
}

// NewMapping creates an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{fwd: make(map[int]int), rev: make(map[int]int)}
}

// Len returns the number of mapped pairs.
func (m *Mapping) Len() int {
	return len(m.fwd)
}

// Get returns the skeleton vertex mapped to design vertex d.
func (m *Mapping) Get(d int) (int, bool) {
	s, ok := m.fwd[d]
	return s, ok
}

// Key returns the design vertex mapped to skeleton vertex s.
func (m *Mapping) Key(s int) (int, bool) {
	d, ok := m.rev[s]
	return d, ok
}

// HasValue reports whether skeleton vertex s is already an image.
func (m *Mapping) HasValue(s int) bool {
	_, ok := m.rev[s]
	return ok
}

// Put maps d to s. It refuses, and returns false, when either side is
// already mapped to something else.
func (m *Mapping) Put(d, s int) bool {
	if cur, ok := m.fwd[d]; ok {
		return cur == s
	}
	if _, ok := m.rev[s]; ok {
		return false
	}
	m.fwd[d] = s
	m.rev[s] = d
	m.trail = append(m.trail, d)
	return true
}

// Keys returns the mapped design vertices in ascending order.
func (m *Mapping) Keys() []int {
	keys := make([]int, 0, len(m.fwd))
	for d := range m.fwd {
		keys = append(keys, d)
	}
	sort.Ints(keys)
	return keys
}

// Values returns the mapped skeleton vertices in ascending order.
func (m *Mapping) Values() []int {
	vals := make([]int, 0, len(m.rev))
	for s := range m.rev {
		vals = append(vals, s)
	}
	sort.Ints(vals)
	return vals
}

// Clone returns an independent copy without undo history.
func (m *Mapping) Clone() *Mapping {
	c := &Mapping{fwd: make(map[int]int, len(m.fwd)), rev: make(map[int]int, len(m.rev))}
	for d, s := range m.fwd {
		c.fwd[d] = s
		c.rev[s] = d
	}
	return c
}

// RemapValues rewrites skeleton ids through fn, used after vertex ids of
// the skeleton were exchanged.
func (m *Mapping) RemapValues(fn func(int) int) {
	fwd := make(map[int]int, len(m.fwd))
	rev := make(map[int]int, len(m.rev))
	for d, s := range m.fwd {
		ns := fn(s)
		fwd[d] = ns
		rev[ns] = d
	}
	m.fwd, m.rev, m.trail = fwd, rev, nil
}

func (m *Mapping) mark() int {
	return len(m.trail)
}

// undo removes every pair added since mark.
func (m *Mapping) undo(mark int) {
	for i := len(m.trail) - 1; i >= mark; i-- {
		d := m.trail[i]
		delete(m.rev, m.fwd[d])
		delete(m.fwd, d)
	}
	m.trail = m.trail[:mark]
}

// MarshalJSON encodes the mapping as an object keyed by design vertex id.
func (m *Mapping) MarshalJSON() ([]byte, error) {
	out := make(map[string]int, len(m.fwd))
	for d, s := range m.fwd {
		out[strconv.Itoa(d)] = s
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a mapping written by MarshalJSON.
func (m *Mapping) UnmarshalJSON(data []byte) error {
	var in map[string]int
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = *NewMapping()
	for k, s := range in {
		d, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("match: mapping key %q: %w", k, err)
		}
		if !m.Put(d, s) {
			return fmt.Errorf("match: mapping is not injective at %d -> %d", d, s)
		}
	}
	m.trail = nil
	return nil
}
