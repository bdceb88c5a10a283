package eqn

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// Placeholder replaces every pin token in a canonical equation.
const Placeholder = "PIN"

var pinOrder = []string{"A1", "A2", "A3", "A4", "A5", "A6"}

// framing is the fixed wrapper "(A6+~A6)*(" ... ")" written around
// equations that do not depend on A6.
var framing = []string{"(", "A6", "+", "~", "A6", ")", "*", "("}

var symbols = EquationLexer.Symbols()

// Canonical is an equation with its framing stripped.
type Canonical struct {
	// Text is the stripped equation with every pin replaced by Placeholder.
	Text string
	// Offsets holds, for A1..A6 in order, the character offsets of that
	// pin in the stripped equation.
	Offsets [][]int
}

// Canonicalize strips output prefixes and the A6 framing from an equation
// and records where each pin occurs.
func Canonicalize(equation string) (Canonical, error) {
	lex, err := EquationLexer.LexString("", equation)
	if err != nil {
		return Canonical{}, fmt.Errorf("eqn: %w", err)
	}
	tokens, err := lexer.ConsumeAll(lex)
	if err != nil {
		return Canonical{}, fmt.Errorf("eqn: %w", err)
	}

	var values []string
	for _, tok := range tokens {
		if tok.EOF() || tok.Type == symbols["Whitespace"] || tok.Type == symbols["Output"] {
			continue
		}
		values = append(values, tok.Value)
	}

	stripped := removeAll(values, framing)
	if len(stripped) != len(values) && len(stripped) > 0 {
		stripped = stripped[:len(stripped)-1]
	}

	var text, canon strings.Builder
	offsets := make(map[string][]int, len(pinOrder))
	for _, v := range stripped {
		if isPin(v) {
			offsets[v] = append(offsets[v], text.Len())
			canon.WriteString(Placeholder)
		} else {
			canon.WriteString(v)
		}
		text.WriteString(v)
	}

	c := Canonical{Text: canon.String(), Offsets: make([][]int, len(pinOrder))}
	for i, pin := range pinOrder {
		c.Offsets[i] = offsets[pin]
	}
	return c, nil
}

// Equivalent reports whether two equations have the same structure up to
// a renaming of their input pins. Equations that cannot be tokenized are
// compared verbatim.
func Equivalent(a, b string) bool {
	if a == b {
		return true
	}
	ca, errA := Canonicalize(a)
	cb, errB := Canonicalize(b)
	if errA != nil || errB != nil {
		return false
	}
	if ca.Text != cb.Text {
		return false
	}
	return sameOccurrences(ca.Offsets, cb.Offsets)
}

// sameOccurrences reports whether the per-pin offset lists of both sides
// are equal as multisets.
func sameOccurrences(a, b [][]int) bool {
	if len(a) != len(b) {
		return false
	}
	remaining := append([][]int(nil), b...)
	for _, x := range a {
		found := -1
		for i, y := range remaining {
			if equalInts(x, y) {
				found = i
				break
			}
		}
		if found < 0 {
			return false
		}
		remaining = append(remaining[:found], remaining[found+1:]...)
	}
	return true
}

func removeAll(values, seq []string) []string {
	out := make([]string, 0, len(values))
	for i := 0; i < len(values); {
		if hasPrefix(values[i:], seq) {
			i += len(seq)
			continue
		}
		out = append(out, values[i])
		i++
	}
	return out
}

func hasPrefix(values, seq []string) bool {
	if len(values) < len(seq) {
		return false
	}
	for i := range seq {
		if values[i] != seq[i] {
			return false
		}
	}
	return true
}

func isPin(v string) bool {
	return len(v) == 2 && v[0] == 'A' && v[1] >= '1' && v[1] <= '6'
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
