package eqn

// Equation is a parsed LUT equation.
type Equation struct {
	Output string `parser:"@Output?"`
	Sum    *Sum   `parser:"@@"`
}

// Sum is an OR of exclusive-or terms.
type Sum struct {
	Terms []*XorTerm `parser:"@@ ( Plus @@ )*"`
}

// XorTerm is an XOR of products.
type XorTerm struct {
	Products []*Product `parser:"@@ ( Xor @@ )*"`
}

// Product is an AND of factors.
type Product struct {
	Factors []*Factor `parser:"@@ ( Star @@ )*"`
}

// Factor is a negation, a pin, a constant or a parenthesized sum.
type Factor struct {
	Not   *Factor `parser:"  Tilde @@"`
	Pin   string  `parser:"| @Pin"`
	Const string  `parser:"| @Const"`
	Group *Sum    `parser:"| LParen @@ RParen"`
}

// Pins returns the distinct pins referenced by the equation in order of
// first appearance.
func (e *Equation) Pins() []string {
	var out []string
	seen := make(map[string]bool)
	var walkSum func(*Sum)
	var walkFactor func(*Factor)
	walkFactor = func(f *Factor) {
		switch {
		case f.Not != nil:
			walkFactor(f.Not)
		case f.Group != nil:
			walkSum(f.Group)
		case f.Pin != "":
			if !seen[f.Pin] {
				seen[f.Pin] = true
				out = append(out, f.Pin)
			}
		}
	}
	walkSum = func(s *Sum) {
		for _, x := range s.Terms {
			for _, p := range x.Products {
				for _, f := range p.Factors {
					walkFactor(f)
				}
			}
		}
	}
	if e.Sum != nil {
		walkSum(e.Sum)
	}
	return out
}
