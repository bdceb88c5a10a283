package eqn

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// EquationLexer defines the lexical structure of LUT equations as written
// in the CONFIG.EQN BEL property, e.g. "O6=(A1*~A2)+(A3)".
var EquationLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Output selector prefix
	{Name: "Output", Pattern: `O[56]=`},

	// LUT input pins
	{Name: "Pin", Pattern: `A[1-6]`},
	{Name: "Const", Pattern: `[01]`},

	// Operators
	{Name: "Tilde", Pattern: `~`},
	{Name: "Plus", Pattern: `\+`},
	{Name: "Star", Pattern: `\*`},
	{Name: "Xor", Pattern: `@`},

	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},

	{Name: "Whitespace", Pattern: `\s+`},
})
