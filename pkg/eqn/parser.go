package eqn

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
)

// Parser parses LUT equations.
type Parser struct {
	parser *participle.Parser[Equation]
}

// NewParser creates a new equation parser instance
func NewParser() (*Parser, error) {
	parser, err := participle.Build[Equation](
		participle.Lexer(EquationLexer),
		participle.Elide("Whitespace"),
		participle.UseLookahead(2),
	)
	if err != nil {
		return nil, fmt.Errorf("eqn: failed to build parser: %w", err)
	}
	return &Parser{parser: parser}, nil
}

// ParseString parses a single equation.
func (p *Parser) ParseString(input string) (*Equation, error) {
	eq, err := p.parser.ParseString("", input)
	if err != nil {
		return nil, fmt.Errorf("eqn: parse error: %w", err)
	}
	return eq, nil
}
