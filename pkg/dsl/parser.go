// Package dsl parses the textual expression language stored in column
// metadata into expr trees, and formats trees back into canonical text.
//
// Grammar:
//
//	expr     = call | literal | ref | column
//	call     = FUNC "(" [ expr { "," expr } ] ")"
//	         | "CAST" "(" expr "AS" type ")"
//	FUNC     = HASH256 | CONCAT | CONCAT_WS | COALESCE | COL
//	literal  = string | number | TRUE | FALSE | NULL
//	ref      = "{expr:" name "}"
//	column   = ident [ "." ident ]
//
// Function names and keywords are case-insensitive. Strings may use single or
// double quotes; a doubled quote escapes itself.
package dsl

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/expr"
)

// MaxDepth bounds call nesting.
const MaxDepth = 64

// Parser is a recursive-descent parser over a Lexer.
type Parser struct {
	input string
	lexer *Lexer
	cur   Token
	peek  Token
	depth int
	open  []int // positions of unclosed '('
}

// Parse parses text into an expression tree. On failure it returns a
// *core.ParseError carrying the offending fragment and no tree.
func Parse(text string) (expr.Expr, error) {
	p := newParser(text)
	if p.cur.Type == TokenEOF {
		return nil, p.errorAt(0, text, "empty expression")
	}

	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.cur.Type != TokenEOF {
		if p.cur.Type == TokenRParen {
			return nil, p.errorAt(p.cur.Pos, p.rest(p.cur.Pos), "unbalanced parentheses: unexpected ')'")
		}
		return nil, p.errorAt(p.cur.Pos, p.rest(p.cur.Pos), "unexpected trailing input")
	}
	return e, nil
}

// ParseColumn parses the expression of a dataset column and stamps the
// column identity onto any parse error.
func ParseColumn(dataset, column, text string) (expr.Expr, error) {
	e, err := Parse(text)
	if err != nil {
		if pe, ok := err.(*core.ParseError); ok {
			pe.Dataset = dataset
			pe.Column = column
		}
		return nil, err
	}
	return e, nil
}

// MustParse is Parse that panics on error. Intended for tests and constants.
func MustParse(text string) expr.Expr {
	e, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return e
}

func newParser(text string) *Parser {
	p := &Parser{input: text, lexer: NewLexer(text)}
	p.next()
	p.next()
	return p
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) parseExpr() (expr.Expr, error) {
	tok := p.cur
	switch tok.Type {
	case TokenIllegal:
		return nil, p.errorAt(tok.Pos, tok.Raw, tok.Literal)
	case TokenString:
		p.next()
		return expr.Str(tok.Literal), nil
	case TokenNumber:
		p.next()
		return expr.Num(tok.Literal), nil
	case TokenRef:
		p.next()
		return &expr.ExprRef{Name: tok.Literal}, nil
	case TokenIdent:
		if p.peek.Type == TokenLParen {
			return p.parseCall()
		}
		return p.parseIdent()
	case TokenEOF:
		return nil, p.unclosed("unexpected end of input")
	case TokenRParen:
		return nil, p.errorAt(tok.Pos, p.rest(tok.Pos), "expected expression, found ')'")
	}
	return nil, p.errorAt(tok.Pos, p.rest(tok.Pos), fmt.Sprintf("unexpected %s", tok.Type))
}

func (p *Parser) parseIdent() (expr.Expr, error) {
	tok := p.cur
	p.next()

	switch strings.ToUpper(tok.Literal) {
	case "TRUE":
		return expr.Bool(true), nil
	case "FALSE":
		return expr.Bool(false), nil
	case "NULL":
		return expr.Null(), nil
	}

	if p.cur.Type != TokenDot {
		return expr.Col(tok.Literal), nil
	}
	p.next()
	if p.cur.Type != TokenIdent {
		return nil, p.errorAt(tok.Pos, p.rest(tok.Pos), "expected column name after '.'")
	}
	col := p.cur.Literal
	p.next()
	return expr.QCol(tok.Literal, col), nil
}

// parseCall parses NAME '(' args ')'. The current token is the name.
func (p *Parser) parseCall() (expr.Expr, error) {
	nameTok := p.cur
	name := strings.ToUpper(nameTok.Literal)
	if _, ok := functions[name]; !ok {
		return nil, p.errorAt(nameTok.Pos, nameTok.Raw, fmt.Sprintf("unknown function %s", nameTok.Literal))
	}
	if p.depth >= MaxDepth {
		return nil, p.errorAt(nameTok.Pos, p.rest(nameTok.Pos), fmt.Sprintf("expression nested deeper than %d calls", MaxDepth))
	}
	p.depth++
	defer func() { p.depth-- }()

	p.next() // name
	p.open = append(p.open, p.cur.Pos)
	p.next() // (

	if name == "CAST" {
		return p.parseCast(nameTok)
	}

	var args []expr.Expr
	if p.cur.Type != TokenRParen {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.cur.Type != TokenComma {
				break
			}
			p.next()
		}
	}
	if err := p.closeParen(nameTok); err != nil {
		return nil, err
	}
	return buildCall(name, args, func(msg string) error {
		return p.errorAt(nameTok.Pos, p.input[nameTok.Pos:p.cur.Pos], msg)
	})
}

func (p *Parser) parseCast(nameTok Token) (expr.Expr, error) {
	inner, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.cur.Type != TokenIdent || !strings.EqualFold(p.cur.Literal, "AS") {
		return nil, p.errorAt(p.cur.Pos, p.rest(nameTok.Pos), "expected AS in CAST")
	}
	p.next()

	start := p.cur.Pos
	if p.cur.Type != TokenIdent {
		return nil, p.errorAt(p.cur.Pos, p.rest(nameTok.Pos), "expected type name in CAST")
	}
	for p.cur.Type == TokenIdent {
		p.next()
	}
	if p.cur.Type == TokenLParen {
		p.next()
		for p.cur.Type == TokenNumber || p.cur.Type == TokenComma {
			p.next()
		}
		if p.cur.Type != TokenRParen {
			return nil, p.errorAt(p.cur.Pos, p.rest(nameTok.Pos), "malformed type parameters in CAST")
		}
		p.next()
	}
	typ := strings.TrimSpace(p.input[start:p.cur.Pos])

	if err := p.closeParen(nameTok); err != nil {
		return nil, err
	}
	return &expr.Cast{Expr: inner, Type: typ}, nil
}

func (p *Parser) closeParen(nameTok Token) error {
	if p.cur.Type != TokenRParen {
		if p.cur.Type == TokenEOF {
			return p.unclosed("unbalanced parentheses: missing ')'")
		}
		return p.errorAt(p.cur.Pos, p.rest(nameTok.Pos),
			fmt.Sprintf("expected ',' or ')' in %s call, found %s", strings.ToUpper(nameTok.Literal), p.cur.Type))
	}
	p.open = p.open[:len(p.open)-1]
	p.next()
	return nil
}

// unclosed reports an error for the innermost unclosed parenthesis.
func (p *Parser) unclosed(msg string) error {
	if len(p.open) == 0 {
		return p.errorAt(len(p.input), "", msg)
	}
	pos := p.open[len(p.open)-1]
	// include the function name preceding the parenthesis
	start := pos
	for start > 0 && isIdentPart(p.input[start-1]) {
		start--
	}
	return p.errorAt(start, p.input[start:], msg)
}

func (p *Parser) rest(from int) string {
	return p.input[from:]
}

func (p *Parser) errorAt(pos int, fragment, msg string) error {
	const maxFragment = 60
	if len(fragment) > maxFragment {
		fragment = fragment[:maxFragment] + "..."
	}
	return &core.ParseError{Pos: pos, Fragment: fragment, Message: msg}
}
