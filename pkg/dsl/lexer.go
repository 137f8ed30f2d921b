package dsl

import "strings"

// Lexer tokenizes DSL input.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// NextToken returns the next token. Lexical errors are reported as TokenIllegal
// with Literal holding the message.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()
	start := l.pos

	single := func(t TokenType) Token {
		raw := string(l.ch)
		l.readChar()
		return Token{Type: t, Literal: raw, Raw: raw, Pos: start}
	}

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: start}
	case l.ch == '(':
		return single(TokenLParen)
	case l.ch == ')':
		return single(TokenRParen)
	case l.ch == ',':
		return single(TokenComma)
	case l.ch == '.':
		return single(TokenDot)
	case l.ch == '\'' || l.ch == '"':
		return l.readString(start)
	case l.ch == '{':
		return l.readRef(start)
	case l.ch == '-' || isDigit(l.ch):
		return l.readNumber(start)
	case isIdentStart(l.ch):
		for isIdentPart(l.ch) {
			l.readChar()
		}
		raw := l.input[start:l.pos]
		return Token{Type: TokenIdent, Literal: raw, Raw: raw, Pos: start}
	}

	raw := string(l.ch)
	l.readChar()
	return Token{Type: TokenIllegal, Literal: "unexpected character " + quoteChar(raw), Raw: raw, Pos: start}
}

// readString reads a quoted string. A doubled quote inside the string is an
// escaped quote character.
func (l *Lexer) readString(start int) Token {
	quote := l.ch
	l.readChar()

	var b strings.Builder
	for {
		switch l.ch {
		case 0:
			return Token{Type: TokenIllegal, Literal: "unterminated string literal", Raw: l.input[start:], Pos: start}
		case quote:
			l.readChar()
			if l.ch == quote {
				b.WriteByte(quote)
				l.readChar()
				continue
			}
			return Token{Type: TokenString, Literal: b.String(), Raw: l.input[start:l.pos], Pos: start}
		default:
			b.WriteByte(l.ch)
			l.readChar()
		}
	}
}

// readRef reads an upstream expression reference of the form {expr:name}.
func (l *Lexer) readRef(start int) Token {
	for l.ch != '}' && l.ch != 0 {
		l.readChar()
	}
	if l.ch == 0 {
		return Token{Type: TokenIllegal, Literal: "unterminated expression reference", Raw: l.input[start:], Pos: start}
	}
	l.readChar()
	raw := l.input[start:l.pos]

	body := strings.TrimSpace(raw[1 : len(raw)-1])
	prefix, name, ok := strings.Cut(body, ":")
	if !ok || strings.TrimSpace(prefix) != "expr" {
		return Token{Type: TokenIllegal, Literal: "malformed expression reference, expected {expr:name}", Raw: raw, Pos: start}
	}
	name = strings.TrimSpace(name)
	if name == "" || !validRefName(name) {
		return Token{Type: TokenIllegal, Literal: "malformed expression reference name", Raw: raw, Pos: start}
	}
	return Token{Type: TokenRef, Literal: name, Raw: raw, Pos: start}
}

func (l *Lexer) readNumber(start int) Token {
	if l.ch == '-' {
		l.readChar()
	}
	digits := 0
	for isDigit(l.ch) {
		l.readChar()
		digits++
	}
	if l.ch == '.' {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
			digits++
		}
	}
	raw := l.input[start:l.pos]
	if digits == 0 {
		return Token{Type: TokenIllegal, Literal: "invalid number literal", Raw: raw, Pos: start}
	}
	return Token{Type: TokenNumber, Literal: raw, Raw: raw, Pos: start}
}

func validRefName(name string) bool {
	if !isIdentStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isIdentPart(name[i]) && name[i] != '.' {
			return false
		}
	}
	return true
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool { return isIdentStart(ch) || isDigit(ch) }

func quoteChar(s string) string { return "'" + s + "'" }
