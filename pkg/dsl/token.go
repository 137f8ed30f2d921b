package dsl

import "fmt"

// TokenType identifies a lexical token.
type TokenType int

// Token types.
const (
	TokenEOF TokenType = iota
	TokenIllegal
	TokenIdent
	TokenString
	TokenNumber
	TokenRef
	TokenLParen
	TokenRParen
	TokenComma
	TokenDot
)

var tokenNames = map[TokenType]string{
	TokenEOF:     "end of input",
	TokenIllegal: "illegal",
	TokenIdent:   "identifier",
	TokenString:  "string",
	TokenNumber:  "number",
	TokenRef:     "expression reference",
	TokenLParen:  "'('",
	TokenRParen:  "')'",
	TokenComma:   "','",
	TokenDot:     "'.'",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token is a lexical token. Literal holds the decoded value for strings and
// the name for expression references; Raw holds the source text.
type Token struct {
	Type    TokenType
	Literal string
	Raw     string
	Pos     int
}
