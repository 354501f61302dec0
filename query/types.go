package query

// TokenType represents the type of a token
type TokenType int

const (
	// Keywords
	TokenAnd TokenType = iota
	TokenOr
	TokenNot
	TokenIn
	TokenLike
	TokenBetween
	TokenIs
	TokenNull

	// Comparison operators
	TokenEqual        // = or ==
	TokenNotEqual     // != or <>
	TokenLess         // <
	TokenGreater      // >
	TokenLessEqual    // <=
	TokenGreaterEqual // >=

	// Other operators passed through unchanged: + - * / % ! && || ? : .
	TokenOperator

	// Literals
	TokenString
	TokenNumber
	TokenIdent
	TokenQuotedIdent // "name" or `name`
	TokenBool

	// Delimiters
	TokenComma        // ,
	TokenLeftParen    // (
	TokenRightParen   // )
	TokenLeftBracket  // [
	TokenRightBracket // ]

	// Special
	TokenEOF
	TokenError
)

// Token represents a lexical token
type Token struct {
	Type  TokenType
	Value string
}
