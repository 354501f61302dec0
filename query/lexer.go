package query

import (
	"strings"
	"unicode"
)

// Lexer tokenizes SQL-style expressions
type Lexer struct {
	input []rune
	pos   int
	ch    rune
}

// NewLexer creates a new lexer
func NewLexer(input string) *Lexer {
	l := &Lexer{input: []rune(input)}
	l.readChar()
	return l
}

// readChar reads the next character
func (l *Lexer) readChar() {
	if l.pos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.pos]
	}
	l.pos++
}

// peekChar looks at the next character without advancing
func (l *Lexer) peekChar() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

// skipWhitespace skips whitespace characters
func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// readString reads a quoted string. A doubled quote inside the literal
// stands for the quote itself, as in SQL.
func (l *Lexer) readString(quote rune) (string, bool) {
	var result strings.Builder
	l.readChar() // skip opening quote

	for {
		switch {
		case l.ch == 0:
			return result.String(), false
		case l.ch == quote && l.peekChar() == quote:
			result.WriteRune(quote)
			l.readChar()
		case l.ch == quote:
			l.readChar() // skip closing quote
			return result.String(), true
		case l.ch == '\\' && quote == '\'':
			l.readChar()
			switch l.ch {
			case 'n':
				result.WriteRune('\n')
			case 't':
				result.WriteRune('\t')
			case 0:
				return result.String(), false
			default:
				result.WriteRune(l.ch)
			}
		default:
			result.WriteRune(l.ch)
		}
		l.readChar()
	}
}

// readNumber reads an unsigned number, with optional fraction and exponent
func (l *Lexer) readNumber() string {
	var result strings.Builder
	for unicode.IsDigit(l.ch) || l.ch == '.' {
		result.WriteRune(l.ch)
		l.readChar()
	}
	if l.ch == 'e' || l.ch == 'E' {
		result.WriteRune(l.ch)
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			result.WriteRune(l.ch)
			l.readChar()
		}
		for unicode.IsDigit(l.ch) {
			result.WriteRune(l.ch)
			l.readChar()
		}
	}
	return result.String()
}

// readIdentifier reads an identifier or keyword, including qualified
// names such as "o.amount"
func (l *Lexer) readIdentifier() string {
	var result strings.Builder
	for unicode.IsLetter(l.ch) || unicode.IsDigit(l.ch) || l.ch == '_' || l.ch == '.' {
		result.WriteRune(l.ch)
		l.readChar()
	}
	return result.String()
}

// twoChar emits a two-character operator when the next character matches.
func (l *Lexer) twoChar(next rune, two Token, one Token) Token {
	if l.peekChar() == next {
		l.readChar()
		l.readChar()
		return two
	}
	l.readChar()
	return one
}

// NextToken returns the next token
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	var tok Token

	switch l.ch {
	case 0:
		tok = Token{Type: TokenEOF, Value: ""}
	case '=':
		tok = l.twoChar('=', Token{Type: TokenEqual, Value: "=="}, Token{Type: TokenEqual, Value: "="})
	case '!':
		tok = l.twoChar('=', Token{Type: TokenNotEqual, Value: "!="}, Token{Type: TokenOperator, Value: "!"})
	case '<':
		switch l.peekChar() {
		case '=':
			l.readChar()
			tok = Token{Type: TokenLessEqual, Value: "<="}
		case '>':
			l.readChar()
			tok = Token{Type: TokenNotEqual, Value: "<>"}
		default:
			tok = Token{Type: TokenLess, Value: "<"}
		}
		l.readChar()
	case '>':
		tok = l.twoChar('=', Token{Type: TokenGreaterEqual, Value: ">="}, Token{Type: TokenGreater, Value: ">"})
	case '&':
		tok = l.twoChar('&', Token{Type: TokenAnd, Value: "&&"}, Token{Type: TokenError, Value: "&"})
	case '|':
		tok = l.twoChar('|', Token{Type: TokenOr, Value: "||"}, Token{Type: TokenError, Value: "|"})
	case '\'':
		value, ok := l.readString('\'')
		if !ok {
			return Token{Type: TokenError, Value: "unterminated string"}
		}
		tok = Token{Type: TokenString, Value: value}
	case '"', '`':
		value, ok := l.readString(l.ch)
		if !ok {
			return Token{Type: TokenError, Value: "unterminated quoted identifier"}
		}
		tok = Token{Type: TokenQuotedIdent, Value: value}
	case '+', '-', '*', '/', '%', '?', ':':
		tok = Token{Type: TokenOperator, Value: string(l.ch)}
		l.readChar()
	case ',':
		tok = Token{Type: TokenComma, Value: ","}
		l.readChar()
	case '(':
		tok = Token{Type: TokenLeftParen, Value: "("}
		l.readChar()
	case ')':
		tok = Token{Type: TokenRightParen, Value: ")"}
		l.readChar()
	case '[':
		tok = Token{Type: TokenLeftBracket, Value: "["}
		l.readChar()
	case ']':
		tok = Token{Type: TokenRightBracket, Value: "]"}
		l.readChar()
	default:
		if unicode.IsDigit(l.ch) || (l.ch == '.' && unicode.IsDigit(l.peekChar())) {
			tok = Token{Type: TokenNumber, Value: l.readNumber()}
		} else if unicode.IsLetter(l.ch) || l.ch == '_' {
			value := l.readIdentifier()
			tok = Token{Type: identifierType(value), Value: value}
		} else {
			tok = Token{Type: TokenError, Value: string(l.ch)}
			l.readChar()
		}
	}

	return tok
}

// identifierType determines if an identifier is a keyword
func identifierType(ident string) TokenType {
	keywords := map[string]TokenType{
		"and":     TokenAnd,
		"or":      TokenOr,
		"not":     TokenNot,
		"in":      TokenIn,
		"like":    TokenLike,
		"between": TokenBetween,
		"is":      TokenIs,
		"null":    TokenNull,
		"true":    TokenBool,
		"false":   TokenBool,
	}

	if tokType, ok := keywords[strings.ToLower(ident)]; ok {
		return tokType
	}
	return TokenIdent
}

// Tokenize returns all tokens from the input
func Tokenize(input string) []Token {
	lexer := NewLexer(input)
	var tokens []Token

	for {
		tok := lexer.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}

	return tokens
}
