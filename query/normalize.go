package query

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// celReserved lists words CEL does not accept as variable names.
var celReserved = map[string]bool{
	"as": true, "break": true, "const": true, "continue": true, "else": true,
	"for": true, "function": true, "if": true, "import": true, "let": true,
	"loop": true, "package": true, "namespace": true, "return": true,
	"var": true, "void": true, "while": true, "in": true, "null": true,
	"true": true, "false": true,
}

// binding ties a column name of the row to the identifier it is bound to
// in the normalized expression.
type binding struct {
	Column string
	Ident  string
}

// normalizer rewrites a SQL-style expression into CEL syntax.
type normalizer struct {
	tokens   []Token
	pos      int
	bindings []binding
	byColumn map[string]string
	taken    map[string]bool

	// exact keeps integer literals as CEL ints instead of doubles.
	exact bool
	// wide is set when an integer literal is not exactly representable
	// as a double.
	wide bool
}

// normalizeExpression converts SQL-style syntax into CEL. Column names that
// are not valid bare identifiers are bound to synthetic identifiers; known
// lists column names that may appear unquoted in expr.
func normalizeExpression(expr string, known []string) (string, []binding, error) {
	n, out, err := normalize(expr, known, false)
	if err != nil {
		return "", nil, err
	}
	return out, n.bindings, nil
}

func normalize(expr string, known []string, exact bool) (*normalizer, string, error) {
	tokens := Tokenize(quoteKnownNames(expr, known))
	n := &normalizer{
		tokens:   tokens,
		byColumn: make(map[string]string),
		taken:    make(map[string]bool),
		exact:    exact,
	}
	for _, tok := range tokens {
		switch tok.Type {
		case TokenError:
			return nil, "", fmt.Errorf("unexpected %q", tok.Value)
		case TokenIdent:
			n.taken[tok.Value] = true
		}
	}

	out, err := n.expr(func(t Token) bool { return false })
	if err != nil {
		return nil, "", err
	}
	if tok := n.peek(); tok.Type != TokenEOF {
		return nil, "", fmt.Errorf("unexpected %q", tok.Value)
	}
	return n, out, nil
}

// quoteKnownNames wraps unquoted occurrences of known column names that are
// not valid identifiers in backticks so the lexer reads them as one name.
func quoteKnownNames(expr string, known []string) string {
	var unsafe []string
	for _, name := range known {
		if name != "" && !identPattern.MatchString(name) && strings.ContainsAny(name, " -+*/%<>=!()[],'\"`") {
			unsafe = append(unsafe, name)
		}
	}
	if len(unsafe) == 0 {
		return expr
	}
	// longest first so overlapping names do not split each other
	sort.Slice(unsafe, func(i, j int) bool { return len(unsafe[i]) > len(unsafe[j]) })

	var b strings.Builder
	var quote rune
	runes := []rune(expr)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if quote != 0 {
			b.WriteRune(ch)
			if ch == quote {
				quote = 0
			}
			continue
		}
		if ch == '\'' || ch == '"' || ch == '`' {
			quote = ch
			b.WriteRune(ch)
			continue
		}
		matched := false
		for _, name := range unsafe {
			if strings.HasPrefix(string(runes[i:]), name) {
				b.WriteString("`" + name + "`")
				i += len([]rune(name)) - 1
				matched = true
				break
			}
		}
		if !matched {
			b.WriteRune(ch)
		}
	}
	return b.String()
}

func (n *normalizer) peek() Token {
	if n.pos >= len(n.tokens) {
		return Token{Type: TokenEOF}
	}
	return n.tokens[n.pos]
}

func (n *normalizer) next() Token {
	tok := n.peek()
	if n.pos < len(n.tokens) {
		n.pos++
	}
	return tok
}

func (n *normalizer) expect(t TokenType, what string) error {
	if tok := n.next(); tok.Type != t {
		return fmt.Errorf("expected %s, got %q", what, tok.Value)
	}
	return nil
}

// bind returns the identifier a column is referenced by in the output.
func (n *normalizer) bind(column string) string {
	if ident, ok := n.byColumn[column]; ok {
		return ident
	}
	ident := column
	if !identPattern.MatchString(column) || celReserved[column] {
		for i := len(n.byColumn); ; i++ {
			ident = fmt.Sprintf("_col%d", i)
			if !n.taken[ident] {
				break
			}
		}
	}
	n.taken[ident] = true
	n.byColumn[column] = ident
	n.bindings = append(n.bindings, binding{Column: column, Ident: ident})
	return ident
}

// expr translates tokens until stop matches or input ends.
func (n *normalizer) expr(stop func(Token) bool) (string, error) {
	var terms []string
	pop := func() (string, error) {
		if len(terms) == 0 {
			return "", fmt.Errorf("missing operand")
		}
		last := terms[len(terms)-1]
		terms = terms[:len(terms)-1]
		return last, nil
	}

	for {
		tok := n.peek()
		if tok.Type == TokenEOF || stop(tok) {
			break
		}
		n.next()

		switch tok.Type {
		case TokenAnd:
			terms = append(terms, "&&")
		case TokenOr:
			terms = append(terms, "||")
		case TokenEqual:
			terms = append(terms, "==")
		case TokenNotEqual:
			terms = append(terms, "!=")
		case TokenLess, TokenGreater, TokenLessEqual, TokenGreaterEqual, TokenOperator:
			terms = append(terms, tok.Value)
		case TokenNot:
			switch n.peek().Type {
			case TokenLike, TokenBetween, TokenIn:
				operand, err := pop()
				if err != nil {
					return "", err
				}
				term, err := n.postfix(n.next(), operand)
				if err != nil {
					return "", err
				}
				terms = append(terms, "!"+term)
			default:
				terms = append(terms, "!")
			}
		case TokenLike, TokenBetween, TokenIn, TokenIs:
			operand, err := pop()
			if err != nil {
				return "", err
			}
			term, err := n.postfix(tok, operand)
			if err != nil {
				return "", err
			}
			terms = append(terms, term)
		default:
			term, err := n.primary(tok)
			if err != nil {
				return "", err
			}
			terms = append(terms, term)
		}
	}
	return strings.Join(terms, " "), nil
}

// primary translates a literal, a name, a call, a list or a parenthesized
// group starting with tok.
func (n *normalizer) primary(tok Token) (string, error) {
	switch tok.Type {
	case TokenString:
		return strconv.Quote(tok.Value), nil
	case TokenNumber:
		return n.number(tok.Value), nil
	case TokenBool:
		return strings.ToLower(tok.Value), nil
	case TokenNull:
		return "null", nil
	case TokenQuotedIdent:
		return n.bind(tok.Value), nil
	case TokenIdent:
		if n.peek().Type != TokenLeftParen {
			return n.bind(tok.Value), nil
		}
		n.next()
		args, err := n.list(TokenRightParen)
		if err != nil {
			return "", err
		}
		if i := strings.LastIndexByte(tok.Value, '.'); i > 0 {
			// receiver-style call, e.g. name.startsWith('a')
			return fmt.Sprintf("%s.%s(%s)", n.bind(tok.Value[:i]), tok.Value[i+1:], args), nil
		}
		name := tok.Value
		if _, ok := sqlFunctionNames[strings.ToLower(name)]; ok {
			name = strings.ToLower(name)
		}
		return fmt.Sprintf("%s(%s)", name, args), nil
	case TokenLeftParen:
		inner, err := n.expr(func(t Token) bool { return t.Type == TokenRightParen })
		if err != nil {
			return "", err
		}
		if err := n.expect(TokenRightParen, ")"); err != nil {
			return "", err
		}
		return "(" + inner + ")", nil
	case TokenLeftBracket:
		items, err := n.list(TokenRightBracket)
		if err != nil {
			return "", err
		}
		return "[" + items + "]", nil
	default:
		return "", fmt.Errorf("unexpected %q", tok.Value)
	}
}

// list translates comma separated expressions up to the closing token.
func (n *normalizer) list(closing TokenType) (string, error) {
	var items []string
	if n.peek().Type == closing {
		n.next()
		return "", nil
	}
	for {
		item, err := n.expr(func(t Token) bool { return t.Type == TokenComma || t.Type == closing })
		if err != nil {
			return "", err
		}
		items = append(items, item)
		tok := n.next()
		if tok.Type == closing {
			return strings.Join(items, ", "), nil
		}
		if tok.Type != TokenComma {
			return "", fmt.Errorf("expected , or closing bracket, got %q", tok.Value)
		}
	}
}

// bound reads a BETWEEN bound: an optionally negated primary.
func (n *normalizer) bound() (string, error) {
	tok := n.next()
	if tok.Type == TokenOperator && (tok.Value == "-" || tok.Value == "+") {
		inner, err := n.primary(n.next())
		if err != nil {
			return "", err
		}
		return tok.Value + inner, nil
	}
	return n.primary(tok)
}

// postfix translates `operand LIKE|BETWEEN|IN|IS ...`.
func (n *normalizer) postfix(op Token, operand string) (string, error) {
	switch op.Type {
	case TokenBetween:
		lo, err := n.bound()
		if err != nil {
			return "", err
		}
		if err := n.expect(TokenAnd, "AND"); err != nil {
			return "", err
		}
		hi, err := n.bound()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s >= %s && %s <= %s)", operand, lo, operand, hi), nil
	case TokenLike:
		tok := n.next()
		if tok.Type != TokenString {
			return "", fmt.Errorf("LIKE expects a string pattern, got %q", tok.Value)
		}
		return likeToCEL(operand, tok.Value), nil
	case TokenIn:
		if err := n.expect(TokenLeftParen, "("); err != nil {
			return "", err
		}
		items, err := n.list(TokenRightParen)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s in [%s])", operand, items), nil
	case TokenIs:
		negate := false
		if n.peek().Type == TokenNot {
			n.next()
			negate = true
		}
		if err := n.expect(TokenNull, "NULL"); err != nil {
			return "", err
		}
		if negate {
			return fmt.Sprintf("(%s != null)", operand), nil
		}
		return fmt.Sprintf("(%s == null)", operand), nil
	}
	return "", fmt.Errorf("unexpected %q", op.Value)
}

// likeToCEL maps a LIKE pattern onto prefix, suffix and substring tests,
// falling back to a regular expression for anything else.
func likeToCEL(operand, pattern string) string {
	if !strings.Contains(pattern, "_") {
		inner := strings.Trim(pattern, "%")
		if !strings.Contains(inner, "%") {
			starts := strings.HasPrefix(pattern, "%")
			ends := strings.HasSuffix(pattern, "%") && len(pattern) > 1
			switch {
			case pattern == "%":
				return fmt.Sprintf("(%s != null)", operand)
			case starts && ends:
				return fmt.Sprintf("%s.contains(%s)", operand, strconv.Quote(inner))
			case starts:
				return fmt.Sprintf("%s.endsWith(%s)", operand, strconv.Quote(inner))
			case ends:
				return fmt.Sprintf("%s.startsWith(%s)", operand, strconv.Quote(inner))
			default:
				return fmt.Sprintf("(%s == %s)", operand, strconv.Quote(pattern))
			}
		}
	}

	var re strings.Builder
	re.WriteString("(?s)^")
	for _, ch := range pattern {
		switch ch {
		case '%':
			re.WriteString(".*")
		case '_':
			re.WriteString(".")
		default:
			re.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	re.WriteString("$")
	return fmt.Sprintf("%s.matches(%s)", operand, strconv.Quote(re.String()))
}

// number writes a numeric literal. Integer literals become doubles unless
// the normalizer runs in exact mode.
func (n *normalizer) number(s string) string {
	if strings.ContainsAny(s, ".eE") {
		return floatLiteral(s)
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil || !safeInteger(i) {
		n.wide = true
	}
	if n.exact {
		return s
	}
	return floatLiteral(s)
}

// floatLiteral writes a number as a CEL double literal.
func floatLiteral(s string) string {
	if strings.ContainsAny(s, ".eE") {
		if strings.HasPrefix(s, ".") {
			return "0" + s
		}
		if strings.HasSuffix(s, ".") {
			return s + "0"
		}
		return s
	}
	return s + ".0"
}
