package internal

import (
	"strconv"
	"strings"
)

// ExprTokenType identifies expression token kinds
type ExprTokenType int

// Expression token types
const (
	ExprTokenEOF ExprTokenType = iota
	ExprTokenNumber
	ExprTokenString
	ExprTokenIdent
	ExprTokenPunct
)

// ExprToken is a single expression token. Offset is the byte offset of the
// token inside the expression source.
type ExprToken struct {
	Type   ExprTokenType
	Value  string
	Number float64
	Offset int
}

// punctuators is ordered longest first so the tokenizer can match greedily
var punctuators = []string{
	">>>=",
	"===", "!==", ">>>", "<<=", ">>=", "**=",
	"==", "!=", "<=", ">=", "&&", "||", "??", "?.", "<<", ">>", "**",
	"+=", "-=", "*=", "/=", "%=", "|=", "^=", "&=", "++", "--",
	"+", "-", "*", "/", "%", "<", ">", "=", "!", "~", "&", "|", "^",
	"?", ":", ".", ",", "(", ")", "[", "]", "{", "}",
}

// ExprTokenizer splits expression source into tokens
type ExprTokenizer struct {
	input string
	pos   int
}

// NewExprTokenizer creates a tokenizer for the given expression source
func NewExprTokenizer(input string) *ExprTokenizer {
	return &ExprTokenizer{input: input}
}

// Tokenize returns all tokens, terminated by an EOF token
func (t *ExprTokenizer) Tokenize() ([]ExprToken, error) {
	var tokens []ExprToken
	for {
		t.skipWhitespace()
		if t.pos >= len(t.input) {
			tokens = append(tokens, ExprToken{Type: ExprTokenEOF, Offset: t.pos})
			return tokens, nil
		}
		tok, err := t.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
}

func (t *ExprTokenizer) next() (ExprToken, error) {
	start := t.pos
	ch := t.input[t.pos]

	switch {
	case isDigit(ch) || (ch == '.' && t.pos+1 < len(t.input) && isDigit(t.input[t.pos+1])):
		return t.scanNumber()
	case ch == CharDoubleQuote || ch == CharSingleQuote || ch == CharBacktick:
		return t.scanString(ch)
	case isIdentStart(ch):
		for t.pos < len(t.input) && isIdentChar(t.input[t.pos]) {
			t.pos++
		}
		return ExprToken{Type: ExprTokenIdent, Value: t.input[start:t.pos], Offset: start}, nil
	}

	for _, p := range punctuators {
		if strings.HasPrefix(t.input[t.pos:], p) {
			// `?.` followed by a digit is a ternary, not optional chaining
			if p == "?." && t.pos+2 < len(t.input) && isDigit(t.input[t.pos+2]) {
				continue
			}
			t.pos += len(p)
			return ExprToken{Type: ExprTokenPunct, Value: p, Offset: start}, nil
		}
	}
	return ExprToken{}, &ExprSyntaxError{Message: ErrMsgExprInvalidChar, Token: string(ch), Offset: start}
}

func (t *ExprTokenizer) scanNumber() (ExprToken, error) {
	start := t.pos
	if strings.HasPrefix(t.input[t.pos:], "0x") || strings.HasPrefix(t.input[t.pos:], "0X") {
		t.pos += 2
		for t.pos < len(t.input) && isHexDigit(t.input[t.pos]) {
			t.pos++
		}
		n, err := strconv.ParseInt(t.input[start+2:t.pos], 16, 64)
		if err != nil {
			return ExprToken{}, &ExprSyntaxError{Message: ErrMsgExprInvalidNumber, Token: t.input[start:t.pos], Offset: start}
		}
		return ExprToken{Type: ExprTokenNumber, Value: t.input[start:t.pos], Number: float64(n), Offset: start}, nil
	}

	for t.pos < len(t.input) && (isDigit(t.input[t.pos]) || t.input[t.pos] == '.' || t.input[t.pos] == '_') {
		t.pos++
	}
	if t.pos < len(t.input) && (t.input[t.pos] == 'e' || t.input[t.pos] == 'E') {
		t.pos++
		if t.pos < len(t.input) && (t.input[t.pos] == '+' || t.input[t.pos] == '-') {
			t.pos++
		}
		for t.pos < len(t.input) && isDigit(t.input[t.pos]) {
			t.pos++
		}
	}
	text := t.input[start:t.pos]
	n, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
	if err != nil {
		return ExprToken{}, &ExprSyntaxError{Message: ErrMsgExprInvalidNumber, Token: text, Offset: start}
	}
	return ExprToken{Type: ExprTokenNumber, Value: text, Number: n, Offset: start}, nil
}

func (t *ExprTokenizer) scanString(quote byte) (ExprToken, error) {
	start := t.pos
	t.pos++
	var sb strings.Builder
	for t.pos < len(t.input) {
		ch := t.input[t.pos]
		if ch == quote {
			t.pos++
			return ExprToken{Type: ExprTokenString, Value: sb.String(), Offset: start}, nil
		}
		if ch == CharBackslash && t.pos+1 < len(t.input) {
			t.pos++
			sb.WriteByte(unescape(t.input[t.pos]))
			t.pos++
			continue
		}
		sb.WriteByte(ch)
		t.pos++
	}
	return ExprToken{}, &ExprSyntaxError{Message: ErrMsgExprUnterminatedStr, Offset: start}
}

func (t *ExprTokenizer) skipWhitespace() {
	for t.pos < len(t.input) && isSpace(t.input[t.pos]) {
		t.pos++
	}
}

func unescape(ch byte) byte {
	switch ch {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '0':
		return 0
	default:
		return ch
	}
}

func isIdentStart(ch byte) bool {
	return isLetter(ch) || ch == '_' || ch == '$'
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

// IsIdentifier reports whether s is a syntactically valid, non-reserved identifier
func IsIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return !IsReservedWord(s)
}
