package internal

import (
	"strings"

	"go.uber.org/zap"
)

// knownTags are the tag names the lexer treats as structure. Any other
// angle-bracket text is passed through as plain text.
var knownTags = map[string]bool{
	TagSystem:       true,
	TagUser:         true,
	TagAssistant:    true,
	TagTool:         true,
	TagMessage:      true,
	TagContentText:  true,
	TagContentImage: true,
	TagToolCall:     true,
	TagPrompt:       true,
	TagStep:         true,
}

// Lexer tokenizes template source into a token stream. Lexical errors are
// collected and scanning continues after the offending construct.
type Lexer struct {
	source string
	base   int // Offset of source[0] in the document
	pos    int // Current byte position
	line   int // Current line (1-indexed)
	column int // Current column (1-indexed)
	errors []*ParseError
	logger *zap.Logger
}

// NewLexer creates a new lexer. base is the position of source[0] inside
// the full document, which matters when frontmatter has been stripped.
func NewLexer(source string, base Position, logger *zap.Logger) *Lexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if base.Line == 0 {
		base = Position{Line: 1, Column: 1}
	}
	logger.Debug(LogMsgLexerCreated, zap.Int(LogFieldSource, len(source)))
	return &Lexer{
		source: source,
		base:   base.Offset,
		line:   base.Line,
		column: base.Column,
		logger: logger,
	}
}

// Errors returns the lexical errors collected during Tokenize
func (l *Lexer) Errors() []*ParseError {
	return l.errors
}

// Tokenize processes the whole source and returns the token stream
func (l *Lexer) Tokenize() []Token {
	l.logger.Debug(LogMsgTokenizerStart)
	var tokens []Token
	var text strings.Builder
	textPos := l.currentPosition()

	flushText := func() {
		if text.Len() > 0 {
			tokens = append(tokens, Token{Type: TokenTypeText, Value: text.String(), Position: textPos})
			text.Reset()
		}
	}

	for !l.isAtEnd() {
		if text.Len() == 0 {
			textPos = l.currentPosition()
		}

		if l.matchStr(StrEscapeOpen) {
			l.advanceN(len(StrEscapeOpen))
			text.WriteString(StrOpenDelim)
			continue
		}

		if l.matchStr(StrOpenDelim) {
			flushText()
			if tok, ok := l.scanInterpolation(); ok {
				tokens = append(tokens, tok)
			}
			continue
		}

		if l.peek() == CharLessThan && l.atKnownTag() {
			flushText()
			if tok, ok := l.scanTag(); ok {
				tokens = append(tokens, tok)
				continue
			}
			// unparseable tag: keep the angle bracket as text and move on
			textPos = l.currentPosition()
			text.WriteByte(l.advance())
			continue
		}

		text.WriteByte(l.advance())
	}
	flushText()

	tokens = append(tokens, Token{Type: TokenTypeEOF, Position: l.currentPosition()})
	l.logger.Debug(LogMsgTokenizerEnd,
		zap.Int(LogFieldTokens, len(tokens)),
		zap.Int(LogFieldErrors, len(l.errors)))
	return tokens
}

// scanInterpolation consumes `{{ expr }}` starting at the open delimiter
func (l *Lexer) scanInterpolation() (Token, bool) {
	start := l.currentPosition()
	l.advanceN(len(StrOpenDelim))
	valuePos := l.currentPosition()

	expr, ok := l.scanExpressionBody()
	if !ok {
		l.addError(ErrMsgUnterminatedInterpolation, start)
		return Token{}, false
	}
	if strings.TrimSpace(expr) == "" {
		l.addError(ErrMsgEmptyInterpolation, start)
		return Token{}, false
	}
	return Token{
		Type:     TokenTypeInterpolation,
		Value:    expr,
		Position: start,
		ValuePos: valuePos,
	}, true
}

// scanExpressionBody reads up to the matching `}}`, tracking nested braces
// and string literals so object literals do not close the interpolation.
// On success the closing delimiter is consumed.
func (l *Lexer) scanExpressionBody() (string, bool) {
	var sb strings.Builder
	depth := 0
	for !l.isAtEnd() {
		ch := l.peek()
		switch {
		case ch == CharDoubleQuote || ch == CharSingleQuote || ch == CharBacktick:
			lit, ok := l.scanQuoted(ch)
			sb.WriteString(lit)
			if !ok {
				return "", false
			}
			continue
		case depth == 0 && l.matchStr(StrCloseDelim):
			l.advanceN(len(StrCloseDelim))
			return sb.String(), true
		case ch == CharOpenBrace:
			depth++
		case ch == CharCloseBrace && depth > 0:
			depth--
		}
		sb.WriteByte(l.advance())
	}
	return "", false
}

// scanQuoted copies a quoted literal verbatim (quotes and escapes included)
func (l *Lexer) scanQuoted(quote byte) (string, bool) {
	var sb strings.Builder
	sb.WriteByte(l.advance())
	for !l.isAtEnd() {
		ch := l.advance()
		sb.WriteByte(ch)
		if ch == CharBackslash && !l.isAtEnd() {
			sb.WriteByte(l.advance())
			continue
		}
		if ch == quote {
			return sb.String(), true
		}
	}
	return sb.String(), false
}

// atKnownTag reports whether the `<` under the cursor starts a structural tag
func (l *Lexer) atKnownTag() bool {
	i := l.pos + 1
	if i < len(l.source) && l.source[i] == CharSlash {
		i++
	}
	j := i
	for j < len(l.source) && isTagNameChar(l.source[j]) {
		j++
	}
	if j == i || !knownTags[l.source[i:j]] {
		return false
	}
	if j == len(l.source) {
		return true
	}
	next := l.source[j]
	return next == CharGreaterThan || next == CharSlash || isSpace(next)
}

// scanTag consumes an opening, closing or self-closing structural tag.
// On failure the cursor is restored so the caller can emit text instead.
func (l *Lexer) scanTag() (Token, bool) {
	saved := l.snapshot()
	start := l.currentPosition()
	l.advance() // <

	closing := false
	if l.peek() == CharSlash {
		closing = true
		l.advance()
	}
	name := l.scanTagName()

	if closing {
		l.skipWhitespace()
		if l.peek() != CharGreaterThan {
			l.addError(ErrMsgUnterminatedTag, start)
			l.restore(saved)
			return Token{}, false
		}
		l.advance()
		return Token{Type: TokenTypeTagClose, Value: name, Position: start}, true
	}

	tok := Token{Type: TokenTypeTagOpen, Value: name, Position: start}
	for {
		l.skipWhitespace()
		if l.isAtEnd() {
			l.addError(ErrMsgUnterminatedTag, start)
			l.restore(saved)
			return Token{}, false
		}
		if l.matchStr(StrSelfClose) {
			l.advanceN(len(StrSelfClose))
			tok.SelfClosing = true
			return tok, true
		}
		if l.peek() == CharGreaterThan {
			l.advance()
			return tok, true
		}
		attr, ok := l.scanAttribute()
		if !ok {
			l.restore(saved)
			return Token{}, false
		}
		tok.Attrs = append(tok.Attrs, attr)
	}
}

// scanAttribute reads name, name="v", name='v' or name={{ expr }}
func (l *Lexer) scanAttribute() (RawAttr, bool) {
	attr := RawAttr{Position: l.currentPosition(), Kind: AttrKindBare}
	if !isTagNameStart(l.peek()) {
		l.addError(ErrMsgUnexpectedChar, l.currentPosition())
		return attr, false
	}
	attr.Name = l.scanTagName()

	l.skipWhitespace()
	if l.peek() != CharEquals {
		return attr, true
	}
	l.advance()
	l.skipWhitespace()
	attr.ValuePos = l.currentPosition()

	switch ch := l.peek(); {
	case ch == CharDoubleQuote || ch == CharSingleQuote:
		l.advance()
		var sb strings.Builder
		for !l.isAtEnd() && l.peek() != ch {
			if l.peek() == CharBackslash && l.pos+1 < len(l.source) && l.source[l.pos+1] == ch {
				l.advance()
			}
			sb.WriteByte(l.advance())
		}
		if l.isAtEnd() {
			l.addError(ErrMsgUnterminatedStr, attr.ValuePos)
			return attr, false
		}
		l.advance()
		attr.Kind = AttrKindString
		attr.Value = sb.String()
		return attr, true
	case l.matchStr(StrOpenDelim):
		l.advanceN(len(StrOpenDelim))
		attr.ValuePos = l.currentPosition()
		expr, ok := l.scanExpressionBody()
		if !ok {
			l.addError(ErrMsgUnterminatedInterpolation, attr.Position)
			return attr, false
		}
		if strings.TrimSpace(expr) == "" {
			l.addError(ErrMsgEmptyInterpolation, attr.Position)
			return attr, false
		}
		attr.Kind = AttrKindExpr
		attr.Value = expr
		return attr, true
	default:
		l.addError(ErrMsgUnexpectedChar, l.currentPosition())
		return attr, false
	}
}

func (l *Lexer) scanTagName() string {
	start := l.pos
	for !l.isAtEnd() && isTagNameChar(l.peek()) {
		l.advance()
	}
	return l.source[start:l.pos]
}

// Helper methods

type lexerSnapshot struct {
	pos, line, column int
}

func (l *Lexer) snapshot() lexerSnapshot {
	return lexerSnapshot{pos: l.pos, line: l.line, column: l.column}
}

func (l *Lexer) restore(s lexerSnapshot) {
	l.pos, l.line, l.column = s.pos, s.line, s.column
}

func (l *Lexer) addError(msg string, pos Position) {
	l.errors = append(l.errors, NewParseError(msg, pos))
}

func (l *Lexer) currentPosition() Position {
	return Position{Offset: l.base + l.pos, Line: l.line, Column: l.column}
}

func (l *Lexer) isAtEnd() bool {
	return l.pos >= len(l.source)
}

func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) advance() byte {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	l.pos++
	if ch == CharNewline {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return ch
}

func (l *Lexer) advanceN(n int) {
	for i := 0; i < n && !l.isAtEnd(); i++ {
		l.advance()
	}
}

func (l *Lexer) matchStr(s string) bool {
	return strings.HasPrefix(l.source[l.pos:], s)
}

func (l *Lexer) skipWhitespace() {
	for !l.isAtEnd() && isSpace(l.peek()) {
		l.advance()
	}
}

// Character classification helpers

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isSpace(ch byte) bool {
	return ch == CharSpace || ch == CharTab || ch == CharNewline || ch == CharCarriageRet
}

func isTagNameStart(ch byte) bool {
	return isLetter(ch) || ch == '_'
}

func isTagNameChar(ch byte) bool {
	return isLetter(ch) || isDigit(ch) || ch == '_' || ch == '-' || ch == '.' || ch == ':'
}
