package internal

import "fmt"

// Position represents a location in the source template
type Position struct {
	Offset int // Byte offset from start
	Line   int // 1-indexed line number
	Column int // 1-indexed column number
}

// String returns a human-readable position string
func (p Position) String() string {
	return fmt.Sprintf("line %d, column %d", p.Line, p.Column)
}

// Advance returns the position reached after consuming the first n bytes of text
func (p Position) Advance(text string, n int) Position {
	if n > len(text) {
		n = len(text)
	}
	for i := 0; i < n; i++ {
		p.Offset++
		if text[i] == CharNewline {
			p.Line++
			p.Column = 1
		} else {
			p.Column++
		}
	}
	return p
}

// AttrKind describes how an attribute value was written
type AttrKind int

// Attribute value kinds
const (
	AttrKindString AttrKind = iota // name="text" or name='text'
	AttrKindExpr                   // name={{ expr }}
	AttrKindBare                   // name
)

// RawAttr is an attribute as written in the source, before expression parsing
type RawAttr struct {
	Name     string
	Kind     AttrKind
	Value    string
	Position Position // start of the attribute name
	ValuePos Position // start of the value text
}

// Token represents a lexical token produced by the lexer
type Token struct {
	Type        TokenType
	Value       string    // text, expression source, or tag name
	Position    Position  // start of the token
	ValuePos    Position  // start of Value inside the source (interpolations)
	Attrs       []RawAttr // TAG_OPEN only
	SelfClosing bool      // TAG_OPEN only
}

// String returns a human-readable representation of the token
func (t Token) String() string {
	if t.Value == "" {
		return fmt.Sprintf("Token{%s @ %s}", t.Type, t.Position)
	}
	return fmt.Sprintf("Token{%s: %q @ %s}", t.Type, t.Value, t.Position)
}

// IsEOF returns true if this is an end-of-file token
func (t Token) IsEOF() bool {
	return t.Type == TokenTypeEOF
}
