package internal

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

type frameKind int

const (
	frameIf frameKind = iota
	frameFor
	frameTag
)

// frame is an open construct on the parser stack
type frame struct {
	kind frameKind
	tag  string
	role string // static role of message frames, "" when dynamic
}

// Parser builds an AST from tokens. Errors are collected and parsing
// continues, so one pass reports every problem in a document.
type Parser struct {
	tokens []Token
	pos    int
	frames []frame
	errors []*ParseError
	logger *zap.Logger
}

// NewParser creates a parser over a token stream
func NewParser(tokens []Token, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug(LogMsgParserCreated, zap.Int(LogFieldTokens, len(tokens)))
	return &Parser{tokens: tokens, logger: logger}
}

// ParseTemplate lexes and parses a template body. base is the position of
// body[0] in the original document.
func ParseTemplate(body string, base Position, logger *zap.Logger) (*RootNode, []*ParseError) {
	lexer := NewLexer(body, base, logger)
	tokens := lexer.Tokenize()
	parser := NewParser(tokens, logger)
	root := parser.Parse()
	errs := append(lexer.Errors(), parser.Errors()...)
	sort.SliceStable(errs, func(i, j int) bool {
		return errs[i].Position.Offset < errs[j].Position.Offset
	})
	return root, errs
}

// Parse consumes all tokens and returns the root node
func (p *Parser) Parse() *RootNode {
	p.logger.Debug(LogMsgParserStart)
	root := &RootNode{Children: p.parseNodes()}
	p.logger.Debug(LogMsgParserEnd,
		zap.Int(LogFieldNodes, len(root.Children)),
		zap.Int(LogFieldErrors, len(p.errors)))
	return root
}

// Errors returns the collected parse errors
func (p *Parser) Errors() []*ParseError {
	return p.errors
}

// parseNodes parses siblings until EOF or a terminator that belongs to an
// enclosing construct. The terminator is left unconsumed.
func (p *Parser) parseNodes() []Node {
	var nodes []Node
	for {
		tok := p.peek()
		switch tok.Type {
		case TokenTypeEOF:
			return nodes

		case TokenTypeText:
			p.advance()
			nodes = append(nodes, &TextNode{nodeBase: nodeBase{tok.Position}, Content: tok.Value})

		case TokenTypeInterpolation:
			keyword, rest, restOffset := splitKeyword(tok.Value)
			switch keyword {
			case KeywordIf:
				p.advance()
				nodes = append(nodes, p.parseIf(tok, rest, restOffset))
			case KeywordFor:
				p.advance()
				if n := p.parseFor(tok, rest, restOffset); n != nil {
					nodes = append(nodes, n)
				}
			case KeywordElse, KeywordEndIf, KeywordEndFor:
				if p.terminates(keyword) {
					return nodes
				}
				p.advance()
				p.addErrorDetail(ErrMsgUnexpectedKeyword, keyword, tok.Position)
			case KeywordIn, KeywordAs:
				p.advance()
				p.addErrorDetail(ErrMsgUnexpectedKeyword, keyword, tok.Position)
			default:
				p.advance()
				if expr := p.parseExpr(tok.Value, tok.ValuePos); expr != nil {
					nodes = append(nodes, &InterpolationNode{nodeBase: nodeBase{tok.Position}, Source: tok.Value, Expr: expr})
				}
			}

		case TokenTypeTagOpen:
			p.advance()
			if n := p.parseTag(tok); n != nil {
				nodes = append(nodes, n)
			}

		case TokenTypeTagClose:
			if p.hasOpenTag(tok.Value) {
				return nodes
			}
			p.advance()
			p.addErrorDetail(ErrMsgUnexpectedCloseTag, tok.Value, tok.Position)
		}
	}
}

// terminates reports whether a control keyword closes an open construct
func (p *Parser) terminates(keyword string) bool {
	switch keyword {
	case KeywordElse:
		if len(p.frames) == 0 {
			return false
		}
		top := p.frames[len(p.frames)-1]
		return top.kind == frameIf || top.kind == frameFor
	case KeywordEndIf:
		return p.hasFrame(frameIf)
	case KeywordEndFor:
		return p.hasFrame(frameFor)
	}
	return false
}

func (p *Parser) parseIf(open Token, cond string, condOffset int) Node {
	p.push(frame{kind: frameIf})
	defer p.pop()

	node := &IfNode{nodeBase: nodeBase{open.Position}}
	branch := IfBranch{
		Condition: p.parseExpr(cond, open.ValuePos.Advance(open.Value, condOffset)),
		Position:  open.Position,
	}
	seenElse := false

	for {
		branch.Children = p.parseNodes()
		node.Branches = append(node.Branches, branch)

		tok := p.peek()
		keyword, rest, restOffset := "", "", 0
		if tok.Type == TokenTypeInterpolation {
			keyword, rest, restOffset = splitKeyword(tok.Value)
		}
		switch keyword {
		case KeywordElse:
			p.advance()
			if seenElse {
				p.addError(ErrMsgElseAfterElse, tok.Position)
			}
			branch = IfBranch{Position: tok.Position}
			if kw, cond, off := splitKeyword(rest); kw == KeywordIf {
				branch.Condition = p.parseExpr(cond, tok.ValuePos.Advance(tok.Value, restOffset+off))
			} else {
				if strings.TrimSpace(rest) != "" {
					p.addErrorDetail(ErrMsgUnexpectedKeyword, rest, tok.Position)
				}
				seenElse = true
			}
			continue
		case KeywordEndIf:
			p.advance()
			return node
		}
		p.addErrorDetail(ErrMsgUnclosedBlock, KeywordIf, open.Position)
		return node
	}
}

func (p *Parser) parseFor(open Token, header string, headerOffset int) Node {
	node := &ForNode{nodeBase: nodeBase{open.Position}}
	ok := p.parseForHeader(node, header, open.ValuePos.Advance(open.Value, headerOffset))

	p.push(frame{kind: frameFor})
	defer p.pop()

	node.Body = p.parseNodes()
	inElse := false
	for {
		tok := p.peek()
		keyword := ""
		if tok.Type == TokenTypeInterpolation {
			keyword, _, _ = splitKeyword(tok.Value)
		}
		switch keyword {
		case KeywordElse:
			p.advance()
			if inElse {
				p.addError(ErrMsgElseAfterElse, tok.Position)
			}
			inElse = true
			node.Else = append(node.Else, p.parseNodes()...)
			continue
		case KeywordEndFor:
			p.advance()
		default:
			p.addErrorDetail(ErrMsgUnclosedBlock, KeywordFor, open.Position)
		}
		if !ok {
			return nil
		}
		return node
	}
}

// parseForHeader accepts `item[, index] in expr` and `expr as item[, index]`
func (p *Parser) parseForHeader(node *ForNode, header string, base Position) bool {
	tokens, err := NewExprTokenizer(header).Tokenize()
	if err != nil {
		p.addExprError(err, header, base)
		return false
	}

	isIdent := func(i int) bool { return i < len(tokens) && tokens[i].Type == ExprTokenIdent }
	isPunct := func(i int, v string) bool {
		return i < len(tokens) && tokens[i].Type == ExprTokenPunct && tokens[i].Value == v
	}
	isIn := func(i int) bool { return isIdent(i) && tokens[i].Value == KeywordIn }

	var vars []ExprToken
	var collection ExprNode
	switch {
	case isIdent(0) && isIn(1):
		vars = tokens[:1]
		collection = p.parseExprTokens(tokens[2:], header, base)
	case isIdent(0) && isPunct(1, ",") && isIdent(2) && isIn(3):
		vars = []ExprToken{tokens[0], tokens[2]}
		collection = p.parseExprTokens(tokens[4:], header, base)
	default:
		parser := NewExprParser(tokens)
		expr, err := parser.Parse()
		if err != nil {
			p.addExprError(err, header, base)
			return false
		}
		rest := parser.Remaining()
		switch {
		case len(rest) == 3 && rest[0].Value == KeywordAs && rest[1].Type == ExprTokenIdent:
			vars = rest[1:2]
		case len(rest) == 5 && rest[0].Value == KeywordAs && rest[1].Type == ExprTokenIdent &&
			rest[2].Value == "," && rest[3].Type == ExprTokenIdent:
			vars = []ExprToken{rest[1], rest[3]}
		default:
			p.addError(ErrMsgInvalidForHeader, base)
			return false
		}
		collection = expr
	}
	if collection == nil {
		return false
	}

	for _, v := range vars {
		if !IsIdentifier(v.Value) {
			p.addErrorDetail(ErrMsgReservedLoopVar, v.Value, base.Advance(header, v.Offset))
			return false
		}
	}
	node.Item = vars[0].Value
	if len(vars) > 1 {
		node.Index = vars[1].Value
	}
	node.Collection = collection
	return true
}

func (p *Parser) parseTag(tok Token) Node {
	attrs := p.parseAttributes(tok.Attrs)
	name := tok.Value
	base := nodeBase{tok.Position}

	var node Node
	var children *[]Node
	fr := frame{kind: frameTag, tag: name}

	switch name {
	case TagSystem, TagUser, TagAssistant, TagTool, TagMessage:
		if p.hasTag(isMessageTag) {
			p.addErrorDetail(ErrMsgNestedMessage, name, tok.Position)
		}
		msg := &MessageNode{nodeBase: base, Tag: name, Attrs: attrs}
		p.checkRole(msg, tok.Position)
		fr.role, _ = msg.StaticRole()
		node, children = msg, &msg.Children

	case TagContentText, TagContentImage, TagToolCall:
		if p.hasTag(isContentTag) {
			p.addErrorDetail(ErrMsgContentInContent, name, tok.Position)
		}
		kind := contentKinds[name]
		if kind == ContentKindToolCall {
			if role, ok := p.enclosingRole(); ok && role != RoleAssistant {
				p.addError(ErrMsgToolCallOutside, tok.Position)
			}
		}
		content := &ContentNode{nodeBase: base, Kind: kind, Attrs: attrs}
		node, children = content, &content.Children

	case TagPrompt:
		ref := &ReferenceNode{nodeBase: base}
		for _, a := range attrs {
			if a.Name == AttrPath {
				ref.Path = a
			} else {
				ref.Attrs = append(ref.Attrs, a)
			}
		}
		if ref.Path.Name == "" {
			p.addError(ErrMsgReferenceNeedsPath, tok.Position)
			node = nil
		} else {
			node = ref
		}
		if !tok.SelfClosing {
			p.addError(ErrMsgReferenceNotClosed, tok.Position)
			var discard []Node
			children = &discard
		}

	case TagStep:
		if p.hasTag(func(t string) bool { return t == TagStep }) {
			p.addError(ErrMsgNestedStep, tok.Position)
		}
		if p.hasTag(isMessageTag) {
			p.addError(ErrMsgStepInMessage, tok.Position)
		}
		step := &StepNode{nodeBase: base}
		for _, a := range attrs {
			switch a.Name {
			case AttrIsolated:
				step.Isolated = a.Kind == AttrKindBare || (a.Kind == AttrKindString && a.Literal != KeywordFalse)
			case AttrAs:
				if a.Kind != AttrKindString || !IsIdentifier(a.Literal) {
					p.addError(ErrMsgStepAsInvalid, a.Position)
					continue
				}
				step.As = a.Literal
			default:
				step.Attrs = append(step.Attrs, a)
			}
		}
		node, children = step, &step.Children
	}

	if tok.SelfClosing || children == nil {
		return node
	}

	p.push(fr)
	*children = p.parseNodes()
	p.pop()

	if closing := p.peek(); closing.Type == TokenTypeTagClose && closing.Value == name {
		p.advance()
	} else {
		p.addErrorDetail(ErrMsgUnclosedBlock, name, tok.Position)
	}
	return node
}

var contentKinds = map[string]string{
	TagContentText:  ContentKindText,
	TagContentImage: ContentKindImage,
	TagToolCall:     ContentKindToolCall,
}

// checkRole validates the role of a <message> tag when it is static
func (p *Parser) checkRole(msg *MessageNode, pos Position) {
	if msg.Tag != TagMessage {
		return
	}
	attr, ok := msg.Attrs.Get(AttrRole)
	if !ok {
		p.addError(ErrMsgMessageRoleRequired, pos)
		return
	}
	if attr.Kind == AttrKindString && !IsValidRole(attr.Literal) {
		detail := attr.Literal
		if s := FormatSuggestions(FindSimilarStrings(attr.Literal, ValidRoles, MaxSuggestions)); s != "" {
			detail += ", " + s
		}
		p.addErrorDetail(ErrMsgInvalidRole, detail, attr.Position)
	}
}

// enclosingRole returns the static role of the innermost message, and
// ok=false when it is dynamic. Outside any message the role is "".
func (p *Parser) enclosingRole() (string, bool) {
	for i := len(p.frames) - 1; i >= 0; i-- {
		f := p.frames[i]
		if f.kind == frameTag && isMessageTag(f.tag) {
			return f.role, f.role != ""
		}
	}
	return "", true
}

func (p *Parser) parseAttributes(raw []RawAttr) Attributes {
	attrs := make(Attributes, 0, len(raw))
	for _, r := range raw {
		attr := Attribute{Name: r.Name, Kind: r.Kind, Position: r.Position}
		switch r.Kind {
		case AttrKindExpr:
			attr.Expr = p.parseExpr(r.Value, r.ValuePos)
			if attr.Expr == nil {
				continue
			}
		case AttrKindString:
			attr.Literal = r.Value
		}
		attrs = append(attrs, attr)
	}
	return attrs
}

// parseExpr parses expression source, recording an error and returning
// nil on failure
func (p *Parser) parseExpr(source string, base Position) ExprNode {
	expr, err := ParseExpression(source)
	if err != nil {
		p.addExprError(err, source, base)
		return nil
	}
	return expr
}

func (p *Parser) parseExprTokens(tokens []ExprToken, source string, base Position) ExprNode {
	expr, err := NewExprParser(tokens).ParseAll()
	if err != nil {
		p.addExprError(err, source, base)
		return nil
	}
	return expr
}

func (p *Parser) addExprError(err error, source string, base Position) {
	if se, ok := err.(*ExprSyntaxError); ok {
		p.errors = append(p.errors, NewParseErrorWithDetail(se.Message, se.Token, base.Advance(source, se.Offset)))
		return
	}
	p.errors = append(p.errors, NewParseErrorWithDetail(ErrMsgExprUnexpectedToken, err.Error(), base))
}

// splitKeyword splits a leading control keyword off an interpolation body.
// offset is where rest starts inside s.
func splitKeyword(s string) (keyword, rest string, offset int) {
	i := 0
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	j := i
	for j < len(s) && isIdentChar(s[j]) {
		j++
	}
	switch word := s[i:j]; word {
	case KeywordIf, KeywordElse, KeywordEndIf, KeywordFor, KeywordEndFor, KeywordIn, KeywordAs:
		if j < len(s) && !isSpace(s[j]) {
			// `if(x)` style is still a keyword, `ifx` never reaches here
			if word != KeywordIf || s[j] != '(' {
				return "", s, 0
			}
		}
		return word, s[j:], j
	}
	return "", s, 0
}

func isMessageTag(tag string) bool {
	switch tag {
	case TagSystem, TagUser, TagAssistant, TagTool, TagMessage:
		return true
	}
	return false
}

func isContentTag(tag string) bool {
	_, ok := contentKinds[tag]
	return ok
}

func (p *Parser) push(f frame) {
	p.frames = append(p.frames, f)
}

func (p *Parser) pop() {
	p.frames = p.frames[:len(p.frames)-1]
}

func (p *Parser) hasFrame(kind frameKind) bool {
	for _, f := range p.frames {
		if f.kind == kind {
			return true
		}
	}
	return false
}

func (p *Parser) hasTag(match func(string) bool) bool {
	for _, f := range p.frames {
		if f.kind == frameTag && match(f.tag) {
			return true
		}
	}
	return false
}

func (p *Parser) hasOpenTag(name string) bool {
	return p.hasTag(func(t string) bool { return t == name })
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenTypeEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) addError(msg string, pos Position) {
	p.errors = append(p.errors, NewParseError(msg, pos))
}

func (p *Parser) addErrorDetail(msg, detail string, pos Position) {
	p.errors = append(p.errors, NewParseErrorWithDetail(msg, detail, pos))
}
