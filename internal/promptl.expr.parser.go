package internal

// Binary operator precedence, higher binds tighter. Logical operators share
// the table but produce LogicalExpr nodes.
var binaryPrecedence = map[string]int{
	"??": 1, "||": 1,
	"&&": 2,
	"|":  3,
	"^":  4,
	"&":  5,
	"==": 6, "!=": 6, "===": 6, "!==": 6,
	"<": 7, "<=": 7, ">": 7, ">=": 7, "in": 7, "instanceof": 7,
	"<<": 8, ">>": 8, ">>>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10, "**": 10,
}

var logicalSymbols = map[string]bool{"||": true, "&&": true, "??": true}

var assignmentSymbols = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true, "**=": true,
	"<<=": true, ">>=": true, ">>>=": true, "|=": true, "^=": true, "&=": true,
}

var unarySymbols = map[string]bool{"-": true, "+": true, "!": true, "~": true}

var unaryKeywords = map[string]bool{"typeof": true, "void": true}

// ExprParser is a precedence-climbing parser over expression tokens
type ExprParser struct {
	tokens []ExprToken
	pos    int
}

// NewExprParser creates a parser over an EOF-terminated token slice
func NewExprParser(tokens []ExprToken) *ExprParser {
	return &ExprParser{tokens: tokens}
}

// ParseExpression tokenizes and parses a complete expression
func ParseExpression(input string) (ExprNode, error) {
	tokens, err := NewExprTokenizer(input).Tokenize()
	if err != nil {
		return nil, err
	}
	return NewExprParser(tokens).ParseAll()
}

// ParseAll parses one expression and requires that all tokens are consumed
func (p *ExprParser) ParseAll() (ExprNode, error) {
	node, err := p.Parse()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != ExprTokenEOF {
		return nil, &ExprSyntaxError{Message: ErrMsgExprTrailingTokens, Token: tok.Value, Offset: tok.Offset}
	}
	return node, nil
}

// Parse parses one expression and stops at the first token that cannot continue it
func (p *ExprParser) Parse() (ExprNode, error) {
	if p.peek().Type == ExprTokenEOF {
		return nil, p.errorAt(ErrMsgExprUnexpectedEnd, p.peek())
	}
	return p.parseAssignment()
}

func (p *ExprParser) parseAssignment() (ExprNode, error) {
	left, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.Type != ExprTokenPunct || !assignmentSymbols[tok.Value] {
		return left, nil
	}
	if !isAssignable(left) {
		return nil, &ExprSyntaxError{Message: ErrMsgExprInvalidTarget, Token: left.String(), Offset: left.Offset()}
	}
	p.advance()
	value, err := p.parseAssignment()
	if err != nil {
		return nil, err
	}
	return &AssignExpr{exprBase: exprBase{left.Offset()}, Operator: tok.Value, Target: left, Value: value}, nil
}

func (p *ExprParser) parseConditional() (ExprNode, error) {
	test, err := p.parseBinary(1)
	if err != nil {
		return nil, err
	}
	if !p.matchPunct("?") {
		return test, nil
	}
	consequent, err := p.parseAssignment()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	alternate, err := p.parseAssignment()
	if err != nil {
		return nil, err
	}
	return &ConditionalExpr{exprBase: exprBase{test.Offset()}, Test: test, Consequent: consequent, Alternate: alternate}, nil
}

func (p *ExprParser) parseBinary(minPrec int) (ExprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, prec, ok := p.binaryOperator()
		if !ok || prec < minPrec {
			return left, nil
		}
		p.advance()
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		base := exprBase{left.Offset()}
		if logicalSymbols[op] {
			left = &LogicalExpr{exprBase: base, Operator: op, Left: left, Right: right}
		} else {
			left = &BinaryExpr{exprBase: base, Operator: op, Left: left, Right: right}
		}
	}
}

// binaryOperator reports the operator under the cursor, if any
func (p *ExprParser) binaryOperator() (string, int, bool) {
	tok := p.peek()
	if tok.Type != ExprTokenPunct && tok.Type != ExprTokenIdent {
		return "", 0, false
	}
	if tok.Type == ExprTokenIdent && tok.Value != KeywordIn && tok.Value != "instanceof" {
		return "", 0, false
	}
	prec, ok := binaryPrecedence[tok.Value]
	return tok.Value, prec, ok
}

func (p *ExprParser) parseUnary() (ExprNode, error) {
	tok := p.peek()
	switch {
	case tok.Type == ExprTokenPunct && (tok.Value == "++" || tok.Value == "--"):
		p.advance()
		target, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if !isAssignable(target) {
			return nil, &ExprSyntaxError{Message: ErrMsgExprInvalidTarget, Token: target.String(), Offset: target.Offset()}
		}
		return &UpdateExpr{exprBase: exprBase{tok.Offset}, Operator: tok.Value, Target: target, Prefix: true}, nil
	case tok.Type == ExprTokenPunct && unarySymbols[tok.Value],
		tok.Type == ExprTokenIdent && unaryKeywords[tok.Value]:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{exprBase: exprBase{tok.Offset}, Operator: tok.Value, Operand: operand, Prefix: true}, nil
	}
	return p.parsePostfix()
}

func (p *ExprParser) parsePostfix() (ExprNode, error) {
	node, err := p.parseCallMember()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.Type == ExprTokenPunct && (tok.Value == "++" || tok.Value == "--") {
		if !isAssignable(node) {
			return nil, &ExprSyntaxError{Message: ErrMsgExprInvalidTarget, Token: node.String(), Offset: node.Offset()}
		}
		p.advance()
		return &UpdateExpr{exprBase: exprBase{node.Offset()}, Operator: tok.Value, Target: node}, nil
	}
	return node, nil
}

func (p *ExprParser) parseCallMember() (ExprNode, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.Type != ExprTokenPunct {
			return node, nil
		}
		switch tok.Value {
		case ".", "?.":
			p.advance()
			if p.peek().Type == ExprTokenPunct && p.peek().Value == "[" && tok.Value == "?." {
				p.advance()
				prop, err := p.parseComputedKey()
				if err != nil {
					return nil, err
				}
				node = &MemberExpr{exprBase: exprBase{node.Offset()}, Object: node, Property: prop, Computed: true, Optional: true}
				continue
			}
			name := p.peek()
			if name.Type != ExprTokenIdent {
				return nil, p.errorAt(ErrMsgExprUnexpectedToken, name)
			}
			p.advance()
			node = &MemberExpr{exprBase: exprBase{node.Offset()}, Object: node, Name: name.Value, Optional: tok.Value == "?."}
		case "[":
			p.advance()
			prop, err := p.parseComputedKey()
			if err != nil {
				return nil, err
			}
			node = &MemberExpr{exprBase: exprBase{node.Offset()}, Object: node, Property: prop, Computed: true}
		case "(":
			p.advance()
			args, err := p.parseList(")")
			if err != nil {
				return nil, err
			}
			node = &CallExpr{exprBase: exprBase{node.Offset()}, Callee: node, Args: args}
		default:
			return node, nil
		}
	}
}

func (p *ExprParser) parseComputedKey() (ExprNode, error) {
	prop, err := p.parseAssignment()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("]"); err != nil {
		return nil, err
	}
	return prop, nil
}

func (p *ExprParser) parsePrimary() (ExprNode, error) {
	tok := p.peek()
	base := exprBase{tok.Offset}
	switch tok.Type {
	case ExprTokenNumber:
		p.advance()
		return &LiteralExpr{exprBase: base, Value: tok.Number}, nil
	case ExprTokenString:
		p.advance()
		return &LiteralExpr{exprBase: base, Value: tok.Value}, nil
	case ExprTokenIdent:
		p.advance()
		switch tok.Value {
		case KeywordTrue:
			return &LiteralExpr{exprBase: base, Value: true}, nil
		case KeywordFalse:
			return &LiteralExpr{exprBase: base, Value: false}, nil
		case KeywordNull, KeywordUndefined:
			return &LiteralExpr{exprBase: base, Value: nil}, nil
		}
		if IsReservedWord(tok.Value) {
			return nil, &ExprSyntaxError{Message: ErrMsgExprReservedWord, Token: tok.Value, Offset: tok.Offset}
		}
		return &IdentExpr{exprBase: base, Name: tok.Value}, nil
	case ExprTokenPunct:
		switch tok.Value {
		case "(":
			p.advance()
			inner, err := p.parseAssignment()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return inner, nil
		case "[":
			p.advance()
			elems, err := p.parseList("]")
			if err != nil {
				return nil, err
			}
			return &ArrayExpr{exprBase: base, Elements: elems}, nil
		case "{":
			p.advance()
			return p.parseObject(base)
		}
	case ExprTokenEOF:
		return nil, p.errorAt(ErrMsgExprUnexpectedEnd, tok)
	}
	return nil, p.errorAt(ErrMsgExprUnexpectedToken, tok)
}

// parseObject parses the body of an object literal after `{`
func (p *ExprParser) parseObject(base exprBase) (ExprNode, error) {
	obj := &ObjectExpr{exprBase: base}
	for !p.matchPunct("}") {
		var prop ObjectProperty
		tok := p.peek()
		switch {
		case tok.Type == ExprTokenIdent || tok.Type == ExprTokenString:
			p.advance()
			prop.Key = tok.Value
		case tok.Type == ExprTokenNumber:
			p.advance()
			prop.Key = ToDisplayString(tok.Number)
		case tok.Type == ExprTokenPunct && tok.Value == "[":
			p.advance()
			key, err := p.parseComputedKey()
			if err != nil {
				return nil, err
			}
			prop.Computed = key
		default:
			return nil, p.errorAt(ErrMsgExprUnexpectedToken, tok)
		}

		if p.matchPunct(":") {
			value, err := p.parseAssignment()
			if err != nil {
				return nil, err
			}
			prop.Value = value
		} else if tok.Type == ExprTokenIdent && prop.Computed == nil {
			// shorthand `{ name }`
			prop.Value = &IdentExpr{exprBase: exprBase{tok.Offset}, Name: tok.Value}
		} else {
			return nil, p.errorAt(ErrMsgExprUnexpectedToken, p.peek())
		}
		obj.Properties = append(obj.Properties, prop)

		if p.matchPunct(",") {
			continue
		}
		if err := p.expectPunct("}"); err != nil {
			return nil, err
		}
		break
	}
	return obj, nil
}

// parseList parses comma separated expressions up to the closing punctuator
func (p *ExprParser) parseList(closing string) ([]ExprNode, error) {
	var items []ExprNode
	if p.matchPunct(closing) {
		return items, nil
	}
	for {
		item, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.matchPunct(",") {
			if p.matchPunct(closing) {
				return items, nil
			}
			continue
		}
		if err := p.expectPunct(closing); err != nil {
			return nil, err
		}
		return items, nil
	}
}

// Remaining returns the tokens that have not been consumed, EOF included
func (p *ExprParser) Remaining() []ExprToken {
	return p.tokens[p.pos:]
}

func (p *ExprParser) peek() ExprToken {
	if p.pos >= len(p.tokens) {
		return ExprToken{Type: ExprTokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *ExprParser) advance() ExprToken {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *ExprParser) matchPunct(value string) bool {
	tok := p.peek()
	if tok.Type == ExprTokenPunct && tok.Value == value {
		p.advance()
		return true
	}
	return false
}

func (p *ExprParser) expectPunct(value string) error {
	if p.matchPunct(value) {
		return nil
	}
	tok := p.peek()
	if tok.Type == ExprTokenEOF {
		return p.errorAt(ErrMsgExprUnexpectedEnd, tok)
	}
	return p.errorAt(ErrMsgExprUnexpectedToken, tok)
}

func (p *ExprParser) errorAt(msg string, tok ExprToken) error {
	return &ExprSyntaxError{Message: msg, Token: tok.Value, Offset: tok.Offset}
}

func isAssignable(node ExprNode) bool {
	switch n := node.(type) {
	case *IdentExpr:
		return !IsReservedWord(n.Name)
	case *MemberExpr:
		return !n.Optional
	default:
		return false
	}
}
