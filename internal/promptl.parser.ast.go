package internal

import (
	"fmt"
	"strings"
)

// Node is the interface all template AST nodes implement. The set of
// node kinds is closed; the resolver switches over every one of them.
type Node interface {
	// Type returns the node type identifier
	Type() NodeType
	// Pos returns the source position of this node
	Pos() Position
	// String returns a human-readable representation
	String() string
	node()
}

type nodeBase struct {
	pos Position
}

func (b nodeBase) Pos() Position { return b.pos }
func (nodeBase) node()           {}

// Attribute is a parsed tag attribute. Exactly one of Literal (string and
// bare kinds) or Expr (expression kind) carries the value.
type Attribute struct {
	Name     string
	Kind     AttrKind
	Literal  string
	Expr     ExprNode
	Position Position
}

// String returns the attribute as it could be written in source
func (a Attribute) String() string {
	switch a.Kind {
	case AttrKindBare:
		return a.Name
	case AttrKindExpr:
		if a.Expr == nil {
			return a.Name + "={{}}"
		}
		return a.Name + "={{ " + a.Expr.String() + " }}"
	}
	return fmt.Sprintf("%s=%q", a.Name, a.Literal)
}

// Attributes is an ordered attribute list
type Attributes []Attribute

// Get returns the named attribute
func (a Attributes) Get(name string) (Attribute, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr, true
		}
	}
	return Attribute{}, false
}

// Has reports whether the named attribute is present
func (a Attributes) Has(name string) bool {
	_, ok := a.Get(name)
	return ok
}

// StaticString returns the literal value of a string attribute
func (a Attributes) StaticString(name string) (string, bool) {
	attr, ok := a.Get(name)
	if !ok || attr.Kind != AttrKindString {
		return "", false
	}
	return attr.Literal, true
}

// String returns a compact representation
func (a Attributes) String() string {
	parts := make([]string, len(a))
	for i, attr := range a {
		parts[i] = attr.String()
	}
	return FmtOpenBrace + strings.Join(parts, FmtCommaSep) + FmtCloseBrace
}

// RootNode is the top-level container for an AST
type RootNode struct {
	Children []Node
}

// Type returns NodeTypeRoot
func (n *RootNode) Type() NodeType { return NodeTypeRoot }

// Pos returns the start of the document
func (n *RootNode) Pos() Position { return Position{Line: 1, Column: 1} }

func (n *RootNode) node() {}

// String returns a string representation of the root node
func (n *RootNode) String() string {
	return "RootNode" + childrenString(n.Children)
}

// TextNode is literal text
type TextNode struct {
	nodeBase
	Content string
}

// Type returns NodeTypeText
func (n *TextNode) Type() NodeType { return NodeTypeText }

func (n *TextNode) String() string {
	return fmt.Sprintf("Text(%q)", n.Content)
}

// InterpolationNode is `{{ expr }}`
type InterpolationNode struct {
	nodeBase
	Source string
	Expr   ExprNode
}

// Type returns NodeTypeInterpolation
func (n *InterpolationNode) Type() NodeType { return NodeTypeInterpolation }

func (n *InterpolationNode) String() string {
	return "Interpolation(" + n.Expr.String() + ")"
}

// IfBranch is one arm of an if chain. Condition is nil for else.
type IfBranch struct {
	Condition ExprNode
	Children  []Node
	Position  Position
}

// IfNode is an if / else if / else chain
type IfNode struct {
	nodeBase
	Branches []IfBranch
}

// Type returns NodeTypeIf
func (n *IfNode) Type() NodeType { return NodeTypeIf }

func (n *IfNode) String() string {
	var sb strings.Builder
	sb.WriteString("If{")
	for i, b := range n.Branches {
		if i > 0 {
			sb.WriteString(FmtCommaSep)
		}
		if b.Condition == nil {
			sb.WriteString("else")
		} else {
			sb.WriteString(b.Condition.String())
		}
		sb.WriteString(childrenString(b.Children))
	}
	sb.WriteString(FmtCloseBrace)
	return sb.String()
}

// ForNode iterates Collection binding Item (and Index when set). Else runs
// when the collection is empty.
type ForNode struct {
	nodeBase
	Item       string
	Index      string
	Collection ExprNode
	Body       []Node
	Else       []Node
}

// Type returns NodeTypeFor
func (n *ForNode) Type() NodeType { return NodeTypeFor }

func (n *ForNode) String() string {
	vars := n.Item
	if n.Index != "" {
		vars += FmtCommaSep + n.Index
	}
	return fmt.Sprintf("For(%s in %s)%s", vars, n.Collection, childrenString(n.Body))
}

// MessageNode is a message block. Tag is the role tag or "message".
type MessageNode struct {
	nodeBase
	Tag      string
	Attrs    Attributes
	Children []Node
}

// Type returns NodeTypeMessage
func (n *MessageNode) Type() NodeType { return NodeTypeMessage }

// StaticRole returns the role when it is known without evaluation
func (n *MessageNode) StaticRole() (string, bool) {
	if n.Tag != TagMessage {
		return n.Tag, true
	}
	return n.Attrs.StaticString(AttrRole)
}

func (n *MessageNode) String() string {
	return fmt.Sprintf("Message(%s %s)%s", n.Tag, n.Attrs, childrenString(n.Children))
}

// ContentNode is an explicit content block inside a message
type ContentNode struct {
	nodeBase
	Kind     string // ContentKind* constant
	Attrs    Attributes
	Children []Node
}

// Type returns NodeTypeContent
func (n *ContentNode) Type() NodeType { return NodeTypeContent }

func (n *ContentNode) String() string {
	return fmt.Sprintf("Content(%s %s)%s", n.Kind, n.Attrs, childrenString(n.Children))
}

// ReferenceNode includes another prompt by path
type ReferenceNode struct {
	nodeBase
	Path  Attribute
	Attrs Attributes // everything except path
}

// Type returns NodeTypeReference
func (n *ReferenceNode) Type() NodeType { return NodeTypeReference }

func (n *ReferenceNode) String() string {
	return fmt.Sprintf("Reference(%s %s)", n.Path, n.Attrs)
}

// StepNode marks a chain step boundary
type StepNode struct {
	nodeBase
	Isolated bool
	As       string
	Attrs    Attributes // config attributes, isolated and as removed
	Children []Node
}

// Type returns NodeTypeStep
func (n *StepNode) Type() NodeType { return NodeTypeStep }

func (n *StepNode) String() string {
	return fmt.Sprintf("Step(isolated=%t as=%q %s)%s", n.Isolated, n.As, n.Attrs, childrenString(n.Children))
}

func childrenString(children []Node) string {
	if len(children) == 0 {
		return "[]"
	}
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return "[" + strings.Join(parts, FmtCommaSep) + "]"
}

// Walk visits every node depth-first. Returning false skips the children.
func Walk(n Node, visit func(Node) bool) {
	if !visit(n) {
		return
	}
	var children [][]Node
	switch v := n.(type) {
	case *RootNode:
		children = [][]Node{v.Children}
	case *IfNode:
		for _, b := range v.Branches {
			children = append(children, b.Children)
		}
	case *ForNode:
		children = [][]Node{v.Body, v.Else}
	case *MessageNode:
		children = [][]Node{v.Children}
	case *ContentNode:
		children = [][]Node{v.Children}
	case *StepNode:
		children = [][]Node{v.Children}
	}
	for _, group := range children {
		for _, c := range group {
			Walk(c, visit)
		}
	}
}
