package internal

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ReferenceLoader fetches and parses the prompt at a resolved path. The
// returned AST is the body only; the referenced frontmatter is ignored.
type ReferenceLoader func(ctx context.Context, path string) (*RootNode, error)

// ResolveOptions configures one resolution.
type ResolveOptions struct {
	Parameters        map[string]any
	Config            map[string]any
	DocumentPath      string
	Loader            ReferenceLoader
	Funcs             *FuncRegistry
	MaxReferenceDepth int
	MaxLoopIterations int
	// StepIndex selects the step to resolve. Blocks before it are replayed
	// with Responses[i] appended after block i.
	StepIndex int
	Responses []StepResponse
	Logger    *zap.Logger
}

// ResolveResult is the output of one resolution.
type ResolveResult struct {
	Messages   []Message
	Config     map[string]any
	Parameters []string
	Completed  bool
	StepCount  int
}

// errStepBoundary unwinds the walk once the target step has been resolved.
var errStepBoundary = errors.New("step boundary")

// walkFrame is the per-document state threaded through recursive calls.
type walkFrame struct {
	scope   *Scope
	depth   int
	docPath string
}

// Resolver turns an AST plus parameters into messages. A Resolver is
// single use: create one per resolution.
type Resolver struct {
	opts       ResolveOptions
	builder    messageBuilder
	config     map[string]any
	parameters map[string]bool
	refCache   map[string]*RootNode
	stepCount  int
	lastStep   int // message count right after the last replayed step
	logger     *zap.Logger
}

// NewResolver creates a resolver.
func NewResolver(opts ResolveOptions) *Resolver {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Funcs == nil {
		opts.Funcs = NewBuiltinFuncRegistry()
	}
	if opts.MaxReferenceDepth <= 0 {
		opts.MaxReferenceDepth = DefaultMaxReferenceDepth
	}
	if opts.MaxLoopIterations <= 0 {
		opts.MaxLoopIterations = DefaultMaxLoopIterations
	}
	config := make(map[string]any, len(opts.Config))
	for k, v := range opts.Config {
		config[k] = v
	}
	return &Resolver{
		opts:       opts,
		config:     config,
		parameters: map[string]bool{},
		refCache:   map[string]*RootNode{},
		logger:     opts.Logger,
	}
}

// Resolve walks root and returns the conversation state for the configured step.
func Resolve(ctx context.Context, root *RootNode, opts ResolveOptions) (*ResolveResult, error) {
	return NewResolver(opts).Resolve(ctx, root)
}

// Resolve runs the resolver over root.
func (r *Resolver) Resolve(ctx context.Context, root *RootNode) (*ResolveResult, error) {
	r.logger.Debug(LogMsgResolverStart, zap.String(LogFieldPath, r.opts.DocumentPath), zap.Int(LogFieldStep, r.opts.StepIndex))

	top := walkFrame{scope: NewScope(r.opts.Parameters), docPath: r.opts.DocumentPath}
	err := r.resolveNodes(ctx, root.Children, top)

	completed := false
	switch {
	case errors.Is(err, errStepBoundary):
		r.builder.closeMessage()
	case err != nil:
		return nil, err
	default:
		r.builder.closeMessage()
		k := r.opts.StepIndex
		switch {
		case k > r.stepCount:
			// the trailing segment is step stepCount and has been answered
			if r.stepCount < len(r.opts.Responses) {
				r.builder.appendMessage(r.opts.Responses[r.stepCount].AssistantMessage())
			}
			completed = true
		case k == r.stepCount:
			completed = r.stepCount > 0 && len(r.builder.messages) == r.lastStep
		}
	}

	result := &ResolveResult{
		Messages:   r.builder.messages,
		Config:     r.config,
		Parameters: r.parameterList(),
		Completed:  completed,
		StepCount:  r.stepCount,
	}
	r.logger.Debug(LogMsgResolverEnd,
		zap.Int(LogFieldMessages, len(result.Messages)),
		zap.Bool(LogFieldCompleted, completed))
	return result, nil
}

func (r *Resolver) resolveNodes(ctx context.Context, nodes []Node, f walkFrame) error {
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.resolveNode(ctx, n, f); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) resolveNode(ctx context.Context, n Node, f walkFrame) error {
	switch node := n.(type) {
	case *TextNode:
		r.builder.writeText(node.Content)
		return nil
	case *InterpolationNode:
		return r.resolveInterpolation(node, f)
	case *IfNode:
		return r.resolveIf(ctx, node, f)
	case *ForNode:
		return r.resolveFor(ctx, node, f)
	case *MessageNode:
		return r.resolveMessage(ctx, node, f)
	case *ContentNode:
		return r.resolveContent(ctx, node, f)
	case *ReferenceNode:
		return r.resolveReference(ctx, node, f)
	case *StepNode:
		return r.resolveStep(ctx, node, f)
	case *RootNode:
		return r.resolveNodes(ctx, node.Children, f)
	}
	return NewResolveError(ErrCodeStructure, ErrMsgExprUnsupportedNode, n.Pos(), nil)
}

func (r *Resolver) resolveInterpolation(node *InterpolationNode, f walkFrame) error {
	value, err := r.evaluate(node.Expr, f.scope)
	if err != nil {
		return r.wrapEvalError(ErrMsgInterpolationFailed, node.Pos(), err)
	}
	switch node.Expr.(type) {
	case *AssignExpr, *UpdateExpr:
		return nil
	}
	r.builder.writeText(ToDisplayString(value))
	return nil
}

func (r *Resolver) resolveIf(ctx context.Context, node *IfNode, f walkFrame) error {
	for _, branch := range node.Branches {
		if branch.Condition != nil {
			v, err := r.evaluate(branch.Condition, f.scope)
			if err != nil {
				return r.wrapEvalError(ErrMsgConditionFailed, branch.Position, err)
			}
			if !Truthy(v) {
				continue
			}
		}
		return r.resolveNodes(ctx, branch.Children, f)
	}
	return nil
}

func (r *Resolver) resolveFor(ctx context.Context, node *ForNode, f walkFrame) error {
	collection, err := r.evaluate(node.Collection, f.scope)
	if err != nil {
		return r.wrapEvalError(ErrMsgInterpolationFailed, node.Pos(), err)
	}

	type binding struct {
		item, index any
	}
	var items []binding
	switch c := Normalize(collection).(type) {
	case nil:
	case []any:
		for i, v := range c {
			items = append(items, binding{item: v, index: float64(i)})
		}
	case map[string]any:
		for _, k := range SortedKeys(c) {
			items = append(items, binding{item: c[k], index: k})
		}
	default:
		return NewResolveError(ErrCodeIteration, ErrMsgNotIterable, node.Pos(), errors.New(TypeOf(collection)))
	}

	if len(items) > r.opts.MaxLoopIterations {
		return NewResolveError(ErrCodeIteration, ErrMsgLoopLimitExceeded, node.Pos(), nil)
	}
	if len(items) == 0 {
		child := f
		child.scope = f.scope.Child()
		return r.resolveNodes(ctx, node.Else, child)
	}
	for _, it := range items {
		child := f
		child.scope = f.scope.Child()
		child.scope.Define(node.Item, it.item)
		if node.Index != "" {
			child.scope.Define(node.Index, it.index)
		}
		if err := r.resolveNodes(ctx, node.Body, child); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) resolveMessage(ctx context.Context, node *MessageNode, f walkFrame) error {
	if r.builder.inMessage() || r.builder.capture != nil {
		return NewResolveError(ErrCodeStructure, ErrMsgMessageInMessage, node.Pos(), nil)
	}

	msg := Message{Role: node.Tag}
	for _, attr := range node.Attrs {
		v, err := r.evalAttr(attr, f.scope)
		if err != nil {
			return err
		}
		switch {
		case node.Tag == TagMessage && attr.Name == AttrRole:
			msg.Role = ToDisplayString(v)
		case node.Tag == TagTool && attr.Name == AttrID:
			msg.ToolCallID = ToDisplayString(v)
		case node.Tag == TagTool && attr.Name == AttrName:
			msg.ToolName = ToDisplayString(v)
		default:
			if msg.Attributes == nil {
				msg.Attributes = map[string]any{}
			}
			msg.Attributes[attr.Name] = v
		}
	}
	if !IsValidRole(msg.Role) {
		detail := msg.Role
		if s := FormatSuggestions(FindSimilarStrings(msg.Role, ValidRoles, MaxSuggestions)); s != "" {
			detail += ", " + s
		}
		return NewResolveError(ErrCodeStructure, ErrMsgInvalidRole, node.Pos(), errors.New(detail))
	}

	r.builder.openMessage(msg)
	if err := r.resolveNodes(ctx, node.Children, f); err != nil {
		return err
	}
	r.builder.closeMessage()
	return nil
}

func (r *Resolver) resolveContent(ctx context.Context, node *ContentNode, f walkFrame) error {
	if r.builder.capture != nil {
		return NewResolveError(ErrCodeStructure, ErrMsgContentInContent, node.Pos(), nil)
	}

	if node.Kind == ContentKindToolCall {
		return r.resolveToolCall(ctx, node, f)
	}

	r.builder.flushText()
	finish := r.builder.beginCapture()
	err := r.resolveNodes(ctx, node.Children, f)
	body := finish()
	if err != nil {
		return err
	}

	switch node.Kind {
	case ContentKindText:
		if text := normalizeText(body); text != "" {
			r.builder.addContent(Content{Kind: ContentKindText, Text: text})
		}
	case ContentKindImage:
		r.builder.addContent(Content{Kind: ContentKindImage, Source: strings.TrimSpace(body)})
	}
	return nil
}

func (r *Resolver) resolveToolCall(ctx context.Context, node *ContentNode, f walkFrame) error {
	if r.builder.current == nil || r.builder.current.Role != RoleAssistant {
		return NewResolveError(ErrCodeStructure, ErrMsgToolCallOutside, node.Pos(), nil)
	}

	content := Content{Kind: ContentKindToolCall}
	hasArgs := false
	for _, attr := range node.Attrs {
		v, err := r.evalAttr(attr, f.scope)
		if err != nil {
			return err
		}
		switch attr.Name {
		case AttrID:
			content.ToolCallID = ToDisplayString(v)
		case AttrName:
			content.ToolName = ToDisplayString(v)
		case AttrArguments:
			args, err := toolArguments(v)
			if err != nil {
				return NewResolveError(ErrCodeEvaluation, ErrMsgToolArgumentsInvalid, attr.Position, err)
			}
			content.Arguments = args
			hasArgs = true
		}
	}

	finish := r.builder.beginCapture()
	err := r.resolveNodes(ctx, node.Children, f)
	body := strings.TrimSpace(finish())
	if err != nil {
		return err
	}
	if !hasArgs && body != "" {
		args, err := toolArguments(body)
		if err != nil {
			return NewResolveError(ErrCodeEvaluation, ErrMsgToolArgumentsInvalid, node.Pos(), err)
		}
		content.Arguments = args
	}
	r.builder.addContent(content)
	return nil
}

// toolArguments accepts an object value or a JSON object string.
func toolArguments(v any) (map[string]any, error) {
	switch val := Normalize(v).(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return val, nil
	case string:
		out := map[string]any{}
		if err := json.Unmarshal([]byte(val), &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, errors.New(TypeOf(v))
}

func (r *Resolver) resolveReference(ctx context.Context, node *ReferenceNode, f walkFrame) error {
	rawPath, err := r.evalAttr(node.Path, f.scope)
	if err != nil {
		return err
	}
	target := ResolveReferencePath(f.docPath, ToDisplayString(rawPath))

	if f.depth+1 > r.opts.MaxReferenceDepth {
		return NewResolveError(ErrCodeReferenceDepth, ErrMsgReferenceDepthExceeded, node.Pos(), errors.New(target))
	}

	nested, err := r.loadReference(ctx, target, node.Pos())
	if err != nil {
		return err
	}

	// the referenced prompt sees the caller's inputs overlaid by the tag attributes
	params := make(map[string]any, len(r.opts.Parameters)+len(node.Attrs))
	for k, v := range r.opts.Parameters {
		params[k] = v
	}
	for _, attr := range node.Attrs {
		v, err := r.evalAttr(attr, f.scope)
		if err != nil {
			return err
		}
		params[attr.Name] = v
	}

	child := walkFrame{scope: NewScope(params), depth: f.depth + 1, docPath: target}
	return r.resolveNodes(ctx, nested.Children, child)
}

// loadReference fetches a reference once per resolution tree.
func (r *Resolver) loadReference(ctx context.Context, target string, pos Position) (*RootNode, error) {
	if cached, ok := r.refCache[target]; ok {
		r.logger.Debug(LogMsgReferenceCached, zap.String(LogFieldPath, target))
		return cached, nil
	}
	if r.opts.Loader == nil {
		return nil, NewResolveError(ErrCodeReference, ErrMsgReferenceUnavailable, pos, errors.New(target))
	}
	r.logger.Debug(LogMsgReferenceFetch, zap.String(LogFieldPath, target))
	nested, err := r.opts.Loader(ctx, target)
	if err != nil {
		var resolveErr *ResolveError
		if errors.As(err, &resolveErr) {
			return nil, err
		}
		return nil, NewResolveError(ErrCodeReference, ErrMsgReferenceFetchFailed, pos, err)
	}
	r.refCache[target] = nested
	return nested, nil
}

func (r *Resolver) resolveStep(ctx context.Context, node *StepNode, f walkFrame) error {
	if r.builder.inMessage() || r.builder.capture != nil {
		return NewResolveError(ErrCodeStructure, ErrMsgStepInMessage, node.Pos(), nil)
	}
	index := r.stepCount
	r.stepCount++
	r.builder.flushText()

	body := f
	if node.Isolated {
		// an isolated step works on a copy; nothing it binds or assigns survives
		body.scope = NewScope(f.scope.Snapshot())
	}

	if index == r.opts.StepIndex {
		for _, attr := range node.Attrs {
			v, err := r.evalAttr(attr, f.scope)
			if err != nil {
				return err
			}
			r.config[attr.Name] = v
		}
	}

	if err := r.resolveNodes(ctx, node.Children, body); err != nil {
		return err
	}
	r.builder.flushText()

	if index >= r.opts.StepIndex {
		r.logger.Debug(LogMsgStepBoundary, zap.Int(LogFieldStep, index))
		return errStepBoundary
	}

	var response StepResponse
	if index < len(r.opts.Responses) {
		response = r.opts.Responses[index]
	}
	r.builder.appendMessage(response.AssistantMessage())
	if node.As != "" {
		f.scope.Assign(node.As, response.Text)
	}
	r.lastStep = len(r.builder.messages)
	return nil
}

func (r *Resolver) evaluate(expr ExprNode, scope *Scope) (any, error) {
	eval := NewExprEvaluator(scope, r.opts.Funcs, r.recordMissing)
	return eval.Evaluate(expr)
}

func (r *Resolver) evalAttr(attr Attribute, scope *Scope) (any, error) {
	switch attr.Kind {
	case AttrKindBare:
		return true, nil
	case AttrKindString:
		return attr.Literal, nil
	}
	v, err := r.evaluate(attr.Expr, scope)
	if err != nil {
		return nil, r.wrapEvalError(ErrMsgAttributeFailed, attr.Position, err)
	}
	return v, nil
}

func (r *Resolver) recordMissing(name string) {
	if !r.parameters[name] {
		r.logger.Debug(LogMsgMissingParameter, zap.String(LogFieldParameter, name))
	}
	r.parameters[name] = true
}

func (r *Resolver) parameterList() []string {
	out := make([]string, 0, len(r.parameters))
	for name := range r.parameters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// wrapEvalError classifies evaluation failures.
func (r *Resolver) wrapEvalError(msg string, pos Position, err error) error {
	var resolveErr *ResolveError
	if errors.As(err, &resolveErr) {
		return err
	}
	var opErr *UnsupportedOperatorError
	if errors.As(err, &opErr) {
		return NewResolveError(ErrCodeUnsupportedOperator, msg, pos, err)
	}
	return NewResolveError(ErrCodeEvaluation, msg, pos, err)
}

// ResolveReferencePath resolves ref against the path of the referencing
// document. Absolute references start with "/".
func ResolveReferencePath(current, ref string) string {
	if strings.HasPrefix(ref, "/") {
		return strings.TrimPrefix(path.Clean(ref), "/")
	}
	if current == "" {
		return path.Clean(ref)
	}
	return path.Join(path.Dir(current), ref)
}
