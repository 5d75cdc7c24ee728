package internal

import (
	"fmt"
)

// Diagnostic codes shared by parse and resolve errors
const (
	ErrCodeSyntax              = "syntax"
	ErrCodeConfig              = "config"
	ErrCodeReference           = "reference"
	ErrCodeReferenceDepth      = "reference-depth"
	ErrCodeUnsupportedOperator = "unsupported-operator"
	ErrCodeEvaluation          = "evaluation"
	ErrCodeIteration           = "iteration"
	ErrCodeStructure           = "structure"
)

// Lexer error messages
const (
	ErrMsgUnterminatedTag           = "unterminated tag"
	ErrMsgUnterminatedStr           = "unterminated string literal"
	ErrMsgUnterminatedInterpolation = "unterminated interpolation, missing '}}'"
	ErrMsgEmptyInterpolation        = "empty interpolation"
	ErrMsgUnexpectedChar            = "unexpected character"
)

// Parser error messages
const (
	ErrMsgUnexpectedKeyword   = "unexpected keyword"
	ErrMsgUnclosedBlock       = "block not closed"
	ErrMsgUnexpectedCloseTag  = "unexpected closing tag"
	ErrMsgMismatchedCloseTag  = "closing tag does not match"
	ErrMsgElseAfterElse       = "else must be the last branch"
	ErrMsgInvalidForHeader    = "invalid for loop, expected 'for item in list' or 'for list as item'"
	ErrMsgReservedLoopVar     = "reserved word cannot be used as loop variable"
	ErrMsgNestedMessage       = "message tags cannot be nested"
	ErrMsgNestedStep          = "step tags cannot be nested"
	ErrMsgStepInMessage       = "step tags cannot appear inside a message"
	ErrMsgContentInContent    = "content tags cannot be nested"
	ErrMsgToolCallOutside     = "tool-call is only allowed inside assistant messages"
	ErrMsgReferenceNeedsPath  = "prompt reference requires a 'path' attribute"
	ErrMsgReferenceNotClosed  = "prompt reference must be self-closing"
	ErrMsgInvalidRole         = "invalid message role"
	ErrMsgMessageRoleRequired = "message tag requires a 'role' attribute"
	ErrMsgStepAsInvalid       = "step 'as' attribute must be a plain identifier"
)

// Expression error messages
const (
	ErrMsgExprUnexpectedToken  = "unexpected token in expression"
	ErrMsgExprUnexpectedEnd    = "unexpected end of expression"
	ErrMsgExprUnterminatedStr  = "unterminated string in expression"
	ErrMsgExprInvalidNumber    = "invalid number literal"
	ErrMsgExprInvalidChar      = "invalid character in expression"
	ErrMsgExprTrailingTokens   = "unexpected tokens after expression"
	ErrMsgExprReservedWord     = "reserved word used as identifier"
	ErrMsgExprInvalidTarget    = "invalid assignment target"
	ErrMsgExprNotCallable      = "value is not callable"
	ErrMsgExprNilMember        = "cannot read property of undefined"
	ErrMsgExprInOperand        = "right operand of 'in' must be an object or array"
	ErrMsgExprInstanceofTarget = "right operand of 'instanceof' must be a type"
	ErrMsgExprUnsupportedNode  = "unsupported expression node"
)

// Resolver error messages
const (
	ErrMsgNotIterable            = "value is not iterable"
	ErrMsgLoopLimitExceeded      = "loop iteration limit exceeded"
	ErrMsgReferenceDepthExceeded = "maximum reference depth exceeded"
	ErrMsgReferenceUnavailable   = "no reference resolver configured"
	ErrMsgReferenceFetchFailed   = "failed to fetch referenced prompt"
	ErrMsgReferenceParseFailed   = "referenced prompt has syntax errors"
	ErrMsgInterpolationFailed    = "interpolation failed"
	ErrMsgConditionFailed        = "condition evaluation failed"
	ErrMsgAttributeFailed        = "attribute evaluation failed"
	ErrMsgToolArgumentsInvalid   = "tool-call arguments must evaluate to an object"
	ErrMsgMessageInMessage       = "referenced prompt defines messages inside a message"
)

// ParseError is a syntax diagnostic with a source position. The parser
// collects these instead of stopping at the first one.
type ParseError struct {
	Message  string
	Detail   string
	Position Position
}

// NewParseError creates a parse error at the given position
func NewParseError(message string, pos Position) *ParseError {
	return &ParseError{Message: message, Position: pos}
}

// NewParseErrorWithDetail creates a parse error carrying extra context
func NewParseErrorWithDetail(message, detail string, pos Position) *ParseError {
	return &ParseError{Message: message, Detail: detail, Position: pos}
}

// Error implements the error interface
func (e *ParseError) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg = fmt.Sprintf(ErrFmtWithDetail, e.Message, e.Detail)
	}
	return fmt.Sprintf(ErrFmtWithPosition, msg, e.Position)
}

// ResolveError aborts a resolution. Code is one of the ErrCode* constants.
type ResolveError struct {
	Code     string
	Message  string
	Position Position
	Cause    error
}

// NewResolveError creates a resolution error
func NewResolveError(code, message string, pos Position, cause error) *ResolveError {
	return &ResolveError{Code: code, Message: message, Position: pos, Cause: cause}
}

// Error implements the error interface
func (e *ResolveError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf(ErrFmtWithCause, e.Message, e.Cause)
	}
	return fmt.Sprintf(ErrFmtWithPosition, msg, e.Position)
}

// Unwrap returns the underlying cause
func (e *ResolveError) Unwrap() error {
	return e.Cause
}

// UnsupportedOperatorError is raised when an expression uses an operator
// symbol that has no table entry.
type UnsupportedOperatorError struct {
	Operator string
}

// Error implements the error interface
func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("unsupported operator: %q", e.Operator)
}

// ExprSyntaxError is a syntax error inside an expression. Offset is
// relative to the start of the expression text.
type ExprSyntaxError struct {
	Message string
	Token   string
	Offset  int
}

// Error implements the error interface
func (e *ExprSyntaxError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("%s %q at offset %d", e.Message, e.Token, e.Offset)
	}
	return fmt.Sprintf("%s at offset %d", e.Message, e.Offset)
}

// EvalError is a runtime failure while evaluating an expression
type EvalError struct {
	Message string
	Detail  string
	Cause   error
}

// NewEvalError creates an evaluation error
func NewEvalError(message, detail string) *EvalError {
	return &EvalError{Message: message, Detail: detail}
}

// Error implements the error interface
func (e *EvalError) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg = fmt.Sprintf(ErrFmtWithDetail, e.Message, e.Detail)
	}
	if e.Cause != nil {
		return fmt.Sprintf(ErrFmtWithCause, msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *EvalError) Unwrap() error {
	return e.Cause
}
