package promptl

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/itsatony/go-cuserr"
	"github.com/itsatony/go-promptl/internal"
)

// Error message constants - ALL error messages must be constants (NO MAGIC STRINGS)
const (
	// Compile errors
	ErrMsgFrontmatterFailed  = "failed to parse frontmatter"
	ErrMsgResolutionFailed   = "template resolution failed"
	ErrMsgTemplateHasErrors  = "template has syntax errors"
	ErrMsgReferenceNotFound  = "referenced prompt not found"
	ErrMsgReferenceFnMissing = "no reference function configured"

	// Engine errors
	ErrMsgFuncNilFunc     = "function cannot be nil"
	ErrMsgFuncEmptyName   = "function name cannot be empty"
	ErrMsgFuncRegisterErr = "failed to register function"
	ErrMsgSetConfigFailed = "failed to rewrite frontmatter"

	ErrMsgInvalidReferenceDepth = "max reference depth must be at least 1"

	// Chain and runner errors
	ErrMsgChainCompleted   = "chain has already completed"
	ErrMsgChainErrored     = "chain has failed and cannot continue"
	ErrMsgMissingModel     = "no model configured for step"
	ErrMsgNoProvider       = "no provider configured"
	ErrMsgProviderFailed   = "provider invocation failed"
	ErrMsgProviderNoResult = "provider stream ended without a response"
	ErrMsgRunCanceled      = "run canceled"
	ErrMsgMissingStorage   = "no storage configured"
	ErrMsgMissingAPIKey    = "provider credentials missing"
	ErrMsgChannelClosed    = "event channel closed"
	ErrMsgResponseNotReady = "response is not available until the stream is drained"
)

// Error code constants for cuserr categorization
const (
	ErrCodeValidation = "PROMPTL_VALIDATION"
	ErrCodeChainState = "PROMPTL_CHAIN_STATE"
	ErrCodeProvider   = "PROMPTL_PROVIDER"
	ErrCodeRun        = "PROMPTL_RUN"
	ErrCodeNotFound   = "PROMPTL_NOT_FOUND"
)

// Compile diagnostic codes
const (
	ErrCodeSyntax              = internal.ErrCodeSyntax
	ErrCodeConfig              = internal.ErrCodeConfig
	ErrCodeReference           = internal.ErrCodeReference
	ErrCodeReferenceDepth      = internal.ErrCodeReferenceDepth
	ErrCodeUnsupportedOperator = internal.ErrCodeUnsupportedOperator
	ErrCodeEvaluation          = internal.ErrCodeEvaluation
	ErrCodeIteration           = internal.ErrCodeIteration
	ErrCodeStructure           = internal.ErrCodeStructure
)

// errChannelClosed is returned by writes to a closed event channel. It is
// swallowed at the channel boundary.
var errChannelClosed = errors.New(ErrMsgChannelClosed)

// UnsupportedOperatorError is raised when an expression uses an operator
// without a table entry. It is always fatal to the resolution.
type UnsupportedOperatorError = internal.UnsupportedOperatorError

// Position represents a location in the source document
type Position struct {
	Offset int // Byte offset from start
	Line   int // 1-indexed line number
	Column int // 1-indexed column number
}

// String returns a human-readable position string
func (p Position) String() string {
	return fmt.Sprintf("line %d, column %d", p.Line, p.Column)
}

func positionFrom(p internal.Position) Position {
	return Position{Offset: p.Offset, Line: p.Line, Column: p.Column}
}

// CompileError is a parse or resolve diagnostic. Parse diagnostics are
// collected into ConversationMetadata.Errors; resolve diagnostics abort the
// resolution and are returned as the error.
type CompileError struct {
	Code     string
	Message  string
	Detail   string
	Path     string
	Position Position
	Cause    error
}

// Error implements the error interface
func (e *CompileError) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	loc := e.Position.String()
	if e.Path != "" {
		loc = e.Path + " " + loc
	}
	return fmt.Sprintf("[%s] %s (%s)", e.Code, msg, loc)
}

// Unwrap returns the underlying cause
func (e *CompileError) Unwrap() error {
	return e.Cause
}

// AsCustomError converts the diagnostic into a cuserr validation error
// carrying the position as metadata
func (e *CompileError) AsCustomError() *cuserr.CustomError {
	var err *cuserr.CustomError
	if e.Cause != nil {
		err = cuserr.WrapStdError(e.Cause, ErrCodeValidation, e.Message)
	} else {
		err = cuserr.NewValidationError(ErrCodeValidation, e.Message)
	}
	return err.
		WithMetadata(MetaKeyCode, e.Code).
		WithMetadata(MetaKeyPath, e.Path).
		WithMetadata(MetaKeyLine, strconv.Itoa(e.Position.Line)).
		WithMetadata(MetaKeyColumn, strconv.Itoa(e.Position.Column)).
		WithMetadata(MetaKeyOffset, strconv.Itoa(e.Position.Offset))
}

func compileErrorFromParse(path, code string, pe *internal.ParseError) *CompileError {
	return &CompileError{
		Code:     code,
		Message:  pe.Message,
		Detail:   pe.Detail,
		Path:     path,
		Position: positionFrom(pe.Position),
	}
}

// toCompileError classifies an error returned by the resolver
func toCompileError(path string, err error) error {
	var resolveErr *internal.ResolveError
	if errors.As(err, &resolveErr) {
		return &CompileError{
			Code:     resolveErr.Code,
			Message:  resolveErr.Message,
			Path:     path,
			Position: positionFrom(resolveErr.Position),
			Cause:    resolveErr.Cause,
		}
	}
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return err
	}
	if isContextError(err) {
		return err
	}
	return &CompileError{Code: ErrCodeEvaluation, Message: ErrMsgResolutionFailed, Path: path, Cause: err}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// isTypedRunError reports whether err already carries a run error type
func isTypedRunError(err error) bool {
	var providerErr *ProviderInvocationError
	var compileErr *CompileError
	var customErr *cuserr.CustomError
	return errors.As(err, &providerErr) || errors.As(err, &compileErr) || errors.As(err, &customErr)
}

// ProviderInvocationError wraps any failure surfaced by the model call. It
// always terminates the chain run.
type ProviderInvocationError struct {
	Provider string
	Model    string
	Cause    error
}

// Error implements the error interface
func (e *ProviderInvocationError) Error() string {
	msg := ErrMsgProviderFailed
	if e.Provider != "" {
		msg += " (" + e.Provider
		if e.Model != "" {
			msg += "/" + e.Model
		}
		msg += ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *ProviderInvocationError) Unwrap() error {
	return e.Cause
}

// NewProviderInvocationError wraps cause as a provider failure
func NewProviderInvocationError(provider, model string, cause error) error {
	return &ProviderInvocationError{Provider: provider, Model: model, Cause: cause}
}

// NewChainStateError creates an error for steps requested in a terminal state
func NewChainStateError(msg string, state ChainState) error {
	return cuserr.NewValidationError(ErrCodeChainState, msg).
		WithMetadata(MetaKeyCode, ErrCodeChainState).
		WithMetadata(MetaKeyState, state.String())
}

// NewMissingModelError creates an error for a step without a model
func NewMissingModelError(step int) error {
	return cuserr.NewValidationError(ErrCodeValidation, ErrMsgMissingModel).
		WithMetadata(MetaKeyStep, strconv.Itoa(step))
}

// NewTemplateHasErrorsError reports that a document cannot run because
// parsing produced diagnostics
func NewTemplateHasErrorsError(path string, errs []*CompileError) error {
	var cause error
	if len(errs) > 0 {
		cause = errs[0]
	}
	var err *cuserr.CustomError
	if cause != nil {
		err = cuserr.WrapStdError(cause, ErrCodeValidation, ErrMsgTemplateHasErrors)
	} else {
		err = cuserr.NewValidationError(ErrCodeValidation, ErrMsgTemplateHasErrors)
	}
	return err.WithMetadata(MetaKeyPath, path)
}

// NewDocumentNotFoundError creates an error for a missing prompt document
func NewDocumentNotFoundError(path string) error {
	return cuserr.NewNotFoundError(MetaKeyPath, ErrMsgReferenceNotFound).
		WithMetadata(MetaKeyPath, path)
}

// NewFuncRegistrationError creates an error for invalid custom functions
func NewFuncRegistrationError(msg, name string) error {
	return cuserr.NewValidationError(ErrCodeValidation, msg).
		WithMetadata(MetaKeyFunc, name)
}

// NewProviderConfigError creates an error for a provider that cannot be built
func NewProviderConfigError(provider, msg string) error {
	return cuserr.NewValidationError(ErrCodeProvider, msg).
		WithMetadata(MetaKeyProvider, provider)
}

// NewRunError wraps a run-level failure that is not attributable to the
// provider or the compiler
func NewRunError(msg string, cause error) error {
	if cause == nil {
		return cuserr.NewInternalError(ErrCodeRun, errors.New(msg))
	}
	return cuserr.WrapStdError(cause, ErrCodeRun, msg)
}

// errorName classifies err for the terminal error event
func errorName(err error) string {
	var providerErr *ProviderInvocationError
	var compileErr *CompileError
	var customErr *cuserr.CustomError
	switch {
	case isContextError(err):
		return ErrorNameCanceled
	case errors.As(err, &providerErr):
		return ErrorNameProviderInvocation
	case errors.As(err, &compileErr):
		return ErrorNameCompile
	case errors.As(err, &customErr):
		if code, ok := customErr.GetMetadata(MetaKeyCode); ok && code == ErrCodeChainState {
			return ErrorNameChain
		}
	}
	return ErrorNameUnknown
}
