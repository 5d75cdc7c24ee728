package promptl

import (
	"context"
	"fmt"
	"strconv"

	"github.com/itsatony/go-cuserr"
	"github.com/itsatony/go-promptl/internal"
	"go.uber.org/zap"
)

// Document is a prompt source addressed by path. The path anchors relative
// <prompt> references.
type Document struct {
	Path   string
	Source string
}

// ResolveInput is the input to Engine.Resolve
type ResolveInput struct {
	Document   Document
	Parameters map[string]any
	// ReferenceFn overrides the engine's reference function for this call
	ReferenceFn ReferenceFn
	// Step selects which <step> block to resolve; earlier blocks are replayed
	// with Responses[i] appended after block i
	Step      int
	Responses []*Response
}

// Engine compiles prompt documents. It is safe for concurrent use; the
// only shared mutable state is the mutex-guarded template cache and the
// function registry.
type Engine struct {
	config *engineConfig
	funcs  *internal.FuncRegistry
	cache  *TemplateCache
	logger *zap.Logger
}

// New creates a new promptl Engine with the given options.
func New(opts ...Option) (*Engine, error) {
	config := defaultEngineConfig()
	for _, opt := range opts {
		opt(config)
	}

	if config.maxReferenceDepth < 1 {
		return nil, cuserr.NewValidationError(ErrCodeValidation, ErrMsgInvalidReferenceDepth).
			WithMetadata(MetaKeyParameter, strconv.Itoa(config.maxReferenceDepth))
	}

	logger := config.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := config.cache
	if cache == nil && !config.cacheDisabled {
		cache = NewTemplateCache(DefaultTemplateCacheConfig())
	}

	e := &Engine{
		config: config,
		funcs:  internal.NewBuiltinFuncRegistry(),
		cache:  cache,
		logger: logger,
	}
	for _, f := range config.funcs {
		if err := e.RegisterFunc(f); err != nil {
			return nil, err
		}
	}

	logger.Debug(LogMsgEngineCreated, zap.Strings(LogFieldFuncs, e.funcs.List()))
	return e, nil
}

// MustNew creates a new Engine and panics if there's an error.
func MustNew(opts ...Option) *Engine {
	engine, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return engine
}

// Logger returns the engine's logger
func (e *Engine) Logger() *zap.Logger {
	return e.logger
}

// Parse parses a document. Syntax problems are collected on the returned
// Template instead of being returned as an error.
func (e *Engine) Parse(path, source string) *Template {
	if e.cache != nil {
		if tmpl, ok := e.cache.Get(path, source); ok {
			e.logger.Debug(LogMsgTemplateCacheHit, zap.String(LogFieldPath, path))
			return tmpl
		}
	}
	tmpl := parseTemplate(path, source, e.logger)
	e.logger.Debug(LogMsgTemplateParsed,
		zap.String(LogFieldPath, path),
		zap.Int(LogFieldErrors, len(tmpl.errors)))
	if e.cache != nil {
		e.cache.Set(path, source, tmpl)
	}
	return tmpl
}

// Resolve compiles a document into a Conversation. Parse diagnostics are
// reported in the metadata alongside a best-effort conversation; failures
// during resolution (reference depth, unsupported operators, evaluation
// errors) abort and are returned as *CompileError.
func (e *Engine) Resolve(ctx context.Context, in ResolveInput) (*Conversation, *ConversationMetadata, error) {
	tmpl := e.Parse(in.Document.Path, in.Document.Source)
	meta := &ConversationMetadata{
		Errors: tmpl.Errors(),
		source: in.Document.Source,
	}

	responses := make([]internal.StepResponse, 0, len(in.Responses))
	for _, r := range in.Responses {
		responses = append(responses, responseToInternal(r))
	}

	result, err := e.resolveTemplate(ctx, tmpl, in.Parameters, in.ReferenceFn, in.Step, responses)
	if err != nil {
		e.logger.Debug(LogMsgResolveFailed, zap.String(LogFieldPath, tmpl.path), zap.Error(err))
		return nil, meta, err
	}

	conv := &Conversation{
		Config:   Config(result.Config),
		Messages: messagesFromInternal(result.Messages),
	}
	meta.Hash = conv.Hash()
	meta.Config = conv.Config.Clone()
	meta.Parameters = result.Parameters
	meta.StepCount = result.StepCount

	if len(meta.Parameters) > 0 {
		e.logger.Debug(LogMsgParameterMissing,
			zap.String(LogFieldPath, tmpl.path),
			zap.Strings(LogFieldParameters, meta.Parameters))
	}
	e.logger.Debug(LogMsgResolveComplete,
		zap.String(LogFieldPath, tmpl.path),
		zap.Int(LogFieldMessages, len(conv.Messages)),
		zap.String(LogFieldHash, meta.Hash))
	return conv, meta, nil
}

// resolveTemplate runs the resolver for one step of a parsed template
func (e *Engine) resolveTemplate(ctx context.Context, tmpl *Template, params map[string]any, refFn ReferenceFn, step int, responses []internal.StepResponse) (*internal.ResolveResult, error) {
	if refFn == nil {
		refFn = e.config.referenceFn
	}
	result, err := internal.Resolve(ctx, tmpl.root, internal.ResolveOptions{
		Parameters:        params,
		Config:            tmpl.config,
		DocumentPath:      tmpl.path,
		Loader:            e.referenceLoader(refFn),
		Funcs:             e.funcs,
		MaxReferenceDepth: e.config.maxReferenceDepth,
		MaxLoopIterations: e.config.maxLoopIterations,
		StepIndex:         step,
		Responses:         responses,
		Logger:            e.logger,
	})
	if err != nil {
		return nil, toCompileError(tmpl.path, err)
	}
	return result, nil
}

// referenceLoader adapts a ReferenceFn to the resolver. Referenced sources
// go through the template cache like top-level documents.
func (e *Engine) referenceLoader(fn ReferenceFn) internal.ReferenceLoader {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, path string) (*internal.RootNode, error) {
		source, err := fn(ctx, path)
		if err != nil {
			return nil, err
		}
		tmpl := e.Parse(path, source)
		if tmpl.HasErrors() {
			return nil, fmt.Errorf("%s: %w", internal.ErrMsgReferenceParseFailed, tmpl.errors[0])
		}
		return tmpl.root, nil
	}
}
