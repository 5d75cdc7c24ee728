package promptl

import (
	"go.uber.org/zap"
)

// Option is a functional option for configuring the Engine.
type Option func(*engineConfig)

// engineConfig holds the internal configuration for an Engine.
type engineConfig struct {
	maxReferenceDepth int
	maxLoopIterations int
	referenceFn       ReferenceFn
	cache             *TemplateCache
	cacheDisabled     bool
	funcs             []*Func
	logger            *zap.Logger
}

// defaultEngineConfig returns the default engine configuration.
func defaultEngineConfig() *engineConfig {
	return &engineConfig{
		maxReferenceDepth: DefaultMaxReferenceDepth,
		maxLoopIterations: DefaultMaxLoopIterations,
	}
}

// WithLogger sets the logger for the engine.
// Default: nil (no logging)
func WithLogger(logger *zap.Logger) Option {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithMaxReferenceDepth bounds how deeply <prompt> references may nest.
// Default: 50
func WithMaxReferenceDepth(depth int) Option {
	return func(c *engineConfig) {
		c.maxReferenceDepth = depth
	}
}

// WithMaxLoopIterations bounds the total iterations of a single for loop.
// Default: 10000
func WithMaxLoopIterations(n int) Option {
	return func(c *engineConfig) {
		c.maxLoopIterations = n
	}
}

// WithReferenceFn sets the function used to fetch referenced prompts.
// ResolveInput.ReferenceFn overrides it per call.
func WithReferenceFn(fn ReferenceFn) Option {
	return func(c *engineConfig) {
		c.referenceFn = fn
	}
}

// WithCache sets the parsed-template cache. A nil cache disables caching.
// Default: a TemplateCache with DefaultTemplateCacheConfig
func WithCache(cache *TemplateCache) Option {
	return func(c *engineConfig) {
		c.cache = cache
		c.cacheDisabled = cache == nil
	}
}

// WithFuncs registers custom expression functions at construction.
func WithFuncs(funcs ...*Func) Option {
	return func(c *engineConfig) {
		c.funcs = append(c.funcs, funcs...)
	}
}
