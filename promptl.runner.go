package promptl

import (
	"context"
	"fmt"
	"sync"

	crdb "github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/itsatony/go-cuserr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RunnerOption is a functional option for configuring a Runner.
type RunnerOption func(*runnerConfig)

type runnerConfig struct {
	provider     Provider
	defaultModel string
	credentials  Credentials
	limiter      *rate.Limiter
	eventBuffer  int
	storage      PromptStorage
	logger       *zap.Logger
}

// WithProvider sets the model provider. Required.
func WithProvider(p Provider) RunnerOption {
	return func(c *runnerConfig) {
		c.provider = p
	}
}

// WithDefaultModel sets the model used when a step's config has none.
func WithDefaultModel(model string) RunnerOption {
	return func(c *runnerConfig) {
		c.defaultModel = model
	}
}

// WithCredentials sets the credentials passed with every provider request.
func WithCredentials(creds Credentials) RunnerOption {
	return func(c *runnerConfig) {
		c.credentials = creds
	}
}

// WithRateLimit limits provider calls across all runs of the runner.
func WithRateLimit(limit rate.Limit, burst int) RunnerOption {
	return func(c *runnerConfig) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithEventBuffer sets the capacity of each run's event channel.
// Default: 0, every event waits for the consumer
func WithEventBuffer(n int) RunnerOption {
	return func(c *runnerConfig) {
		c.eventBuffer = n
	}
}

// WithStorage sets the prompt store used by RunPath.
func WithStorage(s PromptStorage) RunnerOption {
	return func(c *runnerConfig) {
		c.storage = s
	}
}

// WithRunnerLogger sets the runner's logger. Default: the engine's logger
func WithRunnerLogger(logger *zap.Logger) RunnerOption {
	return func(c *runnerConfig) {
		c.logger = logger
	}
}

// RunInput is the input to Runner.Run
type RunInput struct {
	Document   Document
	Parameters map[string]any
	// ReferenceFn overrides the engine's reference function for this run
	ReferenceFn ReferenceFn
}

// Runner executes documents as chains against a provider
type Runner struct {
	engine *Engine
	config *runnerConfig
	logger *zap.Logger
}

// NewRunner creates a runner on top of an engine
func NewRunner(engine *Engine, opts ...RunnerOption) *Runner {
	config := &runnerConfig{eventBuffer: DefaultEventBuffer}
	for _, opt := range opts {
		opt(config)
	}
	logger := config.logger
	if logger == nil {
		logger = engine.logger
	}
	return &Runner{engine: engine, config: config, logger: logger}
}

// Run starts a chain run. Events are produced on a separate goroutine and
// delivered in order through Run.Events. The run ends with exactly one
// complete or error event unless the consumer calls Run.Close first. When
// ctx ends, the run ends with an error event; callers that stop reading
// must call Run.Close or Run.Response so the producer can finish.
func (r *Runner) Run(ctx context.Context, in RunInput) (*Run, error) {
	if r.config.provider == nil {
		return nil, cuserr.NewValidationError(ErrCodeValidation, ErrMsgNoProvider)
	}

	runCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	logger := r.logger.With(zap.String(LogFieldRunID, id), zap.String(LogFieldPath, in.Document.Path))
	closed := make(chan struct{})
	run := &Run{
		id:     id,
		events: newEventWriter(closed, r.config.eventBuffer, logger),
		cancel: cancel,
		closed: closed,
		done:   make(chan struct{}),
		logger: logger,
	}

	logger.Info(LogMsgRunStarted, zap.String(LogFieldProvider, r.config.provider.Name()))
	go run.execute(runCtx, r, in)
	return run, nil
}

// RunPath loads the latest version of a stored prompt and runs it.
// References resolve against the same store unless the engine has its own
// reference function.
func (r *Runner) RunPath(ctx context.Context, path string, params map[string]any) (*Run, error) {
	if r.config.storage == nil {
		return nil, cuserr.NewValidationError(ErrCodeValidation, ErrMsgMissingStorage)
	}
	stored, err := r.config.storage.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	in := RunInput{
		Document:   Document{Path: stored.Path, Source: stored.Source},
		Parameters: params,
	}
	if r.engine.config.referenceFn == nil {
		in.ReferenceFn = StorageReferenceFn(r.config.storage)
	}
	return r.Run(ctx, in)
}

// Run is one chain execution
type Run struct {
	id        string
	events    *eventWriter
	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	logger    *zap.Logger

	mu       sync.Mutex
	response *Response
	usage    Usage
	err      error
}

// ID returns the run id
func (r *Run) ID() string {
	return r.id
}

// Events returns the ordered event channel. It is closed exactly once when
// the run ends.
func (r *Run) Events() <-chan Event {
	return r.events.out
}

// Done is closed when the producer has finished
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Close cancels the run from the consumer side. The producer stops before
// its next provider call and emits no further events. Safe to call more
// than once.
func (r *Run) Close() {
	r.closeOnce.Do(func() {
		close(r.closed)
	})
	r.cancel()
}

// consumerClosed reports whether Close has been called
func (r *Run) consumerClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

// Response waits for the run to finish and returns the final response or
// the error that ended the run. Events not yet read are discarded, so call
// it after ranging over Events or instead of it.
func (r *Run) Response() (*Response, error) {
	for range r.events.out {
	}
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.response, r.err
}

// Usage returns the token usage accumulated over all steps
func (r *Run) Usage() Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage
}

func (r *Run) execute(ctx context.Context, runner *Runner, in RunInput) {
	defer close(r.done)
	defer r.cancel()
	defer r.events.close()
	defer func() {
		if p := recover(); p != nil {
			r.fail(-1, crdb.Newf("panic during run: %v", p))
		}
	}()

	chain, err := runner.engine.NewChain(in.Document, in.Parameters, in.ReferenceFn)
	if err != nil {
		r.stop(0, err)
		return
	}

	var response *Response
	for {
		if err := ctx.Err(); err != nil {
			r.stop(chain.step, err)
			return
		}

		result, err := chain.Step(ctx, response)
		if err != nil {
			r.stop(chain.step, err)
			return
		}

		if result.Completed {
			r.complete(result, chain.LastResponse())
			return
		}

		if !r.events.chain(ChainEvent{
			Type:     ChainEventStep,
			RunID:    r.id,
			Step:     result.Step,
			Config:   result.Config,
			Messages: result.Messages,
		}) {
			r.abort(context.Canceled)
			return
		}

		resp, err := r.invoke(ctx, runner, result, in.Document.Path)
		if err != nil {
			r.stop(result.Step, err)
			return
		}

		r.mu.Lock()
		r.usage.Add(resp.Usage)
		r.mu.Unlock()

		r.logger.Debug(LogMsgStepCompleted,
			zap.Int(LogFieldStep, result.Step),
			zap.Int(LogFieldTokens, resp.Usage.TotalTokens))
		if !r.events.chain(ChainEvent{
			Type:     ChainEventStepComplete,
			RunID:    r.id,
			Step:     result.Step,
			Response: resp,
		}) {
			r.abort(context.Canceled)
			return
		}
		response = resp
	}
}

// invoke calls the provider for one step and forwards its events
func (r *Run) invoke(ctx context.Context, runner *Runner, result *StepResult, path string) (*Response, error) {
	provider := runner.config.provider
	model := result.Config.Model()
	if model == "" {
		model = runner.config.defaultModel
	}
	if model == "" {
		return nil, &CompileError{
			Code:    ErrCodeConfig,
			Message: ErrMsgMissingModel,
			Path:    path,
			Cause:   NewMissingModelError(result.Step),
		}
	}

	if limiter := runner.config.limiter; limiter != nil {
		if limiter.Tokens() < 1 {
			r.logger.Debug(LogMsgRateLimitWait, zap.Int(LogFieldStep, result.Step))
		}
		if err := limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, r.providerError(provider, model, err)
		}
	}

	r.logger.Debug(LogMsgProviderInvoke,
		zap.Int(LogFieldStep, result.Step),
		zap.String(LogFieldProvider, provider.Name()),
		zap.String(LogFieldModel, model),
		zap.Int(LogFieldMessages, len(result.Conversation.Messages)))

	stream, err := provider.Invoke(ctx, ProviderRequest{
		Messages:    result.Conversation.Messages,
		Model:       model,
		Config:      result.Config,
		Credentials: runner.config.credentials,
	})
	if err != nil {
		return nil, r.providerError(provider, model, err)
	}

	for ev, err := range stream.Events() {
		if err != nil {
			return nil, r.providerError(provider, model, err)
		}
		if !r.events.provider(ev) {
			// only a closed consumer refuses events
			return nil, context.Canceled
		}
	}

	resp, err := stream.Response()
	if err != nil {
		return nil, r.providerError(provider, model, err)
	}
	if resp == nil {
		return nil, r.providerError(provider, model, crdb.New(ErrMsgProviderNoResult))
	}
	return resp, nil
}

func (r *Run) providerError(provider Provider, model string, cause error) error {
	r.logger.Warn(LogMsgProviderFailed,
		zap.String(LogFieldProvider, provider.Name()),
		zap.String(LogFieldModel, model),
		zap.Error(cause))
	return NewProviderInvocationError(provider.Name(), model, cause)
}

func (r *Run) complete(result *StepResult, last *Response) {
	if last == nil {
		last = &Response{}
	}
	r.mu.Lock()
	r.response = last
	total := r.usage
	r.mu.Unlock()

	r.events.chain(ChainEvent{
		Type:     ChainEventComplete,
		RunID:    r.id,
		Step:     result.Step,
		Config:   result.Config,
		Messages: result.Messages,
		Response: last,
	})
	r.logger.Info(LogMsgRunCompleted,
		zap.Int(LogFieldStep, result.Step),
		zap.Int(LogFieldTokens, total.TotalTokens),
		zap.Int(LogFieldEventCount, r.events.count()))
}

// stop ends the run after err. A closed consumer gets no event; a context
// that ended on the caller's side becomes a canceled run error event.
func (r *Run) stop(step int, err error) {
	if r.consumerClosed() {
		r.abort(err)
		return
	}
	if isContextError(err) && !isTypedRunError(err) {
		err = NewRunError(ErrMsgRunCanceled, err)
	}
	r.fail(step, err)
}

// fail records err and emits the terminal error event
func (r *Run) fail(step int, err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()

	stacked := crdb.WithStack(err)
	r.events.chain(ChainEvent{
		Type:  ChainEventError,
		RunID: r.id,
		Step:  step,
		Error: &EventError{
			Name:    errorName(err),
			Message: err.Error(),
			Stack:   fmt.Sprintf("%+v", stacked),
		},
	})
	r.logger.Error(LogMsgRunFailed,
		zap.Int(LogFieldStep, step),
		zap.Int(LogFieldEventCount, r.events.count()),
		zap.Error(err))
}

// abort ends a run the consumer closed. No event is emitted; the consumer
// is no longer reading.
func (r *Run) abort(cause error) {
	r.mu.Lock()
	r.err = NewRunError(ErrMsgRunCanceled, context.Canceled)
	r.mu.Unlock()
	r.logger.Warn(LogMsgRunCanceled, zap.Error(cause))
}
