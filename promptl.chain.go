package promptl

import (
	"context"

	"github.com/itsatony/go-promptl/internal"
	"go.uber.org/zap"
)

// ChainState is the lifecycle state of a Chain.
type ChainState int

// Chain states.
const (
	ChainStepping ChainState = iota
	ChainCompleted
	ChainErrored
)

var chainStateNames = map[ChainState]string{
	ChainStepping:  "stepping",
	ChainCompleted: "completed",
	ChainErrored:   "errored",
}

// String returns the state name.
func (s ChainState) String() string {
	if name, ok := chainStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// StepResult is the outcome of one Chain.Step call.
type StepResult struct {
	// Step is the zero-based index of the resolved step
	Step int
	// Config is the step's config: frontmatter plus step attributes
	Config Config
	// Messages holds only the messages not emitted by earlier steps
	Messages []Message
	// Conversation is the full conversation up to and including this step
	Conversation *Conversation
	// Parameters lists inputs the template read but that were not supplied
	Parameters []string
	// Completed reports that no further step remains. A completed result
	// must not be sent to the provider.
	Completed bool
}

// Chain drives a document step by step. Each call to Step resolves the
// next step with every previous response replayed into the conversation.
// A Chain is not safe for concurrent use.
type Chain struct {
	engine    *Engine
	tmpl      *Template
	params    map[string]any
	refFn     ReferenceFn
	responses []internal.StepResponse
	last      *Response
	step      int
	sentCount int
	state     ChainState
	err       error
	logger    *zap.Logger
}

// NewChain creates a chain over a document. Documents with parse
// diagnostics are rejected.
func (e *Engine) NewChain(doc Document, params map[string]any, refFn ReferenceFn) (*Chain, error) {
	tmpl := e.Parse(doc.Path, doc.Source)
	if tmpl.HasErrors() {
		e.logger.Warn(LogMsgTemplateHasErrors,
			zap.String(LogFieldPath, doc.Path),
			zap.Int(LogFieldErrors, len(tmpl.errors)))
		return nil, NewTemplateHasErrorsError(doc.Path, tmpl.errors)
	}
	return &Chain{
		engine: e,
		tmpl:   tmpl,
		params: params,
		refFn:  refFn,
		state:  ChainStepping,
		logger: e.logger,
	}, nil
}

// State returns the current chain state.
func (c *Chain) State() ChainState {
	return c.state
}

// Err returns the error that moved the chain to ChainErrored.
func (c *Chain) Err() error {
	return c.err
}

// SentCount returns how many messages have been handed out so far,
// including the assistant messages of recorded responses.
func (c *Chain) SentCount() int {
	return c.sentCount
}

// LastResponse returns the most recent provider response.
func (c *Chain) LastResponse() *Response {
	return c.last
}

// Step resolves the next step. response is the provider's answer to the
// previous step and is ignored on the first call.
func (c *Chain) Step(ctx context.Context, response *Response) (*StepResult, error) {
	switch c.state {
	case ChainCompleted:
		return nil, NewChainStateError(ErrMsgChainCompleted, c.state)
	case ChainErrored:
		return nil, NewChainStateError(ErrMsgChainErrored, c.state)
	}

	if c.step > 0 {
		if response == nil {
			response = &Response{}
		}
		c.responses = append(c.responses, responseToInternal(response))
		c.last = response
		// the caller already holds the assistant turn the response produced
		c.sentCount++
	}

	result, err := c.engine.resolveTemplate(ctx, c.tmpl, c.params, c.refFn, c.step, c.responses)
	if err != nil {
		c.state = ChainErrored
		c.err = err
		return nil, err
	}

	messages := messagesFromInternal(result.Messages)
	start := c.sentCount
	if start > len(messages) {
		start = len(messages)
	}
	delta := make([]Message, len(messages)-start)
	copy(delta, messages[start:])

	out := &StepResult{
		Step:         c.step,
		Config:       Config(result.Config).Clone(),
		Messages:     delta,
		Conversation: &Conversation{Config: Config(result.Config), Messages: messages},
		Parameters:   result.Parameters,
		Completed:    result.Completed,
	}

	c.sentCount = len(messages)
	if result.Completed {
		c.state = ChainCompleted
	}
	c.step++

	c.logger.Debug(LogMsgStepStarted,
		zap.String(LogFieldPath, c.tmpl.path),
		zap.Int(LogFieldStep, out.Step),
		zap.Int(LogFieldMessages, len(delta)),
		zap.Bool(LogFieldCompleted, out.Completed))
	return out, nil
}
