package promptl

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/itsatony/go-cuserr"
)

// Provider names
const (
	ProviderNameStatic = "static"
	ProviderNameFunc   = "func"
	ProviderNameGemini = "gemini"
	ProviderNameOllama = "ollama"
)

// Credentials are handed to the provider with every request
type Credentials struct {
	APIKey  string
	BaseURL string
}

// ProviderRequest is one model invocation
type ProviderRequest struct {
	Messages    []Message
	Model       string
	Config      Config
	Credentials Credentials
}

// Provider invokes a generative model. Implementations must honour ctx
// cancellation by ending the stream.
type Provider interface {
	Name() string
	Invoke(ctx context.Context, req ProviderRequest) (ProviderStream, error)
}

// ProviderStream is the result of one invocation. Events is a lazy, finite
// and non-restartable sequence; stopping iteration abandons the call.
// Response is valid once Events has been drained.
type ProviderStream interface {
	Events() iter.Seq2[ProviderEvent, error]
	Response() (*Response, error)
}

// ProviderFunc adapts a function to the Provider interface
type ProviderFunc func(ctx context.Context, req ProviderRequest) (ProviderStream, error)

// Name implements Provider
func (f ProviderFunc) Name() string {
	return ProviderNameFunc
}

// Invoke implements Provider
func (f ProviderFunc) Invoke(ctx context.Context, req ProviderRequest) (ProviderStream, error) {
	return f(ctx, req)
}

// responseBuilder folds provider events into a Response
type responseBuilder struct {
	text strings.Builder
	resp Response
}

func (b *responseBuilder) add(ev ProviderEvent) {
	switch ev.Type {
	case ProviderEventTextDelta:
		b.text.WriteString(ev.TextDelta)
	case ProviderEventToolCall:
		if ev.ToolCall != nil {
			b.resp.ToolCalls = append(b.resp.ToolCalls, *ev.ToolCall)
		}
	case ProviderEventFinish:
		b.resp.FinishReason = ev.FinishReason
	}
	if ev.Usage != nil {
		b.resp.Usage = *ev.Usage
	}
}

func (b *responseBuilder) build(model string) *Response {
	out := b.resp
	out.Text = b.text.String()
	out.Model = model
	return &out
}

// staticStream replays a fixed list of events, optionally failing after
// them
type staticStream struct {
	events []ProviderEvent
	err    error
	model  string

	mu      sync.Mutex
	drained bool
	failed  error
	builder responseBuilder
}

// NewStaticStream builds a stream that yields events and then err, if
// non-nil. The final response is accumulated from the events.
func NewStaticStream(model string, events []ProviderEvent, err error) ProviderStream {
	return &staticStream{events: events, err: err, model: model}
}

// Events implements ProviderStream
func (s *staticStream) Events() iter.Seq2[ProviderEvent, error] {
	return func(yield func(ProviderEvent, error) bool) {
		s.mu.Lock()
		if s.drained {
			s.mu.Unlock()
			return
		}
		s.drained = true
		s.mu.Unlock()

		for _, ev := range s.events {
			s.builder.add(ev)
			if !yield(ev, nil) {
				return
			}
		}
		if s.err != nil {
			s.failed = s.err
			yield(ProviderEvent{}, s.err)
		}
	}
}

// Response implements ProviderStream
func (s *staticStream) Response() (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.drained {
		return nil, cuserr.NewValidationError(ErrCodeProvider, ErrMsgResponseNotReady)
	}
	if s.failed != nil {
		return nil, s.failed
	}
	return s.builder.build(s.model), nil
}

// StaticProvider answers with scripted responses, one per invocation. Text
// is streamed word by word. Once the script is exhausted the last response
// repeats.
type StaticProvider struct {
	mu        sync.Mutex
	responses []*Response
	next      int
	requests  []ProviderRequest
}

// NewStaticProvider creates a provider answering with responses in order
func NewStaticProvider(responses ...*Response) *StaticProvider {
	return &StaticProvider{responses: responses}
}

// Name implements Provider
func (p *StaticProvider) Name() string {
	return ProviderNameStatic
}

// Requests returns every request received so far
func (p *StaticProvider) Requests() []ProviderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ProviderRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// Invoke implements Provider
func (p *StaticProvider) Invoke(ctx context.Context, req ProviderRequest) (ProviderStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.requests = append(p.requests, req)
	resp := &Response{}
	if len(p.responses) > 0 {
		i := p.next
		if i >= len(p.responses) {
			i = len(p.responses) - 1
		}
		resp = p.responses[i]
		p.next++
	}
	p.mu.Unlock()

	return NewStaticStream(req.Model, responseEvents(resp), nil), nil
}

// responseEvents renders a response as the event sequence a streaming
// provider would produce
func responseEvents(resp *Response) []ProviderEvent {
	var events []ProviderEvent
	for _, word := range splitWords(resp.Text) {
		events = append(events, ProviderEvent{Type: ProviderEventTextDelta, TextDelta: word})
	}
	for i := range resp.ToolCalls {
		tc := resp.ToolCalls[i]
		events = append(events, ProviderEvent{Type: ProviderEventToolCall, ToolCall: &tc})
	}
	usage := resp.Usage
	reason := resp.FinishReason
	if reason == "" {
		reason = FinishReasonStop
	}
	events = append(events, ProviderEvent{Type: ProviderEventFinish, FinishReason: reason, Usage: &usage})
	return events
}

// splitWords splits s into chunks that concatenate back to s
func splitWords(s string) []string {
	var out []string
	start := 0
	for i := 1; i < len(s); i++ {
		if s[i] == ' ' && s[i-1] != ' ' {
			out = append(out, s[start:i])
			start = i
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// configFloat reads a numeric config value. YAML frontmatter yields ints
// while step attributes yield float64.
func configFloat(c Config, key string) (float64, bool) {
	switch v := c[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}
