package promptl

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
)

func newTestRunner(t *testing.T, opts ...RunnerOption) *Runner {
	t.Helper()
	engine := MustNew(WithLogger(zaptest.NewLogger(t)))
	return NewRunner(engine, opts...)
}

func collectEvents(t *testing.T, run *Run) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-run.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("run did not finish")
		}
	}
}

func chainEvents(events []Event) []ChainEvent {
	var out []ChainEvent
	for _, ev := range events {
		if ce, ok := ev.ChainEvent(); ok {
			out = append(out, ce)
		}
	}
	return out
}

func assertSingleTerminal(t *testing.T, events []Event) ChainEvent {
	t.Helper()
	require.NotEmpty(t, events)
	for i, ev := range events {
		assert.Equal(t, i, ev.ID, "ids are sequential")
	}
	chain := chainEvents(events)
	terminals := 0
	for _, ce := range chain {
		if ce.IsTerminal() {
			terminals++
		}
	}
	require.Equal(t, 1, terminals, "exactly one terminal event")
	last, ok := events[len(events)-1].ChainEvent()
	require.True(t, ok, "the terminal event is last")
	require.True(t, last.IsTerminal())
	return last
}

func TestRunner_Run(t *testing.T) {
	provider := NewStaticProvider(
		&Response{Text: "a draft", Usage: Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}},
		&Response{Text: "the final answer", Usage: Usage{PromptTokens: 6, CompletionTokens: 3, TotalTokens: 9}},
	)
	runner := newTestRunner(t, WithProvider(provider), WithCredentials(Credentials{APIKey: "k"}))

	run, err := runner.Run(context.Background(), RunInput{
		Document:   Document{Path: "chain", Source: chainDoc},
		Parameters: map[string]any{"topic": "go"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID())

	events := collectEvents(t, run)
	last := assertSingleTerminal(t, events)
	assert.Equal(t, ChainEventComplete, last.Type)
	assert.Equal(t, run.ID(), last.RunID)
	require.NotNil(t, last.Response)
	assert.Equal(t, "the final answer", last.Response.Text)
	assert.Len(t, last.Messages, 0, "nothing is left to send")

	chain := chainEvents(events)
	var types []ChainEventType
	for _, ce := range chain {
		types = append(types, ce.Type)
	}
	assert.Equal(t, []ChainEventType{
		ChainEventStep, ChainEventStepComplete,
		ChainEventStep, ChainEventStepComplete,
		ChainEventComplete,
	}, types)

	assert.Equal(t, "a", chain[0].Config.Model())
	require.Len(t, chain[0].Messages, 2)
	require.Len(t, chain[2].Messages, 1, "second step only carries the new message")
	assert.Equal(t, "Refine: a draft", chain[2].Messages[0].Text())
	assert.Equal(t, "a draft", chain[1].Response.Text)

	var text strings.Builder
	for _, ev := range events {
		if pe, ok := ev.ProviderEvent(); ok {
			assert.Equal(t, ChannelProvider, ev.Channel)
			text.WriteString(pe.TextDelta)
		} else {
			assert.Equal(t, ChannelChain, ev.Channel)
		}
	}
	assert.Equal(t, "a draftthe final answer", text.String())

	resp, err := run.Response()
	require.NoError(t, err)
	assert.Equal(t, "the final answer", resp.Text)
	assert.Equal(t, Usage{PromptTokens: 9, CompletionTokens: 5, TotalTokens: 14}, run.Usage())

	requests := provider.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, "a", requests[0].Model)
	assert.Equal(t, "base", requests[1].Model)
	assert.Len(t, requests[1].Messages, 4, "providers receive the full conversation")
	assert.Equal(t, "k", requests[1].Credentials.APIKey)
	assert.Equal(t, 0.2, requests[1].Config[ConfigKeyTemperature])
}

func TestRunner_SingleStep(t *testing.T) {
	provider := NewStaticProvider(&Response{Text: "hi there"})
	runner := newTestRunner(t, WithProvider(provider), WithDefaultModel("fallback"))

	run, err := runner.Run(context.Background(), RunInput{
		Document:   Document{Path: "plain", Source: "Say hi to {{ name }}"},
		Parameters: map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)

	events := collectEvents(t, run)
	last := assertSingleTerminal(t, events)
	assert.Equal(t, ChainEventComplete, last.Type)
	assert.Equal(t, 1, last.Step)
	assert.Equal(t, "hi there", last.Response.Text)

	requests := provider.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "fallback", requests[0].Model)
	require.Len(t, requests[0].Messages, 1)
	assert.Equal(t, "Say hi to Ada", requests[0].Messages[0].Text())
}

func TestRunner_LogsEventCount(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	runner := newTestRunner(t,
		WithProvider(NewStaticProvider(&Response{Text: "hi"})),
		WithDefaultModel("m"),
		WithRunnerLogger(zap.New(core)),
	)

	run, err := runner.Run(context.Background(), RunInput{Document: Document{Path: "plain", Source: "hello"}})
	require.NoError(t, err)
	events := collectEvents(t, run)
	_, err = run.Response()
	require.NoError(t, err)

	completed := logs.FilterMessage(LogMsgRunCompleted).All()
	require.Len(t, completed, 1)
	assert.EqualValues(t, len(events), completed[0].ContextMap()[LogFieldEventCount])
}

func TestRunner_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no provider", func(t *testing.T) {
		_, err := newTestRunner(t).Run(ctx, RunInput{Document: Document{Source: "x"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrMsgNoProvider)
	})

	t.Run("provider fails mid stream", func(t *testing.T) {
		boom := errors.New("connection reset")
		provider := ProviderFunc(func(ctx context.Context, req ProviderRequest) (ProviderStream, error) {
			return NewStaticStream(req.Model, []ProviderEvent{{Type: ProviderEventTextDelta, TextDelta: "par"}}, boom), nil
		})
		run, err := newTestRunner(t, WithProvider(provider), WithDefaultModel("m")).Run(ctx, RunInput{
			Document: Document{Path: "p", Source: "hello"},
		})
		require.NoError(t, err)

		events := collectEvents(t, run)
		last := assertSingleTerminal(t, events)
		assert.Equal(t, ChainEventError, last.Type)
		require.NotNil(t, last.Error)
		assert.Equal(t, ErrorNameProviderInvocation, last.Error.Name)
		assert.Contains(t, last.Error.Message, "connection reset")
		assert.NotEmpty(t, last.Error.Stack)
		require.Len(t, events, 3, "step, one provider delta, error")

		_, err = run.Response()
		assert.ErrorIs(t, err, boom)
		var pie *ProviderInvocationError
		assert.ErrorAs(t, err, &pie)
	})

	t.Run("provider rejects the call", func(t *testing.T) {
		provider := ProviderFunc(func(ctx context.Context, req ProviderRequest) (ProviderStream, error) {
			return nil, errors.New("unauthorized")
		})
		run, err := newTestRunner(t, WithProvider(provider), WithDefaultModel("m")).Run(ctx, RunInput{
			Document: Document{Path: "p", Source: "hello"},
		})
		require.NoError(t, err)
		last := assertSingleTerminal(t, collectEvents(t, run))
		assert.Equal(t, ErrorNameProviderInvocation, last.Error.Name)
	})

	t.Run("missing model", func(t *testing.T) {
		provider := NewStaticProvider(&Response{Text: "x"})
		run, err := newTestRunner(t, WithProvider(provider)).Run(ctx, RunInput{
			Document: Document{Path: "p", Source: "hello"},
		})
		require.NoError(t, err)

		last := assertSingleTerminal(t, collectEvents(t, run))
		assert.Equal(t, ChainEventError, last.Type)
		assert.Equal(t, ErrorNameCompile, last.Error.Name)
		assert.Contains(t, last.Error.Message, ErrMsgMissingModel)
		assert.Empty(t, provider.Requests())
	})

	t.Run("document with parse errors", func(t *testing.T) {
		provider := NewStaticProvider(&Response{Text: "x"})
		run, err := newTestRunner(t, WithProvider(provider), WithDefaultModel("m")).Run(ctx, RunInput{
			Document: Document{Path: "broken", Source: "{{ endif }}ok</user>"},
		})
		require.NoError(t, err)

		events := collectEvents(t, run)
		last := assertSingleTerminal(t, events)
		assert.Len(t, events, 1)
		assert.Equal(t, ChainEventError, last.Type)
		assert.Equal(t, ErrorNameCompile, last.Error.Name)
		assert.Empty(t, provider.Requests())
	})

	t.Run("evaluation error fails the step", func(t *testing.T) {
		provider := NewStaticProvider(&Response{Text: "x"})
		run, err := newTestRunner(t, WithProvider(provider), WithDefaultModel("m")).Run(ctx, RunInput{
			Document:   Document{Path: "p", Source: "{{ for x in s }}{{ x }}{{ endfor }}"},
			Parameters: map[string]any{"s": "abc"},
		})
		require.NoError(t, err)
		last := assertSingleTerminal(t, collectEvents(t, run))
		assert.Equal(t, ChainEventError, last.Type)
		assert.Equal(t, ErrorNameCompile, last.Error.Name)
	})
}

func TestRunner_ConsumerCancel(t *testing.T) {
	invoked := make(chan struct{})
	provider := ProviderFunc(func(ctx context.Context, req ProviderRequest) (ProviderStream, error) {
		close(invoked)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	run, err := newTestRunner(t, WithProvider(provider), WithDefaultModel("m")).Run(context.Background(), RunInput{
		Document: Document{Path: "p", Source: "hello"},
	})
	require.NoError(t, err)

	first := <-run.Events()
	step, ok := first.ChainEvent()
	require.True(t, ok)
	assert.Equal(t, ChainEventStep, step.Type)

	<-invoked
	run.Close()
	run.Close()

	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("producer did not stop")
	}
	for ev := range run.Events() {
		ce, ok := ev.ChainEvent()
		assert.False(t, ok && ce.IsTerminal(), "no terminal event after cancellation")
	}

	_, err = run.Response()
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_ParentContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := newTestRunner(t, WithProvider(NewStaticProvider()), WithDefaultModel("m")).Run(ctx, RunInput{
		Document: Document{Path: "p", Source: "hello"},
	})
	require.NoError(t, err)

	last := assertSingleTerminal(t, collectEvents(t, run))
	assert.Equal(t, ChainEventError, last.Type)
	require.NotNil(t, last.Error)
	assert.Equal(t, ErrorNameCanceled, last.Error.Name)

	_, err = run.Response()
	assert.ErrorIs(t, err, context.Canceled)
}

// blockingStream yields its events and then waits for ctx to end
type blockingStream struct {
	ctx    context.Context
	events []ProviderEvent
}

func (s *blockingStream) Events() iter.Seq2[ProviderEvent, error] {
	return func(yield func(ProviderEvent, error) bool) {
		for _, ev := range s.events {
			if !yield(ev, nil) {
				return
			}
		}
		<-s.ctx.Done()
		yield(ProviderEvent{}, s.ctx.Err())
	}
}

func (s *blockingStream) Response() (*Response, error) {
	return nil, s.ctx.Err()
}

func TestRunner_CallerDeadline(t *testing.T) {
	provider := ProviderFunc(func(ctx context.Context, req ProviderRequest) (ProviderStream, error) {
		return &blockingStream{ctx: ctx, events: []ProviderEvent{{Type: ProviderEventTextDelta, TextDelta: "par"}}}, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	run, err := newTestRunner(t, WithProvider(provider), WithDefaultModel("m")).Run(ctx, RunInput{
		Document: Document{Path: "p", Source: "hello"},
	})
	require.NoError(t, err)

	events := collectEvents(t, run)
	require.Len(t, events, 3, "step, one provider delta, error")
	last := assertSingleTerminal(t, events)
	assert.Equal(t, ChainEventError, last.Type)
	require.NotNil(t, last.Error)
	assert.NotEmpty(t, last.Error.Message)

	_, err = run.Response()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunner_CallerDeadlineWithSlowReader(t *testing.T) {
	provider := ProviderFunc(func(ctx context.Context, req ProviderRequest) (ProviderStream, error) {
		return &blockingStream{ctx: ctx}, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	run, err := newTestRunner(t, WithProvider(provider), WithDefaultModel("m")).Run(ctx, RunInput{
		Document: Document{Path: "p", Source: "hello"},
	})
	require.NoError(t, err)

	// the reader only starts after the deadline has passed
	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)

	last := assertSingleTerminal(t, collectEvents(t, run))
	assert.Equal(t, ChainEventError, last.Type)
}

func TestRunner_RateLimit(t *testing.T) {
	provider := NewStaticProvider(&Response{Text: "one"}, &Response{Text: "two"})
	runner := newTestRunner(t,
		WithProvider(provider),
		WithRateLimit(rate.Every(10*time.Millisecond), 1),
		WithEventBuffer(16),
	)

	run, err := runner.Run(context.Background(), RunInput{
		Document:   Document{Path: "chain", Source: chainDoc},
		Parameters: map[string]any{"topic": "x"},
	})
	require.NoError(t, err)
	resp, err := run.Response()
	require.NoError(t, err)
	assert.Equal(t, "two", resp.Text)
	assert.Len(t, provider.Requests(), 2)
}

func TestRunner_RunPath(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	require.NoError(t, store.Save(ctx, &StoredPrompt{Path: "prompts/intro", Source: "You help with {{ topic }}."}))
	require.NoError(t, store.Save(ctx, &StoredPrompt{
		Path:   "prompts/main",
		Source: "---\nmodel: m\n---\n<prompt path=\"intro\" topic={{ topic }} />\n<user>Go!</user>",
	}))

	provider := NewStaticProvider(&Response{Text: "done"})

	t.Run("loads and resolves references from storage", func(t *testing.T) {
		runner := newTestRunner(t, WithProvider(provider), WithStorage(store))
		run, err := runner.RunPath(ctx, "prompts/main", map[string]any{"topic": "testing"})
		require.NoError(t, err)
		resp, err := run.Response()
		require.NoError(t, err)
		assert.Equal(t, "done", resp.Text)

		requests := provider.Requests()
		require.NotEmpty(t, requests)
		messages := requests[len(requests)-1].Messages
		require.Len(t, messages, 2)
		assert.Equal(t, "You help with testing.", messages[0].Text())
	})

	t.Run("missing prompt", func(t *testing.T) {
		runner := newTestRunner(t, WithProvider(provider), WithStorage(store))
		_, err := runner.RunPath(ctx, "prompts/none", nil)
		assert.Error(t, err)
	})

	t.Run("no storage", func(t *testing.T) {
		_, err := newTestRunner(t, WithProvider(provider)).RunPath(ctx, "prompts/main", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrMsgMissingStorage)
	})
}

func TestStreamSSE(t *testing.T) {
	runner := newTestRunner(t, WithProvider(NewStaticProvider(&Response{Text: "ok"})), WithDefaultModel("m"))
	run, err := runner.Run(context.Background(), RunInput{Document: Document{Path: "p", Source: "hello"}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, StreamSSE(context.Background(), &buf, run))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "id: 0\nevent: latitude-event\ndata: {\"type\":\"step\""))
	assert.Contains(t, out, "event: provider-event\ndata: {\"type\":\"text-delta\",\"textDelta\":\"ok\"}")
	assert.Contains(t, out, "data: {\"type\":\"complete\"")
	assert.True(t, strings.HasSuffix(out, "\n\n"))

	resp, err := run.Response()
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestStreamSSE_WriteFailureClosesRun(t *testing.T) {
	provider := NewStaticProvider(&Response{Text: "ok"})
	runner := newTestRunner(t, WithProvider(provider), WithDefaultModel("m"))
	run, err := runner.Run(context.Background(), RunInput{Document: Document{Path: "p", Source: "hello"}})
	require.NoError(t, err)

	err = StreamSSE(context.Background(), failingWriter{}, run)
	require.Error(t, err)

	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("producer did not stop")
	}
	_, err = run.Response()
	assert.Error(t, err)
}
