package promptl

import (
	"context"
	"testing"

	"github.com/itsatony/go-cuserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chainDoc = `---
model: base
---
Intro
<step as="first" model="a">
  <user>Step one for {{ topic }}</user>
</step>
<step temperature={{ 0.2 }}>
  <user>Refine: {{ first }}</user>
</step>`

func newTestChain(t *testing.T, source string, params map[string]any) *Chain {
	t.Helper()
	chain, err := MustNew().NewChain(Document{Path: "chain", Source: source}, params, nil)
	require.NoError(t, err)
	return chain
}

func TestChain_Steps(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain(t, chainDoc, map[string]any{"topic": "go"})
	assert.Equal(t, ChainStepping, chain.State())

	first, err := chain.Step(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Step)
	assert.False(t, first.Completed)
	assert.Equal(t, "a", first.Config.Model())
	require.Len(t, first.Messages, 2)
	assert.Equal(t, "Intro", first.Messages[0].Text())
	assert.Equal(t, "Step one for go", first.Messages[1].Text())
	assert.Equal(t, 2, chain.SentCount())

	second, err := chain.Step(ctx, &Response{Text: "draft"})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Step)
	assert.False(t, second.Completed)
	assert.Equal(t, "base", second.Config.Model())
	assert.Equal(t, 0.2, second.Config[ConfigKeyTemperature])
	require.Len(t, second.Messages, 1, "only the new user message is sent")
	assert.Equal(t, "Refine: draft", second.Messages[0].Text())
	require.Len(t, second.Conversation.Messages, 4)
	assert.Equal(t, RoleAssistant, second.Conversation.Messages[2].Role)
	assert.Equal(t, 4, chain.SentCount())

	last, err := chain.Step(ctx, &Response{Text: "final"})
	require.NoError(t, err)
	assert.True(t, last.Completed)
	assert.Empty(t, last.Messages)
	assert.Equal(t, ChainCompleted, chain.State())
	assert.Equal(t, "final", chain.LastResponse().Text)
	assert.Equal(t, 5, chain.SentCount())

	_, err = chain.Step(ctx, &Response{Text: "more"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMsgChainCompleted)
	assert.Equal(t, ErrorNameChain, errorName(err))

	var customErr *cuserr.CustomError
	require.ErrorAs(t, err, &customErr)
	state, _ := customErr.GetMetadata(MetaKeyState)
	assert.Equal(t, "completed", state)
}

// Every message of the final conversation is handed out exactly once across
// all steps, counting each response as the caller's own assistant turn.
func TestChain_DeltaCoversConversation(t *testing.T) {
	ctx := context.Background()
	src := "System\n<step><user>a</user></step><step><user>b</user><user>c</user></step><user>tail</user>"
	chain := newTestChain(t, src, nil)

	var sent []Message
	var response *Response
	var result *StepResult
	for i := 0; ; i++ {
		require.Less(t, i, 10)
		var err error
		result, err = chain.Step(ctx, response)
		require.NoError(t, err)
		if i > 0 {
			sent = append(sent, response.AssistantMessage())
		}
		sent = append(sent, result.Messages...)
		if result.Completed {
			break
		}
		response = &Response{Text: "r" + string(rune('0'+i))}
	}
	assert.Equal(t, result.Conversation.Messages, sent)
}

func TestChain_NoSteps(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain(t, "<user>hi</user>", nil)

	first, err := chain.Step(ctx, nil)
	require.NoError(t, err)
	assert.False(t, first.Completed)
	require.Len(t, first.Messages, 1)

	done, err := chain.Step(ctx, &Response{Text: "hello"})
	require.NoError(t, err)
	assert.True(t, done.Completed)
	assert.Empty(t, done.Messages)
	require.Len(t, done.Conversation.Messages, 2)
	assert.Equal(t, "hello", done.Conversation.Messages[1].Text())
}

func TestChain_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("parse errors reject the document", func(t *testing.T) {
		_, err := MustNew().NewChain(Document{Path: "bad", Source: "{{ endif }}"}, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrMsgTemplateHasErrors)
		var compileErr *CompileError
		assert.ErrorAs(t, err, &compileErr)
	})

	t.Run("resolve failure moves to errored", func(t *testing.T) {
		chain := newTestChain(t, "{{ for x in s }}{{ x }}{{ endfor }}", map[string]any{"s": 3})
		_, err := chain.Step(ctx, nil)
		var compileErr *CompileError
		require.ErrorAs(t, err, &compileErr)
		assert.Equal(t, ErrCodeIteration, compileErr.Code)
		assert.Equal(t, ChainErrored, chain.State())
		assert.Equal(t, err, chain.Err())

		_, err = chain.Step(ctx, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrMsgChainErrored)
	})

	t.Run("canceled context", func(t *testing.T) {
		chain := newTestChain(t, "a {{ b }}", nil)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := chain.Step(cctx, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestChainState_String(t *testing.T) {
	assert.Equal(t, "stepping", ChainStepping.String())
	assert.Equal(t, "completed", ChainCompleted.String())
	assert.Equal(t, "errored", ChainErrored.String())
	assert.Equal(t, "unknown", ChainState(9).String())
}
