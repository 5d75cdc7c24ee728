package promptl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestNewGeminiProvider_RequiresKey(t *testing.T) {
	_, err := NewGeminiProvider(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMsgMissingAPIKey)
}

func TestGeminiConfig(t *testing.T) {
	config := geminiConfig(Config{ConfigKeyTemperature: 0.5, ConfigKeyTopP: 1, ConfigKeyMaxTokens: 128})
	require.NotNil(t, config.Temperature)
	assert.InDelta(t, 0.5, *config.Temperature, 1e-6)
	require.NotNil(t, config.TopP)
	assert.InDelta(t, 1.0, *config.TopP, 1e-6)
	assert.Equal(t, int32(128), config.MaxOutputTokens)

	empty := geminiConfig(nil)
	assert.Nil(t, empty.Temperature)
}

func TestGeminiContents(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: []MessageContent{TextContent{Text: "be brief"}}},
		{Role: RoleUser, Content: []MessageContent{TextContent{Text: "look"}, ImageContent{Source: "https://x.test/cat.jpg"}}},
		{Role: RoleAssistant, Content: []MessageContent{ToolCallContent{ToolCallID: "c1", ToolName: "search", ToolArguments: map[string]any{"q": "cats"}}}},
		{Role: RoleTool, ToolCallID: "c1", ToolName: "search", Content: []MessageContent{TextContent{Text: "3 cats"}}},
	}

	contents, system := geminiContents(messages)
	require.NotNil(t, system)
	require.Len(t, system.Parts, 1)
	assert.Equal(t, "be brief", system.Parts[0].Text)

	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	require.Len(t, contents[0].Parts, 2)
	require.NotNil(t, contents[0].Parts[1].FileData)
	assert.Equal(t, "image/jpeg", contents[0].Parts[1].FileData.MIMEType)

	assert.Equal(t, genai.RoleModel, contents[1].Role)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "c1", contents[1].Parts[0].FunctionCall.ID)
	assert.Equal(t, "search", contents[1].Parts[0].FunctionCall.Name)

	require.NotNil(t, contents[2].Parts[0].FunctionResponse)
	assert.Equal(t, "c1", contents[2].Parts[0].FunctionResponse.ID)
	assert.Equal(t, "3 cats", contents[2].Parts[0].FunctionResponse.Response[geminiToolResultKey])

	_, system = geminiContents(messages[1:])
	assert.Nil(t, system)
}

func TestGeminiEvents(t *testing.T) {
	chunk := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{
				genai.NewPartFromText("Hi"),
				genai.NewPartFromFunctionCall("search", map[string]any{"q": "x"}),
			}},
		}},
	}
	events := geminiEvents(chunk)
	require.Len(t, events, 2)
	assert.Equal(t, ProviderEventTextDelta, events[0].Type)
	assert.Equal(t, "Hi", events[0].TextDelta)
	assert.Equal(t, ProviderEventToolCall, events[1].Type)
	assert.Equal(t, "search", events[1].ToolCall.ToolName)

	final := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonMaxTokens}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     4,
			CandidatesTokenCount: 6,
			TotalTokenCount:      10,
		},
	}
	events = geminiEvents(final)
	require.Len(t, events, 1)
	assert.Equal(t, ProviderEventFinish, events[0].Type)
	assert.Equal(t, FinishReasonLength, events[0].FinishReason)
	assert.Equal(t, &Usage{PromptTokens: 4, CompletionTokens: 6, TotalTokens: 10}, events[0].Usage)
}

func TestGeminiFinishReason(t *testing.T) {
	assert.Equal(t, FinishReasonStop, geminiFinishReason(string(genai.FinishReasonStop)))
	assert.Equal(t, FinishReasonLength, geminiFinishReason(string(genai.FinishReasonMaxTokens)))
	assert.Equal(t, "safety", geminiFinishReason("SAFETY"))
}
