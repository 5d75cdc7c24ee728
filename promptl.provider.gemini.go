package promptl

import (
	"context"
	"iter"
	"mime"
	"path"
	"strings"
	"sync"

	"github.com/itsatony/go-cuserr"
	"google.golang.org/genai"
)

// Gemini defaults
const (
	GeminiAPIKeyEnv      = "GEMINI_API_KEY"
	GeminiDefaultModel   = "gemini-2.0-flash"
	geminiDefaultImageMT = "image/png"
	geminiToolResultKey  = "result"
)

// GeminiProvider invokes Google Gemini models through the genai SDK
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a provider authenticated with apiKey
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, NewProviderConfigError(ProviderNameGemini, ErrMsgMissingAPIKey)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, cuserr.WrapStdError(err, ErrCodeProvider, ErrMsgProviderFailed).
			WithMetadata(MetaKeyProvider, ProviderNameGemini)
	}
	return &GeminiProvider{client: client}, nil
}

// Name implements Provider
func (p *GeminiProvider) Name() string {
	return ProviderNameGemini
}

// Invoke implements Provider
func (p *GeminiProvider) Invoke(ctx context.Context, req ProviderRequest) (ProviderStream, error) {
	contents, system := geminiContents(req.Messages)
	config := geminiConfig(req.Config)
	if system != nil {
		config.SystemInstruction = system
	}
	seq := p.client.Models.GenerateContentStream(ctx, req.Model, contents, config)
	return &geminiStream{seq: seq, model: req.Model}, nil
}

func geminiConfig(c Config) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if v, ok := configFloat(c, ConfigKeyTemperature); ok {
		config.Temperature = genai.Ptr(float32(v))
	}
	if v, ok := configFloat(c, ConfigKeyTopP); ok {
		config.TopP = genai.Ptr(float32(v))
	}
	if v, ok := configFloat(c, ConfigKeyMaxTokens); ok {
		config.MaxOutputTokens = int32(v)
	}
	return config
}

// geminiContents maps messages onto Gemini turns. System messages become
// the system instruction; tool results are sent as function responses.
func geminiContents(messages []Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var system []*genai.Part
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, geminiParts(m)...)
		case RoleTool:
			part := genai.NewPartFromFunctionResponse(m.ToolName, map[string]any{geminiToolResultKey: m.Text()})
			if part.FunctionResponse != nil {
				part.FunctionResponse.ID = m.ToolCallID
			}
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromParts(geminiParts(m), genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromParts(geminiParts(m), genai.RoleUser))
		}
	}
	if len(system) == 0 {
		return contents, nil
	}
	return contents, &genai.Content{Parts: system}
}

func geminiParts(m Message) []*genai.Part {
	parts := make([]*genai.Part, 0, len(m.Content))
	for _, c := range m.Content {
		switch v := c.(type) {
		case TextContent:
			parts = append(parts, genai.NewPartFromText(v.Text))
		case ImageContent:
			mt := mime.TypeByExtension(path.Ext(v.Source))
			if !strings.HasPrefix(mt, "image/") {
				mt = geminiDefaultImageMT
			}
			parts = append(parts, genai.NewPartFromURI(v.Source, mt))
		case ToolCallContent:
			part := genai.NewPartFromFunctionCall(v.ToolName, v.ToolArguments)
			if part.FunctionCall != nil {
				part.FunctionCall.ID = v.ToolCallID
			}
			parts = append(parts, part)
		}
	}
	return parts
}

// geminiStream adapts the SDK's response iterator
type geminiStream struct {
	seq   iter.Seq2[*genai.GenerateContentResponse, error]
	model string

	mu      sync.Mutex
	drained bool
	failed  error
	builder responseBuilder
}

// Events implements ProviderStream
func (s *geminiStream) Events() iter.Seq2[ProviderEvent, error] {
	return func(yield func(ProviderEvent, error) bool) {
		s.mu.Lock()
		if s.drained {
			s.mu.Unlock()
			return
		}
		s.drained = true
		s.mu.Unlock()

		for resp, err := range s.seq {
			if err != nil {
				s.failed = err
				yield(ProviderEvent{}, err)
				return
			}
			for _, ev := range geminiEvents(resp) {
				s.builder.add(ev)
				if !yield(ev, nil) {
					return
				}
			}
		}
	}
}

// Response implements ProviderStream
func (s *geminiStream) Response() (*Response, error) {
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

func geminiEvents(resp *genai.GenerateContentResponse) []ProviderEvent {
	var events []ProviderEvent
	if text := resp.Text(); text != "" {
		events = append(events, ProviderEvent{Type: ProviderEventTextDelta, TextDelta: text, Raw: resp})
	}
	for _, fc := range resp.FunctionCalls() {
		events = append(events, ProviderEvent{
			Type:     ProviderEventToolCall,
			ToolCall: &ToolCallContent{ToolCallID: fc.ID, ToolName: fc.Name, ToolArguments: fc.Args},
		})
	}

	// usage is cumulative; only the chunk carrying a finish reason reports it
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		ev := ProviderEvent{Type: ProviderEventFinish, FinishReason: geminiFinishReason(string(resp.Candidates[0].FinishReason))}
		if u := resp.UsageMetadata; u != nil {
			ev.Usage = &Usage{
				PromptTokens:     int(u.PromptTokenCount),
				CompletionTokens: int(u.CandidatesTokenCount),
				TotalTokens:      int(u.TotalTokenCount),
			}
		}
		events = append(events, ev)
	}
	return events
}

func geminiFinishReason(reason string) string {
	switch reason {
	case string(genai.FinishReasonStop):
		return FinishReasonStop
	case string(genai.FinishReasonMaxTokens):
		return FinishReasonLength
	}
	return strings.ToLower(reason)
}
