package promptl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"

	"github.com/itsatony/go-cuserr"
)

// Ollama defaults
const (
	OllamaHostEnv        = "OLLAMA_HOST"
	OllamaDefaultBaseURL = "http://127.0.0.1:11434"
	ollamaChatPath       = "/api/chat"
	ollamaMaxLineBytes   = 4 << 20
)

// OllamaProvider streams chat completions from an Ollama server
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaProvider creates a provider for the server at baseURL. An empty
// baseURL uses the local default. A nil client uses http.DefaultClient; no
// client timeout is set so long generations are bounded by the run context.
func NewOllamaProvider(baseURL string, client *http.Client) *OllamaProvider {
	if baseURL == "" {
		baseURL = OllamaDefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OllamaProvider{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

// Name implements Provider
func (p *OllamaProvider) Name() string {
	return ProviderNameOllama
}

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Images    []string         `json:"images,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaChatChunk struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// Invoke implements Provider
func (p *OllamaProvider) Invoke(ctx context.Context, req ProviderRequest) (ProviderStream, error) {
	baseURL := p.baseURL
	if req.Credentials.BaseURL != "" {
		baseURL = strings.TrimRight(req.Credentials.BaseURL, "/")
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    req.Model,
		Messages: ollamaMessages(req.Messages),
		Stream:   true,
		Options:  ollamaOptionsFrom(req.Config),
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+ollamaChatPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Credentials.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Credentials.APIKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	// the body is released when ctx ends even if Events is never drained
	release := context.AfterFunc(ctx, func() { resp.Body.Close() })
	return &ollamaStream{ctx: ctx, body: resp.Body, release: release, model: req.Model}, nil
}

func ollamaOptionsFrom(c Config) *ollamaOptions {
	opts := &ollamaOptions{}
	set := false
	if v, ok := configFloat(c, ConfigKeyTemperature); ok {
		opts.Temperature = &v
		set = true
	}
	if v, ok := configFloat(c, ConfigKeyTopP); ok {
		opts.TopP = &v
		set = true
	}
	if v, ok := configFloat(c, ConfigKeyMaxTokens); ok {
		opts.NumPredict = int(v)
		set = true
	}
	if !set {
		return nil
	}
	return opts
}

func ollamaMessages(messages []Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		om := ollamaMessage{Role: m.Role, ToolName: m.ToolName}
		var text strings.Builder
		for _, c := range m.Content {
			switch v := c.(type) {
			case TextContent:
				text.WriteString(v.Text)
			case ImageContent:
				om.Images = append(om.Images, v.Source)
			case ToolCallContent:
				var tc ollamaToolCall
				tc.Function.Name = v.ToolName
				tc.Function.Arguments = v.ToolArguments
				om.ToolCalls = append(om.ToolCalls, tc)
			}
		}
		om.Content = text.String()
		out = append(out, om)
	}
	return out
}

// ollamaStream reads newline-delimited JSON chunks. The body is closed once
// Events finishes or the invoking context ends, whichever comes first.
type ollamaStream struct {
	ctx     context.Context
	body    io.ReadCloser
	release func() bool
	model   string

	mu      sync.Mutex
	drained bool
	failed  error
	builder responseBuilder
}

// Events implements ProviderStream
func (s *ollamaStream) Events() iter.Seq2[ProviderEvent, error] {
	return func(yield func(ProviderEvent, error) bool) {
		s.mu.Lock()
		if s.drained {
			s.mu.Unlock()
			return
		}
		s.drained = true
		s.mu.Unlock()
		defer func() {
			s.release()
			s.body.Close()
		}()

		fail := func(err error) {
			s.failed = err
			yield(ProviderEvent{}, err)
		}

		scanner := bufio.NewScanner(s.body)
		scanner.Buffer(make([]byte, 0, 64*1024), ollamaMaxLineBytes)
		toolIndex := 0
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk ollamaChatChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				fail(err)
				return
			}
			if chunk.Error != "" {
				fail(fmt.Errorf("ollama: %s", chunk.Error))
				return
			}
			if chunk.Model != "" {
				s.model = chunk.Model
			}
			for _, ev := range ollamaEvents(chunk, &toolIndex) {
				s.builder.add(ev)
				if !yield(ev, nil) {
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			fail(err)
			return
		}
		// the server closed the stream without a done chunk
		fail(io.ErrUnexpectedEOF)
	}
}

func ollamaEvents(chunk ollamaChatChunk, toolIndex *int) []ProviderEvent {
	var events []ProviderEvent
	if chunk.Message.Content != "" {
		events = append(events, ProviderEvent{Type: ProviderEventTextDelta, TextDelta: chunk.Message.Content})
	}
	for _, tc := range chunk.Message.ToolCalls {
		// ollama does not assign call ids
		id := fmt.Sprintf("call_%d", *toolIndex)
		*toolIndex++
		events = append(events, ProviderEvent{
			Type:     ProviderEventToolCall,
			ToolCall: &ToolCallContent{ToolCallID: id, ToolName: tc.Function.Name, ToolArguments: tc.Function.Arguments},
		})
	}
	if chunk.Done {
		reason := strings.ToLower(chunk.DoneReason)
		if reason == "" {
			reason = FinishReasonStop
		}
		events = append(events, ProviderEvent{
			Type:         ProviderEventFinish,
			FinishReason: reason,
			Usage: &Usage{
				PromptTokens:     chunk.PromptEvalCount,
				CompletionTokens: chunk.EvalCount,
				TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
			},
		})
	}
	return events
}

// Response implements ProviderStream
func (s *ollamaStream) Response() (*Response, error) {
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
