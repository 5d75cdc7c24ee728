package promptl

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/itsatony/go-promptl/internal"
)

// Config is the prompt-level configuration produced by frontmatter and
// folded by step attributes
type Config map[string]any

// Clone returns a shallow copy of the config
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Model returns the configured model name, "" when unset
func (c Config) Model() string {
	s, _ := c[ConfigKeyModel].(string)
	return s
}

// MessageContent is one content block of a message. The set of
// implementations is closed: TextContent, ImageContent, ToolCallContent.
type MessageContent interface {
	ContentType() string
	isMessageContent()
}

// TextContent is plain text
type TextContent struct {
	Text string
}

// ImageContent references an image by URL or data URI
type ImageContent struct {
	Source string
}

// ToolCallContent is a tool invocation requested by the assistant
type ToolCallContent struct {
	ToolCallID    string
	ToolName      string
	ToolArguments map[string]any
}

func (TextContent) ContentType() string     { return ContentTypeText }
func (ImageContent) ContentType() string    { return ContentTypeImage }
func (ToolCallContent) ContentType() string { return ContentTypeToolCall }

func (TextContent) isMessageContent()     {}
func (ImageContent) isMessageContent()    {}
func (ToolCallContent) isMessageContent() {}

// contentJSON is the wire shape shared by every content kind
type contentJSON struct {
	Type          string         `json:"type"`
	Text          string         `json:"text,omitempty"`
	Image         string         `json:"image,omitempty"`
	ToolCallID    string         `json:"toolCallId,omitempty"`
	ToolName      string         `json:"toolName,omitempty"`
	ToolArguments map[string]any `json:"args,omitempty"`
}

// MarshalJSON writes the content with its type discriminator
func (c TextContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(contentJSON{Type: ContentTypeText, Text: c.Text})
}

// MarshalJSON writes the content with its type discriminator
func (c ImageContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(contentJSON{Type: ContentTypeImage, Image: c.Source})
}

// MarshalJSON writes the content with its type discriminator
func (c ToolCallContent) MarshalJSON() ([]byte, error) {
	args := c.ToolArguments
	if args == nil {
		args = map[string]any{}
	}
	return json.Marshal(contentJSON{
		Type:          ContentTypeToolCall,
		ToolCallID:    c.ToolCallID,
		ToolName:      c.ToolName,
		ToolArguments: args,
	})
}

func decodeContent(raw json.RawMessage) (MessageContent, error) {
	var c contentJSON
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	switch c.Type {
	case ContentTypeText:
		return TextContent{Text: c.Text}, nil
	case ContentTypeImage:
		return ImageContent{Source: c.Image}, nil
	case ContentTypeToolCall:
		return ToolCallContent{ToolCallID: c.ToolCallID, ToolName: c.ToolName, ToolArguments: c.ToolArguments}, nil
	}
	return nil, fmt.Errorf("unknown content type %q", c.Type)
}

// Message is one conversation turn
type Message struct {
	Role       string
	Content    []MessageContent
	ToolCallID string
	ToolName   string
	Attributes map[string]any
}

type messageJSON struct {
	Role       string            `json:"role"`
	Content    []json.RawMessage `json:"content"`
	ToolCallID string            `json:"toolCallId,omitempty"`
	ToolName   string            `json:"toolName,omitempty"`
	Attributes map[string]any    `json:"attributes,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{
		Role:       m.Role,
		Content:    make([]json.RawMessage, 0, len(m.Content)),
		ToolCallID: m.ToolCallID,
		ToolName:   m.ToolName,
		Attributes: m.Attributes,
	}
	for _, c := range m.Content {
		raw, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		out.Content = append(out.Content, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Message) UnmarshalJSON(data []byte) error {
	var in messageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	m.Role = in.Role
	m.ToolCallID = in.ToolCallID
	m.ToolName = in.ToolName
	m.Attributes = in.Attributes
	m.Content = make([]MessageContent, 0, len(in.Content))
	for _, raw := range in.Content {
		c, err := decodeContent(raw)
		if err != nil {
			return err
		}
		m.Content = append(m.Content, c)
	}
	return nil
}

// Text concatenates the text contents of the message
func (m Message) Text() string {
	var s string
	for _, c := range m.Content {
		if t, ok := c.(TextContent); ok {
			s += t.Text
		}
	}
	return s
}

// Conversation is the resolved output of a document
type Conversation struct {
	Config   Config    `json:"config"`
	Messages []Message `json:"messages"`
}

// Hash returns the hex SHA-256 of the conversation's canonical JSON. Equal
// config and messages always hash equally.
func (c *Conversation) Hash() string {
	messages := c.Messages
	if messages == nil {
		messages = []Message{}
	}
	config := c.Config
	if config == nil {
		config = Config{}
	}
	data, err := json.Marshal(struct {
		Config   Config    `json:"config"`
		Messages []Message `json:"messages"`
	}{config, messages})
	if err != nil {
		// unencodable attribute values; fall back to a stable rendering
		data = []byte(fmt.Sprintf("%v|%v", config, messages))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Usage reports token accounting for one provider call
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Add accumulates another usage record
func (u *Usage) Add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}

// Response is the final result of a provider call
type Response struct {
	Text         string            `json:"text"`
	ToolCalls    []ToolCallContent `json:"toolCalls,omitempty"`
	Usage        Usage             `json:"usage"`
	Model        string            `json:"model,omitempty"`
	FinishReason string            `json:"finishReason,omitempty"`
}

// AssistantMessage converts the response into the assistant turn it produced
func (r *Response) AssistantMessage() Message {
	return messageFromInternal(responseToInternal(r).AssistantMessage())
}

func messageFromInternal(m internal.Message) Message {
	out := Message{
		Role:       m.Role,
		Content:    make([]MessageContent, 0, len(m.Contents)),
		ToolCallID: m.ToolCallID,
		ToolName:   m.ToolName,
		Attributes: m.Attributes,
	}
	for _, c := range m.Contents {
		switch c.Kind {
		case internal.ContentKindImage:
			out.Content = append(out.Content, ImageContent{Source: c.Source})
		case internal.ContentKindToolCall:
			out.Content = append(out.Content, ToolCallContent{ToolCallID: c.ToolCallID, ToolName: c.ToolName, ToolArguments: c.Arguments})
		default:
			out.Content = append(out.Content, TextContent{Text: c.Text})
		}
	}
	return out
}

func messagesFromInternal(ms []internal.Message) []Message {
	out := make([]Message, 0, len(ms))
	for _, m := range ms {
		out = append(out, messageFromInternal(m))
	}
	return out
}

func responseToInternal(r *Response) internal.StepResponse {
	if r == nil {
		return internal.StepResponse{}
	}
	out := internal.StepResponse{Text: r.Text}
	for _, tc := range r.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, internal.Content{
			Kind:       internal.ContentKindToolCall,
			ToolCallID: tc.ToolCallID,
			ToolName:   tc.ToolName,
			Arguments:  tc.ToolArguments,
		})
	}
	return out
}
