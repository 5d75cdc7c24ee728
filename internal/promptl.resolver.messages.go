package internal

import (
	"strings"
)

// Message is a resolved conversation turn
type Message struct {
	Role       string
	Contents   []Content
	ToolCallID string
	ToolName   string
	Attributes map[string]any
}

// Content is one resolved content block. Kind selects which fields apply.
type Content struct {
	Kind       string
	Text       string
	Source     string
	ToolCallID string
	ToolName   string
	Arguments  map[string]any
}

// StepResponse is a provider response replayed into later steps
type StepResponse struct {
	Text      string
	ToolCalls []Content
}

// AssistantMessage converts the response into the assistant turn it produced
func (r StepResponse) AssistantMessage() Message {
	msg := Message{Role: RoleAssistant}
	if r.Text != "" {
		msg.Contents = append(msg.Contents, Content{Kind: ContentKindText, Text: r.Text})
	}
	msg.Contents = append(msg.Contents, r.ToolCalls...)
	return msg
}

// messageBuilder accumulates resolved output. Text is buffered until a
// boundary (message start/end, content tag, step) decides where it belongs.
type messageBuilder struct {
	messages []Message
	current  *Message // open explicit message, nil at root
	pending  strings.Builder
	capture  *strings.Builder // non-nil while resolving a content tag body
}

// writeText appends rendered text at the current output location
func (b *messageBuilder) writeText(s string) {
	if b.capture != nil {
		b.capture.WriteString(s)
		return
	}
	b.pending.WriteString(s)
}

// inMessage reports whether an explicit message is open
func (b *messageBuilder) inMessage() bool {
	return b.current != nil
}

// flushText turns pending text into a text content. At root it becomes an
// implicit system message.
func (b *messageBuilder) flushText() {
	text := normalizeText(b.pending.String())
	b.pending.Reset()
	if text == "" {
		return
	}
	content := Content{Kind: ContentKindText, Text: text}
	if b.current != nil {
		b.current.Contents = append(b.current.Contents, content)
		return
	}
	b.messages = append(b.messages, Message{Role: RoleSystem, Contents: []Content{content}})
}

// addContent appends a content block to the open message or, at root, to
// an implicit system message
func (b *messageBuilder) addContent(c Content) {
	b.flushText()
	if b.current != nil {
		b.current.Contents = append(b.current.Contents, c)
		return
	}
	b.messages = append(b.messages, Message{Role: RoleSystem, Contents: []Content{c}})
}

func (b *messageBuilder) openMessage(msg Message) {
	b.flushText()
	b.current = &msg
}

func (b *messageBuilder) closeMessage() {
	b.flushText()
	if b.current == nil {
		return
	}
	b.messages = append(b.messages, *b.current)
	b.current = nil
}

// appendMessage adds a complete message at root level
func (b *messageBuilder) appendMessage(msg Message) {
	b.flushText()
	b.messages = append(b.messages, msg)
}

// beginCapture redirects text into a fresh buffer and returns a function
// that restores the previous target and yields the captured text
func (b *messageBuilder) beginCapture() func() string {
	prev := b.capture
	buf := &strings.Builder{}
	b.capture = buf
	return func() string {
		b.capture = prev
		return buf.String()
	}
}

// normalizeText drops leading and trailing blank lines and removes the
// indentation shared by the remaining lines. Whitespace-only text is empty.
func normalizeText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	indent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
	}
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if len(line) >= indent {
			line = line[indent:]
		} else {
			line = strings.TrimLeft(line, " \t")
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}
