package promptl

import (
	"sync"

	"go.uber.org/zap"
)

// EventError is the payload of a terminal error event.
type EventError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// ChainEvent is a chain protocol event, sent on the latitude-event channel.
type ChainEvent struct {
	Type     ChainEventType `json:"type"`
	RunID    string         `json:"runId,omitempty"`
	Step     int            `json:"step"`
	Config   Config         `json:"config,omitempty"`
	Messages []Message      `json:"messages,omitempty"`
	Response *Response      `json:"response,omitempty"`
	Error    *EventError    `json:"error,omitempty"`
}

// IsTerminal reports whether the event ends a run.
func (e ChainEvent) IsTerminal() bool {
	return e.Type == ChainEventComplete || e.Type == ChainEventError
}

// ProviderEvent is a normalised provider stream event, passed through on the
// provider-event channel.
type ProviderEvent struct {
	Type         ProviderEventType `json:"type"`
	TextDelta    string            `json:"textDelta,omitempty"`
	ToolCall     *ToolCallContent  `json:"toolCall,omitempty"`
	FinishReason string            `json:"finishReason,omitempty"`
	Usage        *Usage            `json:"usage,omitempty"`
	// Raw carries the provider's native event when the adapter exposes it
	Raw any `json:"raw,omitempty"`
}

// Event is one frame of a run's output stream. IDs start at 0 and increase
// by one across both channels.
type Event struct {
	ID      int    `json:"id"`
	Channel string `json:"event"`
	Data    any    `json:"data"`
}

// ChainEvent returns the chain payload when the event is on the chain channel.
func (e Event) ChainEvent() (ChainEvent, bool) {
	ev, ok := e.Data.(ChainEvent)
	return ev, ok
}

// ProviderEvent returns the provider payload when the event is on the
// provider channel.
func (e Event) ProviderEvent() (ProviderEvent, bool) {
	ev, ok := e.Data.(ProviderEvent)
	return ev, ok
}

// eventWriter numbers events and delivers them on one channel. Sends block
// until the consumer reads or done is closed. done belongs to the consumer,
// so a terminal event can still be delivered after the run's context ends.
// Closing is idempotent and writes after close are dropped.
type eventWriter struct {
	mu        sync.Mutex
	out       chan Event
	done      <-chan struct{}
	nextID    int
	closed    bool
	closeOnce sync.Once
	logger    *zap.Logger
}

func newEventWriter(done <-chan struct{}, buffer int, logger *zap.Logger) *eventWriter {
	if buffer < 0 {
		buffer = DefaultEventBuffer
	}
	return &eventWriter{
		out:    make(chan Event, buffer),
		done:   done,
		logger: logger,
	}
}

// write sends one event. It returns errChannelClosed when the writer is
// closed or the consumer has gone away; the id is only consumed on delivery.
func (w *eventWriter) write(channel string, data any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errChannelClosed
	}
	ev := Event{ID: w.nextID, Channel: channel, Data: data}
	select {
	case w.out <- ev:
		w.nextID++
		return nil
	case <-w.done:
		return errChannelClosed
	}
}

// emit writes an event and swallows errChannelClosed. It reports whether
// the event was delivered.
func (w *eventWriter) emit(channel string, data any) bool {
	if err := w.write(channel, data); err != nil {
		w.logger.Debug(LogMsgEventDropped, zap.String(LogFieldChannel, channel))
		return false
	}
	return true
}

func (w *eventWriter) chain(ev ChainEvent) bool {
	return w.emit(ChannelChain, ev)
}

func (w *eventWriter) provider(ev ProviderEvent) bool {
	return w.emit(ChannelProvider, ev)
}

func (w *eventWriter) close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.closed = true
		close(w.out)
	})
}

// count returns the number of events delivered so far.
func (w *eventWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextID
}
