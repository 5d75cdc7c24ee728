package promptl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// SSE header values for HTTP handlers serving a run
const (
	SSEContentType  = "text/event-stream"
	SSECacheControl = "no-cache"
	SSEConnection   = "keep-alive"
)

// SSEEncoder writes events as Server-Sent Events frames:
//
//	id: 3
//	event: latitude-event
//	data: {"type":"step",...}
type SSEEncoder struct {
	w       io.Writer
	flusher http.Flusher
}

// NewSSEEncoder creates an encoder. Frames are flushed after each event
// when w is an http.Flusher.
func NewSSEEncoder(w io.Writer) *SSEEncoder {
	flusher, _ := w.(http.Flusher)
	return &SSEEncoder{w: w, flusher: flusher}
}

// Encode writes one frame
func (e *SSEEncoder) Encode(ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Channel, data); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// SetSSEHeaders prepares an HTTP response for streaming
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", SSEContentType)
	w.Header().Set("Cache-Control", SSECacheControl)
	w.Header().Set("Connection", SSEConnection)
}

// StreamSSE drains a run into w. On a write failure or when ctx ends the
// run is closed so the producer stops invoking the provider.
func StreamSSE(ctx context.Context, w io.Writer, run *Run) error {
	enc := NewSSEEncoder(w)
	for {
		select {
		case ev, ok := <-run.Events():
			if !ok {
				return nil
			}
			if err := enc.Encode(ev); err != nil {
				run.logger.Warn(LogMsgSSEWriteFailed, zap.Int(LogFieldEventID, ev.ID), zap.Error(err))
				run.Close()
				return err
			}
		case <-ctx.Done():
			run.Close()
			return ctx.Err()
		}
	}
}
