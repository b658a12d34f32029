package weft

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Stream is a response type for binary or streaming responses.
// Return *Stream from a handler to bypass the encoding pipeline.
type Stream struct {
	ContentType string
	Status      int
	Body        io.Reader
}

// SSEStream is a response type for server-sent events. The handler feeds
// events into the channel and closes it when done; the writer drains it,
// flushing after each event, and stops early if the client disconnects.
type SSEStream struct {
	Events <-chan SSEEvent
}

// SSEEvent is a single server-sent event.
type SSEEvent struct {
	// Event is the event type (optional). Maps to the "event:" field.
	Event string
	// Data is the event payload. Strings and []byte pass through; anything
	// else is JSON-encoded.
	Data any
	// ID is the event ID (optional). Maps to the "id:" field.
	ID string
	// Retry asks the client to wait this long before reconnecting
	// (optional). Maps to the "retry:" field, in milliseconds.
	Retry time.Duration
}

func writeStream(w http.ResponseWriter, s *Stream) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	if l, ok := s.Body.(interface{ Len() int }); ok {
		w.Header().Set("Content-Length", strconv.Itoa(l.Len()))
	}
	status := s.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if s.Body != nil {
		//nolint:errcheck,gosec // best-effort streaming copy
		io.Copy(w, s.Body)
	}
}

func writeSSEStream(w http.ResponseWriter, r *http.Request, s *SSEStream) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-s.Events:
			if !open {
				return
			}
			//nolint:errcheck // client gone is detected via ctx
			w.Write(formatSSEEvent(event))
			flusher.Flush()
		}
	}
}

// formatSSEEvent renders one event as a wire frame. Multi-line payloads
// become one "data:" line per line, as the protocol requires.
func formatSSEEvent(event SSEEvent) []byte {
	var buf bytes.Buffer
	if event.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", event.ID)
	}
	if event.Event != "" {
		fmt.Fprintf(&buf, "event: %s\n", event.Event)
	}
	if event.Retry > 0 {
		fmt.Fprintf(&buf, "retry: %d\n", event.Retry.Milliseconds())
	}

	var payload string
	switch v := event.Data.(type) {
	case string:
		payload = v
	case []byte:
		payload = string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			payload = err.Error()
		} else {
			payload = string(data)
		}
	}
	for line := range strings.SplitSeq(payload, "\n") {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}

	buf.WriteByte('\n')
	return buf.Bytes()
}
