package handlers

import (
	"encoding/json"
	"net/http"
	"sync"

	"carechat/application/services"
)

// Frame is one serialized stream event. HTTP turn streams carry chunk and
// error frames only; message-based transports also get a done frame because
// the connection outlives the turn.
type Frame struct {
	ConversationID string `json:"conversationId,omitempty"`
	Chunk          string `json:"chunk,omitempty"`
	Error          string `json:"error,omitempty"`
	Done           bool   `json:"done,omitempty"`
}

// NewFrame converts a stream event into its wire frame
func NewFrame(event services.StreamEvent, conversationID string) Frame {
	frame := Frame{ConversationID: conversationID}
	switch event.Kind {
	case services.EventChunk:
		frame.Chunk = event.Text
	case services.EventError:
		frame.Error = event.Text
	case services.EventDone:
		frame.Done = true
	}
	return frame
}

// ndjsonSink writes one JSON object per line and flushes after every frame.
// Headers are committed on the first frame so errors raised before streaming
// starts can still become ordinary JSON error responses.
type ndjsonSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	enc     *json.Encoder
	mu      sync.Mutex
	started bool
}

func newNDJSONSink(w http.ResponseWriter) *ndjsonSink {
	flusher, _ := w.(http.Flusher)
	return &ndjsonSink{w: w, flusher: flusher, enc: json.NewEncoder(w)}
}

// Send implements services.EventSink
func (s *ndjsonSink) Send(event services.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.start()
	if event.Kind == services.EventDone {
		return nil
	}
	if err := s.enc.Encode(NewFrame(event, "")); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *ndjsonSink) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "application/x-ndjson")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	// Disable proxy buffering so frames reach the caller as they are written
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

// Started reports whether any frame has been written
func (s *ndjsonSink) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
