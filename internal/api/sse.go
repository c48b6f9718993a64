package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"gwi.com/fleet-copilot/internal/core"
)

var errNoFlusher = errors.New("response writer does not support flushing")

// sseEmitter writes each event as one server-sent "data:" frame and flushes it.
type sseEmitter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newSSEEmitter(w http.ResponseWriter) (*sseEmitter, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errNoFlusher
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &sseEmitter{w: w, f: f}, nil
}

func (e *sseEmitter) Emit(ev core.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", ev.EventType(), err)
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write %s event: %w", ev.EventType(), err)
	}
	e.f.Flush()
	return nil
}
