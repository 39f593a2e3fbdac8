package stream

import (
	"errors"
	"fmt"
)

type EventType string

const (
	EventStatus   EventType = "status"
	EventContent  EventType = "content"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one decoded backend frame.
type Event struct {
	Type EventType
	// Message is set for status and error events.
	Message string
	// Delta is the text fragment of a content event.
	Delta string
	// Metrics is the payload of a complete event.
	Metrics map[string]any
}

// ErrMalformedFrame marks a data payload that is not valid JSON. The decoder
// logs and skips these; it is exposed for callers that decode single frames.
var ErrMalformedFrame = errors.New("malformed stream frame")

// TransportError is returned when the connection fails or the backend
// answers with a non-success status.
type TransportError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("stream transport (status %d): %v", e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("stream transport: %v", e.Err)
	default:
		return fmt.Sprintf("stream transport: backend returned %d: %s", e.Status, e.Body)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }
