package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/valyala/bytebufferpool"

	"chatstream/pkg/logger"
	"chatstream/pkg/metrics"
)

const readChunk = 4096

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// frame is the JSON body carried by a data line. The backend sends content
// deltas under "content"; "delta" is accepted as well.
type frame struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Content *string        `json:"content"`
	Delta   *string        `json:"delta"`
	Metrics map[string]any `json:"metrics"`
	Error   string         `json:"error"`
	Done    bool           `json:"done"`
}

// Decoder turns a byte stream of `data: <json>\n\n` frames into events.
// Frames may be split across reads at any byte boundary.
type Decoder struct {
	r       io.Reader
	pending *bytebufferpool.ByteBuffer
	chunk   []byte
	queue   []Event
	eof     bool
	done    bool
	err     error
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:       r,
		pending: bytebufferpool.Get(),
		chunk:   make([]byte, readChunk),
	}
}

// Next returns the next event. It returns io.EOF once the stream has ended,
// either by a [DONE] marker, the end of input, or after the single synthetic
// error event emitted for a transport failure.
func (d *Decoder) Next() (Event, error) {
	for {
		if len(d.queue) > 0 {
			ev := d.queue[0]
			d.queue = d.queue[1:]
			return ev, nil
		}
		if d.done {
			d.release()
			return Event{}, io.EOF
		}
		if line, ok := d.nextLine(); ok {
			d.handleLine(line)
			continue
		}
		if d.eof {
			// trailing line without a newline
			if d.pending != nil && d.pending.Len() > 0 {
				line := append([]byte(nil), d.pending.B...)
				d.pending.Reset()
				d.handleLine(line)
			}
			d.done = true
			continue
		}
		d.fill()
	}
}

// Err returns the transport failure that ended the stream, if any.
func (d *Decoder) Err() error { return d.err }

func (d *Decoder) fill() {
	if d.pending == nil {
		// released by Close
		d.done = true
		return
	}
	n, err := d.r.Read(d.chunk)
	if n > 0 {
		d.pending.Write(d.chunk[:n])
	}
	if err == nil {
		return
	}
	if errors.Is(err, io.EOF) {
		d.eof = true
		return
	}
	d.err = &TransportError{Err: err}
	metrics.StreamTransportErrors.Inc()
	logger.Warn("stream_transport_failed", "error", err)
	d.pending.Reset()
	d.queue = append(d.queue, Event{Type: EventError, Message: err.Error()})
	d.done = true
}

// nextLine pops one complete line from the pending buffer.
func (d *Decoder) nextLine() ([]byte, bool) {
	if d.pending == nil {
		return nil, false
	}
	i := bytes.IndexByte(d.pending.B, '\n')
	if i < 0 {
		return nil, false
	}
	line := append([]byte(nil), d.pending.B[:i]...)
	rest := copy(d.pending.B, d.pending.B[i+1:])
	d.pending.B = d.pending.B[:rest]
	return line, true
}

func (d *Decoder) handleLine(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasPrefix(line, dataPrefix) {
		// blank separators, comments, event:/id:/retry: fields
		return
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		metrics.StreamFrames.WithLabelValues("ignored").Inc()
		return
	}
	if bytes.Equal(payload, doneMarker) {
		d.done = true
		return
	}
	ev, ok, err := DecodeFrame(payload)
	if err != nil {
		metrics.StreamFrames.WithLabelValues("malformed").Inc()
		logger.Warn("sse_frame_malformed", "error", err, "payload", truncate(payload, 200))
		return
	}
	if !ok {
		metrics.StreamFrames.WithLabelValues("ignored").Inc()
		return
	}
	metrics.StreamFrames.WithLabelValues("ok").Inc()
	if ev.Type == "" {
		d.done = true
		return
	}
	d.queue = append(d.queue, ev)
}

// DecodeFrame parses a single data payload. ok is false for well-formed
// frames the engine does not act on. A frame that only says {"done":true}
// yields an event with an empty Type.
func DecodeFrame(payload []byte) (Event, bool, error) {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return Event{}, false, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch EventType(f.Type) {
	case EventStatus:
		return Event{Type: EventStatus, Message: f.Message}, true, nil
	case EventContent:
		switch {
		case f.Content != nil:
			return Event{Type: EventContent, Delta: *f.Content}, true, nil
		case f.Delta != nil:
			return Event{Type: EventContent, Delta: *f.Delta}, true, nil
		}
		return Event{}, false, nil
	case EventComplete:
		return Event{Type: EventComplete, Metrics: f.Metrics}, true, nil
	case EventError:
		msg := f.Message
		if msg == "" {
			msg = f.Error
		}
		return Event{Type: EventError, Message: msg}, true, nil
	case "":
		if f.Done {
			return Event{}, true, nil
		}
	}
	logger.Debug("sse_frame_unknown_type", "type", f.Type)
	return Event{}, false, nil
}

func (d *Decoder) release() {
	if d.pending != nil {
		bytebufferpool.Put(d.pending)
		d.pending = nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
