package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"chatstream/pkg/logger"
)

// HistoryEntry is one prior turn sent to the backend for context.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AIConfig carries model tuning forwarded to the backend.
type AIConfig struct {
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
}

// ChatRequest is the body posted to the backend stream endpoint.
type ChatRequest struct {
	Message             string         `json:"message"`
	ConversationHistory []HistoryEntry `json:"conversationHistory"`
	AgentID             string         `json:"agentId"`
	ConversationID      string         `json:"conversationId,omitempty"`
	AIConfig            AIConfig       `json:"aiConfig"`
}

// Opener opens a response stream for one turn.
type Opener interface {
	Open(ctx context.Context, req ChatRequest) (*Stream, error)
}

// Client posts chat requests to the backend and hands back a decodable stream.
type Client struct {
	url     string
	timeout time.Duration
	http    *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:     url,
		timeout: timeout,
		// no client-level timeout: streams are long-lived and bounded by the
		// per-turn context instead
		http: &http.Client{},
	}
}

// Open starts the request. The returned Stream owns the response body and
// must be closed on every path.
func (c *Client) Open(ctx context.Context, req ChatRequest) (*Stream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		cancel()
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		cancel()
		return nil, &TransportError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	logger.Debug("stream_opened", "url", c.url, "conversation", req.ConversationID)
	return NewStream(resp.Body, cancel), nil
}

// Stream couples a decoder with the resource it reads from.
type Stream struct {
	*Decoder
	body   io.ReadCloser
	cancel context.CancelFunc
	once   sync.Once
}

// NewStream wraps body. cancel may be nil.
func NewStream(body io.ReadCloser, cancel context.CancelFunc) *Stream {
	return &Stream{Decoder: NewDecoder(body), body: body, cancel: cancel}
}

// Close releases the underlying connection. Safe to call more than once, but
// only from the goroutine reading events; cancel the request context to
// interrupt a read from elsewhere.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		err = s.body.Close()
		s.Decoder.release()
	})
	return err
}
