package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientOpen(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/ai/chat/stream", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, part := range []string{"Hi", " there"} {
			fmt.Fprintf(w, "data: {\"type\":\"content\",\"content\":%q}\n\n", part)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: {\"type\":\"complete\",\"metrics\":{}}\n\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/ai/chat/stream", 5*time.Second)
	s, err := c.Open(context.Background(), ChatRequest{
		Message:             "hello",
		AgentID:             "agent-1",
		ConversationHistory: []HistoryEntry{{Role: "user", Content: "earlier"}},
	})
	require.NoError(t, err)
	defer s.Close()

	var text string
	var completed bool
	for {
		ev, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		switch ev.Type {
		case EventContent:
			text += ev.Delta
		case EventComplete:
			completed = true
		}
	}
	assert.Equal(t, "Hi there", text)
	assert.True(t, completed)
	assert.Equal(t, "hello", got.Message)
	assert.Equal(t, "agent-1", got.AgentID)
	require.Len(t, got.ConversationHistory, 1)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestClientOpenNonSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Open(context.Background(), ChatRequest{Message: "x"})
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.Status)
	assert.Contains(t, te.Body, "model overloaded")
}

func TestClientCancelMidStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"type\":\"content\",\"content\":\"first\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewClient(srv.URL, 0).Open(ctx, ChatRequest{Message: "x"})
	require.NoError(t, err)
	defer s.Close()

	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "first", ev.Delta)

	cancel()
	ev, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, EventError, ev.Type)
	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Error(t, s.Err())
}
