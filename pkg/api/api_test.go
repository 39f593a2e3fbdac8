package api

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"chatstream/pkg/limiter"
	"chatstream/pkg/models"
	"chatstream/pkg/store"
)

type testServer struct {
	db     *store.DB
	client *fasthttp.Client
}

func newServer(t *testing.T, mod func(*Deps)) *testServer {
	t.Helper()
	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	d := Deps{Store: db, Version: "test"}
	if mod != nil {
		mod(&d)
	}
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: Handler(d)}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = srv.Shutdown()
		_ = ln.Close()
	})
	return &testServer{
		db: db,
		client: &fasthttp.Client{Dial: func(addr string) (net.Conn, error) {
			return ln.Dial()
		}},
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://chatstream.local" + path)
	req.Header.SetMethod(method)
	if body != "" {
		req.Header.SetContentType("application/json")
		req.SetBodyString(body)
	}
	require.NoError(t, s.client.DoTimeout(req, resp, 2*time.Second))

	var out map[string]any
	if b := resp.Body(); len(b) > 0 && strings.HasPrefix(string(resp.Header.ContentType()), "application/json") {
		require.NoError(t, json.Unmarshal(b, &out))
	}
	return resp.StatusCode(), out
}

func TestHealth(t *testing.T) {
	s := newServer(t, nil)
	status, body := s.do(t, "GET", "/healthz", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, "ok", body["status"])

	status, body = s.do(t, "GET", "/readyz", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, "test", body["version"])
}

func TestConversationRoutes(t *testing.T) {
	s := newServer(t, nil)
	ctx := context.Background()
	conv, err := s.db.CreateConversation(ctx, models.Conversation{AgentID: "agent1", DeviceID: "dev1"})
	require.NoError(t, err)
	_, err = s.db.AppendMessage(ctx, conv.ID, models.Message{Role: models.RoleUser, Content: "hello there"})
	require.NoError(t, err)

	status, body := s.do(t, "GET", "/v1/agents/agent1/conversations", "")
	require.Equal(t, 200, status)
	assert.Len(t, body["conversations"], 1)

	status, body = s.do(t, "GET", "/v1/conversations/"+conv.ID+"/messages", "")
	require.Equal(t, 200, status)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello there", msgs[0].(map[string]any)["content"])

	status, body = s.do(t, "PUT", "/v1/conversations/"+conv.ID, `{"title":" Pricing "}`)
	require.Equal(t, 200, status)
	assert.Equal(t, "Pricing", body["title"])

	status, _ = s.do(t, "GET", "/v1/conversations/nope/messages", "")
	assert.Equal(t, 404, status)

	status, _ = s.do(t, "PUT", "/v1/conversations/"+conv.ID, `{}`)
	assert.Equal(t, 400, status)
}

func TestActionsAndExtract(t *testing.T) {
	s := newServer(t, nil)

	status, body := s.do(t, "PUT", "/v1/agents/agent1/actions/abc123",
		`{"type":"button","name":"Site","button":{"text":"Visit site","url":"https://x.com"}}`)
	require.Equal(t, 200, status, body)
	assert.Equal(t, "active", body["status"])

	status, _ = s.do(t, "PUT", "/v1/agents/agent1/actions/bad", `{"type":"button","name":"No url"}`)
	assert.Equal(t, 400, status)

	status, body = s.do(t, "GET", "/v1/agents/agent1/actions", "")
	require.Equal(t, 200, status)
	assert.Len(t, body["actions"], 1)

	tests := []struct {
		name       string
		text       string
		visible    string
		attachment bool
		dropped    bool
		unresolved string
	}{
		{"resolved", "Thanks! [BUTTON:abc123]", "Thanks!", true, false, ""},
		{"unknown id", "Fill this in [FORM:unknown99]", "Fill this in", false, false, "unknown99"},
		{"dropped ticket", "Sure [ZENDESK:t1|name:Ann]", "Sure", false, true, ""},
		{"plain", "just text", "just text", false, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, _ := json.Marshal(map[string]string{"text": tt.text})
			status, body := s.do(t, "POST", "/v1/agents/agent1/extract", string(payload))
			require.Equal(t, 200, status)
			assert.Equal(t, tt.visible, body["visible_text"])
			assert.Equal(t, tt.attachment, body["attachment"] != nil)
			assert.Equal(t, tt.dropped, body["dropped"] != nil)
			if tt.unresolved != "" {
				assert.Equal(t, tt.unresolved, body["unresolved"])
			}
		})
	}

	status, _ = s.do(t, "DELETE", "/v1/agents/agent1/actions/abc123", "")
	assert.Equal(t, 204, status)
	_, body = s.do(t, "GET", "/v1/agents/agent1/actions", "")
	assert.Empty(t, body["actions"])
}

func TestBookingURL(t *testing.T) {
	s := newServer(t, nil)

	status, body := s.do(t, "POST", "/v1/booking-url",
		`{"scheduling_url":"https://calendly.com/acme/intro/2025-01-01T00:00:00+00:00","date":"2025-03-14","time":"2:30 PM","timezone":"America/New_York"}`)
	require.Equal(t, 200, status, body)
	assert.Equal(t, "https://calendly.com/acme/intro/2025-03-14T18:30:00+00:00", body["url"])

	status, body = s.do(t, "POST", "/v1/booking-url", `{"date":"2025-03-14","time":"2:30 PM"}`)
	assert.Equal(t, 422, status)
	assert.Equal(t, "Booking isn't available right now.", body["error"])

	status, _ = s.do(t, "POST", "/v1/booking-url", `{"scheduling_url":"https://x.com/a","date":"14/03/2025","time":"2:30 PM"}`)
	assert.Equal(t, 400, status)
}

func TestStatsAndPurge(t *testing.T) {
	var purged bool
	s := newServer(t, func(d *Deps) {
		d.Purge = func(ctx context.Context) (int, error) {
			purged = true
			return 3, nil
		}
	})
	_, err := s.db.CreateConversation(context.Background(), models.Conversation{AgentID: "agent1"})
	require.NoError(t, err)

	status, body := s.do(t, "GET", "/admin/stats", "")
	require.Equal(t, 200, status)
	assert.EqualValues(t, 1, body["conversations"])

	status, body = s.do(t, "POST", "/admin/jobs/purge", "")
	require.Equal(t, 200, status)
	assert.EqualValues(t, 3, body["purged"])
	assert.True(t, purged)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t, nil)
	status, _ := s.do(t, "GET", "/admin/metrics", "")
	assert.Equal(t, 200, status)
}

func TestRateLimit(t *testing.T) {
	pool := limiter.New(0.001, 2, time.Minute)
	defer pool.Shutdown()
	s := newServer(t, func(d *Deps) { d.Limiter = pool })

	for i := 0; i < 2; i++ {
		status, _ := s.do(t, "GET", "/healthz", "")
		require.Equal(t, 200, status)
	}
	status, body := s.do(t, "GET", "/healthz", "")
	assert.Equal(t, 429, status)
	assert.Equal(t, "rate limit exceeded", body["error"])
}
