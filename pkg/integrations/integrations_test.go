package integrations

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"chatstream/pkg/models"
)

// serve starts an in-memory backend and returns a client wired to it.
func serve(t *testing.T, h fasthttp.RequestHandler) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = srv.Shutdown()
		_ = ln.Close()
	})
	return New("http://backend.local", "ws1", 2*time.Second, WithDial(func(addr string) (net.Conn, error) {
		return ln.Dial()
	}))
}

func TestCreateTicket(t *testing.T) {
	var got TicketRequest
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		assert.Equal(t, ticketPath, string(ctx.Path()))
		assert.Equal(t, fasthttp.MethodPost, string(ctx.Method()))
		_ = json.Unmarshal(ctx.PostBody(), &got)
		ctx.SetContentType("application/json")
		_, _ = ctx.WriteString(`{"success":true,"data":{"ticket_id":"42","status":"new"}}`)
	})

	att := &models.TicketAttachment{Email: "a@b.com", Subject: "Login issue", Description: "Can't log in", Tags: []string{"chat"}}
	res, err := c.CreateTicket(context.Background(), TicketRequestFor("agent1", att))
	require.NoError(t, err)
	assert.Equal(t, "42", res.TicketID)
	assert.Equal(t, "new", res.Status)

	assert.Equal(t, "ws1", got.WorkspaceID)
	assert.Equal(t, "Customer", got.RequesterName)
	assert.Equal(t, "Can't log in", got.CommentBody)
	assert.Equal(t, []string{"chat"}, got.Tags)
}

func TestCreateTicketValidation(t *testing.T) {
	c := New("http://unused", "ws1", time.Second)
	tests := []struct {
		name string
		req  TicketRequest
	}{
		{"no email", TicketRequest{AgentID: "a", Subject: "s", CommentBody: "b"}},
		{"no body", TicketRequest{AgentID: "a", Subject: "s", RequesterEmail: "x@y.z"}},
		{"no agent", TicketRequest{Subject: "s", CommentBody: "b", RequesterEmail: "x@y.z"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreateTicket(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrMissingRequiredField)
		})
	}
}

func TestCreateTicketBackendError(t *testing.T) {
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusBadGateway)
		_, _ = ctx.WriteString(`{"success":false,"detail":"zendesk unreachable"}`)
	})
	_, err := c.CreateTicket(context.Background(), TicketRequest{AgentID: "a", Subject: "s", CommentBody: "b", RequesterEmail: "x@y.z"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, fasthttp.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "zendesk unreachable", apiErr.Message)
}

func TestGetSlots(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(7 * 24 * time.Hour)
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		args := ctx.QueryArgs()
		assert.Equal(t, "ws1", string(args.Peek("workspace_id")))
		assert.Equal(t, "agent1", string(args.Peek("agent_id")))
		assert.Equal(t, "https://api.calendly.com/event_types/E1", string(args.Peek("event_type_uri")))
		assert.Equal(t, "2025-03-10T09:00:00Z", string(args.Peek("start_time")))
		_, _ = ctx.WriteString(`{"success":true,"slots":[
			{"start_time":"2025-03-11T15:00:00Z","end_time":"2025-03-11T15:30:00Z"},
			{"start_time":"2025-03-11T14:00:00Z","end_time":"2025-03-11T14:30:00Z","scheduling_url":"https://calendly.com/acme/intro"}
		]}`)
	})

	slots, err := c.Slots("agent1").GetSlots(context.Background(), "https://api.calendly.com/event_types/E1", start, end)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, 14, slots[0].Start.Hour())
	assert.Equal(t, "https://calendly.com/acme/intro", slots[0].SchedulingURL)
}

func TestGetSlotsRejectsEmptyWindow(t *testing.T) {
	c := New("http://unused", "ws1", time.Second)
	now := time.Now()
	_, err := c.Slots("a").GetSlots(context.Background(), "E1", now, now)
	assert.Error(t, err)
	_, err = c.Slots("a").GetSlots(context.Background(), "", now, now.Add(time.Hour))
	assert.ErrorIs(t, err, ErrMissingRequiredField)
}

func TestSubmitLead(t *testing.T) {
	form := &models.FormAttachment{Fields: []models.FormField{
		{Name: "name", Required: true, Type: models.FieldText},
		{Name: "email", Required: true, Type: models.FieldEmail},
		{Name: "phone", Type: models.FieldPhone},
	}}

	var got Lead
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		_ = json.Unmarshal(ctx.PostBody(), &got)
		_, _ = ctx.WriteString(`{"success":true,"data":{"id":"lead-1"}}`)
	})

	receipt, err := c.SubmitLead(context.Background(), form, Lead{
		AgentID:  "agent1",
		ActionID: "f1",
		Data:     map[string]string{"name": " Ada ", "email": "ada@example.com", "extra": "dropped"},
	})
	require.NoError(t, err)
	assert.Equal(t, "lead-1", receipt.ID)
	assert.Equal(t, map[string]string{"name": "Ada", "email": "ada@example.com"}, got.Data)
	assert.Equal(t, "ws1", got.WorkspaceID)
}

func TestValidateLead(t *testing.T) {
	form := &models.FormAttachment{Fields: []models.FormField{
		{Name: "email", Required: true, Type: models.FieldEmail},
	}}
	_, err := ValidateLead(form, map[string]string{})
	assert.ErrorIs(t, err, ErrMissingRequiredField)

	_, err = ValidateLead(form, map[string]string{"email": "not-an-email"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingRequiredField)
}
