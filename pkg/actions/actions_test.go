package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstream/pkg/directive"
	"chatstream/pkg/models"
)

func testConfigs() []models.ActionConfig {
	return []models.ActionConfig{
		{ID: "demo", AgentID: "a1", Type: models.ActionButton, Name: "Book a demo", Status: models.ActionActive,
			Button: &models.ButtonConfig{URL: "https://example.com/demo", OpenInNewTab: true}},
		{ID: "old", AgentID: "a1", Type: models.ActionButton, Status: models.ActionInactive,
			Button: &models.ButtonConfig{Text: "Old", URL: "https://example.com/old"}},
		{ID: "lead", AgentID: "a1", Type: models.ActionForm, Name: "Contact us", Status: models.ActionActive,
			Form: &models.FormConfig{Fields: []models.FormField{{Name: "email", Label: "Email", Required: true, Type: models.FieldEmail}}, SuccessMessage: "Thanks!"}},
		{ID: "intro", AgentID: "a1", Type: models.ActionBooking, Status: models.ActionActive,
			Booking: &models.BookingConfig{EventRef: "evt-1", EventName: "Intro call", DurationMinutes: 30}},
		{ID: "t1", AgentID: "a1", Type: models.ActionTicket, Status: models.ActionActive,
			Ticket: &models.TicketConfig{Tags: []string{"chat", "support"}, Priority: "high"}},
		{ID: "other", AgentID: "a2", Type: models.ActionButton, Status: models.ActionActive,
			Button: &models.ButtonConfig{URL: "https://example.com"}},
		{ID: "broken", AgentID: "a1", Type: models.ActionButton, Status: models.ActionActive},
	}
}

type staticSource struct {
	configs []models.ActionConfig
	err     error
}

func (s staticSource) LoadActions(ctx context.Context, agentID string) ([]models.ActionConfig, error) {
	return s.configs, s.err
}

func TestLoadSnapshot(t *testing.T) {
	snap, err := Load(context.Background(), staticSource{configs: testConfigs()}, "a1")
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Len())
	_, ok := snap.Lookup("other")
	assert.False(t, ok, "configs of other agents are excluded")
	_, ok = snap.Lookup("broken")
	assert.False(t, ok, "invalid configs are excluded")

	ids := []string{}
	for _, c := range snap.Active() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"demo", "intro", "lead", "t1"}, ids)

	_, err = Load(context.Background(), staticSource{err: errors.New("offline")}, "a1")
	assert.Error(t, err)
}

func TestSnapshotIsImmutable(t *testing.T) {
	configs := testConfigs()
	snap := NewSnapshot("a1", configs)
	configs[0].Button.URL = "https://evil.example"
	configs[0].Status = models.ActionInactive

	c, ok := snap.Lookup("demo")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/demo", c.Button.URL)
	assert.True(t, c.Active())

	c.Button.URL = "mutated"
	again, _ := snap.Lookup("demo")
	assert.Equal(t, "https://example.com/demo", again.Button.URL)
}

func TestResolve(t *testing.T) {
	snap := NewSnapshot("a1", testConfigs())

	att, err := Resolve(&directive.Directive{Kind: directive.KindButton, ActionID: "demo"}, snap)
	require.NoError(t, err)
	require.NoError(t, att.Validate())
	assert.Equal(t, models.AttachmentButton, att.Kind)
	assert.Equal(t, "Book a demo", att.Button.Text, "falls back to the action name")
	assert.True(t, att.Button.OpenInNewTab)

	att, err = Resolve(&directive.Directive{Kind: directive.KindForm, ActionID: "lead"}, snap)
	require.NoError(t, err)
	assert.Equal(t, "Thanks!", att.Form.SuccessMessage)
	assert.Len(t, att.Form.Fields, 1)

	att, err = Resolve(&directive.Directive{Kind: directive.KindBooking, ActionID: "intro"}, snap)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", att.Booking.EventRef)

	att, err = Resolve(nil, snap)
	assert.NoError(t, err)
	assert.Nil(t, att)
}

func TestResolveTicket(t *testing.T) {
	snap := NewSnapshot("a1", testConfigs())
	res := directive.Extract("Ticket filed. [ZENDESK:t1|email:a@b.co|description:Can't log in]")
	require.NotNil(t, res.Directive)

	att, err := Resolve(res.Directive, snap)
	require.NoError(t, err)
	require.NoError(t, att.Validate())
	assert.Equal(t, models.AttachmentTicket, att.Kind)
	assert.Equal(t, "a@b.co", att.Ticket.Email)
	assert.Equal(t, "Customer", att.Ticket.Name)
	assert.Equal(t, "Can't log in", att.Ticket.Description)
	assert.Equal(t, []string{"chat", "support"}, att.Ticket.Tags)
	assert.Equal(t, "high", att.Ticket.Priority)
}

func TestResolveUnresolved(t *testing.T) {
	snap := NewSnapshot("a1", testConfigs())
	tests := []struct {
		name string
		d    directive.Directive
	}{
		{name: "unknown id", d: directive.Directive{Kind: directive.KindButton, ActionID: "nope"}},
		{name: "inactive", d: directive.Directive{Kind: directive.KindButton, ActionID: "old"}},
		{name: "type mismatch", d: directive.Directive{Kind: directive.KindForm, ActionID: "demo"}},
		{name: "other agent", d: directive.Directive{Kind: directive.KindButton, ActionID: "other"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			att, err := Resolve(&tt.d, snap)
			assert.Nil(t, att)
			assert.ErrorIs(t, err, ErrUnresolvedDirective)
		})
	}
}

func TestParseCatalog(t *testing.T) {
	doc := []byte(`
agent_id: a1
actions:
  - id: demo
    type: button
    name: Book a demo
    button:
      text: Book a demo
      url: https://example.com/demo
  - id: t1
    type: ticket
    status: draft
    ticket:
      tags: [chat]
`)
	configs, err := ParseCatalog(doc)
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "a1", configs[0].AgentID)
	assert.Equal(t, models.ActionActive, configs[0].Status)
	assert.Equal(t, models.ActionDraft, configs[1].Status)

	_, err = ParseCatalog([]byte("agent_id: a1\nactions:\n  - id: x\n    type: button\n"))
	assert.Error(t, err, "button without url")

	_, err = ParseCatalog([]byte("agent_id: a1\nactions:\n  - {id: x, type: ticket, ticket: {}}\n  - {id: x, type: ticket, ticket: {}}\n"))
	assert.Error(t, err, "duplicate id")
}
