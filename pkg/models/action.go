package models

import (
	"fmt"
	"time"
)

type ActionType string

const (
	ActionButton  ActionType = "button"
	ActionForm    ActionType = "form"
	ActionBooking ActionType = "booking"
	ActionTicket  ActionType = "ticket"
)

type ActionStatus string

const (
	ActionActive   ActionStatus = "active"
	ActionInactive ActionStatus = "inactive"
	ActionDraft    ActionStatus = "draft"
)

// ActionConfig is an operator-defined action an assistant may reference by id.
type ActionConfig struct {
	ID        string         `json:"id" yaml:"id"`
	AgentID   string         `json:"agent_id" yaml:"agent_id"`
	Type      ActionType     `json:"type" yaml:"type"`
	Name      string         `json:"name" yaml:"name"`
	Status    ActionStatus   `json:"status" yaml:"status"`
	Button    *ButtonConfig  `json:"button,omitempty" yaml:"button,omitempty"`
	Form      *FormConfig    `json:"form,omitempty" yaml:"form,omitempty"`
	Booking   *BookingConfig `json:"booking,omitempty" yaml:"booking,omitempty"`
	Ticket    *TicketConfig  `json:"ticket,omitempty" yaml:"ticket,omitempty"`
	UpdatedTS int64          `json:"updated_ts,omitempty" yaml:"-"`
}

type ButtonConfig struct {
	Text         string `json:"text" yaml:"text"`
	URL          string `json:"url" yaml:"url"`
	OpenInNewTab bool   `json:"open_in_new_tab" yaml:"open_in_new_tab"`
}

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldPhone    FieldType = "phone"
	FieldTextarea FieldType = "textarea"
)

type FormField struct {
	Name        string    `json:"name" yaml:"name"`
	Label       string    `json:"label" yaml:"label"`
	Placeholder string    `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Required    bool      `json:"required" yaml:"required"`
	Type        FieldType `json:"type" yaml:"type"`
}

type FormConfig struct {
	Fields         []FormField `json:"fields" yaml:"fields"`
	SuccessMessage string      `json:"success_message,omitempty" yaml:"success_message,omitempty"`
	DismissMessage string      `json:"dismiss_message,omitempty" yaml:"dismiss_message,omitempty"`
}

type BookingConfig struct {
	EventRef        string `json:"event_ref" yaml:"event_ref"`
	EventName       string `json:"event_name,omitempty" yaml:"event_name,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty" yaml:"duration_minutes,omitempty"`
	SchedulingURL   string `json:"scheduling_url,omitempty" yaml:"scheduling_url,omitempty"`
}

// TicketConfig is routing metadata only; requester fields come from the directive.
type TicketConfig struct {
	Tags       []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	AssigneeID string   `json:"assignee_id,omitempty" yaml:"assignee_id,omitempty"`
	Priority   string   `json:"priority,omitempty" yaml:"priority,omitempty"`
}

func (a ActionConfig) Active() bool { return a.Status == ActionActive }

// Validate checks that the payload matching Type is present.
func (a ActionConfig) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("action id is required")
	}
	if a.AgentID == "" {
		return fmt.Errorf("action %s: agent id is required", a.ID)
	}
	switch a.Status {
	case ActionActive, ActionInactive, ActionDraft:
	default:
		return fmt.Errorf("action %s: unknown status %q", a.ID, a.Status)
	}
	switch a.Type {
	case ActionButton:
		if a.Button == nil || a.Button.URL == "" {
			return fmt.Errorf("action %s: button requires a url", a.ID)
		}
	case ActionForm:
		if a.Form == nil || len(a.Form.Fields) == 0 {
			return fmt.Errorf("action %s: form requires fields", a.ID)
		}
	case ActionBooking:
		if a.Booking == nil || a.Booking.EventRef == "" {
			return fmt.Errorf("action %s: booking requires an event ref", a.ID)
		}
	case ActionTicket:
		if a.Ticket == nil {
			return fmt.Errorf("action %s: ticket requires routing metadata", a.ID)
		}
	default:
		return fmt.Errorf("action %s: unknown type %q", a.ID, a.Type)
	}
	return nil
}

// TimeSlot is an open booking interval.
type TimeSlot struct {
	Start         time.Time `json:"start_time"`
	End           time.Time `json:"end_time"`
	SchedulingURL string    `json:"scheduling_url,omitempty"`
}
