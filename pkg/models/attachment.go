package models

import "fmt"

type AttachmentKind string

const (
	AttachmentButton  AttachmentKind = "button"
	AttachmentForm    AttachmentKind = "form"
	AttachmentBooking AttachmentKind = "booking"
	AttachmentTicket  AttachmentKind = "ticket"
)

// Attachment is a tagged union. Exactly one payload pointer is set and it
// matches Kind.
type Attachment struct {
	Kind     AttachmentKind     `json:"kind"`
	ActionID string             `json:"action_id"`
	Button   *ButtonAttachment  `json:"button,omitempty"`
	Form     *FormAttachment    `json:"form,omitempty"`
	Booking  *BookingAttachment `json:"booking,omitempty"`
	Ticket   *TicketAttachment  `json:"ticket,omitempty"`
}

type ButtonAttachment struct {
	Text         string `json:"text"`
	URL          string `json:"url"`
	OpenInNewTab bool   `json:"open_in_new_tab"`
}

type FormAttachment struct {
	Name           string      `json:"name"`
	Fields         []FormField `json:"fields"`
	SuccessMessage string      `json:"success_message,omitempty"`
	DismissMessage string      `json:"dismiss_message,omitempty"`
}

type BookingAttachment struct {
	EventRef        string `json:"event_ref"`
	EventName       string `json:"event_name,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	SchedulingURL   string `json:"scheduling_url,omitempty"`
}

// TicketAttachment carries the requester fields from the directive plus the
// routing metadata of the matched action. TicketID and State are filled
// once the ticket sink has answered.
type TicketAttachment struct {
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Subject     string   `json:"subject,omitempty"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	AssigneeID  string   `json:"assignee_id,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	TicketID    string   `json:"ticket_id,omitempty"`
	State       string   `json:"state,omitempty"`
	Err         string   `json:"error,omitempty"`
}

func (a *Attachment) Validate() error {
	if a == nil {
		return nil
	}
	set := 0
	var match bool
	if a.Button != nil {
		set++
		match = a.Kind == AttachmentButton
	}
	if a.Form != nil {
		set++
		match = a.Kind == AttachmentForm
	}
	if a.Booking != nil {
		set++
		match = a.Kind == AttachmentBooking
	}
	if a.Ticket != nil {
		set++
		match = a.Kind == AttachmentTicket
	}
	if set != 1 || !match {
		return fmt.Errorf("attachment %q must carry exactly one %s payload", a.ActionID, a.Kind)
	}
	return nil
}
