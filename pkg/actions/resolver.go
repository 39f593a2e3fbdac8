package actions

import (
	"errors"
	"fmt"

	"chatstream/pkg/directive"
	"chatstream/pkg/models"
)

// ErrUnresolvedDirective is returned when a directive names no active action
// of the matching type. Callers drop the directive; the visible text stays.
var ErrUnresolvedDirective = errors.New("unresolved directive")

var kindToType = map[directive.Kind]models.ActionType{
	directive.KindButton:  models.ActionButton,
	directive.KindForm:    models.ActionForm,
	directive.KindBooking: models.ActionBooking,
	directive.KindTicket:  models.ActionTicket,
}

// Resolve turns d into an attachment using only active configs in snap.
func Resolve(d *directive.Directive, snap *Snapshot) (*models.Attachment, error) {
	if d == nil {
		return nil, nil
	}
	cfg, ok := snap.Lookup(d.ActionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s %q not configured", ErrUnresolvedDirective, d.Kind, d.ActionID)
	}
	if !cfg.Active() {
		return nil, fmt.Errorf("%w: %s %q is %s", ErrUnresolvedDirective, d.Kind, d.ActionID, cfg.Status)
	}
	if want := kindToType[d.Kind]; cfg.Type != want {
		return nil, fmt.Errorf("%w: %q is a %s action, not %s", ErrUnresolvedDirective, d.ActionID, cfg.Type, want)
	}

	att := &models.Attachment{ActionID: cfg.ID}
	switch cfg.Type {
	case models.ActionButton:
		att.Kind = models.AttachmentButton
		att.Button = &models.ButtonAttachment{
			Text:         cfg.Button.Text,
			URL:          cfg.Button.URL,
			OpenInNewTab: cfg.Button.OpenInNewTab,
		}
		if att.Button.Text == "" {
			att.Button.Text = cfg.Name
		}
	case models.ActionForm:
		att.Kind = models.AttachmentForm
		att.Form = &models.FormAttachment{
			Name:           cfg.Name,
			Fields:         cfg.Form.Fields,
			SuccessMessage: cfg.Form.SuccessMessage,
			DismissMessage: cfg.Form.DismissMessage,
		}
	case models.ActionBooking:
		att.Kind = models.AttachmentBooking
		att.Booking = &models.BookingAttachment{
			EventRef:        cfg.Booking.EventRef,
			EventName:       cfg.Booking.EventName,
			DurationMinutes: cfg.Booking.DurationMinutes,
			SchedulingURL:   cfg.Booking.SchedulingURL,
		}
	case models.ActionTicket:
		att.Kind = models.AttachmentTicket
		att.Ticket = &models.TicketAttachment{
			Email:       d.Fields[directive.FieldEmail],
			Name:        d.Fields[directive.FieldName],
			Subject:     d.Fields[directive.FieldSubject],
			Description: d.Fields[directive.FieldDescription],
			Tags:        cfg.Ticket.Tags,
			AssigneeID:  cfg.Ticket.AssigneeID,
			Priority:    cfg.Ticket.Priority,
		}
		if att.Ticket.Subject == "" {
			att.Ticket.Subject = "Support request"
		}
		if att.Ticket.Name == "" {
			att.Ticket.Name = directive.DefaultRequesterName
		}
	}
	return att, nil
}
