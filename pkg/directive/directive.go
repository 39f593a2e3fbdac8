// Package directive finds inline action markers in assistant text.
//
// Four bracket forms are recognized, uppercase keywords only:
//
//	[BUTTON:<id>]
//	[FORM:<id>]
//	[CALENDLY:<id>]
//	[ZENDESK:<id>|email:<v>|name:<v>|subject:<v>|description:<v>]
//
// Every recognized bracket is removed from the visible text. Only the first
// one becomes the message's directive.
package directive

import (
	"regexp"
	"strings"
)

type Kind string

const (
	KindButton  Kind = "button"
	KindForm    Kind = "form"
	KindBooking Kind = "booking"
	KindTicket  Kind = "ticket"
)

// DefaultRequesterName is used when a ticket directive has no name field.
const DefaultRequesterName = "Customer"

// Ticket field keys.
const (
	FieldEmail       = "email"
	FieldName        = "name"
	FieldSubject     = "subject"
	FieldDescription = "description"
)

var keywords = map[string]Kind{
	"BUTTON":   KindButton,
	"FORM":     KindForm,
	"CALENDLY": KindBooking,
	"ZENDESK":  KindTicket,
}

// pattern matches a bracket and any whitespace after it, which is stripped
// along with the bracket.
var pattern = regexp.MustCompile(`\[(BUTTON|FORM|CALENDLY|ZENDESK):([^\]]+)\]\s*`)

// Directive is a parsed marker.
type Directive struct {
	Kind     Kind
	ActionID string
	// Fields holds ticket requester fields; nil for other kinds.
	Fields map[string]string
}

// DropReason explains why a recognized marker did not become a directive.
type DropReason string

const (
	ReasonMissingRequiredField DropReason = "missing_required_field"
	ReasonEmptyActionID        DropReason = "empty_action_id"
)

type Drop struct {
	Kind   Kind       `json:"kind"`
	Reason DropReason `json:"reason"`
	// Field names the missing field when Reason is ReasonMissingRequiredField.
	Field string `json:"field,omitempty"`
}

// Result is the outcome of Extract.
type Result struct {
	VisibleText string
	Directive   *Directive
	// Dropped is set when the first recognized marker was unusable.
	Dropped *Drop
	// Stripped counts recognized markers removed from the text.
	Stripped int
}

// Extract scans complete assistant text. It is pure; run it only after the
// stream has completed so a marker is never split.
func Extract(text string) Result {
	matches := pattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return Result{VisibleText: strings.TrimSpace(text)}
	}

	res := Result{Stripped: len(matches)}
	first := matches[0]
	kind := keywords[text[first[2]:first[3]]]
	body := text[first[4]:first[5]]
	res.Directive, res.Dropped = parse(kind, body)

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, m := range matches {
		b.WriteString(text[prev:m[0]])
		prev = m[1]
	}
	b.WriteString(text[prev:])
	res.VisibleText = strings.TrimSpace(b.String())
	return res
}

func parse(kind Kind, body string) (*Directive, *Drop) {
	if kind != KindTicket {
		id := strings.TrimSpace(body)
		if id == "" {
			return nil, &Drop{Kind: kind, Reason: ReasonEmptyActionID}
		}
		return &Directive{Kind: kind, ActionID: id}, nil
	}

	parts := strings.Split(body, "|")
	id := strings.TrimSpace(parts[0])
	if id == "" {
		return nil, &Drop{Kind: kind, Reason: ReasonEmptyActionID}
	}
	fields := map[string]string{}
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, ":")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		switch k {
		case FieldEmail, FieldName, FieldSubject, FieldDescription:
			fields[k] = strings.TrimSpace(v)
		}
	}
	for _, req := range []string{FieldEmail, FieldDescription} {
		if fields[req] == "" {
			return nil, &Drop{Kind: kind, Reason: ReasonMissingRequiredField, Field: req}
		}
	}
	if fields[FieldName] == "" {
		fields[FieldName] = DefaultRequesterName
	}
	return &Directive{Kind: kind, ActionID: id, Fields: fields}, nil
}
