package integrations

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/valyala/fasthttp"

	"chatstream/pkg/models"
)

const leadsPath = "/api/leads"

// Lead is one submitted form.
type Lead struct {
	WorkspaceID    string            `json:"workspace_id"`
	AgentID        string            `json:"agent_id"`
	ActionID       string            `json:"action_id"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Data           map[string]string `json:"data"`
}

type LeadReceipt struct {
	ID string `json:"id"`
}

type leadResponse struct {
	envelope
	Data LeadReceipt `json:"data"`
}

// ValidateLead checks values against the form's fields. Unknown keys are
// dropped from values.
func ValidateLead(form *models.FormAttachment, values map[string]string) (map[string]string, error) {
	clean := make(map[string]string, len(form.Fields))
	for _, f := range form.Fields {
		v := strings.TrimSpace(values[f.Name])
		if v == "" {
			if f.Required {
				return nil, fmt.Errorf("%w: %s", ErrMissingRequiredField, f.Name)
			}
			continue
		}
		if f.Type == models.FieldEmail {
			if _, err := mail.ParseAddress(v); err != nil {
				return nil, fmt.Errorf("invalid email in %s: %w", f.Name, err)
			}
		}
		clean[f.Name] = v
	}
	return clean, nil
}

// SubmitLead posts the validated form values.
func (c *Client) SubmitLead(ctx context.Context, form *models.FormAttachment, lead Lead) (LeadReceipt, error) {
	data, err := ValidateLead(form, lead.Data)
	if err != nil {
		return LeadReceipt{}, err
	}
	lead.Data = data
	if lead.WorkspaceID == "" {
		lead.WorkspaceID = c.workspaceID
	}
	var out leadResponse
	if err := c.do(ctx, fasthttp.MethodPost, leadsPath, nil, lead, &out); err != nil {
		return LeadReceipt{}, err
	}
	if !out.Success {
		return LeadReceipt{}, &APIError{Status: fasthttp.StatusOK, Message: firstNonEmpty(out.Error, out.Detail, "lead not stored")}
	}
	return out.Data, nil
}
