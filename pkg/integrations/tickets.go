package integrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/valyala/fasthttp"

	"chatstream/pkg/directive"
	"chatstream/pkg/metrics"
	"chatstream/pkg/models"
)

const ticketPath = "/api/zendesk/create-ticket"

type TicketRequest struct {
	WorkspaceID    string   `json:"workspace_id"`
	AgentID        string   `json:"agent_id"`
	Subject        string   `json:"subject"`
	CommentBody    string   `json:"comment_body"`
	RequesterEmail string   `json:"requester_email"`
	RequesterName  string   `json:"requester_name"`
	Tags           []string `json:"tags,omitempty"`
}

type TicketResult struct {
	TicketID string `json:"ticket_id"`
	Status   string `json:"status"`
}

type ticketResponse struct {
	envelope
	Data TicketResult `json:"data"`
}

// TicketRequestFor builds the sink payload from a resolved ticket attachment.
func TicketRequestFor(agentID string, t *models.TicketAttachment) TicketRequest {
	name := t.Name
	if name == "" {
		name = directive.DefaultRequesterName
	}
	return TicketRequest{
		AgentID:        agentID,
		Subject:        t.Subject,
		CommentBody:    t.Description,
		RequesterEmail: t.Email,
		RequesterName:  name,
		Tags:           t.Tags,
	}
}

// CreateTicket files a support ticket. The workspace id defaults to the
// client's.
func (c *Client) CreateTicket(ctx context.Context, req TicketRequest) (TicketResult, error) {
	if req.WorkspaceID == "" {
		req.WorkspaceID = c.workspaceID
	}
	required := [][2]string{
		{"workspace_id", req.WorkspaceID},
		{"agent_id", req.AgentID},
		{"subject", req.Subject},
		{"comment_body", req.CommentBody},
		{"requester_email", req.RequesterEmail},
	}
	for _, f := range required {
		if strings.TrimSpace(f[1]) == "" {
			metrics.Tickets.WithLabelValues("invalid").Inc()
			return TicketResult{}, fmt.Errorf("%w: %s", ErrMissingRequiredField, f[0])
		}
	}
	if req.RequesterName == "" {
		req.RequesterName = directive.DefaultRequesterName
	}

	var out ticketResponse
	if err := c.do(ctx, fasthttp.MethodPost, ticketPath, nil, req, &out); err != nil {
		metrics.Tickets.WithLabelValues("error").Inc()
		return TicketResult{}, err
	}
	if !out.Success {
		metrics.Tickets.WithLabelValues("error").Inc()
		return TicketResult{}, &APIError{Status: fasthttp.StatusOK, Message: firstNonEmpty(out.Error, out.Detail, "ticket not created")}
	}
	metrics.Tickets.WithLabelValues("created").Inc()
	return out.Data, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
