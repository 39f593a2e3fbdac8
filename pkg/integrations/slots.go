package integrations

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/valyala/fasthttp"

	"chatstream/pkg/models"
)

const slotsPath = "/api/calendly/available-slots"

type slotsResponse struct {
	envelope
	Slots []models.TimeSlot `json:"slots"`
}

// Slots is the availability source for one agent.
type Slots struct {
	c       *Client
	agentID string
}

func (c *Client) Slots(agentID string) *Slots {
	return &Slots{c: c, agentID: agentID}
}

// GetSlots lists open slots for eventRef between start and end, sorted by
// start time. The caller bounds the span.
func (s *Slots) GetSlots(ctx context.Context, eventRef string, start, end time.Time) ([]models.TimeSlot, error) {
	if eventRef == "" {
		return nil, fmt.Errorf("%w: event_type_uri", ErrMissingRequiredField)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("empty availability window %s..%s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Set("workspace_id", s.c.workspaceID)
	args.Set("agent_id", s.agentID)
	args.Set("event_type_uri", eventRef)
	args.Set("start_time", start.UTC().Format(time.RFC3339))
	args.Set("end_time", end.UTC().Format(time.RFC3339))

	var out slotsResponse
	if err := s.c.do(ctx, fasthttp.MethodGet, slotsPath, args, nil, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &APIError{Status: fasthttp.StatusOK, Message: firstNonEmpty(out.Error, out.Detail, "no availability")}
	}
	sort.Slice(out.Slots, func(i, j int) bool { return out.Slots[i].Start.Before(out.Slots[j].Start) })
	return out.Slots, nil
}
