package api

import (
	"errors"

	"github.com/valyala/fasthttp"

	"chatstream/pkg/actions"
	"chatstream/pkg/calendar"
	"chatstream/pkg/directive"
	"chatstream/pkg/metrics"
	"chatstream/pkg/models"
	"chatstream/pkg/router"
)

func (h *handlers) listActions(ctx *fasthttp.RequestCtx) {
	cfgs, err := h.d.Store.LoadActions(ctx, router.Param(ctx, "agentId"))
	if err != nil {
		writeStoreError(ctx, "list_actions", err)
		return
	}
	if cfgs == nil {
		cfgs = []models.ActionConfig{}
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, map[string]any{"actions": cfgs})
}

func (h *handlers) putAction(ctx *fasthttp.RequestCtx) {
	var cfg models.ActionConfig
	if err := router.ReadJSON(ctx, &cfg); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid json body")
		return
	}
	cfg.AgentID = router.Param(ctx, "agentId")
	cfg.ID = router.Param(ctx, "actionId")
	if cfg.Status == "" {
		cfg.Status = models.ActionActive
	}
	if err := cfg.Validate(); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	if err := h.d.Store.SaveAction(ctx, cfg); err != nil {
		writeStoreError(ctx, "save_action", err)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, cfg)
}

func (h *handlers) deleteAction(ctx *fasthttp.RequestCtx) {
	if err := h.d.Store.DeleteAction(ctx, router.Param(ctx, "agentId"), router.Param(ctx, "actionId")); err != nil {
		writeStoreError(ctx, "delete_action", err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

type extractRequest struct {
	Text string `json:"text"`
}

type extractResponse struct {
	VisibleText string             `json:"visible_text"`
	Attachment  *models.Attachment `json:"attachment,omitempty"`
	Dropped     *directive.Drop    `json:"dropped,omitempty"`
	Unresolved  string             `json:"unresolved,omitempty"`
}

// extract runs directive extraction and resolution on complete assistant
// text against the agent's current actions.
func (h *handlers) extract(ctx *fasthttp.RequestCtx) {
	var req extractRequest
	if err := router.ReadJSON(ctx, &req); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid json body")
		return
	}
	snap, err := actions.Load(ctx, h.d.Store, router.Param(ctx, "agentId"))
	if err != nil {
		writeStoreError(ctx, "load_actions", err)
		return
	}

	res := directive.Extract(req.Text)
	out := extractResponse{VisibleText: res.VisibleText, Dropped: res.Dropped}
	switch {
	case res.Dropped != nil:
		metrics.Directives.WithLabelValues(string(res.Dropped.Kind), "dropped").Inc()
	case res.Directive != nil:
		att, err := actions.Resolve(res.Directive, snap)
		if err != nil {
			metrics.Directives.WithLabelValues(string(res.Directive.Kind), "unresolved").Inc()
			out.Unresolved = res.Directive.ActionID
			break
		}
		metrics.Directives.WithLabelValues(string(res.Directive.Kind), "resolved").Inc()
		out.Attachment = att
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, out)
}

type bookingURLRequest struct {
	SchedulingURL string `json:"scheduling_url"`
	// Date is YYYY-MM-DD in Timezone.
	Date     string `json:"date"`
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
}

func (h *handlers) bookingURL(ctx *fasthttp.RequestCtx) {
	var req bookingURLRequest
	if err := router.ReadJSON(ctx, &req); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid json body")
		return
	}
	loc := h.d.Location
	if req.Timezone != "" {
		l, err := loadLocation(req.Timezone)
		if err != nil {
			router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "unknown timezone")
			return
		}
		loc = l
	}
	date, err := parseDate(req.Date, loc)
	if err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	link, err := calendar.BuildBookingURL(req.SchedulingURL, date, req.Time, loc)
	if err != nil {
		status := fasthttp.StatusBadRequest
		msg := err.Error()
		if errors.Is(err, calendar.ErrMissingSchedulingContext) {
			status = fasthttp.StatusUnprocessableEntity
			msg = calendar.UnavailableNotice
		}
		router.WriteJSONError(ctx, status, msg)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, map[string]string{"url": link})
}
