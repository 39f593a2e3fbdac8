package api

import (
	"time"

	"github.com/valyala/fasthttp"

	"chatstream/pkg/logger"
	"chatstream/pkg/router"
	"chatstream/pkg/state"
)

type statsResponse struct {
	Conversations int     `json:"conversations"`
	Messages      uint64  `json:"messages"`
	Subscribers   int     `json:"subscribers"`
	Limiters      int     `json:"limiters"`
	DiskUsedPct   float64 `json:"disk_used_pct,omitempty"`
}

func (h *handlers) stats(ctx *fasthttp.RequestCtx) {
	st, err := h.d.Store.Stats(ctx)
	if err != nil {
		writeStoreError(ctx, "stats", err)
		return
	}
	out := statsResponse{
		Conversations: st.Conversations,
		Messages:      st.Messages,
		Subscribers:   st.Subscribers,
		Limiters:      h.d.Limiter.Len(),
	}
	if d, err := state.Disk(h.d.Store.Path()); err == nil {
		out.DiskUsedPct = d.UsedPct()
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, out)
}

func (h *handlers) purge(ctx *fasthttp.RequestCtx) {
	if h.d.Purge == nil {
		router.WriteJSONError(ctx, fasthttp.StatusNotImplemented, "retention disabled")
		return
	}
	n, err := h.d.Purge(ctx)
	if err != nil {
		logger.Error("admin_purge_failed", "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, map[string]int{"purged": n})
}

func loadLocation(name string) (*time.Location, error) {
	return time.LoadLocation(name)
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, loc)
}
