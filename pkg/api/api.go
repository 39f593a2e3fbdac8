// Package api serves the admin and integration HTTP surface of the daemon:
// health, stats, metrics, conversation reads, action management and the
// directive and booking helpers used by thin clients.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"chatstream/pkg/limiter"
	"chatstream/pkg/logger"
	"chatstream/pkg/router"
	"chatstream/pkg/store"
)

// Deps are the components handlers read from.
type Deps struct {
	Store *store.DB
	// Limiter is keyed by client ip; nil disables limiting.
	Limiter *limiter.Pool
	// Purge runs one retention pass on demand; nil disables the job route.
	Purge func(ctx context.Context) (int, error)
	// Location is the default zone for booking times.
	Location *time.Location
	Version  string
}

type handlers struct {
	d Deps
}

// RegisterRoutes wires all routes onto r.
func RegisterRoutes(r *router.Router, d Deps) {
	if d.Location == nil {
		d.Location = time.UTC
	}
	h := &handlers{d: d}

	r.GET("/healthz", h.healthz)
	r.GET("/readyz", h.readyz)

	r.GET("/v1/agents/{agentId}/conversations", h.listConversations)
	r.GET("/v1/conversations/{id}", h.getConversation)
	r.PUT("/v1/conversations/{id}", h.updateConversation)
	r.GET("/v1/conversations/{id}/messages", h.listMessages)

	r.GET("/v1/agents/{agentId}/actions", h.listActions)
	r.PUT("/v1/agents/{agentId}/actions/{actionId}", h.putAction)
	r.DELETE("/v1/agents/{agentId}/actions/{actionId}", h.deleteAction)

	r.POST("/v1/agents/{agentId}/extract", h.extract)
	r.POST("/v1/booking-url", h.bookingURL)

	r.GET("/admin/stats", h.stats)
	r.GET("/admin/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))
	r.POST("/admin/jobs/purge", h.purge)
}

// Handler returns the routed handler with rate limiting applied.
func Handler(d Deps) fasthttp.RequestHandler {
	r := router.New()
	r.Use(RateLimit(d.Limiter))
	RegisterRoutes(r, d)
	return r.Handler
}

// RateLimit rejects requests over the per-ip budget with 429.
func RateLimit(pool *limiter.Pool) router.Middleware {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if !pool.Allow(ctx.RemoteIP().String()) {
				logger.Debug("api_rate_limited", "ip", ctx.RemoteIP().String(), "path", string(ctx.Path()))
				router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next(ctx)
		}
	}
}

// writeStoreError maps store errors onto status codes.
func writeStoreError(ctx *fasthttp.RequestCtx, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, "not found")
	case errors.Is(err, store.ErrInvalid):
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
	default:
		logger.Error("api_store_error", "op", op, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "internal error")
	}
}

func (h *handlers) healthz(ctx *fasthttp.RequestCtx) {
	router.WriteJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) readyz(ctx *fasthttp.RequestCtx) {
	if _, err := h.d.Store.Stats(ctx); err != nil {
		router.WriteJSON(ctx, fasthttp.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	ver := h.d.Version
	if ver == "" {
		ver = "dev"
	}
	router.WriteJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok", "version": ver})
}
