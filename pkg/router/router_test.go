package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func request(r *Router, method, path string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	r.Handler(&ctx)
	return &ctx
}

func TestRouter(t *testing.T) {
	r := New()
	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) { WriteJSON(ctx, 0, map[string]string{"status": "ok"}) })
	r.GET("/v1/conversations/{id}/messages", func(ctx *fasthttp.RequestCtx) {
		WriteJSON(ctx, fasthttp.StatusOK, map[string]string{"id": Param(ctx, "id")})
	})
	r.POST("/v1/extract", func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusAccepted) })

	tests := []struct {
		name   string
		method string
		path   string
		status int
		body   string
	}{
		{"static", "GET", "/healthz", 200, "{\"status\":\"ok\"}\n"},
		{"trailing slash", "GET", "/healthz/", 200, "{\"status\":\"ok\"}\n"},
		{"param", "GET", "/v1/conversations/c1/messages", 200, "{\"id\":\"c1\"}\n"},
		{"wrong method", "GET", "/v1/extract", 405, "{\"error\":\"method not allowed\"}\n"},
		{"missing", "GET", "/nope", 404, "{\"error\":\"not found\"}\n"},
		{"empty param", "GET", "/v1/conversations//messages", 404, "{\"error\":\"not found\"}\n"},
		{"post", "POST", "/v1/extract", 202, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := request(r, tt.method, tt.path)
			assert.Equal(t, tt.status, ctx.Response.StatusCode())
			assert.Equal(t, tt.body, string(ctx.Response.Body()))
		})
	}
}

func TestMiddlewareOrder(t *testing.T) {
	r := New()
	var order []string
	mw := func(name string) Middleware {
		return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
			return func(ctx *fasthttp.RequestCtx) {
				order = append(order, name)
				next(ctx)
			}
		}
	}
	r.Use(mw("outer"), mw("inner"))
	r.GET("/", func(ctx *fasthttp.RequestCtx) { order = append(order, "handler") })

	request(r, "GET", "/")
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
