package router

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// WriteJSON writes v with the given status; zero keeps the current status.
func WriteJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetContentType("application/json")
	if status != 0 {
		ctx.SetStatusCode(status)
	}
	_ = json.NewEncoder(ctx).Encode(v)
}

func WriteJSONError(ctx *fasthttp.RequestCtx, status int, message string) {
	WriteJSON(ctx, status, map[string]string{"error": message})
}

// ReadJSON decodes the request body into v.
func ReadJSON(ctx *fasthttp.RequestCtx, v any) error {
	return json.Unmarshal(ctx.PostBody(), v)
}
