package app

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"

	"chatstream/pkg/api"
)

// startHTTP builds and starts the fasthttp server, returning a channel that
// delivers the listen error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	cfg := a.eff.Config
	handler := api.Handler(api.Deps{
		Store:    a.store,
		Limiter:  a.apiLimiter,
		Purge:    a.retention.RunNow,
		Location: cfg.Location(),
		Version:  a.version,
	})

	const (
		readBufferSize       = 64 * 1024
		readTimeout          = 10 * time.Second
		writeTimeout         = 10 * time.Second
		idleTimeout          = 30 * time.Second
		maxKeepaliveDuration = 2 * time.Minute
	)
	a.srvFast = &fasthttp.Server{
		Name:                 "chatstream",
		Handler:              handler,
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   int(cfg.Limits.MaxBody.Int64()),
		ReduceMemoryUsage:    true,
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
	}

	errCh := make(chan error, 1)
	go func() {
		// plain TCP; TLS terminates at a proxy
		errCh <- a.srvFast.ListenAndServe(a.eff.Addr)
	}()
	return errCh
}
