package app

import (
	"context"

	"chatstream/pkg/logger"
	"chatstream/pkg/telemetry"
)

// Shutdown stops accepting requests, then stops background work and closes
// the store. It returns the first close error.
func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"
	logger.Info("shutdown_requested")

	if a.srvFast != nil {
		done := make(chan error, 1)
		go func() { done <- a.srvFast.Shutdown() }()
		select {
		case err := <-done:
			if err != nil {
				logger.Error("shutdown_http_failed", "error", err)
			}
		case <-ctx.Done():
			logger.Warn("shutdown_http_timeout", "error", ctx.Err())
		}
	}
	if a.retentionCancel != nil {
		a.retentionCancel()
	}
	a.apiLimiter.Shutdown()

	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Error("shutdown_store_close_failed", "error", err)
			firstErr = err
		}
	}
	telemetry.Close()

	a.state = "stopped"
	logger.Info("shutdown_complete")
	return firstErr
}

// State reports the lifecycle phase.
func (a *App) State() string { return a.state }
