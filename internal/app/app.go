package app

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"

	"chatstream/internal/retention"
	"chatstream/pkg/config"
	"chatstream/pkg/limiter"
	"chatstream/pkg/logger"
	"chatstream/pkg/state"
	"chatstream/pkg/store"
	"chatstream/pkg/telemetry"
)

// App groups daemon state and components.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	store      *store.DB
	apiLimiter *limiter.Pool
	retention  *retention.Manager

	retentionCancel context.CancelFunc
	srvFast         *fasthttp.Server
	state           string
}

// New opens the store and builds components that need no running context.
// state.Init must have run.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	if state.PathsVar.Store == "" {
		return nil, fmt.Errorf("state paths not initialized")
	}
	cfg := eff.Config

	if cfg.Telemetry.Enabled {
		err := telemetry.Init(telemetry.Options{
			Dir:           state.PathsVar.Tel,
			SampleRate:    cfg.Telemetry.SampleRate,
			QueueCapacity: cfg.Telemetry.QueueCapacity,
			FlushInterval: cfg.Telemetry.FlushInterval.Duration(),
			MaxFileSize:   cfg.Telemetry.FileMaxSize.Int64(),
		})
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
	}

	db, err := store.Open(state.PathsVar.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", state.PathsVar.Store, err)
	}

	a := &App{
		eff:        eff,
		version:    version,
		commit:     commit,
		buildDate:  buildDate,
		store:      db,
		apiLimiter: limiter.New(cfg.Limits.APIRPS, cfg.Limits.APIBurst, cfg.Limits.IdleTTL.Duration()),
		retention:  retention.New(cfg.Retention, db, state.PathsVar.Retention),
		state:      "initialized",
	}
	return a, nil
}

// Run starts the retention scheduler and the HTTP server and blocks until
// ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.printSummary()

	cancel, err := a.retention.Start(ctx)
	if err != nil {
		return err
	}
	a.retentionCancel = cancel

	errCh := a.startHTTP(ctx)
	a.state = "running"

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) printSummary() {
	cfg := a.eff.Config
	ver := a.version
	if a.commit != "none" && a.commit != "" {
		ver += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" && a.buildDate != "" {
		ver += " @ " + a.buildDate
	}
	items := []string{
		fmt.Sprintf("version: %s", ver),
		fmt.Sprintf("source: %s", a.eff.Source),
		fmt.Sprintf("listen: %s", a.eff.Addr),
		fmt.Sprintf("db_path: %s", a.eff.DBPath),
		fmt.Sprintf("backend: %s", cfg.StreamURL()),
		fmt.Sprintf("integrations: %s", cfg.Integrations.URL),
		fmt.Sprintf("max_body: %s", humanize.IBytes(uint64(cfg.Limits.MaxBody.Int64()))),
		fmt.Sprintf("api_limit: %.1f rps, burst %d", cfg.Limits.APIRPS, cfg.Limits.APIBurst),
		fmt.Sprintf("retention: %t (%s, idle > %s)", cfg.Retention.Enabled, cfg.Retention.Cron, cfg.Retention.Period),
		fmt.Sprintf("telemetry: %t", cfg.Telemetry.Enabled),
	}
	if st, err := a.store.Stats(context.Background()); err == nil {
		items = append(items, fmt.Sprintf("conversations: %s", humanize.Comma(int64(st.Conversations))))
	}
	if d, err := state.Disk(a.eff.DBPath); err == nil {
		items = append(items, fmt.Sprintf("disk_free: %s", humanize.IBytes(d.Available)))
	}
	logger.LogConfigSummary("chatstream_startup", items)
}
