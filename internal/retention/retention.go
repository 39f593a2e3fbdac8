// Package retention purges conversations idle longer than the configured
// period on a cron schedule.
package retention

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"chatstream/pkg/config"
	"chatstream/pkg/logger"
)

// ErrRunning is returned by RunNow while a run is in progress.
var ErrRunning = errors.New("retention run already in progress")

type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time, dryRun bool) (int, error)
}

// Manager owns the schedule loop.
type Manager struct {
	cfg      config.RetentionConfig
	store    Purger
	auditDir string
	now      func() time.Time

	mu      sync.Mutex
	running bool
}

// New builds a manager. auditDir may be empty to skip the run log.
func New(cfg config.RetentionConfig, store Purger, auditDir string) *Manager {
	return &Manager{cfg: cfg, store: store, auditDir: auditDir, now: time.Now}
}

// Start launches the schedule loop when retention is enabled and returns a
// cancel func that stops it.
func (m *Manager) Start(ctx context.Context) (context.CancelFunc, error) {
	if !m.cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}
	if !gronx.New().IsValid(m.cfg.Cron) {
		return nil, fmt.Errorf("invalid retention cron %q", m.cfg.Cron)
	}
	ctx, cancel := context.WithCancel(ctx)
	logger.Info("retention_enabled", "cron", m.cfg.Cron, "period", m.cfg.Period.String(), "dry_run", m.cfg.DryRun)
	go m.scheduleLoop(ctx)
	return cancel, nil
}

func (m *Manager) scheduleLoop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(m.cfg.Cron, m.now(), false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", m.cfg.Cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if _, err := m.RunNow(ctx); err != nil && !errors.Is(err, ErrRunning) {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunNow performs one purge pass and returns the number of conversations
// removed (or that would be removed in dry-run mode).
func (m *Manager) RunNow(ctx context.Context) (int, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return 0, ErrRunning
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	runID := uuid.NewString()
	start := m.now()
	cutoff := start.Add(-m.cfg.Period.Duration())
	logger.Info("retention_run_start", "run_id", runID, "cutoff", cutoff.Format(time.RFC3339), "dry_run", m.cfg.DryRun)

	n, err := m.store.PurgeBefore(ctx, cutoff, m.cfg.DryRun)
	rec := auditRecord{
		RunID:    runID,
		Started:  start.UTC().Format(time.RFC3339),
		Cutoff:   cutoff.UTC().Format(time.RFC3339),
		DryRun:   m.cfg.DryRun,
		Purged:   n,
		Duration: m.now().Sub(start).String(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	m.audit(rec)
	if err != nil {
		return n, fmt.Errorf("purge: %w", err)
	}
	logger.Info("retention_run_complete", "run_id", runID, "purged", n, "dry_run", m.cfg.DryRun)
	return n, nil
}

type auditRecord struct {
	RunID    string `json:"run_id"`
	Started  string `json:"started"`
	Cutoff   string `json:"cutoff"`
	DryRun   bool   `json:"dry_run"`
	Purged   int    `json:"purged"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

// audit appends one JSON line per run to runs.jsonl.
func (m *Manager) audit(rec auditRecord) {
	if m.auditDir == "" {
		return
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	f, err := os.OpenFile(filepath.Join(m.auditDir, "runs.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		logger.Error("retention_audit_open_failed", "dir", m.auditDir, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		logger.Error("retention_audit_write_failed", "error", err)
	}
}
