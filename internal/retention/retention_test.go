package retention

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstream/pkg/config"
)

type fakePurger struct {
	cutoff time.Time
	dryRun bool
	n      int
	err    error
	block  chan struct{}
}

func (f *fakePurger) PurgeBefore(ctx context.Context, cutoff time.Time, dryRun bool) (int, error) {
	if f.block != nil {
		<-f.block
	}
	f.cutoff, f.dryRun = cutoff, dryRun
	return f.n, f.err
}

func TestRunNow(t *testing.T) {
	dir := t.TempDir()
	p := &fakePurger{n: 4}
	cfg := config.RetentionConfig{Enabled: true, Cron: "0 3 * * *", Period: config.Duration(48 * time.Hour), DryRun: true}
	m := New(cfg, p, dir)
	now := time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	n, err := m.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, now.Add(-48*time.Hour), p.cutoff)
	assert.True(t, p.dryRun)

	b, err := os.ReadFile(filepath.Join(dir, "runs.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 1)
	var rec auditRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, 4, rec.Purged)
	assert.True(t, rec.DryRun)
	assert.Equal(t, "2025-03-08T03:00:00Z", rec.Cutoff)
}

func TestRunNowError(t *testing.T) {
	p := &fakePurger{err: errors.New("disk full")}
	m := New(config.RetentionConfig{Period: config.Duration(time.Hour)}, p, "")
	_, err := m.RunNow(context.Background())
	assert.ErrorContains(t, err, "disk full")
}

func TestRunNowRejectsOverlap(t *testing.T) {
	p := &fakePurger{block: make(chan struct{})}
	m := New(config.RetentionConfig{Period: config.Duration(time.Hour)}, p, "")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.RunNow(context.Background())
	}()
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.running
	}, time.Second, 5*time.Millisecond)

	_, err := m.RunNow(context.Background())
	assert.ErrorIs(t, err, ErrRunning)
	close(p.block)
	<-done
}

func TestStart(t *testing.T) {
	m := New(config.RetentionConfig{Enabled: false}, &fakePurger{}, "")
	cancel, err := m.Start(context.Background())
	require.NoError(t, err)
	cancel()

	m = New(config.RetentionConfig{Enabled: true, Cron: "not a cron"}, &fakePurger{}, "")
	_, err = m.Start(context.Background())
	assert.Error(t, err)

	m = New(config.RetentionConfig{Enabled: true, Cron: "*/5 * * * *", Period: config.Duration(time.Hour)}, &fakePurger{}, "")
	cancel, err = m.Start(context.Background())
	require.NoError(t, err)
	cancel()
}
