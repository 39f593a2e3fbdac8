package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return p
}

func TestLoadConfigFile(t *testing.T) {
	p := writeConfig(t, `
server:
  address: 127.0.0.1
  port: 9191
  db_path: /tmp/chat
backend:
  url: http://ai.internal:8001
  timeout: 45s
booking:
  look_ahead: 3d
limits:
  max_body: 2MB
logging:
  level: debug
`)
	c, err := LoadConfigFile(p)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9191", c.Addr())
	assert.Equal(t, 45*time.Second, c.Backend.Timeout.Duration())
	assert.Equal(t, 72*time.Hour, c.Booking.LookAhead.Duration())
	assert.Equal(t, int64(2_000_000), c.Limits.MaxBody.Int64())
	assert.Equal(t, "debug", c.Logging.Level)
}

func TestLoadConfigFileMalformed(t *testing.T) {
	p := writeConfig(t, "server: [::")
	if _, err := LoadConfigFile(p); err == nil {
		t.Fatalf("expected parse error for malformed yaml")
	}
}

func TestApplyDefaults(t *testing.T) {
	c := &Config{}
	require.NoError(t, c.ApplyDefaults())

	assert.Equal(t, "http://localhost:8001/api/ai/chat/stream", c.StreamURL())
	assert.Equal(t, 20, c.Chat.HistoryLimit)
	assert.Equal(t, time.Minute, c.Booking.StartOffset.Duration())
	assert.Equal(t, 7*24*time.Hour, c.Booking.LookAhead.Duration())
	assert.Equal(t, c.Backend.URL, c.Integrations.URL)
	assert.Equal(t, "0 3 * * *", c.Retention.Cron)
}

func TestApplyDefaultsRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "look ahead over seven days", cfg: Config{Booking: BookingConfig{LookAhead: Duration(8 * 24 * time.Hour)}}},
		{name: "bad cron", cfg: Config{Retention: RetentionConfig{Cron: "not a cron"}}},
		{name: "short retention", cfg: Config{Retention: RetentionConfig{Period: Duration(time.Minute)}}},
		{name: "unknown timezone", cfg: Config{Booking: BookingConfig{Timezone: "Mars/Olympus"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.cfg
			if err := c.ApplyDefaults(); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("CHATSTREAM_CONFIG", "/etc/chatstream.yaml")
	assert.Equal(t, "/etc/chatstream.yaml", ResolveConfigPath("./config.yaml", false))
	assert.Equal(t, "./mine.yaml", ResolveConfigPath("./mine.yaml", true))
}

func TestParseConfigEnvs(t *testing.T) {
	t.Setenv("CHATSTREAM_ADDR", "127.0.0.1:7000")
	t.Setenv("CHATSTREAM_DB_PATH", "/var/lib/chat")
	t.Setenv("CHATSTREAM_BACKEND_TIMEOUT", "30")
	t.Setenv("CHATSTREAM_RETENTION_ENABLED", "yes")
	t.Setenv("CHATSTREAM_MAX_BODY", "1MiB")

	c, used := ParseConfigEnvs()
	require.True(t, used)
	assert.Equal(t, "127.0.0.1:7000", c.Addr())
	assert.Equal(t, "/var/lib/chat", c.Server.DBPath)
	assert.Equal(t, 30*time.Second, c.Backend.Timeout.Duration())
	assert.True(t, c.Retention.Enabled)
	assert.Equal(t, int64(1<<20), c.Limits.MaxBody.Int64())
}

func TestLoadEffectiveConfig(t *testing.T) {
	fileCfg := &Config{Server: ServerConfig{Address: "10.0.0.1", Port: 9000, DBPath: "/data/file"}}
	envCfg := &Config{Server: ServerConfig{DBPath: "/data/env"}}

	t.Run("config flag requires file", func(t *testing.T) {
		flags := Flags{Config: "missing.yaml", Set: map[string]bool{"config": true}}
		_, err := LoadEffectiveConfig(flags, &Config{}, false, envCfg)
		assert.Error(t, err)
	})

	t.Run("flags win", func(t *testing.T) {
		flags := Flags{Addr: "127.0.0.1:8111", Set: map[string]bool{"addr": true}}
		res, err := LoadEffectiveConfig(flags, fileCfg, true, envCfg)
		require.NoError(t, err)
		assert.Equal(t, "flags", res.Source)
		assert.Equal(t, "127.0.0.1:8111", res.Addr)
		assert.Equal(t, "/data/env", res.DBPath)
		assert.Equal(t, 8111, res.Config.Server.Port)
	})

	t.Run("file before env", func(t *testing.T) {
		res, err := LoadEffectiveConfig(Flags{Set: map[string]bool{}}, fileCfg, true, envCfg)
		require.NoError(t, err)
		assert.Equal(t, "config", res.Source)
		assert.Equal(t, "/data/file", res.DBPath)
	})

	t.Run("env fallback", func(t *testing.T) {
		res, err := LoadEffectiveConfig(Flags{Set: map[string]bool{}}, &Config{}, false, envCfg)
		require.NoError(t, err)
		assert.Equal(t, "env", res.Source)
		assert.Equal(t, "/data/env", res.DBPath)
	})
}

func TestValidateConfig(t *testing.T) {
	err := ValidateConfig(EffectiveConfigResult{Config: &Config{}, DBPath: ""})
	assert.Error(t, err)

	cfg := &Config{Backend: BackendConfig{URL: "not a url"}}
	err = ValidateConfig(EffectiveConfigResult{Config: cfg, DBPath: "/tmp/x"})
	assert.Error(t, err)

	cfg = &Config{}
	require.NoError(t, ValidateConfig(EffectiveConfigResult{Config: cfg, DBPath: "/tmp/x"}))
	assert.Equal(t, 1.0, cfg.Limits.SendRPS)
}
