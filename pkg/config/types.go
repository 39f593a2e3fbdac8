package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Backend      BackendConfig      `yaml:"backend"`
	Integrations IntegrationsConfig `yaml:"integrations"`
	Chat         ChatConfig         `yaml:"chat"`
	Booking      BookingConfig      `yaml:"booking"`
	Limits       LimitsConfig       `yaml:"limits"`
	Retention    RetentionConfig    `yaml:"retention"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds the admin/api listener and the store location.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	DBPath  string `yaml:"db_path"`
}

// BackendConfig points at the AI backend that produces the token stream.
type BackendConfig struct {
	URL         string   `yaml:"url"`
	StreamPath  string   `yaml:"stream_path"`
	Timeout     Duration `yaml:"timeout"`
	Model       string   `yaml:"model"`
	Temperature float64  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// IntegrationsConfig holds the endpoints for availability, tickets and leads.
type IntegrationsConfig struct {
	URL            string   `yaml:"url"`
	WorkspaceID    string   `yaml:"workspace_id"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// ChatConfig tunes turn behavior.
type ChatConfig struct {
	HistoryLimit    int    `yaml:"history_limit"`
	PreservePartial bool   `yaml:"preserve_partial"`
	ErrorNotice     string `yaml:"error_notice"`
	Welcome         string `yaml:"welcome"`
}

// BookingConfig bounds the availability query window.
type BookingConfig struct {
	StartOffset Duration `yaml:"start_offset"`
	LookAhead   Duration `yaml:"look_ahead"`
	Timezone    string   `yaml:"timezone"`
}

// LimitsConfig configures per-device send limits and api limits.
type LimitsConfig struct {
	SendRPS   float64   `yaml:"send_rps"`
	SendBurst int       `yaml:"send_burst"`
	APIRPS    float64   `yaml:"api_rps"`
	APIBurst  int       `yaml:"api_burst"`
	IdleTTL   Duration  `yaml:"idle_ttl"`
	MaxBody   SizeBytes `yaml:"max_body"`
}

// RetentionConfig holds configuration for the idle-conversation purge.
type RetentionConfig struct {
	Enabled bool     `yaml:"enabled"`
	Cron    string   `yaml:"cron"`
	Period  Duration `yaml:"period"`
	DryRun  bool     `yaml:"dry_run"`
}

// TelemetryConfig controls turn traces.
type TelemetryConfig struct {
	Enabled       bool      `yaml:"enabled"`
	SampleRate    float64   `yaml:"sample_rate"`
	FlushInterval Duration  `yaml:"flush_interval"`
	QueueCapacity int       `yaml:"queue_capacity"`
	FileMaxSize   SizeBytes `yaml:"file_max_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	v, err := parseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func (s SizeBytes) String() string { return humanize.IBytes(uint64(s)) }

func parseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

// Duration wraps time.Duration with YAML parsing from strings like "100ms",
// "7d" or plain numbers (seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = 0
		return nil
	}
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	// day suffix, e.g. "7d" or "30d"
	if strings.HasSuffix(raw, "d") {
		if n, err := strconv.ParseFloat(strings.TrimSuffix(raw, "d"), 64); err == nil {
			return Duration(time.Duration(n * float64(24*time.Hour))), nil
		}
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}
