package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = 8090
	defaultBackendURL     = "http://localhost:8001"
	defaultStreamPath     = "/api/ai/chat/stream"
	defaultBackendTimeout = 60 * time.Second
	defaultModel          = "gpt-4o-mini"
	defaultTemperature    = 0.7
	defaultMaxTokens      = 1000

	defaultIntegrationsTimeout = 15 * time.Second

	defaultHistoryLimit = 20
	defaultErrorNotice  = "I'm sorry, I encountered an error. Please try again."

	// booking window: the availability source rejects start times in the
	// past and spans longer than seven days
	defaultBookingStartOffset = time.Minute
	defaultBookingLookAhead   = 7 * 24 * time.Hour
	maxBookingLookAhead       = 7 * 24 * time.Hour

	defaultSendRPS   = 1.0
	defaultSendBurst = 3
	defaultAPIRPS    = 50
	defaultAPIBurst  = 100
	defaultIdleTTL   = 10 * time.Minute
	defaultMaxBody   = 1 << 20

	defaultRetentionCron   = "0 3 * * *"
	defaultRetentionPeriod = 90 * 24 * time.Hour
	minRetentionPeriod     = time.Hour

	defaultTelemetrySampleRate    = 1.0
	defaultTelemetryFlushInterval = 2 * time.Second
	defaultTelemetryQueueCapacity = 2048
	defaultTelemetryFileMaxSize   = 40 * 1024 * 1024
)

// Addr returns the HTTP server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// StreamURL is the full endpoint the stream client posts to.
func (c *Config) StreamURL() string {
	return strings.TrimRight(c.Backend.URL, "/") + c.Backend.StreamPath
}

// Location resolves booking.timezone, falling back to the process local zone.
func (c *Config) Location() *time.Location {
	if c.Booking.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyDefaults fills in missing values in place and rejects values that
// cannot be corrected.
func (c *Config) ApplyDefaults() error {
	if c.Backend.URL == "" {
		c.Backend.URL = defaultBackendURL
	}
	if c.Backend.StreamPath == "" {
		c.Backend.StreamPath = defaultStreamPath
	}
	if !strings.HasPrefix(c.Backend.StreamPath, "/") {
		c.Backend.StreamPath = "/" + c.Backend.StreamPath
	}
	if c.Backend.Timeout.Duration() == 0 {
		c.Backend.Timeout = Duration(defaultBackendTimeout)
	}
	if c.Backend.Model == "" {
		c.Backend.Model = defaultModel
	}
	if c.Backend.Temperature == 0 {
		c.Backend.Temperature = defaultTemperature
	}
	if c.Backend.MaxTokens <= 0 {
		c.Backend.MaxTokens = defaultMaxTokens
	}

	if c.Integrations.URL == "" {
		c.Integrations.URL = c.Backend.URL
	}
	if c.Integrations.RequestTimeout.Duration() == 0 {
		c.Integrations.RequestTimeout = Duration(defaultIntegrationsTimeout)
	}

	if c.Chat.HistoryLimit <= 0 {
		c.Chat.HistoryLimit = defaultHistoryLimit
	}
	if c.Chat.ErrorNotice == "" {
		c.Chat.ErrorNotice = defaultErrorNotice
	}

	if c.Booking.StartOffset.Duration() < defaultBookingStartOffset {
		c.Booking.StartOffset = Duration(defaultBookingStartOffset)
	}
	if c.Booking.LookAhead.Duration() == 0 {
		c.Booking.LookAhead = Duration(defaultBookingLookAhead)
	}
	if c.Booking.LookAhead.Duration() > maxBookingLookAhead {
		return fmt.Errorf("booking.look_ahead %s exceeds the 7 day availability span", c.Booking.LookAhead)
	}
	if c.Booking.LookAhead.Duration() <= c.Booking.StartOffset.Duration() {
		return fmt.Errorf("booking.look_ahead must be greater than booking.start_offset")
	}
	if c.Booking.Timezone != "" {
		if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
			return fmt.Errorf("invalid booking.timezone %q: %w", c.Booking.Timezone, err)
		}
	}

	if c.Limits.SendRPS <= 0 {
		c.Limits.SendRPS = defaultSendRPS
	}
	if c.Limits.SendBurst <= 0 {
		c.Limits.SendBurst = defaultSendBurst
	}
	if c.Limits.APIRPS <= 0 {
		c.Limits.APIRPS = defaultAPIRPS
	}
	if c.Limits.APIBurst <= 0 {
		c.Limits.APIBurst = defaultAPIBurst
	}
	if c.Limits.IdleTTL.Duration() == 0 {
		c.Limits.IdleTTL = Duration(defaultIdleTTL)
	}
	if c.Limits.MaxBody.Int64() == 0 {
		c.Limits.MaxBody = SizeBytes(defaultMaxBody)
	}

	if c.Retention.Cron == "" {
		c.Retention.Cron = defaultRetentionCron
	}
	if c.Retention.Period.Duration() == 0 {
		c.Retention.Period = Duration(defaultRetentionPeriod)
	}
	if !gronx.New().IsValid(c.Retention.Cron) {
		return fmt.Errorf("invalid retention cron expression: %s", c.Retention.Cron)
	}
	if c.Retention.Period.Duration() < minRetentionPeriod {
		return fmt.Errorf("retention.period %s is below the minimum of %s", c.Retention.Period, minRetentionPeriod)
	}

	if c.Telemetry.SampleRate <= 0 || c.Telemetry.SampleRate > 1 {
		c.Telemetry.SampleRate = defaultTelemetrySampleRate
	}
	if c.Telemetry.FlushInterval.Duration() == 0 {
		c.Telemetry.FlushInterval = Duration(defaultTelemetryFlushInterval)
	}
	if c.Telemetry.QueueCapacity <= 0 {
		c.Telemetry.QueueCapacity = defaultTelemetryQueueCapacity
	}
	if c.Telemetry.FileMaxSize.Int64() == 0 {
		c.Telemetry.FileMaxSize = SizeBytes(defaultTelemetryFileMaxSize)
	}
	return nil
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("CHATSTREAM_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
