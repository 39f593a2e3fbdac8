package config

import (
	"fmt"
	"net/url"
)

// ValidateConfig sets defaults and fails fast on critical errors.
func ValidateConfig(eff EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("effective config is nil")
	}
	if eff.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, CHATSTREAM_DB_PATH env, or server.db_path in config")
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return err
	}
	for name, raw := range map[string]string{
		"backend.url":      cfg.Backend.URL,
		"integrations.url": cfg.Integrations.URL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}
	return nil
}
