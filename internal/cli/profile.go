package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"

	"chatstream/pkg/config"
)

// Profile is the operator's local chatctl settings.
type Profile struct {
	AgentID         string `yaml:"agent_id" json:"agent_id"`
	DeviceID        string `yaml:"device_id" json:"device_id"`
	DBPath          string `yaml:"db_path" json:"db_path"`
	BackendURL      string `yaml:"backend_url" json:"backend_url"`
	IntegrationsURL string `yaml:"integrations_url,omitempty" json:"integrations_url,omitempty"`
	WorkspaceID     string `yaml:"workspace_id,omitempty" json:"workspace_id,omitempty"`
	Timezone        string `yaml:"timezone,omitempty" json:"timezone,omitempty"`
	LogLevel        string `yaml:"log_level,omitempty" json:"log_level,omitempty"`
}

func defaultProfilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatctl.yaml"
	}
	return filepath.Join(home, ".chatctl.yaml")
}

// LoadProfile reads path. A missing file yields an empty profile.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	return &p, nil
}

func SaveProfile(p *Profile, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

// fillDefaults sets a device id once so the same terminal resumes its
// conversation across runs.
func (p *Profile) fillDefaults() (changed bool) {
	if p.DeviceID == "" {
		p.DeviceID = "cli-" + uuid.NewString()
		changed = true
	}
	if p.DBPath == "" {
		p.DBPath = "./.chatstream/store"
		changed = true
	}
	return changed
}

// Config maps the profile onto daemon configuration with defaults applied.
func (p *Profile) Config() (*config.Config, error) {
	cfg := &config.Config{}
	cfg.Server.DBPath = p.DBPath
	cfg.Backend.URL = p.BackendURL
	cfg.Integrations.URL = p.IntegrationsURL
	cfg.Integrations.WorkspaceID = p.WorkspaceID
	cfg.Booking.Timezone = p.Timezone
	cfg.Logging.Level = p.LogLevel
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}
