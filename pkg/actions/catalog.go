package actions

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"chatstream/pkg/models"
)

// Catalog is the on-disk format operators use to seed actions:
//
//	agent_id: agent-1
//	actions:
//	  - id: demo
//	    type: button
//	    name: Book a demo
//	    status: active
//	    button: {text: Book a demo, url: https://example.com/demo}
type Catalog struct {
	AgentID string                `yaml:"agent_id"`
	Actions []models.ActionConfig `yaml:"actions"`
}

// ReadCatalog parses a catalog file. Entries without an agent id inherit the
// catalog's; every entry must validate.
func ReadCatalog(path string) ([]models.ActionConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(b)
}

func ParseCatalog(b []byte) ([]models.ActionConfig, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse action catalog: %w", err)
	}
	out := make([]models.ActionConfig, 0, len(c.Actions))
	seen := make(map[string]struct{}, len(c.Actions))
	for i, a := range c.Actions {
		if a.AgentID == "" {
			a.AgentID = c.AgentID
		}
		if a.Status == "" {
			a.Status = models.ActionActive
		}
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("action #%d: %w", i+1, err)
		}
		if _, dup := seen[a.AgentID+"/"+a.ID]; dup {
			return nil, fmt.Errorf("action #%d: duplicate id %q", i+1, a.ID)
		}
		seen[a.AgentID+"/"+a.ID] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}
