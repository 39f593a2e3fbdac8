package actions

import (
	"context"
	"fmt"
	"sort"

	"chatstream/pkg/logger"
	"chatstream/pkg/models"
)

// Source provides the action configurations for an agent.
type Source interface {
	LoadActions(ctx context.Context, agentID string) ([]models.ActionConfig, error)
}

// Snapshot is an immutable view of an agent's actions, taken once per
// session. Changes made after it was taken are not visible through it.
type Snapshot struct {
	agentID string
	byID    map[string]models.ActionConfig
}

// NewSnapshot copies configs into a snapshot. Configs for other agents and
// invalid configs are skipped.
func NewSnapshot(agentID string, configs []models.ActionConfig) *Snapshot {
	s := &Snapshot{agentID: agentID, byID: make(map[string]models.ActionConfig, len(configs))}
	for _, c := range configs {
		if c.AgentID != agentID {
			continue
		}
		if err := c.Validate(); err != nil {
			logger.Warn("action_config_invalid", "agent", agentID, "action", c.ID, "error", err)
			continue
		}
		s.byID[c.ID] = cloneConfig(c)
	}
	return s
}

// Load reads the agent's actions from src.
func Load(ctx context.Context, src Source, agentID string) (*Snapshot, error) {
	configs, err := src.LoadActions(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("load actions for agent %s: %w", agentID, err)
	}
	snap := NewSnapshot(agentID, configs)
	logger.Debug("actions_snapshot_loaded", "agent", agentID, "count", snap.Len())
	return snap, nil
}

func (s *Snapshot) AgentID() string { return s.agentID }

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byID)
}

// Lookup returns a copy of the config with id.
func (s *Snapshot) Lookup(id string) (models.ActionConfig, bool) {
	if s == nil {
		return models.ActionConfig{}, false
	}
	c, ok := s.byID[id]
	if !ok {
		return models.ActionConfig{}, false
	}
	return cloneConfig(c), true
}

// Active lists the active configs ordered by id.
func (s *Snapshot) Active() []models.ActionConfig {
	if s == nil {
		return nil
	}
	out := make([]models.ActionConfig, 0, len(s.byID))
	for _, c := range s.byID {
		if c.Active() {
			out = append(out, cloneConfig(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneConfig(c models.ActionConfig) models.ActionConfig {
	if c.Button != nil {
		b := *c.Button
		c.Button = &b
	}
	if c.Form != nil {
		f := *c.Form
		f.Fields = append([]models.FormField(nil), c.Form.Fields...)
		c.Form = &f
	}
	if c.Booking != nil {
		b := *c.Booking
		c.Booking = &b
	}
	if c.Ticket != nil {
		t := *c.Ticket
		t.Tags = append([]string(nil), c.Ticket.Tags...)
		c.Ticket = &t
	}
	return c
}
