package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/pebble"

	"chatstream/pkg/logger"
	"chatstream/pkg/models"
	"chatstream/pkg/store/keys"
)

// SaveAction creates or replaces an action config.
func (s *DB) SaveAction(ctx context.Context, cfg models.ActionConfig) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := keys.ValidateID("agent", cfg.AgentID); err != nil {
		return err
	}
	if err := keys.ValidateID("action", cfg.ID); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.UpdatedTS = time.Now().UnixNano()
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := s.db.Set([]byte(keys.GenActionKey(cfg.AgentID, cfg.ID)), data, pebble.Sync); err != nil {
		logger.Error("save_action_failed", "agent", cfg.AgentID, "action", cfg.ID, "error", err)
		return err
	}
	return nil
}

// DeleteAction removes an action config. Missing configs are not an error.
func (s *DB) DeleteAction(ctx context.Context, agentID, actionID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.db.Delete([]byte(keys.GenActionKey(agentID, actionID)), pebble.Sync)
}

// LoadActions returns every stored action config of the agent, any status.
func (s *DB) LoadActions(ctx context.Context, agentID string) ([]models.ActionConfig, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var out []models.ActionConfig
	err := s.scan(keys.GenActionPrefix(agentID), func(k, v []byte) error {
		var cfg models.ActionConfig
		if err := json.Unmarshal(v, &cfg); err != nil {
			logger.Warn("action_decode_failed", "key", string(k), "error", err)
			return nil
		}
		out = append(out, cfg)
		return nil
	})
	return out, err
}
