package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"chatstream/pkg/logger"
	"chatstream/pkg/models"
	"chatstream/pkg/store/keys"
)

const previewRunes = 120

// CreateConversation stores a new conversation. ID is generated when empty.
func (s *DB) CreateConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	if err := s.ready(ctx); err != nil {
		return models.Conversation{}, err
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if err := keys.ValidateID("conversation", conv.ID); err != nil {
		return models.Conversation{}, err
	}
	if err := keys.ValidateID("agent", conv.AgentID); err != nil {
		return models.Conversation{}, err
	}
	if conv.DeviceID != "" {
		if err := keys.ValidateID("device", conv.DeviceID); err != nil {
			return models.Conversation{}, err
		}
	}

	lock := s.lockFor(conv.ID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.getRaw(keys.GenConversationKey(conv.ID)); err == nil {
		return models.Conversation{}, fmt.Errorf("conversation %s already exists", conv.ID)
	}

	now := time.Now().UnixNano()
	conv.CreatedTS = now
	conv.UpdatedTS = now
	conv.LastSeq = 0
	conv.MessageCount = 0

	b := s.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, keys.GenConversationKey(conv.ID), conv); err != nil {
		return models.Conversation{}, err
	}
	if conv.DeviceID != "" {
		if err := b.Set([]byte(keys.GenDeviceConvKey(conv.AgentID, conv.DeviceID, now)), []byte(conv.ID), nil); err != nil {
			return models.Conversation{}, err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("conversation_create_failed", "conversation", conv.ID, "error", err)
		return models.Conversation{}, err
	}
	logger.Debug("conversation_created", "conversation", conv.ID, "agent", conv.AgentID)
	return conv, nil
}

// GetConversation loads conversation metadata.
func (s *DB) GetConversation(ctx context.Context, convID string) (models.Conversation, error) {
	if err := s.ready(ctx); err != nil {
		return models.Conversation{}, err
	}
	var conv models.Conversation
	if err := s.getJSON(keys.GenConversationKey(convID), &conv); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// FindConversation returns the newest conversation the device opened with
// the agent.
func (s *DB) FindConversation(ctx context.Context, agentID, deviceID string) (models.Conversation, error) {
	if err := s.ready(ctx); err != nil {
		return models.Conversation{}, err
	}
	var latest string
	err := s.scan(keys.GenDeviceConvPrefix(agentID, deviceID), func(k, v []byte) error {
		latest = string(v)
		return nil
	})
	if err != nil {
		return models.Conversation{}, err
	}
	if latest == "" {
		return models.Conversation{}, ErrNotFound
	}
	return s.GetConversation(ctx, latest)
}

// UpdateConversationMetadata applies the non-nil fields of upd.
func (s *DB) UpdateConversationMetadata(ctx context.Context, convID string, upd models.ConversationUpdate) (models.Conversation, error) {
	if err := s.ready(ctx); err != nil {
		return models.Conversation{}, err
	}
	lock := s.lockFor(convID)
	lock.Lock()
	defer lock.Unlock()

	var conv models.Conversation
	if err := s.getJSON(keys.GenConversationKey(convID), &conv); err != nil {
		return models.Conversation{}, err
	}
	if upd.Title != nil {
		conv.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.LastMessage != nil {
		conv.LastMessage = models.Preview(*upd.LastMessage, previewRunes)
	}
	conv.UpdatedTS = time.Now().UnixNano()

	data, err := json.Marshal(conv)
	if err != nil {
		return models.Conversation{}, err
	}
	if err := s.db.Set([]byte(keys.GenConversationKey(convID)), data, pebble.Sync); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// ListConversations returns every conversation, optionally only one agent's.
func (s *DB) ListConversations(ctx context.Context, agentID string) ([]models.Conversation, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var out []models.Conversation
	err := s.scan(keys.ConversationPrefix, func(k, v []byte) error {
		var conv models.Conversation
		if err := json.Unmarshal(v, &conv); err != nil {
			logger.Warn("conversation_decode_failed", "key", string(k), "error", err)
			return nil
		}
		if agentID == "" || conv.AgentID == agentID {
			out = append(out, conv)
		}
		return nil
	})
	return out, err
}

// PurgeBefore deletes conversations not updated since cutoff, with their
// messages and indexes. With dryRun nothing is deleted. Subscribers of a
// purged conversation are closed with ErrNotFound.
func (s *DB) PurgeBefore(ctx context.Context, cutoff time.Time, dryRun bool) (int, error) {
	convs, err := s.ListConversations(ctx, "")
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, c := range convs {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		if c.UpdatedTS >= cutoff.UnixNano() {
			continue
		}
		if dryRun {
			purged++
			continue
		}
		if err := s.deleteConversation(c); err != nil {
			return purged, fmt.Errorf("purge %s: %w", c.ID, err)
		}
		purged++
	}
	return purged, nil
}

func (s *DB) deleteConversation(c models.Conversation) error {
	lock := s.lockFor(c.ID)
	lock.Lock()
	defer lock.Unlock()

	b := s.db.NewBatch()
	defer b.Close()
	for _, prefix := range []string{keys.GenMessagePrefix(c.ID), keys.GenCorrelationPrefix(c.ID)} {
		p := []byte(prefix)
		if err := b.DeleteRange(p, keys.PrefixEnd(p), nil); err != nil {
			return err
		}
	}
	if c.DeviceID != "" {
		if err := b.Delete([]byte(keys.GenDeviceConvKey(c.AgentID, c.DeviceID, c.CreatedTS)), nil); err != nil {
			return err
		}
	}
	if err := b.Delete([]byte(keys.GenConversationKey(c.ID)), nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return err
	}
	s.hub.closeConversation(c.ID, ErrNotFound)
	s.dropLock(c.ID)
	logger.Info("conversation_purged", "conversation", c.ID)
	return nil
}

// Stats reports conversation and message totals.
type Stats struct {
	Conversations int    `json:"conversations"`
	Messages      uint64 `json:"messages"`
	Subscribers   int    `json:"subscribers"`
}

func (s *DB) Stats(ctx context.Context) (Stats, error) {
	convs, err := s.ListConversations(ctx, "")
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Conversations: len(convs), Subscribers: s.hub.count()}
	for _, c := range convs {
		st.Messages += c.MessageCount
	}
	return st, nil
}
