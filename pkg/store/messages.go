package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"chatstream/pkg/logger"
	"chatstream/pkg/models"
	"chatstream/pkg/store/keys"
	"chatstream/pkg/telemetry"
)

// AppendMessage commits msg to the conversation and notifies subscribers.
// A message whose correlation id was already stored is not written again;
// the stored copy is returned instead.
func (s *DB) AppendMessage(ctx context.Context, convID string, msg models.Message) (models.Message, error) {
	tr := telemetry.Track("store.append_message")
	defer tr.Finish()
	tr.Set("conversation", convID)

	if err := s.ready(ctx); err != nil {
		return models.Message{}, err
	}
	if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
		return models.Message{}, fmt.Errorf("%w: role %q", ErrInvalid, msg.Role)
	}
	if msg.CorrelationID == "" {
		msg.CorrelationID = uuid.NewString()
	}
	if err := keys.ValidateID("correlation", msg.CorrelationID); err != nil {
		return models.Message{}, err
	}
	if msg.Attachment != nil {
		if err := msg.Attachment.Validate(); err != nil {
			return models.Message{}, fmt.Errorf("%w: attachment: %v", ErrInvalid, err)
		}
	}

	lock := s.lockFor(convID)
	lock.Lock()
	defer lock.Unlock()
	tr.Mark("lock")

	var conv models.Conversation
	if err := s.getJSON(keys.GenConversationKey(convID), &conv); err != nil {
		return models.Message{}, err
	}

	if ref, err := s.getRaw(keys.GenCorrelationKey(convID, msg.CorrelationID)); err == nil {
		var existing models.Message
		if err := s.getJSON(string(ref), &existing); err != nil {
			return models.Message{}, err
		}
		logger.Debug("append_duplicate", "conversation", convID, "correlation", msg.CorrelationID)
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return models.Message{}, err
	}
	tr.Mark("dedupe")

	now := time.Now().UnixNano()
	conv.LastSeq++
	conv.MessageCount++
	conv.UpdatedTS = now
	conv.LastMessage = models.Preview(msg.Content, previewRunes)
	if conv.Title == "" && msg.Role == models.RoleUser {
		conv.Title = models.Preview(firstLine(msg.Content), 60)
	}

	msg.ID = uuid.NewString()
	msg.ConversationID = convID
	msg.Seq = conv.LastSeq
	msg.TS = now
	msg.Status = models.StatusCommitted

	msgKey := keys.GenMessageKey(convID, msg.Seq)
	b := s.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, msgKey, msg); err != nil {
		return models.Message{}, err
	}
	if err := b.Set([]byte(keys.GenCorrelationKey(convID, msg.CorrelationID)), []byte(msgKey), nil); err != nil {
		return models.Message{}, err
	}
	if err := setJSON(b, keys.GenConversationKey(convID), conv); err != nil {
		return models.Message{}, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("append_message_failed", "conversation", convID, "error", err)
		return models.Message{}, err
	}
	tr.Mark("commit")

	msgs, err := s.listMessages(convID)
	if err != nil {
		logger.Warn("snapshot_read_failed", "conversation", convID, "error", err)
		return msg, nil
	}
	s.hub.publish(convID, msgs)
	tr.Mark("publish")
	return msg, nil
}

// ListMessages returns the conversation's messages in sequence order.
func (s *DB) ListMessages(ctx context.Context, convID string) ([]models.Message, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if _, err := s.getRaw(keys.GenConversationKey(convID)); err != nil {
		return nil, err
	}
	return s.listMessages(convID)
}

func (s *DB) listMessages(convID string) ([]models.Message, error) {
	out := make([]models.Message, 0, 16)
	err := s.scan(keys.GenMessagePrefix(convID), func(k, v []byte) error {
		var m models.Message
		if err := json.Unmarshal(v, &m); err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		out = append(out, m)
		return nil
	})
	return out, err
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
