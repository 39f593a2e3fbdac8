package models

import "strings"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageStatus tracks where a message is in its lifecycle on the client.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusStreaming MessageStatus = "streaming"
	StatusCommitted MessageStatus = "committed"
	StatusAborted   MessageStatus = "aborted"
)

// LocalIDPrefix marks identifiers that never reached the store.
const LocalIDPrefix = "local_"

type Message struct {
	// ID is the store-assigned identifier; empty while optimistic.
	ID string `json:"id,omitempty"`
	// CorrelationID is assigned by the client when the message is created and
	// is the only key used to match an optimistic copy with its stored copy.
	CorrelationID  string `json:"correlation_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Role           Role   `json:"role"`
	Content        string `json:"content"`
	// TS is unix nanoseconds. Zero means the server timestamp is not resolved yet.
	TS  int64  `json:"ts"`
	Seq uint64 `json:"seq,omitempty"`
	// ReplyTo is the correlation id of the user message an assistant message answers.
	ReplyTo    string         `json:"reply_to,omitempty"`
	Attachment *Attachment    `json:"attachment,omitempty"`
	Status     MessageStatus  `json:"status,omitempty"`
	Metrics    map[string]any `json:"metrics,omitempty"`
}

// Key returns the identity used for reconciliation.
func (m Message) Key() string {
	if m.CorrelationID != "" {
		return m.CorrelationID
	}
	return m.ID
}

func (m Message) IsLocal() bool {
	return m.ID == "" || strings.HasPrefix(m.ID, LocalIDPrefix)
}
