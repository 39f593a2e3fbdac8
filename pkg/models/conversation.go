package models

import "strings"

type Conversation struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	DeviceID  string `json:"device_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	Title     string `json:"title,omitempty"`
	// LastMessage is a short preview of the newest message.
	LastMessage  string `json:"last_message,omitempty"`
	MessageCount uint64 `json:"message_count"`
	// LastSeq is incremented and persisted with each message.
	LastSeq   uint64 `json:"last_seq,omitempty"`
	CreatedTS int64  `json:"created_ts,omitempty"`
	UpdatedTS int64  `json:"updated_ts,omitempty"`
}

// ConversationUpdate carries optional metadata changes; nil fields are left alone.
type ConversationUpdate struct {
	Title       *string `json:"title,omitempty"`
	LastMessage *string `json:"last_message,omitempty"`
}

// IsLocalConversation reports whether id was synthesized because the store
// was unreachable.
func IsLocalConversation(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// Preview trims s to at most n runes for conversation listings.
func Preview(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
