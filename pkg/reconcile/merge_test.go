package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstream/pkg/models"
)

func pending(key string, role models.Role, content string) models.Message {
	return models.Message{CorrelationID: key, Role: role, Content: content, TS: 100, Status: models.StatusPending}
}

func stored(key string, role models.Role, content string, seq uint64) models.Message {
	return models.Message{ID: "id-" + key, CorrelationID: key, Role: role, Content: content, TS: 1000 + int64(seq), Seq: seq, Status: models.StatusCommitted}
}

func keysOf(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Key()
	}
	return out
}

func TestMergeReplacesPendingByCorrelation(t *testing.T) {
	local := []models.Message{pending("u1", models.RoleUser, "hi")}
	remote := []models.Message{stored("u1", models.RoleUser, "hi (server)", 1)}

	merged, changed := Merge(local, remote)
	require.True(t, changed)
	require.Len(t, merged, 1)
	assert.Equal(t, "id-u1", merged[0].ID)
	assert.Equal(t, "hi (server)", merged[0].Content)
	assert.Equal(t, models.StatusCommitted, merged[0].Status)
}

func TestMergeKeepsLocalTimestampForSentinel(t *testing.T) {
	local := []models.Message{pending("u1", models.RoleUser, "hi")}
	r := stored("u1", models.RoleUser, "hi", 1)
	r.TS = 0

	merged, _ := Merge(local, []models.Message{r})
	require.Len(t, merged, 1)
	assert.Equal(t, int64(100), merged[0].TS)
}

func TestMergeAppendsUnknownRemoteInOrder(t *testing.T) {
	remote := []models.Message{
		stored("a", models.RoleUser, "1", 1),
		stored("b", models.RoleAssistant, "2", 2),
		stored("c", models.RoleUser, "3", 3),
	}
	merged, changed := Merge(nil, remote)
	assert.True(t, changed)
	assert.Equal(t, []string{"a", "b", "c"}, keysOf(merged))
}

func TestMergeAnchorsOverlay(t *testing.T) {
	tests := []struct {
		name   string
		local  []models.Message
		remote []models.Message
		want   []string
	}{
		{
			name:   "pending after confirmed",
			local:  []models.Message{stored("a", models.RoleUser, "x", 1), pending("u2", models.RoleUser, "y")},
			remote: []models.Message{stored("a", models.RoleUser, "x", 1), stored("b", models.RoleAssistant, "z", 2)},
			want:   []string{"a", "u2", "b"},
		},
		{
			name:   "pending with no confirmed predecessor goes first",
			local:  []models.Message{pending("u1", models.RoleUser, "y")},
			remote: []models.Message{stored("other", models.RoleUser, "from another tab", 1)},
			want:   []string{"u1", "other"},
		},
		{
			name:   "empty snapshot keeps overlay",
			local:  []models.Message{pending("u1", models.RoleUser, "y"), {CorrelationID: "s1", Role: models.RoleAssistant, ReplyTo: "u1", Status: models.StatusStreaming}},
			remote: nil,
			want:   []string{"u1", "s1"},
		},
		{
			name:   "stored message missing from snapshot is dropped",
			local:  []models.Message{stored("gone", models.RoleUser, "x", 1), stored("a", models.RoleUser, "y", 2)},
			remote: []models.Message{stored("a", models.RoleUser, "y", 2)},
			want:   []string{"a"},
		},
		{
			name:   "remote duplicates collapse",
			local:  nil,
			remote: []models.Message{stored("a", models.RoleUser, "x", 1), stored("a", models.RoleUser, "x", 1)},
			want:   []string{"a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, _ := Merge(tt.local, tt.remote)
			assert.Equal(t, tt.want, keysOf(merged))
		})
	}
}

func TestMergeNeverPlacesReplyBeforeItsUserMessage(t *testing.T) {
	// the assistant answer was written first by the store
	remote := []models.Message{
		{ID: "id-a1", CorrelationID: "a1", Role: models.RoleAssistant, Content: "answer", ReplyTo: "u1", TS: 5, Seq: 1},
	}
	local := []models.Message{pending("u1", models.RoleUser, "question")}

	merged, _ := Merge(local, remote)
	assert.Equal(t, []string{"u1", "a1"}, keysOf(merged))

	// once both are stored in the wrong order the reply still follows
	remote = append(remote, stored("u1", models.RoleUser, "question", 2))
	merged, _ = Merge(merged, remote)
	assert.Equal(t, []string{"u1", "a1"}, keysOf(merged))
}

func TestMergeIsIdempotent(t *testing.T) {
	local := []models.Message{
		stored("a", models.RoleUser, "x", 1),
		pending("u2", models.RoleUser, "y"),
		{CorrelationID: "s1", Role: models.RoleAssistant, ReplyTo: "u2", Status: models.StatusStreaming, Content: "par"},
	}
	remote := []models.Message{
		stored("a", models.RoleUser, "x", 1),
		stored("b", models.RoleAssistant, "z", 2),
		stored("u2", models.RoleUser, "y", 3),
	}

	once, changed := Merge(local, remote)
	require.True(t, changed)
	twice, changed := Merge(once, remote)
	assert.False(t, changed)
	assert.Equal(t, once, twice)
}

func TestMergeReplyCycleKeepsEveryMessage(t *testing.T) {
	local := []models.Message{
		{CorrelationID: "x", ReplyTo: "y", Status: models.StatusPending},
		{CorrelationID: "y", ReplyTo: "x", Status: models.StatusPending},
	}
	merged, _ := Merge(local, nil)
	assert.ElementsMatch(t, []string{"x", "y"}, keysOf(merged))
}
