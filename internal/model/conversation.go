package model

import (
	"sort"
	"time"
)

type Conversation struct {
	ID        string    `json:"id"`
	IsGroup   bool      `json:"is_group"`
	Name      string    `json:"name,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type ConversationMember struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	JoinedAt       time.Time `json:"joined_at"`
}

// ReadReceipt — отметка «прочитано до» для пары (user, conversation).
// Timestamp монотонно неубывающий: upsert берёт максимум из старого и нового.
type ReadReceipt struct {
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	LastReadAt     time.Time `json:"last_read_at"`
}

// DirectPairKey returns the canonical key identifying a direct conversation
// between two users regardless of argument order. A unique index on this key
// is what guarantees at most one direct conversation per pair.
func DirectPairKey(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return pair[0] + ":" + pair[1]
}
