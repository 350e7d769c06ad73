package model

import "time"

// DeletedPlaceholder is shown instead of the original text wherever a
// soft-deleted message is used as a preview. The stored content is retained.
const DeletedPlaceholder = "Message deleted"

type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	SenderID       string          `json:"sender_id"`
	Content        string          `json:"content"`
	IsDeleted      bool            `json:"is_deleted"`
	CreatedAt      time.Time       `json:"created_at"`
	Sender         *UserPublic     `json:"sender,omitempty"`
	Reactions      []ReactionGroup `json:"reactions,omitempty"`
}

// PreviewText returns the sidebar preview for the message.
func (m *Message) PreviewText() string {
	if m.IsDeleted {
		return DeletedPlaceholder
	}
	return m.Content
}

type Reaction struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionGroup is aggregated reaction info for display; derived, not stored.
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"` // user IDs
}
