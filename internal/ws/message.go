package ws

import (
	"time"

	"github.com/chatter/internal/model"
)

type EventType string

const (
	EventNewMessage          EventType = "new_message"
	EventMessageDeleted      EventType = "message_deleted"
	EventReactionToggled     EventType = "reaction_toggled"
	EventTypingChanged       EventType = "typing_changed"
	EventReceiptUpdated      EventType = "receipt_updated"
	EventUserOnline          EventType = "user_online"
	EventUserOffline         EventType = "user_offline"
	EventConversationCreated EventType = "conversation_created"
	EventError               EventType = "error"
)

// IncomingMessage is what the client sends to the server. All state changes
// go through the HTTP mutations; the socket only accepts the low-latency
// typing frame (equivalent to typing.set).
type IncomingMessage struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	IsTyping       bool      `json:"is_typing,omitempty"`
}

// EventIncomingTyping — единственный принимаемый от клиента тип кадра.
const EventIncomingTyping EventType = "typing"

// OutgoingMessage is what the server pushes to subscribed clients whenever a
// record their queries depend on changes.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// MessageDeletedPayload is broadcast when a message is soft-deleted.
type MessageDeletedPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

// ReactionToggledPayload is broadcast when a reaction is added or removed.
type ReactionToggledPayload struct {
	MessageID      string                `json:"message_id"`
	ConversationID string                `json:"conversation_id"`
	UserID         string                `json:"user_id"`
	Emoji          string                `json:"emoji"`
	Added          bool                  `json:"added"`
	Groups         []model.ReactionGroup `json:"groups"`
}

// TypingChangedPayload is broadcast when a user starts or stops typing
// (including server-side expiry of a stale record).
type TypingChangedPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	IsTyping       bool   `json:"is_typing"`
}

// ReceiptUpdatedPayload is broadcast when a member's read receipt moves.
type ReceiptUpdatedPayload struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	LastReadAt     time.Time `json:"last_read_at"`
}

// UserStatusPayload is broadcast for online/offline status.
type UserStatusPayload struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}
