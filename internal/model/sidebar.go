package model

import "time"

// LastMessagePreview — последнее сообщение беседы для сайдбара.
type LastMessagePreview struct {
	Text      string    `json:"text"`
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
}

// SidebarItem is one entry of the aggregated conversation list: either
// another known user (direct conversation, possibly not created yet) or a
// group the caller belongs to.
type SidebarItem struct {
	ID             string              `json:"id"`
	IsGroup        bool                `json:"is_group"`
	ConversationID string              `json:"conversation_id,omitempty"`
	OtherUserID    string              `json:"other_user_id,omitempty"`
	Name           string              `json:"name"`
	AvatarURL      string              `json:"avatar_url,omitempty"`
	IsOnline       bool                `json:"is_online,omitempty"`
	MemberCount    int                 `json:"member_count,omitempty"`
	LastMessage    *LastMessagePreview `json:"last_message,omitempty"`
	UnreadCount    int                 `json:"unread_count"`
}
