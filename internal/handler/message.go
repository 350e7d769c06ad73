package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chatter/internal/config"
	"github.com/chatter/internal/logger"
	"github.com/chatter/internal/middleware"
	"github.com/chatter/internal/model"
	"github.com/chatter/internal/repository"
	"github.com/chatter/internal/storage"
	"github.com/chatter/internal/ws"
)

// PushNotifier отправляет пуш-уведомления. nil — пуши отключены.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// Зависимости объявлены срезами по месту использования (как источники у
// ws.Hub): в проде это repository.* и *ws.Hub, в тестах — фейки.

// MessageStore — персистентные операции над сообщениями.
type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	SoftDelete(ctx context.Context, id string) error
	ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error)
}

// MembershipSource отвечает на вопросы о составе беседы.
type MembershipSource interface {
	IsMember(ctx context.Context, conversationID, userID string) (bool, error)
	GetMemberIDs(ctx context.Context, conversationID string) ([]string, error)
}

// SenderSource возвращает профиль отправителя для вложения в сообщение.
type SenderSource interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// ReactionStore — операции над реакциями.
type ReactionStore interface {
	Toggle(ctx context.Context, messageID, userID, emoji string) (bool, error)
	GetGroupedByMessage(ctx context.Context, messageID string) ([]model.ReactionGroup, error)
	GetGroupedByConversation(ctx context.Context, conversationID string) (map[string][]model.ReactionGroup, error)
}

// EventBroadcaster — срез ws.Hub, нужный обработчику сообщений.
type EventBroadcaster interface {
	TypingChanged(ctx context.Context, conversationID, userID, username string, isTyping bool)
	BroadcastToConversation(ctx context.Context, conversationID string, msg ws.OutgoingMessage)
	HasConnection(userID string) bool
}

type MessageHandler struct {
	msgRepo   MessageStore
	convRepo  MembershipSource
	userRepo  SenderSource
	reactRepo ReactionStore
	store     storage.Store
	hub       EventBroadcaster
	notifier  PushNotifier
	policy    config.PolicyConfig
}

func NewMessageHandler(
	msgRepo MessageStore,
	convRepo MembershipSource,
	userRepo SenderSource,
	reactRepo ReactionStore,
	store storage.Store,
	hub EventBroadcaster,
	notifier PushNotifier,
	policy config.PolicyConfig,
) *MessageHandler {
	return &MessageHandler{
		msgRepo:   msgRepo,
		convRepo:  convRepo,
		userRepo:  userRepo,
		reactRepo: reactRepo,
		store:     store,
		hub:       hub,
		notifier:  notifier,
		policy:    policy,
	}
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

// Send appends a message to a conversation the caller belongs to. Sending
// also clears the sender's typing record: the indicator must not outlive the
// message it announced.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("message.Send", time.Now())()
	conversationID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if max := h.policy.MaxMessageLength; max > 0 && len([]rune(content)) > max {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("message too long (max %d characters)", max))
		return
	}

	isMember, err := h.convRepo.IsMember(r.Context(), conversationID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !isMember {
		writeError(w, http.StatusForbidden, "not a member")
		return
	}

	m := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       userID,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.msgRepo.Create(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save message")
		return
	}

	sender, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		logger.Errorf("send get sender user=%s: %v", userID, err)
	} else {
		pub := sender.ToPublic()
		m.Sender = &pub
	}

	// Отправка гасит «печатает» отправителя.
	if err := h.store.ClearTyping(r.Context(), conversationID, userID); err != nil {
		logger.Errorf("send clear typing conv=%s user=%s: %v", conversationID, userID, err)
	}
	senderName := ""
	if m.Sender != nil {
		senderName = m.Sender.Username
	}
	h.hub.TypingChanged(r.Context(), conversationID, userID, senderName, false)

	h.hub.BroadcastToConversation(r.Context(), conversationID, ws.OutgoingMessage{
		Type:    ws.EventNewMessage,
		Payload: m,
	})

	if h.notifier != nil {
		h.notifyOffline(conversationID, m, senderName)
	}

	writeJSON(w, http.StatusCreated, m)
}

// notifyOffline sends a web push to members without an open socket.
func (h *MessageHandler) notifyOffline(conversationID string, m *model.Message, senderName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	memberIDs, err := h.convRepo.GetMemberIDs(ctx, conversationID)
	if err != nil {
		logger.Errorf("notify offline get members conv=%s: %v", conversationID, err)
		return
	}
	title := senderName
	if title == "" {
		title = "New message"
	}
	body := m.Content
	if rs := []rune(body); len(rs) > 120 {
		body = string(rs[:117]) + "..."
	}
	data := map[string]string{"conversation_id": conversationID, "message_id": m.ID}
	for _, uid := range memberIDs {
		if uid == m.SenderID || h.hub.HasConnection(uid) {
			continue
		}
		go h.notifier.Notify(context.Background(), uid, title, body, data)
	}
}

// List returns the newest window of a conversation's messages in
// chronological order, with sender info and grouped reactions attached;
// offset pages toward older history. Soft-deleted rows keep their place.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("message.List", time.Now())()
	conversationID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	isMember, err := h.convRepo.IsMember(r.Context(), conversationID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !isMember {
		writeError(w, http.StatusForbidden, "not a member")
		return
	}

	limit := queryInt(r, "limit", 100)
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	messages, err := h.msgRepo.ListByConversation(r.Context(), conversationID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get messages")
		return
	}

	reactions, err := h.reactRepo.GetGroupedByConversation(r.Context(), conversationID)
	if err != nil {
		logger.Errorf("list reactions conv=%s: %v", conversationID, err)
	} else {
		for i := range messages {
			messages[i].Reactions = reactions[messages[i].ID]
		}
	}

	writeJSON(w, http.StatusOK, messages)
}

// Remove soft-deletes a message. Only the sender can remove their own
// message; the row keeps its place in history.
func (h *MessageHandler) Remove(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageId")
	userID := middleware.GetUserID(r.Context())

	m, err := h.msgRepo.GetByID(r.Context(), messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get message")
		return
	}
	if m.SenderID != userID {
		writeError(w, http.StatusForbidden, "can only delete own messages")
		return
	}

	if err := h.msgRepo.SoftDelete(r.Context(), messageID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete message")
		return
	}

	h.hub.BroadcastToConversation(r.Context(), m.ConversationID, ws.OutgoingMessage{
		Type: ws.EventMessageDeleted,
		Payload: ws.MessageDeletedPayload{
			MessageID:      messageID,
			ConversationID: m.ConversationID,
		},
	})

	w.WriteHeader(http.StatusNoContent)
}

type ToggleReactionRequest struct {
	Emoji string `json:"emoji"`
}

// ToggleReaction adds the caller's reaction if absent, removes it if present.
func (h *MessageHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageId")
	userID := middleware.GetUserID(r.Context())

	var req ToggleReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	emoji := strings.TrimSpace(req.Emoji)
	if emoji == "" {
		writeError(w, http.StatusBadRequest, "emoji is required")
		return
	}

	m, err := h.msgRepo.GetByID(r.Context(), messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get message")
		return
	}

	isMember, err := h.convRepo.IsMember(r.Context(), m.ConversationID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !isMember {
		writeError(w, http.StatusForbidden, "not a member")
		return
	}

	added, err := h.reactRepo.Toggle(r.Context(), messageID, userID, emoji)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to toggle reaction")
		return
	}

	groups, err := h.reactRepo.GetGroupedByMessage(r.Context(), messageID)
	if err != nil {
		logger.Errorf("toggle reaction groups message=%s: %v", messageID, err)
	}

	h.hub.BroadcastToConversation(r.Context(), m.ConversationID, ws.OutgoingMessage{
		Type: ws.EventReactionToggled,
		Payload: ws.ReactionToggledPayload{
			MessageID:      messageID,
			ConversationID: m.ConversationID,
			UserID:         userID,
			Emoji:          emoji,
			Added:          added,
			Groups:         groups,
		},
	})

	writeJSON(w, http.StatusOK, map[string]any{"added": added, "reactions": groups})
}
