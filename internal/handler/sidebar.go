package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chatter/internal/logger"
	"github.com/chatter/internal/middleware"
	"github.com/chatter/internal/model"
	"github.com/chatter/internal/repository"
	"github.com/chatter/internal/ws"
)

type SidebarHandler struct {
	userRepo    *repository.UserRepository
	convRepo    *repository.ConversationRepository
	msgRepo     *repository.MessageRepository
	receiptRepo *repository.ReceiptRepository
	hub         *ws.Hub
}

func NewSidebarHandler(
	userRepo *repository.UserRepository,
	convRepo *repository.ConversationRepository,
	msgRepo *repository.MessageRepository,
	receiptRepo *repository.ReceiptRepository,
	hub *ws.Hub,
) *SidebarHandler {
	return &SidebarHandler{
		userRepo:    userRepo,
		convRepo:    convRepo,
		msgRepo:     msgRepo,
		receiptRepo: receiptRepo,
		hub:         hub,
	}
}

// GetSidebarData returns the aggregated conversation list: one entry per
// other known user (their direct conversation, if any) plus one per group the
// caller belongs to. Each entry carries the last-message preview and the
// caller's unread count.
func (h *SidebarHandler) GetSidebarData(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("sidebar.GetSidebarData", time.Now())()
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	others, err := h.userRepo.ListOthers(ctx, userID, 500)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	directIDs, err := h.convRepo.GetDirectConversationIDs(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get conversations")
		return
	}
	groups, err := h.convRepo.GetUserGroups(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get groups")
		return
	}

	items := make([]model.SidebarItem, 0, len(others)+len(groups))

	for _, u := range others {
		item := model.SidebarItem{
			ID:          u.ID,
			OtherUserID: u.ID,
			Name:        u.Username,
			AvatarURL:   u.AvatarURL,
			IsOnline:    u.IsOnline,
		}
		if convID, ok := directIDs[u.ID]; ok {
			item.ConversationID = convID
			item.LastMessage, item.UnreadCount = h.conversationPreview(ctx, convID, userID)
		}
		items = append(items, item)
	}

	for _, g := range groups {
		item := model.SidebarItem{
			ID:             g.ID,
			IsGroup:        true,
			ConversationID: g.ID,
			Name:           g.Name,
		}
		memberIDs, err := h.convRepo.GetMemberIDs(ctx, g.ID)
		if err != nil {
			logger.Errorf("sidebar get members conv=%s: %v", g.ID, err)
		} else {
			item.MemberCount = len(memberIDs)
		}
		item.LastMessage, item.UnreadCount = h.conversationPreview(ctx, g.ID, userID)
		items = append(items, item)
	}

	sortSidebar(items)
	writeJSON(w, http.StatusOK, items)
}

// conversationPreview fetches the last-message preview and unread count for
// one conversation. Errors degrade to an empty preview, not a failed request.
func (h *SidebarHandler) conversationPreview(ctx context.Context, conversationID, userID string) (*model.LastMessagePreview, int) {
	var preview *model.LastMessagePreview
	last, err := h.msgRepo.GetLastMessage(ctx, conversationID)
	if err != nil {
		logger.Errorf("sidebar last message conv=%s: %v", conversationID, err)
	} else if last != nil {
		preview = &model.LastMessagePreview{
			Text:      last.PreviewText(),
			IsDeleted: last.IsDeleted,
			CreatedAt: last.CreatedAt,
		}
	}
	unread, err := h.msgRepo.GetUnreadCount(ctx, conversationID, userID)
	if err != nil {
		logger.Errorf("sidebar unread count conv=%s: %v", conversationID, err)
	}
	return preview, unread
}

// sortSidebar orders entries by last activity, newest first. Entries without
// any message sink to the bottom, keeping their relative order.
func sortSidebar(items []model.SidebarItem) {
	sort.SliceStable(items, func(i, j int) bool {
		li, lj := items[i].LastMessage, items[j].LastMessage
		switch {
		case li == nil && lj == nil:
			return false
		case lj == nil:
			return true
		case li == nil:
			return false
		default:
			return li.CreatedAt.After(lj.CreatedAt)
		}
	})
}

// MarkRead moves the caller's read receipt for the conversation to now.
// The receipt never moves backwards. Routed through the lenient session
// middleware: no valid session is a silent no-op.
func (h *SidebarHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	conversationID := chi.URLParam(r, "id")

	isMember, err := h.convRepo.IsMember(r.Context(), conversationID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !isMember {
		writeError(w, http.StatusForbidden, "not a member")
		return
	}

	at := time.Now().UTC()
	if err := h.receiptRepo.MarkRead(r.Context(), userID, conversationID, at); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mark read")
		return
	}

	h.hub.BroadcastToConversation(r.Context(), conversationID, ws.OutgoingMessage{
		Type: ws.EventReceiptUpdated,
		Payload: ws.ReceiptUpdatedPayload{
			ConversationID: conversationID,
			UserID:         userID,
			LastReadAt:     at,
		},
	})

	w.WriteHeader(http.StatusNoContent)
}
