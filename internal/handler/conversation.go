package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chatter/internal/config"
	"github.com/chatter/internal/middleware"
	"github.com/chatter/internal/repository"
	"github.com/chatter/internal/ws"
)

type ConversationHandler struct {
	convRepo *repository.ConversationRepository
	userRepo *repository.UserRepository
	hub      *ws.Hub
	policy   config.PolicyConfig
}

func NewConversationHandler(convRepo *repository.ConversationRepository, userRepo *repository.UserRepository, hub *ws.Hub, policy config.PolicyConfig) *ConversationHandler {
	return &ConversationHandler{convRepo: convRepo, userRepo: userRepo, hub: hub, policy: policy}
}

type CreateDirectRequest struct {
	OtherUserID string `json:"other_user_id"`
}

type CreateGroupRequest struct {
	Name           string   `json:"name"`
	ParticipantIDs []string `json:"participant_ids"`
}

// GetOrCreateDirect returns the direct conversation with the given user,
// creating it if the pair has none yet. Idempotent: concurrent calls for the
// same pair converge on one conversation (unique pair key in the database).
func (h *ConversationHandler) GetOrCreateDirect(w http.ResponseWriter, r *http.Request) {
	var req CreateDirectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	currentUserID := middleware.GetUserID(r.Context())
	if req.OtherUserID == "" {
		writeError(w, http.StatusBadRequest, "other_user_id is required")
		return
	}
	if req.OtherUserID == currentUserID {
		writeError(w, http.StatusBadRequest, "cannot create conversation with yourself")
		return
	}

	if _, err := h.userRepo.GetByID(r.Context(), req.OtherUserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}

	conv, created, err := h.convRepo.GetOrCreateDirect(r.Context(), currentUserID, req.OtherUserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.hub.BroadcastToConversation(r.Context(), conv.ID, ws.OutgoingMessage{
			Type:    ws.EventConversationCreated,
			Payload: conv,
		})
	}
	writeJSON(w, status, conv)
}

// CreateGroup creates a group conversation. The caller is always a member,
// whether or not they listed themselves.
func (h *ConversationHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	currentUserID := middleware.GetUserID(r.Context())

	// Дедупликация + вызывающий всегда участник.
	seen := map[string]struct{}{currentUserID: {}}
	memberIDs := []string{currentUserID}
	for _, uid := range req.ParticipantIDs {
		uid = strings.TrimSpace(uid)
		if uid == "" {
			continue
		}
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		memberIDs = append(memberIDs, uid)
	}
	if len(memberIDs) < 2 {
		writeError(w, http.StatusBadRequest, "at least one other member is required")
		return
	}
	if max := h.policy.MaxGroupMembers; max > 0 && len(memberIDs) > max {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("too many members (max %d)", max))
		return
	}

	conv, err := h.convRepo.CreateGroup(r.Context(), currentUserID, name, memberIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create group")
		return
	}

	h.hub.BroadcastToConversation(r.Context(), conv.ID, ws.OutgoingMessage{
		Type:    ws.EventConversationCreated,
		Payload: conv,
	})

	writeJSON(w, http.StatusCreated, conv)
}

// GetConversation returns a single conversation the caller belongs to.
func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
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

	conv, err := h.convRepo.GetByID(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}
