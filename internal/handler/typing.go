package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatter/internal/config"
	"github.com/chatter/internal/logger"
	"github.com/chatter/internal/middleware"
	"github.com/chatter/internal/repository"
	"github.com/chatter/internal/storage"
	"github.com/chatter/internal/ws"
)

type TypingHandler struct {
	store    storage.Store
	convRepo *repository.ConversationRepository
	userRepo *repository.UserRepository
	hub      *ws.Hub
	policy   config.PolicyConfig
}

func NewTypingHandler(store storage.Store, convRepo *repository.ConversationRepository, userRepo *repository.UserRepository, hub *ws.Hub, policy config.PolicyConfig) *TypingHandler {
	return &TypingHandler{store: store, convRepo: convRepo, userRepo: userRepo, hub: hub, policy: policy}
}

type SetTypingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// Set records or clears the caller's typing state. The record carries a TTL,
// so a client that vanishes mid-keystroke stops "typing" on its own. Routed
// through the lenient session middleware: no valid session is a silent no-op.
func (h *TypingHandler) Set(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	conversationID := chi.URLParam(r, "id")

	var req SetTypingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
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

	if req.IsTyping {
		err = h.store.SetTyping(r.Context(), conversationID, userID, h.policy.TypingTTL())
	} else {
		err = h.store.ClearTyping(r.Context(), conversationID, userID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update typing state")
		return
	}

	names, err := h.userRepo.GetUsernames(r.Context(), []string{userID})
	if err != nil {
		logger.Errorf("typing resolve username user=%s: %v", userID, err)
	}
	h.hub.TypingChanged(r.Context(), conversationID, userID, names[userID], req.IsTyping)

	w.WriteHeader(http.StatusNoContent)
}

type TypingUser struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// GetActive returns who is currently typing in the conversation, excluding
// the caller.
func (h *TypingHandler) GetActive(w http.ResponseWriter, r *http.Request) {
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

	ids, err := h.store.GetTypingUserIDs(r.Context(), conversationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get typing state")
		return
	}

	others := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != userID {
			others = append(others, id)
		}
	}

	result := make([]TypingUser, 0, len(others))
	if len(others) > 0 {
		names, err := h.userRepo.GetUsernames(r.Context(), others)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to resolve usernames")
			return
		}
		for _, id := range others {
			result = append(result, TypingUser{UserID: id, Username: names[id]})
		}
	}

	writeJSON(w, http.StatusOK, result)
}
