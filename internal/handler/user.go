package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/chatter/internal/middleware"
	"github.com/chatter/internal/model"
)

// UserStore — срез repository.UserRepository, нужный обработчику.
type UserStore interface {
	Store(ctx context.Context, id *model.Identity) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	ListOthers(ctx context.Context, excludeUserID string, limit int) ([]model.User, error)
	SetOnline(ctx context.Context, userID string, online bool) error
}

type UserHandler struct {
	userRepo UserStore
}

func NewUserHandler(userRepo UserStore) *UserHandler {
	return &UserHandler{userRepo: userRepo}
}

// Store upserts the caller's profile from the session identity. Called on
// login: creates the user on first sight, refreshes name and avatar after.
func (h *UserHandler) Store(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	user, err := h.userRepo.Store(r.Context(), identity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GetProfile returns the caller's own profile.
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user.ToPublic())
}

// GetUsers returns all known users except the caller.
func (h *UserHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	currentUserID := middleware.GetUserID(r.Context())
	users, err := h.userRepo.ListOthers(r.Context(), currentUserID, 500)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list users failed")
		return
	}
	result := make([]model.UserPublic, 0, len(users))
	for _, u := range users {
		result = append(result, u.ToPublic())
	}
	writeJSON(w, http.StatusOK, result)
}

// UpdateStatus is the heartbeat: refreshes the online flag and last_seen_at.
// Routed through the lenient session middleware, so an expired session is a
// silent no-op instead of an error.
func (h *UserHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	// Пустое тело = heartbeat (онлайн); явное is_online:false приходит от
	// sendBeacon при закрытии вкладки. Непустое, но битое тело — ошибка
	// клиента, а не heartbeat.
	req := struct {
		IsOnline bool `json:"is_online"`
	}{IsOnline: true}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.userRepo.SetOnline(r.Context(), userID, req.IsOnline); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update status")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
