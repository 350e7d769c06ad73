package handler

import (
	"encoding/json"
	"net/http"

	"github.com/chatter/internal/middleware"
	"github.com/chatter/internal/push"
	"github.com/chatter/internal/storage"
)

// PushHandler управляет Web Push подписками вызывающего.
type PushHandler struct {
	store storage.Store
}

func NewPushHandler(store storage.Store) *PushHandler {
	return &PushHandler{store: store}
}

// Subscribe принимает от фронта результат PushManager.subscribe() — либо
// объект подписки целиком, либо завёрнутый в {"subscription": ...} — и
// сохраняет его как есть для последующих отправок.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body struct {
		push.Subscription
		Wrapped *push.Subscription `json:"subscription"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	sub := body.Subscription
	if body.Wrapped != nil {
		sub = *body.Wrapped
	}
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint and keys are required")
		return
	}

	raw, err := json.Marshal(sub)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "subscription encode")
		return
	}
	if err := h.store.AddPushSubscription(r.Context(), userID, string(raw)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unsubscribe удаляет подписку по её endpoint.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint required")
		return
	}

	if err := h.store.RemovePushSubscription(r.Context(), userID, body.Endpoint); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
