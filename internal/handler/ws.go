package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/chatter/internal/logger"
	"github.com/chatter/internal/middleware"
	"github.com/chatter/internal/ws"
)

// WSHandler апгрейдит /ws в WebSocket и передаёт соединение хабу.
type WSHandler struct {
	hub      *ws.Hub
	origins  []string // пустой срез = любые
	upgrader websocket.Upgrader
}

// NewWSHandler создаёт обработчик WebSocket. allowedOrigins — список через
// запятую, как в CORS; "*" или пустая строка отключают проверку.
func NewWSHandler(hub *ws.Hub, allowedOrigins string) *WSHandler {
	h := &WSHandler{hub: hub}
	allowedOrigins = strings.TrimSpace(allowedOrigins)
	if allowedOrigins != "" && allowedOrigins != "*" {
		for _, o := range strings.Split(allowedOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				h.origins = append(h.origins, o)
			}
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.originAllowed,
	}
	return h
}

func (h *WSHandler) originAllowed(r *http.Request) bool {
	if len(h.origins) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		// Не-браузерные клиенты заголовок не шлют.
		return true
	}
	for _, o := range h.origins {
		if o == origin {
			return true
		}
	}
	return false
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.originAllowed(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade user=%s: %v", userID, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, userID)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}
