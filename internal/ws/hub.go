package ws

import (
	"context"
	"sync"
	"time"

	"github.com/chatter/internal/logger"
)

// MembershipSource resolves conversation membership for fan-out.
// Implemented by repository.ConversationRepository.
type MembershipSource interface {
	GetMemberIDs(ctx context.Context, conversationID string) ([]string, error)
	GetUserConversationIDs(ctx context.Context, userID string) ([]string, error)
}

// PresenceStore persists the online flag derived from socket lifecycle.
// Implemented by repository.UserRepository.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID string, online bool) error
	GetUsernames(ctx context.Context, userIDs []string) (map[string]string, error)
}

// TypingStore keeps the per-conversation typing set with TTL.
// Implemented by storage.Store.
type TypingStore interface {
	SetTyping(ctx context.Context, conversationID, userID string, ttl time.Duration) error
	ClearTyping(ctx context.Context, conversationID, userID string) error
}

// typingKey идентифицирует одну запись "печатает" для свипера.
type typingKey struct {
	conversationID string
	userID         string
}

type typingEntry struct {
	username string
	expires  time.Time
}

type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	total    int
	maxConns int

	members   MembershipSource
	presence  PresenceStore
	typing    TypingStore
	typingTTL time.Duration

	// Локальное зеркало TTL записей typing: свипер рассылает
	// typing_changed(false), когда запись протухла без явного clear.
	typingMu  sync.Mutex
	typingSet map[typingKey]typingEntry

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(
	members MembershipSource,
	presence PresenceStore,
	typing TypingStore,
	typingTTL time.Duration,
	maxConns int,
) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	if typingTTL <= 0 {
		typingTTL = 6 * time.Second
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		members:    members,
		presence:   presence,
		typing:     typing,
		typingTTL:  typingTTL,
		typingSet:  make(map[typingKey]typingEntry),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	sweep := time.NewTicker(time.Second)
	defer sweep.Stop()
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-sweep.C:
			h.sweepTyping(ctx)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.total++
	firstClient := len(h.clients[c.userID]) == 1
	h.mu.Unlock()

	if firstClient {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.presence.SetOnline(ctx, c.userID, true); err != nil {
			logger.Errorf("ws set online user=%s: %v", c.userID, err)
		}
		h.broadcastUserStatus(c.userID, true)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	lastClient := len(clients) == 0
	if lastClient {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()

	if lastClient {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.presence.SetOnline(ctx, c.userID, false); err != nil {
			logger.Errorf("ws set offline user=%s: %v", c.userID, err)
		}
		h.broadcastUserStatus(c.userID, false)
	}
}

// HandleMessage dispatches incoming WebSocket messages. The socket accepts
// only the typing frame; everything stateful goes through HTTP.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventIncomingTyping:
		h.handleTyping(ctx, c, msg)
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "unknown event type"})
	}
}

func (h *Hub) handleTyping(ctx context.Context, c *Client, msg IncomingMessage) {
	if msg.ConversationID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	names, err := h.presence.GetUsernames(ctx, []string{c.userID})
	if err != nil {
		logger.Errorf("ws resolve typing username user=%s: %v", c.userID, err)
		return
	}

	if msg.IsTyping {
		if err := h.typing.SetTyping(ctx, msg.ConversationID, c.userID, h.typingTTL); err != nil {
			logger.Errorf("ws set typing conv=%s user=%s: %v", msg.ConversationID, c.userID, err)
			return
		}
	} else {
		if err := h.typing.ClearTyping(ctx, msg.ConversationID, c.userID); err != nil {
			logger.Errorf("ws clear typing conv=%s user=%s: %v", msg.ConversationID, c.userID, err)
			return
		}
	}

	h.TypingChanged(ctx, msg.ConversationID, c.userID, names[c.userID], msg.IsTyping)
}

// TypingChanged broadcasts a typing delta to the conversation (excluding the
// typer) and keeps the expiry mirror in sync so the sweeper can emit the
// matching stop event when a record goes stale without an explicit clear.
func (h *Hub) TypingChanged(ctx context.Context, conversationID, userID, username string, isTyping bool) {
	key := typingKey{conversationID: conversationID, userID: userID}
	h.typingMu.Lock()
	if isTyping {
		h.typingSet[key] = typingEntry{username: username, expires: time.Now().Add(h.typingTTL)}
	} else {
		delete(h.typingSet, key)
	}
	h.typingMu.Unlock()

	h.broadcastTyping(ctx, conversationID, userID, username, isTyping)
}

func (h *Hub) broadcastTyping(ctx context.Context, conversationID, userID, username string, isTyping bool) {
	memberIDs, err := h.members.GetMemberIDs(ctx, conversationID)
	if err != nil {
		logger.Errorf("ws get members for typing conv=%s: %v", conversationID, err)
		return
	}
	out := OutgoingMessage{
		Type: EventTypingChanged,
		Payload: TypingChangedPayload{
			ConversationID: conversationID,
			UserID:         userID,
			Username:       username,
			IsTyping:       isTyping,
		},
	}
	for _, uid := range memberIDs {
		if uid != userID {
			h.sendToUser(uid, out)
		}
	}
}

// sweepTyping expires stale typing records server-side. The storage TTL
// removes the record; the sweeper tells the subscribers about it.
func (h *Hub) sweepTyping(ctx context.Context) {
	now := time.Now()

	type expired struct {
		key   typingKey
		entry typingEntry
	}
	var stale []expired
	h.typingMu.Lock()
	for key, entry := range h.typingSet {
		if entry.expires.Before(now) {
			stale = append(stale, expired{key: key, entry: entry})
			delete(h.typingSet, key)
		}
	}
	h.typingMu.Unlock()

	if len(stale) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, e := range stale {
		if err := h.typing.ClearTyping(ctx, e.key.conversationID, e.key.userID); err != nil {
			logger.Errorf("ws sweep typing conv=%s user=%s: %v", e.key.conversationID, e.key.userID, err)
		}
		h.broadcastTyping(ctx, e.key.conversationID, e.key.userID, e.entry.username, false)
	}
}

func (h *Hub) broadcastUserStatus(userID string, online bool) {
	evType := EventUserOffline
	if online {
		evType = EventUserOnline
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	convIDs, err := h.members.GetUserConversationIDs(ctx, userID)
	if err != nil {
		logger.Errorf("ws get conversations for status broadcast user=%s: %v", userID, err)
		return
	}

	out := OutgoingMessage{
		Type: evType,
		Payload: UserStatusPayload{
			UserID: userID,
			Online: online,
		},
	}

	notified := make(map[string]struct{}, 16)
	for _, convID := range convIDs {
		memberIDs, err := h.members.GetMemberIDs(ctx, convID)
		if err != nil {
			logger.Errorf("ws get members for status broadcast conv=%s: %v", convID, err)
			continue
		}
		for _, uid := range memberIDs {
			if uid == userID {
				continue
			}
			if _, ok := notified[uid]; ok {
				continue
			}
			notified[uid] = struct{}{}
			h.sendToUser(uid, out)
		}
	}
}

// BroadcastToConversation sends a message to all members of a conversation.
func (h *Hub) BroadcastToConversation(ctx context.Context, conversationID string, msg OutgoingMessage) {
	defer logger.DeferLogDuration("ws.BroadcastToConversation", time.Now())()
	memberIDs, err := h.members.GetMemberIDs(ctx, conversationID)
	if err != nil {
		logger.Errorf("ws broadcast to conversation %s: %v", conversationID, err)
		return
	}
	for _, uid := range memberIDs {
		h.sendToUser(uid, msg)
	}
}

// HasConnection reports whether the user has at least one open socket.
// Used to decide whether a web push is worth sending.
func (h *Hub) HasConnection(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

func (h *Hub) sendToUser(userID string, msg OutgoingMessage) {
	h.mu.RLock()
	clients, ok := h.clients[userID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, msg)
	}
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
