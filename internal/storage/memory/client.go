package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chatter/internal/model"
)

const maxSubsPerUser = 10

type typingEntry struct {
	exp time.Time
}

// Client — in-memory реализация storage.Store для режима -dev и тестов.
type Client struct {
	mu       sync.RWMutex
	sessions map[string]model.Identity
	typing   map[string]map[string]typingEntry // conversationID → userID → expiry
	subs     map[string][]string               // userID → subscription JSON
}

func New() *Client {
	return &Client{
		sessions: make(map[string]model.Identity),
		typing:   make(map[string]map[string]typingEntry),
		subs:     make(map[string][]string),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) GetIdentity(ctx context.Context, token string) (*model.Identity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.sessions[token]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

func (c *Client) SetIdentity(ctx context.Context, token string, id *model.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[token] = *id
	return nil
}

func (c *Client) DeleteIdentity(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, token)
	return nil
}

func (c *Client) SetTyping(ctx context.Context, conversationID, userID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.typing[conversationID]
	if !ok {
		conv = make(map[string]typingEntry)
		c.typing[conversationID] = conv
	}
	conv[userID] = typingEntry{exp: time.Now().Add(ttl)}
	return nil
}

func (c *Client) ClearTyping(ctx context.Context, conversationID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conv, ok := c.typing[conversationID]; ok {
		delete(conv, userID)
		if len(conv) == 0 {
			delete(c.typing, conversationID)
		}
	}
	return nil
}

func (c *Client) GetTypingUserIDs(ctx context.Context, conversationID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.typing[conversationID]
	if !ok {
		return nil, nil
	}
	now := time.Now()
	ids := make([]string, 0, len(conv))
	for uid, e := range conv {
		if now.After(e.exp) {
			delete(conv, uid)
			continue
		}
		ids = append(ids, uid)
	}
	if len(conv) == 0 {
		delete(c.typing, conversationID)
	}
	return ids, nil
}

func (c *Client) AddPushSubscription(ctx context.Context, userID, subscription string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.subs[userID]
	for _, s := range list {
		if s == subscription {
			return nil
		}
	}
	if len(list) >= maxSubsPerUser {
		return fmt.Errorf("memory push subs: limit %d reached for user %s", maxSubsPerUser, userID)
	}
	c.subs[userID] = append(list, subscription)
	return nil
}

func (c *Client) RemovePushSubscription(ctx context.Context, userID, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.subs[userID]
	kept := list[:0]
	for _, s := range list {
		var sub struct {
			Endpoint string `json:"endpoint"`
		}
		if json.Unmarshal([]byte(s), &sub) == nil && sub.Endpoint == endpoint {
			continue
		}
		kept = append(kept, s)
	}
	if len(kept) == 0 {
		delete(c.subs, userID)
	} else {
		c.subs[userID] = kept
	}
	return nil
}

func (c *Client) GetPushSubscriptions(ctx context.Context, userID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.subs[userID]...), nil
}
