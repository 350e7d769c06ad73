package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chatter/internal/config"
	"github.com/chatter/internal/middleware"
	"github.com/chatter/internal/model"
	"github.com/chatter/internal/repository"
	"github.com/chatter/internal/storage/memory"
	"github.com/chatter/internal/ws"
)

type fakeMessageStore struct {
	mu      sync.Mutex
	created []*model.Message
}

func (f *fakeMessageStore) Create(_ context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, m)
	return nil
}

func (f *fakeMessageStore) GetByID(_ context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.created {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeMessageStore) SoftDelete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.created {
		if m.ID == id {
			m.IsDeleted = true
		}
	}
	return nil
}

func (f *fakeMessageStore) ListByConversation(_ context.Context, conversationID string, _, _ int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.created {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMessageStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeMembership struct {
	members map[string][]string // conversationID → userIDs
}

func (f *fakeMembership) IsMember(_ context.Context, conversationID, userID string) (bool, error) {
	for _, id := range f.members[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMembership) GetMemberIDs(_ context.Context, conversationID string) ([]string, error) {
	return f.members[conversationID], nil
}

type fakeSenders struct {
	users map[string]*model.User
}

func (f *fakeSenders) GetByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

type fakeReactions struct{}

func (fakeReactions) Toggle(_ context.Context, _, _, _ string) (bool, error) { return true, nil }
func (fakeReactions) GetGroupedByMessage(_ context.Context, _ string) ([]model.ReactionGroup, error) {
	return nil, nil
}
func (fakeReactions) GetGroupedByConversation(_ context.Context, _ string) (map[string][]model.ReactionGroup, error) {
	return nil, nil
}

// fakeHub записывает вызовы вместо рассылки по сокетам.
type fakeHub struct {
	mu     sync.Mutex
	typing []string // "conv/user=isTyping"
	events []ws.OutgoingMessage
}

func (f *fakeHub) TypingChanged(_ context.Context, conversationID, userID, _ string, isTyping bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, fmt.Sprintf("%s/%s=%t", conversationID, userID, isTyping))
}

func (f *fakeHub) BroadcastToConversation(_ context.Context, _ string, msg ws.OutgoingMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, msg)
}

func (f *fakeHub) HasConnection(string) bool { return true }

func (f *fakeHub) typingCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.typing...)
}

func (f *fakeHub) broadcasts() []ws.OutgoingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ws.OutgoingMessage(nil), f.events...)
}

func newMessageTestHandler() (*MessageHandler, *fakeMessageStore, *fakeHub, *memory.Client) {
	msgs := &fakeMessageStore{}
	members := &fakeMembership{members: map[string][]string{"conv-1": {"u1", "u2"}}}
	senders := &fakeSenders{users: map[string]*model.User{
		"u1": {ID: "u1", Username: "Alice"},
		"u2": {ID: "u2", Username: "Bob"},
	}}
	hub := &fakeHub{}
	mem := memory.New()
	h := NewMessageHandler(msgs, members, senders, fakeReactions{}, mem, hub, nil,
		config.PolicyConfig{MaxMessageLength: 50})
	return h, msgs, hub, mem
}

func sendRequest(userID, conversationID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost,
		"/api/conversations/"+conversationID+"/messages", strings.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", conversationID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, middleware.UserIDKey, userID)
	return req.WithContext(ctx)
}

func TestSendClearsSenderTyping(t *testing.T) {
	h, msgs, hub, mem := newMessageTestHandler()
	ctx := context.Background()
	if err := mem.SetTyping(ctx, "conv-1", "u1", time.Minute); err != nil {
		t.Fatalf("set typing: %v", err)
	}

	rec := httptest.NewRecorder()
	h.Send(rec, sendRequest("u1", "conv-1", `{"content":"hello"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if msgs.count() != 1 {
		t.Fatalf("created %d messages, want 1", msgs.count())
	}

	typers, err := mem.GetTypingUserIDs(ctx, "conv-1")
	if err != nil {
		t.Fatalf("get typing: %v", err)
	}
	if len(typers) != 0 {
		t.Fatalf("typing record survived the send: %v", typers)
	}

	calls := hub.typingCalls()
	if len(calls) != 1 || calls[0] != "conv-1/u1=false" {
		t.Fatalf("typing notifications = %v, want [conv-1/u1=false]", calls)
	}

	events := hub.broadcasts()
	if len(events) != 1 || events[0].Type != ws.EventNewMessage {
		t.Fatalf("broadcasts = %+v, want one %s event", events, ws.EventNewMessage)
	}
	m, ok := events[0].Payload.(*model.Message)
	if !ok || m.Content != "hello" || m.Sender == nil || m.Sender.Username != "Alice" {
		t.Fatalf("unexpected new_message payload: %+v", events[0].Payload)
	}
}

func TestSendRejectsBadContent(t *testing.T) {
	h, msgs, hub, mem := newMessageTestHandler()
	ctx := context.Background()
	if err := mem.SetTyping(ctx, "conv-1", "u1", time.Minute); err != nil {
		t.Fatalf("set typing: %v", err)
	}

	for name, body := range map[string]string{
		"whitespace only": `{"content":"   "}`,
		"over the limit":  fmt.Sprintf(`{"content":%q}`, strings.Repeat("ы", 51)),
		"malformed json":  `{"content":`,
	} {
		rec := httptest.NewRecorder()
		h.Send(rec, sendRequest("u1", "conv-1", body))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", name, rec.Code, http.StatusBadRequest)
		}
	}

	if msgs.count() != 0 {
		t.Fatalf("rejected sends stored %d messages", msgs.count())
	}
	if len(hub.typingCalls()) != 0 {
		t.Fatalf("rejected send touched typing state: %v", hub.typingCalls())
	}
	// Отклонённая отправка не гасит индикатор: пользователь всё ещё печатает.
	typers, err := mem.GetTypingUserIDs(ctx, "conv-1")
	if err != nil {
		t.Fatalf("get typing: %v", err)
	}
	if len(typers) != 1 {
		t.Fatalf("typing record lost on rejected send: %v", typers)
	}
}

func TestSendRequiresMembership(t *testing.T) {
	h, msgs, hub, _ := newMessageTestHandler()

	rec := httptest.NewRecorder()
	h.Send(rec, sendRequest("outsider", "conv-1", `{"content":"hi"}`))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if msgs.count() != 0 || len(hub.broadcasts()) != 0 {
		t.Fatal("non-member send reached the store or the hub")
	}
}
