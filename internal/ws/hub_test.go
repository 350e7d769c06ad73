package ws

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeMembers struct {
	members map[string][]string // conversationID → userIDs
	convs   map[string][]string // userID → conversationIDs
}

func (f *fakeMembers) GetMemberIDs(_ context.Context, conversationID string) ([]string, error) {
	return f.members[conversationID], nil
}

func (f *fakeMembers) GetUserConversationIDs(_ context.Context, userID string) ([]string, error) {
	return f.convs[userID], nil
}

type fakePresence struct {
	mu     sync.Mutex
	online []string // "userID=true" / "userID=false" in call order
	names  map[string]string
}

func (f *fakePresence) SetOnline(_ context.Context, userID string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if online {
		f.online = append(f.online, userID+"=true")
	} else {
		f.online = append(f.online, userID+"=false")
	}
	return nil
}

func (f *fakePresence) GetUsernames(_ context.Context, userIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		out[id] = f.names[id]
	}
	return out, nil
}

func (f *fakePresence) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.online...)
}

type fakeTyping struct {
	mu      sync.Mutex
	set     []string // "conv/user"
	cleared []string
}

func (f *fakeTyping) SetTyping(_ context.Context, conversationID, userID string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set = append(f.set, conversationID+"/"+userID)
	return nil
}

func (f *fakeTyping) ClearTyping(_ context.Context, conversationID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, conversationID+"/"+userID)
	return nil
}

func (f *fakeTyping) clearedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cleared...)
}

// stubClient is a hub client without a network connection behind it; Close is
// neutralized so tests can drive addClient/removeClient directly.
func stubClient(userID string) *Client {
	c := &Client{
		send:   make(chan OutgoingMessage, sendBufSize),
		userID: userID,
		done:   make(chan struct{}),
	}
	c.once.Do(func() {})
	return c
}

func newTestHub(ttl time.Duration) (*Hub, *fakeMembers, *fakePresence, *fakeTyping) {
	members := &fakeMembers{
		members: map[string][]string{"conv-1": {"u1", "u2"}},
		convs:   map[string][]string{"u1": {"conv-1"}, "u2": {"conv-1"}},
	}
	presence := &fakePresence{names: map[string]string{"u1": "Alice", "u2": "Bob"}}
	typing := &fakeTyping{}
	return NewHub(members, presence, typing, ttl, 100), members, presence, typing
}

func recv(t *testing.T, c *Client) OutgoingMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return OutgoingMessage{}
	}
}

func expectNone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message: %+v", msg)
	default:
	}
}

func TestPresenceFollowsConnections(t *testing.T) {
	h, _, presence, _ := newTestHub(time.Minute)

	first := stubClient("u1")
	second := stubClient("u1")
	h.addClient(first)
	h.addClient(second)

	if !h.HasConnection("u1") {
		t.Fatal("expected u1 connected")
	}
	if got := presence.calls(); len(got) != 1 || got[0] != "u1=true" {
		t.Fatalf("online calls = %v, want single u1=true", got)
	}

	// Второе соединение ещё живо — offline не объявляется.
	h.removeClient(second)
	if got := presence.calls(); len(got) != 1 {
		t.Fatalf("offline too early: %v", got)
	}
	if !h.HasConnection("u1") {
		t.Fatal("u1 must stay connected")
	}

	h.removeClient(first)
	if got := presence.calls(); len(got) != 2 || got[1] != "u1=false" {
		t.Fatalf("online calls = %v, want u1=false last", got)
	}
	if h.HasConnection("u1") {
		t.Fatal("u1 must be disconnected")
	}
}

func TestBroadcastToConversation(t *testing.T) {
	h, _, _, _ := newTestHub(time.Minute)
	c1 := stubClient("u1")
	c2 := stubClient("u2")
	h.addClient(c1)
	h.addClient(c2)
	drain(c1)
	drain(c2)

	h.BroadcastToConversation(context.Background(), "conv-1", OutgoingMessage{Type: EventNewMessage, Payload: "hi"})

	if msg := recv(t, c1); msg.Type != EventNewMessage {
		t.Fatalf("c1 got %s", msg.Type)
	}
	if msg := recv(t, c2); msg.Type != EventNewMessage {
		t.Fatalf("c2 got %s", msg.Type)
	}
}

func TestTypingBroadcastExcludesTyper(t *testing.T) {
	h, _, _, _ := newTestHub(time.Minute)
	c1 := stubClient("u1")
	c2 := stubClient("u2")
	h.addClient(c1)
	h.addClient(c2)
	drain(c1)
	drain(c2)

	h.TypingChanged(context.Background(), "conv-1", "u1", "Alice", true)

	msg := recv(t, c2)
	if msg.Type != EventTypingChanged {
		t.Fatalf("c2 got %s", msg.Type)
	}
	payload, ok := msg.Payload.(TypingChangedPayload)
	if !ok {
		t.Fatalf("payload type %T", msg.Payload)
	}
	if payload.UserID != "u1" || payload.Username != "Alice" || !payload.IsTyping {
		t.Fatalf("payload = %+v", payload)
	}
	expectNone(t, c1)
}

func TestTypingSweepExpiresStaleRecords(t *testing.T) {
	h, _, _, typing := newTestHub(30 * time.Millisecond)
	c2 := stubClient("u2")
	h.addClient(c2)
	drain(c2)

	h.TypingChanged(context.Background(), "conv-1", "u1", "Alice", true)
	if msg := recv(t, c2); msg.Type != EventTypingChanged {
		t.Fatalf("start event = %s", msg.Type)
	}

	// До истечения TTL свипер молчит.
	h.sweepTyping(context.Background())
	expectNone(t, c2)

	time.Sleep(50 * time.Millisecond)
	h.sweepTyping(context.Background())

	msg := recv(t, c2)
	payload, ok := msg.Payload.(TypingChangedPayload)
	if !ok || payload.IsTyping {
		t.Fatalf("expected typing stop, got %+v", msg)
	}
	if got := typing.clearedCalls(); len(got) != 1 || got[0] != "conv-1/u1" {
		t.Fatalf("store cleared = %v", got)
	}

	// Повторный свип ничего не находит.
	h.sweepTyping(context.Background())
	expectNone(t, c2)
}

func TestExplicitStopRemovesSweeperEntry(t *testing.T) {
	h, _, _, typing := newTestHub(30 * time.Millisecond)
	c2 := stubClient("u2")
	h.addClient(c2)
	drain(c2)

	h.TypingChanged(context.Background(), "conv-1", "u1", "Alice", true)
	h.TypingChanged(context.Background(), "conv-1", "u1", "Alice", false)
	drain(c2)

	time.Sleep(50 * time.Millisecond)
	h.sweepTyping(context.Background())

	// Запись снята явно — свипер не должен дублировать stop или чистить стор.
	expectNone(t, c2)
	if got := typing.clearedCalls(); len(got) != 0 {
		t.Fatalf("unexpected store clears: %v", got)
	}
}

func TestIncomingTypingFrame(t *testing.T) {
	h, _, _, typing := newTestHub(time.Minute)
	c1 := stubClient("u1")
	c2 := stubClient("u2")
	h.addClient(c1)
	h.addClient(c2)
	drain(c1)
	drain(c2)

	h.HandleMessage(context.Background(), c1, IncomingMessage{
		Type:           EventIncomingTyping,
		ConversationID: "conv-1",
		IsTyping:       true,
	})

	typing.mu.Lock()
	setCalls := append([]string(nil), typing.set...)
	typing.mu.Unlock()
	if len(setCalls) != 1 || setCalls[0] != "conv-1/u1" {
		t.Fatalf("typing set calls = %v", setCalls)
	}
	msg := recv(t, c2)
	if msg.Type != EventTypingChanged {
		t.Fatalf("c2 got %s", msg.Type)
	}
}

func TestUnknownFrameReturnsError(t *testing.T) {
	h, _, _, _ := newTestHub(time.Minute)
	c1 := stubClient("u1")
	h.addClient(c1)
	drain(c1)

	h.HandleMessage(context.Background(), c1, IncomingMessage{Type: "ping-pong"})

	msg := recv(t, c1)
	if msg.Type != EventError {
		t.Fatalf("got %s, want %s", msg.Type, EventError)
	}
}

// drain discards queued status broadcasts from addClient.
func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}
