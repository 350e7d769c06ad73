package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/chatter/internal/middleware"
	"github.com/chatter/internal/model"
	"github.com/chatter/internal/repository"
)

type fakeUserStore struct {
	mu     sync.Mutex
	online []string // "userID=online" in call order
}

func (f *fakeUserStore) Store(_ context.Context, id *model.Identity) (*model.User, error) {
	return &model.User{ID: "u-" + id.Subject, ExternalID: id.Subject, Username: id.Name}, nil
}

func (f *fakeUserStore) GetByID(_ context.Context, _ string) (*model.User, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeUserStore) ListOthers(_ context.Context, _ string, _ int) ([]model.User, error) {
	return nil, nil
}

func (f *fakeUserStore) SetOnline(_ context.Context, userID string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, fmt.Sprintf("%s=%t", userID, online))
	return nil
}

func (f *fakeUserStore) onlineCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.online...)
}

func statusRequest(userID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPut, "/api/users/status", strings.NewReader(body))
	if userID != "" {
		req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
	}
	return req
}

func TestUpdateStatusEmptyBodyIsOnlineHeartbeat(t *testing.T) {
	store := &fakeUserStore{}
	h := NewUserHandler(store)

	rec := httptest.NewRecorder()
	h.UpdateStatus(rec, statusRequest("u1", ""))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if calls := store.onlineCalls(); len(calls) != 1 || calls[0] != "u1=true" {
		t.Fatalf("SetOnline calls = %v, want [u1=true]", calls)
	}
}

func TestUpdateStatusExplicitOffline(t *testing.T) {
	store := &fakeUserStore{}
	h := NewUserHandler(store)

	rec := httptest.NewRecorder()
	h.UpdateStatus(rec, statusRequest("u1", `{"is_online":false}`))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if calls := store.onlineCalls(); len(calls) != 1 || calls[0] != "u1=false" {
		t.Fatalf("SetOnline calls = %v, want [u1=false]", calls)
	}
}

func TestUpdateStatusRejectsMalformedBody(t *testing.T) {
	store := &fakeUserStore{}
	h := NewUserHandler(store)

	rec := httptest.NewRecorder()
	h.UpdateStatus(rec, statusRequest("u1", `{"is_online":`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if calls := store.onlineCalls(); len(calls) != 0 {
		t.Fatalf("malformed body flipped status anyway: %v", calls)
	}
}

func TestUpdateStatusAnonymousIsSilentNoOp(t *testing.T) {
	store := &fakeUserStore{}
	h := NewUserHandler(store)

	rec := httptest.NewRecorder()
	h.UpdateStatus(rec, statusRequest("", ""))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if calls := store.onlineCalls(); len(calls) != 0 {
		t.Fatalf("anonymous heartbeat reached the store: %v", calls)
	}
}
