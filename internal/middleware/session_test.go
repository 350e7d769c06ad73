package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chatter/internal/model"
	"github.com/chatter/internal/repository"
	"github.com/chatter/internal/storage/memory"
)

type fakeUsers struct {
	byExternal map[string]*model.User
}

func (f *fakeUsers) GetByExternalID(_ context.Context, externalID string) (*model.User, error) {
	u, ok := f.byExternal[externalID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func okHandler(gotUserID, gotSubject *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotUserID = GetUserID(r.Context())
		if id := GetIdentity(r.Context()); id != nil {
			*gotSubject = id.Subject
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestSessionAuthRejectsMissingToken(t *testing.T) {
	store := memory.New()
	users := &fakeUsers{byExternal: map[string]*model.User{}}
	var userID, subject string
	h := SessionAuth(store, users)(okHandler(&userID, &subject))

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestSessionAuthRejectsUnknownToken(t *testing.T) {
	store := memory.New()
	users := &fakeUsers{byExternal: map[string]*model.User{}}
	var userID, subject string
	h := SessionAuth(store, users)(okHandler(&userID, &subject))

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("X-Session-Token", "bogus")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestSessionAuthResolvesIdentityAndUser(t *testing.T) {
	store := memory.New()
	if err := store.SetIdentity(context.Background(), "tok-1", &model.Identity{Subject: "ext-1", Name: "Alice"}); err != nil {
		t.Fatalf("SetIdentity: %v", err)
	}
	users := &fakeUsers{byExternal: map[string]*model.User{
		"ext-1": {ID: "user-1", ExternalID: "ext-1", Username: "Alice"},
	}}
	var userID, subject string
	h := SessionAuth(store, users)(okHandler(&userID, &subject))

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("X-Session-Token", "tok-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if userID != "user-1" {
		t.Fatalf("user id = %q, want user-1", userID)
	}
	if subject != "ext-1" {
		t.Fatalf("identity subject = %q, want ext-1", subject)
	}
}

// Валидная сессия без внутреннего профиля: identity есть, user id пустой —
// так users.store создаёт профиль при первом входе.
func TestSessionAuthPassesIdentityWithoutUser(t *testing.T) {
	store := memory.New()
	store.SetIdentity(context.Background(), "tok-1", &model.Identity{Subject: "ext-new"})
	users := &fakeUsers{byExternal: map[string]*model.User{}}
	var userID, subject string
	h := SessionAuth(store, users)(okHandler(&userID, &subject))

	req := httptest.NewRequest(http.MethodPost, "/api/users/store", nil)
	req.Header.Set("X-Session-Token", "tok-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if userID != "" {
		t.Fatalf("user id = %q, want empty for unknown profile", userID)
	}
	if subject != "ext-new" {
		t.Fatalf("identity subject = %q", subject)
	}
}

func TestSessionAuthLenientSilentNoOp(t *testing.T) {
	store := memory.New()
	users := &fakeUsers{byExternal: map[string]*model.User{}}
	called := false
	h := SessionAuthLenient(store, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPut, "/api/users/status", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if called {
		t.Fatal("handler must not run without a valid session")
	}
}

func TestSessionTokenFromQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?session_token=qtok", nil)
	if got := SessionToken(req); got != "qtok" {
		t.Fatalf("SessionToken = %q, want qtok", got)
	}
	req.Header.Set("X-Session-Token", "htok")
	if got := SessionToken(req); got != "htok" {
		t.Fatalf("header must win, got %q", got)
	}
}
