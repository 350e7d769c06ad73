package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/chatter/internal/logger"
	"github.com/chatter/internal/model"
	"github.com/chatter/internal/repository"
	"github.com/chatter/internal/storage"
)

// UserSource разрешает identity внешнего провайдера во внутренний профиль.
// Реализуется repository.UserRepository.
type UserSource interface {
	GetByExternalID(ctx context.Context, externalID string) (*model.User, error)
}

// SessionToken извлекает токен сессии из запроса: заголовок X-Session-Token
// или query-параметр session_token (последний нужен для WebSocket upgrade).
func SessionToken(r *http.Request) string {
	if t := r.Header.Get("X-Session-Token"); t != "" {
		return t
	}
	return r.URL.Query().Get("session_token")
}

func resolve(r *http.Request, store storage.Store, users UserSource) (context.Context, bool) {
	token := SessionToken(r)
	if token == "" {
		return nil, false
	}
	identity, err := store.GetIdentity(r.Context(), token)
	if err != nil {
		logger.Errorf("session middleware GetIdentity token=%s: %v", MaskToken(token), err)
		return nil, false
	}
	if identity == nil || identity.Subject == "" {
		return nil, false
	}
	ctx := context.WithValue(r.Context(), IdentityKey, identity)
	// user может ещё не существовать — users.store создаёт его по identity.
	u, err := users.GetByExternalID(ctx, identity.Subject)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		logger.Errorf("session middleware GetByExternalID subject=%s: %v", identity.Subject, err)
		return nil, false
	}
	if u != nil {
		ctx = context.WithValue(ctx, UserIDKey, u.ID)
	}
	return ctx, true
}

// SessionAuth требует валидную сессию; без неё — 401.
func SessionAuth(store storage.Store, users UserSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, ok := resolve(r, store, users)
			if !ok {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthenticated"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionAuthLenient — для presence/typing/read-мутаций: без валидной сессии
// отвечает 204 и молча не делает ничего (handler не вызывается).
func SessionAuthLenient(store storage.Store, users UserSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, ok := resolve(r, store, users)
			if !ok {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
