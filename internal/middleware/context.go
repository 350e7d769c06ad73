package middleware

import (
	"context"

	"github.com/chatter/internal/model"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	IdentityKey contextKey = "identity"
)

// GetUserID возвращает внутренний user_id из контекста (устанавливается SessionAuth).
// Пустая строка — identity есть, но users.store ещё не вызывался.
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// GetIdentity возвращает identity вызывающего из контекста.
func GetIdentity(ctx context.Context) *model.Identity {
	v, _ := ctx.Value(IdentityKey).(*model.Identity)
	return v
}
