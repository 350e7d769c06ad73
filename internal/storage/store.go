package storage

import (
	"context"
	"time"

	"github.com/chatter/internal/model"
)

// Store — хранилище эфемерного состояния: сессии (identity вызывающего),
// typing-записи с TTL и push-подписки.
// Реализации: redis.Client, memory.Client (для -dev и тестов без Redis).
type Store interface {
	// Sessions: токен → identity из внешнего провайдера. API их только читает.
	GetIdentity(ctx context.Context, token string) (*model.Identity, error)
	SetIdentity(ctx context.Context, token string, id *model.Identity) error
	DeleteIdentity(ctx context.Context, token string) error

	// Typing: существование записи = «пользователь печатает в беседе».
	// Запись живёт ttl и продлевается повторным SetTyping; ClearTyping
	// удаляет сразу (typing-stop или отправка сообщения).
	SetTyping(ctx context.Context, conversationID, userID string, ttl time.Duration) error
	ClearTyping(ctx context.Context, conversationID, userID string) error
	GetTypingUserIDs(ctx context.Context, conversationID string) ([]string, error)

	// Push-подписки браузера (Web Push), JSON как есть.
	AddPushSubscription(ctx context.Context, userID, subscription string) error
	RemovePushSubscription(ctx context.Context, userID, endpoint string) error
	GetPushSubscriptions(ctx context.Context, userID string) ([]string, error)

	Close() error
}
