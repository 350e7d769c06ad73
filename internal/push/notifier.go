package push

import (
	"context"
	"encoding/json"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/chatter/internal/logger"
	"github.com/chatter/internal/storage"
)

// Subscription — подписка из браузера (PushManager.getSubscription()).
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Notifier отправляет Web Push уведомления напрямую (VAPID).
// nil-safe: методы на nil *Notifier — no-op, пуши просто отключены.
type Notifier struct {
	store storage.Store
	vapid *webpush.Options
}

// NewNotifier создаёт нотификатор. Пустые ключи — пуши отключены (nil).
func NewNotifier(store storage.Store, publicKey, privateKey, subscriber string) *Notifier {
	if publicKey == "" || privateKey == "" {
		return nil
	}
	if subscriber == "" {
		subscriber = "chatter-api"
	}
	return &Notifier{
		store: store,
		vapid: &webpush.Options{
			Subscriber:      subscriber,
			VAPIDPublicKey:  publicKey,
			VAPIDPrivateKey: privateKey,
			TTL:             30,
		},
	}
}

// Notify отправляет уведомление на все подписки пользователя.
// Протухшие подписки (410/404 от push-сервиса) удаляются.
func (n *Notifier) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	if n == nil {
		return
	}
	defer logger.DeferLogDuration("push.Notify", time.Now())()

	raws, err := n.store.GetPushSubscriptions(ctx, userID)
	if err != nil {
		logger.Errorf("push get subscriptions user=%s: %v", userID, err)
		return
	}
	if len(raws) == 0 {
		return
	}

	payload, _ := json.Marshal(map[string]any{"title": title, "body": body, "data": data})

	for _, raw := range raws {
		var sub Subscription
		if json.Unmarshal([]byte(raw), &sub) != nil || sub.Endpoint == "" {
			continue
		}
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}
		resp, err := webpush.SendNotificationWithContext(ctx, payload, wpSub, n.vapid)
		if err != nil {
			logger.Errorf("push send user=%s: %v", userID, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == 410 || resp.StatusCode == 404 {
			if err := n.store.RemovePushSubscription(ctx, userID, sub.Endpoint); err != nil {
				logger.Errorf("push remove stale subscription user=%s: %v", userID, err)
			}
		}
	}
}
