package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/chatter/internal/model"
	"github.com/redis/go-redis/v9"
)

// Сессии и push-подписки живут 30 дней; typing — несколько секунд (TTL задаёт вызывающий).
const (
	sessionTTL      = 30 * 24 * time.Hour
	subscriptionTTL = 30 * 24 * time.Hour
	maxSubsPerUser  = 10
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// GetIdentity возвращает identity по токену сессии. Нет ключа — (nil, nil).
func (c *Client) GetIdentity(ctx context.Context, token string) (*model.Identity, error) {
	val, err := c.cli.Get(ctx, "session:"+token).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var id model.Identity
	if err := json.Unmarshal([]byte(val), &id); err != nil {
		return nil, fmt.Errorf("redis identity unmarshal: %w", err)
	}
	return &id, nil
}

// SetIdentity сохраняет identity (пишет внешний провайдер аутентификации, в тестах — сид).
func (c *Client) SetIdentity(ctx context.Context, token string, id *model.Identity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return c.cli.Set(ctx, "session:"+token, data, sessionTTL).Err()
}

func (c *Client) DeleteIdentity(ctx context.Context, token string) error {
	return c.cli.Del(ctx, "session:"+token).Err()
}

func typingKey(conversationID string) string { return "typing:" + conversationID }

// SetTyping кладёт userID в sorted set беседы со score = unix-время истечения.
// Повторный вызов продлевает запись — идемпотентная реконсиляция.
func (c *Client) SetTyping(ctx context.Context, conversationID, userID string, ttl time.Duration) error {
	key := typingKey(conversationID)
	exp := time.Now().Add(ttl)
	if err := c.cli.ZAdd(ctx, key, redis.Z{Score: float64(exp.UnixMilli()), Member: userID}).Err(); err != nil {
		return err
	}
	// Ключ целиком живёт 2×TTL: защита от мусора после опустевшей беседы.
	return c.cli.Expire(ctx, key, 2*ttl).Err()
}

func (c *Client) ClearTyping(ctx context.Context, conversationID, userID string) error {
	return c.cli.ZRem(ctx, typingKey(conversationID), userID).Err()
}

// GetTypingUserIDs возвращает неистёкшие typing-записи беседы, попутно удаляя истёкшие.
func (c *Client) GetTypingUserIDs(ctx context.Context, conversationID string) ([]string, error) {
	key := typingKey(conversationID)
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := c.cli.ZRemRangeByScore(ctx, key, "-inf", "("+now).Err(); err != nil {
		return nil, err
	}
	return c.cli.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: now, Max: "+inf"}).Result()
}

func subsKey(userID string) string { return "push:subs:" + userID }

func (c *Client) AddPushSubscription(ctx context.Context, userID, subscription string) error {
	key := subsKey(userID)
	// Повторная подписка того же браузера не упирается в лимит.
	known, err := c.cli.SIsMember(ctx, key, subscription).Result()
	if err != nil {
		return err
	}
	if !known {
		n, err := c.cli.SCard(ctx, key).Result()
		if err != nil {
			return err
		}
		if n >= maxSubsPerUser {
			return fmt.Errorf("redis push subs: limit %d reached for user %s", maxSubsPerUser, userID)
		}
	}
	if err := c.cli.SAdd(ctx, key, subscription).Err(); err != nil {
		return err
	}
	return c.cli.Expire(ctx, key, subscriptionTTL).Err()
}

// RemovePushSubscription удаляет подписки с данным endpoint (сравнение по полю endpoint внутри JSON).
func (c *Client) RemovePushSubscription(ctx context.Context, userID, endpoint string) error {
	key := subsKey(userID)
	members, err := c.cli.SMembers(ctx, key).Result()
	if err != nil {
		return err
	}
	for _, m := range members {
		var sub struct {
			Endpoint string `json:"endpoint"`
		}
		if json.Unmarshal([]byte(m), &sub) == nil && sub.Endpoint == endpoint {
			if err := c.cli.SRem(ctx, key, m).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Client) GetPushSubscriptions(ctx context.Context, userID string) ([]string, error) {
	return c.cli.SMembers(ctx, subsKey(userID)).Result()
}
