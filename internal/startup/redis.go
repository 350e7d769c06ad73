package startup

import (
	"context"
	"time"

	redisstorage "github.com/chatter/internal/storage/redis"
)

// ConnectRedisWithRetry подключается к Redis с повторами, см. retry.
func ConnectRedisWithRetry(redisURL string, maxWait time.Duration, logPrefix string) *redisstorage.Client {
	var client *redisstorage.Client
	retry("redis connect", logPrefix, maxWait, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := redisstorage.New(ctx, redisURL)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	return client
}
