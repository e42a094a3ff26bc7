// README: Optional Redis client for the route cache; nil when unreachable or unconfigured.
package infra

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedis returns a connected client, or nil when addr is empty or the server does not
// answer PING. Callers treat nil as "cache disabled".
func NewRedis(ctx context.Context, addr, password string, log *zap.Logger) *redis.Client {
	if addr == "" {
		log.Info("redis not configured; route cache disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable; route cache disabled", zap.String("addr", addr), zap.Error(err))
		_ = client.Close()
		return nil
	}
	return client
}
