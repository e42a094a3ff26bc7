package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"carpool/internal/types"
)

// RouteCache stores route estimates by coordinate pair. Misses and write failures are
// invisible to callers.
type RouteCache interface {
	Get(ctx context.Context, origin, dest types.Point) (Estimate, bool)
	Set(ctx context.Context, origin, dest types.Point, e Estimate)
}

// NopCache is the default when no backing store is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, types.Point, types.Point) (Estimate, bool) {
	return Estimate{}, false
}

func (NopCache) Set(context.Context, types.Point, types.Point, Estimate) {}

const routeKeyPrefix = "carpool:route:"

// RedisCache keeps JSON-encoded estimates in Redis with a TTL.
type RedisCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{redis: client, ttl: ttl}
}

// NewCache picks RedisCache when a client is available and NopCache otherwise.
func NewCache(client *redis.Client, ttl time.Duration) RouteCache {
	if client == nil {
		return NopCache{}
	}
	return NewRedisCache(client, ttl)
}

func (c *RedisCache) Get(ctx context.Context, origin, dest types.Point) (Estimate, bool) {
	val, err := c.redis.Get(ctx, routeKey(origin, dest)).Bytes()
	if err != nil {
		return Estimate{}, false
	}
	var e Estimate
	if err := json.Unmarshal(val, &e); err != nil {
		return Estimate{}, false
	}
	return e, true
}

func (c *RedisCache) Set(ctx context.Context, origin, dest types.Point, e Estimate) {
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, routeKey(origin, dest), b, c.ttl).Err()
}

func routeKey(origin, dest types.Point) string {
	return routeKeyPrefix + pairKey(origin, dest)
}

func pairKey(origin, dest types.Point) string {
	return fmt.Sprintf("%.6f,%.6f->%.6f,%.6f", origin.Lat, origin.Lng, dest.Lat, dest.Lng)
}
