package leaderboard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gokatarajesh/quiz-session/internal/channel"
)

const (
	defaultCacheTTL = 30 * time.Second
	defaultCacheKey = "quiz-session:leaderboard"
)

// RedisCache keeps the last ladder in Redis so several clients on one host
// share a single lookup.
type RedisCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client, key string, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if key == "" {
		key = defaultCacheKey
	}
	return &RedisCache{client: client, key: key, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context) ([]channel.LeaderboardEntry, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var entries []channel.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *RedisCache) Set(ctx context.Context, entries []channel.LeaderboardEntry) error {
	if entries == nil {
		entries = []channel.LeaderboardEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, data, c.ttl).Err()
}
