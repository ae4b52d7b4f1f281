package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisTimestampStore keeps each rate-limit window in a sorted set scored by
// unix milliseconds, shared by every server instance.
type RedisTimestampStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ TimestampStore = (*RedisTimestampStore)(nil)

// NewRedisTimestampStore connects to redisURL. ttl bounds how long an idle
// window key survives; pass the rate-limit window.
func NewRedisTimestampStore(redisURL string, ttl time.Duration) (*RedisTimestampStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Println("Redis connection established")
	return &RedisTimestampStore{client: client, prefix: "ratelimit:", ttl: ttl}, nil
}

// slidingWindowScript prunes, counts and conditionally adds in one step.
// KEYS[1] window key; ARGV: cutoff ms, hit ms, limit, member, ttl ms.
var slidingWindowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[3]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

func (s *RedisTimestampStore) Record(ctx context.Context, key string, at, cutoff time.Time, limit int) (bool, error) {
	res, err := slidingWindowScript.Run(ctx, s.client, []string{s.prefix + key},
		cutoff.UnixMilli(), at.UnixMilli(), limit, uuid.NewString(), s.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Close closes the Redis connection
func (s *RedisTimestampStore) Close() error {
	return s.client.Close()
}
