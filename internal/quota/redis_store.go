// Package quota provides the per-user daily refresh allowance.
package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// decrementScript consumes one use, creating the counter with the full daily
// allowance on first use. It floors at zero.
var decrementScript = redis.NewScript(`
local r = redis.call('HGET', KEYS[1], 'remaining')
if not r then
	redis.call('HSET', KEYS[1], 'remaining', ARGV[1], 'reset_at', ARGV[2])
	r = ARGV[1]
end
r = tonumber(r) - 1
if r < 0 then r = 0 end
redis.call('HSET', KEYS[1], 'remaining', r)
return r
`)

// resetScript restores the allowance when reset_at has passed.
var resetScript = redis.NewScript(`
local at = redis.call('HGET', KEYS[1], 'reset_at')
if not at then return 0 end
if tonumber(at) > tonumber(ARGV[3]) then return 0 end
redis.call('HSET', KEYS[1], 'remaining', ARGV[1], 'reset_at', ARGV[2])
return 1
`)

// RedisStore keeps quota counters in Redis hashes keyed by user.
type RedisStore struct {
	client *redis.Client
	prefix string
	daily  int
	now    func() time.Time
}

// NewRedisStore connects to Redis and returns a quota store granting daily
// refreshes per UTC day.
func NewRedisStore(redisURL string, daily int) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, daily), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client, daily int) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "quota:",
		daily:  daily,
		now:    time.Now,
	}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

// NextReset is the start of the UTC day after t, in epoch ms.
func NextReset(t time.Time) int64 {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC).UnixMilli()
}

// Remaining returns how many refreshes the user has left.
func (s *RedisStore) Remaining(ctx context.Context, userID string) (int, error) {
	val, err := s.client.HGet(ctx, s.key(userID), "remaining").Result()
	if errors.Is(err, redis.Nil) {
		return s.daily, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota remaining %s: %w", userID, err)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("quota remaining %s: parse %q: %w", userID, val, err)
	}
	return n, nil
}

// Decrement consumes one refresh.
func (s *RedisStore) Decrement(ctx context.Context, userID string) error {
	err := decrementScript.Run(ctx, s.client, []string{s.key(userID)}, s.daily, NextReset(s.now())).Err()
	if err != nil {
		return fmt.Errorf("quota decrement %s: %w", userID, err)
	}
	return nil
}

// ResetIfExpired restores the daily allowance once the reset time has passed.
func (s *RedisStore) ResetIfExpired(ctx context.Context, userID string) error {
	now := s.now()
	err := resetScript.Run(ctx, s.client, []string{s.key(userID)}, s.daily, NextReset(now), now.UnixMilli()).Err()
	if err != nil {
		return fmt.Errorf("quota reset %s: %w", userID, err)
	}
	return nil
}

// ResetAt returns when the user's allowance next rolls over.
func (s *RedisStore) ResetAt(ctx context.Context, userID string) (time.Time, error) {
	val, err := s.client.HGet(ctx, s.key(userID), "reset_at").Result()
	if errors.Is(err, redis.Nil) {
		return time.UnixMilli(NextReset(s.now())), nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("quota reset_at %s: %w", userID, err)
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("quota reset_at %s: parse %q: %w", userID, val, err)
	}
	return time.UnixMilli(ms), nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
