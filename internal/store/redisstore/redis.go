package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// slidingWindow drops entries older than the window, then admits the request when
// fewer than limit remain. KEYS[1]=zset, ARGV: now(ms), window(ms), limit, member.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// AllowSlidingWindow reports whether one more hit fits in the window for key.
func (s *Store) AllowSlidingWindow(ctx context.Context, key string, limit int, window time.Duration, member string) (bool, error) {
	now := time.Now().UnixMilli()
	n, err := slidingWindow.Run(ctx, s.rdb, []string{key}, now, window.Milliseconds(), limit, member).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return n == 1, nil
}
