// Package ratelimit implements a per-key sliding window request limiter.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/suPer8Hu/sealchat/internal/common"
	"github.com/suPer8Hu/sealchat/internal/store/redisstore"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Memory keeps hit timestamps per key in process memory.
type Memory struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
}

func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{limit: limit, window: window, now: time.Now, hits: make(map[string][]time.Time)}
}

func (m *Memory) Allow(ctx context.Context, key string) (bool, error) {
	now := m.now()
	cutoff := now.Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastSweep) >= m.window {
		m.sweep(cutoff)
		m.lastSweep = now
	}

	kept := m.hits[key][:0]
	for _, t := range m.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= m.limit {
		m.hits[key] = kept
		return false, nil
	}
	m.hits[key] = append(kept, now)
	return true, nil
}

// sweep drops keys whose newest hit has left the window. Callers hold mu.
func (m *Memory) sweep(cutoff time.Time) {
	for k, ts := range m.hits {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(m.hits, k)
		}
	}
}

// Redis shares the window across processes.
type Redis struct {
	store  *redisstore.Store
	limit  int
	window time.Duration
	prefix string
}

func NewRedis(store *redisstore.Store, limit int, window time.Duration) *Redis {
	return &Redis{store: store, limit: limit, window: window, prefix: "ratelimit:"}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	member, err := common.NewULID()
	if err != nil {
		return false, err
	}
	return r.store.AllowSlidingWindow(ctx, r.prefix+key, r.limit, r.window, member)
}

// New returns a redis-backed limiter when redis answers PING, otherwise an in-memory one.
func New(ctx context.Context, store *redisstore.Store, limit int, window time.Duration) (Limiter, string) {
	if store != nil {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := store.Ping(pctx); err == nil {
			return NewRedis(store, limit, window), "redis"
		}
	}
	return NewMemory(limit, window), "memory"
}
