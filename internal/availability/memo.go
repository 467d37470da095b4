package availability

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"eventcal/internal/model"
)

// Memo remembers lookups by instance key for a short time.
type Memo interface {
	Get(ctx context.Context, key string) (model.Availability, bool)
	Set(ctx context.Context, key string, a model.Availability, ttl time.Duration)
	Flush(ctx context.Context)
}

type memoEntry struct {
	a       model.Availability
	expires time.Time
}

// MemoryMemo is the in-process Memo.
type MemoryMemo struct {
	mu      sync.Mutex
	entries map[string]memoEntry
	now     func() time.Time
}

func NewMemoryMemo() *MemoryMemo {
	return &MemoryMemo{entries: make(map[string]memoEntry), now: time.Now}
}

func (m *MemoryMemo) Get(_ context.Context, key string) (model.Availability, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return model.Availability{}, false
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return model.Availability{}, false
	}
	return e.a, true
}

func (m *MemoryMemo) Set(_ context.Context, key string, a model.Availability, ttl time.Duration) {
	m.mu.Lock()
	m.entries[key] = memoEntry{a: a, expires: m.now().Add(ttl)}
	m.mu.Unlock()
}

func (m *MemoryMemo) Flush(context.Context) {
	m.mu.Lock()
	m.entries = make(map[string]memoEntry)
	m.mu.Unlock()
}

const redisKeyPrefix = "eventcal:avail:"

// RedisMemo shares lookups between several eventcal processes.
type RedisMemo struct {
	client *redis.Client
}

// NewRedisMemo connects and pings the server.
func NewRedisMemo(ctx context.Context, addr, password string, db int) (*RedisMemo, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisMemo{client: client}, nil
}

func (r *RedisMemo) Get(ctx context.Context, key string) (model.Availability, bool) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		return model.Availability{}, false
	}
	var a model.Availability
	if err := json.Unmarshal(data, &a); err != nil {
		return model.Availability{}, false
	}
	return a, true
}

func (r *RedisMemo) Set(ctx context.Context, key string, a model.Availability, ttl time.Duration) {
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	_ = r.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err()
}

// Flush deletes every memoized key. SCAN keeps it from blocking the server.
func (r *RedisMemo) Flush(ctx context.Context) {
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil && !errors.Is(err, redis.Nil) {
		return
	}
	if len(keys) > 0 {
		_ = r.client.Del(ctx, keys...).Err()
	}
}

func (r *RedisMemo) Close() error {
	return r.client.Close()
}
