package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore atomically counts hits in a fixed window.
//
// Hit increments the counter for key and returns the new count. When the
// new count is within limit the key's TTL is reset to the full window;
// hits over the limit leave the TTL untouched so a blocked client is
// released one window after its last accepted request.
type CounterStore interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

// hitScript keeps INCR and the conditional PEXPIRE in one atomic step.
var hitScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n <= tonumber(ARGV[1]) or n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return n
`)

// RedisStore keeps counters in Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed counter store.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if client == nil {
		panic("ratelimit: redis client required")
	}
	if prefix == "" {
		prefix = "medici:rate:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	n, err := hitScript.Run(ctx, s.client, []string{s.prefix + key}, limit, window.Milliseconds()).Int()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// MemoryStore is an in-process CounterStore for single-instance deployments and tests.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

type counter struct {
	count     int
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

func (s *MemoryStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		c = &counter{}
		s.counters[key] = c
	}
	c.count++
	if c.count <= limit || c.count == 1 {
		c.expiresAt = now.Add(window)
	}
	s.evictExpired(now)
	return c.count, nil
}

// evictExpired drops stale entries once the map grows.
func (s *MemoryStore) evictExpired(now time.Time) {
	if len(s.counters) < 1024 {
		return
	}
	for k, c := range s.counters {
		if !now.Before(c.expiresAt) {
			delete(s.counters, k)
		}
	}
}
