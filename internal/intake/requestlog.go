package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRequestLogSize caps the Zapier request log.
const DefaultRequestLogSize = 50

// RequestLogEntry records one inbound automation call.
type RequestLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Method    string    `json:"method"`
	Route     string    `json:"route"`
	IP        string    `json:"ip"`
	Email     string    `json:"email,omitempty"`
}

// RequestLog is a bounded, newest-first request history.
type RequestLog interface {
	Append(ctx context.Context, e RequestLogEntry) error
	List(ctx context.Context) ([]RequestLogEntry, error)
	Clear(ctx context.Context) error
}

// MemoryRequestLog keeps entries in process memory.
type MemoryRequestLog struct {
	mu      sync.Mutex
	size    int
	entries []RequestLogEntry
}

func NewMemoryRequestLog(size int) *MemoryRequestLog {
	if size <= 0 {
		size = DefaultRequestLogSize
	}
	return &MemoryRequestLog{size: size}
}

func (l *MemoryRequestLog) Append(_ context.Context, e RequestLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append([]RequestLogEntry{e}, l.entries...)
	if len(l.entries) > l.size {
		l.entries = l.entries[:l.size]
	}
	return nil
}

func (l *MemoryRequestLog) List(_ context.Context) ([]RequestLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]RequestLogEntry(nil), l.entries...), nil
}

func (l *MemoryRequestLog) Clear(_ context.Context) error {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
	return nil
}

// RedisRequestLog keeps entries in a capped Redis list shared by all
// API instances.
type RedisRequestLog struct {
	client *redis.Client
	key    string
	size   int
}

func NewRedisRequestLog(client *redis.Client, key string, size int) *RedisRequestLog {
	if client == nil {
		panic("intake: redis client required")
	}
	if key == "" {
		key = "medici:zapier:requests"
	}
	if size <= 0 {
		size = DefaultRequestLogSize
	}
	return &RedisRequestLog{client: client, key: key, size: size}
}

func (l *RedisRequestLog) Append(ctx context.Context, e RequestLogEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("intake: marshal request log entry: %w", err)
	}
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, l.key, data)
		pipe.LTrim(ctx, l.key, 0, int64(l.size-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("intake: append request log: %w", err)
	}
	return nil
}

func (l *RedisRequestLog) List(ctx context.Context) ([]RequestLogEntry, error) {
	raw, err := l.client.LRange(ctx, l.key, 0, int64(l.size-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("intake: list request log: %w", err)
	}
	out := make([]RequestLogEntry, 0, len(raw))
	for _, item := range raw {
		var e RequestLogEntry
		if json.Unmarshal([]byte(item), &e) == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *RedisRequestLog) Clear(ctx context.Context) error {
	return l.client.Del(ctx, l.key).Err()
}
