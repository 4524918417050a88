package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLogSize caps the attempt log.
const DefaultLogSize = 50

// Attempt records one HTTP delivery attempt.
type Attempt struct {
	Timestamp  time.Time `json:"timestamp"`
	WebhookID  string    `json:"webhook_id"`
	WebhookURL string    `json:"webhook_url"`
	Event      Event     `json:"event"`
	Attempt    int       `json:"attempt"`
	Success    bool      `json:"success"`
	StatusCode int       `json:"status_code"`
	Error      string    `json:"error"`
}

// AttemptLog is a bounded, most-recent-first attempt history.
type AttemptLog interface {
	Append(ctx context.Context, a Attempt) error
	List(ctx context.Context) ([]Attempt, error)
	Clear(ctx context.Context) error
}

// MemoryAttemptLog keeps attempts in a mutex-guarded ring.
type MemoryAttemptLog struct {
	mu      sync.Mutex
	entries []Attempt
	next    int
	full    bool
}

func NewMemoryAttemptLog(size int) *MemoryAttemptLog {
	if size <= 0 {
		size = DefaultLogSize
	}
	return &MemoryAttemptLog{entries: make([]Attempt, size)}
}

func (l *MemoryAttemptLog) Append(_ context.Context, a Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = a
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
	return nil
}

func (l *MemoryAttemptLog) List(_ context.Context) ([]Attempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.next
	if l.full {
		n = len(l.entries)
	}
	out := make([]Attempt, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out, nil
}

func (l *MemoryAttemptLog) Clear(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]Attempt, len(l.entries))
	l.next = 0
	l.full = false
	return nil
}

// RedisAttemptLog keeps attempts in a capped Redis list.
type RedisAttemptLog struct {
	client *redis.Client
	key    string
	size   int
}

func NewRedisAttemptLog(client *redis.Client, key string, size int) *RedisAttemptLog {
	if client == nil {
		panic("webhooks: redis client required")
	}
	if key == "" {
		key = "medici:webhooks:attempts"
	}
	if size <= 0 {
		size = DefaultLogSize
	}
	return &RedisAttemptLog{client: client, key: key, size: size}
}

func (l *RedisAttemptLog) Append(ctx context.Context, a Attempt) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("webhooks: marshal attempt: %w", err)
	}
	pipe := l.client.TxPipeline()
	pipe.LPush(ctx, l.key, data)
	pipe.LTrim(ctx, l.key, 0, int64(l.size-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("webhooks: append attempt: %w", err)
	}
	return nil
}

func (l *RedisAttemptLog) List(ctx context.Context) ([]Attempt, error) {
	raw, err := l.client.LRange(ctx, l.key, 0, int64(l.size-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("webhooks: list attempts: %w", err)
	}
	out := make([]Attempt, 0, len(raw))
	for _, item := range raw {
		var a Attempt
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (l *RedisAttemptLog) Clear(ctx context.Context) error {
	if err := l.client.Del(ctx, l.key).Err(); err != nil {
		return fmt.Errorf("webhooks: clear attempts: %w", err)
	}
	return nil
}
