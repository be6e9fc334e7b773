package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventLog remembers processed webhook event ids so redeliveries of an
// already applied event are acknowledged without re-dispatch.
type EventLog interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

const eventKeyPrefix = "billing:stripe:event:"

// RedisEventLog stores processed ids as expiring Redis keys.
type RedisEventLog struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisEventLog(client redis.UniversalClient, ttl time.Duration) *RedisEventLog {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisEventLog{client: client, ttl: ttl}
}

func (l *RedisEventLog) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := l.client.Exists(ctx, eventKeyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("check event %s: %w", eventID, err)
	}
	return n > 0, nil
}

func (l *RedisEventLog) MarkProcessed(ctx context.Context, eventID string) error {
	if err := l.client.SetNX(ctx, eventKeyPrefix+eventID, time.Now().UTC().Unix(), l.ttl).Err(); err != nil {
		return fmt.Errorf("mark event %s: %w", eventID, err)
	}
	return nil
}

// MemoryEventLog is an in-process EventLog.
type MemoryEventLog struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

func NewMemoryEventLog(ttl time.Duration) *MemoryEventLog {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &MemoryEventLog{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (l *MemoryEventLog) Seen(_ context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	at, ok := l.seen[eventID]
	if !ok {
		return false, nil
	}
	if l.now().Sub(at) > l.ttl {
		delete(l.seen, eventID)
		return false, nil
	}
	return true, nil
}

func (l *MemoryEventLog) MarkProcessed(_ context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[eventID]; !ok {
		l.seen[eventID] = l.now()
	}
	return nil
}
