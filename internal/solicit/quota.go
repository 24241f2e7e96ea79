package solicit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultDailyLimit is the number of API calls a key may make per UTC day.
const DefaultDailyLimit = 500

// Quota meters API calls per key per UTC day.
type Quota interface {
	// Take consumes one call for key and reports whether it was allowed and
	// how many calls remain today.
	Take(ctx context.Context, key string) (allowed bool, remaining int, err error)
}

func nextMidnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// ============================================================================
// IN-MEMORY QUOTA
// ============================================================================

// MemoryQuota keeps a fixed daily window per key in process memory.
type MemoryQuota struct {
	mu      sync.Mutex
	limit   int
	windows map[string]*dayWindow
	now     func() time.Time
	logger  *log.Logger
}

type dayWindow struct {
	count int
	ends  time.Time
}

// NewMemoryQuota creates a quota allowing limit calls per key per day.
func NewMemoryQuota(limit int) *MemoryQuota {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	return &MemoryQuota{
		limit:   limit,
		windows: make(map[string]*dayWindow),
		now:     time.Now,
		logger:  log.New(log.Writer(), "[QUOTA] ", log.LstdFlags),
	}
}

func (q *MemoryQuota) Take(_ context.Context, key string) (bool, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	w, ok := q.windows[key]
	if !ok || !now.Before(w.ends) {
		w = &dayWindow{ends: nextMidnight(now)}
		q.windows[key] = w
		q.sweep(now)
	}

	if w.count >= q.limit {
		q.logger.Printf("🚫 Daily quota exhausted: key=%s…", short(key))
		return false, 0, nil
	}
	w.count++
	return true, q.limit - w.count, nil
}

// sweep drops windows from previous days. Caller holds mu.
func (q *MemoryQuota) sweep(now time.Time) {
	for k, w := range q.windows {
		if !now.Before(w.ends) {
			delete(q.windows, k)
		}
	}
}

func short(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}

// ============================================================================
// REDIS QUOTA
// ============================================================================

// DailyCounter increments a counter that expires at a given time.
type DailyCounter interface {
	IncrExpireAt(ctx context.Context, key string, expireAt time.Time) (int64, error)
}

// RedisQuota shares the daily window between API instances.
type RedisQuota struct {
	counter DailyCounter
	limit   int
	prefix  string
	now     func() time.Time
}

// NewRedisQuota creates a quota backed by counter.
func NewRedisQuota(counter DailyCounter, limit int) *RedisQuota {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	return &RedisQuota{
		counter: counter,
		limit:   limit,
		prefix:  "arecko:quota:",
		now:     time.Now,
	}
}

func (q *RedisQuota) Take(ctx context.Context, key string) (bool, int, error) {
	now := q.now().UTC()
	redisKey := q.prefix + key + ":" + now.Format("2006-01-02")

	n, err := q.counter.IncrExpireAt(ctx, redisKey, nextMidnight(now))
	if err != nil {
		return false, 0, fmt.Errorf("quota incr: %w", err)
	}
	if int(n) > q.limit {
		return false, 0, nil
	}
	return true, q.limit - int(n), nil
}
