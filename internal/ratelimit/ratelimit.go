// Package ratelimit throttles unauthenticated endpoints per client key. A
// local token bucket answers first; when a Redis client is configured a
// fixed one-minute window shared by every API instance is checked as well.
// Redis failures degrade to local-only limiting.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const (
	// LimiterTTL is how long an idle per-key limiter is kept.
	LimiterTTL = 30 * time.Minute

	globalWindow = time.Minute
	keyPrefix    = "answerdesk:ratelimit:"
)

// incrWindow increments the window counter, sets its expiry on first use and
// returns the count together with the remaining TTL in milliseconds.
var incrWindow = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

type timedLimiter struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64
}

type Limiter struct {
	perMinute int
	burst     int

	mu       sync.RWMutex
	limiters map[string]*timedLimiter

	client *redis.Client
	logger *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     sync.WaitGroup
}

// New creates a limiter allowing perMinute requests per key with the given
// burst. client may be nil. perMinute <= 0 disables limiting.
func New(perMinute, burst int, client *redis.Client, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &Limiter{
		perMinute: perMinute,
		burst:     burst,
		limiters:  make(map[string]*timedLimiter),
		client:    client,
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

// Allow reports whether a request for key may proceed. When it may not,
// retryAfter is the whole number of seconds the client should wait (>= 1).
func (l *Limiter) Allow(ctx context.Context, key string) (bool, int) {
	if l.perMinute <= 0 {
		return true, 0
	}

	limiter := l.getOrCreate(key)
	if !limiter.Allow() {
		reservation := limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel()
		return false, ceilSeconds(delay)
	}

	if l.client == nil {
		return true, 0
	}
	res, err := incrWindow.Run(ctx, l.client, []string{keyPrefix + key}, globalWindow.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		l.logger.Warn("global rate limit unavailable, using local limit only", "error", err)
		return true, 0
	}
	if res[0] > int64(l.perMinute) {
		return false, ceilSeconds(time.Duration(res[1]) * time.Millisecond)
	}
	return true, 0
}

func (l *Limiter) getOrCreate(key string) *rate.Limiter {
	now := time.Now().UnixNano()

	l.mu.RLock()
	if tl, ok := l.limiters[key]; ok {
		tl.lastUsed.Store(now)
		lim := tl.limiter
		l.mu.RUnlock()
		return lim
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if tl, ok := l.limiters[key]; ok {
		tl.lastUsed.Store(now)
		return tl.limiter
	}
	every := rate.Every(time.Minute / time.Duration(l.perMinute))
	tl := &timedLimiter{limiter: rate.NewLimiter(every, l.burst)}
	tl.lastUsed.Store(now)
	l.limiters[key] = tl
	return tl.limiter
}

// CleanupStale drops limiters idle since before cutoff and returns how many
// were removed.
func (l *Limiter) CleanupStale(cutoff time.Time) int {
	threshold := cutoff.UnixNano()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, tl := range l.limiters {
		if tl.lastUsed.Load() < threshold {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of tracked keys.
func (l *Limiter) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

// StartCleanup evicts idle limiters every interval until Stop is called.
func (l *Limiter) StartCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	l.done.Add(1)
	go func() {
		defer l.done.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := l.CleanupStale(time.Now().Add(-LimiterTTL)); n > 0 {
					l.logger.Debug("evicted idle rate limiters", "count", n)
				}
			case <-l.stop:
				return
			}
		}
	}()
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	l.done.Wait()
}

func ceilSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
