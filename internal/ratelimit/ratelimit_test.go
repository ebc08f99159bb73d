package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowConsumesBurstThenRefuses(t *testing.T) {
	l := New(60, 3, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow(ctx, "10.0.0.1")
		require.True(t, ok, "request %d should pass", i)
	}
	ok, retryAfter := l.Allow(ctx, "10.0.0.1")
	assert.False(t, ok)
	assert.GreaterOrEqual(t, retryAfter, 1)

	ok, _ = l.Allow(ctx, "10.0.0.2")
	assert.True(t, ok, "other keys have their own bucket")
}

func TestAllowDisabled(t *testing.T) {
	l := New(0, 0, nil, nil)
	for i := 0; i < 100; i++ {
		ok, _ := l.Allow(context.Background(), "k")
		require.True(t, ok)
	}
	assert.Zero(t, l.Size())
}

func TestConcurrentAccessSharesOneLimiter(t *testing.T) {
	l := New(60, 50, nil, nil)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow(context.Background(), "shared"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, l.Size())
	assert.GreaterOrEqual(t, allowed, 50)
	assert.LessOrEqual(t, allowed, 52)
}

func TestCleanupStale(t *testing.T) {
	l := New(60, 1, nil, nil)
	for i := 0; i < 5; i++ {
		l.Allow(context.Background(), fmt.Sprintf("k%d", i))
	}
	require.Equal(t, 5, l.Size())

	assert.Zero(t, l.CleanupStale(time.Now().Add(-time.Hour)))
	assert.Equal(t, 5, l.CleanupStale(time.Now().Add(time.Second)))
	assert.Zero(t, l.Size())
}

func TestStartCleanupStops(t *testing.T) {
	l := New(60, 1, nil, nil)
	l.StartCleanup(10 * time.Millisecond)
	l.Stop()
	l.Stop()
}

func TestGlobalWindowIsSharedAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	// Two instances, each with a generous local bucket, share a 3/minute window.
	a := New(3, 10, client, nil)
	b := New(3, 10, client, nil)
	ctx := context.Background()

	results := []bool{}
	for _, l := range []*Limiter{a, b, a, b} {
		ok, _ := l.Allow(ctx, "10.0.0.9")
		results = append(results, ok)
	}
	assert.Equal(t, []bool{true, true, true, false}, results)

	mr.FastForward(time.Minute + time.Second)
	ok, _ := a.Allow(ctx, "10.0.0.9")
	assert.True(t, ok, "window should reset after expiry")
}

func TestGlobalFailureFallsBackToLocal(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	l := New(60, 2, client, nil)
	ok, _ := l.Allow(context.Background(), "k")
	assert.True(t, ok)
}
