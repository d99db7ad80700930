package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Wait(t *testing.T) {
	l := New(Config{Interval: 100 * time.Millisecond})
	ctx := context.Background()

	// First call consumes the initial token immediately.
	require.NoError(t, l.Wait(ctx))

	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiter_IndependentOfConcurrency(t *testing.T) {
	l := New(Config{Interval: 50 * time.Millisecond})
	var observed []time.Duration
	var mu sync.Mutex
	l.OnDelay(func(d time.Duration) {
		mu.Lock()
		observed = append(observed, d)
		mu.Unlock()
	})

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Wait(context.Background()))
		}()
	}
	wg.Wait()

	// Four dispatches need at least three intervals no matter how many waiters.
	assert.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, observed)
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(Config{})
	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_ContextCanceled(t *testing.T) {
	l := New(Config{Interval: time.Hour})
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx))
}
