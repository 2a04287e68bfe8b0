package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"streetviewdl/pkg/config"
)

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(time.Hour, 5)

	// Test initial capacity
	for i := 0; i < 5; i++ {
		if !tb.Allow() {
			t.Errorf("Expected token %d to be available", i+1)
		}
	}

	// Test exhaustion
	if tb.Allow() {
		t.Error("Expected no more tokens to be available")
	}

	// Test reset
	tb.Reset()
	if !tb.Allow() {
		t.Error("Expected tokens to be available after reset")
	}
}

func TestTokenBucketRefill(t *testing.T) {
	tb := NewTokenBucket(20*time.Millisecond, 1)
	require.True(t, tb.Allow())
	require.False(t, tb.Allow())

	start := time.Now()
	require.NoError(t, tb.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestTokenBucketWaitHonoursContext(t *testing.T) {
	tb := NewTokenBucket(time.Hour, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Error(t, tb.Wait(ctx))
}

func TestTokenBucketShared(t *testing.T) {
	tb := NewTokenBucket(time.Hour, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tb.Allow() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}

func TestFromConfig(t *testing.T) {
	tb := FromConfig(config.RateLimitConfig{RequestsPerMinute: 60, BurstSize: 3})
	assert.Equal(t, rate.Every(time.Second), tb.every)
	assert.Equal(t, 3, tb.burst)
	assert.InDelta(t, 3.0, tb.Tokens(), 0.01)

	unlimited := FromConfig(config.RateLimitConfig{BurstSize: 1})
	for i := 0; i < 100; i++ {
		require.True(t, unlimited.Allow())
	}
}

func TestUnlimited(t *testing.T) {
	var l Limiter = Unlimited{}
	assert.True(t, l.Allow())
	assert.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx))
}
