package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow_WithinBurst(t *testing.T) {
	limiter := New(10, 5)

	// Burst capacity should admit the first 5 requests immediately.
	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow(), "request %d should be allowed", i)
	}

	// The bucket is now empty.
	assert.False(t, limiter.Allow())
}

func TestWait_RespectsContext(t *testing.T) {
	limiter := New(1, 1)

	// Drain the bucket.
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWait_AcquiresToken(t *testing.T) {
	limiter := New(100, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, limiter.Wait(ctx))
}

func TestUnlimited(t *testing.T) {
	limiter := New(0, 0)

	for i := 0; i < 1000; i++ {
		require.True(t, limiter.Allow())
	}
}

func TestZeroBurst_RaisedToRate(t *testing.T) {
	limiter := New(10, 0)

	// A zero burst with a non-zero rate would deadlock Wait; the constructor
	// raises it to the sustained rate instead.
	assert.True(t, limiter.Allow())
}
