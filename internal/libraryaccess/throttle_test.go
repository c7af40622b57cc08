package libraryaccess

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottleWaitIfSlowNoopWhenFast(t *testing.T) {
	th := NewThrottle()
	for i := 0; i < 10; i++ {
		th.Observe(50 * time.Millisecond)
	}

	start := time.Now()
	err := th.WaitIfSlow(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), throttleDelay)
}

func TestThrottleWaitIfSlowDelaysWhenMeanExceedsThreshold(t *testing.T) {
	th := NewThrottle()
	for i := 0; i < 10; i++ {
		th.Observe(3 * time.Second)
	}

	start := time.Now()
	err := th.WaitIfSlow(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), throttleDelay)
}

func TestThrottleWaitIfSlowRespectsCancellation(t *testing.T) {
	th := NewThrottle()
	for i := 0; i < 10; i++ {
		th.Observe(3 * time.Second)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := th.WaitIfSlow(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestThrottleSlidingWindowDropsOldSamples(t *testing.T) {
	th := NewThrottle()
	for i := 0; i < throttleWindowSize; i++ {
		th.Observe(3 * time.Second)
	}
	assert.Greater(t, th.mean(), throttleThreshold)

	for i := 0; i < throttleWindowSize; i++ {
		th.Observe(10 * time.Millisecond)
	}
	assert.Less(t, th.mean(), throttleThreshold)
}
