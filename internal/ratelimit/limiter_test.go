package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animelytics/bombmeter/internal/monitoring"
)

func newFallbackLimiter(t *testing.T, cfg Config) *RateLimiter {
	t.Helper()
	// empty addr keeps Redis disabled so everything hits the in-memory path
	client, err := NewRedisClient("", "", 0)
	require.NoError(t, err)
	return NewRateLimiter(client, cfg, monitoring.NewMetrics())
}

func TestFallbackAllowsWithinLimit(t *testing.T) {
	rl := newFallbackLimiter(t, DefaultConfig())

	result, err := rl.AllowIP(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, DefaultConfig().IPLimitPerMin, result.Limit)
}

func TestFallbackBlocksAfterBurst(t *testing.T) {
	cfg := Config{IPLimitPerMin: 1, BatchLimitPerMin: 1, BurstMultiplier: 1}
	rl := newFallbackLimiter(t, cfg)

	// burst floor is 5 tokens
	blocked := false
	for i := 0; i < 20; i++ {
		result, err := rl.AllowIP(context.Background(), "10.0.0.2")
		require.NoError(t, err)
		if !result.Allowed {
			blocked = true
			assert.Greater(t, result.RetryAfter.Seconds(), 0.0)
			break
		}
	}
	assert.True(t, blocked, "expected the limiter to block within 20 requests")
}

func TestFallbackKeysAreIndependent(t *testing.T) {
	cfg := Config{IPLimitPerMin: 1, BatchLimitPerMin: 1, BurstMultiplier: 1}
	rl := newFallbackLimiter(t, cfg)

	for i := 0; i < 20; i++ {
		_, err := rl.AllowIP(context.Background(), "10.0.0.3")
		require.NoError(t, err)
	}

	result, err := rl.AllowIP(context.Background(), "10.0.0.4")
	require.NoError(t, err)
	assert.True(t, result.Allowed, "a fresh IP must not inherit another IP's bucket")
}

func TestBatchLimiterUsesSeparateBucket(t *testing.T) {
	rl := newFallbackLimiter(t, DefaultConfig())

	ipResult, err := rl.AllowIP(context.Background(), "10.0.0.5")
	require.NoError(t, err)
	batchResult, err := rl.AllowBatch(context.Background(), "10.0.0.5")
	require.NoError(t, err)

	assert.True(t, ipResult.Allowed)
	assert.True(t, batchResult.Allowed)
	assert.Equal(t, DefaultConfig().BatchLimitPerMin, batchResult.Limit)
}

func TestGetStats(t *testing.T) {
	rl := newFallbackLimiter(t, DefaultConfig())

	_, err := rl.AllowIP(context.Background(), "10.0.0.6")
	require.NoError(t, err)

	stats := rl.GetStats()
	assert.Equal(t, false, stats["redis_enabled"])
	assert.GreaterOrEqual(t, stats["fallback_limiters"].(int), 1)
}
