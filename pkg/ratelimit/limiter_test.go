package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/gate/pkg/log"
	"github.com/rzbill/gate/pkg/types"
)

type limiterClock struct {
	mu  sync.Mutex
	now time.Time
}

func newLimiterClock() *limiterClock {
	// Mid-window start so truncation is visible in expectations.
	return &limiterClock{now: time.Date(2026, 8, 1, 12, 0, 15, 0, time.UTC)}
}

func (c *limiterClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *limiterClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(clock *limiterClock) *Limiter {
	return NewLimiter(NewMemoryStore(), log.NewTestLogger(), WithLimiterClock(clock.Now))
}

func TestLimiterNoPolicyAllows(t *testing.T) {
	limiter := newTestLimiter(newLimiterClock())

	result, err := limiter.Check(context.Background(), "p1", nil)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.Check(context.Background(), "p1", &types.RateLimitConfig{})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestLimiterMinuteWindowWithBurst(t *testing.T) {
	clock := newLimiterClock()
	limiter := newTestLimiter(clock)
	cfg := &types.RateLimitConfig{RequestsPerMinute: 10, BurstAllowance: 2}

	// First 10 requests fit the steady-state minute budget.
	for i := 0; i < 10; i++ {
		result, err := limiter.Check(context.Background(), "p1", cfg)
		require.NoError(t, err)
		require.True(t, result.Allowed, "request %d should be admitted", i+1)
		assert.Equal(t, WindowMinute, result.Window)
		assert.Equal(t, 10-i-1, result.Remaining)
	}

	// Requests 11 and 12 ride the burst allowance.
	for i := 0; i < 2; i++ {
		result, err := limiter.Check(context.Background(), "p1", cfg)
		require.NoError(t, err)
		require.True(t, result.Allowed, "burst request %d should be admitted", i+1)
		assert.Equal(t, WindowBurst, result.Window)
	}

	// The 13th is denied until the minute window resets.
	result, err := limiter.Check(context.Background(), "p1", cfg)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, WindowMinute, result.Window)
	assert.Equal(t, result.ResetTime, clock.Now().Truncate(time.Minute).Add(time.Minute))
	assert.Equal(t, result.ResetTime.Sub(clock.Now()), result.RetryAfter)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestLimiterDeniesWithoutBurst(t *testing.T) {
	limiter := newTestLimiter(newLimiterClock())
	cfg := &types.RateLimitConfig{RequestsPerMinute: 10}

	for i := 0; i < 10; i++ {
		result, err := limiter.Check(context.Background(), "p1", cfg)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	result, err := limiter.Check(context.Background(), "p1", cfg)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestLimiterWindowRollsOverLazily(t *testing.T) {
	clock := newLimiterClock()
	limiter := newTestLimiter(clock)
	cfg := &types.RateLimitConfig{RequestsPerMinute: 2, BurstAllowance: 1}

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(context.Background(), "p1", cfg)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}
	result, err := limiter.Check(context.Background(), "p1", cfg)
	require.NoError(t, err)
	require.False(t, result.Allowed)

	// A new minute restores both the minute budget and the burst tokens.
	clock.Advance(time.Minute)
	for i := 0; i < 3; i++ {
		result, err := limiter.Check(context.Background(), "p1", cfg)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d after rollover", i+1)
	}
}

func TestLimiterHourBudgetBinds(t *testing.T) {
	clock := newLimiterClock()
	limiter := newTestLimiter(clock)
	cfg := &types.RateLimitConfig{RequestsPerMinute: 3, RequestsPerHour: 4, BurstAllowance: 5}

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(context.Background(), "p1", cfg)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	// Burst does not consume hour budget.
	result, err := limiter.Check(context.Background(), "p1", cfg)
	require.NoError(t, err)
	require.True(t, result.Allowed)
	require.Equal(t, WindowBurst, result.Window)

	// Next minute: one more steady-state request exhausts the hour.
	clock.Advance(time.Minute)
	result, err = limiter.Check(context.Background(), "p1", cfg)
	require.NoError(t, err)
	require.True(t, result.Allowed)
	require.Equal(t, WindowMinute, result.Window)

	result, err = limiter.Check(context.Background(), "p1", cfg)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, WindowHour, result.Window)
	assert.Equal(t, result.ResetTime, clock.Now().Truncate(time.Hour).Add(time.Hour))
}

func TestLimiterBurstDoesNotConsumeHour(t *testing.T) {
	clock := newLimiterClock()
	limiter := newTestLimiter(clock)
	cfg := &types.RateLimitConfig{RequestsPerMinute: 1, RequestsPerHour: 3, BurstAllowance: 10}

	// Minute 1: one steady admit plus two burst admits.
	for i := 0; i < 3; i++ {
		result, err := limiter.Check(context.Background(), "p1", cfg)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	// Hour counter should have absorbed only the single steady admit,
	// leaving two more minutes of steady traffic.
	clock.Advance(time.Minute)
	result, err := limiter.Check(context.Background(), "p1", cfg)
	require.NoError(t, err)
	require.True(t, result.Allowed)
	require.Equal(t, WindowMinute, result.Window)

	clock.Advance(time.Minute)
	result, err = limiter.Check(context.Background(), "p1", cfg)
	require.NoError(t, err)
	require.True(t, result.Allowed)
	require.Equal(t, WindowMinute, result.Window)
}

func TestLimiterProjectsAreIndependent(t *testing.T) {
	limiter := newTestLimiter(newLimiterClock())
	cfg := &types.RateLimitConfig{RequestsPerMinute: 1}

	result, err := limiter.Check(context.Background(), "p1", cfg)
	require.NoError(t, err)
	require.True(t, result.Allowed)

	result, err = limiter.Check(context.Background(), "p1", cfg)
	require.NoError(t, err)
	require.False(t, result.Allowed)

	// A different project has its own buckets.
	result, err = limiter.Check(context.Background(), "p2", cfg)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestLimiterConcurrentChecksNeverExceedBudget(t *testing.T) {
	limiter := newTestLimiter(newLimiterClock())
	cfg := &types.RateLimitConfig{RequestsPerMinute: 20, BurstAllowance: 5}

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := limiter.Check(context.Background(), "p1", cfg)
			if err != nil {
				t.Error(err)
				return
			}
			if result.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 25, admitted, "exactly limit+burst admitted under concurrency")
}

func TestLimiterProjectLocksAreReclaimed(t *testing.T) {
	limiter := newTestLimiter(newLimiterClock())
	cfg := &types.RateLimitConfig{RequestsPerMinute: 5}

	for i := 0; i < 50; i++ {
		projectID := fmt.Sprintf("proj-%d", i)
		_, err := limiter.Check(context.Background(), projectID, cfg)
		require.NoError(t, err)
	}

	limiter.mu.Lock()
	held := len(limiter.locks)
	limiter.mu.Unlock()
	assert.Zero(t, held, "no locks retained after checks complete")

	// Under concurrency the map drains once all checks finish.
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			projectID := fmt.Sprintf("proj-%d", n%10)
			if _, err := limiter.Check(context.Background(), projectID, cfg); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	limiter.mu.Lock()
	held = len(limiter.locks)
	limiter.mu.Unlock()
	assert.Zero(t, held, "no locks retained after concurrent checks complete")
}
