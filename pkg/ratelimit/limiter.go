package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rzbill/gate/pkg/log"
	"github.com/rzbill/gate/pkg/types"
)

// Result is the outcome of one rate-limit check.
type Result struct {
	Allowed bool

	// Limit and Window identify which window produced the decision: the
	// admitting window on success, the binding (exhausted) one on denial.
	Limit  int
	Window Window

	// Remaining is the request budget left in the deciding window.
	Remaining int

	// ResetTime is when the binding window rolls over.
	ResetTime time.Time

	// RetryAfter is set on denial: the wait until the soonest window
	// that would admit the request again.
	RetryAfter time.Duration
}

// Limiter applies fixed-window rate limiting per project. Counter state
// lives in a pluggable BucketStore; concurrent checks for the same
// project are serialized so a burst can never exceed its budget through
// lost updates, while different projects never contend.
type Limiter struct {
	store  BucketStore
	logger log.Logger
	clock  func() time.Time

	mu    sync.Mutex
	locks map[string]*projectLock
}

// projectLock serializes checks for one project. Entries are reference
// counted so the map stays bounded by in-flight checks rather than
// growing one mutex per project id ever seen.
type projectLock struct {
	mu   sync.Mutex
	refs int
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithLimiterClock overrides the time source, for tests.
func WithLimiterClock(clock func() time.Time) LimiterOption {
	return func(l *Limiter) {
		l.clock = clock
	}
}

// NewLimiter creates a limiter counting against the given store.
func NewLimiter(store BucketStore, logger log.Logger, options ...LimiterOption) *Limiter {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	l := &Limiter{
		store:  store,
		logger: logger.WithComponent("ratelimit"),
		clock:  time.Now,
		locks:  make(map[string]*projectLock),
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// acquireProject takes the per-project lock, creating it on first use.
func (l *Limiter) acquireProject(projectID string) *projectLock {
	l.mu.Lock()
	lock, ok := l.locks[projectID]
	if !ok {
		lock = &projectLock{}
		l.locks[projectID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return lock
}

// releaseProject releases the per-project lock and drops the map entry
// once no check holds or waits on it.
func (l *Limiter) releaseProject(projectID string, lock *projectLock) {
	lock.mu.Unlock()

	l.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, projectID)
	}
	l.mu.Unlock()
}

// Check counts one request against every window configured for the
// project and admits only if all of them have budget. Burst tokens cover
// short spikes above the minute limit without consuming hour budget.
func (l *Limiter) Check(ctx context.Context, projectID string, cfg *types.RateLimitConfig) (*Result, error) {
	// No policy means no limiting.
	if cfg == nil || (cfg.RequestsPerMinute <= 0 && cfg.RequestsPerHour <= 0) {
		return &Result{Allowed: true}, nil
	}

	lock := l.acquireProject(projectID)
	defer l.releaseProject(projectID, lock)

	now := l.clock()

	minute, err := l.loadBucket(ctx, projectID, WindowMinute, now)
	if err != nil {
		return nil, err
	}
	hour, err := l.loadBucket(ctx, projectID, WindowHour, now)
	if err != nil {
		return nil, err
	}
	burst, err := l.loadBucket(ctx, projectID, WindowBurst, now)
	if err != nil {
		return nil, err
	}

	// Hour budget binds everything, including burst.
	if cfg.RequestsPerHour > 0 && hour.Count >= cfg.RequestsPerHour {
		return &Result{
			Allowed:    false,
			Limit:      cfg.RequestsPerHour,
			Window:     WindowHour,
			Remaining:  0,
			ResetTime:  hour.WindowEnd,
			RetryAfter: hour.WindowEnd.Sub(now),
		}, nil
	}

	// Steady-state minute budget.
	if cfg.RequestsPerMinute <= 0 || minute.Count < cfg.RequestsPerMinute {
		minute.Count++
		hour.Count++
		if err := l.saveBuckets(ctx, projectID, minute, hour); err != nil {
			return nil, err
		}
		remaining := 0
		if cfg.RequestsPerMinute > 0 {
			remaining = cfg.RequestsPerMinute - minute.Count
		}
		return &Result{
			Allowed:   true,
			Limit:     cfg.RequestsPerMinute,
			Window:    WindowMinute,
			Remaining: remaining,
			ResetTime: minute.WindowEnd,
		}, nil
	}

	// Minute budget exhausted: spend a burst token if one remains. Burst
	// admissions bypass the hour counter so a spike does not eat the
	// steady-state hourly budget.
	if cfg.BurstAllowance > 0 && burst.Count < cfg.BurstAllowance {
		burst.Count++
		if err := l.store.Set(ctx, burst.Key, burst); err != nil {
			return nil, fmt.Errorf("failed to persist burst bucket: %w", err)
		}
		return &Result{
			Allowed:   true,
			Limit:     cfg.BurstAllowance,
			Window:    WindowBurst,
			Remaining: cfg.BurstAllowance - burst.Count,
			ResetTime: burst.WindowEnd,
		}, nil
	}

	// Denied: the minute rollover restores both the minute budget and
	// the burst tokens, so it is always the soonest admitting window
	// here.
	return &Result{
		Allowed:    false,
		Limit:      cfg.RequestsPerMinute,
		Window:     WindowMinute,
		Remaining:  0,
		ResetTime:  minute.WindowEnd,
		RetryAfter: minute.WindowEnd.Sub(now),
	}, nil
}

// loadBucket fetches the bucket for the (project, window) pair, rolling
// it over lazily when its window has passed.
func (l *Limiter) loadBucket(ctx context.Context, projectID string, window Window, now time.Time) (*Bucket, error) {
	key := BucketKey(projectID, window)

	bucket, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load bucket %s: %w", key, err)
	}
	if ok && !bucket.Expired(now) {
		return bucket, nil
	}

	start, end := windowBounds(window, now)
	return &Bucket{
		Key:         key,
		Window:      window,
		WindowStart: start,
		WindowEnd:   end,
		Count:       0,
	}, nil
}

func (l *Limiter) saveBuckets(ctx context.Context, projectID string, buckets ...*Bucket) error {
	for _, bucket := range buckets {
		if err := l.store.Set(ctx, bucket.Key, bucket); err != nil {
			return fmt.Errorf("failed to persist bucket %s: %w", bucket.Key, err)
		}
	}
	return nil
}

// windowBounds computes the fixed window containing now. Burst tokens
// ride the minute window so they refill on the same rollover.
func windowBounds(window Window, now time.Time) (time.Time, time.Time) {
	switch window {
	case WindowHour:
		start := now.Truncate(time.Hour)
		return start, start.Add(time.Hour)
	default:
		start := now.Truncate(time.Minute)
		return start, start.Add(time.Minute)
	}
}
