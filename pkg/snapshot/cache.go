package snapshot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/gate/pkg/log"
	"github.com/rzbill/gate/pkg/types"
)

// State describes the cache lifecycle.
type State string

const (
	// StateUninitialized means no snapshot has ever loaded.
	StateUninitialized State = "UNINITIALIZED"

	// StateWarm means the current snapshot is within its TTL.
	StateWarm State = "WARM"

	// StateStale means the TTL elapsed but the snapshot is still within
	// the maximum tolerated staleness and keeps being served.
	StateStale State = "STALE"

	// StateUnavailable means the snapshot aged past the staleness bound;
	// the cache fails closed until a refresh succeeds.
	StateUnavailable State = "UNAVAILABLE"
)

// Entry wraps a snapshot with its cache metadata. Entries are immutable;
// a refresh installs a new entry with an atomic pointer swap, so readers
// never observe a torn update.
type Entry struct {
	Snapshot  *types.Snapshot
	FetchedAt time.Time
	ExpiresAt time.Time
	Version   int64
}

// CacheStats is a point-in-time view of cache health for the health
// surface. Computing it never mutates state and never blocks on an
// in-flight refresh.
type CacheStats struct {
	State         State     `json:"state"`
	IsExpired     bool      `json:"isExpired"`
	FetchedAt     time.Time `json:"fetchedAt,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt,omitempty"`
	Version       int64     `json:"version"`
	FetchFailures int64     `json:"fetchFailures"`
	LastAttempt   time.Time `json:"lastAttempt,omitempty"`
}

// CacheOptions configures a Cache.
type CacheOptions struct {
	// Fetcher supplies validated snapshots. Required.
	Fetcher Fetcher

	// RefreshInterval is how often the refresh loop runs. Independent of
	// TTL: a short interval with a long TTL gives headroom for transient
	// control-plane outages.
	RefreshInterval time.Duration

	// TTL is how long a snapshot counts as fresh.
	TTL time.Duration

	// MaxStaleness is the maximum tolerated snapshot age. Past this the
	// cache fails closed.
	MaxStaleness time.Duration

	Logger log.Logger

	// Clock overrides the time source, for tests.
	Clock func() time.Time
}

// Cache owns the current snapshot and its refresh loop, and answers all
// admission-time lookups. It is an explicitly constructed, injectable
// component with a Start/Stop lifecycle; there is no ambient global
// instance.
//
// The fail-closed guarantee: when no snapshot has ever loaded, or the
// current one aged past MaxStaleness, every lookup returns
// SnapshotUnavailable instead of stale or empty data.
type Cache struct {
	fetcher      Fetcher
	interval     time.Duration
	ttl          time.Duration
	maxStaleness time.Duration
	logger       log.Logger
	clock        func() time.Time

	entry      atomic.Pointer[Entry]
	refreshing atomic.Bool

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewCache creates a snapshot cache. Start must be called before the
// refresh loop runs; lookups before the first successful refresh fail
// closed.
func NewCache(opts CacheOptions) (*Cache, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("snapshot cache requires a fetcher")
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 30 * time.Second
	}
	if opts.TTL <= 0 {
		opts.TTL = 60 * time.Second
	}
	if opts.MaxStaleness < opts.TTL {
		return nil, fmt.Errorf("max staleness (%s) must be at least the TTL (%s)", opts.MaxStaleness, opts.TTL)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Cache{
		fetcher:      opts.Fetcher,
		interval:     opts.RefreshInterval,
		ttl:          opts.TTL,
		maxStaleness: opts.MaxStaleness,
		logger:       logger.WithComponent("snapshot-cache"),
		clock:        clock,
		done:         make(chan struct{}),
	}, nil
}

// Start performs the cold-start fetch and launches the refresh loop. A
// failed cold-start fetch is logged but does not fail startup; the cache
// simply stays fail-closed until a refresh succeeds.
func (c *Cache) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(ctx)
		c.cancel = cancel

		if err := c.Refresh(loopCtx); err != nil {
			c.logger.Warn("cold-start snapshot fetch failed, serving fail-closed until refresh succeeds",
				log.Err(err))
		}

		go c.run(loopCtx)
	})
}

// Stop terminates the refresh loop. An in-flight refresh is abandoned at
// its next context check; Stop does not wait for the network call.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		if c.cancel == nil {
			return
		}
		c.cancel()
		<-c.done
	})
}

func (c *Cache) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				// Already logged by Refresh; the loop itself never dies
				// on a failed tick.
				continue
			}
		}
	}
}

// Refresh runs at most one fetch at a time. If a refresh is already in
// flight the call is a no-op, not a queued duplicate.
func (c *Cache) Refresh(ctx context.Context) (err error) {
	if !c.refreshing.CompareAndSwap(false, true) {
		c.logger.Debug("refresh already in flight, skipping")
		return nil
	}
	defer c.refreshing.Store(false)

	// A panicking fetcher must not take down the refresh loop.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("snapshot refresh panicked: %v", r)
			c.logger.Error("snapshot refresh panicked", log.Any("panic", r))
		}
	}()

	snap, err := c.fetcher.Fetch(ctx)
	if err != nil {
		c.onRefreshFailure(err)
		return err
	}

	c.install(snap)
	return nil
}

func (c *Cache) install(snap *types.Snapshot) {
	now := c.clock()
	entry := &Entry{
		Snapshot:  snap,
		FetchedAt: now,
		ExpiresAt: now.Add(c.ttl),
		Version:   snap.Version,
	}

	if prev := c.entry.Load(); prev != nil && snap.Version < prev.Version {
		// The control plane owns the version; a regression is accepted
		// but surfaced loudly.
		c.logger.Warn("snapshot version regressed",
			log.Int64("previous", prev.Version),
			log.Int64("current", snap.Version))
	}

	c.entry.Store(entry)
	c.logger.Info("snapshot installed",
		log.Int64("version", entry.Version),
		log.Int("projects", len(snap.Projects)),
		log.Int("services", len(snap.Services)))
}

func (c *Cache) onRefreshFailure(err error) {
	entry := c.entry.Load()
	if entry == nil {
		c.logger.Warn("snapshot refresh failed with no snapshot loaded", log.Err(err))
		return
	}

	age := c.clock().Sub(entry.FetchedAt)
	if age > c.maxStaleness {
		c.logger.Error("snapshot refresh failed and snapshot exceeded max staleness, failing closed",
			log.Err(err),
			log.Duration("age", age),
			log.Duration("max_staleness", c.maxStaleness))
	} else {
		c.logger.Warn("snapshot refresh failed, serving previous snapshot",
			log.Err(err),
			log.Duration("age", age),
			log.Int64("version", entry.Version))
	}
}

// current returns the live entry when it is trustworthy, or nil when the
// cache must fail closed.
func (c *Cache) current() *Entry {
	entry := c.entry.Load()
	if entry == nil {
		return nil
	}
	if c.clock().Sub(entry.FetchedAt) > c.maxStaleness {
		return nil
	}
	return entry
}

// State derives the lifecycle state from the live entry.
func (c *Cache) State() State {
	entry := c.entry.Load()
	if entry == nil {
		return StateUninitialized
	}
	age := c.clock().Sub(entry.FetchedAt)
	switch {
	case age > c.maxStaleness:
		return StateUnavailable
	case c.clock().After(entry.ExpiresAt):
		return StateStale
	default:
		return StateWarm
	}
}

// GetProject resolves a project from the current snapshot. The found
// flag distinguishes an absent id in a healthy snapshot from cache
// unavailability, which is reported as a SnapshotUnavailable error.
func (c *Cache) GetProject(id string) (*types.ProjectConfig, bool, error) {
	entry := c.current()
	if entry == nil {
		return nil, false, types.NewSnapshotUnavailableError()
	}
	project, ok := entry.Snapshot.Projects[id]
	if !ok {
		return nil, false, nil
	}
	return project, true, nil
}

// IsServiceEnabled reports whether serviceName is usable by projectID:
// the project must exist and not be deleted, and the service must be
// both globally enabled and in the project's enabled set. Absence of any
// condition is "not enabled", not an error.
func (c *Cache) IsServiceEnabled(projectID, serviceName string) (bool, error) {
	entry := c.current()
	if entry == nil {
		return false, types.NewSnapshotUnavailableError()
	}

	project, ok := entry.Snapshot.Projects[projectID]
	if !ok || project.Status == types.ProjectStatusDeleted {
		return false, nil
	}

	service, ok := entry.Snapshot.Services[serviceName]
	if !ok || !service.Enabled {
		return false, nil
	}

	return project.HasService(serviceName), nil
}

// GetRateLimit returns the rate-limit policy for a project, or nil when
// the snapshot carries none for it.
func (c *Cache) GetRateLimit(projectID string) (*types.RateLimitConfig, error) {
	entry := c.current()
	if entry == nil {
		return nil, types.NewSnapshotUnavailableError()
	}
	return entry.Snapshot.RateLimits[projectID], nil
}

// Stats reports cache health. Never blocks on an in-flight refresh.
func (c *Cache) Stats() CacheStats {
	stats := CacheStats{State: c.State()}

	fetchStats := c.fetcher.Stats()
	stats.FetchFailures = fetchStats.Failures
	stats.LastAttempt = fetchStats.LastAttempt

	if entry := c.entry.Load(); entry != nil {
		stats.FetchedAt = entry.FetchedAt
		stats.ExpiresAt = entry.ExpiresAt
		stats.Version = entry.Version
		stats.IsExpired = c.clock().After(entry.ExpiresAt)
	}

	return stats
}

// Healthy reports whether a current, non-expired snapshot exists.
func (c *Cache) Healthy() bool {
	return c.State() == StateWarm
}
