// Package ratelimit implements fixed-window request limiting with burst
// allowance, keyed by project.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Window identifies the kind of counting window a bucket covers.
type Window string

const (
	// WindowMinute is the steady-state per-minute window.
	WindowMinute Window = "MINUTE"

	// WindowHour is the per-hour window.
	WindowHour Window = "HOUR"

	// WindowBurst is the short-spike allowance above the minute limit.
	// Burst tokens refill when the minute window rolls over and never
	// consume hour budget.
	WindowBurst Window = "BURST"
)

// Bucket is the mutable counter state for one (project, window) pair.
// Buckets are created lazily on first request in a window and reset
// lazily when the window rolls over.
type Bucket struct {
	Key         string    `json:"key"`
	Window      Window    `json:"window"`
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
	Count       int       `json:"count"`
}

// Expired reports whether the bucket's window has fully passed.
func (b *Bucket) Expired(now time.Time) bool {
	return !now.Before(b.WindowEnd)
}

// BucketKey builds the storage key for a (project, window) pair.
func BucketKey(projectID string, window Window) string {
	return fmt.Sprintf("%s:%s", projectID, window)
}

// BucketStore is the storage capability the limiter counts against. The
// windowing algorithm is storage-agnostic so a distributed backend can
// be substituted without touching decision logic.
type BucketStore interface {
	// Get retrieves the bucket stored under key.
	Get(ctx context.Context, key string) (*Bucket, bool, error)

	// Set stores the bucket under key.
	Set(ctx context.Context, key string, bucket *Bucket) error

	// Delete removes the bucket stored under key.
	Delete(ctx context.Context, key string) error

	// ClearExpired removes buckets whose window ended before now and
	// returns how many were reclaimed. Correctness never depends on it;
	// it only bounds memory for idle projects.
	ClearExpired(ctx context.Context, now time.Time) (int, error)

	// Close releases store resources.
	Close() error
}
