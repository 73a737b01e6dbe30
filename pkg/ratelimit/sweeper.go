package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rzbill/gate/pkg/log"
)

// Sweeper periodically reclaims expired buckets from a store. Window
// correctness never depends on it; it only bounds memory held for idle
// projects.
type Sweeper struct {
	store    BucketStore
	schedule string
	logger   log.Logger
	cron     *cron.Cron
}

// NewSweeper creates a sweeper running on the given cron schedule
// (cron expression or descriptor such as "@every 5m").
func NewSweeper(store BucketStore, schedule string, logger log.Logger) *Sweeper {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	if schedule == "" {
		schedule = "@every 5m"
	}
	return &Sweeper{
		store:    store,
		schedule: schedule,
		logger:   logger.WithComponent("ratelimit-sweeper"),
		cron:     cron.New(),
	}
}

// Start begins the sweep schedule.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.sweep)
	if err != nil {
		return fmt.Errorf("failed to schedule bucket sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("bucket sweeper started", log.Str("schedule", s.schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := s.store.ClearExpired(ctx, time.Now())
	if err != nil {
		s.logger.Warn("bucket sweep failed", log.Err(err))
		return
	}
	if removed > 0 {
		s.logger.Debug("reclaimed expired buckets", log.Int("removed", removed))
	}
}
