package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dyluth/muster/pkg/queue"
)

// Sweeper resets claims abandoned by crashed workers. An item whose claim is
// older than staleAfter goes back to pending so another worker can take it.
type Sweeper struct {
	queue      *queue.Queue
	staleAfter time.Duration
	interval   time.Duration
	metrics    *Metrics
	now        func() time.Time
}

// NewSweeper creates a liveness sweep. metrics may be nil.
func NewSweeper(q *queue.Queue, staleAfter, interval time.Duration, metrics *Metrics) *Sweeper {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Sweeper{
		queue:      q,
		staleAfter: staleAfter,
		interval:   interval,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Run sweeps once at startup and then every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[Sweeper] Sweep failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep releases every item claimed before now-staleAfter and returns how
// many were released. An item that changed since it was listed (dispatched,
// released or re-claimed) is skipped.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	startTime := time.Now()
	threshold := s.now().Add(-s.staleAfter)

	stale, err := s.queue.ListStale(ctx, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale claims: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	released := 0
	for _, item := range stale {
		claimedFor := s.now().Sub(time.UnixMilli(item.HandlingSinceMs))
		ok, err := s.queue.Release(ctx, item)
		if err != nil {
			log.Printf("[Sweeper] Warning: failed to release item %s: %v", item.ID, err)
			continue
		}
		if !ok {
			continue
		}
		released++
		s.metrics.ItemsSwept.Inc()
		logEvent(s.queue.InstanceName(), "sweeper", "claim_reset", map[string]interface{}{
			"item_id":       item.ID,
			"liveaction_id": item.LiveActionID,
			"claimed_for":   claimedFor.Round(time.Millisecond).String(),
		})
	}

	log.Printf("[Sweeper] Reset %d of %d stale claims (duration: %v)",
		released, len(stale), time.Since(startTime).Round(time.Millisecond))

	return released, nil
}
