package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dyluth/muster/internal/config"
	"github.com/dyluth/muster/pkg/queue"
)

// Engine is a scheduler worker. It repeatedly lists ready items, claims them
// and dispatches the ones it won. Any number of engines may run against the
// same instance; the claim protocol guarantees each item is dispatched by one.
type Engine struct {
	queue      *queue.Queue
	dispatcher Dispatcher
	cfg        config.SchedulerConfig
	metrics    *Metrics
	now        func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineClock overrides the time used to decide which items are due.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a scheduler engine. metrics may be nil.
func NewEngine(q *queue.Queue, d Dispatcher, cfg config.SchedulerConfig, metrics *Metrics, opts ...EngineOption) *Engine {
	if metrics == nil {
		metrics = NewMetrics()
	}
	e := &Engine{
		queue:      q,
		dispatcher: d,
		cfg:        cfg,
		metrics:    metrics,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run polls the queue until ctx is cancelled. A pass runs on every poll tick
// and whenever a queue event arrives. Events are only a hint: if the
// subscription fails the engine keeps polling.
func (e *Engine) Run(ctx context.Context) error {
	log.Printf("[Scheduler] Starting for instance '%s' (poll=%s, concurrency=%d)",
		e.queue.InstanceName(), e.cfg.PollInterval, e.cfg.Concurrency)

	var events <-chan *queue.WorkQueueItem
	var errs <-chan error
	subscription, err := e.queue.Subscribe(ctx)
	if err != nil {
		log.Printf("[Scheduler] Queue events unavailable, polling only: %v", err)
	} else {
		defer subscription.Close()
		events = subscription.Events()
		errs = subscription.Errors()
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	e.runPass(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Scheduler] Shutting down...")
			return nil

		case <-ticker.C:
			e.runPass(ctx)

		case item, ok := <-events:
			if !ok {
				log.Printf("[Scheduler] Queue event subscription closed, polling only")
				events, errs = nil, nil
				continue
			}
			// A delayed item is not due yet; the ticker will pick it up.
			if item.IsDue(e.now()) {
				e.runPass(ctx)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Printf("[Scheduler] Subscription error: %v", err)
		}
	}
}

func (e *Engine) runPass(ctx context.Context) {
	if _, err := e.Pass(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[Scheduler] Pass failed: %v", err)
	}
}

// Pass performs one listReady/claim/dispatch round and returns how many items
// were dispatched. Claims are attempted concurrently, at most Concurrency at a
// time, and each candidate is claimed at most once per pass.
func (e *Engine) Pass(ctx context.Context) (int, error) {
	now := e.now()
	ready, err := e.queue.ListReady(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list ready items: %w", err)
	}
	if len(ready) > e.cfg.BatchSize {
		ready = ready[:e.cfg.BatchSize]
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		dispatched int
	)
	sem := make(chan struct{}, e.cfg.Concurrency)

	for _, item := range ready {
		select {
		case <-ctx.Done():
			wg.Wait()
			return dispatched, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(item *queue.WorkQueueItem) {
			defer wg.Done()
			defer func() { <-sem }()

			if e.process(ctx, item) {
				mu.Lock()
				dispatched++
				mu.Unlock()
			}
		}(item)
	}
	wg.Wait()

	e.updateDepth(ctx, now)
	return dispatched, nil
}

// process claims and dispatches a single candidate. Returns true if the item
// was dispatched and removed.
func (e *Engine) process(ctx context.Context, item *queue.WorkQueueItem) bool {
	claimed, err := e.queue.Claim(ctx, item)
	if err != nil {
		log.Printf("[Scheduler] Error claiming item %s: %v", item.ID, err)
		return false
	}
	if !claimed {
		e.metrics.ClaimsLost.Inc()
		return false
	}
	e.metrics.ClaimsWon.Inc()

	e.logEvent("item_claimed", map[string]interface{}{
		"item_id":       item.ID,
		"liveaction_id": item.LiveActionID,
		"revision":      item.Revision,
		"lag_ms":        item.HandlingSinceMs - item.ScheduledStartMs,
	})

	if err := e.dispatcher.Dispatch(ctx, item); err != nil {
		e.metrics.Dispatches.WithLabelValues("failed").Inc()
		log.Printf("[Scheduler] Dispatch of item %s failed, releasing: %v", item.ID, err)
		if _, relErr := e.queue.Release(ctx, item); relErr != nil {
			// The sweep resets the claim once it goes stale
			log.Printf("[Scheduler] Error releasing item %s: %v", item.ID, relErr)
		}
		return false
	}

	deleted, err := e.queue.Delete(ctx, item)
	if err != nil || !deleted {
		// Dispatched but still queued. The sweep will eventually release it,
		// so the dispatcher must tolerate a repeat.
		e.metrics.Dispatches.WithLabelValues("undeleted").Inc()
		log.Printf("[Scheduler] Item %s dispatched but not removed (deleted=%v): %v", item.ID, deleted, err)
		return true
	}

	e.metrics.Dispatches.WithLabelValues("succeeded").Inc()
	e.logEvent("item_dispatched", map[string]interface{}{
		"item_id":       item.ID,
		"liveaction_id": item.LiveActionID,
	})
	return true
}

func (e *Engine) updateDepth(ctx context.Context, now time.Time) {
	stats, err := e.queue.Stats(ctx, now)
	if err != nil {
		return
	}
	e.metrics.ReadyDepth.Set(float64(stats.Pending))
	e.metrics.HandlingNow.Set(float64(stats.Handling))
}

// logEvent logs a structured event in JSON format.
func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	logEvent(e.queue.InstanceName(), "scheduler", eventType, data)
}

func logEvent(instance, component, eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = component
	data["event_type"] = eventType
	data["instance"] = instance

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Scheduler] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
