package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Subscription represents an active Pub/Sub subscription to queue events.
// Caller must call Close() when done to clean up resources.
// Events carry items that just became pending (enqueued or released).
type Subscription struct {
	events <-chan *WorkQueueItem
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of queue events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *WorkQueueItem {
	return s.events
}

// Errors returns the channel of subscription errors.
// The subscription continues after errors - malformed messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe subscribes to queue events for this instance.
//
// Events are delivered on a buffered channel (size 10) to prevent blocking.
// Redis Pub/Sub is at-most-once: a slow or disconnected subscriber can miss
// events, so workers must keep polling ListReady and treat events as a hint.
func (q *Queue) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := q.ledger.RedisClient().Subscribe(ctx, QueueEventsChannel(q.instanceName))

	// Wait for subscription confirmation so no event published after return is lost
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to queue events: %w", err)
	}

	eventsChan := make(chan *WorkQueueItem, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var item WorkQueueItem
				if err := json.Unmarshal([]byte(msg.Payload), &item); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal queue event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &item:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
