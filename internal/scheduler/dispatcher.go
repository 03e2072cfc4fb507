package scheduler

import (
	"context"
	"log"

	"github.com/dyluth/muster/pkg/queue"
)

// Dispatcher hands a claimed item to whatever runs the execution.
// A nil error means the item can be deleted from the queue. An error releases
// the claim so the item is retried on a later pass.
type Dispatcher interface {
	Dispatch(ctx context.Context, item *queue.WorkQueueItem) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, item *queue.WorkQueueItem) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, item *queue.WorkQueueItem) error {
	return f(ctx, item)
}

// LogDispatcher logs the references of each claimed item and reports success.
// Items carry no parameters, so nothing here needs redaction.
type LogDispatcher struct{}

// Dispatch implements Dispatcher.
func (LogDispatcher) Dispatch(_ context.Context, item *queue.WorkQueueItem) error {
	log.Printf("[Scheduler] Dispatching liveaction %s (execution %s, item %s, waited %dms)",
		item.LiveActionID, item.ExecutionID, item.ID, item.HandlingSinceMs-item.ScheduledStartMs)
	return nil
}
