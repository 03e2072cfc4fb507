package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/muster/pkg/ledger"
	"github.com/dyluth/muster/pkg/queue"
)

// OutputFormat selects how streamed events are written.
type OutputFormat string

const (
	// OutputFormatDefault writes one human-readable line per event
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON writes line-delimited JSON
	OutputFormatJSON OutputFormat = "json"
)

// pollInterval is how often PollForDispatch re-reads the item.
var pollInterval = 200 * time.Millisecond

// StreamEvents writes every queue event for the queue's instance to w until
// ctx is cancelled. Events are at-most-once, so a missing line does not mean
// the item was never queued.
func StreamEvents(ctx context.Context, q *queue.Queue, format OutputFormat, w io.Writer) error {
	sub, err := q.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	events, errs := sub.Events(), sub.Errors()
	enc := json.NewEncoder(w)

	for {
		select {
		case <-ctx.Done():
			return nil

		case item, ok := <-events:
			if !ok {
				return nil
			}
			switch format {
			case OutputFormatJSON:
				if err := enc.Encode(item); err != nil {
					return fmt.Errorf("failed to write event: %w", err)
				}
			default:
				fmt.Fprintf(w, "[%s] pending %s liveaction=%s due=%s\n",
					time.Now().Format("15:04:05"),
					item.ID,
					item.LiveActionID,
					item.ScheduledStart().Format(time.RFC3339))
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fmt.Fprintf(w, "warning: %v\n", err)
		}
	}
}

// PollForDispatch waits until itemID is no longer queued, which happens once
// a worker has claimed and dispatched it. Returns an error on timeout.
func PollForDispatch(ctx context.Context, q *queue.Queue, itemID string, timeout time.Duration) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timeoutCh:
			return fmt.Errorf("timeout waiting for dispatch after %v", timeout)

		case <-ticker.C:
			_, err := q.Get(ctx, itemID)
			if err == nil {
				continue
			}
			if ledger.IsNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to query item: %w", err)
		}
	}
}
