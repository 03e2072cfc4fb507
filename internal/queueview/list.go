package queueview

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/muster/pkg/queue"
)

// OutputFormat specifies how to format the item list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete items as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// FilterCriteria defines filtering options for queue list.
// All filters are ANDed together.
type FilterCriteria struct {
	SinceTimestampMs int64 // Scheduled at or after, 0 = no filter
	UntilTimestampMs int64 // Scheduled at or before, 0 = no filter
	ReadyOnly        bool  // Only items a worker could claim right now
}

// matchesFilter returns true if the item matches all filter criteria.
func (fc *FilterCriteria) matchesFilter(item *queue.WorkQueueItem, now time.Time) bool {
	if fc.SinceTimestampMs > 0 && item.ScheduledStartMs < fc.SinceTimestampMs {
		return false
	}
	if fc.UntilTimestampMs > 0 && item.ScheduledStartMs > fc.UntilTimestampMs {
		return false
	}
	if fc.ReadyOnly && !item.IsDue(now) {
		return false
	}
	return true
}

// ListItems retrieves every item of the queue's instance and writes them to w.
// Items are ordered by scheduled time.
func ListItems(ctx context.Context, q *queue.Queue, now time.Time, format OutputFormat, filters *FilterCriteria, w io.Writer) error {
	all, err := q.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list items: %w", err)
	}

	items := all[:0]
	for _, item := range all {
		if filters != nil && !filters.matchesFilter(item, now) {
			continue
		}
		items = append(items, item)
	}

	switch format {
	case OutputFormatDefault:
		FormatTable(w, items, q.InstanceName(), now)
	case OutputFormatJSONL:
		if err := FormatJSONL(w, items); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
