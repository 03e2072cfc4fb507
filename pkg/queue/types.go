package queue

import (
	"fmt"
	"time"

	"github.com/dyluth/muster/pkg/uid"
	"github.com/google/uuid"
)

// WorkQueueItem is one pending request to schedule an execution.
// Items are mutated only through the claim protocol and rescheduling.
type WorkQueueItem struct {
	ID               string `json:"id"`                        // UUID, assigned on creation
	UID              string `json:"uid"`                       // execution_request:{id}
	LiveActionID     string `json:"liveaction_id"`             // Transient action-run record to schedule
	ExecutionID      string `json:"action_execution_id"`       // Originating execution
	OriginalStartMs  int64  `json:"original_start_timestamp"`  // Set once at creation
	ScheduledStartMs int64  `json:"scheduled_start_timestamp"` // Moves when rescheduled
	DelayMs          int64  `json:"delay,omitempty"`           // Requested delay, 0 = none
	Handling         bool   `json:"handling"`                  // Claimed by a worker
	HandlingSinceMs  int64  `json:"handling_since,omitempty"`  // When the current claim landed
	Revision         int64  `json:"revision"`                  // Ledger revision at read time
}

// Kind implements uid.Resource.
func (i *WorkQueueItem) Kind() uid.Kind { return uid.KindExecutionRequest }

// UIDValues implements uid.Resource.
func (i *WorkQueueItem) UIDValues() map[string]string { return map[string]string{"id": i.ID} }

// Parameters implements uid.Resource.
func (i *WorkQueueItem) Parameters() map[string]any { return nil }

// ScheduledStart returns the time the item becomes due.
func (i *WorkQueueItem) ScheduledStart() time.Time {
	return time.UnixMilli(i.ScheduledStartMs).UTC()
}

// OriginalStart returns the time the item was first enqueued.
func (i *WorkQueueItem) OriginalStart() time.Time {
	return time.UnixMilli(i.OriginalStartMs).UTC()
}

// IsDue reports whether the item is pending and due at now.
func (i *WorkQueueItem) IsDue(now time.Time) bool {
	return !i.Handling && i.ScheduledStartMs <= now.UnixMilli()
}

// Validate checks if the WorkQueueItem has valid field values.
func (i *WorkQueueItem) Validate() error {
	if !isValidUUID(i.ID) {
		return fmt.Errorf("invalid item ID: not a valid UUID")
	}

	if i.LiveActionID == "" {
		return fmt.Errorf("liveaction_id cannot be empty")
	}

	if i.DelayMs < 0 {
		return fmt.Errorf("invalid delay: must be >= 0, got %d", i.DelayMs)
	}

	if i.ScheduledStartMs < i.OriginalStartMs {
		return fmt.Errorf("scheduled start %d precedes original start %d", i.ScheduledStartMs, i.OriginalStartMs)
	}

	if i.UID != "" && !uid.HasValidUID(uid.KindExecutionRequest, i.UID) {
		return fmt.Errorf("invalid uid: %q", i.UID)
	}

	return nil
}

// EnqueueRequest describes a new item.
type EnqueueRequest struct {
	ExecutionID  string
	LiveActionID string
	Delay        time.Duration
}

// Stats summarises queue depth.
type Stats struct {
	Pending  int64 `json:"pending"`
	Due      int64 `json:"due"`
	Handling int64 `json:"handling"`
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
