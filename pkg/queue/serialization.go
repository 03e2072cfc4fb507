package queue

import (
	"fmt"
	"strconv"

	"github.com/dyluth/muster/pkg/ledger"
)

// Persisted field names. Other components query items by these names.
const (
	FieldID             = "id"
	FieldUID            = "uid"
	FieldLiveActionID   = "liveaction_id"
	FieldExecutionID    = "action_execution_id"
	FieldOriginalStart  = "original_start_timestamp"
	FieldScheduledStart = "scheduled_start_timestamp"
	FieldDelay          = "delay"
	FieldHandling       = "handling"
	FieldHandlingSince  = "handling_since"
)

// ItemToHash converts a WorkQueueItem to its ledger document.
// The revision field is owned by the ledger and is not written here.
func ItemToHash(i *WorkQueueItem) ledger.Document {
	doc := ledger.Document{
		FieldID:             i.ID,
		FieldUID:            i.UID,
		FieldLiveActionID:   i.LiveActionID,
		FieldExecutionID:    i.ExecutionID,
		FieldOriginalStart:  strconv.FormatInt(i.OriginalStartMs, 10),
		FieldScheduledStart: strconv.FormatInt(i.ScheduledStartMs, 10),
		FieldDelay:          strconv.FormatInt(i.DelayMs, 10),
		FieldHandling:       strconv.FormatBool(i.Handling),
	}
	if i.HandlingSinceMs > 0 {
		doc[FieldHandlingSince] = strconv.FormatInt(i.HandlingSinceMs, 10)
	}
	return doc
}

// HashToItem converts a ledger document back to a WorkQueueItem.
func HashToItem(doc ledger.Document) (*WorkQueueItem, error) {
	rev, err := doc.Revision()
	if err != nil {
		return nil, err
	}

	original, err := strconv.ParseInt(doc[FieldOriginalStart], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s field: %w", FieldOriginalStart, err)
	}

	scheduled, err := strconv.ParseInt(doc[FieldScheduledStart], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s field: %w", FieldScheduledStart, err)
	}

	handling, err := strconv.ParseBool(doc[FieldHandling])
	if err != nil {
		return nil, fmt.Errorf("invalid %s field: %w", FieldHandling, err)
	}

	// Optional fields
	delay, _ := strconv.ParseInt(doc[FieldDelay], 10, 64)
	handlingSince, _ := strconv.ParseInt(doc[FieldHandlingSince], 10, 64)

	return &WorkQueueItem{
		ID:               doc[FieldID],
		UID:              doc[FieldUID],
		LiveActionID:     doc[FieldLiveActionID],
		ExecutionID:      doc[FieldExecutionID],
		OriginalStartMs:  original,
		ScheduledStartMs: scheduled,
		DelayMs:          delay,
		Handling:         handling,
		HandlingSinceMs:  handlingSince,
		Revision:         rev,
	}, nil
}
