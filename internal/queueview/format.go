package queueview

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/muster/pkg/queue"
)

// FormatTable writes items as a table: ID, STATE, LIVEACTION, DUE, DELAY, REV.
// Returns the number of items formatted.
func FormatTable(w io.Writer, items []*queue.WorkQueueItem, instanceName string, now time.Time) int {
	if len(items) == 0 {
		fmt.Fprintf(w, "No queued items for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Queue for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-10s %-9s %-26s %-12s %-7s %s\n",
		"ID", "STATE", "LIVEACTION", "DUE", "DELAY", "REV")
	fmt.Fprintf(w, "%-10s %-9s %-26s %-12s %-7s %s\n",
		"----------", "---------", "--------------------------", "------------", "-------", "---")

	for _, item := range items {
		fmt.Fprintf(w, "%-10s %-9s %-26s %-12s %-7s %d\n",
			formatID(item.ID),
			formatState(item, now),
			formatRef(item.LiveActionID),
			formatDue(item.ScheduledStartMs, now),
			formatDelay(item.DelayMs),
			item.Revision,
		)
	}

	countMsg := "item"
	if len(items) != 1 {
		countMsg = "items"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(items), countMsg)

	return len(items)
}

// FormatJSONL writes items as line-delimited JSON, one item per line.
func FormatJSONL(w io.Writer, items []*queue.WorkQueueItem) error {
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes one item as pretty-printed JSON.
func FormatSingleJSON(w io.Writer, item *queue.WorkQueueItem) error {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal item to JSON: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// formatID truncates item ID to first 8 characters for compact display.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatState(item *queue.WorkQueueItem, now time.Time) string {
	switch {
	case item.Handling:
		return "claimed"
	case item.IsDue(now):
		return "ready"
	default:
		return "delayed"
	}
}

func formatRef(ref string) string {
	if ref == "" {
		return "-"
	}
	if len(ref) > 26 {
		return ref[:23] + "..."
	}
	return ref
}

// formatDue shows the scheduled time relative to now: "in 4s", "2m ago".
func formatDue(scheduledMs int64, now time.Time) string {
	diff := time.UnixMilli(scheduledMs).Sub(now)
	if diff > 0 {
		return "in " + formatSpan(diff)
	}
	return formatSpan(-diff) + " ago"
}

func formatSpan(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func formatDelay(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).String()
}
