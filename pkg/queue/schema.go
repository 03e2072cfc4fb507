package queue

import "fmt"

// Redis key pattern helpers
//
// Key pattern: muster:{instance_name}:{entity}:{id}
// Channel pattern: muster:{instance_name}:{event_type}_events

// ItemKey returns the Redis key for a work queue item.
// Pattern: muster:{instance_name}:execution_request:{item_id}
func ItemKey(instanceName, itemID string) string {
	return fmt.Sprintf("muster:%s:execution_request:%s", instanceName, itemID)
}

// ItemKeyPattern returns the SCAN pattern matching every item of an instance.
func ItemKeyPattern(instanceName string) string {
	return fmt.Sprintf("muster:%s:execution_request:*", instanceName)
}

// ReadyIndexKey returns the sorted set of pending items scored by scheduled time.
// Pattern: muster:{instance_name}:queue:ready
func ReadyIndexKey(instanceName string) string {
	return fmt.Sprintf("muster:%s:queue:ready", instanceName)
}

// HandlingIndexKey returns the sorted set of claimed items scored by claim time.
// Pattern: muster:{instance_name}:queue:handling
func HandlingIndexKey(instanceName string) string {
	return fmt.Sprintf("muster:%s:queue:handling", instanceName)
}

// QueueEventsChannel returns the Pub/Sub channel carrying items that became pending.
// Pattern: muster:{instance_name}:queue_events
func QueueEventsChannel(instanceName string) string {
	return fmt.Sprintf("muster:%s:queue_events", instanceName)
}
