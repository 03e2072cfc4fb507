// Package queue implements the execution scheduling queue: a persisted set of
// "ready to schedule" work items that many scheduler workers poll concurrently,
// each item claimed by exactly one of them.
//
// # Lifecycle
//
// An item is created Pending (handling=false) by Enqueue. Workers call
// ListReady to get a point-in-time snapshot of due, unclaimed items ordered by
// scheduled time, then Claim individual items. Claim is a compare-and-swap on
// the item's revision: exactly one worker transitions a given revision to
// Claimed (handling=true); every other attempt returns false immediately. The
// winner dispatches the execution and calls Delete. A worker that cannot
// dispatch calls Release to return the item to Pending.
//
// A worker that crashes after claiming leaves the item Claimed forever. The
// liveness sweep (ListStale + Release) is what recovers those items; without it
// crashed claims starve.
//
// # Redis Schema
//
// All keys are namespaced by instance name:
//
//	Items:          muster:{instance}:execution_request:{id}   (hash)
//	Ready index:    muster:{instance}:queue:ready              (zset, score = scheduled ms)
//	Handling index: muster:{instance}:queue:handling           (zset, score = claim ms)
//	Events:         muster:{instance}:queue_events             (pub/sub)
//
// Index entries are written in the same MULTI/EXEC as the item itself, so the
// ready index never lists a claimed item once the claim has committed.
package queue
