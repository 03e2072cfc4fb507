package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dyluth/muster/pkg/ledger"
	"github.com/dyluth/muster/pkg/uid"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/dyluth/muster/pkg/queue")

// errNotClaimable aborts a claim mutation when the item is already handled.
var errNotClaimable = errors.New("item is already being handled")

// Queue provides instance-scoped claim queue operations.
// All keys and channels are automatically namespaced with the instance name.
// The queue is safe for concurrent use; cross-process safety comes from the
// ledger's compare-and-swap.
type Queue struct {
	ledger       *ledger.Ledger
	instanceName string
	now          func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the time source used for enqueue and claim timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates a queue for the specified instance.
// Returns an error if instanceName is empty.
func New(l *ledger.Ledger, instanceName string, opts ...Option) (*Queue, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	q := &Queue{
		ledger:       l,
		instanceName: instanceName,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// InstanceName returns the namespace this queue operates in.
func (q *Queue) InstanceName() string {
	return q.instanceName
}

// Enqueue creates a pending item for an execution.
// The item is due at now + Delay. Publishes the item on the queue events
// channel after the write commits.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (*WorkQueueItem, error) {
	ctx, span := tracer.Start(ctx, "queue.Enqueue", trace.WithAttributes(
		attribute.String("liveaction_id", req.LiveActionID),
		attribute.String("action_execution_id", req.ExecutionID),
	))
	defer span.End()

	if req.Delay < 0 {
		return nil, fmt.Errorf("invalid delay: must be >= 0, got %s", req.Delay)
	}

	now := q.now().UnixMilli()
	item := &WorkQueueItem{
		ID:               uuid.New().String(),
		LiveActionID:     req.LiveActionID,
		ExecutionID:      req.ExecutionID,
		OriginalStartMs:  now,
		ScheduledStartMs: now + req.Delay.Milliseconds(),
		DelayMs:          req.Delay.Milliseconds(),
	}

	itemUID, err := uid.UIDOf(item)
	if err != nil {
		return nil, err
	}
	item.UID = itemUID

	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("invalid item: %w", err)
	}

	rev, err := q.ledger.Create(ctx, ItemKey(q.instanceName, item.ID), ItemToHash(item), func(tx redis.Pipeliner) {
		tx.ZAdd(ctx, ReadyIndexKey(q.instanceName), redis.Z{Score: float64(item.ScheduledStartMs), Member: item.ID})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, fmt.Errorf("failed to enqueue item: %w", err)
	}
	item.Revision = rev
	span.SetAttributes(attribute.String("item_id", item.ID))

	if err := q.publish(ctx, item); err != nil {
		return item, err
	}

	return item, nil
}

// Get retrieves an item by ID.
// Returns (nil, redis.Nil) if the item doesn't exist.
// Use ledger.IsNotFound() to check for not-found errors.
func (q *Queue) Get(ctx context.Context, itemID string) (*WorkQueueItem, error) {
	doc, _, err := q.ledger.Read(ctx, ItemKey(q.instanceName, itemID))
	if err != nil {
		return nil, err
	}

	item, err := HashToItem(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize item: %w", err)
	}
	return item, nil
}

// ListReady returns every pending item due at or before now, earliest first
// (ties broken by ID). The result is a snapshot: an item may be claimed or
// deleted by another worker before the caller acts on it.
func (q *Queue) ListReady(ctx context.Context, now time.Time) ([]*WorkQueueItem, error) {
	ids, err := q.ledger.RedisClient().ZRangeByScore(ctx, ReadyIndexKey(q.instanceName), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "list-ready", Key: ReadyIndexKey(q.instanceName), Err: err}
	}

	items, err := q.getMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	ready := items[:0]
	for _, item := range items {
		if item.IsDue(now) {
			ready = append(ready, item)
		}
	}
	sortBySchedule(ready)
	return ready, nil
}

// Claim attempts to take exclusive ownership of item at the revision the
// caller read. Returns true only for the single caller whose compare-and-swap
// landed. Returns false if another worker claimed it first, if the item was
// already claimed when read, or if it no longer exists. A false result is
// routine under concurrency: skip the item for this pass.
//
// On success item is updated in place to reflect the new state and revision.
func (q *Queue) Claim(ctx context.Context, item *WorkQueueItem) (bool, error) {
	ctx, span := tracer.Start(ctx, "queue.Claim", trace.WithAttributes(
		attribute.String("item_id", item.ID),
		attribute.Int64("revision", item.Revision),
	))
	defer span.End()

	claimedAt := q.now().UnixMilli()
	ok, err := q.ledger.CompareAndSwap(ctx, ItemKey(q.instanceName, item.ID), item.Revision,
		func(doc ledger.Document, tx redis.Pipeliner) error {
			if doc[FieldHandling] == "true" {
				return errNotClaimable
			}
			doc[FieldHandling] = "true"
			doc[FieldHandlingSince] = strconv.FormatInt(claimedAt, 10)
			tx.ZRem(ctx, ReadyIndexKey(q.instanceName), item.ID)
			tx.ZAdd(ctx, HandlingIndexKey(q.instanceName), redis.Z{Score: float64(claimedAt), Member: item.ID})
			return nil
		})
	if errors.Is(err, errNotClaimable) {
		span.SetAttributes(attribute.Bool("claimed", false))
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return false, fmt.Errorf("failed to claim item %s: %w", item.ID, err)
	}

	span.SetAttributes(attribute.Bool("claimed", ok))
	if ok {
		item.Handling = true
		item.HandlingSinceMs = claimedAt
		item.Revision++
	}
	return ok, nil
}

// Reschedule moves the item's scheduled start to at. The original start is
// never touched. Returns false on a revision conflict; the caller must re-read
// the item and retry.
func (q *Queue) Reschedule(ctx context.Context, item *WorkQueueItem, at time.Time) (bool, error) {
	ctx, span := tracer.Start(ctx, "queue.Reschedule", trace.WithAttributes(
		attribute.String("item_id", item.ID),
		attribute.Int64("revision", item.Revision),
	))
	defer span.End()

	scheduled := at.UnixMilli()
	ok, err := q.ledger.CompareAndSwap(ctx, ItemKey(q.instanceName, item.ID), item.Revision,
		func(doc ledger.Document, tx redis.Pipeliner) error {
			doc[FieldScheduledStart] = strconv.FormatInt(scheduled, 10)
			if doc[FieldHandling] != "true" {
				tx.ZAdd(ctx, ReadyIndexKey(q.instanceName), redis.Z{Score: float64(scheduled), Member: item.ID})
			}
			return nil
		})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reschedule failed")
		return false, fmt.Errorf("failed to reschedule item %s: %w", item.ID, err)
	}

	if ok {
		item.ScheduledStartMs = scheduled
		item.Revision++
	}
	return ok, nil
}

// Release returns a claimed item to the pending state so it is listed again.
// Used when dispatch fails and by the liveness sweep for abandoned claims.
// Publishes the item on the queue events channel so idle workers wake up.
func (q *Queue) Release(ctx context.Context, item *WorkQueueItem) (bool, error) {
	var scheduled int64
	ok, err := q.ledger.CompareAndSwap(ctx, ItemKey(q.instanceName, item.ID), item.Revision,
		func(doc ledger.Document, tx redis.Pipeliner) error {
			s, err := strconv.ParseInt(doc[FieldScheduledStart], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid %s field: %w", FieldScheduledStart, err)
			}
			scheduled = s
			doc[FieldHandling] = "false"
			delete(doc, FieldHandlingSince)
			tx.ZRem(ctx, HandlingIndexKey(q.instanceName), item.ID)
			tx.ZAdd(ctx, ReadyIndexKey(q.instanceName), redis.Z{Score: float64(scheduled), Member: item.ID})
			return nil
		})
	if err != nil {
		return false, fmt.Errorf("failed to release item %s: %w", item.ID, err)
	}
	if !ok {
		return false, nil
	}

	item.Handling = false
	item.HandlingSinceMs = 0
	item.ScheduledStartMs = scheduled
	item.Revision++

	if err := q.publish(ctx, item); err != nil {
		return true, err
	}
	return true, nil
}

// Delete removes the item once its execution has been dispatched.
// Conditional on the caller's revision; returns false if the item moved on or is gone.
func (q *Queue) Delete(ctx context.Context, item *WorkQueueItem) (bool, error) {
	ok, err := q.ledger.Delete(ctx, ItemKey(q.instanceName, item.ID), item.Revision, func(tx redis.Pipeliner) {
		tx.ZRem(ctx, ReadyIndexKey(q.instanceName), item.ID)
		tx.ZRem(ctx, HandlingIndexKey(q.instanceName), item.ID)
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete item %s: %w", item.ID, err)
	}
	return ok, nil
}

// ListStale returns claimed items whose claim landed before olderThan,
// oldest claim first. These are candidates for the liveness sweep.
func (q *Queue) ListStale(ctx context.Context, olderThan time.Time) ([]*WorkQueueItem, error) {
	ids, err := q.ledger.RedisClient().ZRangeByScore(ctx, HandlingIndexKey(q.instanceName), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(olderThan.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, &ledger.PersistenceError{Op: "list-stale", Key: HandlingIndexKey(q.instanceName), Err: err}
	}

	items, err := q.getMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	stale := items[:0]
	for _, item := range items {
		if item.Handling && item.HandlingSinceMs < olderThan.UnixMilli() {
			stale = append(stale, item)
		}
	}
	sort.SliceStable(stale, func(i, j int) bool {
		return stale[i].HandlingSinceMs < stale[j].HandlingSinceMs
	})
	return stale, nil
}

// List returns every item of the instance, pending or claimed, ordered by
// scheduled time. Uses SCAN, so it is meant for inspection rather than the hot path.
func (q *Queue) List(ctx context.Context) ([]*WorkQueueItem, error) {
	keys, err := q.ledger.Keys(ctx, ItemKeyPattern(q.instanceName))
	if err != nil {
		return nil, fmt.Errorf("failed to scan items: %w", err)
	}

	prefix := ItemKey(q.instanceName, "")
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, key[len(prefix):])
	}

	items, err := q.getMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	sortBySchedule(items)
	return items, nil
}

// ScanIDs returns the IDs of every item whose ID starts with prefix.
func (q *Queue) ScanIDs(ctx context.Context, prefix string) ([]string, error) {
	keys, err := q.ledger.Keys(ctx, ItemKey(q.instanceName, prefix+"*"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan items: %w", err)
	}

	keyPrefix := ItemKey(q.instanceName, "")
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, key[len(keyPrefix):])
	}
	sort.Strings(ids)
	return ids, nil
}

// Stats returns the current queue depth as seen by the indexes.
func (q *Queue) Stats(ctx context.Context, now time.Time) (Stats, error) {
	rdb := q.ledger.RedisClient()
	pipe := rdb.Pipeline()
	pending := pipe.ZCard(ctx, ReadyIndexKey(q.instanceName))
	due := pipe.ZCount(ctx, ReadyIndexKey(q.instanceName), "-inf", strconv.FormatInt(now.UnixMilli(), 10))
	handling := pipe.ZCard(ctx, HandlingIndexKey(q.instanceName))
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, &ledger.PersistenceError{Op: "stats", Key: ReadyIndexKey(q.instanceName), Err: err}
	}

	return Stats{
		Pending:  pending.Val(),
		Due:      due.Val(),
		Handling: handling.Val(),
	}, nil
}

// getMany reads items by ID, skipping ones deleted since the index was read.
func (q *Queue) getMany(ctx context.Context, ids []string) ([]*WorkQueueItem, error) {
	items := make([]*WorkQueueItem, 0, len(ids))
	for _, id := range ids {
		item, err := q.Get(ctx, id)
		if err != nil {
			if ledger.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// publish announces a pending item to subscribed workers.
func (q *Queue) publish(ctx context.Context, item *WorkQueueItem) error {
	itemJSON, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item for event: %w", err)
	}

	channel := QueueEventsChannel(q.instanceName)
	if err := q.ledger.RedisClient().Publish(ctx, channel, itemJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish queue event: %w", err)
	}
	return nil
}

func sortBySchedule(items []*WorkQueueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ScheduledStartMs != items[j].ScheduledStartMs {
			return items[i].ScheduledStartMs < items[j].ScheduledStartMs
		}
		return items[i].ID < items[j].ID
	})
}
