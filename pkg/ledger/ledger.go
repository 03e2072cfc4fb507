package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Mutation edits doc in place. It may queue additional commands on tx; they
// execute in the same MULTI/EXEC as the document write. Returning an error
// abandons the write.
type Mutation func(doc Document, tx redis.Pipeliner) error

// IndexFunc queues secondary index commands on a transaction.
type IndexFunc func(tx redis.Pipeliner)

// Ledger provides revisioned document storage on Redis.
// It is safe for concurrent use from multiple goroutines and processes.
type Ledger struct {
	rdb *redis.Client
}

// New wraps an existing Redis client.
func New(rdb *redis.Client) *Ledger {
	return &Ledger{rdb: rdb}
}

// RedisClient exposes the underlying client for index reads.
func (l *Ledger) RedisClient() *redis.Client {
	return l.rdb
}

// Create stores doc at key with revision 1. Fails with a constraint
// PersistenceError wrapping ErrExists if the key is already present.
func (l *Ledger) Create(ctx context.Context, key string, doc Document, index IndexFunc) (int64, error) {
	const rev int64 = 1

	err := l.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrExists
		}

		write := doc.Clone()
		write[RevisionField] = strconv.FormatInt(rev, 10)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, write.hashArgs())
			if index != nil {
				index(pipe)
			}
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return rev, nil
	case errors.Is(err, ErrExists), errors.Is(err, redis.TxFailedErr):
		return 0, &PersistenceError{Op: "create", Key: key, Err: ErrExists, Constraint: true}
	default:
		return 0, &PersistenceError{Op: "create", Key: key, Err: err}
	}
}

// Adopt gives a hash written outside the ledger the initial revision that
// Create would have assigned. Returns false without changes when the key is
// missing or already carries a revision.
func (l *Ledger) Adopt(ctx context.Context, key string) (bool, error) {
	var adopted bool

	err := l.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		var setnx *redis.BoolCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			setnx = pipe.HSetNX(ctx, key, RevisionField, "1")
			return nil
		})
		if err != nil {
			return err
		}
		adopted = setnx.Val()
		return nil
	}, key)

	switch {
	case err == nil:
		return adopted, nil
	case errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, &PersistenceError{Op: "adopt", Key: key, Err: err}
	}
}

// Read returns the document at key and its current revision.
// Returns (nil, 0, redis.Nil) if the document doesn't exist.
func (l *Ledger) Read(ctx context.Context, key string) (Document, int64, error) {
	raw, err := l.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, 0, &PersistenceError{Op: "read", Key: key, Err: err}
	}
	if len(raw) == 0 {
		return nil, 0, redis.Nil
	}

	doc := Document(raw)
	rev, err := doc.Revision()
	if err != nil {
		return nil, 0, &PersistenceError{Op: "read", Key: key, Err: err, Constraint: true}
	}
	return doc, rev, nil
}

// CompareAndSwap applies mutate to the document at key and persists it with
// the next revision, but only if the stored revision still equals expected.
//
// Returns (false, nil) when the precondition fails: the revision moved on, the
// document no longer exists, or another writer touched it mid-transaction.
// Never retries internally.
func (l *Ledger) CompareAndSwap(ctx context.Context, key string, expected int64, mutate Mutation) (bool, error) {
	var mutationErr error

	err := l.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(raw) == 0 {
			return errConflict
		}

		current := Document(raw)
		rev, err := current.Revision()
		if err != nil {
			return err
		}
		if rev != expected {
			return errConflict
		}

		next := current.Clone()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := mutate(next, pipe); err != nil {
				mutationErr = err
				return err
			}
			next[RevisionField] = strconv.FormatInt(rev+1, 10)

			var removed []string
			for field := range current {
				if _, ok := next[field]; !ok {
					removed = append(removed, field)
				}
			}
			if len(removed) > 0 {
				pipe.HDel(ctx, key, removed...)
			}
			pipe.HSet(ctx, key, next.hashArgs())
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return true, nil
	case mutationErr != nil:
		return false, fmt.Errorf("mutation rejected: %w", mutationErr)
	case errors.Is(err, errConflict), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, &PersistenceError{Op: "compare-and-swap", Key: key, Err: err}
	}
}

// Delete removes the document at key if its revision still equals expected.
// Index commands run in the same transaction. Same result semantics as CompareAndSwap.
func (l *Ledger) Delete(ctx context.Context, key string, expected int64, index IndexFunc) (bool, error) {
	err := l.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, RevisionField).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return errConflict
			}
			return err
		}
		rev, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s field: %w", RevisionField, err)
		}
		if rev != expected {
			return errConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if index != nil {
				index(pipe)
			}
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errConflict), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, &PersistenceError{Op: "delete", Key: key, Err: err}
	}
}

// Keys returns every key matching pattern.
// Uses SCAN to iterate without blocking the server.
func (l *Ledger) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := l.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, &PersistenceError{Op: "scan", Key: pattern, Err: err}
	}
	return keys, nil
}

// Ping verifies Redis connectivity.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (l *Ledger) Close() error {
	return l.rdb.Close()
}
