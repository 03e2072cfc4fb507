package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestLedger creates a ledger connected to a miniredis instance
func setupTestLedger(t *testing.T) (*Ledger, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	l := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { l.Close() })

	return l, mr
}

func TestCreate(t *testing.T) {
	l, mr := setupTestLedger(t)
	ctx := context.Background()

	t.Run("writes document at revision 1", func(t *testing.T) {
		rev, err := l.Create(ctx, "doc:1", Document{"name": "a"}, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rev)

		assert.Equal(t, "a", mr.HGet("doc:1", "name"))
		assert.Equal(t, "1", mr.HGet("doc:1", RevisionField))
	})

	t.Run("rejects existing key as constraint violation", func(t *testing.T) {
		_, err := l.Create(ctx, "doc:1", Document{"name": "b"}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrExists)
		assert.False(t, IsTransient(err))
		assert.Equal(t, "a", mr.HGet("doc:1", "name"))
	})

	t.Run("runs index commands in the same transaction", func(t *testing.T) {
		_, err := l.Create(ctx, "doc:2", Document{"name": "c"}, func(tx redis.Pipeliner) {
			tx.ZAdd(ctx, "index", redis.Z{Score: 10, Member: "doc:2"})
		})
		require.NoError(t, err)

		members, err := mr.ZMembers("index")
		require.NoError(t, err)
		assert.Equal(t, []string{"doc:2"}, members)
	})
}

func TestRead(t *testing.T) {
	l, _ := setupTestLedger(t)
	ctx := context.Background()

	_, err := l.Create(ctx, "doc:1", Document{"name": "a"}, nil)
	require.NoError(t, err)

	doc, rev, err := l.Read(ctx, "doc:1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)
	assert.Equal(t, "a", doc["name"])

	_, _, err = l.Read(ctx, "doc:missing")
	assert.True(t, IsNotFound(err))
}

func TestAdopt(t *testing.T) {
	l, mr := setupTestLedger(t)
	ctx := context.Background()

	mr.HSet("legacy:1", "name", "a")

	_, _, err := l.Read(ctx, "legacy:1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRevision)
	assert.False(t, IsTransient(err))

	adopted, err := l.Adopt(ctx, "legacy:1")
	require.NoError(t, err)
	assert.True(t, adopted)

	doc, rev, err := l.Read(ctx, "legacy:1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)
	assert.Equal(t, "a", doc["name"])

	t.Run("existing revision is kept", func(t *testing.T) {
		_, err := l.Create(ctx, "doc:1", Document{"name": "b"}, nil)
		require.NoError(t, err)
		mr.HSet("doc:1", RevisionField, "7")

		adopted, err := l.Adopt(ctx, "doc:1")
		require.NoError(t, err)
		assert.False(t, adopted)
		assert.Equal(t, "7", mr.HGet("doc:1", RevisionField))
	})

	t.Run("missing key is not created", func(t *testing.T) {
		adopted, err := l.Adopt(ctx, "doc:missing")
		require.NoError(t, err)
		assert.False(t, adopted)
		assert.False(t, mr.Exists("doc:missing"))
	})
}

func TestCompareAndSwap(t *testing.T) {
	l, mr := setupTestLedger(t)
	ctx := context.Background()

	_, err := l.Create(ctx, "doc:1", Document{"state": "pending", "note": "x"}, nil)
	require.NoError(t, err)

	t.Run("applies mutation and advances revision", func(t *testing.T) {
		ok, err := l.CompareAndSwap(ctx, "doc:1", 1, func(doc Document, tx redis.Pipeliner) error {
			doc["state"] = "claimed"
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ok)

		doc, rev, err := l.Read(ctx, "doc:1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), rev)
		assert.Equal(t, "claimed", doc["state"])
	})

	t.Run("stale revision is rejected without changes", func(t *testing.T) {
		ok, err := l.CompareAndSwap(ctx, "doc:1", 1, func(doc Document, tx redis.Pipeliner) error {
			doc["state"] = "stolen"
			return nil
		})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, "claimed", mr.HGet("doc:1", "state"))
		assert.Equal(t, "2", mr.HGet("doc:1", RevisionField))
	})

	t.Run("missing document returns false", func(t *testing.T) {
		ok, err := l.CompareAndSwap(ctx, "doc:none", 1, func(doc Document, tx redis.Pipeliner) error {
			return nil
		})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("removed fields are deleted", func(t *testing.T) {
		ok, err := l.CompareAndSwap(ctx, "doc:1", 2, func(doc Document, tx redis.Pipeliner) error {
			delete(doc, "note")
			return nil
		})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "", mr.HGet("doc:1", "note"))
		assert.Equal(t, "claimed", mr.HGet("doc:1", "state"))
	})

	t.Run("mutation error abandons the write", func(t *testing.T) {
		boom := errors.New("boom")
		ok, err := l.CompareAndSwap(ctx, "doc:1", 3, func(doc Document, tx redis.Pipeliner) error {
			doc["state"] = "never"
			return boom
		})
		assert.False(t, ok)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, "3", mr.HGet("doc:1", RevisionField))
		assert.Equal(t, "claimed", mr.HGet("doc:1", "state"))
	})
}

func TestCompareAndSwap_ConcurrentWritersExactlyOneWins(t *testing.T) {
	l, _ := setupTestLedger(t)
	ctx := context.Background()

	_, err := l.Create(ctx, "doc:race", Document{"owner": ""}, nil)
	require.NoError(t, err)

	const writers = 16
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ok, err := l.CompareAndSwap(ctx, "doc:race", 1, func(doc Document, tx redis.Pipeliner) error {
				doc["owner"] = string(rune('a' + id))
				return nil
			})
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)

	_, rev, err := l.Read(ctx, "doc:race")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev)
}

func TestDelete(t *testing.T) {
	l, mr := setupTestLedger(t)
	ctx := context.Background()

	_, err := l.Create(ctx, "doc:1", Document{"a": "b"}, func(tx redis.Pipeliner) {
		tx.ZAdd(ctx, "index", redis.Z{Score: 1, Member: "doc:1"})
	})
	require.NoError(t, err)

	ok, err := l.Delete(ctx, "doc:1", 5, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("doc:1"))

	ok, err = l.Delete(ctx, "doc:1", 1, func(tx redis.Pipeliner) {
		tx.ZRem(ctx, "index", "doc:1")
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("doc:1"))
	assert.False(t, mr.Exists("index"))

	ok, err = l.Delete(ctx, "doc:1", 1, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeys(t *testing.T) {
	l, _ := setupTestLedger(t)
	ctx := context.Background()

	for _, k := range []string{"ns:a:1", "ns:a:2", "ns:b:1"} {
		_, err := l.Create(ctx, k, Document{"k": k}, nil)
		require.NoError(t, err)
	}

	keys, err := l.Keys(ctx, "ns:a:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ns:a:1", "ns:a:2"}, keys)
}

func TestPersistenceError(t *testing.T) {
	err := &PersistenceError{Op: "read", Key: "k", Err: redis.ErrClosed}
	assert.True(t, err.Transient())
	assert.ErrorIs(t, err, redis.ErrClosed)
	assert.Contains(t, err.Error(), "ledger read k")
}
