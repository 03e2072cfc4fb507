package resolver

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/muster/pkg/ledger"
	"github.com/dyluth/muster/pkg/queue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	l := ledger.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { l.Close() })

	q, err := queue.New(l, "test-instance")
	require.NoError(t, err)
	return q
}

func TestResolveItemID(t *testing.T) {
	ctx := context.Background()
	q := setupTestQueue(t)

	item, err := q.Enqueue(ctx, queue.EnqueueRequest{ExecutionID: "exec-1", LiveActionID: "la-1"})
	require.NoError(t, err)

	t.Run("full UUID", func(t *testing.T) {
		id, err := ResolveItemID(ctx, q, item.ID)
		require.NoError(t, err)
		assert.Equal(t, item.ID, id)
	})

	t.Run("short prefix", func(t *testing.T) {
		id, err := ResolveItemID(ctx, q, item.ID[:8])
		require.NoError(t, err)
		assert.Equal(t, item.ID, id)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := ResolveItemID(ctx, q, item.ID[:3])
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 6 characters")
	})

	t.Run("unknown full UUID", func(t *testing.T) {
		_, err := ResolveItemID(ctx, q, "00000000-0000-4000-8000-000000000000")
		assert.True(t, IsNotFoundError(err))
	})

	t.Run("unknown prefix", func(t *testing.T) {
		_, err := ResolveItemID(ctx, q, "zzzzzzzz")
		assert.True(t, IsNotFoundError(err))
	})
}

func TestFormatAmbiguousError(t *testing.T) {
	matches := make([]string, 12)
	for i := range matches {
		matches[i] = fmt.Sprintf("abcdef-%02d", i)
	}
	msg := FormatAmbiguousError(&AmbiguousError{ShortID: "abcdef", Matches: matches})

	assert.Contains(t, msg, "abcdef-00")
	assert.Contains(t, msg, "abcdef-09")
	assert.NotContains(t, msg, "abcdef-10")
	assert.Contains(t, msg, "...and 2 more")
	assert.True(t, strings.HasSuffix(msg, "uniquely identify the item."))

	assert.True(t, IsAmbiguousError(&AmbiguousError{}))
	assert.False(t, IsAmbiguousError(&NotFoundError{}))
}
