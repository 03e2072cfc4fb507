package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/dyluth/muster/pkg/queue"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_ResetsStaleClaims(t *testing.T) {
	mr := startMiniredis(t)
	q := setupTestQueue(t, mr)
	ctx := context.Background()

	item, err := q.Enqueue(ctx, queue.EnqueueRequest{ExecutionID: "e1", LiveActionID: "l1"})
	require.NoError(t, err)
	ok, err := q.Claim(ctx, item)
	require.NoError(t, err)
	require.True(t, ok)

	metrics := NewMetrics()
	s := NewSweeper(q, 5*time.Minute, time.Minute, metrics)

	t.Run("fresh claims are left alone", func(t *testing.T) {
		s.now = func() time.Time { return baseTime.Add(time.Minute) }
		n, err := s.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("stale claims are released", func(t *testing.T) {
		s.now = func() time.Time { return baseTime.Add(10 * time.Minute) }
		n, err := s.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ItemsSwept))

		ready, err := q.ListReady(ctx, baseTime)
		require.NoError(t, err)
		require.Len(t, ready, 1)
		assert.Equal(t, item.ID, ready[0].ID)
	})
}

func TestSweep_SkipsItemsThatMovedOn(t *testing.T) {
	mr := startMiniredis(t)
	q := setupTestQueue(t, mr)
	ctx := context.Background()

	item, err := q.Enqueue(ctx, queue.EnqueueRequest{ExecutionID: "e1", LiveActionID: "l1"})
	require.NoError(t, err)
	ok, err := q.Claim(ctx, item)
	require.NoError(t, err)
	require.True(t, ok)

	deleted, err := q.Delete(ctx, item)
	require.NoError(t, err)
	require.True(t, deleted)

	s := NewSweeper(q, time.Minute, time.Minute, nil)
	s.now = func() time.Time { return baseTime.Add(time.Hour) }
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
