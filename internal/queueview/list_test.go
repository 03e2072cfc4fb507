package queueview

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/muster/pkg/ledger"
	"github.com/dyluth/muster/pkg/queue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestQueue(t *testing.T) *queue.Queue {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	l := ledger.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { l.Close() })

	q, err := queue.New(l, "test-instance", queue.WithClock(func() time.Time { return baseTime }))
	require.NoError(t, err)
	return q
}

func seed(t *testing.T, q *queue.Queue) (ready, delayed, claimed *queue.WorkQueueItem) {
	ctx := context.Background()
	var err error

	ready, err = q.Enqueue(ctx, queue.EnqueueRequest{ExecutionID: "e1", LiveActionID: "live-ready"})
	require.NoError(t, err)
	delayed, err = q.Enqueue(ctx, queue.EnqueueRequest{ExecutionID: "e2", LiveActionID: "live-delayed", Delay: 10 * time.Minute})
	require.NoError(t, err)
	claimed, err = q.Enqueue(ctx, queue.EnqueueRequest{ExecutionID: "e3", LiveActionID: "live-claimed", Delay: time.Second})
	require.NoError(t, err)

	ok, err := q.Claim(ctx, claimed)
	require.NoError(t, err)
	require.True(t, ok)
	return ready, delayed, claimed
}

func TestListItems_Table(t *testing.T) {
	q := setupTestQueue(t)
	seed(t, q)
	now := baseTime.Add(5 * time.Second)

	var buf bytes.Buffer
	err := ListItems(context.Background(), q, now, OutputFormatDefault, nil, &buf)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Queue for instance 'test-instance'")
	assert.Contains(t, out, "live-ready")
	assert.Contains(t, out, "live-delayed")
	assert.Contains(t, out, "claimed")
	assert.Contains(t, out, "in 9m")
	assert.Contains(t, out, "3 items found")
}

func TestListItems_Empty(t *testing.T) {
	q := setupTestQueue(t)

	var buf bytes.Buffer
	require.NoError(t, ListItems(context.Background(), q, baseTime, OutputFormatDefault, nil, &buf))
	assert.Equal(t, "No queued items for instance 'test-instance'\n", buf.String())
}

func TestListItems_JSONLWithFilters(t *testing.T) {
	q := setupTestQueue(t)
	ready, delayed, _ := seed(t, q)
	now := baseTime.Add(5 * time.Second)

	tests := []struct {
		name    string
		filters *FilterCriteria
		want    []string
	}{
		{"ready only", &FilterCriteria{ReadyOnly: true}, []string{ready.ID}},
		{"scheduled after", &FilterCriteria{SinceTimestampMs: baseTime.Add(time.Minute).UnixMilli()}, []string{delayed.ID}},
		{"scheduled before", &FilterCriteria{UntilTimestampMs: baseTime.UnixMilli()}, []string{ready.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, ListItems(context.Background(), q, now, OutputFormatJSONL, tt.filters, &buf))

			var got []string
			scanner := bufio.NewScanner(&buf)
			for scanner.Scan() {
				var item queue.WorkQueueItem
				require.NoError(t, json.Unmarshal(scanner.Bytes(), &item))
				got = append(got, item.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListItems_UnknownFormat(t *testing.T) {
	q := setupTestQueue(t)
	err := ListItems(context.Background(), q, baseTime, OutputFormat("xml"), nil, &bytes.Buffer{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "abcdefgh", formatID("abcdefgh-1234"))
	assert.Equal(t, "in 30s", formatDue(baseTime.Add(30*time.Second).UnixMilli(), baseTime))
	assert.Equal(t, "2h ago", formatDue(baseTime.Add(-2*time.Hour).UnixMilli(), baseTime))
	assert.Equal(t, "5s", formatDelay(5000))
	assert.Equal(t, "-", formatDelay(0))
}
