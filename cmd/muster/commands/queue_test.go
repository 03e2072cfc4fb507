package commands

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dyluth/muster/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueCommands_Lifecycle(t *testing.T) {
	flags, q, _ := startStore(t)
	ctx := context.Background()

	stdout, _, err := execute(t, withFlags(flags, "queue", "enqueue", "--execution", "exec-1", "--liveaction", "la-1", "--delay", "5s")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Queued ")

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	item := items[0]
	assert.Equal(t, "la-1", item.LiveActionID)
	assert.Equal(t, int64(5000), item.DelayMs)
	short := item.ID[:8]

	t.Run("list shows the item", func(t *testing.T) {
		stdout, _, err := execute(t, withFlags(flags, "queue", "list")...)
		require.NoError(t, err)
		assert.Contains(t, stdout, "Queue for instance 'test-instance'")
		assert.Contains(t, stdout, "la-1")
		assert.Contains(t, stdout, "1 item found")
	})

	t.Run("ready filter excludes delayed item", func(t *testing.T) {
		stdout, _, err := execute(t, withFlags(flags, "queue", "list", "--ready")...)
		require.NoError(t, err)
		assert.Contains(t, stdout, "No queued items")
	})

	t.Run("get by short ID", func(t *testing.T) {
		stdout, _, err := execute(t, withFlags(flags, "queue", "get", short)...)
		require.NoError(t, err)

		var got queue.WorkQueueItem
		require.NoError(t, json.Unmarshal([]byte(stdout), &got))
		assert.Equal(t, item.ID, got.ID)
		assert.Equal(t, "execution_request:"+item.ID, got.UID)
	})

	t.Run("claim then claim again", func(t *testing.T) {
		stdout, _, err := execute(t, withFlags(flags, "queue", "claim", short)...)
		require.NoError(t, err)
		assert.Contains(t, stdout, "Claimed "+item.ID+" (revision 2)")

		_, stderr, err := execute(t, withFlags(flags, "queue", "claim", short)...)
		require.Error(t, err)
		assert.Equal(t, "claim lost", err.Error())
		assert.Contains(t, stderr, "already being handled")
	})

	t.Run("stats", func(t *testing.T) {
		stdout, _, err := execute(t, withFlags(flags, "queue", "stats")...)
		require.NoError(t, err)
		assert.Contains(t, stdout, "pending:  0")
		assert.Contains(t, stdout, "handling: 1")
	})

	t.Run("release", func(t *testing.T) {
		stdout, _, err := execute(t, withFlags(flags, "queue", "release", short)...)
		require.NoError(t, err)
		assert.Contains(t, stdout, "Released "+item.ID)

		stdout, _, err = execute(t, withFlags(flags, "queue", "release", short)...)
		require.NoError(t, err)
		assert.Contains(t, stdout, "already pending")
	})

	t.Run("reschedule", func(t *testing.T) {
		before, err := q.Get(ctx, item.ID)
		require.NoError(t, err)

		_, _, err = execute(t, withFlags(flags, "queue", "reschedule", short, "--at", "+1h")...)
		require.NoError(t, err)

		after, err := q.Get(ctx, item.ID)
		require.NoError(t, err)
		assert.Greater(t, after.ScheduledStartMs, before.ScheduledStartMs)
		assert.Equal(t, before.OriginalStartMs, after.OriginalStartMs)
	})

	t.Run("delete", func(t *testing.T) {
		stdout, _, err := execute(t, withFlags(flags, "queue", "delete", short)...)
		require.NoError(t, err)
		assert.Contains(t, stdout, "Deleted "+item.ID)

		_, _, err = execute(t, withFlags(flags, "queue", "get", short)...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestQueueList_JSONL(t *testing.T) {
	flags, q, _ := startStore(t)
	ctx := context.Background()

	for _, la := range []string{"la-1", "la-2"} {
		_, err := q.Enqueue(ctx, queue.EnqueueRequest{ExecutionID: "exec", LiveActionID: la})
		require.NoError(t, err)
	}

	stdout, _, err := execute(t, withFlags(flags, "queue", "list", "-o", "jsonl", "--ready")...)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var item queue.WorkQueueItem
		require.NoError(t, json.Unmarshal([]byte(line), &item))
		assert.False(t, item.Handling)
	}
}

func TestQueueCommands_InvalidInput(t *testing.T) {
	flags, _, _ := startStore(t)

	tests := []struct {
		name  string
		args  []string
		title string
	}{
		{"bad format", []string{"queue", "list", "-o", "xml"}, "invalid output format"},
		{"bad since", []string{"queue", "list", "--since", "yesterday"}, "invalid time filter"},
		{"negative delay", []string{"queue", "enqueue", "--execution", "e", "--liveaction", "l", "--delay", "-1s"}, "invalid delay"},
		{"short ID too short", []string{"queue", "get", "abc"}, "invalid item ID"},
		{"unknown item", []string{"queue", "claim", "ffffffff"}, "item with ID 'ffffffff' not found"},
		{"bad at", []string{"queue", "reschedule", "ffffffff", "--at", "soon"}, "invalid --at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, withFlags(flags, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.title, err.Error())
		})
	}

	t.Run("enqueue requires liveaction", func(t *testing.T) {
		_, _, err := execute(t, withFlags(flags, "queue", "enqueue", "--execution", "e")...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "liveaction")
	})
}

func TestQueueSweep(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	flags, q, _ := startStore(t, queue.WithClock(func() time.Time { return past }))
	ctx := context.Background()

	item, err := q.Enqueue(ctx, queue.EnqueueRequest{ExecutionID: "exec", LiveActionID: "la"})
	require.NoError(t, err)
	ok, err := q.Claim(ctx, item)
	require.NoError(t, err)
	require.True(t, ok)

	stdout, _, err := execute(t, withFlags(flags, "queue", "sweep", "--stale-after", "2h")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Released 0 stale claims")

	stdout, _, err = execute(t, withFlags(flags, "queue", "sweep", "--stale-after", "10m")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Released 1 stale claims")

	got, err := q.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, got.Handling)
}

func TestQueueCommands_RedisUnreachable(t *testing.T) {
	isolateEnv(t)

	_, stderr, err := execute(t, "queue", "stats", "--name", testInstance, "--redis-url", "redis://127.0.0.1:1")
	require.Error(t, err)
	assert.Equal(t, "Redis not accessible", err.Error())
	assert.Contains(t, stderr, "redis://127.0.0.1:1")

	_, _, err = execute(t, "queue", "stats", "--redis-url", "not a url")
	require.Error(t, err)
	assert.Equal(t, "invalid Redis URL", err.Error())
}

func TestQueueEnqueue_WaitTimesOutWithoutScheduler(t *testing.T) {
	flags, q, _ := startStore(t)

	stdout, _, err := execute(t, withFlags(flags, "queue", "enqueue", "--execution", "e", "--liveaction", "l", "--wait", "50ms")...)
	require.Error(t, err)
	assert.Equal(t, "item not dispatched", err.Error())
	assert.Contains(t, stdout, "Queued ")

	items, err := q.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1, "the item stays queued")
}

func TestQueueWatch_InvalidFormat(t *testing.T) {
	flags, _, _ := startStore(t)

	_, _, err := execute(t, withFlags(flags, "queue", "watch", "-o", "yaml")...)
	require.Error(t, err)
	assert.Equal(t, "invalid output format", err.Error())
}
