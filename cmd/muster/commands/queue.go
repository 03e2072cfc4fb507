package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/muster/internal/printer"
	"github.com/dyluth/muster/internal/queueview"
	"github.com/dyluth/muster/internal/resolver"
	"github.com/dyluth/muster/internal/scheduler"
	"github.com/dyluth/muster/internal/timespec"
	"github.com/dyluth/muster/internal/watch"
	"github.com/dyluth/muster/pkg/queue"
	"github.com/spf13/cobra"
)

var (
	queueOutputFormat string
	queueSince        string
	queueUntil        string
	queueReadyOnly    bool

	enqueueExecutionID  string
	enqueueLiveActionID string
	enqueueDelay        string
	enqueueWait         time.Duration

	rescheduleAt string

	sweepStaleAfter time.Duration

	watchOutputFormat string
)

// now is the clock used for due times and time filters.
var now = time.Now

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and operate the execution claim queue",
	Long: `Inspect and operate the execution claim queue.

Every item ID argument accepts a short prefix of at least 6 characters.

Examples:
  # Show pending and claimed items
  muster queue list

  # Items a worker could claim right now, as JSONL
  muster queue list --ready -o jsonl

  # Schedule an execution five seconds from now
  muster queue enqueue --execution 6401f9... --liveaction 6401fa... --delay 5s

  # Return abandoned claims to the queue
  muster queue sweep --stale-after 10m`,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued items ordered by scheduled time",
	Args:  cobra.NoArgs,
	RunE:  runQueueList,
}

var queueGetCmd = &cobra.Command{
	Use:   "get ITEM_ID",
	Short: "Show one item as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueGet,
}

var queueEnqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue an execution for scheduling",
	Args:  cobra.NoArgs,
	RunE:  runQueueEnqueue,
}

var queueClaimCmd = &cobra.Command{
	Use:   "claim ITEM_ID",
	Short: "Claim an item, as a worker would",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueClaim,
}

var queueReleaseCmd = &cobra.Command{
	Use:   "release ITEM_ID",
	Short: "Return a claimed item to pending",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueRelease,
}

var queueRescheduleCmd = &cobra.Command{
	Use:   "reschedule ITEM_ID",
	Short: "Move an item's scheduled start",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueReschedule,
}

var queueDeleteCmd = &cobra.Command{
	Use:   "delete ITEM_ID",
	Short: "Remove an item from the queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueDelete,
}

var queueSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Release claims older than --stale-after",
	Args:  cobra.NoArgs,
	RunE:  runQueueSweep,
}

var queueWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream items as they become pending",
	Long: `Stream items as they are enqueued or released, until interrupted.

Events are best-effort: a watcher that falls behind can miss some.`,
	Args: cobra.NoArgs,
	RunE: runQueueWatch,
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue depth",
	Args:  cobra.NoArgs,
	RunE:  runQueueStats,
}

func init() {
	queueListCmd.Flags().StringVarP(&queueOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	queueListCmd.Flags().StringVar(&queueSince, "since", "", "Only items scheduled after time (duration or RFC3339)")
	queueListCmd.Flags().StringVar(&queueUntil, "until", "", "Only items scheduled before time (duration or RFC3339)")
	queueListCmd.Flags().BoolVar(&queueReadyOnly, "ready", false, "Only items that are due and unclaimed")

	queueEnqueueCmd.Flags().StringVar(&enqueueExecutionID, "execution", "", "Execution ID (required)")
	queueEnqueueCmd.Flags().StringVar(&enqueueLiveActionID, "liveaction", "", "Live action ID (required)")
	queueEnqueueCmd.Flags().StringVar(&enqueueDelay, "delay", "", "Delay before the item is due (e.g. 500ms, 5s)")
	queueEnqueueCmd.Flags().DurationVar(&enqueueWait, "wait", 0, "Wait up to this long for a worker to dispatch the item")
	queueEnqueueCmd.MarkFlagRequired("execution")
	queueEnqueueCmd.MarkFlagRequired("liveaction")

	queueRescheduleCmd.Flags().StringVar(&rescheduleAt, "at", "", "New start: offset like +10m or RFC3339 (required)")
	queueRescheduleCmd.MarkFlagRequired("at")

	queueSweepCmd.Flags().DurationVar(&sweepStaleAfter, "stale-after", 5*time.Minute, "Claims older than this are released")

	queueWatchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format: default or json")

	queueCmd.AddCommand(queueListCmd, queueGetCmd, queueEnqueueCmd, queueClaimCmd,
		queueReleaseCmd, queueRescheduleCmd, queueDeleteCmd, queueSweepCmd, queueStatsCmd, queueWatchCmd)
	rootCmd.AddCommand(queueCmd)
}

func runQueueList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var format queueview.OutputFormat
	switch queueOutputFormat {
	case "default":
		format = queueview.OutputFormatDefault
	case "jsonl":
		format = queueview.OutputFormatJSONL
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", queueOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	t := now()
	sinceMs, untilMs, err := timespec.ParseRange(queueSince, queueUntil, t)
	if err != nil {
		return printer.Error(
			"invalid time filter",
			err.Error(),
			[]string{"Use a duration like 1h30m or a timestamp like 2025-10-29T13:00:00Z"},
		)
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	filters := &queueview.FilterCriteria{
		SinceTimestampMs: sinceMs,
		UntilTimestampMs: untilMs,
		ReadyOnly:        queueReadyOnly,
	}
	return queueview.ListItems(ctx, s.queue, t, format, filters, printer.Stdout)
}

func runQueueGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	item, err := resolveItem(ctx, s.queue, args[0])
	if err != nil {
		return err
	}
	return queueview.FormatSingleJSON(printer.Stdout, item)
}

func runQueueEnqueue(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	delay, err := timespec.ParseDelay(enqueueDelay)
	if err != nil {
		return printer.Error("invalid delay", err.Error(), []string{"Use a duration like 500ms or 5s"})
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	item, err := s.queue.Enqueue(ctx, queue.EnqueueRequest{
		ExecutionID:  enqueueExecutionID,
		LiveActionID: enqueueLiveActionID,
		Delay:        delay,
	})
	if err != nil {
		if item == nil {
			return printer.Error("enqueue failed", err.Error(), nil)
		}
		// The item is stored; only the wake-up event was lost.
		printer.Warning("item stored but queue event not published: %v\n", err)
	}

	printer.Success("Queued %s (due %s)\n", item.ID, item.ScheduledStart().Format(time.RFC3339))

	if enqueueWait > 0 {
		printer.Step("Waiting up to %s for dispatch...\n", enqueueWait)
		if err := watch.PollForDispatch(ctx, s.queue, item.ID, enqueueWait+delay); err != nil {
			return printer.Error(
				"item not dispatched",
				err.Error(),
				[]string{"Check that a scheduler is running for this instance", fmt.Sprintf("Inspect the item:\n  muster queue get %s", item.ID)},
			)
		}
		printer.Success("Dispatched %s\n", item.ID)
	}
	return nil
}

func runQueueClaim(cmd *cobra.Command, args []string) error {
	return withItem(args[0], func(ctx context.Context, q *queue.Queue, item *queue.WorkQueueItem) error {
		ok, err := q.Claim(ctx, item)
		if err != nil {
			return err
		}
		if !ok {
			return printer.Error(
				"claim lost",
				fmt.Sprintf("Item %s is already being handled or changed while claiming.", item.ID),
				[]string{fmt.Sprintf("Inspect it:\n  muster queue get %s", item.ID)},
			)
		}
		printer.Success("Claimed %s (revision %d)\n", item.ID, item.Revision)
		return nil
	})
}

func runQueueRelease(cmd *cobra.Command, args []string) error {
	return withItem(args[0], func(ctx context.Context, q *queue.Queue, item *queue.WorkQueueItem) error {
		if !item.Handling {
			printer.Info("Item %s is already pending\n", item.ID)
			return nil
		}
		ok, err := q.Release(ctx, item)
		if err != nil {
			return err
		}
		if !ok {
			return conflictError(item)
		}
		printer.Success("Released %s\n", item.ID)
		return nil
	})
}

func runQueueReschedule(cmd *cobra.Command, args []string) error {
	at, err := timespec.ParseAt(rescheduleAt, now())
	if err != nil {
		return printer.Error("invalid --at", err.Error(), []string{"Use an offset like +10m or a timestamp like 2025-10-29T13:00:00Z"})
	}

	return withItem(args[0], func(ctx context.Context, q *queue.Queue, item *queue.WorkQueueItem) error {
		ok, err := q.Reschedule(ctx, item, at)
		if err != nil {
			return err
		}
		if !ok {
			return conflictError(item)
		}
		printer.Success("Rescheduled %s to %s\n", item.ID, at.UTC().Format(time.RFC3339))
		return nil
	})
}

func runQueueDelete(cmd *cobra.Command, args []string) error {
	return withItem(args[0], func(ctx context.Context, q *queue.Queue, item *queue.WorkQueueItem) error {
		ok, err := q.Delete(ctx, item)
		if err != nil {
			return err
		}
		if !ok {
			return conflictError(item)
		}
		printer.Success("Deleted %s\n", item.ID)
		return nil
	})
}

func runQueueSweep(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	released, err := scheduler.NewSweeper(s.queue, sweepStaleAfter, sweepStaleAfter, nil).Sweep(ctx)
	if err != nil {
		return err
	}
	printer.Success("Released %d stale claims\n", released)
	return nil
}

func runQueueStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.queue.Stats(ctx, now())
	if err != nil {
		return err
	}
	printer.Info("Instance: %s\n", s.instanceName)
	printer.Info("  pending:  %d\n", stats.Pending)
	printer.Info("  due:      %d\n", stats.Due)
	printer.Info("  handling: %d\n", stats.Handling)
	return nil
}

func runQueueWatch(cmd *cobra.Command, args []string) error {
	var format watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		format = watch.OutputFormatDefault
	case "json":
		format = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	return watch.StreamEvents(ctx, s.queue, format, printer.Stdout)
}

// withItem opens a session, resolves shortID and runs fn on the current item.
func withItem(shortID string, fn func(context.Context, *queue.Queue, *queue.WorkQueueItem) error) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	item, err := resolveItem(ctx, s.queue, shortID)
	if err != nil {
		return err
	}
	return fn(ctx, s.queue, item)
}

func resolveItem(ctx context.Context, q *queue.Queue, shortID string) (*queue.WorkQueueItem, error) {
	fullID, err := resolver.ResolveItemID(ctx, q, shortID)
	if err != nil {
		if resolver.IsNotFoundError(err) {
			return nil, printer.Error(
				fmt.Sprintf("item with ID '%s' not found", shortID),
				"The specified item is not in the queue.",
				[]string{"List all items:\n  muster queue list"},
			)
		}
		var amb *resolver.AmbiguousError
		if errors.As(err, &amb) {
			return nil, printer.Error(
				fmt.Sprintf("ambiguous short ID '%s'", shortID),
				resolver.FormatAmbiguousError(amb),
				nil,
			)
		}
		return nil, printer.Error("invalid item ID", err.Error(), nil)
	}

	item, err := q.Get(ctx, fullID)
	if err != nil {
		return nil, fmt.Errorf("failed to read item: %w", err)
	}
	return item, nil
}

func conflictError(item *queue.WorkQueueItem) error {
	return printer.Error(
		"item changed concurrently",
		fmt.Sprintf("Item %s was modified since revision %d.", item.ID, item.Revision),
		[]string{"Re-run the command to act on the latest revision"},
	)
}
