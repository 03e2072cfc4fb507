package timespec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse parses a past time specification relative to now.
// Supports three formats:
//   - Go duration format: "1h", "30m", "1h30m" (that long before now)
//   - RFC3339 timestamps: "2025-10-29T13:00:00Z"
//   - Unix milliseconds: "1730206800000"
func Parse(spec string, now time.Time) (time.Time, error) {
	if spec == "" {
		return time.Time{}, fmt.Errorf("empty time specification")
	}

	if t, ok := parseAbsolute(spec); ok {
		return t, nil
	}

	if d, err := time.ParseDuration(spec); err == nil {
		return now.Add(-d), nil
	}

	return time.Time{}, fmt.Errorf("invalid time specification: %s (use duration like '1h30m' or RFC3339 like '2025-10-29T13:00:00Z')", spec)
}

// ParseAt parses a future time specification relative to now, as used when
// rescheduling. "+5m" and "5m" both mean five minutes from now; absolute
// forms are accepted as for Parse.
func ParseAt(spec string, now time.Time) (time.Time, error) {
	if spec == "" {
		return time.Time{}, fmt.Errorf("empty time specification")
	}

	if t, ok := parseAbsolute(spec); ok {
		return t, nil
	}

	if d, err := time.ParseDuration(strings.TrimPrefix(spec, "+")); err == nil {
		return now.Add(d), nil
	}

	return time.Time{}, fmt.Errorf("invalid time specification: %s (use offset like '+10m' or RFC3339 like '2025-10-29T13:00:00Z')", spec)
}

// ParseDelay parses a non-negative Go duration. Empty means no delay.
func ParseDelay(spec string) (time.Duration, error) {
	if spec == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid delay: %s (use duration like '500ms' or '5s')", spec)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid delay: %s must not be negative", spec)
	}
	return d, nil
}

// ParseRange parses both --since and --until flags into a time range in Unix
// milliseconds. Zero values indicate "no bound" for that end of the range.
//
// Validates that since < until if both are specified.
func ParseRange(since, until string, now time.Time) (int64, int64, error) {
	var sinceMS, untilMS int64

	if since != "" {
		t, err := Parse(since, now)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --since: %w", err)
		}
		sinceMS = t.UnixMilli()
	}

	if until != "" {
		t, err := Parse(until, now)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
		untilMS = t.UnixMilli()
	}

	if sinceMS > 0 && untilMS > 0 && sinceMS >= untilMS {
		return 0, 0, fmt.Errorf("--since must be before --until")
	}

	return sinceMS, untilMS, nil
}

func parseAbsolute(spec string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t, true
	}
	if ms, err := strconv.ParseInt(spec, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}
