package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/muster/pkg/ledger"
	"github.com/dyluth/muster/pkg/queue"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 6

// ResolveItemID resolves a short ID prefix to a full queue item UUID.
// A full UUID is checked for existence and returned as-is. Shorter input must
// be at least MinShortIDLength characters and match exactly one item.
func ResolveItemID(ctx context.Context, q *queue.Queue, shortID string) (string, error) {
	if len(shortID) == 36 && strings.Count(shortID, "-") == 4 {
		if _, err := q.Get(ctx, shortID); err != nil {
			if ledger.IsNotFound(err) {
				return "", &NotFoundError{ShortID: shortID}
			}
			return "", fmt.Errorf("failed to verify item existence: %w", err)
		}
		return shortID, nil
	}

	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	matches, err := q.ScanIDs(ctx, shortID)
	if err != nil {
		return "", fmt.Errorf("failed to search for item: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates no items matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no items found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple items matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d items", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError lists up to 10 matching IDs, then "...and N more".
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}

	for i := 0; i < displayCount; i++ {
		fmt.Fprintf(&b, "  %s\n", err.Matches[i])
	}
	if len(err.Matches) > 10 {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-10)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify the item.")
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	var amb *AmbiguousError
	return errors.As(err, &amb)
}
