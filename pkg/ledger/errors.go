package ledger

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrExists is returned by Create when the document key is already taken.
var ErrExists = errors.New("document already exists")

// ErrNoRevision is returned when a stored hash was written without a revision
// field, typically by a writer that predates the ledger. See Adopt.
var ErrNoRevision = errors.New("document has no revision field")

// errConflict aborts a Watch callback when the revision precondition fails.
var errConflict = errors.New("revision conflict")

// PersistenceError wraps a failed store operation.
// Constraint violations are permanent; everything else is worth retrying with backoff.
type PersistenceError struct {
	Op         string
	Key        string
	Err        error
	Constraint bool
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the operation may succeed.
func (e *PersistenceError) Transient() bool {
	return !e.Constraint
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}

// IsTransient reports whether err is a PersistenceError worth retrying.
func IsTransient(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Transient()
}
