// Package migrate holds one-shot data migrations. They run from the CLI, not
// from steady-state code paths.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/dyluth/muster/pkg/ledger"
	"github.com/dyluth/muster/pkg/uid"
	"github.com/redis/go-redis/v9"
)

// Rule enforcement fields touched by the backfill.
const (
	FieldStatus        = "status"
	FieldFailureReason = "failure_reason"

	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// maxAttempts bounds re-reads of a document that keeps changing under the backfill.
const maxAttempts = 3

// EnforcementKey returns the Redis key for a rule enforcement document.
// Pattern: muster:{instance}:rule_enforcement:{id}
func EnforcementKey(instanceName, id string) string {
	return fmt.Sprintf("muster:%s:%s:%s", instanceName, uid.KindRuleEnforcement, id)
}

// Result summarises a backfill run.
type Result struct {
	Scanned   int `json:"scanned"`
	Updated   int `json:"updated"`
	Adopted   int `json:"adopted"` // Legacy hashes given an initial revision
	Conflicts int `json:"conflicts"`
	Skipped   int `json:"skipped"` // Hashes with an unreadable revision
}

// BackfillEnforcementStatus fixes rule enforcements recorded before a status
// field existed. An enforcement with a failure reason but no status, or with
// status succeeded, is marked failed. Each update is a compare-and-swap, so
// the backfill is safe to run while writers are active and safe to re-run.
//
// Hashes written without a revision field are adopted into the ledger first.
// A hash whose revision cannot be parsed is skipped and reported.
func BackfillEnforcementStatus(ctx context.Context, l *ledger.Ledger, instanceName string) (Result, error) {
	var res Result

	keys, err := l.Keys(ctx, EnforcementKey(instanceName, "*"))
	if err != nil {
		return res, fmt.Errorf("failed to scan rule enforcements: %w", err)
	}

	for _, key := range keys {
		res.Scanned++
		adopted, err := adopt(ctx, l, key)
		if err != nil {
			return res, err
		}
		if adopted {
			res.Adopted++
		}

		updated, err := backfillOne(ctx, l, key)
		if err != nil {
			return res, err
		}
		switch updated {
		case outcomeUpdated:
			res.Updated++
		case outcomeConflict:
			res.Conflicts++
			log.Printf("[Migrate] Gave up on %s after %d attempts", key, maxAttempts)
		case outcomeSkipped:
			res.Skipped++
		}
	}

	return res, nil
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeUpdated
	outcomeConflict
	outcomeSkipped
)

// adopt seeds a revision on a legacy hash so it can be compare-and-swapped.
func adopt(ctx context.Context, l *ledger.Ledger, key string) (bool, error) {
	adopted, err := l.Adopt(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to adopt %s: %w", key, err)
	}
	if adopted {
		log.Printf("[Migrate] Adopted legacy record %s", key)
	}
	return adopted, nil
}

func needsBackfill(doc ledger.Document) bool {
	status := doc[FieldStatus]
	return doc[FieldFailureReason] != "" && (status == "" || status == StatusSucceeded)
}

func backfillOne(ctx context.Context, l *ledger.Ledger, key string) (outcome, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		doc, rev, err := l.Read(ctx, key)
		if ledger.IsNotFound(err) {
			return outcomeUnchanged, nil
		}
		var pe *ledger.PersistenceError
		if errors.As(err, &pe) && !pe.Transient() {
			log.Printf("[Migrate] Skipping %s: %v", key, err)
			return outcomeSkipped, nil
		}
		if err != nil {
			return outcomeUnchanged, fmt.Errorf("failed to read %s: %w", key, err)
		}
		if !needsBackfill(doc) {
			return outcomeUnchanged, nil
		}

		ok, err := l.CompareAndSwap(ctx, key, rev, func(d ledger.Document, _ redis.Pipeliner) error {
			d[FieldStatus] = StatusFailed
			return nil
		})
		if err != nil {
			return outcomeUnchanged, fmt.Errorf("failed to update %s: %w", key, err)
		}
		if ok {
			return outcomeUpdated, nil
		}
	}
	return outcomeConflict, nil
}
