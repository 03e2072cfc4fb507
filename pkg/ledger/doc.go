// Package ledger stores revisioned documents in Redis and provides the single
// concurrency primitive muster relies on: compare-and-swap on a per-document
// revision token.
//
// # Documents
//
// A Document is a Redis hash (string field to string value). The reserved field
// "revision" carries a decimal counter that starts at 1 on Create and advances
// by exactly one on every successful write. Revisions are ordered per document
// only; they exist to detect lost updates, not to order writes globally.
//
// # Compare-and-swap
//
// CompareAndSwap applies a Mutation only if the document's revision still equals
// the caller's expected revision at write time. It is implemented with
// WATCH/MULTI/EXEC, so a concurrent writer that lands between the read and the
// write aborts the transaction instead of being overwritten. No locks are taken
// and a losing writer returns immediately with false.
//
// Mutations receive the transaction pipeline so they can queue secondary index
// updates (sorted sets, for instance) that commit atomically with the document.
package ledger
