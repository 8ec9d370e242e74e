// Package repositories implements SQLite persistence for the share audit log.
//
// Key Implementations:
//   - [ShareRepository] : one row per handled chat share with its outcome
//
// Sequence numbers provide stable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function increments per-table sequence counters inside the caller's transaction.
package repositories
