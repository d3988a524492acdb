// Package repositories implements SQLite persistence for playsync's entities.
//
// Key Implementations:
//   - [ErrorEventRepository] : The error log. Doubles as a [resilience.Sink] so guarded calls record their failures.
//
// Sequence numbers provide stable, human-readable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
