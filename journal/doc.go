// Package journal records cache lifecycle events to an append-only log.
//
// Every observable transition in a client's cache table emits one event:
//   - dispatch_started: a base query call began for a key
//   - dispatch_settled: the call settled as fulfilled or rejected
//   - duplicate_suppressed: an initiation joined an in-flight dispatch
//   - stale_dropped: a result arrived for a superseded request ID
//   - entry_invalidated: an entry's data was marked unusable
//   - entry_evicted: an unused entry was removed after its grace period
//
// Ordering uses Seq, the emitting client's logical clock, never wall
// time. List queries order by seq ASC, id ASC so results are identical
// across runs regardless of timing.
//
// Two Recorder implementations are provided: Store persists events to
// SQLite (WAL mode, single writer), Memory accumulates them in a slice
// for tests and golden trace comparison.
package journal
