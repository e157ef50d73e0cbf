// Package quiver is a client-side query cache and subscription engine.
//
// A Client sits between consumers and a single BaseQuery collaborator
// (HTTP client, RPC stub, database reader). Consumers initiate named
// endpoint operations with structured arguments; the client
// canonicalizes the arguments into a cache key, deduplicates concurrent
// calls for the same key into one dispatch, tracks each entry through
// the pending/fulfilled/rejected lifecycle, and retains settled entries
// while subscribers hold them plus a grace period after the last one
// leaves.
//
// Key design decisions:
//   - Cache keys come from the argval package: canonical JSON (RFC 8785
//     ordering) so structurally equal arguments collide regardless of
//     map iteration or construction order.
//   - At most one dispatch is in flight per key. Results are stamped
//     with a request ID; a result whose ID no longer matches the
//     entry's current dispatch is dropped on arrival, never applied.
//   - Mutations bypass the table entirely. Every mutation initiation
//     dispatches, and its entry lives only as long as its subscriber.
//   - Re-triggering on argument change (Handle.UpdateArgs) uses a
//     one-level comparison: top-level scalars by value, nested
//     composites by instance identity. See ShouldRefetch.
//
// Entries, dispatch decisions, and evictions can be journaled (see the
// journal package) and measured (Prometheus, via WithMetrics). Time is
// injected through clockwork so staleness and grace periods are
// testable with a fake clock.
package quiver
