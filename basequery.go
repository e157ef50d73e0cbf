package quiver

import (
	"context"

	"github.com/quiverlabs/quiver/argval"
)

// ExtraOptions carries endpoint-scoped configuration through to the base
// query untouched. The client never interprets the contents; typical uses
// are per-endpoint HTTP headers, timeouts, or retry hints.
type ExtraOptions map[string]any

// Result is the settlement envelope a base query returns for one
// dispatch. Exactly one of Data or Err should be set; when both are set,
// Err wins and the entry settles as rejected.
type Result struct {
	// Data is the successful payload.
	Data argval.Value

	// Err is the failure cause. Base queries may return any error; causes
	// that are not already a *TransportError or *ValidationError are
	// wrapped in a *TransportError before the entry settles.
	Err error

	// Meta holds call metadata (HTTP status, response headers, timing)
	// passed to the endpoint's validate predicate. Optional.
	Meta map[string]any
}

// QueryContext is handed to the base query for one dispatch. It exposes
// the identity of the dispatch plus re-entrant access to the client, so
// a base query can consult or populate sibling entries while it runs.
//
// Initiate and Select are safe to call from the base query goroutine:
// the client lock is never held while the base query executes.
type QueryContext struct {
	// Context is the client's base context. It is cancelled when the
	// client closes; long calls should honor it.
	Context context.Context

	// Endpoint is the name of the endpoint being dispatched.
	Endpoint string

	// RequestID identifies this dispatch. Responses carrying a stale
	// RequestID are dropped on arrival.
	RequestID string

	// Initiate re-enters the client to start or join another entry.
	Initiate func(endpoint string, arg argval.Value, opts ...InitiateOption) (*Handle, error)

	// Select reads another entry's current snapshot without dispatching.
	Select func(endpoint string, arg argval.Value) (Snapshot, error)
}

// BaseQuery performs the underlying call for one dispatch. The input is
// whatever the endpoint's prepare hook produced (the raw argument value
// when no hook is set). Implementations run on a dedicated goroutine and
// must be safe for concurrent invocation.
type BaseQuery func(qctx QueryContext, input any, extra ExtraOptions) Result

// PrepareFunc maps a validated argument value to the input handed to the
// base query. Returning an error rejects the dispatch with a
// *ValidationError before the base query runs.
type PrepareFunc func(arg argval.Value) (any, error)

// ValidateFunc inspects a successful result envelope and may turn it
// into a rejection. Returning a non-nil error settles the entry as
// rejected with a *ValidationError wrapping the returned cause.
type ValidateFunc func(data argval.Value, meta map[string]any) error
