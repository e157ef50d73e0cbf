package quiver

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/quiverlabs/quiver/argval"
)

// Status is the lifecycle state of a cache entry.
type Status string

const (
	// StatusUninitialized means no dispatch has ever started for the key.
	// Select reports it for keys the client has never seen.
	StatusUninitialized Status = "uninitialized"

	// StatusPending means a dispatch is in flight.
	StatusPending Status = "pending"

	// StatusFulfilled means the latest dispatch settled with data.
	StatusFulfilled Status = "fulfilled"

	// StatusRejected means the latest dispatch settled with an error.
	StatusRejected Status = "rejected"
)

// Terminal reports whether the status is a settled state.
func (s Status) Terminal() bool {
	return s == StatusFulfilled || s == StatusRejected
}

// Snapshot is an immutable point-in-time copy of one cache entry,
// returned by Select, Handle.Snapshot, and Handle.Await. Data and Err
// describe the latest settled dispatch; both are unset while the entry
// is pending or uninitialized.
type Snapshot struct {
	// Endpoint is the name of the endpoint the entry belongs to.
	Endpoint string

	// Key is the entry's cache key.
	Key argval.Key

	// Status is the lifecycle state at snapshot time.
	Status Status

	// Data is the fulfilled payload, nil otherwise.
	Data argval.Value

	// Err is the rejection cause, nil otherwise. Always a
	// *TransportError or *ValidationError.
	Err error

	// RequestID identifies the latest dispatch, empty if none started.
	RequestID string

	// StartedAt is when the latest dispatch began.
	StartedAt time.Time

	// SettledAt is when the latest dispatch settled, zero while pending.
	SettledAt time.Time

	// SubscriberCount is the number of active subscribers.
	SubscriberCount int
}

// entry is the mutable lifecycle record for one cache slot. Every field
// is guarded by the owning Client's mutex; the settled channel is the
// only handoff read outside it (receive-only, after being copied under
// the lock).
type entry struct {
	endpoint *Endpoint
	key      argval.Key

	// arg is a representative argument value for the key, retained so
	// invalidation and refetch can re-dispatch without the caller.
	arg argval.Value

	status    Status
	data      argval.Value
	err       error
	requestID string
	startedAt time.Time
	settledAt time.Time

	subscribers map[string]struct{}

	// invalidated marks the entry's data as unusable for dedup. Set by
	// Invalidate, cleared when a new dispatch begins.
	invalidated bool

	// settled is closed when the current dispatch settles or the entry
	// is evicted mid-flight. Replaced on every new dispatch.
	settled chan struct{}

	// evictGen invalidates scheduled eviction callbacks: the timer
	// captures the generation at scheduling time and aborts if the entry
	// has moved on by the time it fires.
	evictGen   int
	evictTimer clockwork.Timer
}

func newEntry(ep *Endpoint, key argval.Key, arg argval.Value) *entry {
	return &entry{
		endpoint:    ep,
		key:         key,
		arg:         arg,
		status:      StatusUninitialized,
		subscribers: make(map[string]struct{}),
	}
}

// beginDispatch transitions the entry to pending for a new request.
// Previous data and error are cleared; consumers needing
// keep-previous-data semantics read the snapshot before re-initiating.
//
// Superseding an in-flight dispatch closes the old settled channel so
// waiters wake, observe the entry pending again, and latch onto the
// replacement.
func (e *entry) beginDispatch(requestID string, now time.Time) {
	e.status = StatusPending
	e.data = nil
	e.err = nil
	e.requestID = requestID
	e.startedAt = now
	e.settledAt = time.Time{}
	e.invalidated = false
	if e.settled != nil {
		close(e.settled)
	}
	e.settled = make(chan struct{})
}

// settle records the dispatch outcome and wakes waiters.
func (e *entry) settle(status Status, data argval.Value, err error, now time.Time) {
	e.status = status
	e.data = data
	e.err = err
	e.settledAt = now
	if e.settled != nil {
		close(e.settled)
		e.settled = nil
	}
}

// abandonWaiters wakes waiters on a pending entry that will never
// settle (entry evicted or reset mid-flight).
func (e *entry) abandonWaiters() {
	if e.settled != nil {
		close(e.settled)
		e.settled = nil
	}
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Endpoint:        e.endpoint.name,
		Key:             e.key,
		Status:          e.status,
		Data:            e.data,
		Err:             e.err,
		RequestID:       e.requestID,
		StartedAt:       e.startedAt,
		SettledAt:       e.settledAt,
		SubscriberCount: len(e.subscribers),
	}
}
