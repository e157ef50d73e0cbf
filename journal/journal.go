package journal

import (
	"sync"
	"time"
)

// EventType identifies the lifecycle transition an event records.
type EventType string

const (
	// EventDispatchStarted marks a base query call beginning for a key.
	EventDispatchStarted EventType = "dispatch_started"

	// EventDispatchSettled marks a dispatch settling as fulfilled or
	// rejected. Status and DurationMS are populated; Error holds the
	// rejection text when present.
	EventDispatchSettled EventType = "dispatch_settled"

	// EventDuplicateSuppressed marks an initiation that was absorbed by
	// an in-flight dispatch for the same key. Informational only; the
	// caller still observes the shared entry.
	EventDuplicateSuppressed EventType = "duplicate_suppressed"

	// EventStaleDropped marks a base query result discarded on arrival
	// because a newer dispatch had superseded its request ID.
	EventStaleDropped EventType = "stale_dropped"

	// EventEntryInvalidated marks an entry's data being flagged as
	// unusable for future cache hits.
	EventEntryInvalidated EventType = "entry_invalidated"

	// EventEntryEvicted marks an unused entry's removal after its grace
	// period elapsed.
	EventEntryEvicted EventType = "entry_evicted"
)

// Event is one journal row. Seq is the emitting client's logical clock;
// it orders events deterministically even when wall times collide.
type Event struct {
	Seq        int64
	At         time.Time
	Type       EventType
	Endpoint   string
	Kind       string
	Key        string
	KeyHash    string
	RequestID  string
	Status     string
	Error      string
	DurationMS int64
}

// Recorder consumes lifecycle events as they happen.
//
// The emitting client serializes Record calls and invokes them while
// holding its internal lock, so implementations must be fast and must
// never call back into the client.
type Recorder interface {
	Record(ev Event) error
}

// Memory is an in-process Recorder that accumulates events in order.
// Used by tests and the scenario harness for golden trace comparison.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory returns an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{}
}

// Record appends the event. Never fails.
func (m *Memory) Record(ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of everything recorded so far, in order.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Reset discards all recorded events.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
