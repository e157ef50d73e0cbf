package quiver

import (
	"context"
	"fmt"
	"sync"

	"github.com/quiverlabs/quiver/argval"
)

// Handle tracks one subscriber's view of a cache entry. Handles are
// returned by Initiate and stay valid until Unsubscribe; all methods
// are safe for concurrent use.
type Handle struct {
	client   *Client
	endpoint *Endpoint
	mutation bool

	mu           sync.Mutex
	arg          argval.Value
	key          argval.Key
	subscriberID string
	requestID    string
}

// Key returns the cache key the handle currently points at.
func (h *Handle) Key() argval.Key {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.key
}

// SubscriberID returns the subscriber registered by this handle.
func (h *Handle) SubscriberID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscriberID
}

// RequestID returns the ID of the dispatch the handle last started or
// joined.
func (h *Handle) RequestID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requestID
}

// Snapshot reads the entry's current state. After the entry has been
// evicted or reset the snapshot reports StatusUninitialized.
func (h *Handle) Snapshot() Snapshot {
	h.mu.Lock()
	mutation, key, requestID := h.mutation, h.key, h.requestID
	h.mu.Unlock()

	c := h.client
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookupLocked(mutation, key, requestID)
	if e == nil {
		return Snapshot{Endpoint: h.endpoint.name, Key: key, Status: StatusUninitialized}
	}
	return e.snapshot()
}

// Await blocks until the entry settles (fulfilled or rejected) and
// returns the settled snapshot. If the entry re-dispatches while
// waiting, Await keeps waiting for the newest dispatch. Returns the
// context error on cancellation and ErrNoEntry if the entry is evicted
// or reset mid-wait.
func (h *Handle) Await(ctx context.Context) (Snapshot, error) {
	h.mu.Lock()
	mutation, key, requestID := h.mutation, h.key, h.requestID
	h.mu.Unlock()

	c := h.client
	for {
		c.mu.Lock()
		e := c.lookupLocked(mutation, key, requestID)
		if e == nil {
			c.mu.Unlock()
			snap := Snapshot{Endpoint: h.endpoint.name, Key: key, Status: StatusUninitialized}
			return snap, fmt.Errorf("%s: %w", key.String(), ErrNoEntry)
		}
		snap := e.snapshot()
		settled := e.settled
		c.mu.Unlock()

		if snap.Status.Terminal() || settled == nil {
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-settled:
		}
	}
}

// Refetch forces a new dispatch for the handle's key, bypassing cached
// data and superseding any in-flight dispatch. If the entry was evicted
// it is recreated. Returns ErrMutation for mutation handles.
func (h *Handle) Refetch() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.mutation {
		return ErrMutation
	}

	c := h.client
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	e := c.initiateQueryLocked(h.endpoint, h.key, h.arg, h.subscriberID, true)
	h.requestID = e.requestID
	return nil
}

// UpdateArgs feeds the subscriber's next argument value through the
// re-trigger policy and reports whether it initiated again.
//
// The policy compares prev and next exactly one level deep (see
// ShouldRefetch). When it fires, the handle moves its subscription to
// the new key if the key changed and initiates; the initiation is
// subject to normal cache table rules, so equal-by-structure arguments
// rebuilt on every call land on the same entry and absorb into it
// rather than re-dispatching. When the policy does not fire, next
// still becomes the comparison basis for the following update.
//
// Returns ErrMutation for mutation handles.
func (h *Handle) UpdateArgs(next argval.Value) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.mutation {
		return false, ErrMutation
	}

	if !ShouldRefetch(h.arg, next) {
		h.arg = next
		return false, nil
	}

	nextKey, err := argval.ForEndpoint(h.endpoint.name, next)
	if err != nil {
		return false, err
	}

	c := h.client
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrClientClosed
	}

	if nextKey != h.key {
		if e, ok := c.entries[h.key]; ok {
			c.unsubscribeLocked(e, h.subscriberID)
		}
	}
	e := c.initiateQueryLocked(h.endpoint, nextKey, next, h.subscriberID, false)

	h.arg = next
	h.key = nextKey
	h.requestID = e.requestID
	return true, nil
}

// Unsubscribe removes this handle's subscriber from its entry. For
// queries the entry's grace period starts when the last subscriber
// leaves; for mutations the entry is removed immediately. Idempotent.
func (h *Handle) Unsubscribe() {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := h.client
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookupLocked(h.mutation, h.key, h.requestID)
	if e != nil {
		c.unsubscribeLocked(e, h.subscriberID)
	}
}

// lookupLocked finds the entry a handle points at. Caller holds c.mu.
func (c *Client) lookupLocked(mutation bool, key argval.Key, requestID string) *entry {
	if mutation {
		return c.mutations[requestID]
	}
	return c.entries[key]
}
