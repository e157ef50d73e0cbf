package quiver

import (
	"fmt"

	"github.com/quiverlabs/quiver/argval"
	"github.com/quiverlabs/quiver/journal"
)

// initiateQueryLocked runs the cache table decision for one query
// initiation and returns the entry the caller is now subscribed to.
// Caller holds c.mu.
func (c *Client) initiateQueryLocked(ep *Endpoint, key argval.Key, arg argval.Value, subscriberID string, force bool) *entry {
	e, ok := c.entries[key]
	if ok && c.servableLocked(e, ep, force) {
		c.subscribeLocked(e, subscriberID)
		if e.status == StatusPending {
			c.metrics.recordDedupHit(ep.name)
			c.emitLocked(c.eventForLocked(e, journal.EventDuplicateSuppressed))
			c.log.Debug("duplicate suppressed",
				"endpoint", ep.name, "key", key.String(), "request_id", e.requestID)
		} else {
			c.metrics.recordCacheHit(ep.name)
			c.log.Debug("cache hit", "endpoint", ep.name, "key", key.String())
		}
		return e
	}

	if !ok {
		e = newEntry(ep, key, arg)
		c.entries[key] = e
		c.metrics.setEntries(len(c.entries))
	}
	c.subscribeLocked(e, subscriberID)
	c.dispatchLocked(e)
	return e
}

// initiateMutationLocked starts one mutation dispatch. Mutations never
// consult the table; the entry is tracked by request ID and removed
// when its subscriber leaves. Caller holds c.mu.
func (c *Client) initiateMutationLocked(ep *Endpoint, key argval.Key, arg argval.Value, subscriberID string) *entry {
	e := newEntry(ep, key, arg)
	c.subscribeLocked(e, subscriberID)
	requestID := c.dispatchLocked(e)
	c.mutations[requestID] = e
	return e
}

// servableLocked reports whether an existing entry can absorb an
// initiation without a new dispatch. Caller holds c.mu.
func (c *Client) servableLocked(e *entry, ep *Endpoint, force bool) bool {
	if force {
		return false
	}
	switch e.status {
	case StatusPending:
		return true
	case StatusFulfilled:
		if e.invalidated {
			return false
		}
		if ep.staleAfter > 0 && c.clock.Since(e.settledAt) >= ep.staleAfter {
			return false
		}
		return true
	default:
		// Uninitialized or rejected entries never absorb; rejected
		// initiations re-dispatch.
		return false
	}
}

// dispatchLocked begins a new dispatch on the entry and launches the
// base query goroutine. Returns the new request ID. Caller holds c.mu;
// the goroutine re-enters through resolve once the call finishes.
func (c *Client) dispatchLocked(e *entry) string {
	requestID := c.requestIDs.Generate()
	e.beginDispatch(requestID, c.clock.Now())

	c.metrics.recordDispatch(e.endpoint.name, e.endpoint.kind)
	c.emitLocked(c.eventForLocked(e, journal.EventDispatchStarted))
	c.log.Debug("dispatch started",
		"endpoint", e.endpoint.name, "kind", string(e.endpoint.kind),
		"key", e.key.String(), "request_id", requestID)

	go c.runDispatch(e.endpoint, e.key, requestID, e.arg)
	return requestID
}

// runDispatch executes one base query call outside the client lock and
// feeds the outcome back through resolve.
func (c *Client) runDispatch(ep *Endpoint, key argval.Key, requestID string, arg argval.Value) {
	qctx := QueryContext{
		Context:   c.baseCtx,
		Endpoint:  ep.name,
		RequestID: requestID,
		Initiate:  c.Initiate,
		Select:    c.Select,
	}
	c.resolve(key, requestID, c.callBase(qctx, ep, arg))
}

// callBase runs the prepare hook, the base query, and the validate
// predicate, folding failures into the error taxonomy: prepare and
// validate failures become *ValidationError, raw base query errors
// become *TransportError.
func (c *Client) callBase(qctx QueryContext, ep *Endpoint, arg argval.Value) Result {
	input := any(arg)
	if ep.prepare != nil {
		prepared, err := ep.prepare(arg)
		if err != nil {
			return Result{Err: &ValidationError{
				Endpoint:  ep.name,
				RequestID: qctx.RequestID,
				Err:       fmt.Errorf("prepare args: %w", err),
			}}
		}
		input = prepared
	}

	res := c.base(qctx, input, ep.extra)

	if res.Err == nil && ep.validate != nil {
		if err := ep.validate(res.Data, res.Meta); err != nil {
			return Result{
				Err: &ValidationError{
					Endpoint:  ep.name,
					RequestID: qctx.RequestID,
					Err:       err,
				},
				Meta: res.Meta,
			}
		}
	}
	if res.Err != nil && !IsTransportError(res.Err) && !IsValidationError(res.Err) {
		res.Err = &TransportError{
			Endpoint:  ep.name,
			RequestID: qctx.RequestID,
			Err:       res.Err,
		}
	}
	return res
}

// resolve lands one base query outcome. The result is applied only if
// the entry still exists and the request ID matches its current
// dispatch; anything else arrives too late and is dropped, keeping
// settled ordering consistent with dispatch ordering per key.
func (c *Client) resolve(key argval.Key, requestID string, res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		e = c.mutations[requestID]
	}
	if e == nil || e.status != StatusPending || e.requestID != requestID {
		c.metrics.recordStaleDrop(key.Endpoint)
		c.emitLocked(journal.Event{
			Type:      journal.EventStaleDropped,
			Endpoint:  key.Endpoint,
			Key:       key.String(),
			KeyHash:   key.Hash(),
			RequestID: requestID,
		})
		c.log.Debug("stale response dropped",
			"endpoint", key.Endpoint, "key", key.String(), "request_id", requestID)
		return
	}

	now := c.clock.Now()
	status := StatusFulfilled
	if res.Err != nil {
		status = StatusRejected
	}
	e.settle(status, res.Data, res.Err, now)

	took := now.Sub(e.startedAt)
	c.metrics.recordSettlement(e.endpoint.name, status, took)

	ev := c.eventForLocked(e, journal.EventDispatchSettled)
	ev.Status = string(status)
	ev.DurationMS = took.Milliseconds()
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	c.emitLocked(ev)
	c.log.Debug("dispatch settled",
		"endpoint", e.endpoint.name, "key", e.key.String(),
		"request_id", requestID, "status", string(status))

	// An invalidation landed while this dispatch was in flight. Honor
	// it now that there is a settled state to replace.
	if e.invalidated && e.endpoint.kind == KindQuery && len(e.subscribers) > 0 {
		c.dispatchLocked(e)
	}
}

// evictIfUnused is the eviction timer callback. The generation guard
// keeps a timer scheduled before a re-subscribe from firing after it.
func (c *Client) evictIfUnused(key argval.Key, gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.evictGen != gen || len(e.subscribers) > 0 {
		return
	}
	c.deleteEntryLocked(e)
}

// deleteEntryLocked removes an entry, wakes its waiters, and records
// the eviction. Caller holds c.mu.
func (c *Client) deleteEntryLocked(e *entry) {
	if e.evictTimer != nil {
		e.evictTimer.Stop()
		e.evictTimer = nil
	}
	e.abandonWaiters()

	if e.endpoint.kind == KindMutation {
		delete(c.mutations, e.requestID)
	} else {
		delete(c.entries, e.key)
		c.metrics.setEntries(len(c.entries))
	}

	c.metrics.recordEviction(e.endpoint.name)
	c.emitLocked(c.eventForLocked(e, journal.EventEntryEvicted))
	c.log.Debug("entry evicted",
		"endpoint", e.endpoint.name, "kind", string(e.endpoint.kind), "key", e.key.String())
}
