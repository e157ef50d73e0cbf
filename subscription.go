package quiver

// subscribeLocked registers one subscriber on the entry and cancels any
// pending eviction. Registering an ID twice is a no-op, so re-initiating
// with the same subscriber never double-counts. Caller holds c.mu.
func (c *Client) subscribeLocked(e *entry, subscriberID string) {
	if _, ok := e.subscribers[subscriberID]; ok {
		return
	}
	e.subscribers[subscriberID] = struct{}{}
	c.metrics.addSubscribers(1)
	c.cancelEvictionLocked(e)
}

// unsubscribeLocked removes one subscriber. When the count reaches
// zero, query entries get a grace period before eviction; mutation
// entries are removed immediately, their result has no other consumer.
// Caller holds c.mu.
func (c *Client) unsubscribeLocked(e *entry, subscriberID string) {
	if _, ok := e.subscribers[subscriberID]; !ok {
		return
	}
	delete(e.subscribers, subscriberID)
	c.metrics.addSubscribers(-1)

	if len(e.subscribers) > 0 {
		return
	}
	if e.endpoint.kind == KindMutation {
		c.deleteEntryLocked(e)
		return
	}
	c.scheduleEvictionLocked(e)
}

// scheduleEvictionLocked arms the entry's grace period timer. A zero
// grace period evicts synchronously. Caller holds c.mu.
func (c *Client) scheduleEvictionLocked(e *entry) {
	d := e.endpoint.keepUnusedFor
	if d <= 0 {
		c.deleteEntryLocked(e)
		return
	}

	e.evictGen++
	gen := e.evictGen
	key := e.key
	if e.evictTimer != nil {
		e.evictTimer.Stop()
	}
	e.evictTimer = c.clock.AfterFunc(d, func() {
		c.evictIfUnused(key, gen)
	})

	c.log.Debug("eviction scheduled",
		"endpoint", e.endpoint.name, "key", e.key.String(), "after", d)
}

// cancelEvictionLocked disarms any pending eviction and bumps the
// generation so a timer callback already in flight aborts. Caller
// holds c.mu.
func (c *Client) cancelEvictionLocked(e *entry) {
	e.evictGen++
	if e.evictTimer != nil {
		e.evictTimer.Stop()
		e.evictTimer = nil
	}
}
