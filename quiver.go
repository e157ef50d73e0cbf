package quiver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quiverlabs/quiver/argval"
	"github.com/quiverlabs/quiver/journal"
)

// Client owns the cache table, the subscription registry, and the
// dispatch lifecycle for a set of defined endpoints. All methods are
// safe for concurrent use.
//
// A Client guarantees at most one in-flight base query call per cache
// key: concurrent initiations for the same endpoint and canonically
// equal arguments share a single dispatch. Mutations are exempt; every
// mutation initiation runs.
type Client struct {
	base       BaseQuery
	clock      clockwork.Clock
	requestIDs RequestIDGenerator
	log        *slog.Logger
	journal    journal.Recorder
	metrics    *metrics

	// baseCtx is handed to base queries and cancelled on Close.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu        sync.Mutex
	seq       int64
	endpoints map[string]*Endpoint
	entries   map[argval.Key]*entry
	mutations map[string]*entry
	closed    bool
}

// Option customizes a Client at construction time.
type Option func(*Client)

// WithClock injects the time source used for staleness checks and
// eviction timers. Tests pass clockwork.NewFakeClock.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithRequestIDs injects the request ID generator. Tests pass
// NewFixedGenerator or NewSequenceGenerator for deterministic IDs.
func WithRequestIDs(gen RequestIDGenerator) Option {
	return func(c *Client) {
		c.requestIDs = gen
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithJournal attaches a lifecycle event recorder. Events are emitted
// synchronously in dispatch order; see the journal package contract.
func WithJournal(rec journal.Recorder) Option {
	return func(c *Client) {
		c.journal = rec
	}
}

// WithMetrics registers the client's Prometheus instruments with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Client) {
		c.metrics = newMetrics(reg)
	}
}

// New creates a Client that dispatches through the given base query.
// Panics if base is nil; everything else has working defaults.
func New(base BaseQuery, opts ...Option) *Client {
	if base == nil {
		panic("quiver: New requires a non-nil BaseQuery")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		base:       base,
		clock:      clockwork.NewRealClock(),
		requestIDs: UUIDv7Generator{},
		log:        slog.Default(),
		baseCtx:    ctx,
		cancelBase: cancel,
		endpoints:  make(map[string]*Endpoint),
		entries:    make(map[argval.Key]*entry),
		mutations:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// initiateConfig collects per-initiation options.
type initiateConfig struct {
	subscriberID string
	force        bool
}

// InitiateOption customizes one Initiate call.
type InitiateOption func(*initiateConfig)

// WithSubscriberID names the subscriber registered by this initiation.
// Re-initiating with the same ID does not double-count; without this
// option a fresh random ID is assigned.
func WithSubscriberID(id string) InitiateOption {
	return func(cfg *initiateConfig) {
		cfg.subscriberID = id
	}
}

// WithForceRefetch makes the initiation bypass cached data and start a
// new dispatch even when a fresh fulfilled entry exists. An in-flight
// dispatch is still superseded, not joined.
func WithForceRefetch() InitiateOption {
	return func(cfg *initiateConfig) {
		cfg.force = true
	}
}

// Initiate starts or joins the lifecycle for (endpoint, arg) and
// subscribes the caller to the resulting entry.
//
// For queries the cache table decides what happens:
//  1. An in-flight dispatch for the same key absorbs the initiation;
//     no new base query call starts.
//  2. A fresh fulfilled entry is served as-is.
//  3. Otherwise (no entry, rejected, invalidated, stale, or force), a
//     new dispatch begins and the entry transitions to pending.
//
// Mutations bypass the table: every initiation dispatches.
//
// The returned Handle tracks the caller's subscription. Callers that
// are done with the entry must call Handle.Unsubscribe so the entry
// can age out.
func (c *Client) Initiate(endpoint string, arg argval.Value, opts ...InitiateOption) (*Handle, error) {
	var cfg initiateConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	key, err := argval.ForEndpoint(endpoint, arg)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	ep, ok := c.endpoints[endpoint]
	if !ok {
		return nil, fmt.Errorf("%q: %w", endpoint, ErrUnknownEndpoint)
	}

	subscriberID := cfg.subscriberID
	if subscriberID == "" {
		subscriberID = autoSubscriberID()
	}

	var e *entry
	if ep.kind == KindMutation {
		e = c.initiateMutationLocked(ep, key, arg, subscriberID)
	} else {
		e = c.initiateQueryLocked(ep, key, arg, subscriberID, cfg.force)
	}

	return &Handle{
		client:       c,
		endpoint:     ep,
		arg:          arg,
		key:          key,
		subscriberID: subscriberID,
		requestID:    e.requestID,
		mutation:     ep.kind == KindMutation,
	}, nil
}

// Select reads the current snapshot for (endpoint, arg) without
// dispatching or subscribing. Keys the client has never seen report
// StatusUninitialized. Works on a closed client.
//
// Mutation entries are not addressable by argument; selecting a
// mutation endpoint always reports StatusUninitialized.
func (c *Client) Select(endpoint string, arg argval.Value) (Snapshot, error) {
	key, err := argval.ForEndpoint(endpoint, arg)
	if err != nil {
		return Snapshot{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.endpoints[endpoint]; !ok {
		return Snapshot{}, fmt.Errorf("%q: %w", endpoint, ErrUnknownEndpoint)
	}

	e, ok := c.entries[key]
	if !ok {
		return Snapshot{Endpoint: endpoint, Key: key, Status: StatusUninitialized}, nil
	}
	return e.snapshot(), nil
}

// Subscribe registers subscriberID on the existing entry for
// (endpoint, arg). Returns ErrNoEntry when no entry exists; entries
// come into being through Initiate, never through Subscribe.
// Subscribing an already-registered ID is a no-op.
func (c *Client) Subscribe(endpoint string, arg argval.Value, subscriberID string) error {
	key, err := argval.ForEndpoint(endpoint, arg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if _, ok := c.endpoints[endpoint]; !ok {
		return fmt.Errorf("%q: %w", endpoint, ErrUnknownEndpoint)
	}
	e, ok := c.entries[key]
	if !ok {
		return fmt.Errorf("%s: %w", key.String(), ErrNoEntry)
	}
	c.subscribeLocked(e, subscriberID)
	return nil
}

// Unsubscribe removes subscriberID from the entry for (endpoint, arg).
// When the last subscriber leaves, the entry's eviction grace period
// starts. Unsubscribing an unknown ID or key is a no-op.
func (c *Client) Unsubscribe(endpoint string, arg argval.Value, subscriberID string) error {
	key, err := argval.ForEndpoint(endpoint, arg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.endpoints[endpoint]; !ok {
		return fmt.Errorf("%q: %w", endpoint, ErrUnknownEndpoint)
	}
	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	c.unsubscribeLocked(e, subscriberID)
	return nil
}

// Invalidate marks the entry for (endpoint, arg) as unusable for future
// cache hits. If the entry has subscribers and is settled, a new
// dispatch starts immediately; if a dispatch is in flight, the mark is
// honored when it settles. Unknown keys are a no-op.
func (c *Client) Invalidate(endpoint string, arg argval.Value) error {
	key, err := argval.ForEndpoint(endpoint, arg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if _, ok := c.endpoints[endpoint]; !ok {
		return fmt.Errorf("%q: %w", endpoint, ErrUnknownEndpoint)
	}
	e, ok := c.entries[key]
	if !ok {
		return nil
	}

	e.invalidated = true
	ev := c.eventForLocked(e, journal.EventEntryInvalidated)
	c.emitLocked(ev)
	c.log.Debug("entry invalidated", "endpoint", endpoint, "key", key.String())

	if e.status.Terminal() && len(e.subscribers) > 0 {
		c.dispatchLocked(e)
	}
	return nil
}

// Reset drops every entry and in-flight mutation. Results still in
// flight are discarded on arrival. Subscribers are forgotten; handles
// held by callers keep working but observe uninitialized state until
// they re-initiate.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	n := len(c.entries) + len(c.mutations)
	c.resetLocked()
	c.log.Info("cache reset", "entries_dropped", n)
}

// Close shuts the client down: the base context handed to in-flight
// dispatches is cancelled, all entries are dropped, and further
// state-changing calls return ErrClientClosed. Select keeps working.
// Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.resetLocked()
	c.mu.Unlock()

	c.cancelBase()
	c.log.Debug("client closed")
	return nil
}

func (c *Client) resetLocked() {
	subs := 0
	for _, e := range c.entries {
		subs += len(e.subscribers)
		c.cancelEvictionLocked(e)
		e.abandonWaiters()
	}
	for _, e := range c.mutations {
		subs += len(e.subscribers)
		e.abandonWaiters()
	}
	c.entries = make(map[argval.Key]*entry)
	c.mutations = make(map[string]*entry)
	c.metrics.setEntries(0)
	c.metrics.addSubscribers(-subs)
}

// EntryCount returns the number of live query entries.
func (c *Client) EntryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Endpoint returns the definition registered under name.
func (c *Client) Endpoint(name string) (*Endpoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ep, ok := c.endpoints[name]
	return ep, ok
}

// Endpoints returns all registered endpoint names, sorted.
func (c *Client) Endpoints() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.endpoints))
	for name := range c.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// emitLocked stamps and records one journal event. Caller holds c.mu.
func (c *Client) emitLocked(ev journal.Event) {
	if c.journal == nil {
		return
	}
	c.seq++
	ev.Seq = c.seq
	ev.At = c.clock.Now()
	if err := c.journal.Record(ev); err != nil {
		c.log.Warn("journal write failed", "type", string(ev.Type), "error", err)
	}
}

func (c *Client) eventForLocked(e *entry, typ journal.EventType) journal.Event {
	return journal.Event{
		Type:      typ,
		Endpoint:  e.endpoint.name,
		Kind:      string(e.endpoint.kind),
		Key:       e.key.String(),
		KeyHash:   e.key.Hash(),
		RequestID: e.requestID,
	}
}

func autoSubscriberID() string {
	return "sub-" + uuid.NewString()
}
