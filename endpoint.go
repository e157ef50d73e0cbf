package quiver

import (
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes cacheable reads from uncached writes.
type Kind string

const (
	// KindQuery marks a cacheable read. Query dispatches are keyed,
	// deduplicated, and retained per the endpoint's cache policy.
	KindQuery Kind = "query"

	// KindMutation marks a side-effecting write. Mutation dispatches
	// bypass the cache table entirely; every initiation runs.
	KindMutation Kind = "mutation"
)

// DefaultKeepUnusedFor is the grace period applied to query entries whose
// endpoint does not override it. An unsubscribed entry survives this long
// before eviction, so a consumer that resubscribes quickly gets a cache
// hit instead of a refetch.
const DefaultKeepUnusedFor = 60 * time.Second

// Endpoint is an immutable definition of one named operation. Endpoints
// are registered once via DefineQuery or DefineMutation and shared by
// every dispatch thereafter; they carry no per-call state.
type Endpoint struct {
	name          string
	kind          Kind
	prepare       PrepareFunc
	validate      ValidateFunc
	staleAfter    time.Duration
	keepUnusedFor time.Duration
	extra         ExtraOptions
}

// Name returns the endpoint's registered name.
func (ep *Endpoint) Name() string {
	return ep.name
}

// Kind returns whether the endpoint is a query or a mutation.
func (ep *Endpoint) Kind() Kind {
	return ep.kind
}

// StaleAfter returns the freshness window for fulfilled entries. Zero
// means entries stay fresh until invalidated.
func (ep *Endpoint) StaleAfter() time.Duration {
	return ep.staleAfter
}

// KeepUnusedFor returns the eviction grace period for entries with no
// subscribers.
func (ep *Endpoint) KeepUnusedFor() time.Duration {
	return ep.keepUnusedFor
}

// EndpointOption customizes an endpoint at definition time.
type EndpointOption func(*Endpoint)

// WithPrepare sets the hook that maps the argument value to the base
// query's input. Without it the base query receives the argument value
// itself.
func WithPrepare(fn PrepareFunc) EndpointOption {
	return func(ep *Endpoint) {
		ep.prepare = fn
	}
}

// WithValidate sets a predicate that can reject an otherwise successful
// result (for example an HTTP 200 whose body signals failure).
func WithValidate(fn ValidateFunc) EndpointOption {
	return func(ep *Endpoint) {
		ep.validate = fn
	}
}

// WithStaleAfter sets how long a fulfilled entry is served from cache
// before a new initiation re-dispatches. Zero (the default) disables
// time-based staleness; entries stay fresh until invalidated.
func WithStaleAfter(d time.Duration) EndpointOption {
	return func(ep *Endpoint) {
		ep.staleAfter = d
	}
}

// WithKeepUnusedFor overrides DefaultKeepUnusedFor for this endpoint.
// Zero evicts immediately when the last subscriber leaves.
func WithKeepUnusedFor(d time.Duration) EndpointOption {
	return func(ep *Endpoint) {
		ep.keepUnusedFor = d
	}
}

// WithExtraOptions attaches endpoint-scoped options passed through to
// the base query verbatim.
func WithExtraOptions(extra ExtraOptions) EndpointOption {
	return func(ep *Endpoint) {
		ep.extra = extra
	}
}

// DefineQuery registers a cacheable query endpoint under the given name.
// Returns ErrEndpointExists if the name is taken.
func (c *Client) DefineQuery(name string, opts ...EndpointOption) (*Endpoint, error) {
	return c.define(name, KindQuery, opts)
}

// DefineMutation registers an uncached mutation endpoint under the given
// name. Returns ErrEndpointExists if the name is taken.
func (c *Client) DefineMutation(name string, opts ...EndpointOption) (*Endpoint, error) {
	return c.define(name, KindMutation, opts)
}

func (c *Client) define(name string, kind Kind, opts []EndpointOption) (*Endpoint, error) {
	if err := validateEndpointName(name); err != nil {
		return nil, err
	}

	ep := &Endpoint{
		name:          name,
		kind:          kind,
		keepUnusedFor: DefaultKeepUnusedFor,
	}
	for _, opt := range opts {
		opt(ep)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if _, ok := c.endpoints[name]; ok {
		return nil, fmt.Errorf("%q: %w", name, ErrEndpointExists)
	}
	c.endpoints[name] = ep

	c.log.Debug("endpoint defined", "endpoint", name, "kind", string(kind))
	return ep, nil
}

// validateEndpointName rejects names that would make cache keys or
// journal rows ambiguous. Keys render as name(canonicalArgs), so the
// name must not contain parentheses or whitespace.
func validateEndpointName(name string) error {
	if name == "" {
		return fmt.Errorf("endpoint name must not be empty")
	}
	if strings.ContainsAny(name, "() \t\n") {
		return fmt.Errorf("endpoint name %q must not contain parentheses or whitespace", name)
	}
	return nil
}
