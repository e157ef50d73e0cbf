package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quiverlabs/quiver"
	"github.com/quiverlabs/quiver/journal"
)

// Scenario defines one lifecycle test: the endpoints in play, the
// scripted base query responses, the steps to drive, and the
// assertions to evaluate once the steps finish.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden fixtures are
	// stored under this name.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description"`

	// Endpoints lists the definitions registered on the client before
	// any step runs.
	Endpoints []EndpointDef `yaml:"endpoints"`

	// Responses scripts the base query. Routes with no script reject
	// with a descriptive error, which is itself scriptable behavior.
	Responses []ResponseScript `yaml:"responses,omitempty"`

	// Steps drive the client in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final cache state and journal.
	Assertions []Assertion `yaml:"assertions"`
}

// EndpointDef declares one endpoint for the scenario's client.
type EndpointDef struct {
	// Name is the endpoint name used by steps and responses.
	Name string `yaml:"name"`

	// Kind is "query" or "mutation".
	Kind string `yaml:"kind"`

	// StaleAfter is the freshness window as a Go duration string.
	// Empty disables time-based staleness.
	StaleAfter string `yaml:"stale_after,omitempty"`

	// KeepUnusedFor overrides the eviction grace period as a Go
	// duration string. Empty keeps the client default; "0s" evicts
	// immediately when the last subscriber leaves.
	KeepUnusedFor string `yaml:"keep_unused_for,omitempty"`
}

// ResponseScript queues base query results for one route. Successive
// dispatches consume the queue in order; the final result repeats.
type ResponseScript struct {
	// Endpoint names the route's endpoint.
	Endpoint string `yaml:"endpoint"`

	// Args is the route's argument value. Absent means the endpoint is
	// dispatched without an argument.
	Args map[string]interface{} `yaml:"args,omitempty"`

	// Results is the response queue for the route.
	Results []ResultSpec `yaml:"results"`
}

// ResultSpec is one scripted base query outcome: data for a fulfilled
// result or error text for a rejected one. An empty spec fulfills with
// an explicit null.
type ResultSpec struct {
	Data  interface{} `yaml:"data,omitempty"`
	Error string      `yaml:"error,omitempty"`
}

// Step performs exactly one operation against the client. The verb
// fields are mutually exclusive; the remaining fields qualify whichever
// verb is set.
type Step struct {
	// Initiate names an endpoint to initiate. Requires As.
	Initiate string `yaml:"initiate,omitempty"`

	// Await names a handle to block on until its entry settles.
	Await string `yaml:"await,omitempty"`

	// Select names an endpoint to snapshot without dispatching.
	Select string `yaml:"select,omitempty"`

	// UpdateArgs names a handle whose next argument is Args.
	UpdateArgs string `yaml:"update_args,omitempty"`

	// Refetch names a handle to force re-dispatch.
	Refetch string `yaml:"refetch,omitempty"`

	// Unsubscribe names a handle whose subscription is dropped.
	Unsubscribe string `yaml:"unsubscribe,omitempty"`

	// Invalidate names an endpoint whose entry for Args is invalidated.
	Invalidate string `yaml:"invalidate,omitempty"`

	// Advance moves the fake clock forward by a Go duration string.
	Advance string `yaml:"advance,omitempty"`

	// Hold gates the next dispatch of (endpoint, Args) until released.
	// Requires As to name the gate.
	Hold string `yaml:"hold,omitempty"`

	// Release opens the named gate.
	Release string `yaml:"release,omitempty"`

	// WaitEvent blocks until the journal holds Count events of this
	// type. Used after releases and clock advances to absorb
	// asynchronous settlements and evictions.
	WaitEvent string `yaml:"wait_event,omitempty"`

	// Args is the argument value for initiate, select, update_args,
	// invalidate, and hold. Absent means no argument.
	Args map[string]interface{} `yaml:"args,omitempty"`

	// As names the handle created by initiate or the gate created by
	// hold. The name doubles as the subscriber ID.
	As string `yaml:"as,omitempty"`

	// Force makes an initiate bypass cached data.
	Force bool `yaml:"force,omitempty"`

	// Expect is the status an await or select snapshot must report.
	Expect string `yaml:"expect,omitempty"`

	// ErrorContains is a substring the snapshot's error must contain.
	ErrorContains string `yaml:"error_contains,omitempty"`

	// Count is the cumulative event total wait_event blocks for.
	Count int `yaml:"count,omitempty"`
}

// Assertion validates cache state or journal contents after the steps.
type Assertion struct {
	// Type specifies the assertion type:
	//   - "status": select a snapshot and verify status/data/error
	//   - "calls": verify base query dispatch count for a route
	//   - "entries": verify the live entry count
	//   - "journal_contains": verify a matching event exists
	//   - "journal_order": verify event types first appear in order
	//   - "journal_count": verify an event type's exact count
	Type string `yaml:"type"`

	// Endpoint scopes status, calls, journal_contains, and
	// journal_count assertions.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Args selects the route for status and calls assertions.
	Args map[string]interface{} `yaml:"args,omitempty"`

	// Status is the expected lifecycle status (status assertions) or
	// settled status (journal_contains).
	Status string `yaml:"status,omitempty"`

	// Data is the expected snapshot payload, compared canonically.
	Data interface{} `yaml:"data,omitempty"`

	// ErrorContains is a substring the snapshot error must contain.
	ErrorContains string `yaml:"error_contains,omitempty"`

	// Event is the journal event type for journal_contains and
	// journal_count.
	Event string `yaml:"event,omitempty"`

	// RequestID narrows journal_contains to one dispatch.
	RequestID string `yaml:"request_id,omitempty"`

	// Events is the expected first-appearance order for journal_order.
	Events []string `yaml:"events,omitempty"`

	// Count is the expected total for calls, entries, and
	// journal_count.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertStatus          = "status"
	AssertCalls           = "calls"
	AssertEntries         = "entries"
	AssertJournalContains = "journal_contains"
	AssertJournalOrder    = "journal_order"
	AssertJournalCount    = "journal_count"
)

// LoadScenario reads and parses a scenario YAML file. Returns an error
// if the file doesn't exist, is malformed, contains unknown fields
// (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and that
// steps reference only endpoints, handles, and gates that exist.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Endpoints) == 0 {
		return fmt.Errorf("endpoints list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	endpoints := make(map[string]bool, len(s.Endpoints))
	for i, def := range s.Endpoints {
		if def.Name == "" {
			return fmt.Errorf("endpoints[%d]: name is required", i)
		}
		if endpoints[def.Name] {
			return fmt.Errorf("endpoints[%d]: duplicate endpoint %q", i, def.Name)
		}
		endpoints[def.Name] = true

		switch quiver.Kind(def.Kind) {
		case quiver.KindQuery, quiver.KindMutation:
		default:
			return fmt.Errorf("endpoints[%d]: kind must be query or mutation, got %q", i, def.Kind)
		}
		if def.StaleAfter != "" {
			if _, err := time.ParseDuration(def.StaleAfter); err != nil {
				return fmt.Errorf("endpoints[%d]: invalid stale_after %q", i, def.StaleAfter)
			}
		}
		if def.KeepUnusedFor != "" {
			if _, err := time.ParseDuration(def.KeepUnusedFor); err != nil {
				return fmt.Errorf("endpoints[%d]: invalid keep_unused_for %q", i, def.KeepUnusedFor)
			}
		}
	}

	for i, r := range s.Responses {
		if r.Endpoint == "" {
			return fmt.Errorf("responses[%d]: endpoint is required", i)
		}
		if !endpoints[r.Endpoint] {
			return fmt.Errorf("responses[%d]: undefined endpoint %q", i, r.Endpoint)
		}
		if len(r.Results) == 0 {
			return fmt.Errorf("responses[%d]: results list is required and must be non-empty", i)
		}
		for j, spec := range r.Results {
			if spec.Data != nil && spec.Error != "" {
				return fmt.Errorf("responses[%d].results[%d]: data and error are mutually exclusive", i, j)
			}
		}
	}

	// Handles and gates are defined by earlier steps, so references
	// check against what the walk has seen so far.
	handles := make(map[string]bool)
	gates := make(map[string]bool)
	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i], endpoints, handles, gates); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], endpoints); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks one step's verb and its qualifying fields.
func validateStep(index int, st *Step, endpoints, handles, gates map[string]bool) error {
	verbs := 0
	for _, v := range []string{
		st.Initiate, st.Await, st.Select, st.UpdateArgs, st.Refetch,
		st.Unsubscribe, st.Invalidate, st.Advance, st.Hold, st.Release,
		st.WaitEvent,
	} {
		if v != "" {
			verbs++
		}
	}
	if verbs == 0 {
		return fmt.Errorf("steps[%d]: no operation set", index)
	}
	if verbs > 1 {
		return fmt.Errorf("steps[%d]: exactly one operation per step", index)
	}

	switch {
	case st.Initiate != "":
		if !endpoints[st.Initiate] {
			return fmt.Errorf("steps[%d]: initiate references undefined endpoint %q", index, st.Initiate)
		}
		if st.As == "" {
			return fmt.Errorf("steps[%d]: initiate requires as to name the handle", index)
		}
		handles[st.As] = true
	case st.Await != "":
		if !handles[st.Await] {
			return fmt.Errorf("steps[%d]: await references undefined handle %q", index, st.Await)
		}
		if err := validateExpect(index, st.Expect); err != nil {
			return err
		}
	case st.Select != "":
		if !endpoints[st.Select] {
			return fmt.Errorf("steps[%d]: select references undefined endpoint %q", index, st.Select)
		}
		if err := validateExpect(index, st.Expect); err != nil {
			return err
		}
	case st.UpdateArgs != "":
		if !handles[st.UpdateArgs] {
			return fmt.Errorf("steps[%d]: update_args references undefined handle %q", index, st.UpdateArgs)
		}
	case st.Refetch != "":
		if !handles[st.Refetch] {
			return fmt.Errorf("steps[%d]: refetch references undefined handle %q", index, st.Refetch)
		}
	case st.Unsubscribe != "":
		if !handles[st.Unsubscribe] {
			return fmt.Errorf("steps[%d]: unsubscribe references undefined handle %q", index, st.Unsubscribe)
		}
	case st.Invalidate != "":
		if !endpoints[st.Invalidate] {
			return fmt.Errorf("steps[%d]: invalidate references undefined endpoint %q", index, st.Invalidate)
		}
	case st.Advance != "":
		if _, err := time.ParseDuration(st.Advance); err != nil {
			return fmt.Errorf("steps[%d]: invalid advance duration %q", index, st.Advance)
		}
	case st.Hold != "":
		if !endpoints[st.Hold] {
			return fmt.Errorf("steps[%d]: hold references undefined endpoint %q", index, st.Hold)
		}
		if st.As == "" {
			return fmt.Errorf("steps[%d]: hold requires as to name the gate", index)
		}
		gates[st.As] = true
	case st.Release != "":
		if !gates[st.Release] {
			return fmt.Errorf("steps[%d]: release references undefined hold %q", index, st.Release)
		}
	case st.WaitEvent != "":
		if !knownEventType(st.WaitEvent) {
			return fmt.Errorf("steps[%d]: unknown event type %q", index, st.WaitEvent)
		}
		if st.Count < 1 {
			return fmt.Errorf("steps[%d]: wait_event requires count >= 1", index)
		}
	}

	return nil
}

// validateExpect rejects expect values that are not lifecycle statuses.
func validateExpect(index int, expect string) error {
	switch quiver.Status(expect) {
	case "", quiver.StatusUninitialized, quiver.StatusPending,
		quiver.StatusFulfilled, quiver.StatusRejected:
		return nil
	default:
		return fmt.Errorf("steps[%d]: unknown expect status %q", index, expect)
	}
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, endpoints map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStatus:
		if a.Endpoint == "" {
			return fmt.Errorf("assertions[%d]: endpoint is required for status", index)
		}
		if !endpoints[a.Endpoint] {
			return fmt.Errorf("assertions[%d]: undefined endpoint %q", index, a.Endpoint)
		}
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for status", index)
		}
	case AssertCalls:
		if a.Endpoint == "" {
			return fmt.Errorf("assertions[%d]: endpoint is required for calls", index)
		}
		if !endpoints[a.Endpoint] {
			return fmt.Errorf("assertions[%d]: undefined endpoint %q", index, a.Endpoint)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for calls", index)
		}
	case AssertEntries:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for entries", index)
		}
	case AssertJournalContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for journal_contains", index)
		}
		if !knownEventType(a.Event) {
			return fmt.Errorf("assertions[%d]: unknown event type %q", index, a.Event)
		}
	case AssertJournalOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for journal_order", index)
		}
		for _, typ := range a.Events {
			if !knownEventType(typ) {
				return fmt.Errorf("assertions[%d]: unknown event type %q", index, typ)
			}
		}
	case AssertJournalCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for journal_count", index)
		}
		if !knownEventType(a.Event) {
			return fmt.Errorf("assertions[%d]: unknown event type %q", index, a.Event)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for journal_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// knownEventType reports whether s names a journal event type.
func knownEventType(s string) bool {
	switch journal.EventType(s) {
	case journal.EventDispatchStarted, journal.EventDispatchSettled,
		journal.EventDuplicateSuppressed, journal.EventStaleDropped,
		journal.EventEntryInvalidated, journal.EventEntryEvicted:
		return true
	}
	return false
}
