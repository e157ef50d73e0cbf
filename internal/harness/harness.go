package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/quiverlabs/quiver"
	"github.com/quiverlabs/quiver/argval"
	"github.com/quiverlabs/quiver/internal/testutil"
	"github.com/quiverlabs/quiver/journal"
)

// scenarioEpoch is the fake clock's start time for every run. Golden
// fixtures render timestamps as offsets from it.
var scenarioEpoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// stepTimeout bounds await and wait_event steps in real time. Scripted
// responses settle immediately, so hitting it means the scenario
// deadlocked (an unreleased hold, or waiting for an event that cannot
// happen).
const stepTimeout = 5 * time.Second

// Harness holds one run's client and the handles and gates the steps
// have created so far.
type Harness struct {
	client  *quiver.Client
	script  *testutil.ScriptedQuery
	clock   *clockwork.FakeClock
	journal *journal.Memory
	handles map[string]*quiver.Handle
	gates   map[string]func()
}

// Run executes a scenario and returns the result.
//
// Each scenario gets a fresh client wired for determinism: a fake
// clock pinned to the scenario epoch, sequential request IDs, an
// in-memory journal, and a scripted base query. Step expectation and
// assertion failures accumulate into the result; mechanical failures
// (undefined handles, malformed arguments, deadlocked waits) abort the
// run with an error.
func Run(scenario *Scenario) (*Result, error) {
	script := testutil.NewScriptedQuery()
	for i, r := range scenario.Responses {
		arg, err := argFor(r.Args)
		if err != nil {
			return nil, fmt.Errorf("responses[%d]: %w", i, err)
		}
		results := make([]quiver.Result, 0, len(r.Results))
		for j, spec := range r.Results {
			if spec.Error != "" {
				results = append(results, testutil.Rejected(errors.New(spec.Error)))
				continue
			}
			data, err := argval.FromGo(spec.Data)
			if err != nil {
				return nil, fmt.Errorf("responses[%d].results[%d]: %w", i, j, err)
			}
			results = append(results, testutil.Fulfilled(data))
		}
		script.Respond(r.Endpoint, arg, results...)
	}

	rec := journal.NewMemory()
	clock := clockwork.NewFakeClockAt(scenarioEpoch)
	client := quiver.New(script.Run,
		quiver.WithClock(clock),
		quiver.WithRequestIDs(quiver.NewSequenceGenerator("req")),
		quiver.WithJournal(rec),
		quiver.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	defer client.Close()

	for i, def := range scenario.Endpoints {
		opts, err := endpointOptions(def)
		if err != nil {
			return nil, fmt.Errorf("endpoints[%d] %q: %w", i, def.Name, err)
		}
		switch quiver.Kind(def.Kind) {
		case quiver.KindQuery:
			_, err = client.DefineQuery(def.Name, opts...)
		case quiver.KindMutation:
			_, err = client.DefineMutation(def.Name, opts...)
		default:
			err = fmt.Errorf("kind must be query or mutation, got %q", def.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("endpoints[%d]: %w", i, err)
		}
	}

	h := &Harness{
		client:  client,
		script:  script,
		clock:   clock,
		journal: rec,
		handles: make(map[string]*quiver.Handle),
		gates:   make(map[string]func()),
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.runStep(step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	events := rec.Events()
	result.Trace = events

	actx := &AssertionContext{
		Client: client,
		Script: script,
		Events: events,
	}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// runStep executes one step, recording expectation mismatches on the
// result and returning mechanical failures.
func (h *Harness) runStep(st Step, result *Result) error {
	switch {
	case st.Initiate != "":
		arg, err := argFor(st.Args)
		if err != nil {
			return fmt.Errorf("initiate %s: %w", st.Initiate, err)
		}
		opts := make([]quiver.InitiateOption, 0, 2)
		if st.As != "" {
			opts = append(opts, quiver.WithSubscriberID(st.As))
		}
		if st.Force {
			opts = append(opts, quiver.WithForceRefetch())
		}
		handle, err := h.client.Initiate(st.Initiate, arg, opts...)
		if err != nil {
			return fmt.Errorf("initiate %s: %w", st.Initiate, err)
		}
		if st.As != "" {
			h.handles[st.As] = handle
		}

	case st.Await != "":
		handle, ok := h.handles[st.Await]
		if !ok {
			return fmt.Errorf("await references undefined handle %q", st.Await)
		}
		ctx, cancel := context.WithTimeout(context.Background(), stepTimeout)
		snap, err := handle.Await(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("await %s: %w", st.Await, err)
		}
		checkSnapshot(result, "await "+st.Await, st, snap)

	case st.Select != "":
		arg, err := argFor(st.Args)
		if err != nil {
			return fmt.Errorf("select %s: %w", st.Select, err)
		}
		snap, err := h.client.Select(st.Select, arg)
		if err != nil {
			return fmt.Errorf("select %s: %w", st.Select, err)
		}
		checkSnapshot(result, "select "+st.Select, st, snap)

	case st.UpdateArgs != "":
		handle, ok := h.handles[st.UpdateArgs]
		if !ok {
			return fmt.Errorf("update_args references undefined handle %q", st.UpdateArgs)
		}
		arg, err := argFor(st.Args)
		if err != nil {
			return fmt.Errorf("update_args %s: %w", st.UpdateArgs, err)
		}
		if _, err := handle.UpdateArgs(arg); err != nil {
			return fmt.Errorf("update_args %s: %w", st.UpdateArgs, err)
		}

	case st.Refetch != "":
		handle, ok := h.handles[st.Refetch]
		if !ok {
			return fmt.Errorf("refetch references undefined handle %q", st.Refetch)
		}
		if err := handle.Refetch(); err != nil {
			return fmt.Errorf("refetch %s: %w", st.Refetch, err)
		}

	case st.Unsubscribe != "":
		handle, ok := h.handles[st.Unsubscribe]
		if !ok {
			return fmt.Errorf("unsubscribe references undefined handle %q", st.Unsubscribe)
		}
		handle.Unsubscribe()

	case st.Invalidate != "":
		arg, err := argFor(st.Args)
		if err != nil {
			return fmt.Errorf("invalidate %s: %w", st.Invalidate, err)
		}
		if err := h.client.Invalidate(st.Invalidate, arg); err != nil {
			return fmt.Errorf("invalidate %s: %w", st.Invalidate, err)
		}

	case st.Advance != "":
		d, err := time.ParseDuration(st.Advance)
		if err != nil {
			return fmt.Errorf("invalid advance duration %q", st.Advance)
		}
		h.clock.Advance(d)

	case st.Hold != "":
		arg, err := argFor(st.Args)
		if err != nil {
			return fmt.Errorf("hold %s: %w", st.Hold, err)
		}
		if st.As == "" {
			return fmt.Errorf("hold %s requires as to name the gate", st.Hold)
		}
		h.gates[st.As] = h.script.Hold(st.Hold, arg)

	case st.Release != "":
		release, ok := h.gates[st.Release]
		if !ok {
			return fmt.Errorf("release references undefined hold %q", st.Release)
		}
		release()

	case st.WaitEvent != "":
		if err := h.waitForEvents(journal.EventType(st.WaitEvent), st.Count); err != nil {
			return err
		}

	default:
		return fmt.Errorf("no operation set")
	}

	return nil
}

// waitForEvents polls the journal until at least count events of the
// given type have been recorded.
func (h *Harness) waitForEvents(typ journal.EventType, count int) error {
	deadline := time.Now().Add(stepTimeout)
	for {
		n := 0
		for _, ev := range h.journal.Events() {
			if ev.Type == typ {
				n++
			}
		}
		if n >= count {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("wait_event %s: have %d, want %d", typ, n, count)
		}
		time.Sleep(time.Millisecond)
	}
}

// checkSnapshot records expectation mismatches for an await or select
// step.
func checkSnapshot(result *Result, label string, st Step, snap quiver.Snapshot) {
	if st.Expect != "" && string(snap.Status) != st.Expect {
		result.AddError(fmt.Sprintf("%s: status = %s, want %s", label, snap.Status, st.Expect))
	}
	if st.ErrorContains != "" {
		switch {
		case snap.Err == nil:
			result.AddError(fmt.Sprintf("%s: no error, want one containing %q", label, st.ErrorContains))
		case !strings.Contains(snap.Err.Error(), st.ErrorContains):
			result.AddError(fmt.Sprintf("%s: error %q does not contain %q", label, snap.Err, st.ErrorContains))
		}
	}
}

// endpointOptions builds the definition options for one endpoint.
func endpointOptions(def EndpointDef) ([]quiver.EndpointOption, error) {
	var opts []quiver.EndpointOption
	if def.StaleAfter != "" {
		d, err := time.ParseDuration(def.StaleAfter)
		if err != nil {
			return nil, fmt.Errorf("invalid stale_after %q", def.StaleAfter)
		}
		opts = append(opts, quiver.WithStaleAfter(d))
	}
	if def.KeepUnusedFor != "" {
		d, err := time.ParseDuration(def.KeepUnusedFor)
		if err != nil {
			return nil, fmt.Errorf("invalid keep_unused_for %q", def.KeepUnusedFor)
		}
		opts = append(opts, quiver.WithKeepUnusedFor(d))
	}
	return opts, nil
}

// argFor converts YAML arguments to a Value. A nil map means the
// operation takes no argument, which keys differently from an empty
// object.
func argFor(args map[string]interface{}) (argval.Value, error) {
	if args == nil {
		return nil, nil
	}
	return argval.FromGo(args)
}
