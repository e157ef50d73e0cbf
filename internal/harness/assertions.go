package harness

import (
	"fmt"
	"strings"

	"github.com/quiverlabs/quiver"
	"github.com/quiverlabs/quiver/argval"
	"github.com/quiverlabs/quiver/internal/testutil"
	"github.com/quiverlabs/quiver/journal"
)

// AssertionError is returned when an assertion fails. It carries the
// full journal so a failure message shows what actually happened.
type AssertionError struct {
	Type     string          // Assertion type for categorization
	Expected string          // Human-readable expected outcome
	Actual   string          // Human-readable actual outcome
	Trace    []journal.Event // Full journal for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nJournal:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", formatEvent(ev))
		}
	}

	return buf.String()
}

// AssertionContext provides the live client, the base query script,
// and the journal snapshot assertions evaluate against.
type AssertionContext struct {
	Client *quiver.Client
	Script *testutil.ScriptedQuery
	Events []journal.Event
}

// EvaluateAssertions evaluates all assertions and returns a message
// per failure.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertStatus:
			err = assertStatus(actx, assertion)
		case AssertCalls:
			err = assertCalls(actx, assertion)
		case AssertEntries:
			err = assertEntries(actx, assertion)
		case AssertJournalContains:
			err = assertJournalContains(actx.Events, assertion)
		case AssertJournalOrder:
			err = assertJournalOrder(actx.Events, assertion)
		case AssertJournalCount:
			err = assertJournalCount(actx.Events, assertion)
		default:
			err = fmt.Errorf("assertions[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertStatus selects the snapshot for (endpoint, args) and checks
// status, canonical data, and error text.
func assertStatus(actx *AssertionContext, assertion Assertion) error {
	arg, err := argFor(assertion.Args)
	if err != nil {
		return fmt.Errorf("status assertion: %w", err)
	}
	snap, err := actx.Client.Select(assertion.Endpoint, arg)
	if err != nil {
		return fmt.Errorf("status assertion: %w", err)
	}
	key := snap.Key.String()

	if string(snap.Status) != assertion.Status {
		return &AssertionError{
			Type:     AssertStatus,
			Expected: fmt.Sprintf("%s with status %s", key, assertion.Status),
			Actual:   fmt.Sprintf("status %s", snap.Status),
			Trace:    actx.Events,
		}
	}

	if assertion.Data != nil {
		want, err := argval.FromGo(assertion.Data)
		if err != nil {
			return fmt.Errorf("status assertion: %w", err)
		}
		wantCanon, err := argval.Canonical(want)
		if err != nil {
			return fmt.Errorf("status assertion: %w", err)
		}
		gotCanon, err := argval.Canonical(snap.Data)
		if err != nil {
			return fmt.Errorf("status assertion: %w", err)
		}
		if gotCanon != wantCanon {
			return &AssertionError{
				Type:     AssertStatus,
				Expected: fmt.Sprintf("%s with data %s", key, wantCanon),
				Actual:   fmt.Sprintf("data %s", gotCanon),
				Trace:    actx.Events,
			}
		}
	}

	if assertion.ErrorContains != "" {
		actual := "no error"
		if snap.Err != nil {
			actual = fmt.Sprintf("error %q", snap.Err)
		}
		if snap.Err == nil || !strings.Contains(snap.Err.Error(), assertion.ErrorContains) {
			return &AssertionError{
				Type:     AssertStatus,
				Expected: fmt.Sprintf("%s with error containing %q", key, assertion.ErrorContains),
				Actual:   actual,
				Trace:    actx.Events,
			}
		}
	}

	return nil
}

// assertCalls checks how many base query dispatches hit the route.
func assertCalls(actx *AssertionContext, assertion Assertion) error {
	arg, err := argFor(assertion.Args)
	if err != nil {
		return fmt.Errorf("calls assertion: %w", err)
	}
	key, err := argval.ForEndpoint(assertion.Endpoint, arg)
	if err != nil {
		return fmt.Errorf("calls assertion: %w", err)
	}

	got := actx.Script.Calls(assertion.Endpoint, arg)
	if got != assertion.Count {
		return &AssertionError{
			Type:     AssertCalls,
			Expected: fmt.Sprintf("%d dispatches for %s", assertion.Count, key.String()),
			Actual:   fmt.Sprintf("%d dispatches", got),
			Trace:    actx.Events,
		}
	}

	return nil
}

// assertEntries checks the number of live cache entries.
func assertEntries(actx *AssertionContext, assertion Assertion) error {
	got := actx.Client.EntryCount()
	if got != assertion.Count {
		return &AssertionError{
			Type:     AssertEntries,
			Expected: fmt.Sprintf("%d live entries", assertion.Count),
			Actual:   fmt.Sprintf("%d live entries", got),
			Trace:    actx.Events,
		}
	}

	return nil
}

// assertJournalContains checks that an event matching the assertion's
// fields was recorded. Unset fields match anything.
func assertJournalContains(events []journal.Event, assertion Assertion) error {
	for _, ev := range events {
		if string(ev.Type) != assertion.Event {
			continue
		}
		if assertion.Endpoint != "" && ev.Endpoint != assertion.Endpoint {
			continue
		}
		if assertion.RequestID != "" && ev.RequestID != assertion.RequestID {
			continue
		}
		if assertion.Status != "" && ev.Status != assertion.Status {
			continue
		}
		return nil
	}

	return &AssertionError{
		Type:     AssertJournalContains,
		Expected: describeEventMatch(assertion),
		Actual:   "not found in journal",
		Trace:    events,
	}
}

// assertJournalOrder checks that event types first appear in the
// specified order. Intervening events are allowed.
func assertJournalOrder(events []journal.Event, assertion Assertion) error {
	// First position of each expected type, 1-indexed for readability.
	positions := make(map[string]int)
	for i, ev := range events {
		for _, want := range assertion.Events {
			if string(ev.Type) == want && positions[want] == 0 {
				positions[want] = i + 1
			}
		}
	}

	for _, want := range assertion.Events {
		if positions[want] == 0 {
			return &AssertionError{
				Type:     AssertJournalOrder,
				Expected: fmt.Sprintf("all event types present: %v", assertion.Events),
				Actual:   fmt.Sprintf("missing event type: %s", want),
				Trace:    events,
			}
		}
	}

	for i := 1; i < len(assertion.Events); i++ {
		prev := assertion.Events[i-1]
		curr := assertion.Events[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertJournalOrder,
				Expected: fmt.Sprintf("event types in order: %v", assertion.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: events,
			}
		}
	}

	return nil
}

// assertJournalCount checks that the event type occurs exactly the
// specified number of times, optionally scoped to one endpoint.
func assertJournalCount(events []journal.Event, assertion Assertion) error {
	count := 0
	for _, ev := range events {
		if string(ev.Type) != assertion.Event {
			continue
		}
		if assertion.Endpoint != "" && ev.Endpoint != assertion.Endpoint {
			continue
		}
		count++
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertJournalCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, describeEventMatch(assertion)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    events,
		}
	}

	return nil
}

// describeEventMatch renders the fields a journal assertion matched on.
func describeEventMatch(assertion Assertion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "event %s", assertion.Event)
	if assertion.Endpoint != "" {
		fmt.Fprintf(&b, " endpoint=%s", assertion.Endpoint)
	}
	if assertion.RequestID != "" {
		fmt.Fprintf(&b, " request_id=%s", assertion.RequestID)
	}
	if assertion.Status != "" {
		fmt.Fprintf(&b, " status=%s", assertion.Status)
	}
	return b.String()
}
