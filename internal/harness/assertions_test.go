package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiverlabs/quiver/journal"
)

// sampleTrace is one entry's lifecycle: a deduplicated fetch, an
// invalidation with refetch that rejects, and the final eviction.
func sampleTrace() []journal.Event {
	key := `getPost({"id":1})`
	return []journal.Event{
		{Seq: 1, Type: journal.EventDispatchStarted, Endpoint: "getPost", Kind: "query", Key: key, RequestID: "req-1"},
		{Seq: 2, Type: journal.EventDuplicateSuppressed, Endpoint: "getPost", Kind: "query", Key: key, RequestID: "req-1"},
		{Seq: 3, Type: journal.EventDispatchSettled, Endpoint: "getPost", Kind: "query", Key: key, RequestID: "req-1", Status: "fulfilled"},
		{Seq: 4, Type: journal.EventEntryInvalidated, Endpoint: "getPost", Kind: "query", Key: key, RequestID: "req-1"},
		{Seq: 5, Type: journal.EventDispatchStarted, Endpoint: "getPost", Kind: "query", Key: key, RequestID: "req-2"},
		{Seq: 6, Type: journal.EventDispatchSettled, Endpoint: "getPost", Kind: "query", Key: key, RequestID: "req-2", Status: "rejected", Error: "boom"},
		{Seq: 7, Type: journal.EventEntryEvicted, Endpoint: "getPost", Kind: "query", Key: key, RequestID: "req-2"},
	}
}

func TestAssertJournalContains_Found(t *testing.T) {
	assertion := Assertion{
		Type:  AssertJournalContains,
		Event: "dispatch_settled",
	}

	err := assertJournalContains(sampleTrace(), assertion)
	assert.NoError(t, err)
}

func TestAssertJournalContains_AllFieldsMatch(t *testing.T) {
	assertion := Assertion{
		Type:      AssertJournalContains,
		Event:     "dispatch_settled",
		Endpoint:  "getPost",
		RequestID: "req-2",
		Status:    "rejected",
	}

	err := assertJournalContains(sampleTrace(), assertion)
	assert.NoError(t, err)
}

func TestAssertJournalContains_NotFound(t *testing.T) {
	assertion := Assertion{
		Type:  AssertJournalContains,
		Event: "stale_dropped",
	}

	err := assertJournalContains(sampleTrace(), assertion)
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, AssertJournalContains, assertErr.Type)
	assert.Contains(t, assertErr.Expected, "stale_dropped")
	assert.Equal(t, "not found in journal", assertErr.Actual)
}

func TestAssertJournalContains_FieldsNarrowTheMatch(t *testing.T) {
	// req-1 settled fulfilled; asking for req-1 rejected must not match
	// the rejected settlement of req-2.
	assertion := Assertion{
		Type:      AssertJournalContains,
		Event:     "dispatch_settled",
		RequestID: "req-1",
		Status:    "rejected",
	}

	err := assertJournalContains(sampleTrace(), assertion)
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Contains(t, assertErr.Expected, "request_id=req-1")
	assert.Contains(t, assertErr.Expected, "status=rejected")
}

func TestAssertJournalOrder_Correct(t *testing.T) {
	assertion := Assertion{
		Type: AssertJournalOrder,
		Events: []string{
			"dispatch_started", "duplicate_suppressed", "dispatch_settled",
			"entry_invalidated", "entry_evicted",
		},
	}

	err := assertJournalOrder(sampleTrace(), assertion)
	assert.NoError(t, err)
}

func TestAssertJournalOrder_InterveningEventsAllowed(t *testing.T) {
	assertion := Assertion{
		Type:   AssertJournalOrder,
		Events: []string{"dispatch_started", "entry_evicted"},
	}

	err := assertJournalOrder(sampleTrace(), assertion)
	assert.NoError(t, err)
}

func TestAssertJournalOrder_WrongOrder(t *testing.T) {
	assertion := Assertion{
		Type:   AssertJournalOrder,
		Events: []string{"dispatch_settled", "dispatch_started"},
	}

	err := assertJournalOrder(sampleTrace(), assertion)
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, AssertJournalOrder, assertErr.Type)
	assert.Contains(t, assertErr.Actual, "should be before")
	assert.Contains(t, assertErr.Actual, "dispatch_settled (pos 3)")
}

func TestAssertJournalOrder_MissingType(t *testing.T) {
	assertion := Assertion{
		Type:   AssertJournalOrder,
		Events: []string{"dispatch_started", "stale_dropped"},
	}

	err := assertJournalOrder(sampleTrace(), assertion)
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Contains(t, assertErr.Actual, "missing event type: stale_dropped")
}

func TestAssertJournalCount_Exact(t *testing.T) {
	tests := []struct {
		event string
		count int
	}{
		{"dispatch_started", 2},
		{"dispatch_settled", 2},
		{"duplicate_suppressed", 1},
		{"entry_invalidated", 1},
		{"entry_evicted", 1},
		{"stale_dropped", 0},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			assertion := Assertion{Type: AssertJournalCount, Event: tt.event, Count: tt.count}
			assert.NoError(t, assertJournalCount(sampleTrace(), assertion))
		})
	}
}

func TestAssertJournalCount_Mismatch(t *testing.T) {
	assertion := Assertion{
		Type:  AssertJournalCount,
		Event: "dispatch_started",
		Count: 3,
	}

	err := assertJournalCount(sampleTrace(), assertion)
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, AssertJournalCount, assertErr.Type)
	assert.Contains(t, assertErr.Expected, "3 occurrences")
	assert.Contains(t, assertErr.Actual, "2 occurrences")
}

func TestAssertJournalCount_EndpointScoped(t *testing.T) {
	events := []journal.Event{
		{Seq: 1, Type: journal.EventDispatchStarted, Endpoint: "getPost", RequestID: "req-1"},
		{Seq: 2, Type: journal.EventDispatchStarted, Endpoint: "getUser", RequestID: "req-2"},
		{Seq: 3, Type: journal.EventDispatchStarted, Endpoint: "getPost", RequestID: "req-3"},
	}

	assertion := Assertion{Type: AssertJournalCount, Event: "dispatch_started", Endpoint: "getPost", Count: 2}
	assert.NoError(t, assertJournalCount(events, assertion))

	assertion.Endpoint = "getUser"
	assertion.Count = 1
	assert.NoError(t, assertJournalCount(events, assertion))
}

func TestEvaluateAssertions_AllPass(t *testing.T) {
	actx := &AssertionContext{Events: sampleTrace()}

	assertions := []Assertion{
		{Type: AssertJournalContains, Event: "duplicate_suppressed"},
		{Type: AssertJournalOrder, Events: []string{"dispatch_started", "entry_evicted"}},
		{Type: AssertJournalCount, Event: "dispatch_settled", Count: 2},
	}

	errors := EvaluateAssertions(assertions, actx)
	assert.Empty(t, errors)
}

func TestEvaluateAssertions_CollectsFailuresInOrder(t *testing.T) {
	actx := &AssertionContext{Events: sampleTrace()}

	assertions := []Assertion{
		{Type: AssertJournalContains, Event: "duplicate_suppressed"}, // passes
		{Type: AssertJournalContains, Event: "stale_dropped"},
		{Type: AssertJournalCount, Event: "entry_evicted", Count: 4},
	}

	errors := EvaluateAssertions(assertions, actx)
	require.Len(t, errors, 2)
	assert.Contains(t, errors[0], "stale_dropped")
	assert.Contains(t, errors[1], "4 occurrences")
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	actx := &AssertionContext{Events: nil}

	errors := EvaluateAssertions([]Assertion{{Type: "trace_contains"}}, actx)
	require.Len(t, errors, 1)
	assert.Contains(t, errors[0], `unknown assertion type "trace_contains"`)
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertJournalCount,
		Expected: "1 occurrences of event stale_dropped",
		Actual:   "0 occurrences",
		Trace:    sampleTrace(),
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: journal_count")
	assert.Contains(t, msg, "Expected: 1 occurrences of event stale_dropped")
	assert.Contains(t, msg, "Actual: 0 occurrences")
	assert.Contains(t, msg, "Journal:")
	assert.Contains(t, msg, "type=dispatch_started")
	assert.Contains(t, msg, `error="boom"`)
}

func TestAssertionError_NoTraceOmitsJournal(t *testing.T) {
	err := &AssertionError{
		Type:     AssertEntries,
		Expected: "0 live entries",
		Actual:   "2 live entries",
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: entries")
	assert.NotContains(t, msg, "Journal:")
}

func TestDescribeEventMatch(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{
			name:      "event_only",
			assertion: Assertion{Event: "dispatch_settled"},
			want:      "event dispatch_settled",
		},
		{
			name:      "with_endpoint",
			assertion: Assertion{Event: "dispatch_settled", Endpoint: "getPost"},
			want:      "event dispatch_settled endpoint=getPost",
		},
		{
			name:      "all_fields",
			assertion: Assertion{Event: "dispatch_settled", Endpoint: "getPost", RequestID: "req-1", Status: "rejected"},
			want:      "event dispatch_settled endpoint=getPost request_id=req-1 status=rejected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeEventMatch(tt.assertion))
		})
	}
}
