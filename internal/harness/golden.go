package harness

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/quiverlabs/quiver/journal"
)

// RenderTrace formats journal events one per line for golden
// comparison. Timestamps render as offsets from the scenario epoch so
// fixtures stay readable; key hashes are omitted, the key itself is
// present.
func RenderTrace(events []journal.Event) []byte {
	var buf bytes.Buffer
	for _, ev := range events {
		buf.WriteString(formatEvent(ev))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// formatEvent renders one journal event. Field order is fixed; fields
// an event type never populates are omitted.
func formatEvent(ev journal.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "seq=%d at=%s type=%s endpoint=%s",
		ev.Seq, ev.At.Sub(scenarioEpoch), ev.Type, ev.Endpoint)
	if ev.Kind != "" {
		fmt.Fprintf(&b, " kind=%s", ev.Kind)
	}
	fmt.Fprintf(&b, " key=%s", ev.Key)
	if ev.RequestID != "" {
		fmt.Fprintf(&b, " request_id=%s", ev.RequestID)
	}
	if ev.Status != "" {
		fmt.Fprintf(&b, " status=%s duration_ms=%d", ev.Status, ev.DurationMS)
	}
	if ev.Error != "" {
		fmt.Fprintf(&b, " error=%q", ev.Error)
	}
	return b.String()
}

// RunGolden executes a scenario and compares its journal trace against
// testdata/golden/{scenario.Name}.golden. Returns scenario execution
// errors; trace mismatches fail the test through goldie.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	AssertGolden(t, scenario.Name, result.Trace)
	return nil
}

// AssertGolden compares an already-captured trace against the golden
// file for name. Useful when the caller also needs the result the run
// produced.
func AssertGolden(t *testing.T, name string, trace []journal.Event) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, RenderTrace(trace))
}
