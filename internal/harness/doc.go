// Package harness executes YAML lifecycle scenarios against a real
// Client and compares the resulting journal traces against golden
// fixtures.
//
// A scenario defines endpoints, scripts base query responses, drives
// the client through a sequence of steps, and asserts on the final
// cache state and journal contents.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario exercises"
//	endpoints:
//	  - name: getPost
//	    kind: query
//	    stale_after: 30s
//	    keep_unused_for: 60s
//	responses:
//	  - endpoint: getPost
//	    args: { id: 1 }
//	    results:
//	      - data: { id: 1, title: "hello" }
//	      - error: "upstream 500"
//	steps:
//	  - initiate: getPost
//	    args: { id: 1 }
//	    as: reader
//	  - await: reader
//	    expect: fulfilled
//	assertions:
//	  - type: status
//	    endpoint: getPost
//	    args: { id: 1 }
//	    status: fulfilled
//	  - type: calls
//	    endpoint: getPost
//	    args: { id: 1 }
//	    count: 1
//
// # Steps
//
// Each step performs exactly one operation:
//
//   - initiate: start or join the lifecycle for an endpoint and
//     argument; "as" names the resulting handle
//   - await: block until the named handle's entry settles
//   - select: read a snapshot without dispatching or subscribing
//   - update_args: feed the handle's next argument through the
//     re-trigger policy
//   - refetch: force a new dispatch on the handle's key
//   - unsubscribe: drop the handle's subscription
//   - invalidate: mark an entry's data unusable for cache hits
//   - advance: move the fake clock forward by a duration
//   - hold / release: gate the next dispatch of a route so pending
//     states and shared dispatches happen on purpose
//   - wait_event: block until the journal holds N events of a type,
//     absorbing asynchronous settlements and evictions
//
// await and select accept "expect" (a lifecycle status) and
// "error_contains"; mismatches fail the scenario without aborting it.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - status: select a snapshot and verify status, data, or error text
//   - calls: verify how many base query dispatches hit a route
//   - entries: verify the number of live cache entries
//   - journal_contains: verify an event matching the given fields exists
//   - journal_order: verify event types first appear in the given order
//   - journal_count: verify an event type occurs exactly N times
//
// # Deterministic Traces
//
// Every run gets a fake clock pinned to a fixed epoch, sequential
// request IDs, an in-memory journal, and a scripted base query, so one
// scenario always produces one byte-identical trace. Dispatches settle
// on goroutines; scenarios stay deterministic by synchronizing with
// await after every initiation they care about, and with wait_event
// after releases and clock advances.
//
// # Usage
//
// Load and run a scenario:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/dedup.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
