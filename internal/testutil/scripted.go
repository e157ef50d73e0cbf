package testutil

import (
	"fmt"
	"sync"

	"github.com/quiverlabs/quiver"
	"github.com/quiverlabs/quiver/argval"
)

// ScriptedQuery is a programmable BaseQuery for tests.
//
// Responses are registered per route (endpoint plus canonical argument)
// and consumed in order; the last registered response repeats once the
// queue drains. Routes with no script reject with a descriptive error
// so a test that dispatches unexpectedly fails fast.
//
// Hold gates the next dispatch on a route until released, which lets
// tests observe pending states, exercise deduplication, and order
// settlements deterministically.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex; Run is called from the client's dispatch goroutines.
type ScriptedQuery struct {
	mu        sync.Mutex
	responses map[string][]quiver.Result
	gates     map[string][]chan struct{}
	calls     map[string]int
	total     int
}

// NewScriptedQuery creates an empty script.
func NewScriptedQuery() *ScriptedQuery {
	return &ScriptedQuery{
		responses: make(map[string][]quiver.Result),
		gates:     make(map[string][]chan struct{}),
		calls:     make(map[string]int),
	}
}

// Fulfilled builds a successful result envelope.
func Fulfilled(data argval.Value) quiver.Result {
	return quiver.Result{Data: data}
}

// Rejected builds a failed result envelope.
func Rejected(err error) quiver.Result {
	return quiver.Result{Err: err}
}

// Respond queues results for dispatches of (endpoint, arg). Successive
// dispatches consume the queue in order; the final result repeats.
func (q *ScriptedQuery) Respond(endpoint string, arg argval.Value, results ...quiver.Result) {
	route := routeFor(endpoint, arg)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.responses[route] = append(q.responses[route], results...)
}

// RespondAny queues results for any dispatch of endpoint whose input is
// not routable (a prepare hook produced a non-Value input).
func (q *ScriptedQuery) RespondAny(endpoint string, results ...quiver.Result) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.responses[endpoint] = append(q.responses[endpoint], results...)
}

// Hold gates the next dispatch arriving at (endpoint, arg) until the
// returned release function is called. Each Hold captures exactly one
// dispatch; later dispatches run ungated unless held again. Release is
// idempotent.
//
// A held dispatch consumes its scripted response on arrival, so
// response order follows arrival order even when settlements are
// reordered by holds.
func (q *ScriptedQuery) Hold(endpoint string, arg argval.Value) (release func()) {
	route := routeFor(endpoint, arg)
	ch := make(chan struct{})

	q.mu.Lock()
	q.gates[route] = append(q.gates[route], ch)
	q.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(ch)
		})
	}
}

// Calls returns how many dispatches hit (endpoint, arg).
func (q *ScriptedQuery) Calls(endpoint string, arg argval.Value) int {
	route := routeFor(endpoint, arg)
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls[route]
}

// TotalCalls returns how many dispatches ran across all routes.
func (q *ScriptedQuery) TotalCalls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.total
}

// Run implements the base query. Pass the method value to quiver.New:
//
//	client := quiver.New(script.Run)
func (q *ScriptedQuery) Run(qctx quiver.QueryContext, input any, extra quiver.ExtraOptions) quiver.Result {
	route := qctx.Endpoint
	if v, ok := input.(argval.Value); ok || input == nil {
		route = routeFor(qctx.Endpoint, v)
	}

	q.mu.Lock()
	q.calls[route]++
	q.total++
	var gate chan struct{}
	if pending := q.gates[route]; len(pending) > 0 {
		gate = pending[0]
		q.gates[route] = pending[1:]
	}

	queue := q.responses[route]
	var res quiver.Result
	var scripted bool
	switch len(queue) {
	case 0:
	case 1:
		res, scripted = queue[0], true
	default:
		res, scripted = queue[0], true
		q.responses[route] = queue[1:]
	}
	q.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-qctx.Context.Done():
			return quiver.Result{Err: qctx.Context.Err()}
		}
	}

	if !scripted {
		return quiver.Result{Err: fmt.Errorf("no scripted response for %s", route)}
	}
	return res
}

// routeFor renders the same key form the cache table uses, so scripts
// and assertions line up with journal rows.
func routeFor(endpoint string, arg argval.Value) string {
	key, err := argval.ForEndpoint(endpoint, arg)
	if err != nil {
		return endpoint + "(!" + err.Error() + ")"
	}
	return key.String()
}
