package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiverlabs/quiver"
	"github.com/quiverlabs/quiver/argval"
)

func queryContext(endpoint string) quiver.QueryContext {
	return quiver.QueryContext{
		Context:   context.Background(),
		Endpoint:  endpoint,
		RequestID: "req-test",
	}
}

func TestScriptedQuery_RoutesByEndpointAndArg(t *testing.T) {
	script := NewScriptedQuery()
	script.Respond("getPost", argval.NewObject(argval.P("id", argval.Int(1))), Fulfilled(argval.String("one")))
	script.Respond("getPost", argval.NewObject(argval.P("id", argval.Int(2))), Fulfilled(argval.String("two")))

	res := script.Run(queryContext("getPost"), argval.NewObject(argval.P("id", argval.Int(2))), nil)
	require.NoError(t, res.Err)
	assert.Equal(t, argval.String("two"), res.Data)

	res = script.Run(queryContext("getPost"), argval.NewObject(argval.P("id", argval.Int(1))), nil)
	require.NoError(t, res.Err)
	assert.Equal(t, argval.String("one"), res.Data)
}

func TestScriptedQuery_RouteIgnoresPropertyOrder(t *testing.T) {
	script := NewScriptedQuery()
	script.Respond("search",
		argval.NewObject(argval.P("q", argval.String("go")), argval.P("page", argval.Int(1))),
		Fulfilled(argval.String("hit")),
	)

	// Same properties registered in one order, dispatched in the other
	res := script.Run(queryContext("search"),
		argval.NewObject(argval.P("page", argval.Int(1)), argval.P("q", argval.String("go"))),
		nil,
	)
	require.NoError(t, res.Err)
	assert.Equal(t, argval.String("hit"), res.Data)
}

func TestScriptedQuery_ConsumesQueueInOrder(t *testing.T) {
	script := NewScriptedQuery()
	arg := argval.NewObject(argval.P("id", argval.Int(1)))
	script.Respond("getPost", arg,
		Fulfilled(argval.String("v1")),
		Fulfilled(argval.String("v2")),
		Fulfilled(argval.String("v3")),
	)

	for _, want := range []string{"v1", "v2", "v3"} {
		res := script.Run(queryContext("getPost"), arg, nil)
		require.NoError(t, res.Err)
		assert.Equal(t, argval.String(want), res.Data)
	}
}

func TestScriptedQuery_LastResponseRepeats(t *testing.T) {
	script := NewScriptedQuery()
	arg := argval.NewObject(argval.P("id", argval.Int(1)))
	script.Respond("getPost", arg, Fulfilled(argval.String("only")))

	for i := 0; i < 3; i++ {
		res := script.Run(queryContext("getPost"), arg, nil)
		require.NoError(t, res.Err)
		assert.Equal(t, argval.String("only"), res.Data)
	}
}

func TestScriptedQuery_RejectedResult(t *testing.T) {
	script := NewScriptedQuery()
	boom := errors.New("backend down")
	script.Respond("getPost", nil, Rejected(boom))

	res := script.Run(queryContext("getPost"), nil, nil)
	assert.ErrorIs(t, res.Err, boom)
	assert.Nil(t, res.Data)
}

func TestScriptedQuery_UnscriptedRouteFails(t *testing.T) {
	script := NewScriptedQuery()

	res := script.Run(queryContext("getPost"), nil, nil)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "no scripted response for getPost()")
}

func TestScriptedQuery_RespondAnyHandlesPreparedInput(t *testing.T) {
	script := NewScriptedQuery()
	script.RespondAny("getPost", Fulfilled(argval.String("prepared")))

	// A prepare hook turned the argument into a plain string; routing
	// falls back to the endpoint name alone.
	res := script.Run(queryContext("getPost"), "/posts/1", nil)
	require.NoError(t, res.Err)
	assert.Equal(t, argval.String("prepared"), res.Data)
}

func TestScriptedQuery_CountsCalls(t *testing.T) {
	script := NewScriptedQuery()
	one := argval.NewObject(argval.P("id", argval.Int(1)))
	two := argval.NewObject(argval.P("id", argval.Int(2)))
	script.Respond("getPost", one, Fulfilled(argval.Null{}))
	script.Respond("getPost", two, Fulfilled(argval.Null{}))

	script.Run(queryContext("getPost"), one, nil)
	script.Run(queryContext("getPost"), one, nil)
	script.Run(queryContext("getPost"), two, nil)

	assert.Equal(t, 2, script.Calls("getPost", one))
	assert.Equal(t, 1, script.Calls("getPost", two))
	assert.Equal(t, 3, script.TotalCalls())
}

func TestScriptedQuery_HoldBlocksUntilRelease(t *testing.T) {
	script := NewScriptedQuery()
	arg := argval.NewObject(argval.P("id", argval.Int(1)))
	script.Respond("getPost", arg, Fulfilled(argval.String("held")))

	release := script.Hold("getPost", arg)

	done := make(chan quiver.Result, 1)
	go func() {
		done <- script.Run(queryContext("getPost"), arg, nil)
	}()

	// The dispatch arrives (call counted) but must not settle yet
	require.Eventually(t, func() bool {
		return script.Calls("getPost", arg) == 1
	}, time.Second, time.Millisecond)

	select {
	case <-done:
		t.Fatal("held dispatch settled before release")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case res := <-done:
		require.NoError(t, res.Err)
		assert.Equal(t, argval.String("held"), res.Data)
	case <-time.After(time.Second):
		t.Fatal("released dispatch never settled")
	}
}

func TestScriptedQuery_HoldCapturesOneDispatch(t *testing.T) {
	script := NewScriptedQuery()
	arg := argval.NewObject(argval.P("id", argval.Int(1)))
	script.Respond("getPost", arg,
		Fulfilled(argval.String("first")),
		Fulfilled(argval.String("second")),
	)

	release := script.Hold("getPost", arg)

	var wg sync.WaitGroup
	wg.Add(1)
	var heldRes quiver.Result
	go func() {
		defer wg.Done()
		heldRes = script.Run(queryContext("getPost"), arg, nil)
	}()

	require.Eventually(t, func() bool {
		return script.Calls("getPost", arg) == 1
	}, time.Second, time.Millisecond)

	// Second dispatch is not gated and settles immediately. The held
	// dispatch already consumed the first response on arrival.
	res := script.Run(queryContext("getPost"), arg, nil)
	require.NoError(t, res.Err)
	assert.Equal(t, argval.String("second"), res.Data)

	release()
	wg.Wait()
	require.NoError(t, heldRes.Err)
	assert.Equal(t, argval.String("first"), heldRes.Data)
}

func TestScriptedQuery_HoldReleaseIdempotent(t *testing.T) {
	script := NewScriptedQuery()
	release := script.Hold("getPost", nil)
	release()
	release() // must not panic
}

func TestScriptedQuery_HeldDispatchHonorsContext(t *testing.T) {
	script := NewScriptedQuery()
	script.Respond("getPost", nil, Fulfilled(argval.Null{}))
	script.Hold("getPost", nil) // never released

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	qctx := queryContext("getPost")
	qctx.Context = ctx

	res := script.Run(qctx, nil, nil)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}
