package quiver_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiverlabs/quiver"
	"github.com/quiverlabs/quiver/argval"
	"github.com/quiverlabs/quiver/internal/testutil"
)

func TestMetricsCountTableActivity(t *testing.T) {
	script := testutil.NewScriptedQuery()
	release := script.Hold("getUser", nil)
	script.Respond("getUser", nil, testutil.Fulfilled(argval.Int(1)))

	reg := prometheus.NewRegistry()
	client := quiver.New(script.Run, quiver.WithMetrics(reg))
	defer client.Close()

	_, err := client.DefineQuery("getUser")
	require.NoError(t, err)

	// One dispatch, one dedup join.
	h1, err := client.Initiate("getUser", nil, quiver.WithSubscriberID("sub-a"))
	require.NoError(t, err)
	_, err = client.Initiate("getUser", nil, quiver.WithSubscriberID("sub-b"))
	require.NoError(t, err)

	release()
	awaitSettled(t, h1)

	// One cache hit.
	_, err = client.Initiate("getUser", nil, quiver.WithSubscriberID("sub-c"))
	require.NoError(t, err)

	// One forced re-dispatch.
	h4, err := client.Initiate("getUser", nil, quiver.WithSubscriberID("sub-d"), quiver.WithForceRefetch())
	require.NoError(t, err)
	awaitSettled(t, h4)

	expected := `
		# HELP quiver_cache_entries Live cache entries
		# TYPE quiver_cache_entries gauge
		quiver_cache_entries 1
		# HELP quiver_cache_hits_total Initiations served from a fresh fulfilled entry
		# TYPE quiver_cache_hits_total counter
		quiver_cache_hits_total{endpoint="getUser"} 1
		# HELP quiver_dedup_hits_total Initiations absorbed by an in-flight dispatch for the same key
		# TYPE quiver_dedup_hits_total counter
		quiver_dedup_hits_total{endpoint="getUser"} 1
		# HELP quiver_dispatches_total Total base query dispatches started
		# TYPE quiver_dispatches_total counter
		quiver_dispatches_total{endpoint="getUser",kind="query"} 2
	`
	err = promtestutil.GatherAndCompare(reg, strings.NewReader(expected),
		"quiver_cache_entries",
		"quiver_cache_hits_total",
		"quiver_dedup_hits_total",
		"quiver_dispatches_total",
	)
	assert.NoError(t, err)
}

func TestMetricsCountEvictionsAndSubscriptions(t *testing.T) {
	script := testutil.NewScriptedQuery()
	script.Respond("getUser", nil, testutil.Fulfilled(argval.Int(1)))

	reg := prometheus.NewRegistry()
	client := quiver.New(script.Run, quiver.WithMetrics(reg))
	defer client.Close()

	_, err := client.DefineQuery("getUser", quiver.WithKeepUnusedFor(0))
	require.NoError(t, err)

	h, err := client.Initiate("getUser", nil)
	require.NoError(t, err)
	awaitSettled(t, h)

	expected := `
		# HELP quiver_subscriptions Active subscriptions across all entries
		# TYPE quiver_subscriptions gauge
		quiver_subscriptions 1
	`
	require.NoError(t, promtestutil.GatherAndCompare(reg, strings.NewReader(expected), "quiver_subscriptions"))

	h.Unsubscribe()

	expected = `
		# HELP quiver_entries_evicted_total Cache entries removed after their unused grace period elapsed
		# TYPE quiver_entries_evicted_total counter
		quiver_entries_evicted_total{endpoint="getUser"} 1
		# HELP quiver_subscriptions Active subscriptions across all entries
		# TYPE quiver_subscriptions gauge
		quiver_subscriptions 0
		# HELP quiver_cache_entries Live cache entries
		# TYPE quiver_cache_entries gauge
		quiver_cache_entries 0
	`
	assert.NoError(t, promtestutil.GatherAndCompare(reg, strings.NewReader(expected),
		"quiver_entries_evicted_total",
		"quiver_subscriptions",
		"quiver_cache_entries",
	))
}

func TestMetricsDisabledByDefault(t *testing.T) {
	script := testutil.NewScriptedQuery()
	script.Respond("getUser", nil, testutil.Fulfilled(argval.Int(1)))

	// No registry attached: everything still works.
	client := quiver.New(script.Run)
	defer client.Close()

	_, err := client.DefineQuery("getUser")
	require.NoError(t, err)

	h, err := client.Initiate("getUser", nil)
	require.NoError(t, err)
	snap := awaitSettled(t, h)
	assert.Equal(t, quiver.StatusFulfilled, snap.Status)
}
