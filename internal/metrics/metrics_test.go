package metrics

import (
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/jask/dexnav/internal/navigator"
)

func TestCollectorCounts(t *testing.T) {
	t.Parallel()

	c := New()
	c.CommandIssued(navigator.CommandNext, true)
	c.CommandIssued(navigator.CommandNext, false)
	c.CommandIssued(navigator.CommandNext, false)
	c.FetchStarted()
	c.FetchStarted()
	c.FetchResolved(navigator.Resolution{Outcome: navigator.OutcomeLoaded, Duration: 120 * time.Millisecond})
	c.FetchResolved(navigator.Resolution{Outcome: navigator.OutcomeStale, Duration: time.Second})

	require.Equal(t, 1.0, testutil.ToFloat64(c.commands.WithLabelValues("next", "true")))
	require.Equal(t, 2.0, testutil.ToFloat64(c.commands.WithLabelValues("next", "false")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.fetches.WithLabelValues("loaded")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.staleDiscards))
	require.Equal(t, 0.0, testutil.ToFloat64(c.inFlight))
}

func TestInFlightGaugeUnderConcurrentFetches(t *testing.T) {
	t.Parallel()

	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.FetchStarted()
			c.FetchResolved(navigator.Resolution{Outcome: navigator.OutcomeLoaded})
		}()
	}
	wg.Wait()
	require.Equal(t, 0.0, testutil.ToFloat64(c.inFlight))

	c.FetchStarted()
	c.FetchStarted()
	c.FetchResolved(navigator.Resolution{Outcome: navigator.OutcomeStale})
	require.Equal(t, 1.0, testutil.ToFloat64(c.inFlight))
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	c := New()
	c.CommandIssued(navigator.CommandReload, true)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `dexnav_commands_total{accepted="true",command="reload"} 1`)
	require.Contains(t, string(body), "dexnav_fetches_in_flight 0")
}
