package navigator

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/dexnav/internal/fetch"
	"github.com/jask/dexnav/internal/sequencer"
)

func entityFor(id int) fetch.Entity {
	return fetch.Entity{ID: id, Name: fmt.Sprintf("mon-%d", id), Height: id, Weight: id * 10}
}

// catalogFetcher answers immediately: ids inside rng load, others 404.
func catalogFetcher(rng sequencer.Range) fetch.Fetcher {
	return fetch.FetcherFunc(func(ctx context.Context, id int) (fetch.Entity, error) {
		if !rng.Contains(id) {
			return fetch.Entity{}, &fetch.Error{Kind: fetch.KindHTTPStatus, ID: id, StatusCode: http.StatusNotFound}
		}
		return entityFor(id), nil
	})
}

type fetchReply struct {
	entity fetch.Entity
	err    error
}

// pendingFetch is one call blocked inside manualFetcher until the test
// answers it.
type pendingFetch struct {
	id    int
	reply chan fetchReply
}

func (p pendingFetch) succeed() { p.reply <- fetchReply{entity: entityFor(p.id)} }

func (p pendingFetch) fail(err error) { p.reply <- fetchReply{err: err} }

// manualFetcher lets tests decide when and in which order fetches resolve.
type manualFetcher struct {
	calls chan pendingFetch
}

func newManualFetcher() *manualFetcher {
	return &manualFetcher{calls: make(chan pendingFetch, 32)}
}

func (m *manualFetcher) Fetch(ctx context.Context, id int) (fetch.Entity, error) {
	p := pendingFetch{id: id, reply: make(chan fetchReply, 1)}
	m.calls <- p
	select {
	case r := <-p.reply:
		return r.entity, r.err
	case <-ctx.Done():
		return fetch.Entity{}, &fetch.Error{Kind: fetch.KindTransport, ID: id, Err: ctx.Err()}
	}
}

func (m *manualFetcher) next(t *testing.T) pendingFetch {
	t.Helper()
	select {
	case p := <-m.calls:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no fetch issued")
		return pendingFetch{}
	}
}

func (m *manualFetcher) requireIdle(t *testing.T) {
	t.Helper()
	select {
	case p := <-m.calls:
		t.Fatalf("unexpected fetch for #%d", p.id)
	case <-time.After(20 * time.Millisecond):
	}
}

type recordingRecorder struct {
	mu   sync.Mutex
	seen []Resolution
}

func (r *recordingRecorder) Record(_ context.Context, res Resolution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, res)
	return nil
}

func (r *recordingRecorder) resolutions() []Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Resolution(nil), r.seen...)
}

type countingMetrics struct {
	mu        sync.Mutex
	accepted  map[Command]int
	rejected  map[Command]int
	outcomes  map[Outcome]int
	inFlight  int
	maxFlight int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		accepted: map[Command]int{},
		rejected: map[Command]int{},
		outcomes: map[Outcome]int{},
	}
}

func (m *countingMetrics) CommandIssued(cmd Command, accepted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if accepted {
		m.accepted[cmd]++
	} else {
		m.rejected[cmd]++
	}
}

func (m *countingMetrics) FetchStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight++
	if m.inFlight > m.maxFlight {
		m.maxFlight = m.inFlight
	}
}

func (m *countingMetrics) FetchResolved(r Resolution) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
	m.outcomes[r.Outcome]++
}

func newController(t *testing.T, f fetch.Fetcher, opts ...Option) *Controller {
	t.Helper()
	c, err := New(f, sequencer.DefaultRange, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func waitForState(t *testing.T, c *Controller, cond func(State) bool) State {
	t.Helper()
	require.Eventually(t, func() bool { return cond(c.Snapshot()) }, 2*time.Second, 5*time.Millisecond)
	return c.Snapshot()
}

func settled(s State) bool { return s.Phase == PhaseLoaded || s.Phase == PhaseFailed }
