// Package navigator owns the browsing session: it turns navigation commands
// into fetches and folds their results into a single State.
//
// Superseded fetches are not cancelled. Each fetch carries the generation it
// was started under and its result is dropped on arrival unless that
// generation is still the newest one.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/jask/dexnav/internal/fetch"
	"github.com/jask/dexnav/internal/sequencer"
)

var (
	ErrAlreadyInitialized = errors.New("navigator: already initialized")
	ErrClosed             = errors.New("navigator: closed")
)

const recordTimeout = 2 * time.Second

// Recorder receives every resolution after state has been updated.
type Recorder interface {
	Record(ctx context.Context, r Resolution) error
}

// Metrics observes controller activity.
type Metrics interface {
	CommandIssued(cmd Command, accepted bool)
	FetchStarted()
	FetchResolved(r Resolution)
}

type nopMetrics struct{}

func (nopMetrics) CommandIssued(Command, bool) {}
func (nopMetrics) FetchStarted()               {}
func (nopMetrics) FetchResolved(Resolution)    {}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithGate(g Gate) Option {
	return func(c *Controller) { c.gate = g }
}

// WithCallerGating is shorthand for WithGate(GateCaller).
func WithCallerGating() Option { return WithGate(GateCaller) }

func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

func WithMetrics(m Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithContext sets the parent of every fetch context. Cancelling it aborts
// outstanding fetches, as Close does.
func WithContext(ctx context.Context) Option {
	return func(c *Controller) {
		if ctx != nil {
			c.parent = ctx
		}
	}
}

// Controller is safe for concurrent use. All state mutation happens under mu.
type Controller struct {
	fetcher  fetch.Fetcher
	rng      sequencer.Range
	gate     Gate
	logger   *slog.Logger
	recorder Recorder
	metrics  Metrics
	parent   context.Context

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       State
	initialized bool
	closed      bool
	subs        map[int]chan State
	nextSub     int

	inFlight atomic.Int32
	wg       sync.WaitGroup
}

// New creates a controller over rng. The session starts idle with
// CurrentID at rng.Min; call Initialize to issue the first fetch.
func New(f fetch.Fetcher, rng sequencer.Range, opts ...Option) (*Controller, error) {
	if f == nil {
		return nil, errors.New("navigator: fetcher required")
	}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		fetcher: f,
		rng:     rng,
		gate:    GateSuppress,
		logger:  slog.Default(),
		metrics: nopMetrics{},
		parent:  context.Background(),
		state:   State{CurrentID: rng.Min, Phase: PhaseIdle},
		subs:    make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(c.parent)
	return c, nil
}

// Range returns the fixed id range.
func (c *Controller) Range() sequencer.Range { return c.rng }

// Gate returns the gating policy.
func (c *Controller) Gate() Gate { return c.gate }

// Initialize sets CurrentID to the range minimum and fetches it. It may be
// called once.
func (c *Controller) Initialize() error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.initialized:
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.initialized = true
	id := c.rng.Min
	gen := c.beginLocked(id)
	c.mu.Unlock()

	c.metrics.CommandIssued(CommandInitialize, true)
	c.start(CommandInitialize, id, gen)
	return nil
}

// GoNext fetches the next id, wrapping past the range maximum.
func (c *Controller) GoNext() bool {
	return c.command(CommandNext, func(cur int) int { return c.rng.Next(cur, sequencer.Forward) })
}

// GoPrevious fetches the previous id, wrapping before the range minimum.
func (c *Controller) GoPrevious() bool {
	return c.command(CommandPrevious, func(cur int) int { return c.rng.Next(cur, sequencer.Backward) })
}

// Reload refetches CurrentID.
func (c *Controller) Reload() bool {
	return c.command(CommandReload, func(cur int) int { return cur })
}

// ForceInvalid fetches id without checking it against the range. It is
// used to drive the failure path on purpose.
func (c *Controller) ForceInvalid(id int) bool {
	return c.command(CommandInvalid, func(int) int { return id })
}

// GoTo fetches an arbitrary id. Like ForceInvalid it does not range-check;
// whether id names an entity is for the remote end to decide.
func (c *Controller) GoTo(id int) bool {
	return c.command(CommandGoTo, func(int) int { return id })
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InFlight returns the number of fetches that have not returned yet,
// including superseded ones.
func (c *Controller) InFlight() int { return int(c.inFlight.Load()) }

// Subscribe returns a channel that receives the current state immediately
// and then every later change. Delivery coalesces: a slow reader skips
// intermediate states but always ends up with the latest one. The returned
// func unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	key := c.nextSub
	c.nextSub++
	c.subs[key] = ch
	ch <- c.state
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[key]; ok {
				delete(c.subs, key)
				close(sub)
			}
		})
	}
}

// Wait blocks until every started fetch has resolved. It must not race with
// new commands.
func (c *Controller) Wait() { c.wg.Wait() }

// Close rejects further commands, cancels outstanding fetches, waits for
// them and closes all subscriptions.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	for key, ch := range c.subs {
		delete(c.subs, key)
		close(ch)
	}
	c.mu.Unlock()
}

func (c *Controller) command(cmd Command, target func(cur int) int) bool {
	c.mu.Lock()
	if !c.acceptLocked() {
		phase := c.state.Phase
		c.mu.Unlock()
		c.metrics.CommandIssued(cmd, false)
		c.logger.Debug("command suppressed", "command", cmd, "phase", phase)
		return false
	}
	id := target(c.state.CurrentID)
	gen := c.beginLocked(id)
	c.mu.Unlock()

	c.metrics.CommandIssued(cmd, true)
	c.start(cmd, id, gen)
	return true
}

func (c *Controller) acceptLocked() bool {
	if c.closed || !c.initialized {
		return false
	}
	return c.gate == GateCaller || c.state.Phase != PhaseLoading
}

// beginLocked moves the session into PhaseLoading for id and returns the new
// generation.
func (c *Controller) beginLocked(id int) uint64 {
	c.state = State{
		CurrentID:  id,
		Phase:      PhaseLoading,
		Generation: c.state.Generation + 1,
	}
	c.wg.Add(1)
	c.publishLocked()
	return c.state.Generation
}

func (c *Controller) start(cmd Command, id int, gen uint64) {
	n := c.inFlight.Inc()
	c.metrics.FetchStarted()
	c.logger.Debug("fetch started", "command", cmd, "id", id, "generation", gen, "in_flight", n)

	go func() {
		defer c.wg.Done()

		started := time.Now()
		entity, err := c.fetcher.Fetch(c.ctx, id)
		c.inFlight.Dec()

		res := c.resolve(Resolution{
			ID:         id,
			Generation: gen,
			Command:    cmd,
			Duration:   time.Since(started),
		}, entity, err)
		c.metrics.FetchResolved(res)

		if c.recorder != nil {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), recordTimeout)
			if rerr := c.recorder.Record(ctx, res); rerr != nil {
				c.logger.Warn("record resolution", "id", id, "generation", gen, "error", rerr)
			}
			cancel()
		}
	}()
}

func (c *Controller) resolve(res Resolution, entity fetch.Entity, err error) Resolution {
	if err == nil {
		e := entity
		res.Entity = &e
	} else {
		res.Err = err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || res.Generation != c.state.Generation {
		res.Outcome = OutcomeStale
		c.logger.Debug("stale result discarded", "id", res.ID, "generation", res.Generation, "current", c.state.Generation)
		return res
	}

	next := State{CurrentID: c.state.CurrentID, Generation: c.state.Generation}
	if err != nil {
		res.Outcome = OutcomeFailed
		next.Phase = PhaseFailed
		next.Err = describe(res.ID, err)
		next.ErrKind = fetch.KindOf(err)
		next.StatusCode = fetch.StatusCode(err)
		c.logger.Info("fetch failed", "id", res.ID, "generation", res.Generation, "kind", next.ErrKind, "error", err)
	} else {
		res.Outcome = OutcomeLoaded
		next.Phase = PhaseLoaded
		next.Entity = res.Entity
		c.logger.Info("fetch loaded", "id", res.ID, "generation", res.Generation, "name", entity.Name, "elapsed", res.Duration)
	}
	c.state = next
	c.publishLocked()
	return res
}

// publishLocked hands the current state to every subscriber without
// blocking, replacing any state the subscriber has not read yet.
func (c *Controller) publishLocked() {
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- c.state:
		default:
		}
	}
}

func describe(id int, err error) string {
	var fe *fetch.Error
	if errors.As(err, &fe) {
		return fe.Error()
	}
	return fmt.Sprintf("fetch #%d failed: %v", id, err)
}
