// Package syncer pushes locally merged results upstream. Completion
// events and manual triggers funnel into one debounced, exponentially
// backed-off sync call; the backend treats the call as idempotent, so the
// coordinator only has to avoid pointless bursts, not duplicates.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raseen2305/broskies-1-sub002/internal/api"
	"github.com/raseen2305/broskies-1-sub002/internal/events"
	"github.com/raseen2305/broskies-1-sub002/internal/executor"
)

// Backend is the slice of the API client the coordinator needs.
type Backend interface {
	Sync(ctx context.Context) (*api.SyncResponse, error)
}

// Config tunes debounce and retry behavior. Zero values take the defaults.
type Config struct {
	// DebounceWindow coalesces triggers: a trigger arriving within the
	// window of the last successful sync is dropped, and a scheduled sync
	// waits out the window so only the last trigger in a burst survives.
	DebounceWindow time.Duration

	// MaxRetries bounds how many times a failed sync is retried before
	// the cycle is reported as a terminal failure.
	MaxRetries int
}

const (
	DefaultDebounceWindow = 2 * time.Second
	DefaultMaxRetries     = 3

	syncTimeout = 15 * time.Second
)

func (c Config) withDefaults() Config {
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = DefaultDebounceWindow
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// Result reports the end of one sync cycle: either a successful push or a
// terminal failure after the retry budget.
type Result struct {
	SyncedAt time.Time
	Attempts int
	Err      error
}

// State is a snapshot of the coordinator's sync bookkeeping.
type State struct {
	LastSyncAt time.Time
	RetryCount int
	Terminal   bool
	Pending    bool
}

// Coordinator owns all sync scheduling. One goroutine serializes every
// state change; triggers, timer fires and shutdown all arrive over
// channels, so no call path touches the debounce state concurrently.
type Coordinator struct {
	backend Backend
	exec    *executor.Executor
	bus     *events.Bus
	cfg     Config

	now         func() time.Time
	backoffUnit time.Duration

	triggers chan struct{}
	results  chan Result

	stateMu sync.Mutex
	state   State

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	stopped   chan struct{}
}

func New(backend Backend, exec *executor.Executor, bus *events.Bus, cfg Config) (*Coordinator, error) {
	if backend == nil {
		return nil, errors.New("syncer: backend is nil")
	}
	if exec == nil {
		return nil, errors.New("syncer: executor is nil")
	}
	return &Coordinator{
		backend:     backend,
		exec:        exec,
		bus:         bus,
		cfg:         cfg.withDefaults(),
		now:         time.Now,
		backoffUnit: time.Second,
		triggers:    make(chan struct{}, 1),
		results:     make(chan Result, 8),
		stopped:     make(chan struct{}),
	}, nil
}

// Start launches the scheduling loop and subscribes to completion events.
// Safe to call once; later calls are no-ops.
func (c *Coordinator) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		c.cancel = cancel

		var eventCh <-chan events.CompletionEvent
		unsubscribe := func() {}
		if c.bus != nil {
			eventCh, unsubscribe = c.bus.Subscribe(8)
		}

		go func() {
			defer close(c.stopped)
			defer unsubscribe()
			c.run(runCtx, eventCh)
		}()
	})
}

// Close stops the loop and waits for it to exit. Pending scheduled syncs
// are abandoned.
func (c *Coordinator) Close() {
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
			<-c.stopped
		}
	})
}

// TriggerSync requests a sync through the same debounce path as
// completion events. Bursts collapse: an already queued trigger absorbs
// new ones.
func (c *Coordinator) TriggerSync() {
	select {
	case c.triggers <- struct{}{}:
	default:
	}
}

// Results streams sync cycle outcomes. Slow consumers miss results rather
// than blocking the loop.
func (c *Coordinator) Results() <-chan Result {
	return c.results
}

// State reports the current sync bookkeeping.
func (c *Coordinator) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Coordinator) setState(mutate func(*State)) {
	c.stateMu.Lock()
	mutate(&c.state)
	c.stateMu.Unlock()
}

func (c *Coordinator) run(ctx context.Context, eventCh <-chan events.CompletionEvent) {
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)

	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() && timerC != nil {
			select {
			case <-timerC:
			default:
			}
		}
		timer = nil
		timerC = nil
	}
	defer stopTimer()

	schedule := func(d time.Duration) {
		stopTimer()
		timer = time.NewTimer(d)
		timerC = timer.C
		c.setState(func(s *State) { s.Pending = true })
	}

	// handleTrigger implements the debounce contract: a trigger inside the
	// window of the last success is dropped outright; otherwise it
	// (re)schedules the sync after the window, displacing any pending one.
	// A terminal cycle resets here and nowhere else.
	handleTrigger := func() {
		state := c.State()
		if state.Terminal {
			c.setState(func(s *State) {
				s.Terminal = false
				s.RetryCount = 0
			})
		}
		if !state.LastSyncAt.IsZero() && c.now().Sub(state.LastSyncAt) < c.cfg.DebounceWindow {
			return
		}
		schedule(c.cfg.DebounceWindow)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case _, ok := <-eventCh:
			if !ok {
				eventCh = nil
				continue
			}
			handleTrigger()

		case <-c.triggers:
			handleTrigger()

		case <-timerC:
			timer = nil
			timerC = nil
			c.setState(func(s *State) { s.Pending = false })

			err := c.push(ctx)
			if err == nil {
				at := c.now()
				var attempts int
				c.setState(func(s *State) {
					attempts = s.RetryCount + 1
					s.LastSyncAt = at
					s.RetryCount = 0
					s.Terminal = false
				})
				trySendResult(c.results, Result{SyncedAt: at, Attempts: attempts})
				continue
			}
			if ctx.Err() != nil {
				return
			}

			var retryCount int
			c.setState(func(s *State) {
				s.RetryCount++
				retryCount = s.RetryCount
			})
			if retryCount > c.cfg.MaxRetries {
				c.setState(func(s *State) { s.Terminal = true })
				trySendResult(c.results, Result{
					Attempts: retryCount,
					Err:      fmt.Errorf("sync failed after %d attempts: %w", retryCount, err),
				})
				continue
			}
			schedule(c.backoffUnit << retryCount)
		}
	}
}

// push performs one sync call. The executor supplies the timeout and
// error classification; the retry schedule belongs to the coordinator, so
// the executor budget is a single attempt.
func (c *Coordinator) push(ctx context.Context) error {
	_, err := c.exec.Do(ctx, func(ctx context.Context) (any, error) {
		return c.backend.Sync(ctx)
	}, executor.Options{Retries: 1, Timeout: syncTimeout})
	return err
}

func trySendResult(ch chan<- Result, r Result) bool {
	select {
	case ch <- r:
		return true
	default:
		return false
	}
}
