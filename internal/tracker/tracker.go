// Package tracker drives the lifecycle of one backend analysis job: it
// polls the status endpoint on a fixed interval, maps wire statuses onto
// the canonical phase machine, and on completion reconciles the fetched
// results into the persisted scorecard before raising a completion event.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raseen2305/broskies-1-sub002/internal/api"
	"github.com/raseen2305/broskies-1-sub002/internal/events"
	"github.com/raseen2305/broskies-1-sub002/internal/executor"
	"github.com/raseen2305/broskies-1-sub002/internal/scorecard"
	"github.com/raseen2305/broskies-1-sub002/internal/store"
)

// Backend is the slice of the API client the tracker needs.
type Backend interface {
	JobStatus(ctx context.Context, jobID string) (*api.StatusResponse, error)
	JobResults(ctx context.Context, jobID string) (*api.ResultsResponse, error)
}

// Store persists merged scorecards between runs.
type Store interface {
	Load(ctx context.Context, login string) (*scorecard.Scorecard, error)
	Save(ctx context.Context, card *scorecard.Scorecard) error
}

// Config tunes the polling loop. Zero values take the defaults.
type Config struct {
	// PollInterval is the fixed wait between status fetches.
	PollInterval time.Duration

	// StallLimit is how many consecutive status fetch failures are
	// tolerated before the session gives up with ErrStalled. Each fetch
	// already carries the executor's own retry budget.
	StallLimit int
}

const (
	DefaultPollInterval = 2 * time.Second
	DefaultStallLimit   = 5

	statusTimeout     = 10 * time.Second
	resultsTimeout    = 30 * time.Second
	resultsRetries    = 4
	resultsRetryDelay = 500 * time.Millisecond
)

// resultsRetryStatus covers the settling window right after a job turns
// Complete, when the results endpoint may briefly answer 404 or 409.
var resultsRetryStatus = []int{404, 409}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StallLimit <= 0 {
		c.StallLimit = DefaultStallLimit
	}
	return c
}

// Update is one progress observation, emitted whenever the phase or the
// displayed percentage moves.
type Update struct {
	JobID      string
	Login      string
	Phase      Phase
	Percentage float64
	Progress   api.Progress
	Message    string
}

// Outcome is the single terminal result of a session. Card is set on
// success; Err on job failure, stalled polling, or cancellation. Progress
// always holds the last observed counts, preserved even on failure.
type Outcome struct {
	JobID    string
	Login    string
	Card     *scorecard.Scorecard
	Partial  bool
	Missing  int
	Progress api.Progress
	Err      error
}

// Session is one tracked job. Updates is a lossy display stream; Done
// delivers exactly one Outcome and is then closed.
type Session struct {
	jobID   string
	login   string
	updates chan Update
	done    chan Outcome
	cancel  context.CancelFunc
}

func (s *Session) JobID() string { return s.jobID }
func (s *Session) Login() string { return s.login }

// Updates streams progress observations. Slow consumers miss intermediate
// updates rather than stalling the poll loop. Closed when the session ends.
func (s *Session) Updates() <-chan Update { return s.updates }

// Done delivers the session's single Outcome, then closes.
func (s *Session) Done() <-chan Outcome { return s.done }

// Tracker owns all live sessions. One Tracker is shared per process.
type Tracker struct {
	backend Backend
	exec    *executor.Executor
	store   Store
	bus     *events.Bus
	cfg     Config
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
	closed   bool
}

func New(backend Backend, exec *executor.Executor, st Store, bus *events.Bus, cfg Config) (*Tracker, error) {
	if backend == nil {
		return nil, errors.New("tracker: backend is nil")
	}
	if exec == nil {
		return nil, errors.New("tracker: executor is nil")
	}
	return &Tracker{
		backend:  backend,
		exec:     exec,
		store:    st,
		bus:      bus,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}, nil
}

// Track begins polling jobID and returns its session. Tracking an already
// tracked job returns the existing session unchanged, so concurrent
// callers share one poll loop and one outcome.
func (t *Tracker) Track(ctx context.Context, jobID, login string) (*Session, error) {
	if ctx == nil {
		return nil, errors.New("tracker: nil context")
	}
	if jobID == "" {
		return nil, errors.New("tracker: job id is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, errors.New("tracker: closed")
	}
	if s, ok := t.sessions[jobID]; ok {
		return s, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		jobID:   jobID,
		login:   login,
		updates: make(chan Update, 16),
		done:    make(chan Outcome, 1),
		cancel:  cancel,
	}
	t.sessions[jobID] = s

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()
		t.run(runCtx, s)
	}()
	return s, nil
}

// Stop cancels the session for jobID, reporting whether one was live. The
// session's Outcome reflects the cancellation.
func (t *Tracker) Stop(jobID string) bool {
	t.mu.Lock()
	s, ok := t.sessions[jobID]
	t.mu.Unlock()
	if ok {
		s.cancel()
	}
	return ok
}

// Tracking reports whether jobID currently has a live session.
func (t *Tracker) Tracking(jobID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[jobID]
	return ok
}

// Close cancels every live session and waits for their loops to exit, so
// no timers or goroutines outlive the tracker.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	for _, s := range t.sessions {
		s.cancel()
	}
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Tracker) remove(jobID string) {
	t.mu.Lock()
	delete(t.sessions, jobID)
	t.mu.Unlock()
}

func (t *Tracker) run(ctx context.Context, s *Session) {
	defer t.remove(s.jobID)

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	finish := func(out Outcome) {
		out.JobID = s.jobID
		if out.Login == "" {
			out.Login = s.login
		}
		s.done <- out
		close(s.done)
		close(s.updates)
	}

	var (
		lastPhase = PhaseStarted
		lastPct   float64
		lastProg  api.Progress
		observed  bool
		failures  int
	)

	for {
		status, err := t.fetchStatus(ctx, s.jobID)
		switch {
		case err != nil && ctx.Err() != nil:
			finish(Outcome{Err: api.Classify(ctx.Err()), Progress: lastProg})
			return

		case err != nil:
			failures++
			if failures >= t.cfg.StallLimit {
				finish(Outcome{
					Err:      fmt.Errorf("%w after %d consecutive status failures: %w", ErrStalled, failures, err),
					Progress: lastProg,
				})
				return
			}

		default:
			failures = 0
			phase := phaseFor(status.Status, lastPhase)
			pct := displayPercentage(phase, status.Progress, lastPct)
			prog := status.Progress
			if prog == (api.Progress{}) {
				prog = lastProg
			}

			if !observed || phase != lastPhase || pct != lastPct {
				trySendUpdate(s.updates, Update{
					JobID:      s.jobID,
					Login:      s.login,
					Phase:      phase,
					Percentage: pct,
					Progress:   prog,
					Message:    status.Message,
				})
			}
			lastPhase, lastPct, lastProg, observed = phase, pct, prog, true

			switch phase {
			case PhaseComplete:
				finish(t.completeJob(ctx, s, prog))
				return
			case PhaseFailed:
				finish(Outcome{
					Err: &JobError{
						JobID:    s.jobID,
						Message:  status.Message,
						Detail:   status.Error,
						Progress: prog,
					},
					Progress: prog,
				})
				return
			}
		}

		select {
		case <-ctx.Done():
			finish(Outcome{Err: api.Classify(ctx.Err()), Progress: lastProg})
			return
		case <-ticker.C:
		}
	}
}

// completeJob runs the terminal-success path: fetch results, merge them
// into the persisted scorecard, publish the completion event. Partial
// completion (fewer repos evaluated than requested) is a warning carried
// on the outcome, never an error.
func (t *Tracker) completeJob(ctx context.Context, s *Session, prog api.Progress) Outcome {
	results, err := t.fetchResults(ctx, s.jobID)
	if err != nil {
		return Outcome{Err: fmt.Errorf("job complete but results fetch failed: %w", err), Progress: prog}
	}

	login := results.Login
	if login == "" {
		login = s.login
	}

	var prev *scorecard.Scorecard
	if t.store != nil && login != "" {
		prev, err = t.store.Load(ctx, login)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return Outcome{Err: fmt.Errorf("load previous scorecard: %w", err), Progress: prog}
		}
	}

	card := scorecard.Merge(prev, scorecard.PatchFromResults(results))
	if t.store != nil && login != "" {
		if err := t.store.Save(ctx, card); err != nil {
			return Outcome{Err: fmt.Errorf("persist merged scorecard: %w", err), Progress: prog}
		}
	}

	partial := prog.Evaluated < prog.ToEvaluate
	missing := 0
	if partial {
		missing = prog.ToEvaluate - prog.Evaluated
	}

	if t.bus != nil {
		t.bus.Publish(events.CompletionEvent{
			JobID:   s.jobID,
			Login:   login,
			Score:   card.Score,
			Partial: partial,
			Missing: missing,
			At:      t.now(),
		})
	}

	return Outcome{
		Login:    login,
		Card:     card,
		Partial:  partial,
		Missing:  missing,
		Progress: prog,
	}
}

// fetchStatus goes through the executor without a cache key: status must
// always be fresh.
func (t *Tracker) fetchStatus(ctx context.Context, jobID string) (*api.StatusResponse, error) {
	val, err := t.exec.Do(ctx, func(ctx context.Context) (any, error) {
		return t.backend.JobStatus(ctx, jobID)
	}, executor.Options{Timeout: statusTimeout})
	if err != nil {
		return nil, err
	}
	status, ok := val.(*api.StatusResponse)
	if !ok || status == nil {
		return nil, fmt.Errorf("unexpected status payload %T", val)
	}
	return status, nil
}

func (t *Tracker) fetchResults(ctx context.Context, jobID string) (*api.ResultsResponse, error) {
	val, err := t.exec.Do(ctx, func(ctx context.Context) (any, error) {
		return t.backend.JobResults(ctx, jobID)
	}, executor.Options{
		Timeout:         resultsTimeout,
		Retries:         resultsRetries,
		RetryDelay:      resultsRetryDelay,
		RetryableStatus: resultsRetryStatus,
	})
	if err != nil {
		return nil, err
	}
	results, ok := val.(*api.ResultsResponse)
	if !ok || results == nil {
		return nil, fmt.Errorf("unexpected results payload %T", val)
	}
	return results, nil
}

func trySendUpdate(ch chan<- Update, u Update) bool {
	select {
	case ch <- u:
		return true
	default:
		return false
	}
}
