// Package executor wraps individual backend calls with a per-attempt
// timeout, an exponential retry budget, a shared TTL cache and in-flight
// deduplication. It owns no domain knowledge: callers hand it a closure
// and a policy, and receive either a payload or a classified error.
package executor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/raseen2305/broskies-1-sub002/internal/api"
)

// Call is one attempt against the backend. The context carries the
// per-attempt deadline; implementations must honor it.
type Call func(ctx context.Context) (any, error)

// Defaults applied by Options.withDefaults when a field is zero.
const (
	DefaultRetries    = 3
	DefaultRetryDelay = 1 * time.Second
	DefaultTimeout    = 30 * time.Second
	DefaultCacheTTL   = 5 * time.Minute
)

// Options is the per-call policy. The zero value is usable: it means the
// defaults above with no caching.
type Options struct {
	// Retries is the total attempt budget, not the number of re-tries.
	Retries int

	// RetryDelay is the base backoff. The wait before attempt k+1 is
	// RetryDelay * 2^(k-1); there is no wait before the first attempt.
	RetryDelay time.Duration

	// Timeout bounds each individual attempt.
	Timeout time.Duration

	// CacheKey enables caching and in-flight deduplication when non-empty.
	CacheKey string

	// CacheTTL is the lifetime of a cached success. Zero means DefaultCacheTTL.
	CacheTTL time.Duration

	// RetryableStatus lists extra HTTP statuses to treat as transient on
	// top of the built-in policy. Used for endpoints with known settling
	// windows, e.g. a results fetch answering 404 just after completion.
	RetryableStatus []int

	// OnExhausted, when set, fires once after the final failed attempt of
	// a retryable error. Off by default so background polling stays silent.
	OnExhausted func(err error)
}

func (o Options) withDefaults() Options {
	if o.Retries <= 0 {
		o.Retries = DefaultRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = DefaultCacheTTL
	}
	return o
}

// Executor runs calls under a retry/caching policy. One instance is shared
// by every component that talks to the backend, so the cache and the
// rate-limit cooldown are process-wide but explicitly owned.
type Executor struct {
	cache    *Cache
	cooldown *cooldown
	group    singleflight.Group
	sleep    func(ctx context.Context, d time.Duration) error
}

func New() *Executor {
	return &Executor{
		cache:    NewCache(),
		cooldown: newCooldown(),
		sleep:    sleepCtx,
	}
}

// Do runs call under opts. Cached payloads are returned without invoking
// call; concurrent calls sharing a CacheKey collapse into one flight, and
// every sharer receives the winner's result. Failures come back as
// classified *api.Error values with Attempts set once the budget is spent.
func (e *Executor) Do(ctx context.Context, call Call, opts Options) (any, error) {
	if ctx == nil {
		return nil, fmt.Errorf("executor: nil context")
	}
	if call == nil {
		return nil, fmt.Errorf("executor: nil call")
	}
	opts = opts.withDefaults()

	if opts.CacheKey == "" {
		return e.run(ctx, call, opts)
	}

	if val, ok := e.cache.Get(opts.CacheKey); ok {
		return val, nil
	}

	val, err, _ := e.group.Do(opts.CacheKey, func() (interface{}, error) {
		return e.run(ctx, call, opts)
	})
	if err == nil {
		e.cache.Set(opts.CacheKey, val, opts.CacheTTL)
	}
	return val, err
}

func (e *Executor) run(ctx context.Context, call Call, opts Options) (any, error) {
	var lastErr *api.Error
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		if attempt > 1 {
			delay := opts.RetryDelay << (attempt - 2)
			if err := e.sleep(ctx, delay); err != nil {
				return nil, e.abort(err, lastErr, attempt-1)
			}
		}
		if err := e.cooldown.wait(ctx); err != nil {
			return nil, e.abort(err, lastErr, attempt-1)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		val, err := call(attemptCtx)
		cancel()
		if err == nil {
			return val, nil
		}

		apiErr := api.Classify(err)
		if apiErr.Kind == api.KindRateLimited && apiErr.RetryAfter > 0 {
			e.cooldown.extend(apiErr.RetryAfter)
		}
		lastErr = apiErr

		if !retryable(apiErr, opts.RetryableStatus) {
			apiErr.Attempts = attempt
			return nil, apiErr
		}
	}

	lastErr.Attempts = opts.Retries
	if opts.OnExhausted != nil {
		opts.OnExhausted(lastErr)
	}
	return nil, lastErr
}

// abort resolves the error to report when the surrounding context ends
// mid-backoff: the last observed call failure when one exists, otherwise
// the classified context error.
func (e *Executor) abort(ctxErr error, lastErr *api.Error, attempts int) error {
	if lastErr != nil {
		lastErr.Attempts = attempts
		return lastErr
	}
	return api.Classify(ctxErr)
}

func retryable(err *api.Error, extraStatus []int) bool {
	if err.Retryable() {
		return true
	}
	for _, code := range extraStatus {
		if err.StatusCode == code {
			return true
		}
	}
	return false
}

// Invalidate drops the cached payload for key, reporting whether one existed.
func (e *Executor) Invalidate(key string) bool {
	return e.cache.Invalidate(key)
}

// InvalidateAll drops every cached payload.
func (e *Executor) InvalidateAll() {
	e.cache.InvalidateAll()
}

// CacheSize reports the number of live cache entries.
func (e *Executor) CacheSize() int {
	return e.cache.Size()
}

// CacheKeys reports the keys of all live cache entries.
func (e *Executor) CacheKeys() []string {
	return e.cache.Keys()
}

// CooldownRemaining reports how long new attempts will be held by a
// rate-limit cooldown, zero when none is active.
func (e *Executor) CooldownRemaining() time.Duration {
	return e.cooldown.remaining()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		if !timer.Stop() {
			<-timer.C
		}
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
