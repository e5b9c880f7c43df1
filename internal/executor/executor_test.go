package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raseen2305/broskies-1-sub002/internal/api"
)

// newTestExecutor returns an executor whose backoff sleeps complete
// instantly but are recorded, and whose clock is frozen at fixedNow.
func newTestExecutor(t *testing.T) (*Executor, *[]time.Duration) {
	t.Helper()
	fixedNow := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	e := New()
	e.cache.now = func() time.Time { return fixedNow }
	e.cooldown.now = func() time.Time { return fixedNow }

	var slept []time.Duration
	var mu sync.Mutex
	e.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return ctx.Err()
	}
	return e, &slept
}

func failingCall(status int) (Call, *int32) {
	var calls int32
	return func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &api.Error{Kind: kindForStatus(status), StatusCode: status}
	}, &calls
}

func kindForStatus(status int) api.Kind {
	switch {
	case status == 429:
		return api.KindRateLimited
	case status == 404:
		return api.KindNotFound
	case status == 409:
		return api.KindClient
	case status >= 500:
		return api.KindServer
	default:
		return api.KindClient
	}
}

func TestDo_RetriesServerErrorsToBudget(t *testing.T) {
	e, slept := newTestExecutor(t)
	call, calls := failingCall(503)

	_, err := e.Do(context.Background(), call, Options{Retries: 4, RetryDelay: time.Second})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(calls); got != 4 {
		t.Errorf("call invoked %d times, want 4", got)
	}

	apiErr, ok := api.AsError(err)
	if !ok {
		t.Fatalf("expected classified error, got %T", err)
	}
	if apiErr.StatusCode != 503 {
		t.Errorf("final error status = %d, want last failure's 503", apiErr.StatusCode)
	}
	if apiErr.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", apiErr.Attempts)
	}

	// Exponential backoff: 1s, 2s, 4s between the four attempts.
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("slept %v, want %v", *slept, want)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Errorf("backoff %d = %s, want %s", i, (*slept)[i], d)
		}
	}
}

func TestDo_NotFoundFailsFast(t *testing.T) {
	e, slept := newTestExecutor(t)
	call, calls := failingCall(404)

	_, err := e.Do(context.Background(), call, Options{Retries: 5})
	if !api.IsKind(err, api.KindNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Errorf("call invoked %d times, want exactly 1 for a 404", got)
	}
	if len(*slept) != 0 {
		t.Errorf("no backoff expected, slept %v", *slept)
	}
	apiErr, _ := api.AsError(err)
	if apiErr.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", apiErr.Attempts)
	}
}

func TestDo_RateLimitUsesFullBudget(t *testing.T) {
	e, _ := newTestExecutor(t)
	call, calls := failingCall(429)

	_, err := e.Do(context.Background(), call, Options{Retries: 3})
	if !api.IsKind(err, api.KindRateLimited) {
		t.Fatalf("expected rate-limited, got %v", err)
	}
	if got := atomic.LoadInt32(calls); got != 3 {
		t.Errorf("call invoked %d times, want 3: 429 must use the full budget", got)
	}
}

func TestDo_ExtraRetryableStatus(t *testing.T) {
	// A 409 is normally permanent, but the results endpoint has a settling
	// window where it must be treated as transient.
	e, _ := newTestExecutor(t)
	call, calls := failingCall(409)

	_, err := e.Do(context.Background(), call, Options{Retries: 3, RetryableStatus: []int{404, 409}})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(calls); got != 3 {
		t.Errorf("call invoked %d times, want 3 with 409 marked retryable", got)
	}
}

func TestDo_SuccessAfterTransientFailures(t *testing.T) {
	e, _ := newTestExecutor(t)
	var calls int32
	call := func(ctx context.Context) (any, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, &api.Error{Kind: api.KindServer, StatusCode: 502}
		}
		return "payload", nil
	}

	val, err := e.Do(context.Background(), call, Options{Retries: 3})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if val != "payload" {
		t.Errorf("val = %v, want payload", val)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("call invoked %d times, want 3", got)
	}
}

func TestDo_CacheWindow(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	e := New()
	e.cache.now = func() time.Time { return now }
	e.cooldown.now = func() time.Time { return now }
	e.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	var calls int32
	call := func(ctx context.Context) (any, error) {
		return atomic.AddInt32(&calls, 1), nil
	}
	opts := Options{CacheKey: "user:octocat", CacheTTL: 5 * time.Minute}

	// Two calls inside the TTL share one invocation.
	for i := 0; i < 2; i++ {
		val, err := e.Do(context.Background(), call, opts)
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		if val != int32(1) {
			t.Errorf("val = %v, want 1", val)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("call invoked %d times inside TTL, want 1", got)
	}

	// Past the TTL the entry is stale and the call runs again.
	now = now.Add(5*time.Minute + time.Second)
	val, err := e.Do(context.Background(), call, opts)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if val != int32(2) {
		t.Errorf("val = %v, want 2 after expiry", val)
	}
}

func TestDo_FailuresAreNotCached(t *testing.T) {
	e, _ := newTestExecutor(t)
	call, calls := failingCall(500)

	opts := Options{CacheKey: "user:octocat", Retries: 2}
	if _, err := e.Do(context.Background(), call, opts); err == nil {
		t.Fatal("expected error")
	}
	if _, err := e.Do(context.Background(), call, opts); err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(calls); got != 4 {
		t.Errorf("call invoked %d times, want 4: errors must not populate the cache", got)
	}
	if e.CacheSize() != 0 {
		t.Errorf("cache size = %d, want 0", e.CacheSize())
	}
}

func TestDo_SingleFlightCollapsesConcurrentCalls(t *testing.T) {
	e := New()
	var calls int32
	release := make(chan struct{})
	call := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "shared", nil
	}

	const n = 5
	var wg sync.WaitGroup
	results := make([]any, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			val, err := e.Do(context.Background(), call, Options{CacheKey: "user:octocat"})
			if err != nil {
				t.Errorf("Do: %v", err)
				return
			}
			results[i] = val
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("call invoked %d times, want 1 across concurrent callers", got)
	}
	for i, val := range results {
		if val != "shared" {
			t.Errorf("caller %d got %v, want shared", i, val)
		}
	}
}

func TestDo_RateLimitHintExtendsCooldown(t *testing.T) {
	e, _ := newTestExecutor(t)
	call := func(ctx context.Context) (any, error) {
		return nil, &api.Error{Kind: api.KindRateLimited, StatusCode: 429, RetryAfter: 30 * time.Second}
	}

	_, err := e.Do(context.Background(), call, Options{Retries: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := e.CooldownRemaining(); got != 30*time.Second {
		t.Errorf("CooldownRemaining = %s, want 30s", got)
	}
}

func TestDo_OnExhaustedFiresOnce(t *testing.T) {
	e, _ := newTestExecutor(t)
	call, _ := failingCall(500)

	var hookCalls int32
	var hookErr error
	_, err := e.Do(context.Background(), call, Options{
		Retries: 3,
		OnExhausted: func(err error) {
			atomic.AddInt32(&hookCalls, 1)
			hookErr = err
		},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&hookCalls); got != 1 {
		t.Errorf("OnExhausted fired %d times, want 1", got)
	}
	if !errors.Is(hookErr, err) {
		t.Errorf("hook error %v does not match returned error %v", hookErr, err)
	}

	// Permanent failures never reach the hook.
	atomic.StoreInt32(&hookCalls, 0)
	notFound, _ := failingCall(404)
	_, _ = e.Do(context.Background(), notFound, Options{
		Retries:     3,
		OnExhausted: func(error) { atomic.AddInt32(&hookCalls, 1) },
	})
	if got := atomic.LoadInt32(&hookCalls); got != 0 {
		t.Errorf("OnExhausted fired %d times for a permanent failure, want 0", got)
	}
}

func TestDo_CancelledDuringBackoffReturnsLastError(t *testing.T) {
	e := New()
	e.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}
	call, calls := failingCall(500)

	_, err := e.Do(context.Background(), call, Options{Retries: 3})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Errorf("call invoked %d times, want 1 before the cancelled backoff", got)
	}
	apiErr, ok := api.AsError(err)
	if !ok {
		t.Fatalf("expected classified error, got %T", err)
	}
	if apiErr.StatusCode != 500 {
		t.Errorf("expected the last observed failure, got %v", err)
	}
	if apiErr.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", apiErr.Attempts)
	}
}

func TestDo_InvalidInputs(t *testing.T) {
	e, _ := newTestExecutor(t)

	var nilCtx context.Context
	if _, err := e.Do(nilCtx, func(ctx context.Context) (any, error) { return nil, nil }, Options{}); err == nil {
		t.Error("expected error for nil context")
	}
	if _, err := e.Do(context.Background(), nil, Options{}); err == nil {
		t.Error("expected error for nil call")
	}
}

func TestMaintenanceOperations(t *testing.T) {
	e, _ := newTestExecutor(t)
	ok := func(ctx context.Context) (any, error) { return "v", nil }

	for _, key := range []string{"a", "b", "c"} {
		if _, err := e.Do(context.Background(), ok, Options{CacheKey: key}); err != nil {
			t.Fatalf("Do(%s): %v", key, err)
		}
	}

	if got := e.CacheSize(); got != 3 {
		t.Errorf("CacheSize = %d, want 3", got)
	}
	keys := e.CacheKeys()
	if len(keys) != 3 {
		t.Errorf("CacheKeys = %v, want 3 keys", keys)
	}

	if !e.Invalidate("b") {
		t.Error("Invalidate(b) = false, want true")
	}
	if e.Invalidate("b") {
		t.Error("second Invalidate(b) = true, want false")
	}
	if got := e.CacheSize(); got != 2 {
		t.Errorf("CacheSize after invalidate = %d, want 2", got)
	}

	e.InvalidateAll()
	if got := e.CacheSize(); got != 0 {
		t.Errorf("CacheSize after InvalidateAll = %d, want 0", got)
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.Retries != DefaultRetries {
		t.Errorf("Retries = %d, want %d", o.Retries, DefaultRetries)
	}
	if o.RetryDelay != DefaultRetryDelay {
		t.Errorf("RetryDelay = %s, want %s", o.RetryDelay, DefaultRetryDelay)
	}
	if o.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %s, want %s", o.Timeout, DefaultTimeout)
	}
	if o.CacheTTL != DefaultCacheTTL {
		t.Errorf("CacheTTL = %s, want %s", o.CacheTTL, DefaultCacheTTL)
	}

	// Explicit values survive.
	o = Options{Retries: 7, RetryDelay: time.Millisecond, Timeout: time.Minute, CacheTTL: time.Hour}.withDefaults()
	if o.Retries != 7 || o.RetryDelay != time.Millisecond || o.Timeout != time.Minute || o.CacheTTL != time.Hour {
		t.Errorf("explicit options overwritten: %+v", o)
	}
}
