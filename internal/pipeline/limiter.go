// Package pipeline implements the Execution Pipeline (C4): a bounded task
// group enforcing a global API concurrency semaphore, per-collector
// timeouts, batching for high-fanout collectors, and retry/backoff with
// process-wide rate-limit adaptation.
package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/domain"
)

// Limiter is the sole backpressure mechanism against the upstream API: a
// global semaphore bounding concurrent in-flight calls, shaped by a token
// bucket, plus a process-wide rate-limit pause flag set by any caller that
// observes a 429 and cleared by its own deadline.
type Limiter struct {
	sem chan struct{}
	tb  *rate.Limiter

	pauseUntil atomic.Int64 // unix nanosecond deadline; 0 means no active pause

	maxRetries         int
	rateLimitRetryWait time.Duration
}

// LimiterOptions configures a new Limiter.
type LimiterOptions struct {
	ConcurrencyLimit   int
	MaxRetries         int
	RateLimitRetryWait time.Duration
}

// NewLimiter constructs a Limiter per opts.
func NewLimiter(opts LimiterOptions) *Limiter {
	limit := opts.ConcurrencyLimit
	if limit <= 0 {
		limit = 5
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	wait := opts.RateLimitRetryWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Limiter{
		sem:                make(chan struct{}, limit),
		tb:                 rate.NewLimiter(rate.Limit(limit*4), limit*4),
		maxRetries:         retries,
		rateLimitRetryWait: wait,
	}
}

// Pause blocks all future Acquire calls from granting until d has elapsed.
// Called by any caller observing a 429; process-wide, not per-collector.
func (l *Limiter) Pause(d time.Duration) {
	deadline := time.Now().Add(d).UnixNano()
	l.pauseUntil.Store(deadline)
}

// Paused reports whether the pause window is currently active.
func (l *Limiter) Paused() bool {
	return time.Now().UnixNano() < l.pauseUntil.Load()
}

// Acquire waits for both the rate shaper and a concurrency slot, honoring
// any active pause window, then returns a release function. Acquire is the
// sole suspension point collectors pass through before an upstream call.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	for {
		if wait := l.pauseRemaining(); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, &domain.APIError{Category: domain.ErrCancellation, Err: ctx.Err()}
			}
			continue
		}
		break
	}
	if err := l.tb.Wait(ctx); err != nil {
		return nil, &domain.APIError{Category: domain.ErrCancellation, Err: err}
	}
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, nil
	case <-ctx.Done():
		return nil, &domain.APIError{Category: domain.ErrCancellation, Err: ctx.Err()}
	}
}

func (l *Limiter) pauseRemaining() time.Duration {
	deadline := l.pauseUntil.Load()
	if deadline == 0 {
		return 0
	}
	remaining := time.Until(time.Unix(0, deadline))
	if remaining <= 0 {
		return 0
	}
	return remaining
}

// Do executes fn under the global semaphore with retry/backoff per the
// error taxonomy: 429 triggers a process-wide pause and is retried; 5xx is
// retried with exponential backoff bounded at 60s; 4xx (non-429, non-404)
// and 404 are surfaced immediately without retry.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		release, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		err = fn(ctx)
		release()
		if err == nil {
			return nil
		}
		lastErr = err

		var apiErr *domain.APIError
		if !errors.As(err, &apiErr) {
			return err
		}
		switch apiErr.Category {
		case domain.ErrAPIRateLimit:
			wait := l.rateLimitRetryWait
			if apiErr.RetryAfter > 0 {
				wait = time.Duration(apiErr.RetryAfter) * time.Second
			}
			l.Pause(wait)
			if attempt == l.maxRetries {
				return err
			}
			continue
		case domain.ErrAPIServerError, domain.ErrTimeout:
			if attempt == l.maxRetries {
				return err
			}
			if waitErr := sleepWithContext(ctx, backoffDelay(attempt)); waitErr != nil {
				return waitErr
			}
			continue
		default:
			return err
		}
	}
	return lastErr
}

// backoffDelay computes exponential backoff with jitter, bounded at 60s.
func backoffDelay(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 60*time.Second {
		base = 60 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base/2 + 1)))
	if d := base + jitter; d < 60*time.Second {
		return d
	}
	return 60 * time.Second
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return &domain.APIError{Category: domain.ErrCancellation, Err: ctx.Err()}
	}
}
