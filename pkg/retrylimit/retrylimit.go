// Package retrylimit retries outbound calls with exponential backoff behind
// an adaptive rate limiter. Errors carrying an HTTP status get special
// treatment: 429 slows the limiter, 5xx backs off, other 4xx stop at once.
//
//	r := retrylimit.New(retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5), retrylimit.DefaultPolicy(), log)
//	err := r.Do(ctx, "nuget search", func(ctx context.Context) error {
//	    return fetch(ctx)
//	})
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrAttemptsExhausted is wrapped by Do when every attempt failed.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// AdaptiveLimiter raises its rate after quiet successes and cuts it after
// rate-limit or server errors.
type AdaptiveLimiter struct {
	mu        sync.RWMutex
	limiter   *rate.Limiter
	minLimit  rate.Limit
	maxLimit  rate.Limit
	stepUp    rate.Limit
	stepDown  float64
	lastError time.Time
	cooldown  time.Duration
}

// NewAdaptiveLimiter starts at initial requests per second, stays within
// [min, max], adds stepUp on success and multiplies by stepDown on failure.
func NewAdaptiveLimiter(initial, min, max, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	initial = clamp(initial, min, max)
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(initial, burstFor(initial)),
		minLimit: min,
		maxLimit: max,
		stepUp:   stepUp,
		stepDown: stepDown,
		cooldown: 10 * time.Second,
	}
}

// Wait blocks until a token is available or ctx ends.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// Success raises the rate unless an error was seen within the cooldown.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.lastError) > a.cooldown {
		a.set(a.limiter.Limit() + a.stepUp)
	}
}

// RateLimited lowers the rate.
func (a *AdaptiveLimiter) RateLimited() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = time.Now()
	a.set(rate.Limit(float64(a.limiter.Limit()) * a.stepDown))
}

// CurrentLimit returns the current requests per second.
func (a *AdaptiveLimiter) CurrentLimit() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return float64(a.limiter.Limit())
}

func (a *AdaptiveLimiter) set(limit rate.Limit) {
	limit = clamp(limit, a.minLimit, a.maxLimit)
	if limit == a.limiter.Limit() {
		return
	}
	a.limiter.SetLimit(limit)
	a.limiter.SetBurst(burstFor(limit))
}

// StatusError is implemented by errors that carry an HTTP status code.
type StatusError interface {
	error
	StatusCode() int
}

// PermanentError stops retrying immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Policy configures backoff.
type Policy struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	RateLimitDelay time.Duration
	Multiplier     float64
	Jitter         bool
}

// DefaultPolicy suits interactive lookups: a handful of quick attempts.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    4,
		InitialDelay:   250 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		RateLimitDelay: time.Second,
		Multiplier:     2,
		Jitter:         true,
	}
}

// Retrier runs calls under a Policy and an optional limiter.
type Retrier struct {
	lim    *AdaptiveLimiter
	policy Policy
	log    zerolog.Logger
}

// New builds a Retrier. lim may be nil.
func New(lim *AdaptiveLimiter, policy Policy, log zerolog.Logger) *Retrier {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}
	return &Retrier{lim: lim, policy: policy, log: log.With().Str("component", "retry").Logger()}
}

// Do calls fn until it succeeds, returns a permanent error, ctx ends or
// the attempts run out.
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	delay := r.policy.InitialDelay
	var last error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.lim != nil {
			if err := r.lim.Wait(ctx); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			if r.lim != nil {
				r.lim.Success()
			}
			if attempt > 1 {
				r.log.Debug().Str("op", op).Int("attempt", attempt).Msg("succeeded after retry")
			}
			return nil
		}
		last = err

		if !Retryable(err) {
			return err
		}

		wait := delay
		if status, ok := statusOf(err); ok && status == http.StatusTooManyRequests {
			if r.lim != nil {
				r.lim.RateLimited()
			}
			wait = r.policy.RateLimitDelay
		} else {
			if ok && status >= 500 && r.lim != nil {
				r.lim.RateLimited()
			}
			if r.policy.Jitter {
				wait = jitter(wait)
			}
			delay = min(time.Duration(float64(delay)*r.policy.Multiplier), r.policy.MaxDelay)
		}

		if attempt == r.policy.MaxAttempts {
			break
		}
		r.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("wait", wait).Msg("retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrAttemptsExhausted, r.policy.MaxAttempts, last)
}

// Retryable reports whether err is worth another attempt. Permanent errors
// and 4xx statuses other than 408 and 429 are not.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}
	if status, ok := statusOf(err); ok && status >= 400 && status < 500 {
		return status == http.StatusTooManyRequests || status == http.StatusRequestTimeout
	}
	return true
}

func statusOf(err error) (int, bool) {
	var se StatusError
	if errors.As(err, &se) {
		return se.StatusCode(), true
	}
	return 0, false
}

// jitter adds up to a quarter of d.
func jitter(d time.Duration) time.Duration {
	if d < 4 {
		return d
	}
	return d + rand.N(d/4)
}

func clamp(v, lo, hi rate.Limit) rate.Limit {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func burstFor(l rate.Limit) int {
	return max(1, int(l))
}
