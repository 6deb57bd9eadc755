package orders

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"grocer/internal/inventory"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen indicates the circuit breaker is open.
var ErrCircuitOpen = gobreaker.ErrOpenState

// RetryPolicy controls retry behavior for outbound calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      func(time.Duration) time.Duration
	Sleep       func(context.Context, time.Duration) error
	ShouldRetry func(error) bool
}

// Do executes the function with retries according to the policy.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}
	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = retryable
	}
	jitter := p.Jitter
	if jitter == nil {
		jitter = defaultJitter
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		if attempt == attempts || !shouldRetry(err) {
			return err
		}

		delay := p.BaseDelay
		if delay > 0 {
			delay = delay << (attempt - 1)
		}
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		delay = jitter(delay)
		if delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsClientError reports whether err is a verdict on the request itself.
// Repeating the call cannot change the answer, and the dependency that gave
// it is healthy.
func IsClientError(err error) bool {
	return errors.Is(err, inventory.ErrItemNotFound) ||
		errors.Is(err, inventory.ErrInvalidLine) ||
		errors.Is(err, inventory.ErrNegativeQuantity) ||
		errors.Is(err, inventory.ErrOrderIDRequired) ||
		errors.Is(err, inventory.ErrAlreadyReserved) ||
		errors.Is(err, ErrInvalidOrder)
}

func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, ErrCircuitOpen) &&
		!errors.Is(err, gobreaker.ErrTooManyRequests) &&
		!IsClientError(err)
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	Name         string
	MaxFailures  int
	ResetTimeout time.Duration
}

// NewCircuitBreaker builds a breaker that opens after MaxFailures
// consecutive failures and lets one trial call through after ResetTimeout.
// Client errors count as successes.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker {
	maxFails := cfg.MaxFailures
	if maxFails < 1 {
		maxFails = 1
	}
	resetAfter := cfg.ResetTimeout
	if resetAfter <= 0 {
		resetAfter = 2 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     resetAfter,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFails)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsClientError(err)
		},
	})
}

func executeWithBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	if cb == nil {
		return fn()
	}
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// RateLimiter is a token-bucket limiter.
type RateLimiter struct {
	mu     sync.Mutex
	rate   time.Duration
	burst  int
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
	onWait func(time.Duration)

	tokens int
	last   time.Time
}

// NewRateLimiter constructs a limiter that refills one token every rate.
func NewRateLimiter(rate time.Duration, burst int) *RateLimiter {
	limiter := &RateLimiter{
		rate:  rate,
		burst: burst,
		now:   time.Now,
		sleep: sleepWithContext,
	}
	limiter.tokens = burst
	limiter.last = limiter.now()
	return limiter
}

// OnWait registers fn to be called with every wait the limiter imposes.
func (r *RateLimiter) OnWait(fn func(time.Duration)) *RateLimiter {
	if r != nil {
		r.onWait = fn
	}
	return r
}

// Wait blocks until a token is available or the context ends.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil || r.rate <= 0 || r.burst <= 0 {
		if ctx == nil {
			return nil
		}
		return ctx.Err()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.mu.Lock()
		now := r.now()
		r.refill(now)
		if r.tokens > 0 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		wait := r.rate - now.Sub(r.last)
		r.mu.Unlock()
		if wait <= 0 {
			continue
		}
		if r.onWait != nil {
			r.onWait(wait)
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (r *RateLimiter) refill(now time.Time) {
	if r.rate <= 0 {
		r.tokens = r.burst
		r.last = now
		return
	}
	elapsed := now.Sub(r.last)
	if elapsed < r.rate {
		return
	}
	add := int(elapsed / r.rate)
	if add <= 0 {
		return
	}
	r.tokens += add
	if r.tokens > r.burst {
		r.tokens = r.burst
	}
	r.last = r.last.Add(time.Duration(add) * r.rate)
}

// ReliablePaymentClient wraps a PaymentClient with reliability controls.
type ReliablePaymentClient struct {
	base    PaymentClient
	limiter *RateLimiter
	breaker *gobreaker.CircuitBreaker
	retry   RetryPolicy
}

// NewReliablePaymentClient constructs a reliability-wrapped payment client.
func NewReliablePaymentClient(base PaymentClient, limiter *RateLimiter, breaker *gobreaker.CircuitBreaker, retry RetryPolicy) *ReliablePaymentClient {
	return &ReliablePaymentClient{
		base:    base,
		limiter: limiter,
		breaker: breaker,
		retry:   retry,
	}
}

func (c *ReliablePaymentClient) Charge(ctx context.Context, orderID string, amount float64) (string, error) {
	return guarded(ctx, c.limiter, c.breaker, c.retry, func() (string, error) {
		return c.base.Charge(ctx, orderID, amount)
	})
}

func (c *ReliablePaymentClient) Refund(ctx context.Context, orderID, paymentID string, amount float64) error {
	_, err := guarded(ctx, c.limiter, c.breaker, c.retry, func() (struct{}, error) {
		return struct{}{}, c.base.Refund(ctx, orderID, paymentID, amount)
	})
	return err
}

// ReliableInventoryClient wraps an InventoryClient with reliability controls.
// A declined reservation is an answer, not a failure, and never trips the
// breaker.
type ReliableInventoryClient struct {
	base    InventoryClient
	limiter *RateLimiter
	breaker *gobreaker.CircuitBreaker
	retry   RetryPolicy
}

// NewReliableInventoryClient constructs a reliability-wrapped inventory client.
func NewReliableInventoryClient(base InventoryClient, limiter *RateLimiter, breaker *gobreaker.CircuitBreaker, retry RetryPolicy) *ReliableInventoryClient {
	return &ReliableInventoryClient{
		base:    base,
		limiter: limiter,
		breaker: breaker,
		retry:   retry,
	}
}

func (c *ReliableInventoryClient) Reserve(ctx context.Context, orderID string, lines []inventory.Line) (bool, error) {
	return guarded(ctx, c.limiter, c.breaker, c.retry, func() (bool, error) {
		return c.base.Reserve(ctx, orderID, lines)
	})
}

func (c *ReliableInventoryClient) Release(ctx context.Context, orderID string, lines []inventory.Line) error {
	_, err := guarded(ctx, c.limiter, c.breaker, c.retry, func() (struct{}, error) {
		return struct{}{}, c.base.Release(ctx, orderID, lines)
	})
	return err
}

func guarded[T any](ctx context.Context, limiter *RateLimiter, breaker *gobreaker.CircuitBreaker, retry RetryPolicy, fn func() (T, error)) (T, error) {
	var out T
	err := retry.Do(ctx, func() error {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		res, err := executeWithBreaker(breaker, fn)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func defaultJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
