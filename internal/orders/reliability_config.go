package orders

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ReliabilityConfig tunes the retry, breaker and rate limit wrapped around
// an outbound client.
type ReliabilityConfig struct {
	RetryMaxAttempts    int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
	RateLimitInterval   time.Duration
	RateLimitBurst      int
}

// DefaultReliabilityConfig is used for any variable left unset.
var DefaultReliabilityConfig = ReliabilityConfig{
	RetryMaxAttempts:    3,
	RetryBaseDelay:      50 * time.Millisecond,
	RetryMaxDelay:       500 * time.Millisecond,
	BreakerMaxFailures:  5,
	BreakerResetTimeout: 5 * time.Second,
}

// LoadReliabilityConfig reads <prefix>_RETRY_MAX_ATTEMPTS,
// <prefix>_RETRY_BASE_DELAY, <prefix>_RETRY_MAX_DELAY,
// <prefix>_BREAKER_MAX_FAILURES, <prefix>_BREAKER_RESET_TIMEOUT,
// <prefix>_RATE_LIMIT_INTERVAL and <prefix>_RATE_LIMIT_BURST.
// A rate limit interval of zero disables limiting.
func LoadReliabilityConfig(prefix string) (ReliabilityConfig, error) {
	cfg := DefaultReliabilityConfig
	var err error

	if cfg.RetryMaxAttempts, err = parseInt(prefix+"_RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts); err != nil {
		return cfg, err
	}
	if cfg.RetryBaseDelay, err = parseDuration(prefix+"_RETRY_BASE_DELAY", cfg.RetryBaseDelay); err != nil {
		return cfg, err
	}
	if cfg.RetryMaxDelay, err = parseDuration(prefix+"_RETRY_MAX_DELAY", cfg.RetryMaxDelay); err != nil {
		return cfg, err
	}
	if cfg.BreakerMaxFailures, err = parseInt(prefix+"_BREAKER_MAX_FAILURES", cfg.BreakerMaxFailures); err != nil {
		return cfg, err
	}
	if cfg.BreakerResetTimeout, err = parseDuration(prefix+"_BREAKER_RESET_TIMEOUT", cfg.BreakerResetTimeout); err != nil {
		return cfg, err
	}
	if cfg.RateLimitInterval, err = parseDuration(prefix+"_RATE_LIMIT_INTERVAL", cfg.RateLimitInterval); err != nil {
		return cfg, err
	}
	if cfg.RateLimitBurst, err = parseInt(prefix+"_RATE_LIMIT_BURST", cfg.RateLimitBurst); err != nil {
		return cfg, err
	}
	if cfg.RateLimitInterval > 0 && cfg.RateLimitBurst == 0 {
		return cfg, fmt.Errorf("%s_RATE_LIMIT_BURST must be > 0 when %s_RATE_LIMIT_INTERVAL is set", prefix, prefix)
	}

	return cfg, nil
}

// RetryPolicy builds the retry policy described by the config.
func (c ReliabilityConfig) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: c.RetryMaxAttempts,
		BaseDelay:   c.RetryBaseDelay,
		MaxDelay:    c.RetryMaxDelay,
	}
}

// RateLimiter returns nil when limiting is disabled.
func (c ReliabilityConfig) RateLimiter() *RateLimiter {
	if c.RateLimitInterval <= 0 || c.RateLimitBurst <= 0 {
		return nil
	}
	return NewRateLimiter(c.RateLimitInterval, c.RateLimitBurst)
}

// WrapInventory wraps an inventory client with its own breaker and limiter.
func (c ReliabilityConfig) WrapInventory(base InventoryClient) *ReliableInventoryClient {
	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "inventory",
		MaxFailures:  c.BreakerMaxFailures,
		ResetTimeout: c.BreakerResetTimeout,
	})
	return NewReliableInventoryClient(base, c.RateLimiter(), breaker, c.RetryPolicy())
}

// WrapPayment wraps a payment client with its own breaker and limiter.
func (c ReliabilityConfig) WrapPayment(base PaymentClient) *ReliablePaymentClient {
	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "payment",
		MaxFailures:  c.BreakerMaxFailures,
		ResetTimeout: c.BreakerResetTimeout,
	})
	return NewReliablePaymentClient(base, c.RateLimiter(), breaker, c.RetryPolicy())
}

func parseDuration(name string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, errors.New(name + " must be >= 0")
	}
	return val, nil
}

func parseInt(name string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, errors.New(name + " must be >= 0")
	}
	return val, nil
}
