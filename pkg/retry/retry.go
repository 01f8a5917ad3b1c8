package retry

import (
	"context"
	"math"
	"net"
	"strings"
	"time"

	"rwaledger/pkg/errors"
)

// Strategy defines the retry strategy
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
	StrategyFixed       Strategy = "fixed"
)

// Config contains retry configuration
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Strategy     Strategy
	Multiplier   float64 // for exponential backoff

	// Retryable decides whether err is worth another attempt.
	// Defaults to IsTransient.
	Retryable func(err error) bool
}

// DefaultConfig retries version conflicts and transient network errors
func DefaultConfig() Config {
	return Config{
		MaxRetries:   5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Strategy:     StrategyExponential,
		Multiplier:   2.0,
	}
}

// Policy runs functions with retry and backoff
type Policy struct {
	config Config
}

// New creates a retry policy, filling zero fields with defaults
func New(config Config) *Policy {
	def := DefaultConfig()
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = def.Multiplier
	}
	if config.Strategy == "" {
		config.Strategy = def.Strategy
	}
	if config.Retryable == nil {
		config.Retryable = IsTransient
	}
	return &Policy{config: config}
}

// Do executes fn until it succeeds, returns a non-retryable error, or attempts run out
func (p *Policy) Do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !p.config.Retryable(err) {
			return err
		}
		if attempt == p.config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "retry cancelled")
		case <-time.After(p.delay(attempt)):
		}
	}

	return errors.Wrapf(lastErr, "max retries (%d) exceeded", p.config.MaxRetries)
}

func (p *Policy) delay(attempt int) time.Duration {
	var d time.Duration

	switch p.config.Strategy {
	case StrategyExponential:
		d = time.Duration(float64(p.config.InitialDelay) * math.Pow(p.config.Multiplier, float64(attempt)))
	case StrategyLinear:
		d = p.config.InitialDelay * time.Duration(1+attempt)
	default:
		d = p.config.InitialDelay
	}

	if d > p.config.MaxDelay {
		d = p.config.MaxDelay
	}
	return d
}

// IsConflict is true for optimistic concurrency failures only
func IsConflict(err error) bool {
	return errors.Is(err, errors.ErrVersionConflict)
}

// IsTransient is true for version conflicts and temporary network failures
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsConflict(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"too many requests",
		"rate limit",
		"blockhash not found",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
