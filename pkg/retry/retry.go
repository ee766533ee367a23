// Package retry runs an operation until it succeeds, the attempts run out or
// the context is done, waiting with exponential backoff in between.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// ErrContextCanceled is returned when ctx ends before the operation succeeds
var ErrContextCanceled = errors.New("context canceled during retry")

// Config contains retry configuration
type Config struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	// InitialInterval is the wait before the first retry
	InitialInterval time.Duration
	// MaxInterval caps the wait between attempts
	MaxInterval time.Duration
	// Multiplier grows the wait after each retry; 1 keeps it fixed
	Multiplier float64
	// JitterFactor (0-1) spreads the wait by ±factor
	JitterFactor float64
	// OnRetry is called before each wait
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultConfig returns 5 retries backing off from 1s to 30s with 10% jitter
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      5,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

// Fixed returns a Config that waits the same interval between attempts
func Fixed(maxRetries int, interval time.Duration) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: interval,
		MaxInterval:     interval,
		Multiplier:      1,
	}
}

// Operation is the function to be retried
type Operation func(ctx context.Context) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so Do returns it without further attempts
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs op until it returns nil. The returned error wraps the last
// attempt's error.
func Do(ctx context.Context, cfg *Config, op Operation) error {
	cfg = normalize(cfg)

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return joinCanceled(lastErr)
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		wait := interval(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return joinCanceled(lastErr)
		case <-timer.C:
		}
	}

	return fmt.Errorf("after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

func joinCanceled(lastErr error) error {
	if lastErr == nil {
		return ErrContextCanceled
	}
	return fmt.Errorf("%w: %w", ErrContextCanceled, lastErr)
}

func normalize(cfg *Config) *Config {
	if cfg == nil {
		return DefaultConfig()
	}
	c := *cfg
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = c.InitialInterval
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2.0
	}
	c.JitterFactor = math.Min(math.Max(c.JitterFactor, 0), 1)
	return &c
}

func interval(cfg *Config, attempt int) time.Duration {
	d := float64(cfg.InitialInterval) * math.Pow(cfg.Multiplier, float64(attempt))
	if cfg.JitterFactor > 0 {
		d += (rand.Float64()*2 - 1) * d * cfg.JitterFactor
	}
	d = math.Min(d, float64(cfg.MaxInterval))
	if d <= 0 {
		d = float64(cfg.InitialInterval)
	}
	return time.Duration(d)
}
