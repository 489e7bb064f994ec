// Package retry provides retry logic with exponential backoff for transient
// transport failures. Retry is deliberately scoped to the range fetcher so
// seek-policy decisions stay pure and retry stays independently testable.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/objstream/objstream/pkg/errors"
)

// Config defines retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`

	// Multiplier is the factor by which delay grows after each retry.
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`

	// Jitter adds randomness to delays to prevent thundering herd.
	Jitter bool `yaml:"jitter" json:"jitter"`

	// RetryableCodes lists error codes that trigger retry in addition to
	// errors explicitly marked retryable.
	RetryableCodes []errors.ErrorCode `yaml:"retryable_codes" json:"retryable_codes"`

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-" json:"-"`
}

// DefaultConfig returns the default retry configuration: a small fixed
// attempt cap with exponential backoff.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryableCodes: []errors.ErrorCode{
			errors.ErrCodeNetworkError,
			errors.ErrCodeConnectionTimeout,
			errors.ErrCodeOperationTimeout,
		},
	}
}

// Retryer executes functions with bounded exponential backoff.
type Retryer struct {
	config Config
}

// New creates a Retryer, filling zero config values with defaults.
func New(config Config) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 4
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 10 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	return &Retryer{config: config}
}

// MaxAttempts returns the configured attempt cap.
func (r *Retryer) MaxAttempts() int { return r.config.MaxAttempts }

// Do executes fn with retry logic and context support. Non-retryable errors
// are returned as-is; exhausting the attempt cap returns a RETRY_EXHAUSTED
// error wrapping the last failure.
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return errors.Wrap(errors.ErrCodeOperationCanceled, "operation canceled", ctx.Err())
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.shouldRetry(err) {
			return err
		}

		if attempt < r.config.MaxAttempts {
			delay := r.delay(attempt)
			if r.config.OnRetry != nil {
				r.config.OnRetry(attempt, err, delay)
			}
			select {
			case <-ctx.Done():
				return errors.Wrap(errors.ErrCodeOperationCanceled,
					fmt.Sprintf("operation canceled after %d attempts", attempt), ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return errors.Wrap(errors.ErrCodeRetryExhausted,
		fmt.Sprintf("max retry attempts (%d) exceeded", r.config.MaxAttempts), lastErr)
}

func (r *Retryer) shouldRetry(err error) bool {
	if errors.IsRetryable(err) {
		return true
	}
	code := errors.CodeOf(err)
	for _, c := range r.config.RetryableCodes {
		if code == c {
			return true
		}
	}
	return false
}

func (r *Retryer) delay(attempt int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}
	if r.config.Jitter {
		// ±20% to spread concurrent retriers
		d += d * 0.2 * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}
