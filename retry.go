package arbor

import (
	"time"

	"github.com/petrijr/arbor/pkg/api"
)

// RetryBuilder provides a fluent way to construct RetryPolicy values
// for use with FlowBuilder.NodeWithRetry.
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry creates a RetryBuilder with the given maxAttempts.
//
// maxAttempts <= 0 is treated as 1 (no retries).
func Retry(maxAttempts int) RetryBuilder {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return RetryBuilder{
		policy: RetryPolicy{
			MaxAttempts: maxAttempts,
			Backoff:     api.BackoffFixed,
		},
	}
}

// WithFixedBackoff waits the same delay before every retry.
func (r RetryBuilder) WithFixedBackoff(delay time.Duration) RetryBuilder {
	p := r.policy
	p.Backoff = api.BackoffFixed
	p.InitialDelay = delay
	return RetryBuilder{policy: p}
}

// WithLinearBackoff grows the delay by `initial` each attempt, capped
// at max (no cap when max <= 0).
func (r RetryBuilder) WithLinearBackoff(initial, max time.Duration) RetryBuilder {
	p := r.policy
	p.Backoff = api.BackoffLinear
	p.InitialDelay = initial
	p.MaxDelay = max
	return RetryBuilder{policy: p}
}

// WithExponentialBackoff configures exponential backoff with jitter:
//
//   - initial is the delay before the first retry.
//   - multiplier > 1 grows the delay each attempt (default 2.0 if <= 0).
//   - max caps the delay; if <= 0, there is no cap.
//
// Example:
//
//	Retry(3).WithExponentialBackoff(100*time.Millisecond, 2.0, 2*time.Second)
func (r RetryBuilder) WithExponentialBackoff(initial time.Duration, multiplier float64, max time.Duration) RetryBuilder {
	p := r.policy
	p.Backoff = api.BackoffExponential
	p.InitialDelay = initial
	p.MaxDelay = max
	if multiplier <= 0 {
		multiplier = 2.0
	}
	p.Multiplier = multiplier
	p.Jitter = 0.2
	return RetryBuilder{policy: p}
}

// WithJitter overrides the randomized fraction of each exponential
// delay (0 disables jitter).
func (r RetryBuilder) WithJitter(fraction float64) RetryBuilder {
	p := r.policy
	p.Jitter = fraction
	return RetryBuilder{policy: p}
}

// WithTimeout bounds each individual attempt. A timed-out attempt
// counts as a failed, retryable attempt.
func (r RetryBuilder) WithTimeout(timeout time.Duration) RetryBuilder {
	p := r.policy
	p.Timeout = timeout
	return RetryBuilder{policy: p}
}

// Policy returns the built RetryPolicy.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}
