package engine

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/petrijr/arbor/pkg/api"
)

// backoffDelay computes the wait before retry attempt n (1-based: the
// delay after the n-th failed attempt). The result is capped at
// MaxDelay and, for the exponential strategy, spread by +/-Jitter to
// keep a burst of failures from retrying in lockstep.
func backoffDelay(p api.RetryPolicy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.InitialDelay
	if base <= 0 {
		base = time.Second
	}

	var d time.Duration
	switch p.Backoff {
	case api.BackoffFixed:
		d = base
	case api.BackoffLinear:
		d = base * time.Duration(attempt)
	case api.BackoffExponential:
		mult := p.Multiplier
		if mult <= 1 {
			mult = 2
		}
		f := float64(base) * math.Pow(mult, float64(attempt-1))
		if f > math.MaxInt64 {
			f = math.MaxInt64
		}
		d = time.Duration(f)
	default:
		d = base
	}

	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Backoff == api.BackoffExponential && p.Jitter > 0 {
		spread := p.Jitter
		if spread > 1 {
			spread = 1
		}
		factor := 1 + spread*(2*rand.Float64()-1)
		d = time.Duration(float64(d) * factor)
	}
	if d < 0 {
		d = 0
	}
	return d
}
