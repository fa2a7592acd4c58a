// Package retry computes exponential backoff delays with full jitter.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy bounds a retry loop. The zero value is usable and yields the defaults.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// MinDelay keeps a jittered delay from collapsing into a busy loop.
	MinDelay time.Duration
	// Jitter disables randomisation when false; tests rely on exact delays.
	Jitter bool
}

// Default is the policy used for provider throttling.
func Default() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		MinDelay:   100 * time.Millisecond,
		Jitter:     true,
	}
}

func (p Policy) withDefaults() Policy {
	d := Default()
	if p.MaxRetries <= 0 {
		p.MaxRetries = d.MaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	return p
}

// Retries returns the effective maximum number of retries.
func (p Policy) Retries() int {
	return p.withDefaults().MaxRetries
}

// Delay returns the wait before retry number attempt (1-based):
// min(MaxDelay, BaseDelay * 2^(attempt-1)), fully jittered when enabled.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	exp := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if exp > float64(p.MaxDelay) {
		exp = float64(p.MaxDelay)
	}
	d := time.Duration(exp)
	if p.Jitter {
		d = time.Duration(rand.Float64() * exp)
	}
	if d < p.MinDelay {
		d = p.MinDelay
	}
	return d
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
