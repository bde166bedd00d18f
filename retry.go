package session

import (
	"context"
	"time"
)

// RetryPolicy bounds the verification retry loop. It is a value object:
// consulted, never mutated.
//
// Trade-off: more attempts with longer delays ride out flaky networks but
// keep the user staring at a loading placeholder; fewer attempts fail fast
// but report "exhausted" on connections that would have recovered.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy matches the documented defaults: three attempts starting
// at 250ms and doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		Multiplier:  2.0,
	}
}

// Delay returns the backoff before the given attempt. Attempts are 1-based;
// the first attempt has no delay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := float64(p.BaseDelay)
	for i := 2; i < attempt; i++ {
		d *= p.multiplier()
	}
	return time.Duration(d)
}

func (p RetryPolicy) multiplier() float64 {
	if p.Multiplier < 1 {
		return 1
	}
	return p.Multiplier
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// Sleeper abstracts the backoff wait so tests can inject deterministic clocks.
type Sleeper func(ctx context.Context, d time.Duration) error

func defaultSleeper(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
