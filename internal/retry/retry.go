// Package retry re-runs transient operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Policy controls how often and how fast an operation is retried.
type Policy struct {
	Attempts int           // total attempts; values below 1 mean one
	Initial  time.Duration // first backoff
	Max      time.Duration // backoff ceiling
	Factor   float64       // growth per attempt
	Jitter   float64       // fraction of the backoff randomized, 0..1
}

// StartupPolicy is used for dependencies that may come up after the gateway,
// such as the audit database.
var StartupPolicy = Policy{
	Attempts: 5,
	Initial:  250 * time.Millisecond,
	Max:      5 * time.Second,
	Factor:   2,
	Jitter:   0.2,
}

type transient struct{ err error }

func (t transient) Error() string { return t.err.Error() }
func (t transient) Unwrap() error { return t.err }

// Transient marks err as worth another attempt. Errors not marked end the
// loop immediately.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transient{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var t transient
	return errors.As(err, &t)
}

// Do calls fn until it succeeds, returns a non-transient error, the attempts
// run out or ctx ends. The returned error is unwrapped from its transient
// marker.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		var t transient
		if !errors.As(err, &t) {
			return err
		}
		err = t.err
	}
	return err
}

// backoff returns the wait before the given retry (1-based).
func (p Policy) backoff(retry int) time.Duration {
	wait := float64(p.Initial)
	for i := 1; i < retry; i++ {
		wait *= max(p.Factor, 1)
	}
	if p.Max > 0 && wait > float64(p.Max) {
		wait = float64(p.Max)
	}
	if p.Jitter > 0 {
		wait += wait * p.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(wait)
}
