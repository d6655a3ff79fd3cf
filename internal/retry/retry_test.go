package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var fast = Policy{Attempts: 4, Initial: time.Millisecond, Max: 2 * time.Millisecond, Factor: 2}

func TestDoRetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func(context.Context) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("connection refused"))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	permanent := errors.New("bad password")
	calls := 0
	err := Do(context.Background(), fast, func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Errorf("expected one call returning the permanent error, got %d calls, %v", calls, err)
	}
}

func TestDoGivesUp(t *testing.T) {
	cause := errors.New("still down")
	calls := 0
	err := Do(context.Background(), fast, func(context.Context) error {
		calls++
		return Transient(cause)
	})
	if calls != 4 {
		t.Errorf("expected 4 attempts, got %d", calls)
	}
	if err != cause || IsTransient(err) {
		t.Errorf("expected unwrapped cause, got %v", err)
	}
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := Policy{Attempts: 3, Initial: time.Hour}
	err := Do(ctx, slow, func(context.Context) error {
		cancel()
		return Transient(errors.New("down"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBackoffCapped(t *testing.T) {
	p := Policy{Initial: time.Second, Max: 3 * time.Second, Factor: 2}
	if got := p.backoff(1); got != time.Second {
		t.Errorf("first backoff: %v", got)
	}
	if got := p.backoff(2); got != 2*time.Second {
		t.Errorf("second backoff: %v", got)
	}
	if got := p.backoff(5); got != 3*time.Second {
		t.Errorf("capped backoff: %v", got)
	}
}
