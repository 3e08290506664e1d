package main

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func testBackoff(base time.Duration, sleeps *[]time.Duration) *Backoff {
	b := NewBackoff()
	b.BaseDelay = base
	b.sleep = func(d time.Duration) {
		*sleeps = append(*sleeps, d)
	}
	return b
}

func TestBackoffRetriesExactlyMaxAttempts(t *testing.T) {
	var sleeps []time.Duration
	b := testBackoff(100*time.Millisecond, &sleeps)

	calls := 0
	err := b.Do(context.Background(), func() error {
		calls++
		return errors.New("transient")
	}, func(error) bool { return true })

	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("expected ErrRetriesExhausted, got %v", err)
	}
	if len(sleeps) != 2 {
		t.Fatalf("expected 2 sleeps between 3 attempts, got %d", len(sleeps))
	}
}

func TestBackoffDelaysDoubleWithJitter(t *testing.T) {
	var sleeps []time.Duration
	b := testBackoff(100*time.Millisecond, &sleeps)

	b.Do(context.Background(), func() error {
		return errors.New("transient")
	}, func(error) bool { return true })

	// Each delay is base*2^n plus jitter in [0, delay/2).
	expected := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	for i, base := range expected {
		if sleeps[i] < base || sleeps[i] >= base+base/2 {
			t.Errorf("sleep %d = %v, want in [%v, %v)", i, sleeps[i], base, base+base/2)
		}
	}
}

func TestBackoffStopsOnFatalError(t *testing.T) {
	var sleeps []time.Duration
	b := testBackoff(time.Millisecond, &sleeps)

	fatal := errors.New("invalid api key")
	calls := 0
	err := b.Do(context.Background(), func() error {
		calls++
		return fatal
	}, func(error) bool { return false })

	if calls != 1 {
		t.Errorf("fatal error should not be retried, got %d attempts", calls)
	}
	if !errors.Is(err, fatal) {
		t.Errorf("expected the fatal error back unchanged, got %v", err)
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Error("fatal error must not be marked as retry exhaustion")
	}
	if len(sleeps) != 0 {
		t.Errorf("expected no sleeps, got %d", len(sleeps))
	}
}

func TestBackoffSucceedsMidway(t *testing.T) {
	var sleeps []time.Duration
	b := testBackoff(time.Millisecond, &sleeps)

	calls := 0
	err := b.Do(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}, func(error) bool { return true })

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestBackoffHonorsContextCancellation(t *testing.T) {
	var sleeps []time.Duration
	b := testBackoff(time.Millisecond, &sleeps)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := b.Do(ctx, func() error {
		calls++
		return nil
	}, func(error) bool { return true })

	if calls != 0 {
		t.Errorf("cancelled context should prevent any attempt, got %d", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
