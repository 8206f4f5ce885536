package dpsync

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestReconnectManagerNextDelayDoublesUntilCap(t *testing.T) {
	rm := NewReconnectManager(1*time.Second, 10*time.Second)

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i, w := range want {
		if got := rm.NextDelay(); got != w {
			t.Fatalf("attempt %d: got %v, want %v", i, got, w)
		}
	}
}

func TestReconnectManagerResetClearsAttemptCounter(t *testing.T) {
	rm := NewReconnectManager(1*time.Second, 60*time.Second)
	rm.NextDelay()
	rm.NextDelay()
	rm.Reset()

	if got := rm.NextDelay(); got != 1*time.Second {
		t.Fatalf("expected the first delay again after Reset, got %v", got)
	}
}

func TestReconnectManagerWaitWithContextReturnsEarlyOnCancel(t *testing.T) {
	rm := NewReconnectManager(1*time.Hour, 1*time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := rm.WaitWithContext(ctx, slog.Default())
	if err == nil {
		t.Fatal("expected an error from an already-cancelled context")
	}
	if elapsed := time.Since(start); elapsed > 1*time.Second {
		t.Fatalf("expected an immediate return on cancellation, took %v", elapsed)
	}
}
