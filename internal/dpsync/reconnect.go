package dpsync

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// ReconnectManager implements exponential backoff between ADS stream
// attempts: min(initialDelay * 2^attempt, maxDelay). Grounded on
// gateway-runtime/policy-engine/internal/xdsclient.ReconnectManager.
type ReconnectManager struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	attempt      int
}

// NewReconnectManager builds a manager starting from initialDelay, capped
// at maxDelay. spec.md §4.5 requires reconnect backoff of at least 1s, so
// callers should never pass an initialDelay below that.
func NewReconnectManager(initialDelay, maxDelay time.Duration) *ReconnectManager {
	return &ReconnectManager{initialDelay: initialDelay, maxDelay: maxDelay}
}

// NextDelay returns the delay for the next attempt and advances the
// internal attempt counter.
func (rm *ReconnectManager) NextDelay() time.Duration {
	delay := time.Duration(float64(rm.initialDelay) * math.Pow(2, float64(rm.attempt)))
	if delay > rm.maxDelay {
		delay = rm.maxDelay
	}
	rm.attempt++
	return delay
}

// Reset clears the attempt counter after a successful connection.
func (rm *ReconnectManager) Reset() {
	rm.attempt = 0
}

// WaitWithContext sleeps for NextDelay, returning early if ctx is done.
func (rm *ReconnectManager) WaitWithContext(ctx context.Context, log *slog.Logger) error {
	delay := rm.NextDelay()
	log.Info("waiting before reconnect attempt", slog.Duration("delay", delay), slog.Int("attempt", rm.attempt))
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
