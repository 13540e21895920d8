// Package pacing provides the throttle used between fan-out requests so that
// rate-limit policy stays testable independent of wall-clock time.
package pacing

import (
	"context"
	"time"
)

// Pacer inserts a pause between consecutive upstream requests.
type Pacer interface {
	Wait(ctx context.Context) error
}

// FixedIntervalPacer sleeps a constant interval on every Wait call while
// honoring context cancellation.
type FixedIntervalPacer struct {
	interval time.Duration
}

// NewFixedInterval constructs a pacer with the provided interval. A
// non-positive interval disables the pause.
func NewFixedInterval(interval time.Duration) *FixedIntervalPacer {
	return &FixedIntervalPacer{interval: interval}
}

// Wait blocks for the configured interval or until the context is done.
func (pacer *FixedIntervalPacer) Wait(ctx context.Context) error {
	if pacer.interval <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(pacer.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NopPacer never pauses. Intended for tests and interactive usage.
type NopPacer struct{}

// Nop returns a pacer that does not pause.
func Nop() NopPacer { return NopPacer{} }

// Wait returns immediately unless the context is already done.
func (NopPacer) Wait(ctx context.Context) error { return ctx.Err() }
