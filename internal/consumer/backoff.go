package consumer

import (
	"context"
	"math"
	"time"

	"github.com/marminbh/toxicity-score-svc/internal/config"
)

// Backoff returns the pause before reconnect attempt n (1-indexed).
type Backoff interface {
	Next(attempt int) time.Duration
}

// FixedBackoff waits the same pause before every attempt.
type FixedBackoff struct {
	Pause time.Duration
}

func (b FixedBackoff) Next(int) time.Duration { return b.Pause }

// ExponentialBackoff doubles the pause on each attempt, starting at Initial
// and capped at Max. Without a Max the pause saturates near the largest
// time.Duration.
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (b ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Initial
	for i := 1; i < attempt; i++ {
		if b.Max > 0 && d >= b.Max/2 {
			return b.Max
		}
		if d > math.MaxInt64/2 {
			// Uncapped: stop doubling before time.Duration overflows.
			return d
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// NewBackoff selects the reconnect strategy from configuration.
func NewBackoff(cfg *config.ConsumerConfig) Backoff {
	if cfg.ReconnectStrategy == config.ReconnectExponential {
		return ExponentialBackoff{Initial: cfg.ReconnectPause, Max: cfg.MaxReconnectPause}
	}
	return FixedBackoff{Pause: cfg.ReconnectPause}
}

// sleep waits for d or until ctx is done. It reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
