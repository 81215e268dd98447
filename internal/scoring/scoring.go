// Package scoring provides the toxicity scoring step applied to every comment.
// The current scorer is simulated: it ignores the comment content, waits a
// random duration and returns a random score.
package scoring

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/marminbh/toxicity-score-svc/internal/models"
)

// Result is the outcome of one scoring call.
type Result struct {
	Score   float64
	Elapsed time.Duration
}

// Scorer produces a score in [0,100]. Implementations may block for seconds
// and must return promptly once ctx is done.
type Scorer interface {
	Score(ctx context.Context) (Result, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context) (Result, error)

func (f ScorerFunc) Score(ctx context.Context) (Result, error) { return f(ctx) }

// Clamp keeps a score within [models.MinScore, models.MaxScore].
func Clamp(score float64) float64 {
	if math.IsNaN(score) || score < models.MinScore {
		return models.MinScore
	}
	if score > models.MaxScore {
		return models.MaxScore
	}
	return score
}

// SimulatedScorer waits a uniformly random duration in [MinDuration, MaxDuration]
// and returns a uniformly random score.
type SimulatedScorer struct {
	MinDuration time.Duration
	MaxDuration time.Duration
}

func NewSimulatedScorer(minDuration, maxDuration time.Duration) *SimulatedScorer {
	if maxDuration < minDuration {
		maxDuration = minDuration
	}
	return &SimulatedScorer{MinDuration: minDuration, MaxDuration: maxDuration}
}

func (s *SimulatedScorer) Score(ctx context.Context) (Result, error) {
	wait := s.MinDuration
	if spread := s.MaxDuration - s.MinDuration; spread > 0 {
		wait += time.Duration(rand.Int63n(int64(spread) + 1))
	}

	start := time.Now()
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{Elapsed: time.Since(start)}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	return Result{
		Score:   Clamp(rand.Float64() * models.MaxScore),
		Elapsed: time.Since(start),
	}, nil
}
