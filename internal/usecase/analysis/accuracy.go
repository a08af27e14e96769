package analysis

import (
	"math"

	"chess_review/internal/domain"
)

// AccuracyConfig tunes the saturating decay of the per-player score.
type AccuracyConfig struct {
	// Decay is the exponent constant k in 100 * exp(-k * averageLoss).
	// A larger k punishes the same average loss harder.
	Decay float64
}

func DefaultAccuracyConfig() AccuracyConfig {
	return AccuracyConfig{Decay: 4.0}
}

// Aggregator folds per-move win-probability losses into a 0-100 accuracy
// score per side. The win-probability transform bounds each move's
// contribution, so one huge blunder cannot linearly dominate the average.
type Aggregator struct {
	cfg AccuracyConfig
	sum map[domain.Color]float64
	n   map[domain.Color]int
}

func NewAggregator(cfg AccuracyConfig) *Aggregator {
	if cfg.Decay <= 0 {
		cfg = DefaultAccuracyConfig()
	}
	return &Aggregator{
		cfg: cfg,
		sum: make(map[domain.Color]float64),
		n:   make(map[domain.Color]int),
	}
}

// Add records one move's win-probability loss for the given side,
// clamped to [0,1].
func (a *Aggregator) Add(side domain.Color, winProbLoss float64) {
	if winProbLoss < 0 {
		winProbLoss = 0
	}
	if winProbLoss > 1 {
		winProbLoss = 1
	}
	a.sum[side] += winProbLoss
	a.n[side]++
}

// Score returns the accuracy for the side in [0,100]. A side with no
// recorded moves scores 100.
func (a *Aggregator) Score(side domain.Color) float64 {
	n := a.n[side]
	if n == 0 {
		return 100
	}
	avg := a.sum[side] / float64(n)
	score := 100 * math.Exp(-a.cfg.Decay*avg)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
