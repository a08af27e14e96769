package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chess_review/internal/domain"
)

func scoreOf(cfg AccuracyConfig, side domain.Color, losses []float64) float64 {
	agg := NewAggregator(cfg)
	for _, l := range losses {
		agg.Add(side, l)
	}
	return agg.Score(side)
}

func TestAggregatorBounds(t *testing.T) {
	cfg := DefaultAccuracyConfig()

	assert.Equal(t, 100.0, scoreOf(cfg, domain.White, nil), "no moves scores 100")
	assert.Equal(t, 100.0, scoreOf(cfg, domain.White, []float64{0, 0, 0}))

	worst := scoreOf(cfg, domain.White, []float64{1, 1, 1})
	assert.GreaterOrEqual(t, worst, 0.0)
	assert.Less(t, worst, 5.0)
}

func TestAggregatorSidesAreIndependent(t *testing.T) {
	agg := NewAggregator(DefaultAccuracyConfig())
	agg.Add(domain.White, 0.5)

	assert.Less(t, agg.Score(domain.White), 100.0)
	assert.Equal(t, 100.0, agg.Score(domain.Black))
}

// Appending a strictly worse move never yields a higher score than appending
// a better one to the same prefix.
func TestAggregatorMonotonicInAppendedLoss(t *testing.T) {
	cfg := DefaultAccuracyConfig()
	prefix := []float64{0.01, 0.04, 0.0, 0.15}

	prev := scoreOf(cfg, domain.White, append(append([]float64{}, prefix...), 0.0))
	for _, appended := range []float64{0.01, 0.05, 0.1, 0.3, 0.6, 1.0} {
		cur := scoreOf(cfg, domain.White, append(append([]float64{}, prefix...), appended))
		assert.LessOrEqual(t, cur, prev, "loss %f must not raise the score", appended)
		prev = cur
	}
}

// The win-probability transform saturates: a 5000cp swing must not weigh
// ten times a 500cp swing.
func TestAggregatorSaturation(t *testing.T) {
	cfg := DefaultAccuracyConfig()

	big := domain.Centipawns(500).WinProb() - domain.Centipawns(-4500).WinProb()
	small := domain.Centipawns(500).WinProb() - domain.Centipawns(0).WinProb()

	a := scoreOf(cfg, domain.White, []float64{small})
	b := scoreOf(cfg, domain.White, []float64{big})

	assert.Less(t, b, a)
	assert.Less(t, (a-b)/a, 0.9, "contribution must be bounded, not linear in centipawns")
}

func TestAggregatorClampsInput(t *testing.T) {
	agg := NewAggregator(DefaultAccuracyConfig())
	agg.Add(domain.White, -0.5) // a gain counts as zero loss
	assert.Equal(t, 100.0, agg.Score(domain.White))

	agg.Add(domain.White, 5.0) // clamped to 1
	twoMoves := agg.Score(domain.White)
	agg2 := NewAggregator(DefaultAccuracyConfig())
	agg2.Add(domain.White, 0)
	agg2.Add(domain.White, 1)
	assert.InDelta(t, agg2.Score(domain.White), twoMoves, 1e-9)
}
