package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chess_review/internal/domain"
)

func ev(score domain.Score, best string) domain.Evaluation {
	return domain.Evaluation{Score: score, BestMove: best}
}

func TestClassifyThresholds(t *testing.T) {
	cfg := DefaultClassifierConfig()

	cases := []struct {
		name     string
		before   domain.Evaluation
		after    domain.Evaluation
		move     string
		expected domain.Judgment
	}{
		{
			name:     "engine top choice with no loss",
			before:   ev(domain.Centipawns(30), "e2e4"),
			after:    ev(domain.Centipawns(30), ""),
			move:     "e2e4",
			expected: domain.JudgmentBest,
		},
		{
			name:     "tiny loss without matching best",
			before:   ev(domain.Centipawns(30), "e2e4"),
			after:    ev(domain.Centipawns(28), ""),
			move:     "d2d4",
			expected: domain.JudgmentExcellent,
		},
		{
			name:     "moderate loss",
			before:   ev(domain.Centipawns(30), "e2e4"),
			after:    ev(domain.Centipawns(-15), ""),
			move:     "g1f3",
			expected: domain.JudgmentGood,
		},
		{
			name:     "inaccuracy",
			before:   ev(domain.Centipawns(50), "e2e4"),
			after:    ev(domain.Centipawns(-60), ""),
			move:     "g1f3",
			expected: domain.JudgmentInaccuracy,
		},
		{
			name:     "mistake",
			before:   ev(domain.Centipawns(100), "e2e4"),
			after:    ev(domain.Centipawns(-120), ""),
			move:     "g1f3",
			expected: domain.JudgmentMistake,
		},
		{
			name:     "blunder",
			before:   ev(domain.Centipawns(100), "e2e4"),
			after:    ev(domain.Centipawns(-500), ""),
			move:     "g1f3",
			expected: domain.JudgmentBlunder,
		},
		{
			name:     "hanging into mate is a blunder",
			before:   ev(domain.Centipawns(0), "e2e4"),
			after:    ev(domain.MateIn(-3), ""),
			move:     "f2f3",
			expected: domain.JudgmentBlunder,
		},
		{
			name:     "large sound gain off the engine line is brilliant",
			before:   ev(domain.Centipawns(0), "e2e4"),
			after:    ev(domain.Centipawns(250), ""),
			move:     "d1h5",
			expected: domain.JudgmentBrilliant,
		},
		{
			name:     "large gain that matches the engine line is just best",
			before:   ev(domain.Centipawns(0), "e2e4"),
			after:    ev(domain.Centipawns(250), ""),
			move:     "e2e4",
			expected: domain.JudgmentBest,
		},
		{
			name:     "large gain into a still-lost position is not brilliant",
			before:   ev(domain.Centipawns(-900), "e2e4"),
			after:    ev(domain.Centipawns(-400), ""),
			move:     "d1h5",
			expected: domain.JudgmentExcellent,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := cfg.Classify(tc.before, tc.after, domain.White, tc.move)
			assert.Equal(t, tc.expected, got)
		})
	}
}

// Classifying a position must equal classifying its color-flipped mirror.
func TestClassifyPerspectiveInvariance(t *testing.T) {
	cfg := DefaultClassifierConfig()

	pairs := []struct {
		before, after domain.Score
	}{
		{domain.Centipawns(40), domain.Centipawns(-80)},
		{domain.Centipawns(0), domain.Centipawns(-350)},
		{domain.MateIn(2), domain.Centipawns(200)},
		{domain.Centipawns(10), domain.MateIn(-2)},
		{domain.Centipawns(-30), domain.Centipawns(30)},
	}

	for _, p := range pairs {
		whiteJ, whiteLoss := cfg.Classify(ev(p.before, "e2e4"), ev(p.after, ""), domain.White, "d2d4")

		flippedBefore := p.before.POV(domain.Black)
		flippedAfter := p.after.POV(domain.Black)
		blackJ, blackLoss := cfg.Classify(ev(flippedBefore, "e2e4"), ev(flippedAfter, ""), domain.Black, "d2d4")

		assert.Equal(t, whiteJ, blackJ)
		assert.InDelta(t, whiteLoss, blackLoss, 1e-12)
	}
}

func TestClassifyMateOrdering(t *testing.T) {
	cfg := DefaultClassifierConfig()

	// Trading a forced mate for a huge material edge still loses win
	// probability; letting the opponent mate is maximal loss.
	j, loss := cfg.Classify(ev(domain.MateIn(1), "d1h5"), ev(domain.MateIn(-1), ""), domain.White, "a2a3")
	assert.Equal(t, domain.JudgmentBlunder, j)
	assert.InDelta(t, 1.0, loss, 1e-12)

	// Keeping the mate costs nothing.
	j, loss = cfg.Classify(ev(domain.MateIn(3), "d1h5"), ev(domain.MateIn(2), ""), domain.White, "d1h5")
	assert.Equal(t, domain.JudgmentBest, j)
	assert.Zero(t, loss)
}

func TestJudgmentRankOrder(t *testing.T) {
	ordered := []domain.Judgment{
		domain.JudgmentBrilliant,
		domain.JudgmentBest,
		domain.JudgmentExcellent,
		domain.JudgmentGood,
		domain.JudgmentInaccuracy,
		domain.JudgmentMistake,
		domain.JudgmentBlunder,
	}
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, ordered[i-1].Rank(), ordered[i].Rank())
	}
}
