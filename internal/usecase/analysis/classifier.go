package analysis

import "chess_review/internal/domain"

// ClassifierConfig is the threshold table separating the quality labels.
// Thresholds are win-probability loss from the mover's perspective. They are
// tuning data, adjusted empirically, not derived logic.
type ClassifierConfig struct {
	ExcellentLoss  float64
	GoodLoss       float64
	InaccuracyLoss float64
	MistakeLoss    float64
	// BrilliantGain is the minimum win-probability gain over the engine's
	// expected line for a move that is not the engine's top choice.
	BrilliantGain float64
	// SoundnessFloor is the worst mover-perspective centipawn score a
	// brilliant move may leave behind.
	SoundnessFloor int
}

func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		ExcellentLoss:  0.02,
		GoodLoss:       0.06,
		InaccuracyLoss: 0.12,
		MistakeLoss:    0.22,
		BrilliantGain:  0.10,
		SoundnessFloor: -100,
	}
}

// Classify labels one move by the evaluation swing it caused and returns the
// label together with the mover's win-probability loss (clamped at zero).
// evalBefore and evalAfter arrive White-perspective; normalization to the
// mover happens here and nowhere else.
func (c ClassifierConfig) Classify(evalBefore, evalAfter domain.Evaluation, mover domain.Color, moveUCI string) (domain.Judgment, float64) {
	before := evalBefore.Score.POV(mover)
	after := evalAfter.Score.POV(mover)

	loss := before.WinProb() - after.WinProb()
	clamped := loss
	if clamped < 0 {
		clamped = 0
	}

	matchesBest := moveUCI != "" && evalBefore.BestMove == moveUCI

	switch {
	case matchesBest && loss <= c.ExcellentLoss:
		return domain.JudgmentBest, clamped
	case !matchesBest && loss <= -c.BrilliantGain &&
		after.Cmp(domain.Centipawns(c.SoundnessFloor)) >= 0:
		return domain.JudgmentBrilliant, clamped
	case loss <= c.ExcellentLoss:
		return domain.JudgmentExcellent, clamped
	case loss <= c.GoodLoss:
		return domain.JudgmentGood, clamped
	case loss <= c.InaccuracyLoss:
		return domain.JudgmentInaccuracy, clamped
	case loss <= c.MistakeLoss:
		return domain.JudgmentMistake, clamped
	default:
		return domain.JudgmentBlunder, clamped
	}
}
