package domain

import "time"

// Judgment is a move-quality label from the fixed ordered set.
type Judgment string

const (
	JudgmentBrilliant  Judgment = "brilliant"
	JudgmentBest       Judgment = "best"
	JudgmentExcellent  Judgment = "excellent"
	JudgmentGood       Judgment = "good"
	JudgmentInaccuracy Judgment = "inaccuracy"
	JudgmentMistake    Judgment = "mistake"
	JudgmentBlunder    Judgment = "blunder"
)

// Rank orders judgments from strongest to weakest; a lower rank is a better move.
func (j Judgment) Rank() int {
	switch j {
	case JudgmentBrilliant:
		return 0
	case JudgmentBest:
		return 1
	case JudgmentExcellent:
		return 2
	case JudgmentGood:
		return 3
	case JudgmentInaccuracy:
		return 4
	case JudgmentMistake:
		return 5
	case JudgmentBlunder:
		return 6
	default:
		return 7
	}
}

// PlyStatus tells whether a ply's analysis finished, failed, or never ran.
type PlyStatus string

const (
	PlyAnalyzed PlyStatus = "analyzed"
	PlyPending  PlyStatus = "pending"
	PlyFailed   PlyStatus = "failed"
)

// AnalyzedPly is a Ply with its analysis outcome attached. Before/After and
// Judgment are only set when Status is PlyAnalyzed.
type AnalyzedPly struct {
	Ply         `bson:"ply,inline"`
	Status      PlyStatus   `json:"status" bson:"status"`
	Before      *Evaluation `json:"before,omitempty" bson:"before,omitempty"`
	After       *Evaluation `json:"after,omitempty" bson:"after,omitempty"`
	Judgment    Judgment    `json:"judgment,omitempty" bson:"judgment,omitempty"`
	WinProbLoss float64     `json:"win_prob_loss,omitempty" bson:"win_prob_loss,omitempty"`
}

// AccuracyReport is the finished (or partial) per-game analysis. A side that
// played no analyzed moves scores 100. A new report replaces the old one
// atomically; reports are never mutated after being published.
type AccuracyReport struct {
	ID            string        `json:"id" bson:"_id"`
	Event         string        `json:"event,omitempty" bson:"event,omitempty"`
	White         string        `json:"white,omitempty" bson:"white,omitempty"`
	Black         string        `json:"black,omitempty" bson:"black,omitempty"`
	Result        string        `json:"result,omitempty" bson:"result,omitempty"`
	WhiteAccuracy float64       `json:"white_accuracy" bson:"white_accuracy"`
	BlackAccuracy float64       `json:"black_accuracy" bson:"black_accuracy"`
	Plies         []AnalyzedPly `json:"plies" bson:"plies"`
	Budget        Budget        `json:"budget" bson:"budget"`
	Complete      bool          `json:"complete" bson:"complete"`
	CreatedAt     time.Time     `json:"created_at" bson:"created_at"`
}

// Analyzed counts the plies whose analysis finished.
func (r *AccuracyReport) Analyzed() int {
	n := 0
	for _, p := range r.Plies {
		if p.Status == PlyAnalyzed {
			n++
		}
	}
	return n
}
