package domain

import (
	"math"
	"strconv"
)

// Color of a side. White moves first; plies with odd indices are White's.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

// Score is an engine verdict for a single position, always expressed from
// White's perspective. Either a centipawn value or a forced-mate distance:
// Mate > 0 means White mates in Mate moves, Mate < 0 means White is mated.
type Score struct {
	Centipawns int  `json:"centipawns" bson:"centipawns"`
	Mate       int  `json:"mate,omitempty" bson:"mate,omitempty"`
	IsMate     bool `json:"is_mate,omitempty" bson:"is_mate,omitempty"`
}

func Centipawns(cp int) Score {
	return Score{Centipawns: cp}
}

func MateIn(moves int) Score {
	return Score{Mate: moves, IsMate: true}
}

// POV converts the score to the given side's perspective.
func (s Score) POV(side Color) Score {
	if side == White {
		return s
	}
	return Score{Centipawns: -s.Centipawns, Mate: -s.Mate, IsMate: s.IsMate}
}

// mateBase dominates any reachable centipawn value, so every mate-for
// outranks every centipawn score and every mate-against ranks below.
const mateBase = 1 << 20

// orderKey maps the score onto a single axis: shorter mate-for is higher,
// shorter mate-against is lower, centipawns sit in between.
func (s Score) orderKey() int {
	if !s.IsMate {
		return s.Centipawns
	}
	if s.Mate > 0 {
		return mateBase - s.Mate
	}
	return -mateBase - s.Mate
}

// Cmp returns -1, 0 or 1 comparing two scores from White's perspective.
func (s Score) Cmp(o Score) int {
	a, b := s.orderKey(), o.orderKey()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// winProbSlope is the sigmoid constant used by lichess for converting
// centipawns into winning chances.
const winProbSlope = 0.00368208

// WinProb maps the score onto White's winning probability in [0,1].
func (s Score) WinProb() float64 {
	if s.IsMate {
		if s.Mate > 0 {
			return 1
		}
		return 0
	}
	return 1 / (1 + math.Exp(-winProbSlope*float64(s.Centipawns)))
}

// String renders the score the way engines GUIs do: "+1.25", "-0.50", "#3", "#-5".
func (s Score) String() string {
	if s.IsMate {
		return "#" + strconv.Itoa(s.Mate)
	}
	cp := s.Centipawns
	sign := "+"
	if cp < 0 {
		sign = "-"
		cp = -cp
	}
	whole := cp / 100
	frac := cp % 100
	if frac < 10 {
		return sign + strconv.Itoa(whole) + ".0" + strconv.Itoa(frac)
	}
	return sign + strconv.Itoa(whole) + "." + strconv.Itoa(frac)
}

// Budget bounds a single engine search by depth and/or wall-clock movetime.
type Budget struct {
	Depth      int `json:"depth,omitempty" bson:"depth,omitempty"`
	MovetimeMs int `json:"movetime_ms,omitempty" bson:"movetime_ms,omitempty"`
}

// AtLeast reports whether b satisfies a request for min: a deeper search
// supersedes a shallower one, component-wise.
func (b Budget) AtLeast(min Budget) bool {
	return b.Depth >= min.Depth && b.MovetimeMs >= min.MovetimeMs
}

func (b Budget) IsZero() bool {
	return b.Depth == 0 && b.MovetimeMs == 0
}

// Evaluation is the engine's verdict for a position at a given budget.
type Evaluation struct {
	Score    Score  `json:"score" bson:"score"`
	BestMove string `json:"best_move,omitempty" bson:"best_move,omitempty"`
	PV       string `json:"pv,omitempty" bson:"pv,omitempty"`
	Depth    int    `json:"depth" bson:"depth"`
	Budget   Budget `json:"budget" bson:"budget"`
}
