package domain

import "strings"

// Position is a board state as a FEN string, sufficient to identify the
// position for caching and to feed the engine.
type Position struct {
	FEN string `json:"fen" bson:"fen"`
}

// Key returns the canonical cache key: piece placement, side to move,
// castling rights and en-passant target. The move counters are dropped so
// transpositions from different games collapse to one entry.
func (p Position) Key() string {
	fields := strings.Fields(p.FEN)
	if len(fields) < 4 {
		return p.FEN
	}
	return strings.Join(fields[:4], " ")
}

func (p Position) SideToMove() Color {
	fields := strings.Fields(p.FEN)
	if len(fields) >= 2 && fields[1] == "b" {
		return Black
	}
	return White
}

// Ply is one half-move. Index is 1-based; White's moves have odd indices.
type Ply struct {
	Index     int    `json:"index" bson:"index"`
	SAN       string `json:"san" bson:"san"`
	UCI       string `json:"uci" bson:"uci"`
	Side      Color  `json:"side" bson:"side"`
	Check     bool   `json:"check,omitempty" bson:"check,omitempty"`
	Checkmate bool   `json:"checkmate,omitempty" bson:"checkmate,omitempty"`
	Stalemate bool   `json:"stalemate,omitempty" bson:"stalemate,omitempty"`
}

// Game is a replayed move sequence with its visited positions.
// Positions[i] is the board before Plies[i]; Positions[len(Plies)] is the
// final position, so len(Positions) == len(Plies)+1 always holds.
type Game struct {
	Event     string     `json:"event,omitempty" bson:"event,omitempty"`
	Site      string     `json:"site,omitempty" bson:"site,omitempty"`
	Date      string     `json:"date,omitempty" bson:"date,omitempty"`
	White     string     `json:"white,omitempty" bson:"white,omitempty"`
	Black     string     `json:"black,omitempty" bson:"black,omitempty"`
	Result    string     `json:"result,omitempty" bson:"result,omitempty"`
	Plies     []Ply      `json:"plies" bson:"plies"`
	Positions []Position `json:"positions" bson:"positions"`
}

// Before returns the position the mover saw; After the one they left behind.
func (g *Game) Before(ply Ply) Position { return g.Positions[ply.Index-1] }
func (g *Game) After(ply Ply) Position  { return g.Positions[ply.Index] }
