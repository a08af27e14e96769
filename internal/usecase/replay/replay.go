// Package replay turns parsed game records into ordered position sequences.
// Move legality and PGN grammar belong to the chess library; anything it
// rejects surfaces as ErrIllegalMove.
package replay

import (
	"fmt"
	"strings"

	"github.com/corentings/chess/v2"

	"chess_review/internal/domain"
	errs "chess_review/internal/errors"
)

// FromPGN parses a PGN transcript and replays its main line.
func FromPGN(pgn string) (*domain.Game, error) {
	opt, err := chess.PGN(strings.NewReader(pgn))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrIllegalMove, err)
	}
	return fromChessGame(chess.NewGame(opt))
}

// FromMoves replays a sequence of SAN moves from the initial position.
func FromMoves(moves []string) (*domain.Game, error) {
	g := chess.NewGame()
	for _, m := range moves {
		if err := g.PushNotationMove(m, chess.AlgebraicNotation{}, nil); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", errs.ErrIllegalMove, m, err)
		}
	}
	return fromChessGame(g)
}

func fromChessGame(g *chess.Game) (*domain.Game, error) {
	moves := g.Moves()
	positions := g.Positions()

	if len(moves) == 0 {
		return nil, errs.ErrEmptyGame
	}
	if len(positions) != len(moves)+1 {
		return nil, fmt.Errorf("%w: %d moves with %d positions", errs.ErrIllegalMove, len(moves), len(positions))
	}

	out := &domain.Game{
		Event:     g.GetTagPair("Event"),
		Site:      g.GetTagPair("Site"),
		Date:      g.GetTagPair("Date"),
		White:     g.GetTagPair("White"),
		Black:     g.GetTagPair("Black"),
		Result:    g.GetTagPair("Result"),
		Plies:     make([]domain.Ply, 0, len(moves)),
		Positions: make([]domain.Position, 0, len(positions)),
	}

	for _, pos := range positions {
		out.Positions = append(out.Positions, domain.Position{FEN: pos.String()})
	}

	for i, move := range moves {
		before := positions[i]
		after := positions[i+1]

		san := chess.AlgebraicNotation{}.Encode(before, move)

		side := domain.White
		if before.Turn() == chess.Black {
			side = domain.Black
		}

		out.Plies = append(out.Plies, domain.Ply{
			Index:     i + 1,
			SAN:       san,
			UCI:       move.String(),
			Side:      side,
			Check:     strings.HasSuffix(san, "+") || strings.HasSuffix(san, "#"),
			Checkmate: after.Status() == chess.Checkmate,
			Stalemate: after.Status() == chess.Stalemate,
		})
	}

	return out, nil
}
