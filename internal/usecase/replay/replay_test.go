package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chess_review/internal/domain"
	errs "chess_review/internal/errors"
)

const evergreenPGN = `[Event "Casual Game"]
[Site "Berlin"]
[Date "1852.??.??"]
[White "Adolf Anderssen"]
[Black "Jean Dufresne"]
[Result "1-0"]

1. e4 e5 2. Nf3 Nc6 3. Bc4 Bc5 4. b4 Bxb4 5. c3 Ba5 6. d4 exd4 7. O-O d3
8. Qb3 Qf6 9. e5 Qg6 10. Re1 Nge7 11. Ba3 b5 12. Qxb5 Rb8 13. Qa4 Bb6
14. Nbd2 Bb7 15. Ne4 Qf5 16. Bxd3 Qh5 17. Nf6+ gxf6 18. exf6 Rg8
19. Rad1 Qxf3 20. Rxe7+ Nxe7 21. Qxd7+ Kxd7 22. Bf5+ Ke8 23. Bd7+ Kf8
24. Bxe7# 1-0`

func TestFromPGNPositionCount(t *testing.T) {
	g, err := FromPGN(evergreenPGN)
	require.NoError(t, err)

	assert.Len(t, g.Plies, 47)
	assert.Len(t, g.Positions, len(g.Plies)+1, "position count must be move count + 1")
}

func TestFromPGNMetadata(t *testing.T) {
	g, err := FromPGN(evergreenPGN)
	require.NoError(t, err)

	assert.Equal(t, "Adolf Anderssen", g.White)
	assert.Equal(t, "Jean Dufresne", g.Black)
	assert.Equal(t, "1-0", g.Result)
	assert.Equal(t, "Berlin", g.Site)
}

func TestFromPGNPlies(t *testing.T) {
	g, err := FromPGN(evergreenPGN)
	require.NoError(t, err)

	first := g.Plies[0]
	assert.Equal(t, 1, first.Index)
	assert.Equal(t, "e4", first.SAN)
	assert.Equal(t, "e2e4", first.UCI)
	assert.Equal(t, domain.White, first.Side)
	assert.False(t, first.Check)

	last := g.Plies[len(g.Plies)-1]
	assert.Equal(t, 47, last.Index)
	assert.Equal(t, domain.White, last.Side)
	assert.True(t, last.Checkmate)
	assert.True(t, last.Check)
	assert.False(t, last.Stalemate)

	// Indices are contiguous from 1 and alternate sides.
	for i, ply := range g.Plies {
		assert.Equal(t, i+1, ply.Index)
		if i%2 == 0 {
			assert.Equal(t, domain.White, ply.Side)
		} else {
			assert.Equal(t, domain.Black, ply.Side)
		}
	}
}

func TestFromPGNBeforeAfter(t *testing.T) {
	g, err := FromPGN("1. e4 e5 2. Nf3 *")
	require.NoError(t, err)
	require.Len(t, g.Plies, 3)

	assert.Equal(t, g.Positions[0], g.Before(g.Plies[0]))
	assert.Equal(t, g.Positions[1], g.After(g.Plies[0]))
	assert.Equal(t, g.After(g.Plies[0]), g.Before(g.Plies[1]))

	assert.Equal(t, domain.Black, g.After(g.Plies[0]).SideToMove())
}

func TestFromMoves(t *testing.T) {
	g, err := FromMoves([]string{"f3", "e5", "g4", "Qh4#"})
	require.NoError(t, err)

	require.Len(t, g.Plies, 4)
	assert.Len(t, g.Positions, 5)
	assert.True(t, g.Plies[3].Checkmate)
	assert.Equal(t, domain.Black, g.Plies[3].Side)
}

func TestFromMovesIllegal(t *testing.T) {
	_, err := FromMoves([]string{"e4", "e4"})
	assert.ErrorIs(t, err, errs.ErrIllegalMove)
}

func TestFromPGNEmpty(t *testing.T) {
	_, err := FromPGN("*")
	assert.ErrorIs(t, err, errs.ErrEmptyGame)
}
