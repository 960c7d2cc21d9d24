package game_test

import (
	"testing"

	"github.com/lucidrook/conftree/pkg/board/fen"
	"github.com/lucidrook/conftree/pkg/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFENRoundTrip(t *testing.T) {
	p, err := game.FromFEN(fen.Initial)
	require.NoError(t, err)
	assert.Equal(t, fen.Initial, p.FEN())
	assert.Equal(t, game.NotTerminal, p.Terminal())
}

func TestResolveUCIAndApply(t *testing.T) {
	p, err := game.FromFEN(fen.Initial)
	require.NoError(t, err)

	c, err := p.ResolveUCI("e2e4")
	require.NoError(t, err)
	assert.Equal(t, "e4", c.SAN)

	next := p.Apply(c)
	assert.Contains(t, next.FEN(), "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b")
}

func TestResolveUCIRejectsIllegalMove(t *testing.T) {
	p, err := game.FromFEN(fen.Initial)
	require.NoError(t, err)

	_, err = p.ResolveUCI("e2e5")
	assert.Error(t, err)
}

func TestResolveSANAndApply(t *testing.T) {
	p, err := game.FromFEN(fen.Initial)
	require.NoError(t, err)

	c, err := p.ResolveSAN("Nf3")
	require.NoError(t, err)
	assert.Equal(t, "g1f3", c.UCI)

	next := p.Apply(c)
	assert.Contains(t, next.FEN(), "rnbqkbnr/pppppppp/8/8/8/5N2/PPPPPPPP/RNBQKB1R b")
}

func TestResolveSANRejectsIllegalMove(t *testing.T) {
	p, err := game.FromFEN(fen.Initial)
	require.NoError(t, err)

	_, err = p.ResolveSAN("Nf6")
	assert.Error(t, err)
}

func TestTerminalCheckmate(t *testing.T) {
	p, err := game.FromFEN("6k1/5ppp/8/8/8/8/5PPP/R5K1 w - - 0 1")
	require.NoError(t, err)

	c, err := p.ResolveUCI("a1a8")
	require.NoError(t, err)
	next := p.Apply(c)

	assert.Equal(t, game.Checkmate, next.Terminal())
}
