package coordinator_test

import (
	"context"
	"testing"
	"time"

	"github.com/lucidrook/conftree/pkg/board/fen"
	"github.com/lucidrook/conftree/pkg/coordinator"
	"github.com/lucidrook/conftree/pkg/uci"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// agreeableEvaluator always reports perfect cross-depth agreement, so the builder should converge
// immediately with a single spine node.
type agreeableEvaluator struct{}

func (agreeableEvaluator) AnalysePV(_ context.Context, _ string, depth, multipv int, _ time.Duration) (uci.Evaluation, error) {
	n := multipv
	if n > 3 {
		n = 3
	}
	moves := []string{"e2e4", "d2d4", "g1f3"}[:n]
	scores := make([]int, n)
	for i := range scores {
		scores[i] = 10
	}
	return uci.Evaluation{ScoreCP: 10, PV: []string{"e2e4"}, MultiPVScores: scores, MultiPVMoves: moves, DepthUsed: depth}, nil
}

func (agreeableEvaluator) ScoreMove(_ context.Context, _ string, _ int, _ string, _ time.Duration) (int, error) {
	return 10, nil
}

func testConfig() coordinator.Config {
	return coordinator.Config{
		MaxPlyFromRoot: 10, MaxIterations: 5,
		DeepDepth: 12, ShallowDepth: 4, BranchingK: 3,
		DeepTimeout: time.Second, ShallowTimeout: time.Second,
		RequestTimeout: 2 * time.Second,
	}
}

func TestRaiseConfidenceHappyPath(t *testing.T) {
	c := coordinator.New(agreeableEvaluator{}, testConfig())

	resp, tel, err := c.RaiseConfidence(context.Background(), coordinator.Request{FEN: fen.Initial, Target: 80})
	require.NoError(t, err)
	assert.Equal(t, 100, resp.OverallConfidence)
	assert.NotEmpty(t, resp.Nodes)
	assert.Equal(t, "target_met", resp.ExitReason)
	assert.Equal(t, resp.ExitReason, tel.ExitReason)
}

func TestRaiseConfidenceRejectsInvalidFEN(t *testing.T) {
	c := coordinator.New(agreeableEvaluator{}, testConfig())

	_, _, err := c.RaiseConfidence(context.Background(), coordinator.Request{FEN: "not a fen"})
	require.Error(t, err)

	var cerr *coordinator.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, coordinator.KindInvalidInput, cerr.Kind)
}

func TestRaiseConfidenceRejectsOutOfRangeTarget(t *testing.T) {
	c := coordinator.New(agreeableEvaluator{}, testConfig())

	_, _, err := c.RaiseConfidence(context.Background(), coordinator.Request{FEN: fen.Initial, Target: 150})
	require.Error(t, err)

	var cerr *coordinator.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, coordinator.KindInvalidInput, cerr.Kind)
}

func TestRaiseConfidenceHandlesTerminalCheckmateInput(t *testing.T) {
	c := coordinator.New(agreeableEvaluator{}, testConfig())

	resp, tel, err := c.RaiseConfidence(context.Background(), coordinator.Request{
		// The canonical Fool's Mate final position: White to move, checkmated.
		FEN: "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.OverallConfidence)
	assert.Len(t, resp.Nodes, 1)
	assert.Equal(t, "terminal", resp.ExitReason)
	assert.Equal(t, "terminal", tel.ExitReason)
}

func TestRaiseConfidenceAcceptsSANMove(t *testing.T) {
	c := coordinator.New(agreeableEvaluator{}, testConfig())

	resp, _, err := c.RaiseConfidence(context.Background(), coordinator.Request{FEN: fen.Initial, Move: "Nf3"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Nodes)
	assert.Equal(t, "Nf3", resp.Nodes[0].MoveFromParentSAN)
}

func TestRaiseConfidenceRejectsIllegalMove(t *testing.T) {
	c := coordinator.New(agreeableEvaluator{}, testConfig())

	_, _, err := c.RaiseConfidence(context.Background(), coordinator.Request{FEN: fen.Initial, Move: "e2e5"})
	require.Error(t, err)

	var cerr *coordinator.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, coordinator.KindInvalidInput, cerr.Kind)
}
