// Package confidence implements the pure scoring function (C5) at the heart of the confidence
// tree: mapping four engine evaluations for a single move to a 0-100 integer score.
package confidence

import (
	"math"

	"github.com/lucidrook/conftree/pkg/uci"
)

// StabilityTolerancePercent bounds the run-to-run drift of overall_confidence permitted when the
// underlying engine is non-deterministic (e.g. time-based search, SMP).
const StabilityTolerancePercent = 5

// MateScoreCP mirrors uci.MateScoreCP: the saturation magnitude a "score mate <n>" reply is
// converted to before entering this package's arithmetic. Callers are expected to have already
// saturated mate scores via pkg/uci; this constant is exposed for callers that construct engine
// numbers without going through a Worker (tests, terminal-position special cases).
const MateScoreCP = uci.MateScoreCP

// Inputs are the four engine numbers the formula compares, each relative to the position before
// the node's move and each from a consistent side to move.
type Inputs struct {
	SDeep     int // score of the played move at deep depth
	SShallow  int // score of the played move at shallow depth
	PVDeep    int // score of the engine's preferred move at deep depth
	PVShallow int // score of the engine's preferred move at shallow depth
}

// Score computes c = 100 - |s_deep-s_shallow| - |pv_deep-pv_shallow| - |pv_shallow-s_deep|,
// clamped to [0, 100] and rounded half-to-even.
func Score(in Inputs) int {
	c := 100 - abs(in.SDeep-in.SShallow) - abs(in.PVDeep-in.PVShallow) - abs(in.PVShallow-in.SDeep)
	return clampRound(float64(c))
}

// TerminalOutcome classifies a position with no legal moves, per §4.4.2: terminal confidence is
// explicit, never derived from Score.
type TerminalOutcome int

const (
	// TerminalCheckmateFavorable is the mover's opponent being checkmated: the position the node
	// represents is a decisive win for the side that just moved.
	TerminalCheckmateFavorable TerminalOutcome = iota
	// TerminalCheckmateUnfavorable is the side to move being checkmated.
	TerminalCheckmateUnfavorable
	// TerminalDraw is stalemate or any other drawn terminal (insufficient material, etc.).
	TerminalDraw
)

// TerminalScore returns the explicit confidence assigned to a terminal position: 100 for a
// favorable checkmate, 0 for an unfavorable one, 50 for a draw (the midpoint, reflecting that a
// forced draw is neither a confirmed win nor a failure of the played line).
func TerminalScore(outcome TerminalOutcome) int {
	switch outcome {
	case TerminalCheckmateFavorable:
		return 100
	case TerminalDraw:
		return 50
	default:
		return 0
	}
}

// SaturateMate converts a UCI "score mate <n>" magnitude to a signed centipawn value, saturated at
// MateScoreCP. Positive n means mate for the side to move.
func SaturateMate(n int) int {
	if n >= 0 {
		return MateScoreCP
	}
	return -MateScoreCP
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// clampRound rounds v to the nearest integer with ties broken to even (banker's rounding), then
// clamps to [0, 100].
func clampRound(v float64) int {
	r := math.RoundToEven(v)
	switch {
	case r < 0:
		return 0
	case r > 100:
		return 100
	default:
		return int(r)
	}
}
