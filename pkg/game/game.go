// Package game adapts pkg/board into the value-oriented Position the confidence tree operates
// on: a FEN fingerprint, the side to move, and the ability to apply a UCI long-algebraic move and
// recover its SAN, grounded on the same ParseMove+PseudoLegalMoves+Equals matching pkg/engine
// uses to turn an external move string into a legal board.Move.
package game

import (
	"fmt"

	"github.com/lucidrook/conftree/pkg/board"
	"github.com/lucidrook/conftree/pkg/board/fen"
)

// Position is one immutable node of a game: a board position plus the bookkeeping FEN encoding
// requires. Positions are values and are never mutated in place.
type Position struct {
	pos        *board.Position
	turn       board.Color
	noProgress int
	fullMoves  int
}

// FromFEN decodes a standard FEN string into a Position.
func FromFEN(s string) (Position, error) {
	pos, turn, noProgress, fullMoves, err := fen.Decode(s)
	if err != nil {
		return Position{}, fmt.Errorf("game: invalid fen %q: %w", s, err)
	}
	return Position{pos: pos, turn: turn, noProgress: noProgress, fullMoves: fullMoves}, nil
}

// FEN returns the position's canonical FEN fingerprint.
func (p Position) FEN() string {
	return fen.Encode(p.pos, p.turn, p.noProgress, p.fullMoves)
}

// Turn returns the side to move.
func (p Position) Turn() board.Color {
	return p.turn
}

// Outcome classifies why a position has no legal moves.
type Outcome int

const (
	// NotTerminal means the position has at least one legal move.
	NotTerminal Outcome = iota
	// Checkmate means the side to move is mated.
	Checkmate
	// Stalemate means the side to move has no legal move but is not in check.
	Stalemate
	// InsufficientMaterial means neither side retains mating material.
	InsufficientMaterial
)

// Terminal classifies the position per the rules a confidence computation needs: checkmate,
// stalemate, insufficient material, or (most commonly) not terminal at all.
func (p Position) Terminal() Outcome {
	if p.pos.HasInsufficientMaterial() {
		return InsufficientMaterial
	}
	if len(p.pos.LegalMoves(p.turn)) > 0 {
		return NotTerminal
	}
	if p.pos.IsChecked(p.turn) {
		return Checkmate
	}
	return Stalemate
}

// PrincipalCandidate is one legal move available at this position, exposed so callers can resolve
// a UCI move string to a board.Move (needed to apply it) and to SAN (needed for display) without
// reaching into pkg/board directly.
type PrincipalCandidate struct {
	Move board.Move
	UCI  string
	SAN  string
}

// Candidates returns every legal move at this position, in board.LegalMoves order.
func (p Position) Candidates() []PrincipalCandidate {
	legal := p.pos.LegalMoves(p.turn)
	out := make([]PrincipalCandidate, len(legal))
	for i, m := range legal {
		out[i] = PrincipalCandidate{Move: m, UCI: m.String(), SAN: p.pos.EncodeSAN(p.turn, m)}
	}
	return out
}

// ResolveUCI finds the legal move matching a UCI long-algebraic string (e.g. "e2e4" or "a7a8q"),
// the notation an engine's PV is expressed in. Candidate is first parsed per-move then matched
// against the position's pseudo-legal moves by equality, mirroring pkg/engine.Engine.Move.
func (p Position) ResolveUCI(uci string) (PrincipalCandidate, error) {
	candidate, err := board.ParseMove(uci)
	if err != nil {
		return PrincipalCandidate{}, fmt.Errorf("game: %w", err)
	}

	for _, m := range p.pos.PseudoLegalMoves(p.turn) {
		if !candidate.Equals(m) {
			continue
		}
		if _, ok := p.pos.Move(m); !ok {
			return PrincipalCandidate{}, fmt.Errorf("game: illegal move: %v", m)
		}
		return PrincipalCandidate{Move: m, UCI: m.String(), SAN: p.pos.EncodeSAN(p.turn, m)}, nil
	}
	return PrincipalCandidate{}, fmt.Errorf("game: no legal move matches %q", uci)
}

// ResolveSAN finds the legal move matching a Standard Algebraic Notation string (e.g. "Nf3" or
// "O-O"), the notation a caller-supplied candidate move is typically expressed in.
func (p Position) ResolveSAN(san string) (PrincipalCandidate, error) {
	m, err := p.pos.DecodeSAN(p.turn, san)
	if err != nil {
		return PrincipalCandidate{}, fmt.Errorf("game: %w", err)
	}
	return PrincipalCandidate{Move: m, UCI: m.String(), SAN: p.pos.EncodeSAN(p.turn, m)}, nil
}

// Apply plays c (obtained from ResolveUCI or Candidates) and returns the resulting Position.
func (p Position) Apply(c PrincipalCandidate) Position {
	next, ok := p.pos.Move(c.Move)
	if !ok {
		panic(fmt.Sprintf("game: Apply called with illegal move %v", c.Move))
	}

	noProgress := p.noProgress + 1
	if isIrreversible(c.Move) {
		noProgress = 0
	}
	fullMoves := p.fullMoves
	if p.turn == board.Black {
		fullMoves++
	}

	return Position{pos: next, turn: p.turn.Opponent(), noProgress: noProgress, fullMoves: fullMoves}
}

func isIrreversible(m board.Move) bool {
	switch m.Type {
	case board.Normal, board.QueenSideCastle, board.KingSideCastle:
		return false
	default:
		return true
	}
}
