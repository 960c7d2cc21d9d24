package board

import (
	"fmt"
	"strings"
)

// EncodeSAN renders a legal move in Standard Algebraic Notation, including check ("+") and
// checkmate ("#") suffixes. The move is assumed to be legal for turn in this position.
func (p *Position) EncodeSAN(turn Color, m Move) string {
	var sb strings.Builder

	switch m.Type {
	case KingSideCastle:
		sb.WriteString("O-O")
	case QueenSideCastle:
		sb.WriteString("O-O-O")
	case Promotion, CapturePromotion:
		if isCaptureType(m.Type) {
			sb.WriteString(strings.ToLower(m.From.File().String()))
			sb.WriteString("x")
		}
		sb.WriteString(strings.ToLower(m.To.String()))
		sb.WriteString("=")
		sb.WriteString(strings.ToUpper(m.Promotion.String()))
	default:
		if m.Piece == Pawn {
			if isCaptureType(m.Type) {
				sb.WriteString(strings.ToLower(m.From.File().String()))
				sb.WriteString("x")
			}
			sb.WriteString(strings.ToLower(m.To.String()))
		} else {
			sb.WriteString(strings.ToUpper(m.Piece.String()))
			sb.WriteString(p.disambiguateSAN(turn, m))
			if isCaptureType(m.Type) {
				sb.WriteString("x")
			}
			sb.WriteString(strings.ToLower(m.To.String()))
		}
	}

	if next, ok := p.Move(m); ok {
		opp := turn.Opponent()
		if next.IsChecked(opp) {
			if len(next.LegalMoves(opp)) == 0 {
				sb.WriteString("#")
			} else {
				sb.WriteString("+")
			}
		}
	}

	return sb.String()
}

// disambiguateSAN returns the minimal file/rank/both prefix needed to distinguish m from other
// legal moves of the same piece type to the same destination square.
func (p *Position) disambiguateSAN(turn Color, m Move) string {
	var any, sameFile, sameRank bool
	for _, cand := range p.LegalMoves(turn) {
		if cand.Piece != m.Piece || cand.To != m.To || cand.From == m.From {
			continue
		}
		any = true
		if cand.From.File() == m.From.File() {
			sameFile = true
		}
		if cand.From.Rank() == m.From.Rank() {
			sameRank = true
		}
	}

	switch {
	case !any:
		return ""
	case !sameFile:
		return strings.ToLower(m.From.File().String())
	case !sameRank:
		return m.From.Rank().String()
	default:
		return strings.ToLower(m.From.String())
	}
}

// DecodeSAN parses a Standard Algebraic Notation move string against the set of legal moves
// for turn in this position.
func (p *Position) DecodeSAN(turn Color, san string) (Move, error) {
	legal := p.LegalMoves(turn)
	s := strings.TrimRight(san, "+#!?")

	switch s {
	case "O-O", "0-0":
		for _, m := range legal {
			if m.Type == KingSideCastle {
				return m, nil
			}
		}
		return Move{}, fmt.Errorf("no legal king-side castle for SAN: %v", san)
	case "O-O-O", "0-0-0":
		for _, m := range legal {
			if m.Type == QueenSideCastle {
				return m, nil
			}
		}
		return Move{}, fmt.Errorf("no legal queen-side castle for SAN: %v", san)
	}

	promo := NoPiece
	if idx := strings.IndexByte(s, '='); idx >= 0 {
		if idx+1 >= len(s) {
			return Move{}, fmt.Errorf("invalid promotion in SAN: %v", san)
		}
		pc, ok := ParsePiece(rune(s[idx+1]))
		if !ok {
			return Move{}, fmt.Errorf("invalid promotion in SAN: %v", san)
		}
		promo = pc
		s = s[:idx]
	}

	piece := Pawn
	runes := []rune(s)
	if len(runes) > 0 {
		if pc, ok := ParsePiece(runes[0]); ok && pc != Pawn {
			piece = pc
			runes = runes[1:]
		}
	}
	s = strings.ReplaceAll(string(runes), "x", "")

	if len(s) < 2 {
		return Move{}, fmt.Errorf("invalid SAN: %v", san)
	}
	to, err := ParseSquareStr(s[len(s)-2:])
	if err != nil {
		return Move{}, fmt.Errorf("invalid destination in SAN: %v: %w", san, err)
	}
	hint := s[:len(s)-2]

	var candidates []Move
	for _, m := range legal {
		if m.Piece != piece || m.To != to {
			continue
		}
		if m.Promotion != promo {
			continue
		}
		if hint != "" && !matchesSANHint(m.From, hint) {
			continue
		}
		candidates = append(candidates, m)
	}

	switch len(candidates) {
	case 0:
		return Move{}, fmt.Errorf("no legal move matches SAN: %v", san)
	case 1:
		return candidates[0], nil
	default:
		return Move{}, fmt.Errorf("ambiguous SAN: %v", san)
	}
}

func matchesSANHint(sq Square, hint string) bool {
	for _, r := range hint {
		switch {
		case (r >= 'a' && r <= 'h') || (r >= 'A' && r <= 'H'):
			f, ok := ParseFile(r)
			if !ok || sq.File() != f {
				return false
			}
		case r >= '1' && r <= '8':
			rk, ok := ParseRank(r)
			if !ok || sq.Rank() != rk {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func isCaptureType(t MoveType) bool {
	switch t {
	case Capture, CapturePromotion, EnPassant:
		return true
	default:
		return false
	}
}
