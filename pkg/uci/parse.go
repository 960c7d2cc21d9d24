package uci

import (
	"strconv"
)

// parsedInfo is one "info" line's multipv-relevant contents. Lines that carry no score or pv
// (e.g. a bare "info string ..." diagnostic, or a currmove progress line) parse to ok=false.
type parsedInfo struct {
	depth   int
	multipv int
	scoreCP int
	pv      []string
}

// parseInfoLine parses the token stream following "info" in a UCI info line. pv is assumed to
// run to the end of the line, per the UCI protocol.
func parseInfoLine(fields []string) (parsedInfo, bool) {
	var pi parsedInfo
	haveScore := false

	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if i+1 < len(fields) {
				pi.depth, _ = strconv.Atoi(fields[i+1])
				i++
			}
		case "multipv":
			if i+1 < len(fields) {
				pi.multipv, _ = strconv.Atoi(fields[i+1])
				i++
			}
		case "score":
			if i+2 >= len(fields) {
				break
			}
			kind := fields[i+1]
			v, err := strconv.Atoi(fields[i+2])
			i += 2
			if err != nil {
				break
			}
			switch kind {
			case "mate":
				if v >= 0 {
					pi.scoreCP = MateScoreCP
				} else {
					pi.scoreCP = -MateScoreCP
				}
				haveScore = true
			case "cp":
				pi.scoreCP = v
				haveScore = true
			}
		case "pv":
			pi.pv = append([]string(nil), fields[i+1:]...)
			i = len(fields)
		case "string":
			// Diagnostic line; nothing useful for evaluation follows.
			return parsedInfo{}, false
		}
	}

	return pi, haveScore && len(pi.pv) > 0
}

// buildEvaluation assembles an Evaluation from the latest info line seen at each multipv rank.
// Missing ranks truncate MultiPVScores rather than leaving a gap.
func buildEvaluation(byRank map[int]parsedInfo, requestedDepth int) Evaluation {
	primary, ok := byRank[1]
	if !ok {
		return Evaluation{DepthUsed: requestedDepth}
	}

	maxRank := 0
	for rank := range byRank {
		if rank > maxRank {
			maxRank = rank
		}
	}

	scores := make([]int, 0, maxRank)
	moves := make([]string, 0, maxRank)
	for rank := 1; rank <= maxRank; rank++ {
		pi, ok := byRank[rank]
		if !ok {
			break
		}
		scores = append(scores, pi.scoreCP)
		if len(pi.pv) > 0 {
			moves = append(moves, pi.pv[0])
		} else {
			moves = append(moves, "")
		}
	}

	return Evaluation{
		ScoreCP:       primary.scoreCP,
		PV:            primary.pv,
		MultiPVScores: scores,
		MultiPVMoves:  moves,
		DepthUsed:     primary.depth,
	}
}
