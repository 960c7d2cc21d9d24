package tree

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lucidrook/conftree/pkg/confidence"
	"github.com/lucidrook/conftree/pkg/game"
	"github.com/lucidrook/conftree/pkg/uci"
)

// Evaluator is the subset of pkg/pool.Facade the builder needs: scoring a position's own
// preferred line at a given depth/multipv, and scoring one externally-chosen move. Declaring it
// here rather than depending on *pool.Facade directly keeps the builder testable against a fake
// and keeps this package decoupled from the queueing/retry machinery underneath it.
type Evaluator interface {
	AnalysePV(ctx context.Context, fen string, depth, multipv int, timeout time.Duration) (uci.Evaluation, error)
	ScoreMove(ctx context.Context, fen string, depth int, moveUCI string, timeout time.Duration) (int, error)
}

// Config bundles the tuning knobs the builder needs: target/baseline confidence, the ply and
// iteration budgets, search depths and their timeouts, and branching factor k.
type Config struct {
	TargetConfidence   int
	BaselineConfidence int
	MaxPlyFromRoot     int
	MaxIterations      int
	DeepDepth          int
	ShallowDepth       int
	BranchingK         int
	DeepTimeout        time.Duration
	ShallowTimeout     time.Duration
}

// ExitReason records why the extension loop stopped.
type ExitReason string

const (
	ExitTargetMet     ExitReason = "target_met"
	ExitEligibleEmpty ExitReason = "eligible_empty"
	ExitMaxIterations ExitReason = "max_iterations"
	ExitCancelled     ExitReason = "cancelled"
)

// ErrEngineUnavailable is returned when two extensions fail consecutively.
var ErrEngineUnavailable = uci.ErrEngineUnavailable

var errNoContinuation = errors.New("tree: no further move available")

// Result carries the finished tree plus the telemetry a caller logs and reports.
type Result struct {
	Tree         *Tree
	Iterations   int
	NodesCreated int
	EngineCalls  int
	ExitReason   ExitReason
}

// Build runs spine construction followed by the selective-extension loop from root, using eval
// for all engine access. candidate, if non-nil, is the externally-chosen move to play at root
// (e.g. a user's candidate move); if nil, the engine's own top choice at root is used instead.
// root must not itself be a terminal position; callers screen that case before calling Build.
func Build(ctx context.Context, eval Evaluator, root game.Position, candidate *game.PrincipalCandidate, cfg Config) (*Result, error) {
	b := &builder{eval: eval, cfg: cfg, t: newTree(), preRootPos: root}

	if err := b.buildSpine(ctx, root, candidate); err != nil {
		return nil, err
	}

	exit, err := b.run(ctx)
	if err != nil {
		return nil, err
	}

	return &Result{
		Tree:         b.t,
		Iterations:   b.iterations,
		NodesCreated: b.t.Len(),
		EngineCalls:  b.engineCalls,
		ExitReason:   exit,
	}, nil
}

type builder struct {
	eval Evaluator
	cfg  Config
	t    *Tree

	preRootPos  game.Position // the position before the tree's root node's own move
	lastSpineID int           // index of the final (never-extended) spine node
	seenAlt     map[int]map[string]bool

	iterations  int
	engineCalls int
}

// buildSpine lays down the principal-variation backbone (§4.4.3): the tree's root is the first PV
// node (the position after the played move), walked forward via each node's own engine-preferred
// continuation until the ply budget, a terminal position, or the PV's natural length is reached.
func (b *builder) buildSpine(ctx context.Context, root game.Position, candidate *game.PrincipalCandidate) error {
	cur := root
	var played game.PrincipalCandidate
	var err error

	if candidate != nil {
		played = *candidate
	} else {
		deepEv, derr := b.eval.AnalysePV(ctx, cur.FEN(), b.cfg.DeepDepth, 1, b.cfg.DeepTimeout)
		b.engineCalls++
		if derr != nil {
			return fmt.Errorf("tree: spine construction: %w", derr)
		}
		if len(deepEv.PV) == 0 {
			return errors.New("tree: engine returned no principal variation from a non-terminal position")
		}
		played, err = cur.ResolveUCI(deepEv.PV[0])
		if err != nil {
			return fmt.Errorf("tree: spine construction: %w", err)
		}
	}

	parentIdx := -1
	ply := 0
	for {
		conf, deepPV, err := b.scoreSpecific(ctx, cur, played)
		if err != nil {
			return fmt.Errorf("tree: spine construction: %w", err)
		}

		next := cur.Apply(played)

		var nextCandidate *game.PrincipalCandidate
		if ply+1 < b.cfg.MaxPlyFromRoot && next.Terminal() == game.NotTerminal {
			var cont string
			if len(deepPV) >= 2 && deepPV[0] == played.UCI {
				cont = deepPV[1]
			} else if len(deepPV) == 0 || deepPV[0] != played.UCI {
				// deepPV answers a different move than played, so ask for next's own continuation.
				nextEv, nerr := b.eval.AnalysePV(ctx, next.FEN(), b.cfg.DeepDepth, 1, b.cfg.DeepTimeout)
				b.engineCalls++
				if nerr != nil {
					return fmt.Errorf("tree: spine construction: %w", nerr)
				}
				if len(nextEv.PV) > 0 {
					cont = nextEv.PV[0]
				}
			}
			if c, cerr := next.ResolveUCI(cont); cont != "" && cerr == nil {
				nextCandidate = &c
			}
		}
		final := nextCandidate == nil

		shape := Circle
		if ply == 0 || final {
			shape = Square
		}
		color := Red
		if conf >= b.cfg.BaselineConfidence {
			color = Green
		}

		n := Node{
			ID:                  fmt.Sprintf("pv-%d", ply),
			PositionFingerprint: next.FEN(),
			MoveFromParentSAN:   played.SAN,
			PlyFromRoot:         ply,
			ConfidencePercent:   conf,
			Shape:               shape,
			Color:               color,
			OnSpine:             true,
		}
		if ply > 0 {
			n.ParentID = fmt.Sprintf("pv-%d", ply-1)
		}

		idx := b.t.add(n, next, parentIdx, played.UCI)
		parentIdx = idx
		b.lastSpineID = idx
		ply++

		if final {
			break
		}
		cur = next
		played = *nextCandidate
	}
	return nil
}

// scoreSpecific evaluates pos at deep and shallow depth and scores played specifically (via
// searchmoves when it isn't already each query's own top choice), returning the confidence and
// the deep query's own principal variation so callers can keep walking it.
func (b *builder) scoreSpecific(ctx context.Context, pos game.Position, played game.PrincipalCandidate) (int, []string, error) {
	deepEv, err := b.eval.AnalysePV(ctx, pos.FEN(), b.cfg.DeepDepth, 1, b.cfg.DeepTimeout)
	b.engineCalls++
	if err != nil {
		return 0, nil, err
	}
	shallowEv, err := b.eval.AnalysePV(ctx, pos.FEN(), b.cfg.ShallowDepth, 1, b.cfg.ShallowTimeout)
	b.engineCalls++
	if err != nil {
		return 0, nil, err
	}

	sDeep := deepEv.ScoreCP
	if len(deepEv.PV) == 0 || deepEv.PV[0] != played.UCI {
		sDeep, err = b.eval.ScoreMove(ctx, pos.FEN(), b.cfg.DeepDepth, played.UCI, b.cfg.DeepTimeout)
		b.engineCalls++
		if err != nil {
			return 0, nil, err
		}
	}

	sShallow := shallowEv.ScoreCP
	if len(shallowEv.PV) == 0 || shallowEv.PV[0] != played.UCI {
		sShallow, err = b.eval.ScoreMove(ctx, pos.FEN(), b.cfg.ShallowDepth, played.UCI, b.cfg.ShallowTimeout)
		b.engineCalls++
		if err != nil {
			return 0, nil, err
		}
	}

	c := confidence.Score(confidence.Inputs{SDeep: sDeep, SShallow: sShallow, PVDeep: deepEv.ScoreCP, PVShallow: shallowEv.ScoreCP})
	return c, deepEv.PV, nil
}

// scoreOwnContinuation is scoreSpecific specialized to "the played move is whatever the engine's
// own deep search already prefers" — the common case while walking the spine and while building a
// branch's short tail, where no extra searchmoves call is needed for the deep side.
func (b *builder) scoreOwnContinuation(ctx context.Context, pos game.Position) (int, game.PrincipalCandidate, error) {
	deepEv, err := b.eval.AnalysePV(ctx, pos.FEN(), b.cfg.DeepDepth, 1, b.cfg.DeepTimeout)
	b.engineCalls++
	if err != nil {
		return 0, game.PrincipalCandidate{}, err
	}
	if len(deepEv.PV) == 0 {
		return 0, game.PrincipalCandidate{}, errNoContinuation
	}
	cand, err := pos.ResolveUCI(deepEv.PV[0])
	if err != nil {
		// The engine's reported continuation is no longer legal against our own position
		// tracking; discard this sub-branch rather than treating it as an engine failure.
		return 0, game.PrincipalCandidate{}, errNoContinuation
	}

	shallowEv, err := b.eval.AnalysePV(ctx, pos.FEN(), b.cfg.ShallowDepth, 1, b.cfg.ShallowTimeout)
	b.engineCalls++
	if err != nil {
		return 0, game.PrincipalCandidate{}, err
	}

	sShallow := shallowEv.ScoreCP
	if len(shallowEv.PV) == 0 || shallowEv.PV[0] != cand.UCI {
		sShallow, err = b.eval.ScoreMove(ctx, pos.FEN(), b.cfg.ShallowDepth, cand.UCI, b.cfg.ShallowTimeout)
		b.engineCalls++
		if err != nil {
			return 0, game.PrincipalCandidate{}, err
		}
	}

	c := confidence.Score(confidence.Inputs{SDeep: deepEv.ScoreCP, SShallow: sShallow, PVDeep: deepEv.ScoreCP, PVShallow: shallowEv.ScoreCP})
	return c, cand, nil
}

// effectiveConfidence is confidence_frozen for triangles, confidence_percent otherwise (§4.4.4).
func effectiveConfidence(n Node) int {
	if n.isTriangle() {
		return n.ConfidenceFrozen
	}
	return n.ConfidencePercent
}

// isEligible reports whether node idx qualifies for extension this iteration: not the final spine
// node, within the ply budget, and "red" — a triangle still short of target, or a not-yet-extended
// node whose own confidence is below target. The literal "red circle" wording is read broadly as
// "not yet a triangle", since restricting it to shape == circle would make the square-shaped first
// spine node permanently ineligible, which would be a strange and likely unintended trap.
func (b *builder) isEligible(idx int) bool {
	if idx == b.lastSpineID {
		return false
	}
	n := b.t.node(idx)
	if n.PlyFromRoot >= b.cfg.MaxPlyFromRoot {
		return false
	}
	if n.isTriangle() {
		return n.HasBranches && n.InsufficientConfidence
	}
	return !n.HasBranches && n.ConfidencePercent < b.cfg.TargetConfidence
}

// collectEligible scans every node in the arena and returns the current eligible set, recomputed
// fresh each call to mirror the reference pseudocode exactly.
func (b *builder) collectEligible() []eligibleElm {
	var out []eligibleElm
	for idx := 0; idx < b.t.Len(); idx++ {
		if !b.isEligible(idx) {
			continue
		}
		n := b.t.node(idx)
		out = append(out, eligibleElm{idx: idx, confidence: effectiveConfidence(n), seq: b.t.seqOf(idx)})
	}
	return out
}

// run executes the selective-extension loop (§4.4.4) until the target is met, no eligible node
// remains, the iteration budget is exhausted, or the context is cancelled at an iteration
// boundary.
func (b *builder) run(ctx context.Context) (ExitReason, error) {
	consecutiveFailures := 0

	for b.iterations < b.cfg.MaxIterations {
		if ctx.Err() != nil {
			return ExitCancelled, nil
		}
		if b.t.OverallConfidence(b.cfg.TargetConfidence) >= b.cfg.TargetConfidence {
			return ExitTargetMet, nil
		}

		victimIdx, ok := selectVictim(b.collectEligible())
		if !ok {
			return ExitEligibleEmpty, nil
		}

		if err := b.extend(ctx, victimIdx); err != nil {
			consecutiveFailures++
			if consecutiveFailures >= 2 {
				return "", fmt.Errorf("tree: two consecutive extension failures: %w", ErrEngineUnavailable)
			}
		} else {
			consecutiveFailures = 0
		}

		b.iterations++
	}
	return ExitMaxIterations, nil
}

// extend implements §4.4.5 (branch creation) and §4.4.6 (triangle recoloring) for one victim node.
// The victim is marked a red triangle before any engine call is made, so a failed engine call
// midway through still leaves it correctly classified without any rollback.
func (b *builder) extend(ctx context.Context, victimIdx int) error {
	v := b.t.node(victimIdx)
	if !v.isTriangle() {
		v.Shape = Triangle
		v.Color = Red
		v.HasBranches = true
		v.ConfidenceFrozen = v.ConfidencePercent
		v.InsufficientConfidence = true
		b.t.nodes[victimIdx] = v
	}

	parentIdx := b.t.parent(victimIdx)
	var parentPos game.Position
	if parentIdx < 0 {
		parentPos = b.preRootPos
	} else {
		parentPos = b.t.position(parentIdx)
	}

	k := b.cfg.BranchingK
	deepK, err := b.eval.AnalysePV(ctx, parentPos.FEN(), b.cfg.DeepDepth, k, b.cfg.DeepTimeout)
	b.engineCalls++
	if err != nil {
		return err
	}
	shallowOne, err := b.eval.AnalysePV(ctx, parentPos.FEN(), b.cfg.ShallowDepth, 1, b.cfg.ShallowTimeout)
	b.engineCalls++
	if err != nil {
		return err
	}

	vMoveUCI := b.t.moveOf(victimIdx)

	if b.seenAlt == nil {
		b.seenAlt = make(map[int]map[string]bool)
	}
	seen := b.seenAlt[victimIdx]
	if seen == nil {
		seen = map[string]bool{vMoveUCI: true}
	}

	pvDeepParent := deepK.ScoreCP
	pvShallowParent := shallowOne.ScoreCP

	var rank1Move string
	if len(deepK.MultiPVMoves) > 0 {
		rank1Move = deepK.MultiPVMoves[0]
	}

	var terminalConfs []int
	altConfByMove := make(map[string]int)

	for i, m := range deepK.MultiPVMoves {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true

		cand, rerr := parentPos.ResolveUCI(m)
		if rerr != nil {
			continue // engine reported an illegal continuation; discard this alternative
		}
		childPos := parentPos.Apply(cand)

		sDeep := pvDeepParent
		if i < len(deepK.MultiPVScores) {
			sDeep = deepK.MultiPVScores[i]
		}
		sShallow, serr := b.eval.ScoreMove(ctx, parentPos.FEN(), b.cfg.ShallowDepth, m, b.cfg.ShallowTimeout)
		b.engineCalls++
		if serr != nil {
			return serr
		}

		conf := confidence.Score(confidence.Inputs{SDeep: sDeep, SShallow: sShallow, PVDeep: pvDeepParent, PVShallow: pvShallowParent})
		altConfByMove[m] = conf

		color := Red
		if conf >= b.cfg.BaselineConfidence {
			color = Green
		}

		branchID := fmt.Sprintf("%s-alt%d", v.ID, b.t.nextAlt(victimIdx))
		bn := Node{
			ID:                  branchID,
			ParentID:            v.ParentID,
			PositionFingerprint: childPos.FEN(),
			MoveFromParentSAN:   cand.SAN,
			PlyFromRoot:         v.PlyFromRoot,
			ConfidencePercent:   conf,
			Shape:               Circle,
			Color:               color,
			OnSpine:             false,
		}
		childIdx := b.t.add(bn, childPos, parentIdx, m)

		tailConf, terr := b.buildTail(ctx, childPos, childIdx, branchID)
		if terr != nil {
			return terr
		}
		terminalConfs = append(terminalConfs, tailConf)
	}
	b.seenAlt[victimIdx] = seen

	v = b.t.node(victimIdx)
	if len(terminalConfs) == 0 {
		b.t.nodes[victimIdx] = v
		return nil
	}

	highestTerminal := terminalConfs[0]
	for _, c := range terminalConfs[1:] {
		if c > highestTerminal {
			highestTerminal = c
		}
	}

	bestAltConf, ok := altConfByMove[rank1Move]
	if !ok {
		if rank1Move == vMoveUCI {
			bestAltConf = v.ConfidenceFrozen
		} else {
			bestAltConf = 0
		}
	}

	switch {
	case highestTerminal >= b.cfg.TargetConfidence:
		v.Color = Green
		v.InsufficientConfidence = false
	case bestAltConf >= b.cfg.TargetConfidence:
		v.Color = Blue
		v.InsufficientConfidence = false
	default:
		v.Color = Red
		v.InsufficientConfidence = true
	}
	b.t.nodes[victimIdx] = v
	return nil
}

// buildTail extends a freshly-created branch node with a single-ply continuation (a short PV tail
// of length >= 1, per §4.4.5): its own move is the engine's own preference at childPos, so its
// deep term is free of an extra searchmoves call. Being simultaneously the first and last tail
// node, it is square. An exhausted position (terminal, or no further engine-reported move) falls
// back to the branch node's own confidence as its terminal value rather than failing the
// extension.
func (b *builder) buildTail(ctx context.Context, pos game.Position, parentIdx int, branchID string) (int, error) {
	if pos.Terminal() != game.NotTerminal {
		return b.t.node(parentIdx).ConfidencePercent, nil
	}

	conf, cand, err := b.scoreOwnContinuation(ctx, pos)
	if err != nil {
		if errors.Is(err, errNoContinuation) {
			return b.t.node(parentIdx).ConfidencePercent, nil
		}
		return 0, err
	}

	next := pos.Apply(cand)
	color := Red
	if conf >= b.cfg.BaselineConfidence {
		color = Green
	}

	parent := b.t.node(parentIdx)
	tn := Node{
		ID:                  branchID + "-t0",
		ParentID:            parent.ID,
		PositionFingerprint: next.FEN(),
		MoveFromParentSAN:   cand.SAN,
		PlyFromRoot:         parent.PlyFromRoot + 1,
		ConfidencePercent:   conf,
		Shape:               Square,
		Color:               color,
		OnSpine:             false,
	}
	b.t.add(tn, next, parentIdx, cand.UCI)
	return conf, nil
}
