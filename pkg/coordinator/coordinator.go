// Package coordinator implements the request entry point (C8): decoding a raise-confidence
// request, validating it, invoking the tree builder and its aggregation, and packaging the result
// plus telemetry for the caller.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lucidrook/conftree/pkg/confidence"
	"github.com/lucidrook/conftree/pkg/game"
	"github.com/lucidrook/conftree/pkg/tree"
	"github.com/seekerror/build"
	"github.com/seekerror/logw"
)

var version = build.NewVersion(0, 1, 0)

// Version reports the coordinator's build version, the way engine.Engine.Name stamps its own
// identity with a build.Version.
func Version() string {
	return fmt.Sprintf("%v", version)
}

// DefaultTarget is applied when a request omits target.
const DefaultTarget = 80

// DefaultRequestTimeout bounds one request end to end.
const DefaultRequestTimeout = 60 * time.Second

// Request is one raise-confidence call (§6.2).
type Request struct {
	FEN      string
	Move     string // optional SAN or UCI move; "" means "use the engine's own PV"
	Target   int    // 0 means "apply DefaultTarget"
	Baseline int    // 0 means "apply Target"
}

// Response is the packaged result of one successful (possibly partial) build.
type Response struct {
	OverallConfidence int         `json:"overall_confidence"`
	LineConfidence    int         `json:"line_confidence"`
	Nodes             []tree.Node `json:"nodes"`
	ExitReason        string      `json:"exit_reason"`
}

// Telemetry is the one structured record §4.7 requires per request.
type Telemetry struct {
	Version        string
	IterationCount int
	NodesCreated   int
	EngineCalls    int
	Elapsed        time.Duration
	ExitReason     string
}

// ErrKind is the small closed set of error classifications §7 names.
type ErrKind string

const (
	KindInvalidInput      ErrKind = "InvalidInput"
	KindOverloaded        ErrKind = "Overloaded"
	KindEngineUnavailable ErrKind = "EngineUnavailable"
	KindCancelled         ErrKind = "Cancelled"
	KindTimeout           ErrKind = "Timeout"
)

// Error wraps an underlying failure with its §7 classification.
type Error struct {
	Kind ErrKind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("coordinator: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Config bundles the tree builder tuning (§6.3) the coordinator applies to every request.
type Config struct {
	MaxPlyFromRoot int
	MaxIterations  int
	DeepDepth      int
	ShallowDepth   int
	BranchingK     int
	DeepTimeout    time.Duration
	ShallowTimeout time.Duration
	RequestTimeout time.Duration // 0 means DefaultRequestTimeout
}

// Coordinator is the C8 entry point, wired to a tree.Evaluator (satisfied by *pool.Facade).
type Coordinator struct {
	eval tree.Evaluator
	cfg  Config
}

// New builds a Coordinator over eval (typically *pool.Facade).
func New(eval tree.Evaluator, cfg Config) *Coordinator {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Coordinator{eval: eval, cfg: cfg}
}

// RaiseConfidence validates the request, builds the confidence tree, and packages the response.
// It honors ctx for request-scoped cancellation in addition to its own per-request timeout.
func (c *Coordinator) RaiseConfidence(ctx context.Context, req Request) (*Response, *Telemetry, error) {
	start := time.Now()

	target := req.Target
	if target == 0 {
		target = DefaultTarget
	}
	baseline := req.Baseline
	if baseline == 0 {
		baseline = target
	}
	if target < 0 || target > 100 || baseline < 0 || baseline > 100 {
		return nil, nil, &Error{Kind: KindInvalidInput, Err: errors.New("target/baseline must be in [0, 100]")}
	}

	pos, err := game.FromFEN(req.FEN)
	if err != nil {
		return nil, nil, &Error{Kind: KindInvalidInput, Err: err}
	}

	var candidate *game.PrincipalCandidate
	if req.Move != "" {
		cand, rerr := resolveMove(pos, req.Move)
		if rerr != nil {
			return nil, nil, &Error{Kind: KindInvalidInput, Err: rerr}
		}
		candidate = &cand
	}

	if outcome := pos.Terminal(); outcome != game.NotTerminal {
		resp, tel := terminalResponse(outcome, start)
		return resp, tel, nil
	}

	cctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	result, err := tree.Build(cctx, c.eval, pos, candidate, tree.Config{
		TargetConfidence:   target,
		BaselineConfidence: baseline,
		MaxPlyFromRoot:     c.cfg.MaxPlyFromRoot,
		MaxIterations:      c.cfg.MaxIterations,
		DeepDepth:          c.cfg.DeepDepth,
		ShallowDepth:       c.cfg.ShallowDepth,
		BranchingK:         c.cfg.BranchingK,
		DeepTimeout:        c.cfg.DeepTimeout,
		ShallowTimeout:     c.cfg.ShallowTimeout,
	})
	if err != nil {
		kind := translateErr(err)
		tel := &Telemetry{Version: Version(), Elapsed: time.Since(start), ExitReason: string(kind)}
		logw.Infof(ctx, "coordinator: request failed kind=%s elapsed=%s: %v", kind, tel.Elapsed, err)
		return nil, tel, &Error{Kind: kind, Err: err}
	}

	exitReason := string(result.ExitReason)
	if result.ExitReason == tree.ExitCancelled {
		exitReason = string(translateCancellation(ctx, cctx))
	}

	resp := &Response{
		OverallConfidence: result.Tree.OverallConfidence(target),
		LineConfidence:    result.Tree.LineConfidence(target),
		Nodes:             result.Tree.Nodes(),
		ExitReason:        exitReason,
	}
	tel := &Telemetry{
		Version:        Version(),
		IterationCount: result.Iterations,
		NodesCreated:   result.NodesCreated,
		EngineCalls:    result.EngineCalls,
		Elapsed:        time.Since(start),
		ExitReason:     exitReason,
	}
	logw.Infof(ctx, "coordinator: request complete exit=%s iterations=%d nodes=%d engine_calls=%d elapsed=%s",
		tel.ExitReason, tel.IterationCount, tel.NodesCreated, tel.EngineCalls, tel.Elapsed)

	return resp, tel, nil
}

// resolveMove accepts either UCI long algebraic or SAN for req.Move.
func resolveMove(pos game.Position, move string) (game.PrincipalCandidate, error) {
	if cand, err := pos.ResolveUCI(move); err == nil {
		return cand, nil
	}
	if cand, err := pos.ResolveSAN(move); err == nil {
		return cand, nil
	}
	return game.PrincipalCandidate{}, fmt.Errorf("coordinator: no legal move matches %q", move)
}

// terminalResponse builds the single-node terminal tree this implementation returns for a
// terminal input position rather than InvalidInput (see DESIGN.md's Open Question decision):
// favorable checkmate is never possible as an *input* (the side to move is the one mated), so a
// checkmate input always scores confidence.TerminalScore(TerminalCheckmateUnfavorable) == 0;
// stalemate and insufficient material score confidence.TerminalScore(TerminalDraw) == 50.
func terminalResponse(outcome game.Outcome, start time.Time) (*Response, *Telemetry) {
	terminal := confidence.TerminalDraw
	if outcome == game.Checkmate {
		terminal = confidence.TerminalCheckmateUnfavorable
	}
	conf := confidence.TerminalScore(terminal)
	node := tree.Node{
		ID:                "pv-0",
		PlyFromRoot:       0,
		ConfidencePercent: conf,
		Shape:             tree.Square,
		OnSpine:           true,
	}
	if conf >= 50 {
		node.Color = tree.Green
	} else {
		node.Color = tree.Red
	}
	resp := &Response{OverallConfidence: conf, LineConfidence: conf, Nodes: []tree.Node{node}, ExitReason: "terminal"}
	tel := &Telemetry{Version: Version(), IterationCount: 0, NodesCreated: 1, EngineCalls: 0, Elapsed: time.Since(start), ExitReason: "terminal"}
	return resp, tel
}

// translateErr classifies a tree.Build error per §7's propagation policy: every error that
// reaches the coordinator from the builder already represents an engine failure the facade's own
// retry-once policy could not recover from (or an unparseable/illegal engine response indicating
// the same), and is surfaced uniformly as EngineUnavailable.
func translateErr(error) ErrKind {
	return KindEngineUnavailable
}

// translateCancellation distinguishes the coordinator's own request timeout from a caller-driven
// cancellation, both of which the builder reports uniformly as ExitCancelled.
func translateCancellation(outer, inner context.Context) ErrKind {
	if inner.Err() != nil && outer.Err() == nil {
		return KindTimeout
	}
	return KindCancelled
}
