package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/lucidrook/conftree/pkg/uci"
)

// Facade presents a call-site-friendly abstraction over a Pool: the caller gives
// (fen, depth, multipv) and blocks until an Evaluation arrives (C3). All retries happen here so
// that pkg/tree need not encode I/O failure logic.
type Facade struct {
	pool *Pool
}

// NewFacade wraps pool in a retrying evaluation facade.
func NewFacade(pool *Pool) *Facade {
	return &Facade{pool: pool}
}

// AnalysePV evaluates fen at depth with the given multipv count, retrying once on any failure
// other than Overloaded or cancellation (per §7, a retry does not help either of those). A
// second failure is reported as uci.ErrEngineUnavailable.
func (f *Facade) AnalysePV(ctx context.Context, fen string, depth, multipv int, timeout time.Duration) (uci.Evaluation, error) {
	ev, err := f.attempt(ctx, fen, depth, multipv, timeout)
	if err == nil {
		return ev, nil
	}
	if err == ErrOverloaded || ctx.Err() != nil {
		return uci.Evaluation{}, err
	}

	ev, err = f.attempt(ctx, fen, depth, multipv, timeout)
	if err == nil {
		return ev, nil
	}
	return uci.Evaluation{}, fmt.Errorf("%w: %v", uci.ErrEngineUnavailable, err)
}

func (f *Facade) attempt(ctx context.Context, fen string, depth, multipv int, timeout time.Duration) (uci.Evaluation, error) {
	fut, err := f.pool.Submit(Task{FEN: fen, Depth: depth, MultiPV: multipv, Timeout: timeout})
	if err != nil {
		return uci.Evaluation{}, err
	}
	return fut.Wait(ctx)
}

// ScoreMove scores a single specific move at depth (via UCI searchmoves), retrying once under the
// same policy as AnalysePV. It is used to obtain the "played move" score the confidence formula
// needs when that move is not necessarily the engine's own top choice.
func (f *Facade) ScoreMove(ctx context.Context, fen string, depth int, moveUCI string, timeout time.Duration) (int, error) {
	ev, err := f.attemptMove(ctx, fen, depth, moveUCI, timeout)
	if err == nil {
		return ev.ScoreCP, nil
	}
	if err == ErrOverloaded || ctx.Err() != nil {
		return 0, err
	}

	ev, err = f.attemptMove(ctx, fen, depth, moveUCI, timeout)
	if err == nil {
		return ev.ScoreCP, nil
	}
	return 0, fmt.Errorf("%w: %v", uci.ErrEngineUnavailable, err)
}

func (f *Facade) attemptMove(ctx context.Context, fen string, depth int, moveUCI string, timeout time.Duration) (uci.Evaluation, error) {
	fut, err := f.pool.Submit(Task{FEN: fen, Depth: depth, SearchMove: moveUCI, Timeout: timeout})
	if err != nil {
		return uci.Evaluation{}, err
	}
	return fut.Wait(ctx)
}
