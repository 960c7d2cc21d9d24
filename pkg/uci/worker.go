package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/util/iox"
	"go.uber.org/atomic"
)

// Worker owns one UCI engine subprocess and performs one evaluation at a time (C1). It refuses
// to start a new evaluation until the previous one has either completed or been abandoned by the
// crash path: Evaluate holds an internal mutex for its full duration.
type Worker struct {
	iox.AsyncCloser

	cfg Config

	mu   sync.Mutex // held for the duration of one Evaluate call
	proc *process

	alive               atomic.Bool
	consecutiveFailures atomic.Uint64
	totalRequests       atomic.Uint64
	lastErr             atomic.String
}

// process is the live subprocess plumbing. It is replaced wholesale on every (re)spawn so that a
// stale read-loop goroutine never leaks state into the next attempt.
type process struct {
	cmd     *exec.Cmd
	stdin   *bufio.Writer
	lines   chan lineEvent
	multipv int // last MultiPV value sent via setoption, 0 if never set
}

type lineEvent struct {
	text string
	err  error // set, with text empty, once the read loop hits EOF or a read error
}

// NewWorker spawns the engine, performs the uci/isready handshake, and applies Threads/HashMB
// tuning.
func NewWorker(ctx context.Context, cfg Config) (*Worker, error) {
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = DefaultStartupTimeout
	}

	w := &Worker{
		AsyncCloser: iox.NewAsyncCloser(),
		cfg:         cfg,
	}
	if err := w.respawn(ctx); err != nil {
		return nil, fmt.Errorf("uci: spawn %v: %w", cfg.BinaryPath, err)
	}
	return w, nil
}

// Evaluate sends "position fen <fen>" followed by "go depth <depth>" and blocks for the
// resulting Evaluation, honoring both ctx and the given per-call timeout. Multi-PV parsing is
// performed uniformly whether multipv == 1 or multipv > 1.
//
// On any subprocess failure or timeout, the engine is killed, a respawn is attempted, and
// ErrEngineCrashed is returned; the restart is transparent to later calls. If the respawn itself
// fails, ErrEngineUnavailable is returned instead.
func (w *Worker) Evaluate(ctx context.Context, fen string, depth, multipv int, timeout time.Duration) (Evaluation, error) {
	return w.evaluate(ctx, fen, depth, multipv, "", timeout)
}

// EvaluateMove scores a single specific move at depth via "go depth <depth> searchmoves <move>",
// restricting the search to that move so its score is reported regardless of whether the engine
// would otherwise have preferred a different move. This is how the confidence formula (§4.4.2)
// obtains the score of "the played move" when it is not necessarily the engine's own top choice.
func (w *Worker) EvaluateMove(ctx context.Context, fen string, depth int, moveUCI string, timeout time.Duration) (int, error) {
	ev, err := w.evaluate(ctx, fen, depth, 1, moveUCI, timeout)
	if err != nil {
		return 0, err
	}
	return ev.ScoreCP, nil
}

func (w *Worker) evaluate(ctx context.Context, fen string, depth, multipv int, searchMove string, timeout time.Duration) (Evaluation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.totalRequests.Inc()

	if !w.alive.Load() {
		if err := w.respawn(ctx); err != nil {
			w.recordFailure(err)
			return Evaluation{}, ErrEngineUnavailable
		}
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ev, err := w.evaluateOnce(cctx, fen, depth, multipv, searchMove)
	if err != nil {
		w.recordFailure(err)
		w.killProcess()

		if rerr := w.respawn(context.Background()); rerr != nil {
			logw.Errorf(ctx, "uci: respawn after failure failed: %v", rerr)
			return Evaluation{}, ErrEngineUnavailable
		}
		return Evaluation{}, ErrEngineCrashed
	}

	w.consecutiveFailures.Store(0)
	return ev, nil
}

// Health returns the worker's current liveness and failure history.
func (w *Worker) Health() Health {
	return Health{
		Alive:               w.alive.Load(),
		ConsecutiveFailures: w.consecutiveFailures.Load(),
		TotalRequests:       w.totalRequests.Load(),
		LastError:           w.lastErr.Load(),
	}
}

// Shutdown is idempotent orderly termination: it stops the subprocess and marks the worker
// closed.
func (w *Worker) Shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.AsyncCloser.Close()
	w.alive.Store(false)
	w.killProcess()
}

func (w *Worker) recordFailure(err error) {
	w.alive.Store(false)
	w.consecutiveFailures.Inc()
	w.lastErr.Store(err.Error())
}

func (w *Worker) evaluateOnce(ctx context.Context, fen string, depth, multipv int, searchMove string) (Evaluation, error) {
	if err := w.setMultiPV(multipv); err != nil {
		return Evaluation{}, err
	}
	if err := w.send("position fen " + fen); err != nil {
		return Evaluation{}, err
	}

	goCmd := fmt.Sprintf("go depth %d", depth)
	if searchMove != "" {
		goCmd += " searchmoves " + searchMove
	}
	if err := w.send(goCmd); err != nil {
		return Evaluation{}, err
	}

	byRank := make(map[int]parsedInfo)

	for {
		select {
		case <-ctx.Done():
			return Evaluation{}, ctx.Err()
		case le, ok := <-w.proc.lines:
			if !ok || le.err != nil {
				if le.err != nil {
					return Evaluation{}, le.err
				}
				return Evaluation{}, io.ErrClosedPipe
			}

			f := strings.Fields(le.text)
			if len(f) == 0 {
				continue
			}

			switch f[0] {
			case "info":
				if pi, ok := parseInfoLine(f[1:]); ok {
					rank := pi.multipv
					if rank == 0 {
						rank = 1
					}
					byRank[rank] = pi
				}
			case "bestmove":
				return buildEvaluation(byRank, depth), nil
			}
		}
	}
}

func (w *Worker) setMultiPV(k int) error {
	if k < 1 {
		k = 1
	}
	if w.proc.multipv == k {
		return nil
	}
	if err := w.send(fmt.Sprintf("setoption name MultiPV value %d", k)); err != nil {
		return err
	}
	w.proc.multipv = k
	return nil
}

func (w *Worker) send(cmd string) error {
	if _, err := w.proc.stdin.WriteString(cmd + "\n"); err != nil {
		return err
	}
	return w.proc.stdin.Flush()
}

// respawn kills any existing subprocess, starts a fresh one, and performs the uci/isready
// handshake and initial tuning. It leaves the worker marked alive only on full success.
func (w *Worker) respawn(ctx context.Context) error {
	w.killProcess()

	cmd := exec.Command(w.cfg.BinaryPath, w.cfg.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	lines := make(chan lineEvent, 256)
	go readLines(bufio.NewReader(stdout), lines)

	w.proc = &process{cmd: cmd, stdin: bufio.NewWriter(stdin), lines: lines}

	if err := w.handshake(ctx); err != nil {
		w.killProcess()
		return err
	}

	w.alive.Store(true)
	return nil
}

func readLines(r *bufio.Reader, out chan<- lineEvent) {
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			out <- lineEvent{text: strings.TrimRight(line, "\r\n")}
		}
		if err != nil {
			out <- lineEvent{err: err}
			close(out)
			return
		}
	}
}

func (w *Worker) handshake(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, w.cfg.StartupTimeout)
	defer cancel()

	if err := w.send("uci"); err != nil {
		return err
	}
	if err := w.awaitToken(hctx, "uciok"); err != nil {
		return fmt.Errorf("uci handshake: %w", err)
	}

	if w.cfg.Threads > 0 {
		if err := w.send(fmt.Sprintf("setoption name Threads value %d", w.cfg.Threads)); err != nil {
			return err
		}
	}
	if w.cfg.HashMB > 0 {
		if err := w.send(fmt.Sprintf("setoption name Hash value %d", w.cfg.HashMB)); err != nil {
			return err
		}
	}

	if err := w.send("isready"); err != nil {
		return err
	}
	if err := w.awaitToken(hctx, "readyok"); err != nil {
		return fmt.Errorf("isready: %w", err)
	}

	return w.send("ucinewgame")
}

// awaitToken drains lines until one's first field is tok, ctx expires, or the stream breaks.
func (w *Worker) awaitToken(ctx context.Context, tok string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case le, ok := <-w.proc.lines:
			if !ok || le.err != nil {
				if le.err != nil {
					return le.err
				}
				return io.ErrClosedPipe
			}
			if f := strings.Fields(le.text); len(f) > 0 && f[0] == tok {
				return nil
			}
		}
	}
}

// killProcess asks the engine to quit, then force-kills it if it does not exit promptly. It
// clears w.proc before acting, so it is both safe to call when no subprocess has been started
// yet and safe to call twice in a row (e.g. once explicitly, once again from respawn).
func (w *Worker) killProcess() {
	p := w.proc
	w.proc = nil
	if p == nil || p.cmd.Process == nil {
		return
	}

	_, _ = p.stdin.WriteString("quit\n")
	_ = p.stdin.Flush()

	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = p.cmd.Process.Kill()
		<-done
	}
}
