// Package pool implements a bounded FIFO request queue in front of a fixed set of UCI engine
// workers (C2), and an evaluation facade that retries transient failures for call sites (C3).
package pool

import (
	"context"
	"errors"
	"time"

	"github.com/lucidrook/conftree/pkg/uci"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/util/iox"
	"go.uber.org/atomic"
)

// ErrOverloaded is returned by Submit when the queue is full.
var ErrOverloaded = errors.New("pool: queue full")

// Task is one evaluation request. If SearchMove is non-empty, the worker restricts the search to
// that single UCI move (via "searchmoves") instead of exploring MultiPV top-k candidates.
type Task struct {
	FEN        string
	Depth      int
	MultiPV    int
	SearchMove string
	Timeout    time.Duration
}

// QueueMetrics reports the queue's observed load.
type QueueMetrics struct {
	EnqueuedTotal    uint64
	CompletedTotal   uint64
	FailedTotal      uint64
	CurrentDepth     int
	MaxObservedDepth int
	AvgWaitMs        float64
}

type job struct {
	task        Task
	submittedAt time.Time
	resultCh    chan result
	cancelled   atomic.Bool
}

type result struct {
	eval uci.Evaluation
	err  error
}

// Future is returned immediately by Submit and resolves to an Evaluation or an error once the
// task has been dispatched to a worker and completed.
type Future struct {
	j *job
}

// Cancel abandons the future. If the task has not yet been dispatched, it is discarded with no
// worker time used. If it has already been dispatched, cancellation is best-effort: the
// in-flight evaluation is allowed to complete, but its result is dropped.
func (f *Future) Cancel() {
	f.j.cancelled.Store(true)
}

// Wait blocks until the task completes or ctx is done, whichever comes first.
func (f *Future) Wait(ctx context.Context) (uci.Evaluation, error) {
	select {
	case r := <-f.j.resultCh:
		return r.eval, r.err
	case <-ctx.Done():
		return uci.Evaluation{}, ctx.Err()
	}
}

// Pool accepts evaluation tasks and dispatches them to idle workers in strict FIFO order via a
// single dispatcher goroutine, regardless of worker count. It never permits two concurrent
// evaluations on the same worker, since a worker only re-enters the idle set once its own
// Evaluate call returns.
type Pool struct {
	iox.AsyncCloser

	workers []*uci.Worker
	idle    chan *uci.Worker
	queue   chan *job

	enqueuedTotal    atomic.Uint64
	completedTotal   atomic.Uint64
	failedTotal      atomic.Uint64
	currentDepth     atomic.Int64
	maxObservedDepth atomic.Int64
	totalWaitMs      atomic.Uint64
}

// NewPool starts the dispatcher loop over the given workers with the given queue capacity.
func NewPool(ctx context.Context, workers []*uci.Worker, queueCapacity int) *Pool {
	p := &Pool{
		AsyncCloser: iox.NewAsyncCloser(),
		workers:     workers,
		idle:        make(chan *uci.Worker, len(workers)),
		queue:       make(chan *job, queueCapacity),
	}
	for _, w := range workers {
		p.idle <- w
	}
	go p.dispatch(ctx)
	return p
}

// Submit enqueues task and returns immediately. It fails fast with ErrOverloaded if the queue is
// full.
func (p *Pool) Submit(task Task) (*Future, error) {
	j := &job{task: task, submittedAt: time.Now(), resultCh: make(chan result, 1)}

	select {
	case p.queue <- j:
		p.enqueuedTotal.Add(1)
		p.observeDepth()
		return &Future{j: j}, nil
	default:
		return nil, ErrOverloaded
	}
}

// Metrics returns the queue's current counters.
func (p *Pool) Metrics() QueueMetrics {
	completed := p.completedTotal.Load()
	failed := p.failedTotal.Load()

	var avg float64
	if n := completed + failed; n > 0 {
		avg = float64(p.totalWaitMs.Load()) / float64(n)
	}

	return QueueMetrics{
		EnqueuedTotal:    p.enqueuedTotal.Load(),
		CompletedTotal:   completed,
		FailedTotal:      failed,
		CurrentDepth:     int(p.currentDepth.Load()),
		MaxObservedDepth: int(p.maxObservedDepth.Load()),
		AvgWaitMs:        avg,
	}
}

// Shutdown stops the dispatcher and shuts down every worker. Idempotent.
func (p *Pool) Shutdown() {
	p.AsyncCloser.Close()
	for _, w := range p.workers {
		w.Shutdown()
	}
}

func (p *Pool) dispatch(ctx context.Context) {
	for {
		// Take a job off the queue only once a worker is idle, so a queued job stays counted
		// against the queue's capacity until it can actually be dispatched.
		var w *uci.Worker
		select {
		case <-p.Closed():
			return
		case w = <-p.idle:
		}

		select {
		case <-p.Closed():
			return
		case j := <-p.queue:
			p.observeDepth()

			if j.cancelled.Load() {
				p.idle <- w
				continue // abandoned before dispatch: no worker time used
			}
			go p.run(ctx, w, j)
		}
	}
}

func (p *Pool) run(ctx context.Context, w *uci.Worker, j *job) {
	defer func() { p.idle <- w }()

	p.recordWait(time.Since(j.submittedAt))

	var ev uci.Evaluation
	var err error
	if j.task.SearchMove != "" {
		var score int
		score, err = w.EvaluateMove(ctx, j.task.FEN, j.task.Depth, j.task.SearchMove, j.task.Timeout)
		ev = uci.Evaluation{ScoreCP: score, DepthUsed: j.task.Depth}
	} else {
		ev, err = w.Evaluate(ctx, j.task.FEN, j.task.Depth, j.task.MultiPV, j.task.Timeout)
	}
	if err != nil {
		p.failedTotal.Add(1)
		logw.Debugf(ctx, "pool: evaluation failed: %v", err)
	} else {
		p.completedTotal.Add(1)
	}

	if j.cancelled.Load() {
		return // dispatched-then-cancelled: result dropped, worker state preserved
	}

	select {
	case j.resultCh <- result{eval: ev, err: err}:
	default:
		// resultCh is buffered 1 and only ever written once; this is unreachable in practice.
	}
}

func (p *Pool) observeDepth() {
	depth := int64(len(p.queue))
	p.currentDepth.Store(depth)

	for {
		old := p.maxObservedDepth.Load()
		if depth <= old || p.maxObservedDepth.CompareAndSwap(old, depth) {
			return
		}
	}
}

func (p *Pool) recordWait(d time.Duration) {
	p.totalWaitMs.Add(uint64(d.Milliseconds()))
}
