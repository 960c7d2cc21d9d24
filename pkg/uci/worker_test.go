package uci_test

import (
	"context"
	"testing"
	"time"

	"github.com/lucidrook/conftree/pkg/uci"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// respondingEngine is a minimal POSIX-shell stand-in for a UCI engine: it answers the handshake
// and always replies to "go depth <n>" with a fixed score/pv at the requested depth.
const respondingEngine = `
while read -r f1 f2 f3 f4; do
  case "$f1" in
    uci) echo "id name fake"; echo "uciok" ;;
    isready) echo "readyok" ;;
    go) echo "info depth $f3 multipv 1 score cp 25 pv e2e4 e7e5"; echo "bestmove e2e4" ;;
    quit) exit 0 ;;
  esac
done
`

// silentOnGoEngine answers the handshake normally but never replies to "go", simulating a wedged
// engine that should trip the per-call timeout.
const silentOnGoEngine = `
while read -r f1 f2 f3 f4; do
  case "$f1" in
    uci) echo "uciok" ;;
    isready) echo "readyok" ;;
    go) sleep 5 ;;
    quit) exit 0 ;;
  esac
done
`

func newTestWorker(t *testing.T, script string) *uci.Worker {
	t.Helper()

	cfg := uci.Config{BinaryPath: "/bin/sh", Args: []string{"-c", script}}
	w, err := uci.NewWorker(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(w.Shutdown)
	return w
}

func TestWorkerEvaluate(t *testing.T) {
	w := newTestWorker(t, respondingEngine)

	ev, err := w.Evaluate(context.Background(), "startpos", 6, 1, time.Second)
	require.NoError(t, err)

	assert.Equal(t, 25, ev.ScoreCP)
	assert.Equal(t, []string{"e2e4", "e7e5"}, ev.PV)
	assert.Equal(t, []int{25}, ev.MultiPVScores)
	assert.Equal(t, 6, ev.DepthUsed)
}

func TestWorkerHealthTracksRequests(t *testing.T) {
	w := newTestWorker(t, respondingEngine)

	_, err := w.Evaluate(context.Background(), "startpos", 6, 1, time.Second)
	require.NoError(t, err)

	h := w.Health()
	assert.True(t, h.Alive)
	assert.EqualValues(t, 1, h.TotalRequests)
	assert.Zero(t, h.ConsecutiveFailures)
	assert.Empty(t, h.LastError)
}

func TestWorkerTimeoutCrashesAndRespawns(t *testing.T) {
	w := newTestWorker(t, silentOnGoEngine)

	_, err := w.Evaluate(context.Background(), "startpos", 6, 1, 100*time.Millisecond)
	assert.ErrorIs(t, err, uci.ErrEngineCrashed)

	h := w.Health()
	assert.True(t, h.Alive, "worker should have respawned after the timeout")
	assert.EqualValues(t, 1, h.ConsecutiveFailures)
	assert.NotEmpty(t, h.LastError)
}

func TestWorkerConsecutiveFailuresAccumulate(t *testing.T) {
	w := newTestWorker(t, silentOnGoEngine)

	for i := 0; i < 2; i++ {
		_, err := w.Evaluate(context.Background(), "startpos", 6, 1, 50*time.Millisecond)
		assert.ErrorIs(t, err, uci.ErrEngineCrashed)
	}

	assert.EqualValues(t, 2, w.Health().ConsecutiveFailures)
}

func TestWorkerSuccessResetsConsecutiveFailures(t *testing.T) {
	w := newTestWorker(t, respondingEngine)

	_, err := w.Evaluate(context.Background(), "startpos", 6, 1, time.Second)
	require.NoError(t, err)
	assert.Zero(t, w.Health().ConsecutiveFailures)
}

const searchmovesEchoingEngine = `
while read -r f1 f2 f3 f4 f5; do
  case "$f1" in
    uci) echo "uciok" ;;
    isready) echo "readyok" ;;
    go) echo "info depth $f3 multipv 1 score cp 42 pv $f5"; echo "bestmove $f5" ;;
    quit) exit 0 ;;
  esac
done
`

func TestWorkerEvaluateMoveSendsSearchmoves(t *testing.T) {
	w := newTestWorker(t, searchmovesEchoingEngine)

	score, err := w.Evaluate(context.Background(), "startpos", 6, 1, time.Second)
	_ = score
	require.NoError(t, err)

	got, err := w.EvaluateMove(context.Background(), "startpos", 8, "d2d4", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestWorkerShutdownIdempotent(t *testing.T) {
	w := newTestWorker(t, respondingEngine)

	w.Shutdown()
	w.Shutdown() // must not panic or block

	assert.False(t, w.Health().Alive)
}
