// Package uci drives a single external UCI-speaking chess engine subprocess. A Worker is the
// sole path through which any chess evaluation is performed: it owns the subprocess, performs
// the handshake, and exposes one blocking Evaluate call at a time.
//
// See: http://wbec-ridderkerk.nl/html/UCIProtocol.html
package uci

import (
	"errors"
	"time"
)

// MateScoreCP is the saturation magnitude applied to a "score mate <n>" reply before it enters
// any centipawn arithmetic.
const MateScoreCP = 10000

// DefaultStartupTimeout bounds the uci/isready handshake performed on (re)spawn.
const DefaultStartupTimeout = 10 * time.Second

// Evaluation is the result of one engine query at a fixed depth and multi-PV count.
type Evaluation struct {
	ScoreCP       int      // centipawns from the side-to-move's point of view, saturated at MateScoreCP
	PV            []string // principal variation in UCI long algebraic notation, e.g. "e2e4"
	MultiPVScores []int    // scores of the top-k lines, descending, side-to-move perspective
	MultiPVMoves  []string // first move of each of the top-k lines, same order as MultiPVScores
	DepthUsed     int      // depth actually reached, as reported by the engine
}

// Health reports a worker's liveness and failure history.
type Health struct {
	Alive               bool
	ConsecutiveFailures uint64
	TotalRequests       uint64
	LastError           string
}

// Config configures a Worker's subprocess and tuning. Threads and HashMB of 0 leave the engine's
// own default in place.
type Config struct {
	BinaryPath     string        // path to the UCI engine executable
	Args           []string      // extra arguments passed to the engine binary
	Threads        int           // setoption name Threads value <n>
	HashMB         int           // setoption name Hash value <mb>
	StartupTimeout time.Duration // bound on the uci/isready handshake; 0 uses DefaultStartupTimeout
}

var (
	// ErrEngineCrashed is returned when the subprocess died, the stream broke, or a per-call
	// deadline elapsed. By the time it is returned, the engine has already been killed and a
	// respawn has been attempted.
	ErrEngineCrashed = errors.New("uci: engine crashed")

	// ErrEngineUnavailable is returned when a respawn attempt itself failed, leaving the worker
	// with no subprocess to dispatch to.
	ErrEngineUnavailable = errors.New("uci: engine unavailable")
)
