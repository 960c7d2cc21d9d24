// conftreed runs one raise-confidence request against a pool of UCI engine workers and prints the
// resulting confidence tree as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/lucidrook/conftree/pkg/coordinator"
	"github.com/lucidrook/conftree/pkg/pool"
	"github.com/lucidrook/conftree/pkg/uci"
	"github.com/seekerror/logw"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logw.Exitf(context.Background(), "conftreed: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conftreed",
		Short: "Build a confidence tree for one chess position",
		Long: `conftreed analyzes a single chess position (and, optionally, one candidate move) with a
pool of UCI engine workers, builds the confidence tree the analysis converges to, and prints it as
JSON.

Examples:
  conftreed --fen "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
  conftreed --fen "..." --move e2e4 --target 90 --baseline 85`,
		Version: coordinator.Version(),
		RunE:    runRoot,
	}
	cmd.SetVersionTemplate("conftreed version {{.Version}}\n")

	cmd.Flags().String("fen", "", "Position to analyze, in FEN (required)")
	cmd.Flags().String("move", "", "Candidate move to evaluate, SAN or UCI (default: engine's own PV)")
	cmd.Flags().Int("target", coordinator.DefaultTarget, "Target confidence, 0-100")
	cmd.Flags().Int("baseline", 0, "Baseline confidence for node coloring, 0-100 (default: equal to target)")

	cmd.Flags().String("engine-binary-path", "stockfish", "Path to the UCI engine binary")
	cmd.Flags().Int("engine-threads", 0, "Engine Threads option (0 leaves the engine's own default)")
	cmd.Flags().Int("engine-hash-mb", 0, "Engine Hash option in MB (0 leaves the engine's own default)")
	cmd.Flags().Int("pool-size", 4, "Number of engine worker processes")
	cmd.Flags().Int("queue-capacity", 64, "Bounded request queue capacity")

	cmd.Flags().Int("deep-depth", 18, "Search depth for deep (s_deep/pv_deep) queries")
	cmd.Flags().Int("shallow-depth", 8, "Search depth for shallow (s_shallow/pv_shallow) queries")
	cmd.Flags().Int("branching-k", 3, "Number of alternatives considered per extension")
	cmd.Flags().Int("max-ply-from-root", 18, "Branches past this ply from root are never extended")
	cmd.Flags().Int("max-iterations", 20, "Outer extension-loop safety bound")
	cmd.Flags().Duration("deep-timeout", 15*time.Second, "Per-call timeout for deep queries")
	cmd.Flags().Duration("shallow-timeout", 5*time.Second, "Per-call timeout for shallow queries")
	cmd.Flags().Duration("request-timeout", coordinator.DefaultRequestTimeout, "Per-request wall-clock budget")

	cmd.MarkFlagRequired("fen")

	return cmd
}

func runRoot(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	flags := cmd.Flags()
	fenStr, _ := flags.GetString("fen")
	move, _ := flags.GetString("move")
	target, _ := flags.GetInt("target")
	baseline, _ := flags.GetInt("baseline")

	engineBinaryPath, _ := flags.GetString("engine-binary-path")
	engineThreads, _ := flags.GetInt("engine-threads")
	engineHashMB, _ := flags.GetInt("engine-hash-mb")
	poolSize, _ := flags.GetInt("pool-size")
	queueCapacity, _ := flags.GetInt("queue-capacity")

	deepDepth, _ := flags.GetInt("deep-depth")
	shallowDepth, _ := flags.GetInt("shallow-depth")
	branchingK, _ := flags.GetInt("branching-k")
	maxPly, _ := flags.GetInt("max-ply-from-root")
	maxIterations, _ := flags.GetInt("max-iterations")
	deepTimeout, _ := flags.GetDuration("deep-timeout")
	shallowTimeout, _ := flags.GetDuration("shallow-timeout")
	requestTimeout, _ := flags.GetDuration("request-timeout")

	workers := make([]*uci.Worker, 0, poolSize)
	for i := 0; i < poolSize; i++ {
		w, err := uci.NewWorker(ctx, uci.Config{
			BinaryPath: engineBinaryPath,
			Threads:    engineThreads,
			HashMB:     engineHashMB,
		})
		if err != nil {
			return fmt.Errorf("conftreed: spawning engine worker %d: %w", i, err)
		}
		workers = append(workers, w)
	}

	p := pool.NewPool(ctx, workers, queueCapacity)
	defer p.Shutdown()

	facade := pool.NewFacade(p)
	c := coordinator.New(facade, coordinator.Config{
		MaxPlyFromRoot: maxPly,
		MaxIterations:  maxIterations,
		DeepDepth:      deepDepth,
		ShallowDepth:   shallowDepth,
		BranchingK:     branchingK,
		DeepTimeout:    deepTimeout,
		ShallowTimeout: shallowTimeout,
		RequestTimeout: requestTimeout,
	})

	logw.Infof(ctx, "conftreed: analyzing %q (pool_size=%d, target=%d, baseline=%d)", fenStr, poolSize, target, baseline)

	resp, tel, err := c.RaiseConfidence(ctx, coordinator.Request{
		FEN:      fenStr,
		Move:     move,
		Target:   target,
		Baseline: baseline,
	})
	if err != nil {
		return err
	}

	logw.Infof(ctx, "conftreed: done exit=%s iterations=%d nodes=%d engine_calls=%d elapsed=%s",
		tel.ExitReason, tel.IterationCount, tel.NodesCreated, tel.EngineCalls, tel.Elapsed)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
