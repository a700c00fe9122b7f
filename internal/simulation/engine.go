// Package simulation orchestrates the Monte Carlo comparison of the two
// wealth strategies: every iteration draws one correlated return sequence
// and feeds the identical sequence to both engines.
package simulation

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wealthpath-desktop/wealth-backend/internal/leverage"
	"github.com/wealthpath-desktop/wealth-backend/internal/returns"
	"github.com/wealthpath-desktop/wealth-backend/internal/sellstrategy"
	"github.com/wealthpath-desktop/wealth-backend/internal/workers"
	"github.com/wealthpath-desktop/wealth-backend/pkg/types"
)

// Batch size bounds for progress granularity
const (
	MinBatchSize = 1000
	MaxBatchSize = 5000
)

var (
	// ErrRunCancelled is returned when a run stops at a batch boundary
	// before producing output
	ErrRunCancelled = errors.New("simulation run cancelled")

	// ErrAllPathsNonFinite is returned when no iteration produced a
	// finite terminal value to rank
	ErrAllPathsNonFinite = errors.New("no finite simulation paths to aggregate")
)

// ProgressFunc receives completion updates at batch boundaries. pct is 0-100.
type ProgressFunc func(pct float64, completed, total int)

// Engine drives one simulation run. Construct a fresh Engine per run; the
// run identifier is assigned at construction so callers can register it
// before Run starts.
type Engine struct {
	logger *zap.Logger
	id     string

	progress   ProgressFunc
	progressMu sync.Mutex
	lastPct    float64

	cancelled atomic.Bool
}

// iterationOutcome pairs both strategies' trajectories for one draw
type iterationOutcome struct {
	borrow *leverage.PathResult
	sell   *sellstrategy.PathResult
}

// NewEngine creates an engine for a single run
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger: logger,
		id:     uuid.New().String(),
	}
}

// ID returns the run identifier
func (e *Engine) ID() string { return e.id }

// OnProgress registers the progress callback. Must be set before Run.
func (e *Engine) OnProgress(fn ProgressFunc) { e.progress = fn }

// Cancel stops the run at the next batch boundary
func (e *Engine) Cancel() { e.cancelled.Store(true) }

// Run executes the full simulation and aggregates the output. Same seed,
// config and data give bit-identical output regardless of worker count:
// every random draw flows from the iteration's own substream.
func (e *Engine) Run(ctx context.Context, req *types.SimulationRequest) (*types.SimulationOutput, error) {
	start := time.Now()

	cfg := req.Config
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := types.ValidatePortfolio(req.Assets); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
		e.logger.Info("seed picked from clock", zap.Int64("seed", seed))
	}
	cfg.Seed = seed

	gen, err := returns.NewGenerator(e.logger, &cfg, req.Assets, req.Correlation)
	if err != nil {
		return nil, err
	}

	borrowEngine := leverage.NewEngine(e.logger, &cfg)
	sellEngine := sellstrategy.NewEngine(e.logger, &cfg)

	weights := make([]float64, len(req.Assets))
	for i, a := range req.Assets {
		weights[i] = a.Weight
	}

	batch := cfg.BatchSize
	if batch < MinBatchSize {
		batch = MinBatchSize
	}
	if batch > MaxBatchSize {
		batch = MaxBatchSize
	}
	numBatches := (cfg.Iterations + batch - 1) / batch

	e.logger.Info("starting simulation run",
		zap.String("run_id", e.id),
		zap.String("model", string(cfg.Model)),
		zap.Int("iterations", cfg.Iterations),
		zap.Int("horizon_years", cfg.HorizonYears),
		zap.Int("batches", numBatches),
		zap.Int64("seed", seed),
	)

	pool := workers.NewPool(e.logger, &workers.PoolConfig{
		Name:       "simulation",
		NumWorkers: cfg.Workers,
		QueueSize:  numBatches,
	})
	pool.Start()
	defer pool.Stop()

	outcomes := make([]iterationOutcome, cfg.Iterations)

	var wg sync.WaitGroup
	var completed atomic.Int64
	var runErr error
	var errOnce sync.Once

	fail := func(err error) {
		errOnce.Do(func() {
			runErr = err
			e.cancelled.Store(true)
		})
	}

	for b := 0; b < numBatches; b++ {
		lo := b * batch
		hi := lo + batch
		if hi > cfg.Iterations {
			hi = cfg.Iterations
		}

		wg.Add(1)
		err := pool.SubmitFunc(func() error {
			defer wg.Done()

			// Cancellation is only observed here, at the batch
			// boundary
			if e.cancelled.Load() || ctx.Err() != nil {
				return nil
			}

			for i := lo; i < hi; i++ {
				rng := rand.New(rand.NewSource(seed + int64(i)))

				matrix, err := gen.Generate(cfg.HorizonYears, rng)
				if err != nil {
					fail(err)
					return err
				}

				series := collapse(matrix, weights)
				outcomes[i] = iterationOutcome{
					borrow: borrowEngine.SimulatePath(series),
					sell:   sellEngine.SimulatePath(series),
				}
			}

			done := completed.Add(int64(hi - lo))
			e.reportProgress(float64(done)/float64(cfg.Iterations)*100, int(done), cfg.Iterations)
			return nil
		})
		if err != nil {
			wg.Done()
			fail(err)
			break
		}
	}

	wg.Wait()

	if runErr != nil {
		return nil, runErr
	}
	if e.cancelled.Load() || ctx.Err() != nil {
		e.logger.Info("simulation run cancelled",
			zap.String("run_id", e.id),
			zap.Int64("completed_iterations", completed.Load()),
		)
		return nil, ErrRunCancelled
	}

	out, err := aggregate(&cfg, e.id, outcomes, time.Since(start))
	if err != nil {
		return nil, err
	}

	e.logger.Info("simulation run complete",
		zap.String("run_id", e.id),
		zap.Duration("elapsed", out.Elapsed),
		zap.Float64("leverage_success_rate", out.Leverage.SuccessRate),
		zap.Float64("sell_success_rate", out.Sell.SuccessRate),
		zap.Int("excluded_paths", out.ExcludedPaths),
	)

	return out, nil
}

// collapse reduces a [year][asset] return matrix to the portfolio's
// weighted per-year return series
func collapse(matrix [][]float64, weights []float64) []float64 {
	series := make([]float64, len(matrix))
	for y, row := range matrix {
		r := 0.0
		for a, w := range weights {
			r += w * row[a]
		}
		series[y] = r
	}
	return series
}

// reportProgress serializes callback invocations and drops out-of-order
// updates from racing batch completions
func (e *Engine) reportProgress(pct float64, completed, total int) {
	if e.progress == nil {
		return
	}
	e.progressMu.Lock()
	defer e.progressMu.Unlock()
	if pct <= e.lastPct {
		return
	}
	e.lastPct = pct
	e.progress(pct, completed, total)
}
