package forest

import (
	"fmt"
	"math/rand"

	"github.com/kgregersen/reweighter/internal/config"
	"github.com/kgregersen/reweighter/internal/errkind"
	"github.com/kgregersen/reweighter/internal/histogram"
	"github.com/kgregersen/reweighter/internal/rowsource"
	"github.com/kgregersen/reweighter/internal/tree"
)

// FitParallel grows an RF or ET forest's trees across nWorkers goroutines,
// grounded in wlattner-rf's forest.Fit worker pool (in/out channels of
// fitTree jobs). It is not available for BDT: a BDT forest's trees share a
// residual multiplier that each tree updates for the next, so they cannot
// be fit independently. It always returns an ensemble of a single forest;
// cfg.NumForests is not consulted.
//
// Every tree's seed and row sample are drawn from cfg.Rng sequentially,
// before any job is dispatched to a worker, so which seed and which sample
// a given tree index gets does not depend on goroutine scheduling; only the
// completion order is nondeterministic, and since RF/ET aggregate trees by
// an order-independent mean, the fitted ensemble itself is deterministic
// for a fixed cfg.Rng seed (spec.md §5's core determinism requirement
// extended to the parallel path, rather than waived by it). sourceCur and
// targetCur must implement rowsource.Cloner so each worker reads its own
// cursor.
func FitParallel(cfg BuildConfig, nWorkers int, defs []*histogram.Def, sourceCur, targetCur rowsource.Cursor, sourceWeights, targetWeights []float64) (*Ensemble, error) {
	if cfg.Method != config.MethodRF && cfg.Method != config.MethodET {
		return nil, errkind.New(errkind.Split, "forest", "FitParallel only supports RF and ET, got %q", cfg.Method)
	}
	sourceCloner, ok := sourceCur.(rowsource.Cloner)
	if !ok {
		return nil, errkind.New(errkind.Split, "forest", "FitParallel requires a cloneable source cursor")
	}
	targetCloner, ok := targetCur.(rowsource.Cloner)
	if !ok {
		return nil, errkind.New(errkind.Split, "forest", "FitParallel requires a cloneable target cursor")
	}
	if nWorkers < 1 {
		nWorkers = 1
	}

	mode := tree.Chisquare
	if cfg.Method == config.MethodET {
		mode = tree.Random
	}
	type job struct {
		idx        int
		sourceRows []int
		targetRows []int
		rng        *rand.Rand
	}
	type result struct {
		idx int
		t   *tree.Tree
		err error
	}

	jobs := make([]job, cfg.NumTrees)
	for i := range jobs {
		jobs[i] = job{
			idx:        i,
			sourceRows: sampleForTree(cfg, sourceWeights),
			targetRows: sampleForTree(cfg, targetWeights),
			rng:        rand.New(rand.NewSource(cfg.Rng.Int63())),
		}
	}

	in := make(chan job)
	out := make(chan result)

	for w := 0; w < nWorkers; w++ {
		go func() {
			sc := sourceCloner.Clone()
			tc := targetCloner.Clone()
			for j := range in {
				growCfg := tree.GrowConfig{
					MaxLayers:               cfg.MaxLayers,
					MinEventsNode:           cfg.MinEventsNode,
					LearningRate:            cfg.LearningRate,
					FeatureSamplingFraction: cfg.FeatureSamplingFraction,
					Mode:                    mode,
					Rng:                     j.rng,
				}
				t, err := tree.Grow(growCfg, defs, sc, tc, sourceWeights, targetWeights, j.sourceRows, j.targetRows)
				if err == nil {
					err = t.FinalizeWeights(cfg.LearningRate)
				}
				out <- result{idx: j.idx, t: t, err: err}
			}
		}()
	}

	go func() {
		for _, j := range jobs {
			in <- j
		}
		close(in)
	}()

	trees := make([]*tree.Tree, cfg.NumTrees)
	var firstErr error
	done := 0
	for range jobs {
		r := <-out
		done++
		if r.err != nil && firstErr == nil {
			firstErr = errkind.Wrap(errkind.Split, "forest", fmt.Errorf("tree %d: %w", r.idx, r.err))
			continue
		}
		trees[r.idx] = r.t
		cfg.reportProgress(done - 1)
	}
	if firstErr != nil {
		return nil, firstErr
	}

	f := &Forest{Trees: trees, Method: cfg.Method}
	return &Ensemble{Forests: []*Forest{f}, Method: cfg.Method}, nil
}
