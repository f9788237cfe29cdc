// Package forest assembles individual trees into the ensembles described in
// spec.md §4.6: a boosted sequence of residual trees (BDT), or a pool of
// independent bagged/randomized trees (RF, ET). It is grounded in
// wlattner-rf's forest/forest.go, keeping that file's functional-options
// configuration and worker-pool fitting pattern, generalized from a
// classification forest to a reweighting ensemble.
package forest

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/kgregersen/reweighter/internal/config"
	"github.com/kgregersen/reweighter/internal/errkind"
	"github.com/kgregersen/reweighter/internal/histogram"
	"github.com/kgregersen/reweighter/internal/rowsource"
	"github.com/kgregersen/reweighter/internal/tree"
)

// Forest is one boosting sequence (BDT) or one bag of independent trees
// (RF, ET).
type Forest struct {
	Trees  []*tree.Tree
	Method config.Method
}

// Weight combines this forest's trees into a single per-row weight. BDT
// trees are multiplied in sequence (each corrects the residual left by the
// ones before it); RF/ET trees are averaged (each is an independent vote).
func (f *Forest) Weight(cur rowsource.Cursor) (float64, error) {
	switch f.Method {
	case config.MethodBDT:
		v := 1.0
		for _, t := range f.Trees {
			w, err := t.GetWeight(cur)
			if err != nil {
				return 0, err
			}
			v *= w
		}
		return v, nil
	default:
		var sum float64
		for _, t := range f.Trees {
			w, err := t.GetWeight(cur)
			if err != nil {
				return 0, err
			}
			sum += w
		}
		return sum / float64(len(f.Trees)), nil
	}
}

// VarImp sums the per-tree variable importances across the forest.
func (f *Forest) VarImp() map[string]float64 {
	imp := make(map[string]float64)
	for _, t := range f.Trees {
		for k, v := range t.VarImp() {
			imp[k] += v
		}
	}
	return imp
}

// Ensemble is the full fitted model: one or more forests sharing a method.
// BDT ensembles average the product of each forest's boosting sequence
// (independent reruns of the same boosted fit, e.g. from different random
// seeds); RF/ET ensembles pool every tree of every forest into one flat
// average (spec.md §4.6).
type Ensemble struct {
	Forests []*Forest
	Method  config.Method
}

// WeightResult is a reweighting value together with its statistical error,
// estimated from the spread across forests (BDT) or across pooled trees
// (RF, ET).
type WeightResult struct {
	Weight float64
	Error  float64
}

// Weight evaluates the row currently positioned in cur.
func (e *Ensemble) Weight(cur rowsource.Cursor) (WeightResult, error) {
	switch e.Method {
	case config.MethodBDT:
		vals := make([]float64, 0, len(e.Forests))
		for _, f := range e.Forests {
			v, err := f.Weight(cur)
			if err != nil {
				return WeightResult{}, err
			}
			vals = append(vals, v)
		}
		mean, stddev := meanStddev(vals)
		return WeightResult{Weight: mean, Error: stddev}, nil
	default:
		var vals []float64
		for _, f := range e.Forests {
			for _, t := range f.Trees {
				w, err := t.GetWeight(cur)
				if err != nil {
					return WeightResult{}, err
				}
				vals = append(vals, w)
			}
		}
		mean, stddev := meanStddev(vals)
		return WeightResult{Weight: mean, Error: stddev}, nil
	}
}

// VarImp sums variable importance across every forest in the ensemble.
func (e *Ensemble) VarImp() map[string]float64 {
	imp := make(map[string]float64)
	for _, f := range e.Forests {
		for k, v := range f.VarImp() {
			imp[k] += v
		}
	}
	return imp
}

func meanStddev(vals []float64) (float64, float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	if len(vals) < 2 {
		return mean, 0
	}
	var sq float64
	for _, v := range vals {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(vals)-1))
}

// BuildConfig parametrizes fitting an Ensemble. Rng is the single seedable
// generator from which every sampling and split decision in the ensemble
// draws (design note: "One generator, not many statics") — running Fit
// twice with the same BuildConfig and a freshly-seeded Rng at the same seed
// reproduces the same ensemble byte for byte, since fitting proceeds on a
// single goroutine and draws from Rng in a fixed order.
type BuildConfig struct {
	Method                  config.Method
	NumForests              int
	NumTrees                int
	MaxLayers               int
	MinEventsNode           int
	LearningRate            float64
	SamplingFraction        float64 // 1.0 uses every row
	FeatureSamplingFraction float64 // 1.0 considers every variable
	Bagging                 bool
	Rng                     *rand.Rand

	// Progress, if set, is called after every tree completes within a
	// forest, with a 1-based count and the forest's total tree count: Fit
	// passes the tree's index, FitParallel the number of trees completed so
	// far. Callers typically rate-limit how often they act on it.
	Progress func(treeIdx, total int)
}

func (cfg BuildConfig) reportProgress(treeIdx int) {
	if cfg.Progress != nil {
		cfg.Progress(treeIdx+1, cfg.NumTrees)
	}
}

// Fit grows a complete Ensemble from the source (to be reweighted) and
// target (reference) samples.
func Fit(cfg BuildConfig, defs []*histogram.Def, sourceCur, targetCur rowsource.Cursor, sourceWeights, targetWeights []float64) (*Ensemble, error) {
	if cfg.NumForests < 1 {
		return nil, errkind.New(errkind.Split, "forest", "NumForests must be >= 1")
	}
	if cfg.NumTrees < 1 {
		return nil, errkind.New(errkind.Split, "forest", "NumTrees must be >= 1")
	}

	forests := make([]*Forest, 0, cfg.NumForests)
	for i := 0; i < cfg.NumForests; i++ {
		var f *Forest
		var err error
		switch cfg.Method {
		case config.MethodBDT:
			f, err = fitBDTForest(cfg, defs, sourceCur, targetCur, sourceWeights, targetWeights)
		case config.MethodRF:
			f, err = fitBaggedForest(cfg, tree.Chisquare, defs, sourceCur, targetCur, sourceWeights, targetWeights)
		case config.MethodET:
			f, err = fitBaggedForest(cfg, tree.Random, defs, sourceCur, targetCur, sourceWeights, targetWeights)
		default:
			return nil, errkind.New(errkind.Split, "forest", "unknown method %q", cfg.Method)
		}
		if err != nil {
			return nil, errkind.Wrap(errkind.Split, "forest", fmt.Errorf("fitting forest %d: %w", i, err))
		}
		forests = append(forests, f)
	}

	return &Ensemble{Forests: forests, Method: cfg.Method}, nil
}

// fitBDTForest grows one boosted sequence of residual trees. Each tree is
// fit against the source sample's current cumulative multiplier, then that
// multiplier is updated with the tree's own weights before the next tree is
// grown (spec.md §4.6). Trees within a forest are therefore inherently
// sequential and never fit in parallel.
func fitBDTForest(cfg BuildConfig, defs []*histogram.Def, sourceCur, targetCur rowsource.Cursor, sourceWeights, targetWeights []float64) (*Forest, error) {
	var sourceRows, targetRows []int
	if !cfg.Bagging {
		sourceRows = sampleForTree(cfg, sourceWeights)
		targetRows = sampleForTree(cfg, targetWeights)
	}

	mult := make([]float64, len(sourceWeights))
	for i := range mult {
		mult[i] = 1
	}

	trees := make([]*tree.Tree, 0, cfg.NumTrees)
	for k := 0; k < cfg.NumTrees; k++ {
		if cfg.Bagging {
			sourceRows = sampleForTree(cfg, sourceWeights)
			targetRows = sampleForTree(cfg, targetWeights)
		}

		effWeights := make([]float64, len(sourceWeights))
		for _, r := range sourceRows {
			effWeights[r] = sourceWeights[r] * mult[r]
		}

		growCfg := tree.GrowConfig{
			MaxLayers:               cfg.MaxLayers,
			MinEventsNode:           cfg.MinEventsNode,
			LearningRate:            cfg.LearningRate,
			FeatureSamplingFraction: cfg.FeatureSamplingFraction,
			Mode:                    tree.Chisquare,
			Rng:                     cfg.Rng,
		}

		t, err := tree.Grow(growCfg, defs, sourceCur, targetCur, effWeights, targetWeights, sourceRows, targetRows)
		if err != nil {
			return nil, errkind.Wrap(errkind.Split, "forest", fmt.Errorf("tree %d: %w", k, err))
		}
		if err := t.FinalizeWeights(cfg.LearningRate); err != nil {
			return nil, errkind.Wrap(errkind.Split, "forest", fmt.Errorf("tree %d: %w", k, err))
		}
		if err := t.UpdateMultipliers(mult, sourceCur, sourceRows); err != nil {
			return nil, errkind.Wrap(errkind.Split, "forest", fmt.Errorf("tree %d: %w", k, err))
		}

		trees = append(trees, t)
		cfg.reportProgress(k)
	}

	return &Forest{Trees: trees, Method: config.MethodBDT}, nil
}

// fitBaggedForest grows cfg.NumTrees independent trees. Every tree is
// statistically independent of every other (no residual to carry forward),
// so this is the entry point a parallel worker pool can fit concurrently;
// see FitParallel.
func fitBaggedForest(cfg BuildConfig, mode tree.SplitMode, defs []*histogram.Def, sourceCur, targetCur rowsource.Cursor, sourceWeights, targetWeights []float64) (*Forest, error) {
	method := config.MethodRF
	if mode == tree.Random {
		method = config.MethodET
	}

	trees := make([]*tree.Tree, cfg.NumTrees)
	for k := 0; k < cfg.NumTrees; k++ {
		sourceRows := sampleForTree(cfg, sourceWeights)
		targetRows := sampleForTree(cfg, targetWeights)

		growCfg := tree.GrowConfig{
			MaxLayers:               cfg.MaxLayers,
			MinEventsNode:           cfg.MinEventsNode,
			LearningRate:            cfg.LearningRate,
			FeatureSamplingFraction: cfg.FeatureSamplingFraction,
			Mode:                    mode,
			Rng:                     cfg.Rng,
		}

		t, err := tree.Grow(growCfg, defs, sourceCur, targetCur, sourceWeights, targetWeights, sourceRows, targetRows)
		if err != nil {
			return nil, errkind.Wrap(errkind.Split, "forest", fmt.Errorf("tree %d: %w", k, err))
		}
		if err := t.FinalizeWeights(cfg.LearningRate); err != nil {
			return nil, errkind.Wrap(errkind.Split, "forest", fmt.Errorf("tree %d: %w", k, err))
		}
		trees[k] = t
		cfg.reportProgress(k)
	}

	return &Forest{Trees: trees, Method: method}, nil
}

func sampleForTree(cfg BuildConfig, weights []float64) []int {
	if cfg.Bagging {
		return sampleBagging(weights, cfg.SamplingFraction, cfg.Rng)
	}
	if cfg.SamplingFraction < 1 {
		return sampleUnique(len(weights), cfg.SamplingFraction, cfg.Rng)
	}
	return allRows(len(weights))
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// sampleCount computes floor(fraction*n), clamped to [1, n] (spec.md §4.6:
// both sampling modes draw "⌊fraction · N⌋" indices).
func sampleCount(n int, fraction float64) int {
	k := int(math.Floor(fraction * float64(n)))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

// sampleUnique draws floor(fraction*n) distinct row indices via a
// Fisher-Yates shuffle of the full index range, then sorts them ascending
// so rows are read in sequential order.
func sampleUnique(n int, fraction float64, rng *rand.Rand) []int {
	idx := allRows(n)
	for i := n - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
	out := make([]int, sampleCount(n, fraction))
	copy(out, idx)
	sort.Ints(out)
	return out
}

// sampleBagging draws floor(fraction*n) row indices with replacement,
// weighted by each row's event weight, via binary search over a cumulative
// weight table, then sorts ascending (spec.md §4.6).
func sampleBagging(weights []float64, fraction float64, rng *rand.Rand) []int {
	n := len(weights)
	cum := make([]float64, n)
	var total float64
	for i, w := range weights {
		total += w
		cum[i] = total
	}

	out := make([]int, sampleCount(n, fraction))
	for i := range out {
		draw := rng.Float64() * total
		j := sort.Search(n, func(idx int) bool { return cum[idx] >= draw })
		if j >= n {
			j = n - 1
		}
		out[i] = j
	}
	sort.Ints(out)
	return out
}
