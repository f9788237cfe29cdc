package tree

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/kgregersen/reweighter/internal/errkind"
	"github.com/kgregersen/reweighter/internal/histogram"
	"github.com/kgregersen/reweighter/internal/rowsource"
)

// Tree is a single decision tree: an arena of nodes and the branches that
// connect them, grown greedily from a source/target histogram comparison
// (spec.md §4.4-§4.5). The arena is a flat slice indexed by id rather than
// the original's raw Node*/Branch* back-pointers (design note: "Tree graph
// ownership"), which keeps the growth algorithm iterative and removes any
// question of who owns whom.
type Tree struct {
	nodes    []node
	branches []branch
}

// GrowConfig parametrizes one call to Grow. Rng is the single seedable
// generator threaded in from the ensemble (design note: "One generator, not
// many statics") — Splitter and SampleFeatures both draw from it, so the
// whole tree's randomness is reproducible from one seed.
type GrowConfig struct {
	MaxLayers               int
	MinEventsNode           int
	LearningRate            float64
	FeatureSamplingFraction float64 // 1.0 disables sampling (BDT default)
	Mode                    SplitMode
	Rng                     *rand.Rand
}

type frontier struct {
	nodeIdx    int
	layer      int
	sourceRows []int
	targetRows []int
}

// Grow builds a tree from the given row subsets using a stack (LIFO) instead
// of recursion (design note: "Iterative growth"), so a tree with an unusual
// number of layers never grows the Go call stack.
func Grow(
	cfg GrowConfig,
	defs []*histogram.Def,
	sourceCur, targetCur rowsource.Cursor,
	sourceWeights, targetWeights []float64,
	sourceRows, targetRows []int,
) (*Tree, error) {
	t := &Tree{nodes: []node{{status: First, inputBranch: noIndex, outputLow: noIndex, outputHigh: noIndex}}}
	splitter := &Splitter{MinEventsNode: cfg.MinEventsNode, Mode: cfg.Mode, Rng: cfg.Rng}

	stack := []frontier{{nodeIdx: 0, layer: 1, sourceRows: sourceRows, targetRows: targetRows}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		sumS := sumWeights(f.sourceRows, sourceWeights)
		sumT := sumWeights(f.targetRows, targetWeights)
		t.nodes[f.nodeIdx].sumSource = sumS
		t.nodes[f.nodeIdx].sumTarget = sumT

		if f.layer >= cfg.MaxLayers || sumS < 2*float64(cfg.MinEventsNode) || sumT < 2*float64(cfg.MinEventsNode) {
			t.nodes[f.nodeIdx].status = Final
			continue
		}

		sampled := SampleFeatures(defs, cfg.FeatureSamplingFraction, cfg.Rng)
		candidates := make([]candidate, 0, len(sampled))
		for _, def := range sampled {
			sh := def.NewHist()
			th := def.NewHist()
			if err := fillHist(sh, sourceCur, f.sourceRows, sourceWeights, def); err != nil {
				return nil, err
			}
			if err := fillHist(th, targetCur, f.targetRows, targetWeights, def); err != nil {
				return nil, err
			}
			candidates = append(candidates, candidate{def: def, source: sh, target: th})
		}

		result, ok := splitter.Split(candidates)
		if !ok {
			t.nodes[f.nodeIdx].status = Final
			continue
		}

		lowRowsS, highRowsS, err := partition(f.sourceRows, sourceCur, result.cut)
		if err != nil {
			return nil, err
		}
		lowRowsT, highRowsT, err := partition(f.targetRows, targetCur, result.cut)
		if err != nil {
			return nil, err
		}

		if len(lowRowsS) == 0 || len(highRowsS) == 0 || len(lowRowsT) == 0 || len(highRowsT) == 0 {
			t.nodes[f.nodeIdx].status = Final
			continue
		}

		lowCut := Cut{Variable: result.cut.Variable, Threshold: result.cut.Threshold, Sense: Less}
		highCut := result.cut

		t.branches = append(t.branches, branch{cut: lowCut, parent: f.nodeIdx, child: noIndex, sumSource: result.sumSourceLow, sumTarget: result.sumTargetLow})
		lowBranchIdx := len(t.branches) - 1
		t.branches = append(t.branches, branch{cut: highCut, parent: f.nodeIdx, child: noIndex, sumSource: result.sumSourceHigh, sumTarget: result.sumTargetHigh})
		highBranchIdx := len(t.branches) - 1

		t.nodes = append(t.nodes, node{status: New, inputBranch: lowBranchIdx, outputLow: noIndex, outputHigh: noIndex})
		lowNodeIdx := len(t.nodes) - 1
		t.nodes = append(t.nodes, node{status: New, inputBranch: highBranchIdx, outputLow: noIndex, outputHigh: noIndex})
		highNodeIdx := len(t.nodes) - 1

		t.branches[lowBranchIdx].child = lowNodeIdx
		t.branches[highBranchIdx].child = highNodeIdx

		t.nodes[f.nodeIdx].outputLow = lowBranchIdx
		t.nodes[f.nodeIdx].outputHigh = highBranchIdx
		t.nodes[f.nodeIdx].splitGain = result.chisquare
		if t.nodes[f.nodeIdx].status == New {
			t.nodes[f.nodeIdx].status = Intermediate
		}

		// Push high before low so low is popped first. The order fixes the
		// arena's node numbering and, when feature sampling or Random splits
		// draw from cfg.Rng, which draws each node receives.
		stack = append(stack, frontier{nodeIdx: highNodeIdx, layer: f.layer + 1, sourceRows: highRowsS, targetRows: highRowsT})
		stack = append(stack, frontier{nodeIdx: lowNodeIdx, layer: f.layer + 1, sourceRows: lowRowsS, targetRows: lowRowsT})
	}

	return t, nil
}

func sumWeights(rows []int, w []float64) float64 {
	var s float64
	for _, r := range rows {
		s += w[r]
	}
	return s
}

func fillHist(h *histogram.Histogram, cur rowsource.Cursor, rows []int, weights []float64, def *histogram.Def) error {
	for _, r := range rows {
		if err := cur.GetRow(r); err != nil {
			return err
		}
		val, err := def.Variable.Value(cur)
		if err != nil {
			return err
		}
		h.Fill(val, weights[r])
	}
	return nil
}

func partition(rows []int, cur rowsource.Cursor, cut Cut) (low, high []int, err error) {
	for _, r := range rows {
		if err := cur.GetRow(r); err != nil {
			return nil, nil, err
		}
		pass, err := cut.Pass(cur)
		if err != nil {
			return nil, nil, err
		}
		if pass {
			high = append(high, r)
		} else {
			low = append(low, r)
		}
	}
	return low, high, nil
}

// FinalizeWeights assigns each final node's per-event weight from its
// accumulated source/target sums, using a learning rate eta:
//
//	r_l = exp(eta * ln(T_l / S_l))
//	w_l = r_l * (sum T) / (sum r_l * S_l)
//
// The normalization keeps sum(w_l * S_l) == sum(T_l) over all leaves, so
// the reweighted source integrates to the target's total (spec.md §4.5).
func (t *Tree) FinalizeWeights(eta float64) error {
	leaves := t.finalNodeIndices()
	if len(leaves) == 0 {
		return errkind.New(errkind.State, "tree", "no final nodes to weight")
	}

	r := make([]float64, len(leaves))
	var sumT, sumRS float64
	for i, idx := range leaves {
		n := t.nodes[idx]
		if n.sumSource <= 0 {
			return errkind.New(errkind.State, "tree", "final node %d has non-positive source sum", idx)
		}
		ratio := n.sumTarget / n.sumSource
		r[i] = math.Exp(eta * math.Log(ratio))
		sumT += n.sumTarget
		sumRS += r[i] * n.sumSource
	}
	if sumRS == 0 {
		return errkind.New(errkind.State, "tree", "degenerate weighting, zero normalization")
	}

	norm := sumT / sumRS
	for i, idx := range leaves {
		t.nodes[idx].weight = r[i] * norm
		t.nodes[idx].weightLocked = true
	}
	return nil
}

func (t *Tree) finalNodeIndices() []int {
	var out []int
	for i, n := range t.nodes {
		if n.status == Final {
			out = append(out, i)
		}
	}
	return out
}

// GetWeight routes the row currently positioned in cur to its leaf and
// returns that leaf's weight.
func (t *Tree) GetWeight(cur rowsource.Cursor) (float64, error) {
	idx := 0
	for {
		n := t.nodes[idx]
		if n.status == Final {
			return n.weight, nil
		}
		if n.outputLow == noIndex || n.outputHigh == noIndex {
			return 0, errkind.New(errkind.State, "tree", "node %d is not final but has no children", idx)
		}
		hb := t.branches[n.outputHigh]
		pass, err := hb.cut.Pass(cur)
		if err != nil {
			return 0, err
		}
		if pass {
			idx = hb.child
		} else {
			idx = t.branches[n.outputLow].child
		}
	}
}

// UpdateMultipliers applies this tree's per-event weight as a residual
// multiplier (spec.md §4.6, BDT): mult[r] *= GetWeight(row r). A row index
// appearing more than once in rows is only applied once; duplicates occur
// whenever rows were drawn with replacement, which includes BDT fitted with
// Bagging.
func (t *Tree) UpdateMultipliers(mult []float64, cur rowsource.Cursor, rows []int) error {
	seen := make(map[int]bool, len(rows))
	for _, r := range rows {
		if seen[r] {
			continue
		}
		seen[r] = true
		if err := cur.GetRow(r); err != nil {
			return err
		}
		w, err := t.GetWeight(cur)
		if err != nil {
			return err
		}
		mult[r] *= w
	}
	return nil
}

// VarImp sums the chi-square gain of every split in the tree, keyed by the
// variable it split on. A variable absent from the map was never selected.
func (t *Tree) VarImp() map[string]float64 {
	imp := make(map[string]float64)
	for _, n := range t.nodes {
		if n.outputHigh == noIndex {
			continue
		}
		cut := t.branches[n.outputHigh].cut
		imp[cut.Variable.Name()] += n.splitGain
	}
	return imp
}

// NumNodes and NumLeaves report the arena's size, mainly for diagnostics
// and tests.
func (t *Tree) NumNodes() int { return len(t.nodes) }

func (t *Tree) NumLeaves() int { return len(t.finalNodeIndices()) }

// LeafPath is one root-to-leaf path through the tree: the ordered sequence
// of cuts to follow, and the weight assigned at the leaf reached. It is the
// unit the weights-file codec reads and writes (spec.md §4.8).
type LeafPath struct {
	Weight               float64
	SumSource, SumTarget float64
	Cuts                 []Cut // root-to-leaf order
}

// Paths enumerates every root-to-leaf path in the tree.
func (t *Tree) Paths() []LeafPath {
	var out []LeafPath
	var walk func(nodeIdx int, cuts []Cut)
	walk = func(nodeIdx int, cuts []Cut) {
		n := t.nodes[nodeIdx]
		if n.status == Final {
			cp := make([]Cut, len(cuts))
			copy(cp, cuts)
			out = append(out, LeafPath{Weight: n.weight, SumSource: n.sumSource, SumTarget: n.sumTarget, Cuts: cp})
			return
		}
		if n.outputLow != noIndex {
			lb := t.branches[n.outputLow]
			walk(lb.child, append(cuts, lb.cut))
		}
		if n.outputHigh != noIndex {
			hb := t.branches[n.outputHigh]
			walk(hb.child, append(cuts, hb.cut))
		}
	}
	walk(0, nil)
	return out
}

// FromPaths reconstructs a Tree's arena from a flat list of root-to-leaf
// paths, the form the weights-file reader produces after reversing each
// line's '|'-separated cut sequence back into root-to-leaf order. Shared
// path prefixes collapse onto the same branch, rebuilding the original
// graph rather than a degenerate one-path-per-leaf chain.
func FromPaths(paths []LeafPath) *Tree {
	t := &Tree{nodes: []node{{status: First, inputBranch: noIndex, outputLow: noIndex, outputHigh: noIndex}}}

	for _, p := range paths {
		if len(p.Cuts) == 0 {
			// a tree whose root was never split: the root is its only leaf
			t.nodes[0].status = Final
			t.nodes[0].weight = p.Weight
			t.nodes[0].weightLocked = true
			t.nodes[0].sumSource = p.SumSource
			t.nodes[0].sumTarget = p.SumTarget
			continue
		}
		nodeIdx := 0
		for i, cut := range p.Cuts {
			var branchIdx int
			if cut.Sense == Less {
				if t.nodes[nodeIdx].outputLow == noIndex {
					t.branches = append(t.branches, branch{cut: cut, parent: nodeIdx, child: noIndex})
					branchIdx = len(t.branches) - 1
					t.nodes[nodeIdx].outputLow = branchIdx
				} else {
					branchIdx = t.nodes[nodeIdx].outputLow
				}
			} else {
				if t.nodes[nodeIdx].outputHigh == noIndex {
					t.branches = append(t.branches, branch{cut: cut, parent: nodeIdx, child: noIndex})
					branchIdx = len(t.branches) - 1
					t.nodes[nodeIdx].outputHigh = branchIdx
				} else {
					branchIdx = t.nodes[nodeIdx].outputHigh
				}
			}

			if t.branches[branchIdx].child == noIndex {
				t.nodes = append(t.nodes, node{status: New, inputBranch: branchIdx, outputLow: noIndex, outputHigh: noIndex})
				t.branches[branchIdx].child = len(t.nodes) - 1
			}

			nodeIdx = t.branches[branchIdx].child
			if i == len(p.Cuts)-1 {
				t.nodes[nodeIdx].status = Final
				t.nodes[nodeIdx].weight = p.Weight
				t.nodes[nodeIdx].weightLocked = true
				t.nodes[nodeIdx].sumSource = p.SumSource
				t.nodes[nodeIdx].sumTarget = p.SumTarget
			} else if t.nodes[nodeIdx].status == New {
				t.nodes[nodeIdx].status = Intermediate
			}
		}
	}

	return t
}
