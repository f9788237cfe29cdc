package forest

import (
	"fmt"
	"io"
)

// Report writes a diagnostics summary of a fitted ensemble: per-tree leaf
// counts, source/target totals, and for BDT the normalization check that
// sum(weight*SumSource) over every leaf equals sum(SumTarget) (spec.md
// §4.5). Grounded in the teacher's model.go:Report, which prints a
// confusion matrix and variable importance after fitting; this is that
// same post-fit summary, generalized to the reweighting domain.
func (e *Ensemble) Report(w io.Writer) error {
	fmt.Fprintf(w, "method: %s, forests: %d\n", e.Method, len(e.Forests))

	for fi, f := range e.Forests {
		fmt.Fprintf(w, "forest %d: %d tree(s)\n", fi, len(f.Trees))
		for ti, t := range f.Trees {
			leaves := t.Paths()
			var sumSource, sumTarget, weightedSource float64
			for _, leaf := range leaves {
				sumSource += leaf.SumSource
				sumTarget += leaf.SumTarget
				weightedSource += leaf.Weight * leaf.SumSource
			}
			fmt.Fprintf(w, "  tree %d: %d leaves, sumSource=%v, sumTarget=%v, sum(weight*source)=%v\n",
				ti, len(leaves), sumSource, sumTarget, weightedSource)
		}
	}
	return nil
}
