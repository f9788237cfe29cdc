package histogram

import (
	"math"

	"github.com/kgregersen/reweighter/internal/rowsource"
	"github.com/kgregersen/reweighter/internal/variable"
)

// DefaultBins is the fixed bin count adopted for every histogram definition,
// matching HistDefs::Entry's hard-coded m_nbins(100).
const DefaultBins = 100

// Def is a single variable's histogram binning, discovered once from the
// source and target samples before any tree is grown (spec.md §4.3).
type Def struct {
	Variable   *variable.Variable
	Xmin, Xmax float64
	Nbins      int
}

// NewHist constructs a Histogram using this definition's binning.
func (d *Def) NewHist() *Histogram {
	return New(d.Nbins, d.Xmin, d.Xmax)
}

// DiscoverRanges builds one Def per variable in reg, scanning every row of
// both source and target to find each variable's [min, max], then fixing
// Nbins to DefaultBins. This is the one-shot range scan described in
// spec.md §4.3; it is the only place every row of both samples is visited
// purely for ranging purposes.
func DiscoverRanges(reg *variable.Registry, source, target rowsource.Cursor) ([]*Def, error) {
	names := reg.Names()
	defs := make([]*Def, len(names))
	for i, name := range names {
		v, err := reg.Get(name)
		if err != nil {
			return nil, err
		}
		defs[i] = &Def{Variable: v, Xmin: math.MaxFloat64, Xmax: -math.MaxFloat64, Nbins: DefaultBins}
	}

	for _, cur := range []rowsource.Cursor{source, target} {
		n := cur.RowCount()
		for row := 0; row < n; row++ {
			if err := cur.GetRow(row); err != nil {
				return nil, err
			}
			for _, d := range defs {
				val, err := d.Variable.Value(cur)
				if err != nil {
					return nil, err
				}
				if val < d.Xmin {
					d.Xmin = val
				}
				if val > d.Xmax {
					d.Xmax = val
				}
			}
		}
	}

	return defs, nil
}
