// Package histogram implements the fixed-range, fixed-bin weighted 1-D
// histogram described in spec.md §4.2, grounded in the bin-content/
// bin-variance array layout used by other_examples' hist.H1 and gohistogram's
// WeightedHistogram, adapted to the over/underflow-bin convention of the
// original ROOT-backed TH1F this system was distilled from.
package histogram

import "math"

// Histogram is a fixed-range weighted 1-D histogram. Bin 0 is underflow,
// bin nbins+1 is overflow; bins 1..nbins cover [xmin, xmax) in equal steps.
type Histogram struct {
	nbins      int
	xmin, xmax float64
	content    []float64 // len nbins+2, sum of weights per bin
	sumsq      []float64 // len nbins+2, sum of squared weights per bin
}

// New constructs a Histogram with nbins equal-width bins over [xmin, xmax).
func New(nbins int, xmin, xmax float64) *Histogram {
	return &Histogram{
		nbins:   nbins,
		xmin:    xmin,
		xmax:    xmax,
		content: make([]float64, nbins+2),
		sumsq:   make([]float64, nbins+2),
	}
}

// NBins returns the number of interior bins (excluding under/overflow).
func (h *Histogram) NBins() int { return h.nbins }

// Fill locates the bin containing x and adds w to its weighted count and
// w*w to its sum of squares.
func (h *Histogram) Fill(x, w float64) {
	b := h.findBin(x)
	h.content[b] += w
	h.sumsq[b] += w * w
}

func (h *Histogram) findBin(x float64) int {
	if x < h.xmin {
		return 0
	}
	if x >= h.xmax {
		return h.nbins + 1
	}
	step := (h.xmax - h.xmin) / float64(h.nbins)
	b := 1 + int((x-h.xmin)/step)
	if b > h.nbins {
		b = h.nbins
	}
	return b
}

// IntegralAndError sums bin content over the inclusive range [lo, hi] and
// returns (sum, sqrt(sum of squares)). hi = -1 denotes the overflow bin
// (nbins+1), matching TH1F::IntegralAndError's convention.
func (h *Histogram) IntegralAndError(lo, hi int) (float64, float64) {
	if hi == -1 {
		hi = h.nbins + 1
	}
	var sum, sq float64
	for b := lo; b <= hi; b++ {
		sum += h.content[b]
		sq += h.sumsq[b]
	}
	return sum, math.Sqrt(sq)
}

// BinLowEdge returns the lower edge of bin b, valid for 1 <= b <= nbins+1.
func (h *Histogram) BinLowEdge(b int) float64 {
	step := (h.xmax - h.xmin) / float64(h.nbins)
	return h.xmin + float64(b-1)*step
}
