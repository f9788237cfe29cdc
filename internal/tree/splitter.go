package tree

import (
	"math"
	"math/rand"

	"github.com/kgregersen/reweighter/internal/histogram"
)

// SplitMode selects how a node's candidate cut is chosen (spec.md §4.4).
type SplitMode int

const (
	// Chisquare retains the candidate with the largest chi-square over all
	// sampled variables and bins. Used by BDT and RF.
	Chisquare SplitMode = iota
	// Random picks one sampled variable uniformly at random, then one of
	// its valid candidate bins uniformly at random. Used by ET.
	Random
)

// candidate is one variable's filled histogram pair, considered for splitting.
type candidate struct {
	def    *histogram.Def
	source *histogram.Histogram
	target *histogram.Histogram
}

// splitResult describes the winning cut and the event sums it implies on
// each side, mirroring Node::Summary.
type splitResult struct {
	cut                                        Cut
	chisquare                                  float64
	sumSourceLow, sumTargetLow                 float64
	sumSourceHigh, sumTargetHigh               float64
}

// Splitter evaluates the best split on a node from its filled histograms.
type Splitter struct {
	MinEventsNode int
	Mode          SplitMode
	Rng           *rand.Rand
}

// Split returns the winning split, or ok=false if no candidate satisfies
// MinEventsNode on every side (the node should become FINAL).
func (s *Splitter) Split(candidates []candidate) (splitResult, bool) {
	if s.Mode == Random {
		return s.splitRandom(candidates)
	}
	return s.splitChisquare(candidates)
}

func (s *Splitter) splitChisquare(candidates []candidate) (splitResult, bool) {
	var best splitResult
	found := false

	for _, c := range candidates {
		nbins := c.source.NBins()
		for b := 1; b < nbins; b++ {
			slo, sle := c.source.IntegralAndError(0, b)
			shi, she := c.source.IntegralAndError(b+1, -1)
			tlo, tle := c.target.IntegralAndError(0, b)
			thi, the := c.target.IntegralAndError(b+1, -1)

			if slo < float64(s.MinEventsNode) || shi < float64(s.MinEventsNode) ||
				tlo < float64(s.MinEventsNode) || thi < float64(s.MinEventsNode) {
				continue
			}

			chisq := math.Pow(slo-tlo, 2)/(sle*sle+tle*tle) + math.Pow(shi-thi, 2)/(she*she+the*the)

			if chisq > 0 && chisq > best.chisquare {
				found = true
				best = splitResult{
					cut:           Cut{Variable: c.def.Variable, Threshold: c.source.BinLowEdge(b + 1), Sense: GreaterEq},
					chisquare:     chisq,
					sumSourceLow:  slo,
					sumTargetLow:  tlo,
					sumSourceHigh: shi,
					sumTargetHigh: thi,
				}
			}
		}
	}

	return best, found
}

func (s *Splitter) splitRandom(candidates []candidate) (splitResult, bool) {
	if len(candidates) == 0 {
		return splitResult{}, false
	}

	c := candidates[s.Rng.Intn(len(candidates))]
	nbins := c.source.NBins()

	var validBins []int
	for b := 1; b < nbins; b++ {
		slo, _ := c.source.IntegralAndError(0, b)
		shi, _ := c.source.IntegralAndError(b+1, -1)
		tlo, _ := c.target.IntegralAndError(0, b)
		thi, _ := c.target.IntegralAndError(b+1, -1)

		if slo >= float64(s.MinEventsNode) && shi >= float64(s.MinEventsNode) &&
			tlo >= float64(s.MinEventsNode) && thi >= float64(s.MinEventsNode) {
			validBins = append(validBins, b)
		}
	}

	if len(validBins) == 0 {
		return splitResult{}, false
	}

	b := validBins[s.Rng.Intn(len(validBins))]
	slo, sle := c.source.IntegralAndError(0, b)
	shi, she := c.source.IntegralAndError(b+1, -1)
	tlo, tle := c.target.IntegralAndError(0, b)
	thi, the := c.target.IntegralAndError(b+1, -1)
	chisq := math.Pow(slo-tlo, 2)/(sle*sle+tle*tle) + math.Pow(shi-thi, 2)/(she*she+the*the)

	return splitResult{
		cut:           Cut{Variable: c.def.Variable, Threshold: c.source.BinLowEdge(b + 1), Sense: GreaterEq},
		chisquare:     chisq,
		sumSourceLow:  slo,
		sumTargetLow:  tlo,
		sumSourceHigh: shi,
		sumTargetHigh: thi,
	}, true
}

// SampleFeatures returns the histogram definitions to use for one node,
// matching the Fisher-Yates feature sampling in spec.md §4.4. allFeatures
// sampling (BDT) is the fraction >= 1 case; fraction must be in (0, 1] for
// RF/ET.
func SampleFeatures(defs []*histogram.Def, fraction float64, rng *rand.Rand) []*histogram.Def {
	if fraction >= 1 {
		out := make([]*histogram.Def, len(defs))
		copy(out, defs)
		return out
	}

	idx := make([]int, len(defs))
	for i := range idx {
		idx[i] = i
	}
	for i := len(idx) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}

	n := int(math.Ceil(fraction * float64(len(defs))))
	if n < 1 {
		n = 1
	}
	if n > len(defs) {
		n = len(defs)
	}

	out := make([]*histogram.Def, n)
	for i := 0; i < n; i++ {
		out[i] = defs[idx[i]]
	}
	return out
}
