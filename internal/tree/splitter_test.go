package tree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgregersen/reweighter/internal/histogram"
	"github.com/kgregersen/reweighter/internal/variable"
)

func TestSplitChisquareRejectsBelowMinEvents(t *testing.T) {
	reg := variable.NewRegistry()
	v, _ := reg.Register("x")
	def := &histogram.Def{Variable: v, Xmin: 0, Xmax: 10, Nbins: 10}

	sh := def.NewHist()
	th := def.NewHist()
	// one event per source bin, none in target: every candidate split has
	// a target side below any positive MinEventsNode.
	for i := 0; i < 10; i++ {
		sh.Fill(float64(i)+0.5, 1)
	}

	s := &Splitter{MinEventsNode: 1, Mode: Chisquare}
	_, ok := s.Split([]candidate{{def: def, source: sh, target: th}})
	assert.False(t, ok, "no candidate should satisfy MinEventsNode when target side is empty")
}

func TestSplitChisquarePicksSeparatingThreshold(t *testing.T) {
	reg := variable.NewRegistry()
	v, _ := reg.Register("x")
	def := &histogram.Def{Variable: v, Xmin: 0, Xmax: 10, Nbins: 10}

	sh := def.NewHist()
	th := def.NewHist()
	for i := 0; i < 10; i++ {
		sh.Fill(float64(i)+0.5, 1)
	}
	// target concentrated in the upper half
	for i := 5; i < 10; i++ {
		th.Fill(float64(i)+0.5, 2)
	}

	s := &Splitter{MinEventsNode: 1, Mode: Chisquare}
	result, ok := s.Split([]candidate{{def: def, source: sh, target: th}})
	require.True(t, ok)
	// A cut at 5 leaves no target below it, so MinEventsNode=1 rejects it;
	// among the valid cuts, 6 has the largest chi-square (2.4).
	assert.Equal(t, 6.0, result.cut.Threshold)
	assert.True(t, result.chisquare > 0)
}

func TestSplitRandomNeverPicksOverflowOnlyBin(t *testing.T) {
	reg := variable.NewRegistry()
	v, _ := reg.Register("x")
	def := &histogram.Def{Variable: v, Xmin: 0, Xmax: 10, Nbins: 10}

	sh := def.NewHist()
	th := def.NewHist()
	for i := 0; i < 10; i++ {
		sh.Fill(float64(i)+0.5, 1)
		th.Fill(float64(i)+0.5, 1)
	}

	// MinEventsNode=0 lets a degenerate overflow-only high side pass the
	// per-side check, so this only stays correct if the candidate bin range
	// excludes b=nbins the same way splitChisquare does.
	for seed := int64(0); seed < 50; seed++ {
		s := &Splitter{MinEventsNode: 0, Mode: Random, Rng: rand.New(rand.NewSource(seed))}
		result, ok := s.Split([]candidate{{def: def, source: sh, target: th}})
		require.True(t, ok)
		assert.Less(t, result.cut.Threshold, def.Xmax, "random split must never cut at nbins, leaving only the overflow bin on the high side")
	}
}

func TestSampleFeaturesFullWhenFractionOne(t *testing.T) {
	reg := variable.NewRegistry()
	v1, _ := reg.Register("x")
	v2, _ := reg.Register("y")
	defs := []*histogram.Def{
		{Variable: v1, Xmin: 0, Xmax: 1, Nbins: 10},
		{Variable: v2, Xmin: 0, Xmax: 1, Nbins: 10},
	}

	out := SampleFeatures(defs, 1.0, rand.New(rand.NewSource(1)))
	assert.Len(t, out, 2)
}

func TestSampleFeaturesFraction(t *testing.T) {
	reg := variable.NewRegistry()
	defs := make([]*histogram.Def, 4)
	for i := range defs {
		v, _ := reg.Register(string(rune('a' + i)))
		defs[i] = &histogram.Def{Variable: v, Xmin: 0, Xmax: 1, Nbins: 10}
	}

	out := SampleFeatures(defs, 0.5, rand.New(rand.NewSource(2)))
	assert.Len(t, out, 2)

	seen := make(map[string]bool)
	for _, d := range out {
		seen[d.Variable.Name()] = true
	}
	assert.Len(t, seen, 2, "sampled features must be distinct")
}
