package tree

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgregersen/reweighter/internal/histogram"
	"github.com/kgregersen/reweighter/internal/rowsource"
	"github.com/kgregersen/reweighter/internal/variable"
)

func buildTestCursors(t *testing.T) (*variable.Registry, *histogram.Def, rowsource.Cursor, rowsource.Cursor) {
	t.Helper()
	reg := variable.NewRegistry()
	v, err := reg.Register("x")
	require.NoError(t, err)

	sourceCSV := "x\n0\n1\n2\n3\n4\n5\n6\n7\n8\n9\n"
	targetCSV := "x\n5\n6\n7\n8\n9\n5\n6\n7\n8\n9\n"

	sourceCur, err := rowsource.ParseCSV(strings.NewReader(sourceCSV))
	require.NoError(t, err)
	targetCur, err := rowsource.ParseCSV(strings.NewReader(targetCSV))
	require.NoError(t, err)

	def := &histogram.Def{Variable: v, Xmin: 0, Xmax: 10, Nbins: 10}
	return reg, def, sourceCur, targetCur
}

func uniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func TestGrowAndFinalizeConservesTotalWeight(t *testing.T) {
	_, def, sourceCur, targetCur := buildTestCursors(t)
	sourceW := uniformWeights(sourceCur.RowCount())
	targetW := uniformWeights(targetCur.RowCount())

	cfg := GrowConfig{
		MaxLayers:               3,
		MinEventsNode:           0,
		LearningRate:            1.0,
		FeatureSamplingFraction: 1.0,
		Mode:                    Chisquare,
		Rng:                     rand.New(rand.NewSource(1)),
	}

	tr, err := Grow(cfg, []*histogram.Def{def}, sourceCur, targetCur, sourceW, targetW, allIndices(len(sourceW)), allIndices(len(targetW)))
	require.NoError(t, err)
	require.NoError(t, tr.FinalizeWeights(cfg.LearningRate))

	var weightedSource, totalTarget float64
	for _, w := range targetW {
		totalTarget += w
	}
	for r := 0; r < sourceCur.RowCount(); r++ {
		require.NoError(t, sourceCur.GetRow(r))
		w, err := tr.GetWeight(sourceCur)
		require.NoError(t, err)
		weightedSource += w * sourceW[r]
	}

	assert.InDelta(t, totalTarget, weightedSource, 1e-6, "reweighted source must integrate to the target total")
}

func TestPathsFromPathsRoundTrip(t *testing.T) {
	_, def, sourceCur, targetCur := buildTestCursors(t)
	sourceW := uniformWeights(sourceCur.RowCount())
	targetW := uniformWeights(targetCur.RowCount())

	cfg := GrowConfig{
		MaxLayers:               3,
		MinEventsNode:           0,
		LearningRate:            1.0,
		FeatureSamplingFraction: 1.0,
		Mode:                    Chisquare,
		Rng:                     rand.New(rand.NewSource(7)),
	}

	tr, err := Grow(cfg, []*histogram.Def{def}, sourceCur, targetCur, sourceW, targetW, allIndices(len(sourceW)), allIndices(len(targetW)))
	require.NoError(t, err)
	require.NoError(t, tr.FinalizeWeights(cfg.LearningRate))

	paths := tr.Paths()
	require.NotEmpty(t, paths)

	rebuilt := FromPaths(paths)

	for r := 0; r < sourceCur.RowCount(); r++ {
		require.NoError(t, sourceCur.GetRow(r))
		want, err := tr.GetWeight(sourceCur)
		require.NoError(t, err)
		require.NoError(t, sourceCur.GetRow(r))
		got, err := rebuilt.GetWeight(sourceCur)
		require.NoError(t, err)
		assert.True(t, math.Abs(want-got) < 1e-9, "row %d: weight mismatch after reconstruction", r)
	}
}

func TestFinalizeWeightsNoFinalNodesErrors(t *testing.T) {
	tr := &Tree{nodes: []node{{status: Intermediate}}}
	err := tr.FinalizeWeights(1.0)
	assert.Error(t, err)
}
