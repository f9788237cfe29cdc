package weightsfile

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgregersen/reweighter/internal/config"
	"github.com/kgregersen/reweighter/internal/forest"
	"github.com/kgregersen/reweighter/internal/histogram"
	"github.com/kgregersen/reweighter/internal/rowsource"
	"github.com/kgregersen/reweighter/internal/variable"
)

func TestWriteReadRoundTrip(t *testing.T) {
	reg := variable.NewRegistry()
	_, err := reg.Register("x")
	require.NoError(t, err)

	sourceCur, err := rowsource.ParseCSV(strings.NewReader("x\n0\n1\n2\n3\n4\n5\n6\n7\n8\n9\n"))
	require.NoError(t, err)
	targetCur, err := rowsource.ParseCSV(strings.NewReader("x\n5\n6\n7\n8\n9\n5\n6\n7\n8\n9\n"))
	require.NoError(t, err)

	defs, err := histogram.DiscoverRanges(reg, sourceCur, targetCur)
	require.NoError(t, err)

	sourceW := make([]float64, sourceCur.RowCount())
	for i := range sourceW {
		sourceW[i] = 1
	}
	targetW := make([]float64, targetCur.RowCount())
	for i := range targetW {
		targetW[i] = 1
	}

	cfg := forest.BuildConfig{
		Method:                  config.MethodBDT,
		NumForests:              1,
		NumTrees:                2,
		MaxLayers:               3,
		MinEventsNode:           1,
		LearningRate:            0.5,
		SamplingFraction:        1.0,
		FeatureSamplingFraction: 1.0,
		Rng:                     rand.New(rand.NewSource(5)),
	}

	ens, err := forest.Fit(cfg, defs, sourceCur, targetCur, sourceW, targetW)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, ens, reg, "2026-07-29 00:00:00", []string{"Method=BDT"}))

	result, err := Read(&buf, reg)
	require.NoError(t, err)
	assert.Equal(t, config.MethodBDT, result.Method)
	assert.Len(t, result.Ensemble.Forests[0].Trees, 2)

	for r := 0; r < sourceCur.RowCount(); r++ {
		require.NoError(t, sourceCur.GetRow(r))
		want, err := ens.Weight(sourceCur)
		require.NoError(t, err)

		require.NoError(t, sourceCur.GetRow(r))
		got, err := result.Ensemble.Weight(sourceCur)
		require.NoError(t, err)

		assert.InDelta(t, want.Weight, got.Weight, 1e-6, "row %d", r)
	}
}

func TestReadFlushesTreeOnDecisionTreeLine(t *testing.T) {
	reg := variable.NewRegistry()
	_, err := reg.Register("x")
	require.NoError(t, err)

	// Canonical single-terminator format: one "# End" after all trees in the
	// forest, matching the original tool's CalculateWeights.cpp output.
	text := "Time stamp: now\nVariables: x\nMethod: BDT\nConfigFile:\n" +
		"# Decision Tree : 0\nweight=1.5:SumTarget/SumSource=10/5=2:x<0.5\n" +
		"# Decision Tree : 1\nweight=2.5:SumTarget/SumSource=20/5=4:x<0.5\n" +
		"# End\n"

	result, err := Read(strings.NewReader(text), reg)
	require.NoError(t, err)
	require.Len(t, result.Ensemble.Forests[0].Trees, 2, "each Decision Tree block must parse as its own tree, not merge into one on the trailing # End")
}

func TestWriteEmitsOneEndMarkerPerForest(t *testing.T) {
	reg := variable.NewRegistry()
	_, err := reg.Register("x")
	require.NoError(t, err)

	sourceCur, err := rowsource.ParseCSV(strings.NewReader("x\n0\n1\n2\n3\n4\n5\n6\n7\n8\n9\n"))
	require.NoError(t, err)
	targetCur, err := rowsource.ParseCSV(strings.NewReader("x\n5\n6\n7\n8\n9\n5\n6\n7\n8\n9\n"))
	require.NoError(t, err)

	defs, err := histogram.DiscoverRanges(reg, sourceCur, targetCur)
	require.NoError(t, err)

	sourceW := make([]float64, sourceCur.RowCount())
	for i := range sourceW {
		sourceW[i] = 1
	}
	targetW := make([]float64, targetCur.RowCount())
	for i := range targetW {
		targetW[i] = 1
	}

	cfg := forest.BuildConfig{
		Method:                  config.MethodBDT,
		NumForests:              2,
		NumTrees:                3,
		MaxLayers:               3,
		MinEventsNode:           1,
		LearningRate:            0.5,
		SamplingFraction:        1.0,
		FeatureSamplingFraction: 1.0,
		Rng:                     rand.New(rand.NewSource(5)),
	}

	ens, err := forest.Fit(cfg, defs, sourceCur, targetCur, sourceW, targetW)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, ens, reg, "2026-07-29 00:00:00", []string{"Method=BDT"}))

	assert.Equal(t, cfg.NumForests, strings.Count(buf.String(), endMarker),
		"# End must appear once per forest, not once per tree")
}

func TestReadRejectsUnknownVariable(t *testing.T) {
	reg := variable.NewRegistry()
	_, err := reg.Register("x")
	require.NoError(t, err)

	text := "Time stamp: now\nVariables: x\nMethod: BDT\nConfigFile:\n# Decision Tree : 0\nweight=1.5:SumTarget/SumSource=10/5=2:y<0.5\n# End\n"
	_, err = Read(strings.NewReader(text), reg)
	assert.Error(t, err)
}
