package tree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgregersen/reweighter/internal/rowsource"
	"github.com/kgregersen/reweighter/internal/variable"
)

func TestCutPass(t *testing.T) {
	reg := variable.NewRegistry()
	v, err := reg.Register("x")
	require.NoError(t, err)

	cur, err := rowsource.ParseCSV(strings.NewReader("x\n1\n5\n"))
	require.NoError(t, err)

	lt := Cut{Variable: v, Threshold: 3, Sense: Less}
	ge := Cut{Variable: v, Threshold: 3, Sense: GreaterEq}

	require.NoError(t, cur.GetRow(0))
	pass, err := lt.Pass(cur)
	require.NoError(t, err)
	assert.True(t, pass)

	require.NoError(t, cur.GetRow(1))
	pass, err = ge.Pass(cur)
	require.NoError(t, err)
	assert.True(t, pass)
}

func TestCutStringAndParseCutRoundTrip(t *testing.T) {
	reg := variable.NewRegistry()
	v, err := reg.Register("x")
	require.NoError(t, err)

	c := Cut{Variable: v, Threshold: 0.5, Sense: GreaterEq}
	s := c.String()
	assert.Equal(t, "x>0.5", s)

	parsed, err := ParseCut(s, reg)
	require.NoError(t, err)
	assert.Equal(t, c.Threshold, parsed.Threshold)
	assert.Equal(t, c.Sense, parsed.Sense)
	assert.Equal(t, c.Variable.Name(), parsed.Variable.Name())
}

func TestParseCutUnknownVariable(t *testing.T) {
	reg := variable.NewRegistry()
	_, err := ParseCut("y<1", reg)
	assert.Error(t, err)
}
