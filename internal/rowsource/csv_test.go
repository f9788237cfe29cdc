package rowsource

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV(t *testing.T) {
	data := "x,y\n1,2\n3,4\n"
	cur, err := ParseCSV(strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 2, cur.RowCount())
	assert.Equal(t, []string{"x", "y"}, cur.Columns())

	require.NoError(t, cur.GetRow(1))
	x, err := cur.Float("x")
	require.NoError(t, err)
	assert.Equal(t, 3.0, x)
}

func TestParseCSVRejectsNonNumeric(t *testing.T) {
	data := "x,y\n1,abc\n"
	_, err := ParseCSV(strings.NewReader(data))
	assert.Error(t, err)
}

func TestGetRowOutOfRange(t *testing.T) {
	cur, err := ParseCSV(strings.NewReader("x\n1\n"))
	require.NoError(t, err)
	assert.Error(t, cur.GetRow(5))
}

func TestCloneIsIndependent(t *testing.T) {
	cur, err := ParseCSV(strings.NewReader("x\n1\n2\n"))
	require.NoError(t, err)

	require.NoError(t, cur.GetRow(0))
	clone := cur.Clone()
	require.NoError(t, clone.GetRow(1))

	xOrig, _ := cur.Float("x")
	xClone, _ := clone.Float("x")
	assert.Equal(t, 1.0, xOrig)
	assert.Equal(t, 2.0, xClone)
}
