package variable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCursor map[string]float64

func (c fakeCursor) Float(name string) (float64, error) {
	v, ok := c[name]
	if !ok {
		return 0, assertErr(name)
	}
	return v, nil
}

type assertErr string

func (e assertErr) Error() string { return "no such column: " + string(e) }

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	v, err := reg.Register("x")
	require.NoError(t, err)
	assert.Equal(t, "x", v.Name())

	got, err := reg.Get("x")
	require.NoError(t, err)
	assert.Same(t, v, got)

	_, err = reg.Register("x")
	assert.Error(t, err, "duplicate registration must fail")
}

func TestGetUnregisteredIsFatal(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("missing")
	assert.Error(t, err)
}

func TestValueReadsCurrentRow(t *testing.T) {
	reg := NewRegistry()
	v, err := reg.Register("x")
	require.NoError(t, err)

	cur := fakeCursor{"x": 3.5}
	val, err := v.Value(cur)
	require.NoError(t, err)
	assert.Equal(t, 3.5, val)
}

func TestNamesPreservesOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register("b")
	reg.Register("a")
	reg.Register("c")
	assert.Equal(t, []string{"b", "a", "c"}, reg.Names())
}
