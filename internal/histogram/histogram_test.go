package histogram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFillAndIntegral(t *testing.T) {
	h := New(10, 0, 10)

	h.Fill(-1, 2) // underflow
	h.Fill(0.5, 1)
	h.Fill(5.5, 3)
	h.Fill(11, 4) // overflow

	sum, _ := h.IntegralAndError(1, h.NBins())
	assert.Equal(t, 4.0, sum, "interior bins should exclude under/overflow")

	under, _ := h.IntegralAndError(0, 0)
	assert.Equal(t, 2.0, under)

	over, _ := h.IntegralAndError(h.NBins()+1, -1)
	assert.Equal(t, 4.0, over)

	full, _ := h.IntegralAndError(0, -1)
	assert.Equal(t, 10.0, full)
}

func TestBinLowEdge(t *testing.T) {
	h := New(4, 0, 8)
	assert.Equal(t, 0.0, h.BinLowEdge(1))
	assert.Equal(t, 2.0, h.BinLowEdge(2))
	assert.Equal(t, 8.0, h.BinLowEdge(5))
}

func TestFindBinBoundary(t *testing.T) {
	h := New(2, 0, 10)
	h.Fill(0, 1)   // bin 1
	h.Fill(4.9, 1) // bin 1
	h.Fill(5, 1)   // bin 2
	h.Fill(9.999, 1)

	b1, _ := h.IntegralAndError(1, 1)
	assert.Equal(t, 2.0, b1)
	b2, _ := h.IntegralAndError(2, 2)
	assert.Equal(t, 2.0, b2)
}
