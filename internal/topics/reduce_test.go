package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduce_ClampsComponents(t *testing.T) {
	vectors := [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 0}}

	out, err := Reduce(vectors, 5)
	require.NoError(t, err)
	require.Len(t, out, 4)

	for _, row := range out {
		assert.Len(t, row, 3)
	}
}

func TestReduce_KeepsMainAxis(t *testing.T) {
	// Points on a line along x with tiny noise in y: the first component must separate them by x.
	vectors := [][]float64{{-3, 0.01}, {-1, -0.01}, {1, 0.02}, {3, -0.02}}

	out, err := Reduce(vectors, 1)
	require.NoError(t, err)

	// The sign of a principal component is arbitrary, so compare distances.
	assert.InDelta(t, 6, abs(out[3][0]-out[0][0]), 0.01)
	assert.InDelta(t, 2, abs(out[2][0]-out[1][0]), 0.01)
}

func TestReduce_Edges(t *testing.T) {
	out, err := Reduce(nil, 5)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = Reduce([][]float64{{1, 2, 3}}, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0}}, out)

	_, err = Reduce([][]float64{{1, 2}, {1}}, 2)
	require.Error(t, err)

	_, err = Reduce([][]float64{{1, 2}, {3, 4}}, 0)
	require.Error(t, err)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}

	return x
}
