package topics

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrPCAFailed is returned when the SVD behind the principal component analysis does not converge.
var ErrPCAFailed = errors.New("principal component analysis failed")

// Reduce projects vectors onto their first components principal components.
// The component count is clamped to min(len(vectors), dimension). Vectors must share one dimension.
func Reduce(vectors [][]float64, components int) ([][]float64, error) {
	n := len(vectors)
	if n == 0 {
		return nil, nil
	}

	d := len(vectors[0])
	for i, v := range vectors {
		if len(v) != d {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), d)
		}
	}

	k := min(components, n, d)
	if k <= 0 {
		return nil, fmt.Errorf("invalid component count %d", components)
	}

	out := make([][]float64, n)

	if n < 2 {
		out[0] = make([]float64, k)

		return out, nil
	}

	data := mat.NewDense(n, d, nil)
	for i, v := range vectors {
		data.SetRow(i, v)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, ErrPCAFailed
	}

	var basis mat.Dense
	pc.VectorsTo(&basis)

	centered := mat.DenseCopyOf(data)

	for j := range d {
		col := mat.Col(nil, j, data)
		mean := stat.Mean(col, nil)

		for i := range n {
			centered.Set(i, j, centered.At(i, j)-mean)
		}
	}

	var projected mat.Dense
	projected.Mul(centered, basis.Slice(0, d, 0, k))

	for i := range n {
		out[i] = mat.Row(nil, i, &projected)
	}

	return out, nil
}
