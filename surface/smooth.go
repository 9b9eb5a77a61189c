package surface

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Smooth applies a separable Gaussian filter of width sigma (in grid cells)
// along both axes and returns a new grid. The kernel is truncated at 4 sigma and
// edges are reflected. NaN cells stay NaN and are left out of their neighbours' averages.
func Smooth(g *Grid, sigma float64) *Grid {
	out := NewGrid(g.Moneyness, g.Time)
	for i, row := range g.Values {
		copy(out.Values[i], row)
	}
	if sigma <= 0 {
		return out
	}
	w := gaussianKernel(sigma)

	// along moneyness
	for i, row := range g.Values {
		filter1D(out.Values[i], row, w)
	}

	// along time
	nt, nm := g.Shape()
	col := make([]float64, nt)
	res := make([]float64, nt)
	for j := 0; j < nm; j++ {
		for i := 0; i < nt; i++ {
			col[i] = out.Values[i][j]
		}
		filter1D(res, col, w)
		for i := 0; i < nt; i++ {
			out.Values[i][j] = res[i]
		}
	}
	return out
}

func gaussianKernel(sigma float64) []float64 {
	radius := int(4*sigma + 0.5)
	w := make([]float64, 2*radius+1)
	for i := range w {
		x := float64(i-radius) / sigma
		w[i] = math.Exp(-0.5 * x * x)
	}
	floats.Scale(1/floats.Sum(w), w)
	return w
}

// filter1D convolves src with the symmetric kernel w into dst.
func filter1D(dst, src, w []float64) {
	n := len(src)
	radius := len(w) / 2
	for i := 0; i < n; i++ {
		if math.IsNaN(src[i]) {
			dst[i] = math.NaN()
			continue
		}
		var sum, norm float64
		for k := -radius; k <= radius; k++ {
			v := src[reflect(i+k, n)]
			if math.IsNaN(v) {
				continue
			}
			sum += w[k+radius] * v
			norm += w[k+radius]
		}
		dst[i] = sum / norm
	}
}

// reflect folds an out-of-range index back onto [0, n) as d c b a | a b c d | d c b a.
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}
