package surface

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/charlerive/volsurface/smile"
)

// Method selects the scattered-data interpolant.
type Method string

const (
	Linear Method = "linear"
	Cubic  Method = "cubic"
)

const (
	DefaultResolution  = 200
	DefaultSmoothSigma = 1.5
)

// Sample is one observed smile point.
type Sample struct {
	Moneyness float64
	Time      float64
	Vol       float64
}

type ScatterOptions struct {
	Method      Method
	Resolution  int     // samples per axis
	SmoothSigma float64 // Gaussian kernel width in grid cells; 0 disables smoothing
}

// Samples flattens smiles into (strike/forward, time-to-expiry, vol) triples.
func Samples(smiles []*smile.Smile) []Sample {
	out := make([]Sample, 0)
	for _, s := range smiles {
		for i, m := range s.Moneyness() {
			out = append(out, Sample{Moneyness: m, Time: s.TimeToExpiry, Vol: s.ImpliedVols[i]})
		}
	}
	return out
}

// Scatter interpolates every smile point onto a regular grid spanning the data.
func Scatter(smiles []*smile.Smile, opts ScatterOptions) (*Grid, error) {
	return ScatterSamples(Samples(smiles), opts)
}

// ScatterSamples triangulates the samples and evaluates the interpolant on a
// Resolution x Resolution grid. Cells outside the convex hull stay NaN.
func ScatterSamples(samples []Sample, opts ScatterOptions) (*Grid, error) {
	if len(samples) == 0 {
		return nil, ErrNoData
	}
	if opts.Resolution == 0 {
		opts.Resolution = DefaultResolution
	}
	if opts.Method == "" {
		opts.Method = Linear
	}
	if opts.Method != Linear && opts.Method != Cubic {
		return nil, fmt.Errorf("unknown interpolation method %q", opts.Method)
	}

	ms := make([]float64, len(samples))
	ts := make([]float64, len(samples))
	for i, s := range samples {
		ms[i], ts[i] = s.Moneyness, s.Time
	}
	mLo, mHi := floats.Min(ms), floats.Max(ms)
	tLo, tHi := floats.Min(ts), floats.Max(ts)
	mAxis, err := axis("moneyness", mLo, mHi, opts.Resolution)
	if err != nil {
		return nil, err
	}
	tAxis, err := axis("time", tLo, tHi, opts.Resolution)
	if err != nil {
		return nil, err
	}

	scaleM := func(m float64) float64 { return (m - mLo) / (mHi - mLo) }
	scaleT := func(t float64) float64 { return (t - tLo) / (tHi - tLo) }

	pts, vals := mergeSamples(samples, scaleM, scaleT)
	g := NewGrid(mAxis, tAxis)
	tris := delaunay(pts)

	var grads [][2]float64
	if opts.Method == Cubic {
		grads = vertexGradients(pts, vals, tris)
	}

	gx := make([]float64, len(mAxis))
	for j, m := range mAxis {
		gx[j] = scaleM(m)
	}
	gy := make([]float64, len(tAxis))
	for i, t := range tAxis {
		gy[i] = scaleT(t)
	}

	const eps = 1e-9
	nm, nt := len(gx), len(gy)
	for _, tri := range tris {
		a, b, c := pts[tri.a], pts[tri.b], pts[tri.c]
		j0, j1 := cellRange(math.Min(a.x, math.Min(b.x, c.x)), math.Max(a.x, math.Max(b.x, c.x)), nm)
		i0, i1 := cellRange(math.Min(a.y, math.Min(b.y, c.y)), math.Max(a.y, math.Max(b.y, c.y)), nt)
		for i := i0; i <= i1; i++ {
			for j := j0; j <= j1; j++ {
				if !math.IsNaN(g.Values[i][j]) {
					continue
				}
				p := point{gx[j], gy[i]}
				l0, l1, l2, ok := barycentric(a, b, c, p)
				if !ok || l0 < -eps || l1 < -eps || l2 < -eps {
					continue
				}
				if opts.Method == Cubic {
					g.Values[i][j] = cubicPatch(
						[3]point{a, b, c},
						[3]float64{vals[tri.a], vals[tri.b], vals[tri.c]},
						[3][2]float64{grads[tri.a], grads[tri.b], grads[tri.c]},
						[3]float64{l0, l1, l2},
					)
				} else {
					g.Values[i][j] = l0*vals[tri.a] + l1*vals[tri.b] + l2*vals[tri.c]
				}
			}
		}
	}

	if opts.SmoothSigma > 0 {
		g = Smooth(g, opts.SmoothSigma)
	}
	return g, nil
}

// cellRange maps a scaled [lo, hi] interval onto grid indices of an n-point unit axis.
func cellRange(lo, hi float64, n int) (int, int) {
	steps := float64(n - 1)
	i0 := int(math.Ceil(lo*steps - 1e-7))
	i1 := int(math.Floor(hi*steps + 1e-7))
	return max(i0, 0), min(i1, n-1)
}

// mergeSamples scales samples to the unit square and averages coincident points.
func mergeSamples(samples []Sample, scaleM, scaleT func(float64) float64) ([]point, []float64) {
	index := make(map[point]int)
	pts := make([]point, 0, len(samples))
	sums := make([]float64, 0, len(samples))
	counts := make([]float64, 0, len(samples))
	for _, s := range samples {
		p := point{scaleM(s.Moneyness), scaleT(s.Time)}
		if i, ok := index[p]; ok {
			sums[i] += s.Vol
			counts[i]++
			continue
		}
		index[p] = len(pts)
		pts = append(pts, p)
		sums = append(sums, s.Vol)
		counts = append(counts, 1)
	}
	floats.Div(sums, counts)
	return pts, sums
}

// vertexGradients estimates a gradient at every vertex by least squares over its
// triangulation neighbours. Vertices without two independent neighbours get a zero gradient.
func vertexGradients(pts []point, vals []float64, tris []triangle) [][2]float64 {
	neighbours := make([][]int, len(pts))
	link := func(i, j int) {
		for _, k := range neighbours[i] {
			if k == j {
				return
			}
		}
		neighbours[i] = append(neighbours[i], j)
	}
	for _, t := range tris {
		link(t.a, t.b)
		link(t.a, t.c)
		link(t.b, t.a)
		link(t.b, t.c)
		link(t.c, t.a)
		link(t.c, t.b)
	}

	grads := make([][2]float64, len(pts))
	for i, ns := range neighbours {
		if len(ns) < 2 {
			continue
		}
		a := mat.NewDense(len(ns), 2, nil)
		b := mat.NewVecDense(len(ns), nil)
		for r, j := range ns {
			a.Set(r, 0, pts[j].x-pts[i].x)
			a.Set(r, 1, pts[j].y-pts[i].y)
			b.SetVec(r, vals[j]-vals[i])
		}
		var g mat.VecDense
		if err := g.SolveVec(a, b); err != nil {
			continue
		}
		if math.IsNaN(g.AtVec(0)) || math.IsNaN(g.AtVec(1)) {
			continue
		}
		grads[i] = [2]float64{g.AtVec(0), g.AtVec(1)}
	}
	return grads
}

// cubicPatch evaluates the cubic Bezier triangle built from vertex values and
// gradients at barycentric weights l. The centre ordinate keeps quadratic precision.
func cubicPatch(p [3]point, f [3]float64, g [3][2]float64, l [3]float64) float64 {
	edgeOrd := func(i, j int) float64 {
		return f[i] + (g[i][0]*(p[j].x-p[i].x)+g[i][1]*(p[j].y-p[i].y))/3
	}
	b210, b201 := edgeOrd(0, 1), edgeOrd(0, 2)
	b120, b021 := edgeOrd(1, 0), edgeOrd(1, 2)
	b102, b012 := edgeOrd(2, 0), edgeOrd(2, 1)
	e := (b210 + b201 + b120 + b021 + b102 + b012) / 6
	v := (f[0] + f[1] + f[2]) / 3
	b111 := e + (e-v)/2

	u, w, z := l[0], l[1], l[2]
	return f[0]*u*u*u + f[1]*w*w*w + f[2]*z*z*z +
		3*b210*u*u*w + 3*b201*u*u*z +
		3*b120*u*w*w + 3*b021*w*w*z +
		3*b102*u*z*z + 3*b012*w*z*z +
		6*b111*u*w*z
}
