// Package density recovers the risk-neutral density of the underlying at one
// expiry from an implied volatility smile (Breeden-Litzenberger).
package density

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/interp"

	"github.com/charlerive/volsurface/blackscholes"
	"github.com/charlerive/volsurface/smile"
)

// ErrInsufficientInput means fewer than two distinct strikes were supplied.
var ErrInsufficientInput = errors.New("density needs at least two distinct strikes")

const DefaultPoints = 500

// Curve is the density sampled on an evenly spaced strike grid.
// Negative values are interpolation artifacts and are kept as computed.
type Curve struct {
	Strikes []float64 `json:"strikes"`
	Density []float64 `json:"density"`
}

// Integral is the trapezoidal area under the curve.
func (c *Curve) Integral() float64 {
	if len(c.Strikes) < 2 {
		return 0
	}
	return integrate.Trapezoidal(c.Strikes, c.Density)
}

// NegativeCount counts grid points with negative density.
func (c *Curve) NegativeCount() int {
	n := 0
	for _, d := range c.Density {
		if d < 0 {
			n++
		}
	}
	return n
}

type settings struct {
	points int
}

type Option func(*settings)

// WithPoints sets the number of strike grid points (at least 3).
func WithPoints(n int) Option {
	return func(s *settings) {
		if n >= 3 {
			s.points = n
		}
	}
}

// FromSmile extracts the density of one smile.
func FromSmile(sm *smile.Smile, rate float64, opts ...Option) (*Curve, error) {
	return Extract(sm.Strikes, sm.ImpliedVols, sm.Forward, sm.TimeToExpiry, rate, opts...)
}

// Extract interpolates vols across strikes, prices Black calls on a fine
// strike grid over [min strike, max strike], and returns e^{rT} d²C/dK².
func Extract(strikes, vols []float64, forward, T, rate float64, opts ...Option) (*Curve, error) {
	s := settings{points: DefaultPoints}
	for _, o := range opts {
		o(&s)
	}
	if len(strikes) != len(vols) {
		return nil, fmt.Errorf("%d strikes but %d vols", len(strikes), len(vols))
	}
	if !(T > 0) {
		return nil, fmt.Errorf("time to expiry %v must be positive", T)
	}
	if !(forward > 0) {
		return nil, fmt.Errorf("forward %v must be positive", forward)
	}

	ks := make([]float64, 0, len(strikes))
	vs := make([]float64, 0, len(vols))
	for i := range strikes {
		if math.IsNaN(strikes[i]) || math.IsNaN(vols[i]) || strikes[i] <= 0 {
			continue
		}
		ks = append(ks, strikes[i])
		vs = append(vs, vols[i])
	}
	ks, vs = smile.Dedup(ks, vs)
	if len(ks) < 2 {
		return nil, fmt.Errorf("%d distinct strikes: %w", len(ks), ErrInsufficientInput)
	}

	vol := smileInterpolator(ks, vs)
	grid := floats.Span(make([]float64, s.points), ks[0], ks[len(ks)-1])
	prices := make([]float64, len(grid))
	for i, k := range grid {
		prices[i] = blackscholes.BlackCall(forward, k, T, rate, vol.Predict(k))
	}

	d2 := Gradient(Gradient(prices, grid), grid)
	floats.Scale(math.Exp(rate*T), d2)
	return &Curve{Strikes: grid, Density: d2}, nil
}

// smileInterpolator picks the richest spline the strike count supports.
func smileInterpolator(ks, vs []float64) interp.Predictor {
	if len(ks) >= 4 {
		var nak interp.NotAKnotCubic
		if err := nak.Fit(ks, vs); err == nil {
			return &nak
		}
	}
	if len(ks) >= 3 {
		var nc interp.NaturalCubic
		if err := nc.Fit(ks, vs); err == nil {
			return &nc
		}
	}
	var pl interp.PiecewiseLinear
	_ = pl.Fit(ks, vs)
	return &pl
}

// Gradient is the numerical derivative of y over the (possibly uneven) grid x:
// second-order central differences inside and one-sided differences at both ends.
func Gradient(y, x []float64) []float64 {
	n := len(y)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	out[0] = (y[1] - y[0]) / (x[1] - x[0])
	out[n-1] = (y[n-1] - y[n-2]) / (x[n-1] - x[n-2])
	for i := 1; i < n-1; i++ {
		hs := x[i] - x[i-1]
		hd := x[i+1] - x[i]
		out[i] = (hs*hs*y[i+1] + (hd*hd-hs*hs)*y[i] - hd*hd*y[i-1]) / (hs * hd * (hd + hs))
	}
	return out
}
