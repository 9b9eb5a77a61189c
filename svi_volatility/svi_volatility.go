package svi_volatility

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/charlerive/volsurface/smile"
)

const ParamsLen = 5

// SviParams of the raw SVI curve a + b*(rho*(k-m) + sqrt((k-m)^2 + sigma^2)).
// The curve is fitted to implied variance iv^2, not to total variance iv^2*T.
type SviParams struct {
	A     float64 `json:"a"`     // variance level
	B     float64 `json:"b"`     // wing slope
	Rho   float64 `json:"rho"`   // rotation, in [-1, 1]
	M     float64 `json:"m"`     // horizontal shift
	Sigma float64 `json:"sigma"` // smoothness of the vertex, > 0
}

// InitialGuess is the fixed starting point of every fit.
var InitialGuess = SviParams{A: 0.1, B: 0.1, Rho: -0.5, M: 0.0, Sigma: 0.1}

func (s *SviParams) Copy() *SviParams {
	return &SviParams{
		A:     s.A,
		B:     s.B,
		Rho:   s.Rho,
		M:     s.M,
		Sigma: s.Sigma,
	}
}

func (s *SviParams) Vec() []float64 {
	return []float64{s.A, s.B, s.Rho, s.M, s.Sigma}
}

func paramsFromVec(x []float64) *SviParams {
	return &SviParams{
		A:     x[0],
		B:     x[1],
		Rho:   x[2],
		M:     x[3],
		Sigma: x[4],
	}
}

func Variance(k, a, b, rho, m, sigma float64) float64 {
	km := k - m
	return a + b*(rho*km+math.Sqrt(km*km+sigma*sigma))
}

// Variance evaluates the curve at log-moneyness k.
func (s *SviParams) Variance(k float64) float64 {
	return Variance(k, s.A, s.B, s.Rho, s.M, s.Sigma)
}

// ImVol is sqrt of the fitted variance, NaN where the curve goes negative.
func (s *SviParams) ImVol(k float64) float64 {
	v := s.Variance(k)
	if v < 0 {
		return math.NaN()
	}
	return math.Sqrt(v)
}

func TotalVariance(kList []float64, p *SviParams) []float64 {
	res := make([]float64, 0, len(kList))
	for _, k := range kList {
		res = append(res, p.Variance(k))
	}
	return res
}

// LeastSquares is the sum of squared residuals between the curve at x and the observed variances.
func LeastSquares(x, kList, varianceList []float64) float64 {
	vList := TotalVariance(kList, paramsFromVec(x))
	floats.Sub(vList, varianceList)
	return floats.Dot(vList, vList)
}

// SviVolatility is a fitted smile for one expiry.
type SviVolatility struct {
	*SviParams
	ForwardPrice float64
	T            float64 // (expiry - valuation) / 365
}

func NewSviVolatility(forwardPrice float64, T float64) *SviVolatility {
	return &SviVolatility{
		SviParams:    InitialGuess.Copy(),
		ForwardPrice: forwardPrice,
		T:            T,
	}
}

// GetImVol returns the fitted implied vol at a strike.
func (s *SviVolatility) GetImVol(strikePrice float64) float64 {
	return s.ImVol(math.Log(strikePrice / s.ForwardPrice))
}

func (s *SviVolatility) GetVariance(strikePrice float64) float64 {
	return s.Variance(math.Log(strikePrice / s.ForwardPrice))
}

// FitSmile fits the smile's (log-moneyness, iv^2) points.
func FitSmile(sm *smile.Smile, settings FitSettings) (*SviVolatility, error) {
	p, err := Fit(sm.LogMoneyness(), sm.Variances(), settings)
	if err != nil {
		return nil, err
	}
	s := NewSviVolatility(sm.Forward, sm.TimeToExpiry)
	s.SviParams = p
	return s, nil
}
