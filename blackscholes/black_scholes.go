package blackscholes

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

const MaxExecTimes = 100

const (
	Call = "c"
	Put  = "p"
)

// Black model on a forward price.
// see wiki: https://en.wikipedia.org/wiki/Black_model
type BSM struct {
	D         string  `json:"direction"`     // c or p
	F         float64 `json:"forward_price"` // forward (or index level used as forward)
	X         float64 `json:"strike_price"`
	T         float64 `json:"rest_time"`  // (expiry - valuation) / 365
	R         float64 `json:"price_rate"` // flat risk-free rate
	Iv        float64 `json:"volatility"`
	IvMax     float64 `json:"iv_max"`
	IvMin     float64 `json:"iv_min"`
	Op        float64 `json:"option_price"`
	OpEpsilon float64 `json:"op_epsilon"`
	D1        float64 `json:"d1"`
	Nd1       float64 `json:"nd1"`
	D2        float64 `json:"d2"`
	Delta     float64 `json:"delta"`
	Gamma     float64 `json:"gamma"`
	Vega      float64 `json:"vega"`
}

// NewBS solves the implied volatility of op by bisection and computes the greeks at it.
func NewBS(direction string, F float64, X float64, T float64, r float64, op float64, opEpsilon float64, ivMax float64, ivMin float64) *BSM {
	bsm := BSM{
		D:         strings.ToLower(direction),
		F:         F,
		X:         X,
		T:         T,
		R:         r,
		Op:        op,
		OpEpsilon: opEpsilon,
		IvMax:     ivMax,
		IvMin:     ivMin,
	}
	bsm.init()
	return &bsm
}

func NewBSWithIv(direction string, F float64, X float64, T float64, r float64, iv float64) *BSM {
	bsm := BSM{
		D:  strings.ToLower(direction),
		F:  F,
		X:  X,
		T:  T,
		R:  r,
		Iv: iv,
	}
	bsm.init()
	bsm.Op = bsm.GetOptionPriceFromIv(iv)
	return &bsm
}

func (bsm *BSM) init() {
	if bsm.Iv == 0 {
		bsm.ImVolBisection()
	}
	if bsm.Iv <= 0 {
		return
	}

	bsm.calcD1()
	bsm.calcD2()
	bsm.calcNd1()
	bsm.calcDelta()
	bsm.calcGamma()
	bsm.calcVega()
}

// ImVolBisection inverts the price with a secant start followed by plain bisection.
func (bsm *BSM) ImVolBisection() {
	ivMax, ivMin := bsm.IvMax, bsm.IvMin
	opMax, opMin := 0.0, 0.0
	opEpsilon := bsm.OpEpsilon
	if opEpsilon <= 0 {
		opEpsilon = 0.000001
	}

	if bsm.Op < opEpsilon {
		bsm.Iv = 0
		return
	}

	opMax = bsm.GetOptionPriceFromIv(ivMax)
	if bsm.Op > opMax-opEpsilon {
		bsm.Iv = ivMax
		return
	}
	opMin = bsm.GetOptionPriceFromIv(ivMin)
	if bsm.Op < opMin+opEpsilon {
		bsm.Iv = ivMin
		return
	}

	execCount := 0
	iv := (ivMax + ivMin) / 2
	op := bsm.GetOptionPriceFromIv(iv)
	for math.Abs(bsm.Op-op) > opEpsilon && execCount < MaxExecTimes {
		execCount++

		if op < bsm.Op {
			ivMin = iv
			opMin = op
		} else {
			ivMax = iv
			opMax = op
		}

		if execCount > 5 {
			iv = (ivMax + ivMin) / 2
		} else {
			iv = ivMin + (bsm.Op-opMin)*(ivMax-ivMin)/(opMax-opMin)
		}
		op = bsm.GetOptionPriceFromIv(iv)
	}
	bsm.Iv = iv
}

// GetOptionPriceFromIv prices the option at iv, leaving d1/d2 set for that vol.
func (bsm *BSM) GetOptionPriceFromIv(iv float64) (optionPrice float64) {
	bsm.Iv = iv
	bsm.calcD1()
	bsm.calcD2()
	df := math.Exp(-bsm.R * bsm.T)
	if bsm.D == Call {
		optionPrice = df * (bsm.F*Cdf(bsm.D1) - bsm.X*Cdf(bsm.D2))
	} else if bsm.D == Put {
		optionPrice = df * (bsm.X*Cdf(-bsm.D2) - bsm.F*Cdf(-bsm.D1))
	}
	return
}

// DualGamma is the second derivative of the price with respect to the strike.
func (bsm *BSM) DualGamma() float64 {
	return math.Exp(-bsm.R*bsm.T) * Pdf(bsm.D2) / (bsm.X * bsm.Iv * math.Sqrt(bsm.T))
}

func (bsm *BSM) calcD1() {
	bsm.D1 = (math.Log(bsm.F/bsm.X) + 0.5*bsm.Iv*bsm.Iv*bsm.T) / (bsm.Iv * math.Sqrt(bsm.T))
}

func (bsm *BSM) calcD2() {
	bsm.D2 = bsm.D1 - bsm.Iv*math.Sqrt(bsm.T)
}

func (bsm *BSM) calcNd1() {
	bsm.Nd1 = Pdf(bsm.D1)
}

func (bsm *BSM) calcDelta() {
	df := math.Exp(-bsm.R * bsm.T)
	if bsm.D == Call {
		bsm.Delta = df * Cdf(bsm.D1)
	} else if bsm.D == Put {
		bsm.Delta = df * (Cdf(bsm.D1) - 1)
	}
}

func (bsm *BSM) calcGamma() {
	bsm.Gamma = math.Exp(-bsm.R*bsm.T) * bsm.Nd1 / (bsm.F * bsm.Iv * math.Sqrt(bsm.T))
}

func (bsm *BSM) calcVega() {
	bsm.Vega = math.Exp(-bsm.R*bsm.T) * bsm.F * math.Sqrt(bsm.T) * bsm.Nd1 / 100
}

// BlackCall is the discounted Black call price e^{-rT}(F N(d1) - K N(d2)).
// A non-positive vol or expiry collapses to discounted intrinsic value.
func BlackCall(F, K, T, r, sigma float64) float64 {
	df := math.Exp(-r * T)
	if sigma <= 0 || T <= 0 {
		return df * math.Max(F-K, 0)
	}
	sd := sigma * math.Sqrt(T)
	d1 := (math.Log(F/K) + 0.5*sigma*sigma*T) / sd
	d2 := d1 - sd
	return df * (F*Cdf(d1) - K*Cdf(d2))
}

// Cdf is the standard normal cumulative distribution.
func Cdf(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

func Pdf(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}
