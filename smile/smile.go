// Package smile builds per-expiry implied volatility smiles from normalized quotes.
//
// A smile keeps only the out-of-the-money side of the chain: calls struck
// above the forward and puts struck below it. Quotes struck exactly at the
// forward are dropped from both sides.
package smile

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/charlerive/volsurface/quote"
)

var (
	// ErrEmptySmile means no out-of-the-money (and, if required, liquid) quote survived.
	ErrEmptySmile = errors.New("empty smile")

	// ErrExpired means the expiry is on or before the valuation date.
	ErrExpired = errors.New("expiry not after valuation date")
)

// Smile is the implied volatility curve of one expiry. Strikes are strictly increasing.
type Smile struct {
	Expiry       time.Time
	Strikes      []float64
	ImpliedVols  []float64
	Forward      float64
	TimeToExpiry float64
}

// Len is the number of points on the smile.
func (s *Smile) Len() int {
	return len(s.Strikes)
}

// Moneyness returns strike / forward for every point.
func (s *Smile) Moneyness() []float64 {
	out := make([]float64, len(s.Strikes))
	for i, k := range s.Strikes {
		out[i] = k / s.Forward
	}
	return out
}

// LogMoneyness returns ln(strike / forward) for every point.
func (s *Smile) LogMoneyness() []float64 {
	out := make([]float64, len(s.Strikes))
	for i, k := range s.Strikes {
		out[i] = math.Log(k / s.Forward)
	}
	return out
}

// Variances returns the squared implied vols.
func (s *Smile) Variances() []float64 {
	out := make([]float64, len(s.ImpliedVols))
	for i, v := range s.ImpliedVols {
		out[i] = v * v
	}
	return out
}

// Extract builds the smile for one expiry from normalized rows. Rows of other
// expiries are ignored. When requireLiquidity is set, rows also need volume and open interest.
func Extract(rows []quote.Row, expiry time.Time, forward float64, valuation time.Time, requireLiquidity bool) (*Smile, error) {
	if !(forward > 0) {
		return nil, fmt.Errorf("forward %v must be positive", forward)
	}
	expiry = quote.ExpiryDate(expiry)
	tte := quote.TimeToExpiry(expiry, valuation)
	if tte <= 0 {
		return nil, fmt.Errorf("%s: %w", expiry.Format(time.DateOnly), ErrExpired)
	}

	strikes := make([]float64, 0)
	vols := make([]float64, 0)
	for _, r := range rows {
		if !quote.ExpiryDate(r.Expiry).Equal(expiry) || !r.Usable() {
			continue
		}
		if !otm(r, forward) {
			continue
		}
		if requireLiquidity && !r.Liquid() {
			continue
		}
		strikes = append(strikes, r.Strike)
		vols = append(vols, r.ImpliedVol)
	}
	if len(strikes) == 0 {
		return nil, fmt.Errorf("%s: %w", expiry.Format(time.DateOnly), ErrEmptySmile)
	}

	strikes, vols = Dedup(strikes, vols)
	return &Smile{
		Expiry:       expiry,
		Strikes:      strikes,
		ImpliedVols:  vols,
		Forward:      forward,
		TimeToExpiry: tte,
	}, nil
}

func otm(r quote.Row, forward float64) bool {
	switch r.Type {
	case quote.Call:
		return r.Strike > forward
	case quote.Put:
		return r.Strike < forward
	}
	return false
}

// Dedup sorts points by strike and replaces repeated strikes with one point at their mean vol.
func Dedup(strikes, vols []float64) ([]float64, []float64) {
	idx := make([]int, len(strikes))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		switch {
		case strikes[a] < strikes[b]:
			return -1
		case strikes[a] > strikes[b]:
			return 1
		}
		return 0
	})

	outK := make([]float64, 0, len(strikes))
	outV := make([]float64, 0, len(vols))
	for i := 0; i < len(idx); {
		j := i
		group := make([]float64, 0, 1)
		for j < len(idx) && strikes[idx[j]] == strikes[idx[i]] {
			group = append(group, vols[idx[j]])
			j++
		}
		outK = append(outK, strikes[idx[i]])
		outV = append(outV, stat.Mean(group, nil))
		i = j
	}
	return outK, outV
}
