package surface

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/charlerive/volsurface/smile"
	"github.com/charlerive/volsurface/svi_volatility"
)

// ModelRow is one fitted expiry.
type ModelRow struct {
	TimeToExpiry float64
	Params       *svi_volatility.SviParams
}

// MoneynessAxis spans the strike/forward range of all smiles with n samples.
func MoneynessAxis(smiles []*smile.Smile, n int) ([]float64, error) {
	ms := make([]float64, 0)
	for _, s := range smiles {
		ms = append(ms, s.Moneyness()...)
	}
	if len(ms) == 0 {
		return nil, ErrNoData
	}
	return axis("moneyness", floats.Min(ms), floats.Max(ms), n)
}

// FromModel evaluates each fitted smile along the moneyness axis, one grid row
// per expiry sorted by time to expiry. A single row is a valid surface.
// Cells where the fitted variance is negative are NaN.
func FromModel(rows []ModelRow, moneyness []float64) (*Grid, error) {
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	if err := strictlyIncreasing("moneyness", moneyness); err != nil {
		return nil, err
	}
	sorted := slices.Clone(rows)
	slices.SortFunc(sorted, func(a, b ModelRow) int {
		switch {
		case a.TimeToExpiry < b.TimeToExpiry:
			return -1
		case a.TimeToExpiry > b.TimeToExpiry:
			return 1
		}
		return 0
	})

	times := make([]float64, len(sorted))
	for i, r := range sorted {
		if r.Params == nil {
			return nil, fmt.Errorf("model row %d has no parameters", i)
		}
		times[i] = r.TimeToExpiry
	}
	if err := strictlyIncreasing("time", times); err != nil {
		return nil, err
	}

	g := NewGrid(moneyness, times)
	for i, r := range sorted {
		for j, m := range moneyness {
			g.Values[i][j] = r.Params.ImVol(math.Log(m))
		}
	}
	return g, nil
}
