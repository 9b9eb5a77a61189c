// Package surface builds implied volatility surfaces on a regular
// (moneyness, time-to-expiry) grid, either by interpolating scattered smile
// points or by evaluating fitted SVI smiles.
package surface

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrDegenerateAxis means an axis would not be strictly increasing,
	// e.g. every point shares one expiry.
	ErrDegenerateAxis = errors.New("degenerate surface axis")

	// ErrNoData means there was nothing to build a surface from.
	ErrNoData = errors.New("no surface data")
)

// Grid holds Values[t][m] for Time[t] and Moneyness[m]. Undefined cells are NaN.
type Grid struct {
	Moneyness []float64
	Time      []float64
	Values    [][]float64
}

// NewGrid allocates a NaN-filled grid over the given axes.
func NewGrid(moneyness, time []float64) *Grid {
	values := make([][]float64, len(time))
	for i := range values {
		row := make([]float64, len(moneyness))
		for j := range row {
			row[j] = math.NaN()
		}
		values[i] = row
	}
	return &Grid{Moneyness: moneyness, Time: time, Values: values}
}

// Shape returns (len(Time), len(Moneyness)).
func (g *Grid) Shape() (int, int) {
	return len(g.Time), len(g.Moneyness)
}

// Validate checks that both axes strictly increase and Values matches them.
func (g *Grid) Validate() error {
	if err := strictlyIncreasing("moneyness", g.Moneyness); err != nil {
		return err
	}
	if err := strictlyIncreasing("time", g.Time); err != nil {
		return err
	}
	if len(g.Values) != len(g.Time) {
		return fmt.Errorf("values has %d rows, time axis %d", len(g.Values), len(g.Time))
	}
	for i, row := range g.Values {
		if len(row) != len(g.Moneyness) {
			return fmt.Errorf("values row %d has %d columns, moneyness axis %d", i, len(row), len(g.Moneyness))
		}
	}
	return nil
}

// Defined counts the non-NaN cells.
func (g *Grid) Defined() int {
	n := 0
	for _, row := range g.Values {
		for _, v := range row {
			if !math.IsNaN(v) {
				n++
			}
		}
	}
	return n
}

// Linspace returns n evenly spaced samples over [lo, hi].
func Linspace(lo, hi float64, n int) []float64 {
	switch {
	case n < 1:
		return nil
	case n == 1:
		return []float64{lo}
	}
	xs := floats.Span(make([]float64, n), lo, hi)
	xs[n-1] = hi
	return xs
}

func axis(name string, lo, hi float64, n int) ([]float64, error) {
	if n < 2 {
		return nil, fmt.Errorf("%s axis resolution %d: %w", name, n, ErrDegenerateAxis)
	}
	if !(hi > lo) {
		return nil, fmt.Errorf("%s axis spans [%v, %v]: %w", name, lo, hi, ErrDegenerateAxis)
	}
	return Linspace(lo, hi, n), nil
}

func strictlyIncreasing(name string, xs []float64) error {
	if len(xs) == 0 {
		return fmt.Errorf("%s axis empty: %w", name, ErrDegenerateAxis)
	}
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return fmt.Errorf("%s axis not increasing at %d: %w", name, i, ErrDegenerateAxis)
		}
	}
	return nil
}

type gridJSON struct {
	Moneyness []float64    `json:"moneyness"`
	Time      []float64    `json:"time_to_expiry"`
	Values    [][]*float64 `json:"implied_vol"`
}

// MarshalJSON writes undefined cells as null.
func (g *Grid) MarshalJSON() ([]byte, error) {
	out := gridJSON{
		Moneyness: g.Moneyness,
		Time:      g.Time,
		Values:    make([][]*float64, len(g.Values)),
	}
	for i, row := range g.Values {
		r := make([]*float64, len(row))
		for j := range row {
			if !math.IsNaN(row[j]) && !math.IsInf(row[j], 0) {
				r[j] = &row[j]
			}
		}
		out.Values[i] = r
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads null cells back as NaN.
func (g *Grid) UnmarshalJSON(data []byte) error {
	var in gridJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	g.Moneyness, g.Time = in.Moneyness, in.Time
	g.Values = make([][]float64, len(in.Values))
	for i, row := range in.Values {
		r := make([]float64, len(row))
		for j, v := range row {
			if v == nil {
				r[j] = math.NaN()
			} else {
				r[j] = *v
			}
		}
		g.Values[i] = r
	}
	return nil
}
