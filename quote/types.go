package quote

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// OptionType is the side of the chain a quote belongs to.
type OptionType int

const (
	Call OptionType = iota + 1
	Put
)

func (t OptionType) String() string {
	switch t {
	case Call:
		return "Call"
	case Put:
		return "Put"
	default:
		return "Unknown"
	}
}

// ParseOptionType accepts Call/Put in any case and the single-letter forms.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return Call, nil
	case "put", "p":
		return Put, nil
	}
	return 0, fmt.Errorf("unknown option type %q", s)
}

// AbsentCount marks a missing volume or open interest.
const AbsentCount int64 = -1

// Row is one canonical quote. Missing float fields are NaN, missing counts are AbsentCount.
type Row struct {
	Expiry       time.Time
	Strike       float64
	Bid          float64
	Ask          float64
	ImpliedVol   float64
	Volume       int64
	OpenInterest int64
	Type         OptionType
	IndexSpot    float64
}

// Usable reports whether the row survives normalization.
func (r Row) Usable() bool {
	return !math.IsNaN(r.Strike) && r.Strike > 0 &&
		!math.IsNaN(r.ImpliedVol) && r.ImpliedVol >= 0
}

// Liquid reports whether the row traded and has open interest.
func (r Row) Liquid() bool {
	return r.Volume > 0 && r.OpenInterest > 0
}

// Mid is the bid/ask midpoint, NaN when either side is missing.
func (r Row) Mid() float64 {
	if math.IsNaN(r.Bid) || math.IsNaN(r.Ask) {
		return math.NaN()
	}
	return (r.Bid + r.Ask) / 2
}

// ExpiryDate truncates t to its calendar date in UTC.
func ExpiryDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// TimeToExpiry is whole calendar days between valuation and expiry over 365.
func TimeToExpiry(expiry, valuation time.Time) float64 {
	days := ExpiryDate(expiry).Sub(ExpiryDate(valuation)).Hours() / 24
	return math.Round(days) / 365
}

// Expiries returns the distinct expiry dates in rows, ascending.
func Expiries(rows []Row) []time.Time {
	seen := make(map[time.Time]struct{})
	out := make([]time.Time, 0)
	for _, r := range rows {
		d := ExpiryDate(r.Expiry)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sortTimes(out)
	return out
}

// Spot returns the first positive IndexSpot in rows.
func Spot(rows []Row) (float64, bool) {
	for _, r := range rows {
		if !math.IsNaN(r.IndexSpot) && r.IndexSpot > 0 {
			return r.IndexSpot, true
		}
	}
	return 0, false
}
