package quote

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/charlerive/volsurface/blackscholes"
)

// Bisection bracket used when implying a vol from the quoted mid.
const (
	backfillIvMin = 0.001
	backfillIvMax = 5.0
)

// Result is the outcome of Normalize.
type Result struct {
	Rows       []Row
	Dropped    int // rows without a usable strike or implied vol
	Merged     int // rows folded into a duplicate (expiry, strike, type)
	Backfilled int // implied vols recovered from the bid/ask mid
}

type normalizer struct {
	backfill  bool
	valuation time.Time
	rate      float64
}

type Option func(*normalizer)

// WithImpliedVolFromMid implies a missing vol from the bid/ask mid with the Black model,
// using the row's IndexSpot as forward.
func WithImpliedVolFromMid(valuation time.Time, rate float64) Option {
	return func(n *normalizer) {
		n.backfill = true
		n.valuation = valuation
		n.rate = rate
	}
}

type groupKey struct {
	expiry time.Time
	strike string
	typ    OptionType
}

// Normalize drops unusable rows and collapses duplicate (expiry, strike, type)
// quotes into one row carrying the mean implied vol. Output is ordered by expiry, type, strike.
func Normalize(rows []Row, opts ...Option) Result {
	n := &normalizer{}
	for _, opt := range opts {
		opt(n)
	}

	var res Result
	groups := make(map[groupKey]int)
	vols := make([][]float64, 0)
	out := make([]Row, 0, len(rows))

	for _, r := range rows {
		r.Expiry = ExpiryDate(r.Expiry)
		if n.backfill && math.IsNaN(r.ImpliedVol) {
			if iv, ok := n.impliedFromMid(r); ok {
				r.ImpliedVol = iv
				res.Backfilled++
			}
		}
		if !r.Usable() {
			res.Dropped++
			continue
		}

		key := groupKey{expiry: r.Expiry, strike: strikeKey(r.Strike), typ: r.Type}
		if i, ok := groups[key]; ok {
			vols[i] = append(vols[i], r.ImpliedVol)
			out[i].Volume = max(out[i].Volume, r.Volume)
			out[i].OpenInterest = max(out[i].OpenInterest, r.OpenInterest)
			res.Merged++
			continue
		}
		groups[key] = len(out)
		out = append(out, r)
		vols = append(vols, []float64{r.ImpliedVol})
	}

	for i := range out {
		if len(vols[i]) > 1 {
			out[i].ImpliedVol = stat.Mean(vols[i], nil)
		}
	}
	slices.SortFunc(out, func(a, b Row) int {
		if c := a.Expiry.Compare(b.Expiry); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Type, b.Type); c != 0 {
			return c
		}
		return cmp.Compare(a.Strike, b.Strike)
	})
	res.Rows = out
	return res
}

func (n *normalizer) impliedFromMid(r Row) (float64, bool) {
	mid := r.Mid()
	T := TimeToExpiry(r.Expiry, n.valuation)
	if math.IsNaN(mid) || mid <= 0 || T <= 0 || math.IsNaN(r.IndexSpot) || r.IndexSpot <= 0 || !(r.Strike > 0) {
		return 0, false
	}
	direction := blackscholes.Call
	if r.Type == Put {
		direction = blackscholes.Put
	}
	bsm := blackscholes.NewBS(direction, r.IndexSpot, r.Strike, T, n.rate, mid, 1e-8, backfillIvMax, backfillIvMin)
	if bsm.Iv <= backfillIvMin || bsm.Iv >= backfillIvMax {
		return 0, false
	}
	return bsm.Iv, true
}

// strikeKey is the shortest decimal form of a strike, used as an exact grouping key.
func strikeKey(strike float64) string {
	return decimal.NewFromFloat(strike).String()
}

func sortTimes(ts []time.Time) {
	slices.SortFunc(ts, func(a, b time.Time) int { return a.Compare(b) })
}
