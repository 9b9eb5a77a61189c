package smile

import (
	"slices"
	"time"

	"github.com/charlerive/volsurface/quote"
)

// Exclusion records why an expiry produced no smile.
type Exclusion struct {
	Expiry time.Time
	Err    error
}

// ExtractAll builds a smile for every expiry present in rows.
func ExtractAll(rows []quote.Row, forward float64, valuation time.Time, requireLiquidity bool) (map[time.Time]*Smile, []Exclusion) {
	byExpiry := make(map[time.Time][]quote.Row)
	for _, r := range rows {
		d := quote.ExpiryDate(r.Expiry)
		byExpiry[d] = append(byExpiry[d], r)
	}

	smiles := make(map[time.Time]*Smile, len(byExpiry))
	var excluded []Exclusion
	for _, expiry := range quote.Expiries(rows) {
		s, err := Extract(byExpiry[expiry], expiry, forward, valuation, requireLiquidity)
		if err != nil {
			excluded = append(excluded, Exclusion{Expiry: expiry, Err: err})
			continue
		}
		smiles[expiry] = s
	}
	return smiles, excluded
}

// Sorted returns the smiles ordered by expiry.
func Sorted(smiles map[time.Time]*Smile) []*Smile {
	out := make([]*Smile, 0, len(smiles))
	for _, s := range smiles {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *Smile) int { return a.Expiry.Compare(b.Expiry) })
	return out
}
