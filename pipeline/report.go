package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/charlerive/volsurface/density"
	"github.com/charlerive/volsurface/quote"
	"github.com/charlerive/volsurface/surface"
	"github.com/charlerive/volsurface/svi_volatility"
)

// Stage names the step at which an expiry or artifact was excluded.
type Stage string

const (
	StageParse   Stage = "parse"
	StageSmile   Stage = "smile"
	StageFit     Stage = "fit"
	StageSurface Stage = "surface"
	StageDensity Stage = "density"
)

// Exclusion is one recoverable failure. Expiry is nil when the failure is not tied to an expiry.
type Exclusion struct {
	Expiry *time.Time `json:"expiry,omitempty"`
	Stage  Stage      `json:"stage"`
	Reason string     `json:"reason"`
}

// Fit is one successfully fitted expiry.
type Fit struct {
	Expiry       time.Time                `json:"expiry"`
	TimeToExpiry float64                  `json:"time_to_expiry"`
	Points       int                      `json:"points"`
	Params       svi_volatility.SviParams `json:"params"`
}

// Normalization summarises the quote normalization step.
type Normalization struct {
	Rows       int `json:"rows"`
	Dropped    int `json:"dropped"`
	Merged     int `json:"merged"`
	Backfilled int `json:"backfilled"`
}

// DensitySummary carries the diagnostics of the density curve.
type DensitySummary struct {
	Expiry        time.Time `json:"expiry"`
	TimeToExpiry  float64   `json:"time_to_expiry"`
	Integral      float64   `json:"integral"`
	NegativeCount int       `json:"negative_count"`
}

// Report is everything a run produced. Surface and Density are nil when their
// stage failed; the reason is then listed in Exclusions.
type Report struct {
	RunID         uuid.UUID       `json:"run_id"`
	Valuation     time.Time       `json:"valuation_date"`
	Forward       float64         `json:"forward"`
	Method        Method          `json:"method"`
	Normalization Normalization   `json:"normalization"`
	Expiries      []time.Time     `json:"expiries"`
	Fits          []Fit           `json:"fits,omitempty"`
	Exclusions    []Exclusion     `json:"exclusions"`
	DensityInfo   *DensitySummary `json:"density,omitempty"`

	Surface *surface.Grid  `json:"-"`
	Density *density.Curve `json:"-"`
	Quotes  []quote.Row    `json:"-"`
}

func (r *Report) exclude(expiry *time.Time, stage Stage, err error) {
	r.Exclusions = append(r.Exclusions, Exclusion{Expiry: expiry, Stage: stage, Reason: err.Error()})
}

// ExcludedAt returns the exclusions recorded at one stage.
func (r *Report) ExcludedAt(stage Stage) []Exclusion {
	out := make([]Exclusion, 0)
	for _, e := range r.Exclusions {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}
