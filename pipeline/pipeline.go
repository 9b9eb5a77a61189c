// Package pipeline runs the batch computation: normalize quotes, extract
// smiles, fit SVI per expiry, build the surface and extract one density.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/charlerive/volsurface/density"
	"github.com/charlerive/volsurface/quote"
	"github.com/charlerive/volsurface/smile"
	"github.com/charlerive/volsurface/surface"
	"github.com/charlerive/volsurface/svi_volatility"
)

// Method selects how the surface is built.
type Method string

const (
	Linear Method = "linear"
	Cubic  Method = "cubic"
	SVI    Method = "svi"
)

const DefaultConcurrency = 4

// ParseMethod accepts linear, cubic or svi.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case Linear, Cubic, SVI:
		return m, nil
	case "":
		return Linear, nil
	}
	return "", fmt.Errorf("unknown surface method %q", s)
}

type Options struct {
	Valuation        time.Time
	RiskFreeRate     float64
	Forward          float64 // <= 0 uses the index spot carried by the quotes
	Method           Method
	Fit              svi_volatility.FitSettings
	RequireLiquidity bool
	BackfillIv       bool      // imply missing vols from the bid/ask mid
	DensityExpiry    time.Time // zero picks the earliest usable smile
	Resolution       int
	DensityPoints    int
	SmoothSigma      float64
	Concurrency      int
	Logger           *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Method == "" {
		o.Method = Linear
	}
	if o.Resolution <= 0 {
		o.Resolution = surface.DefaultResolution
	}
	if o.DensityPoints <= 0 {
		o.DensityPoints = density.DefaultPoints
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Fit.Logger == nil {
		o.Fit.Logger = o.Logger
	}
	return o
}

// RunBatch runs the pipeline over a loaded batch and lists its skipped blocks as parse exclusions.
func RunBatch(ctx context.Context, batch *quote.Batch, opts Options) (*Report, error) {
	report, err := Run(ctx, batch.Rows, opts)
	if err != nil {
		return nil, err
	}
	for _, d := range batch.Diagnostics {
		report.exclude(nil, StageParse, d)
	}
	return report, nil
}

// Run computes the surface and density for one batch of quotes. Only missing
// data, an unknown method or cancellation are fatal; every per-expiry failure
// is recorded in the report and the run continues.
func Run(ctx context.Context, rows []quote.Row, opts Options) (*Report, error) {
	opts = opts.withDefaults()
	logger := opts.Logger
	if _, err := ParseMethod(string(opts.Method)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var normOpts []quote.Option
	if opts.BackfillIv {
		normOpts = append(normOpts, quote.WithImpliedVolFromMid(opts.Valuation, opts.RiskFreeRate))
	}
	norm := quote.Normalize(rows, normOpts...)
	if len(norm.Rows) == 0 {
		return nil, fmt.Errorf("no usable quotes among %d rows: %w", len(rows), quote.ErrDataUnavailable)
	}

	forward := opts.Forward
	if forward <= 0 {
		spot, ok := quote.Spot(norm.Rows)
		if !ok {
			return nil, fmt.Errorf("no forward configured and no index spot quoted: %w", quote.ErrDataUnavailable)
		}
		forward = spot
	}

	report := &Report{
		RunID:     uuid.New(),
		Valuation: quote.ExpiryDate(opts.Valuation),
		Forward:   forward,
		Method:    opts.Method,
		Normalization: Normalization{
			Rows:       len(norm.Rows),
			Dropped:    norm.Dropped,
			Merged:     norm.Merged,
			Backfilled: norm.Backfilled,
		},
		Exclusions: make([]Exclusion, 0),
		Quotes:     norm.Rows,
	}
	logger = logger.With("run_id", report.RunID.String())
	logger.Info("quotes normalized",
		"rows", len(norm.Rows),
		"dropped", norm.Dropped,
		"merged", norm.Merged,
		"backfilled", norm.Backfilled,
		"forward", forward,
	)

	byExpiry, excluded := smile.ExtractAll(norm.Rows, forward, opts.Valuation, opts.RequireLiquidity)
	for _, e := range excluded {
		expiry := e.Expiry
		report.exclude(&expiry, StageSmile, e.Err)
		logger.Warn("expiry excluded", "stage", StageSmile, "expiry", expiry.Format(time.DateOnly), "error", e.Err)
	}
	smiles := smile.Sorted(byExpiry)
	for _, s := range smiles {
		report.Expiries = append(report.Expiries, s.Expiry)
	}

	if opts.Method == SVI {
		fits, err := fitAll(ctx, smiles, opts, report, logger)
		if err != nil {
			return nil, err
		}
		buildModelSurface(fits, opts, report, logger)
	} else {
		buildScatterSurface(smiles, opts, report, logger)
	}

	buildDensity(byExpiry, smiles, opts, report, logger)

	logger.Info("run complete",
		"method", opts.Method,
		"expiries", len(smiles),
		"fits", len(report.Fits),
		"exclusions", len(report.Exclusions),
		"surface", report.Surface != nil,
		"density", report.Density != nil,
	)
	return report, nil
}

type fitted struct {
	smile *smile.Smile
	model *svi_volatility.SviVolatility
}

// fitAll fits every smile concurrently. Results keep smile order.
func fitAll(ctx context.Context, smiles []*smile.Smile, opts Options, report *Report, logger *slog.Logger) ([]fitted, error) {
	models := make([]*svi_volatility.SviVolatility, len(smiles))
	errs := make([]error, len(smiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, sm := range smiles {
		i, sm := i, sm
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			models[i], errs[i] = svi_volatility.FitSmile(sm, opts.Fit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]fitted, 0, len(smiles))
	for i, sm := range smiles {
		expiry := sm.Expiry
		if errs[i] != nil {
			report.exclude(&expiry, StageFit, errs[i])
			logger.Warn("expiry excluded", "stage", StageFit, "expiry", expiry.Format(time.DateOnly), "error", errs[i])
			continue
		}
		report.Fits = append(report.Fits, Fit{
			Expiry:       expiry,
			TimeToExpiry: sm.TimeToExpiry,
			Points:       sm.Len(),
			Params:       *models[i].SviParams,
		})
		out = append(out, fitted{smile: sm, model: models[i]})
	}
	return out, nil
}

func buildModelSurface(fits []fitted, opts Options, report *Report, logger *slog.Logger) {
	if len(fits) == 0 {
		report.exclude(nil, StageSurface, fmt.Errorf("no fitted expiry: %w", surface.ErrNoData))
		return
	}
	rows := make([]surface.ModelRow, len(fits))
	smiles := make([]*smile.Smile, len(fits))
	for i, f := range fits {
		rows[i] = surface.ModelRow{TimeToExpiry: f.smile.TimeToExpiry, Params: f.model.SviParams}
		smiles[i] = f.smile
	}
	moneyness, err := surface.MoneynessAxis(smiles, opts.Resolution)
	if err == nil {
		report.Surface, err = surface.FromModel(rows, moneyness)
	}
	if err != nil {
		report.exclude(nil, StageSurface, err)
		logger.Warn("surface not built", "method", opts.Method, "error", err)
	}
}

func buildScatterSurface(smiles []*smile.Smile, opts Options, report *Report, logger *slog.Logger) {
	g, err := surface.Scatter(smiles, surface.ScatterOptions{
		Method:      surface.Method(opts.Method),
		Resolution:  opts.Resolution,
		SmoothSigma: opts.SmoothSigma,
	})
	if err != nil {
		report.exclude(nil, StageSurface, err)
		logger.Warn("surface not built", "method", opts.Method, "error", err)
		return
	}
	report.Surface = g
}

func buildDensity(byExpiry map[time.Time]*smile.Smile, smiles []*smile.Smile, opts Options, report *Report, logger *slog.Logger) {
	var sm *smile.Smile
	if opts.DensityExpiry.IsZero() {
		if len(smiles) > 0 {
			sm = smiles[0]
		}
	} else {
		sm = byExpiry[quote.ExpiryDate(opts.DensityExpiry)]
	}
	if sm == nil {
		var expiry *time.Time
		if !opts.DensityExpiry.IsZero() {
			d := quote.ExpiryDate(opts.DensityExpiry)
			expiry = &d
		}
		report.exclude(expiry, StageDensity, errors.New("no usable smile for the density expiry"))
		return
	}

	expiry := sm.Expiry
	curve, err := density.FromSmile(sm, opts.RiskFreeRate, density.WithPoints(opts.DensityPoints))
	if err != nil {
		report.exclude(&expiry, StageDensity, err)
		logger.Warn("density not extracted", "expiry", expiry.Format(time.DateOnly), "error", err)
		return
	}
	report.Density = curve
	report.DensityInfo = &DensitySummary{
		Expiry:        expiry,
		TimeToExpiry:  sm.TimeToExpiry,
		Integral:      curve.Integral(),
		NegativeCount: curve.NegativeCount(),
	}
	if n := curve.NegativeCount(); n > 0 {
		logger.Warn("density has negative values", "expiry", expiry.Format(time.DateOnly), "points", n)
	}
}
