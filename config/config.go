package config

import (
	"fmt"
	"time"
)

// DateLayout is the layout of every date in the config file.
const DateLayout = time.DateOnly

// Config is the top-level configuration of a surface run.
type Config struct {
	ValuationDate     string       `yaml:"valuation_date"` // empty means today (UTC)
	RiskFreeRate      *float64     `yaml:"risk_free_rate"`
	Forward           float64      `yaml:"forward"` // 0 uses the quoted index spot
	Method            string       `yaml:"method"`
	FitMethod         string       `yaml:"fit_method"`
	RequireLiquidity  *bool        `yaml:"require_liquidity"`
	BackfillIv        bool         `yaml:"backfill_iv"`
	DensityExpiry     string       `yaml:"density_expiry"` // empty means the earliest usable expiry
	SurfaceResolution int          `yaml:"surface_resolution"`
	DensityPoints     int          `yaml:"density_points"`
	SmoothSigma       *float64     `yaml:"smooth_sigma"` // 0 disables smoothing
	MaxIterations     int          `yaml:"max_iterations"`
	Concurrency       int          `yaml:"concurrency"`
	Input             InputConfig  `yaml:"input"`
	Output            OutputConfig `yaml:"output"`
	Database          DBConfig     `yaml:"database"`
}

// InputConfig lists the quote files of a run.
type InputConfig struct {
	Paths  []string `yaml:"paths"`
	Format string   `yaml:"format"`
}

// OutputConfig controls where artifacts are written.
type OutputConfig struct {
	Dir           string `yaml:"dir"`
	NormalizedCSV bool   `yaml:"normalized_csv"`
}

// DBConfig holds PostgreSQL connection settings for quote persistence.
type DBConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Rate returns the risk-free rate.
func (c *Config) Rate() float64 {
	if c.RiskFreeRate == nil {
		return DefaultRiskFreeRate
	}
	return *c.RiskFreeRate
}

// Liquidity reports whether illiquid quotes are filtered out of smiles.
func (c *Config) Liquidity() bool {
	if c.RequireLiquidity == nil {
		return DefaultRequireLiquidity
	}
	return *c.RequireLiquidity
}

// Sigma returns the smoothing width in grid cells.
func (c *Config) Sigma() float64 {
	if c.SmoothSigma == nil {
		return DefaultSmoothSigma
	}
	return *c.SmoothSigma
}

// Valuation parses ValuationDate, falling back to now's UTC date.
func (c *Config) Valuation(now time.Time) (time.Time, error) {
	if c.ValuationDate == "" {
		now = now.UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(DateLayout, c.ValuationDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("valuation_date: %w", err)
	}
	return t, nil
}

// DensityExpiryDate parses DensityExpiry; the zero time means unset.
func (c *Config) DensityExpiryDate() (time.Time, error) {
	if c.DensityExpiry == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, c.DensityExpiry)
	if err != nil {
		return time.Time{}, fmt.Errorf("density_expiry: %w", err)
	}
	return t, nil
}
