package config

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if _, err := c.Valuation(time.Now()); err != nil {
		return err
	}
	if _, err := c.DensityExpiryDate(); err != nil {
		return err
	}
	if r := c.Rate(); math.IsNaN(r) || math.IsInf(r, 0) {
		return fmt.Errorf("risk_free_rate must be finite, got %v", r)
	}
	if c.Forward < 0 || math.IsNaN(c.Forward) {
		return fmt.Errorf("forward must be >= 0, got %v", c.Forward)
	}

	switch c.Method {
	case "linear", "cubic", "svi":
	default:
		return fmt.Errorf("method must be linear, cubic or svi, got %q", c.Method)
	}
	switch c.FitMethod {
	case "neldermead", "bobyqa":
	default:
		return fmt.Errorf("fit_method must be neldermead or bobyqa, got %q", c.FitMethod)
	}

	if c.SurfaceResolution < 2 {
		return errors.New("surface_resolution must be >= 2")
	}
	if c.DensityPoints < 3 {
		return errors.New("density_points must be >= 3")
	}
	if c.Sigma() < 0 {
		return errors.New("smooth_sigma must be >= 0")
	}
	if c.MaxIterations < 1 {
		return errors.New("max_iterations must be >= 1")
	}
	if c.Concurrency < 1 {
		return errors.New("concurrency must be >= 1")
	}

	switch c.Input.Format {
	case "long", "cboe":
	default:
		return fmt.Errorf("input.format must be long or cboe, got %q", c.Input.Format)
	}

	if c.Database.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
