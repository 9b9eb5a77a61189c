package config

// Default values for optional configuration fields.
const (
	DefaultRiskFreeRate      = 0.01
	DefaultMethod            = "linear"
	DefaultFitMethod         = "neldermead"
	DefaultRequireLiquidity  = true
	DefaultSurfaceResolution = 200
	DefaultDensityPoints     = 500
	DefaultSmoothSigma       = 1.5
	DefaultMaxIterations     = 5000
	DefaultConcurrency       = 4
	DefaultInputFormat       = "long"
	DefaultOutputDir         = "out"
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
)

func (c *Config) applyDefaults() {
	if c.RiskFreeRate == nil {
		r := DefaultRiskFreeRate
		c.RiskFreeRate = &r
	}
	if c.Method == "" {
		c.Method = DefaultMethod
	}
	if c.FitMethod == "" {
		c.FitMethod = DefaultFitMethod
	}
	if c.RequireLiquidity == nil {
		l := DefaultRequireLiquidity
		c.RequireLiquidity = &l
	}
	if c.SurfaceResolution == 0 {
		c.SurfaceResolution = DefaultSurfaceResolution
	}
	if c.DensityPoints == 0 {
		c.DensityPoints = DefaultDensityPoints
	}
	if c.SmoothSigma == nil {
		s := DefaultSmoothSigma
		c.SmoothSigma = &s
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}

	// Input / output defaults
	if c.Input.Format == "" {
		c.Input.Format = DefaultInputFormat
	}
	if c.Output.Dir == "" {
		c.Output.Dir = DefaultOutputDir
	}

	applyDBDefaults(&c.Database)
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
