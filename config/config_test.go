package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
valuation_date: 2025-03-14
risk_free_rate: 0.0425
method: svi
fit_method: bobyqa
input:
  paths:
    - data/spx_quotedata.csv
  format: cboe
output:
  dir: results
  normalized_csv: true
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ValuationDate != "2025-03-14" {
		t.Errorf("ValuationDate = %q, want %q", cfg.ValuationDate, "2025-03-14")
	}
	if cfg.Rate() != 0.0425 {
		t.Errorf("Rate() = %v, want 0.0425", cfg.Rate())
	}
	if cfg.Method != "svi" || cfg.FitMethod != "bobyqa" {
		t.Errorf("Method/FitMethod = %q/%q", cfg.Method, cfg.FitMethod)
	}
	if len(cfg.Input.Paths) != 1 || cfg.Input.Format != "cboe" {
		t.Errorf("Input = %+v", cfg.Input)
	}
	if !cfg.Output.NormalizedCSV || cfg.Output.Dir != "results" {
		t.Errorf("Output = %+v", cfg.Output)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
database:
  enabled: true
  host: localhost
  name: quotes
  user: testuser
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "forward: 5066.5\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Forward != 5066.5 {
		t.Errorf("Forward = %v, want 5066.5", cfg.Forward)
	}
	if cfg.Rate() != DefaultRiskFreeRate {
		t.Errorf("Rate() = %v, want default %v", cfg.Rate(), DefaultRiskFreeRate)
	}
	if cfg.Method != DefaultMethod || cfg.FitMethod != DefaultFitMethod {
		t.Errorf("Method/FitMethod = %q/%q, want defaults", cfg.Method, cfg.FitMethod)
	}
	if !cfg.Liquidity() {
		t.Error("Liquidity() = false, want default true")
	}
	if cfg.SurfaceResolution != DefaultSurfaceResolution {
		t.Errorf("SurfaceResolution = %d, want default %d", cfg.SurfaceResolution, DefaultSurfaceResolution)
	}
	if cfg.DensityPoints != DefaultDensityPoints {
		t.Errorf("DensityPoints = %d, want default %d", cfg.DensityPoints, DefaultDensityPoints)
	}
	if cfg.Sigma() != DefaultSmoothSigma {
		t.Errorf("Sigma() = %v, want default %v", cfg.Sigma(), DefaultSmoothSigma)
	}
	if cfg.MaxIterations != DefaultMaxIterations || cfg.Concurrency != DefaultConcurrency {
		t.Errorf("MaxIterations/Concurrency = %d/%d", cfg.MaxIterations, cfg.Concurrency)
	}
	if cfg.Input.Format != DefaultInputFormat || cfg.Output.Dir != DefaultOutputDir {
		t.Errorf("Input.Format/Output.Dir = %q/%q", cfg.Input.Format, cfg.Output.Dir)
	}
	if cfg.Database.Port != DefaultDBPort || cfg.Database.SSLMode != DefaultDBSSLMode {
		t.Errorf("Database = %+v", cfg.Database)
	}
}

func TestLoadWithDefaults_ExplicitZeros(t *testing.T) {
	yaml := `
risk_free_rate: 0
require_liquidity: false
smooth_sigma: 0
`
	cfg, err := LoadWithDefaults(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if cfg.Rate() != 0 {
		t.Errorf("Rate() = %v, want explicit 0", cfg.Rate())
	}
	if cfg.Liquidity() {
		t.Error("Liquidity() = true, want explicit false")
	}
	if cfg.Sigma() != 0 {
		t.Errorf("Sigma() = %v, want explicit 0", cfg.Sigma())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", modify: func(c *Config) {}},
		{name: "bad valuation date", modify: func(c *Config) { c.ValuationDate = "14/03/2025" }, wantErr: "valuation_date"},
		{name: "bad density expiry", modify: func(c *Config) { c.DensityExpiry = "soon" }, wantErr: "density_expiry"},
		{name: "negative forward", modify: func(c *Config) { c.Forward = -1 }, wantErr: "forward"},
		{name: "unknown method", modify: func(c *Config) { c.Method = "nearest" }, wantErr: "method"},
		{name: "unknown fit method", modify: func(c *Config) { c.FitMethod = "lbfgs" }, wantErr: "fit_method"},
		{name: "tiny resolution", modify: func(c *Config) { c.SurfaceResolution = 1 }, wantErr: "surface_resolution"},
		{name: "tiny density grid", modify: func(c *Config) { c.DensityPoints = 2 }, wantErr: "density_points"},
		{name: "negative sigma", modify: func(c *Config) { s := -1.0; c.SmoothSigma = &s }, wantErr: "smooth_sigma"},
		{name: "no iterations", modify: func(c *Config) { c.MaxIterations = -1 }, wantErr: "max_iterations"},
		{name: "no workers", modify: func(c *Config) { c.Concurrency = -2 }, wantErr: "concurrency"},
		{name: "unknown format", modify: func(c *Config) { c.Input.Format = "xlsx" }, wantErr: "input.format"},
		{name: "db without host", modify: func(c *Config) {
			c.Database.Enabled = true
			c.Database.Name = "quotes"
			c.Database.User = "u"
		}, wantErr: "database.host"},
		{name: "db min over max", modify: func(c *Config) {
			c.Database = DBConfig{Enabled: true, Host: "h", Name: "n", User: "u", MaxConns: 2, MinConns: 3}
		}, wantErr: "min_conns"},
		{name: "disabled db is not checked", modify: func(c *Config) { c.Database.Host = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadAndValidate_Invalid(t *testing.T) {
	path := writeTempFile(t, "method: spline\n")
	if _, err := LoadAndValidate(path); err == nil || !strings.Contains(err.Error(), "validate config") {
		t.Errorf("LoadAndValidate() = %v, want validation error", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
	if _, err := Load(writeTempFile(t, "method: [")); err == nil {
		t.Error("Load of malformed yaml succeeded")
	}
}

func TestValuation(t *testing.T) {
	now := time.Date(2025, 6, 1, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	cfg := Default()
	got, err := cfg.Valuation(now)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("Valuation() = %v, want %v", got, want)
	}

	cfg.ValuationDate = "2025-03-14"
	got, err = cfg.Valuation(now)
	if err != nil || !got.Equal(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Valuation() = %v, %v", got, err)
	}

	if d, err := cfg.DensityExpiryDate(); err != nil || !d.IsZero() {
		t.Errorf("DensityExpiryDate() = %v, %v, want zero", d, err)
	}
}

func TestFinalize(t *testing.T) {
	cfg := &Config{Method: "cubic"}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() = %v", err)
	}
	if cfg.Method != "cubic" || cfg.Concurrency != DefaultConcurrency {
		t.Errorf("cfg = %+v", cfg)
	}
	bad := &Config{Method: "bilinear"}
	if err := bad.Finalize(); err == nil {
		t.Error("Finalize accepted an unknown method")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
