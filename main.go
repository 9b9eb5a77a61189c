package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/charlerive/volsurface/config"
	"github.com/charlerive/volsurface/pipeline"
	"github.com/charlerive/volsurface/quote"
	"github.com/charlerive/volsurface/storage"
	"github.com/charlerive/volsurface/svi_volatility"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to YAML config file")
	valuation := flag.String("valuation", "", "valuation date (YYYY-MM-DD), default today")
	forward := flag.Float64("forward", 0, "forward price, default the quoted index spot")
	rate := flag.Float64("rate", config.DefaultRiskFreeRate, "continuously compounded risk-free rate")
	method := flag.String("method", config.DefaultMethod, "surface method: linear, cubic or svi")
	fitMethod := flag.String("fit", config.DefaultFitMethod, "svi optimizer: neldermead or bobyqa")
	densityExpiry := flag.String("density-expiry", "", "expiry (YYYY-MM-DD) for the density, default the earliest")
	format := flag.String("format", config.DefaultInputFormat, "input format: long or cboe")
	outDir := flag.String("out", config.DefaultOutputDir, "output directory")
	saveCSV := flag.Bool("save-csv", false, "also write the normalized quotes as CSV")
	liquid := flag.Bool("liquid", config.DefaultRequireLiquidity, "drop quotes without volume and open interest")
	concurrency := flag.Int("concurrency", config.DefaultConcurrency, "parallel svi fits")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] quotes.csv...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	// Set up structured logging
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load .env", "error", err)
	}

	// Load configuration
	cfg := &config.Config{}
	if *configPath != "" {
		loaded, err := config.LoadWithDefaults(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			return 1
		}
		cfg = loaded
	}

	// Explicit flags override the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "valuation":
			cfg.ValuationDate = *valuation
		case "forward":
			cfg.Forward = *forward
		case "rate":
			cfg.RiskFreeRate = rate
		case "method":
			cfg.Method = *method
		case "fit":
			cfg.FitMethod = *fitMethod
		case "density-expiry":
			cfg.DensityExpiry = *densityExpiry
		case "format":
			cfg.Input.Format = *format
		case "out":
			cfg.Output.Dir = *outDir
		case "save-csv":
			cfg.Output.NormalizedCSV = *saveCSV
		case "liquid":
			cfg.RequireLiquidity = liquid
		case "concurrency":
			cfg.Concurrency = *concurrency
		}
	})
	if flag.NArg() > 0 {
		cfg.Input.Paths = flag.Args()
	}
	if err := cfg.Finalize(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 2
	}
	if len(cfg.Input.Paths) == 0 {
		flag.Usage()
		return 2
	}

	valuationDate, err := cfg.Valuation(time.Now())
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return 2
	}
	densityDate, err := cfg.DensityExpiryDate()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return 2
	}

	logger.Info("starting surface run",
		"valuation", valuationDate.Format(time.DateOnly),
		"method", cfg.Method,
		"inputs", len(cfg.Input.Paths),
		"format", cfg.Input.Format,
	)

	// Create context cancelled on shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	batch, err := quote.LoadFiles(cfg.Input.Paths, quote.Format(cfg.Input.Format), logger)
	if err != nil {
		logger.Error("failed to load quotes", "error", err)
		return 1
	}

	report, err := pipeline.RunBatch(ctx, batch, pipeline.Options{
		Valuation:    valuationDate,
		RiskFreeRate: cfg.Rate(),
		Forward:      cfg.Forward,
		Method:       pipeline.Method(cfg.Method),
		Fit: svi_volatility.FitSettings{
			Method:        svi_volatility.Method(cfg.FitMethod),
			MaxIterations: cfg.MaxIterations,
			Logger:        logger,
		},
		RequireLiquidity: cfg.Liquidity(),
		BackfillIv:       cfg.BackfillIv,
		DensityExpiry:    densityDate,
		Resolution:       cfg.SurfaceResolution,
		DensityPoints:    cfg.DensityPoints,
		SmoothSigma:      cfg.Sigma(),
		Concurrency:      cfg.Concurrency,
		Logger:           logger,
	})
	if err != nil {
		logger.Error("surface run failed", "error", err)
		return 1
	}

	if err := writeArtifacts(cfg, report, logger); err != nil {
		logger.Error("failed to write artifacts", "error", err)
		return 1
	}

	if cfg.Database.Enabled {
		if err := saveQuotes(ctx, cfg.Database, report, logger); err != nil {
			logger.Error("failed to store quotes", "error", err)
			return 1
		}
	}

	for _, e := range report.Exclusions {
		expiry := "-"
		if e.Expiry != nil {
			expiry = e.Expiry.Format(time.DateOnly)
		}
		logger.Info("excluded", "stage", e.Stage, "expiry", expiry, "reason", e.Reason)
	}
	logger.Info("surface run finished",
		"run_id", report.RunID.String(),
		"expiries", len(report.Expiries),
		"exclusions", len(report.Exclusions),
		"out", cfg.Output.Dir,
	)
	return 0
}

func writeArtifacts(cfg *config.Config, report *pipeline.Report, logger *slog.Logger) error {
	dir := cfg.Output.Dir
	if report.Surface != nil {
		if err := storage.WriteJSON(filepath.Join(dir, storage.SurfaceFile), report.Surface); err != nil {
			return err
		}
	}
	if report.Density != nil {
		if err := storage.WriteJSON(filepath.Join(dir, storage.DensityFile), report.Density); err != nil {
			return err
		}
	}
	if err := storage.WriteJSON(filepath.Join(dir, storage.ReportFile), report); err != nil {
		return err
	}
	if cfg.Output.NormalizedCSV {
		if err := storage.WriteNormalizedCSV(filepath.Join(dir, storage.NormalizedFile), report.Quotes); err != nil {
			return err
		}
	}
	logger.Info("artifacts written",
		"dir", dir,
		"surface", report.Surface != nil,
		"density", report.Density != nil,
		"normalized_rows", len(report.Quotes),
	)
	return nil
}

func saveQuotes(ctx context.Context, dbCfg config.DBConfig, report *pipeline.Report, logger *slog.Logger) error {
	logger.Info("connecting to database",
		"host", dbCfg.Host,
		"port", dbCfg.Port,
		"database", dbCfg.Name,
	)
	pool, err := storage.Connect(ctx, dbCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := storage.NewQuoteStore(pool, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	_, err = store.SaveQuotes(ctx, report.RunID, report.Valuation, report.Quotes)
	return err
}
