package storage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/charlerive/volsurface/config"
	"github.com/charlerive/volsurface/quote"
)

const schema = `
CREATE TABLE IF NOT EXISTS option_quotes (
	run_id        UUID             NOT NULL,
	valuation     DATE             NOT NULL,
	expiry        DATE             NOT NULL,
	strike        DOUBLE PRECISION NOT NULL,
	option_type   TEXT             NOT NULL,
	bid           DOUBLE PRECISION,
	ask           DOUBLE PRECISION,
	implied_vol   DOUBLE PRECISION NOT NULL,
	volume        BIGINT,
	open_interest BIGINT,
	index_spot    DOUBLE PRECISION,
	PRIMARY KEY (run_id, expiry, strike, option_type)
)`

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.DBConfig) string {
	// URL-encode password to handle special characters
	escapedPassword := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		escapedPassword,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
	)
}

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// DB is the subset of *pgxpool.Pool the quote store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// DefaultBatchSize bounds the rows sent in one pgx batch.
const DefaultBatchSize = 1000

// QuoteStore writes normalized quotes to the option_quotes table.
type QuoteStore struct {
	db        DB
	batchSize int
	logger    *slog.Logger
}

func NewQuoteStore(db DB, logger *slog.Logger) *QuoteStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuoteStore{db: db, batchSize: DefaultBatchSize, logger: logger}
}

// EnsureSchema creates the option_quotes table if it does not exist.
func (s *QuoteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create option_quotes: %w", err)
	}
	return nil
}

// SaveQuotes inserts rows under runID and returns how many were new.
// Rows already stored for the run are skipped.
func (s *QuoteStore) SaveQuotes(ctx context.Context, runID uuid.UUID, valuation time.Time, rows []quote.Row) (int, error) {
	inserted := 0
	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))
		n, err := s.batchInsert(ctx, runID, valuation, rows[start:end])
		if err != nil {
			return inserted, fmt.Errorf("insert quotes %d-%d: %w", start, end, err)
		}
		inserted += n
	}
	s.logger.Info("quotes stored",
		"run_id", runID.String(),
		"rows", len(rows),
		"inserted", inserted,
		"conflicts", len(rows)-inserted,
	)
	return inserted, nil
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (s *QuoteStore) batchInsert(ctx context.Context, runID uuid.UUID, valuation time.Time, rows []quote.Row) (int, error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO option_quotes (run_id, valuation, expiry, strike, option_type, bid, ask, implied_vol, volume, open_interest, index_spot)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (run_id, expiry, strike, option_type) DO NOTHING
		`, runID.String(), valuation, r.Expiry, r.Strike, r.Type.String(),
			nullFloat(r.Bid), nullFloat(r.Ask), r.ImpliedVol,
			nullCount(r.Volume), nullCount(r.OpenInterest), nullFloat(r.IndexSpot))
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(ct.RowsAffected())
	}
	return inserted, nil
}

func nullFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

func nullCount(n int64) any {
	if n == quote.AbsentCount {
		return nil
	}
	return n
}
