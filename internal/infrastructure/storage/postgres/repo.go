package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"portfolioops/internal/application/port"
	"portfolioops/internal/infrastructure/storage/sqlstore"
)

type Repo struct {
	*sqlstore.Store
}

func New(dsn string, maxOpenConns int) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpenConns < 2 {
		maxOpenConns = 10
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns / 2)

	r := &Repo{Store: sqlstore.New(db, sqlstore.Postgres)}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return r, nil
}

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.DB().ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS price_snapshots (
  id BIGSERIAL PRIMARY KEY,
  ticker TEXT NOT NULL CHECK(length(ticker) > 0),
  fetched_at_ms BIGINT NOT NULL,
  market_time_ms BIGINT,
  price DOUBLE PRECISION NOT NULL,
  volume DOUBLE PRECISION,
  day_open DOUBLE PRECISION,
  day_high DOUBLE PRECISION,
  day_low DOUBLE PRECISION,
  prev_close DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS idx_price_ticker_time ON price_snapshots(ticker, fetched_at_ms);

CREATE TABLE IF NOT EXISTS nav_snapshots (
  id BIGSERIAL PRIMARY KEY,
  computed_at_ms BIGINT NOT NULL,
  total_nav DOUBLE PRECISION NOT NULL,
  total_cost DOUBLE PRECISION NOT NULL,
  total_pnl DOUBLE PRECISION NOT NULL,
  total_pnl_pct DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS position_snapshots (
  id BIGSERIAL PRIMARY KEY,
  nav_snapshot_id BIGINT NOT NULL REFERENCES nav_snapshots(id) ON DELETE RESTRICT,
  ticker TEXT NOT NULL CHECK(length(ticker) > 0),
  asset_class TEXT NOT NULL,
  shares DOUBLE PRECISION NOT NULL,
  price DOUBLE PRECISION NOT NULL,
  cost_basis DOUBLE PRECISION NOT NULL,
  market_value DOUBLE PRECISION NOT NULL,
  unrealized_pnl DOUBLE PRECISION NOT NULL,
  pnl_pct DOUBLE PRECISION NOT NULL,
  weight DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_position_nav ON position_snapshots(nav_snapshot_id);

CREATE TABLE IF NOT EXISTS recon_log (
  id BIGSERIAL PRIMARY KEY,
  checked_at_ms BIGINT NOT NULL,
  check_type TEXT NOT NULL CHECK(check_type IN ('nav_sum', 'position_count', 'price_staleness')),
  expected_value DOUBLE PRECISION NOT NULL,
  actual_value DOUBLE PRECISION NOT NULL,
  delta_pct DOUBLE PRECISION NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('PASS', 'BREAK')),
  detail TEXT
);
CREATE INDEX IF NOT EXISTS idx_recon_type_time ON recon_log(check_type, checked_at_ms);

CREATE TABLE IF NOT EXISTS anomaly_log (
  id BIGSERIAL PRIMARY KEY,
  detected_at_ms BIGINT NOT NULL,
  ticker TEXT NOT NULL CHECK(length(ticker) > 0),
  asset_class TEXT NOT NULL,
  current_price DOUBLE PRECISION NOT NULL,
  prev_close DOUBLE PRECISION NOT NULL,
  move_pct DOUBLE PRECISION NOT NULL,
  zscore DOUBLE PRECISION NOT NULL,
  severity TEXT NOT NULL CHECK(severity IN ('WARNING', 'CRITICAL'))
);
CREATE INDEX IF NOT EXISTS idx_anomaly_time ON anomaly_log(detected_at_ms);

CREATE TABLE IF NOT EXISTS system_metrics (
  id BIGSERIAL PRIMARY KEY,
  cycle_id TEXT NOT NULL,
  cycle_at_ms BIGINT NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('SUCCESS', 'PARTIAL', 'FAILED')),
  error_detail TEXT,
  ingestion_latency_ms DOUBLE PRECISION NOT NULL,
  db_write_latency_ms DOUBLE PRECISION NOT NULL,
  total_rows_processed INTEGER NOT NULL,
  tickers_succeeded INTEGER NOT NULL,
  tickers_failed INTEGER NOT NULL
);
`)
	return err
}

var _ port.Store = (*Repo)(nil)
