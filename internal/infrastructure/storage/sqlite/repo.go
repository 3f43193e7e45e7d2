package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"portfolioops/internal/application/port"
	"portfolioops/internal/infrastructure/storage/sqlstore"
)

// Repo is the SQLite-backed store.
type Repo struct {
	*sqlstore.Store
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	// WriteCycle and RecordMetrics each hold their own connection
	db.SetMaxOpenConns(4)

	r := &Repo{Store: sqlstore.New(db, sqlstore.SQLite)}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return r, nil
}

// pragmas are applied to every pooled connection
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + q.Encode()
}

func (r *Repo) GetDB() *sql.DB {
	return r.DB()
}

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.DB().ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS price_snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ticker TEXT NOT NULL CHECK(length(ticker) > 0),
  fetched_at_ms INTEGER NOT NULL,
  market_time_ms INTEGER,
  price REAL NOT NULL,
  volume REAL,
  day_open REAL,
  day_high REAL,
  day_low REAL,
  prev_close REAL
);
CREATE INDEX IF NOT EXISTS idx_price_ticker_time ON price_snapshots(ticker, fetched_at_ms);

CREATE TABLE IF NOT EXISTS nav_snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  computed_at_ms INTEGER NOT NULL,
  total_nav REAL NOT NULL,
  total_cost REAL NOT NULL,
  total_pnl REAL NOT NULL,
  total_pnl_pct REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS position_snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  nav_snapshot_id INTEGER NOT NULL REFERENCES nav_snapshots(id) ON DELETE RESTRICT,
  ticker TEXT NOT NULL CHECK(length(ticker) > 0),
  asset_class TEXT NOT NULL,
  shares REAL NOT NULL,
  price REAL NOT NULL,
  cost_basis REAL NOT NULL,
  market_value REAL NOT NULL,
  unrealized_pnl REAL NOT NULL,
  pnl_pct REAL NOT NULL,
  weight REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_position_nav ON position_snapshots(nav_snapshot_id);

CREATE TABLE IF NOT EXISTS recon_log (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  checked_at_ms INTEGER NOT NULL,
  check_type TEXT NOT NULL CHECK(check_type IN ('nav_sum', 'position_count', 'price_staleness')),
  expected_value REAL NOT NULL,
  actual_value REAL NOT NULL,
  delta_pct REAL NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('PASS', 'BREAK')),
  detail TEXT
);
CREATE INDEX IF NOT EXISTS idx_recon_type_time ON recon_log(check_type, checked_at_ms);

CREATE TABLE IF NOT EXISTS anomaly_log (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  detected_at_ms INTEGER NOT NULL,
  ticker TEXT NOT NULL CHECK(length(ticker) > 0),
  asset_class TEXT NOT NULL,
  current_price REAL NOT NULL,
  prev_close REAL NOT NULL,
  move_pct REAL NOT NULL,
  zscore REAL NOT NULL,
  severity TEXT NOT NULL CHECK(severity IN ('WARNING', 'CRITICAL'))
);
CREATE INDEX IF NOT EXISTS idx_anomaly_time ON anomaly_log(detected_at_ms);

CREATE TABLE IF NOT EXISTS system_metrics (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  cycle_id TEXT NOT NULL,
  cycle_at_ms INTEGER NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('SUCCESS', 'PARTIAL', 'FAILED')),
  error_detail TEXT,
  ingestion_latency_ms REAL NOT NULL,
  db_write_latency_ms REAL NOT NULL,
  total_rows_processed INTEGER NOT NULL,
  tickers_succeeded INTEGER NOT NULL,
  tickers_failed INTEGER NOT NULL
);
`)
	return err
}

var _ port.Store = (*Repo)(nil)
