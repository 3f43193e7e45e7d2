// Package sqlstore implements port.Store over database/sql. The sqlite and postgres
// packages own the schema and connection setup; queries here are written with `?`
// placeholders and rebound per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"portfolioops/internal/application/port"
	"portfolioops/internal/domain/model"
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

type Store struct {
	db      *sql.DB
	dialect Dialect
	// health row timeout when the caller's context is detached
	metricsTimeout time.Duration
}

func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d, metricsTimeout: 5 * time.Second}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// rebind rewrites `?` placeholders to `$n` for postgres.
func (s *Store) rebind(q string) string {
	if s.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toMs(t time.Time) int64 { return t.UnixMilli() }

func fromMs(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// rollback is a no-op once the tx has been committed.
func rollback(tx *sql.Tx) { _ = tx.Rollback() }

// WriteCycle 在单个连接、单个事务内写入价格、NAV 与持仓快照。
func (s *Store) WriteCycle(ctx context.Context, w port.CycleWrite) (int64, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire write conn: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin cycle tx: %w", err)
	}
	defer rollback(tx)

	fetchedMs := toMs(w.FetchedAt)
	priceStmt := s.rebind(`INSERT INTO price_snapshots
		(ticker, fetched_at_ms, market_time_ms, price, volume, day_open, day_high, day_low, prev_close)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, ticker := range w.Tickers {
		q, ok := w.Prices[ticker]
		if !ok {
			continue
		}
		var mt sql.NullInt64
		if q.MarketTime != nil {
			mt = sql.NullInt64{Int64: toMs(*q.MarketTime), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, priceStmt, ticker, fetchedMs, mt, q.Price,
			nullFloat(q.Volume), nullFloat(q.DayOpen), nullFloat(q.DayHigh), nullFloat(q.DayLow), nullFloat(q.PrevClose)); err != nil {
			return 0, fmt.Errorf("insert price %s: %w", ticker, err)
		}
	}

	var navID int64
	err = tx.QueryRowContext(ctx, s.rebind(`INSERT INTO nav_snapshots
		(computed_at_ms, total_nav, total_cost, total_pnl, total_pnl_pct)
		VALUES (?, ?, ?, ?, ?) RETURNING id`),
		fetchedMs, w.NAV.TotalNAV, w.NAV.TotalCost, w.NAV.TotalPnL, w.NAV.TotalPnLPct).Scan(&navID)
	if err != nil {
		return 0, fmt.Errorf("insert nav snapshot: %w", err)
	}

	posStmt := s.rebind(`INSERT INTO position_snapshots
		(nav_snapshot_id, ticker, asset_class, shares, price, cost_basis, market_value, unrealized_pnl, pnl_pct, weight)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, p := range w.NAV.Positions {
		if _, err := tx.ExecContext(ctx, posStmt, navID, p.Ticker, string(p.AssetClass), p.Shares, p.Price,
			p.CostBasis, p.MarketValue, p.UnrealizedPnL, p.PnLPct, p.Weight); err != nil {
			return 0, fmt.Errorf("insert position %s: %w", p.Ticker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cycle tx: %w", err)
	}
	return navID, nil
}

// RecordMetrics acquires its own connection and transaction. The caller's cancellation is
// ignored so a cancelled cycle still leaves its health row.
func (s *Store) RecordMetrics(ctx context.Context, m model.SystemMetrics) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.metricsTimeout)
	defer cancel()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire metrics conn: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin metrics tx: %w", err)
	}
	defer rollback(tx)

	var detail sql.NullString
	if m.ErrorDetail != nil {
		detail = sql.NullString{String: *m.ErrorDetail, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO system_metrics
		(cycle_id, cycle_at_ms, status, error_detail, ingestion_latency_ms, db_write_latency_ms,
		 total_rows_processed, tickers_succeeded, tickers_failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		m.CycleID, toMs(m.CycleAt), string(m.Status), detail, m.IngestionLatencyMs, m.DBWriteLatencyMs,
		m.TotalRowsProcessed, m.TickersSucceeded, m.TickersFailed); err != nil {
		return fmt.Errorf("insert system metrics: %w", err)
	}
	return tx.Commit()
}

func (s *Store) PositionTotals(ctx context.Context, navSnapshotID int64) (float64, int, error) {
	var (
		sum   float64
		count int
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COALESCE(SUM(market_value), 0), COUNT(*)
		FROM position_snapshots WHERE nav_snapshot_id = ?`), navSnapshotID).Scan(&sum, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("position totals: %w", err)
	}
	return sum, count, nil
}

const priceCols = `p.id, p.ticker, p.fetched_at_ms, p.market_time_ms, p.price, p.volume, p.day_open, p.day_high, p.day_low, p.prev_close`

// LatestPrices returns the newest price row per ticker, ordered by ticker.
// Ties on fetched_at_ms resolve to the highest id.
func (s *Store) LatestPrices(ctx context.Context) ([]model.PriceSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+priceCols+`
		FROM price_snapshots p
		WHERE p.id = (
			SELECT p2.id FROM price_snapshots p2
			WHERE p2.ticker = p.ticker
			ORDER BY p2.fetched_at_ms DESC, p2.id DESC
			LIMIT 1
		)
		ORDER BY p.ticker`)
	if err != nil {
		return nil, fmt.Errorf("latest prices: %w", err)
	}
	defer rows.Close()

	var out []model.PriceSnapshot
	for rows.Next() {
		var (
			ps                              model.PriceSnapshot
			fetchedMs                       int64
			mt                              sql.NullInt64
			vol, open, high, low, prevClose sql.NullFloat64
		)
		if err := rows.Scan(&ps.ID, &ps.Ticker, &fetchedMs, &mt, &ps.Price, &vol, &open, &high, &low, &prevClose); err != nil {
			return nil, err
		}
		ps.FetchedAt = fromMs(fetchedMs)
		if mt.Valid {
			t := fromMs(mt.Int64)
			ps.MarketTime = &t
		}
		ps.Volume, ps.DayOpen, ps.DayHigh, ps.DayLow, ps.PrevClose =
			floatPtr(vol), floatPtr(open), floatPtr(high), floatPtr(low), floatPtr(prevClose)
		out = append(out, ps)
	}
	return out, rows.Err()
}

func (s *Store) PriceHistory(ctx context.Context, ticker string, before time.Time, limit int) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT price FROM price_snapshots
		WHERE ticker = ? AND fetched_at_ms < ?
		ORDER BY fetched_at_ms DESC, id DESC
		LIMIT ?`), ticker, toMs(before), limit)
	if err != nil {
		return nil, fmt.Errorf("price history %s: %w", ticker, err)
	}
	defer rows.Close()

	var desc []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		desc = append(desc, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// oldest first
	for i, j := 0, len(desc)-1; i < j; i, j = i+1, j-1 {
		desc[i], desc[j] = desc[j], desc[i]
	}
	return desc, nil
}

func (s *Store) InsertRecon(ctx context.Context, entries []model.ReconEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	stmt := s.rebind(`INSERT INTO recon_log
		(checked_at_ms, check_type, expected_value, actual_value, delta_pct, status, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, stmt, toMs(e.CheckedAt), string(e.CheckType), e.ExpectedValue,
			e.ActualValue, e.DeltaPct, string(e.Status), e.Detail); err != nil {
			return fmt.Errorf("insert recon %s: %w", e.CheckType, err)
		}
	}
	return tx.Commit()
}

func (s *Store) InsertAnomalies(ctx context.Context, anomalies []model.Anomaly) error {
	if len(anomalies) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	stmt := s.rebind(`INSERT INTO anomaly_log
		(detected_at_ms, ticker, asset_class, current_price, prev_close, move_pct, zscore, severity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, a := range anomalies {
		if _, err := tx.ExecContext(ctx, stmt, toMs(a.DetectedAt), a.Ticker, string(a.AssetClass),
			a.CurrentPrice, a.PrevClose, a.MovePct, a.ZScore, string(a.Severity)); err != nil {
			return fmt.Errorf("insert anomaly %s: %w", a.Ticker, err)
		}
	}
	return tx.Commit()
}

const navCols = `id, computed_at_ms, total_nav, total_cost, total_pnl, total_pnl_pct`

type scanner interface {
	Scan(dest ...any) error
}

func scanNAV(sc scanner) (model.NAVSnapshot, error) {
	var (
		n  model.NAVSnapshot
		ms int64
	)
	if err := sc.Scan(&n.ID, &ms, &n.TotalNAV, &n.TotalCost, &n.TotalPnL, &n.TotalPnLPct); err != nil {
		return model.NAVSnapshot{}, err
	}
	n.ComputedAt = fromMs(ms)
	return n, nil
}

func (s *Store) LatestNAV(ctx context.Context) (model.NAVSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+navCols+` FROM nav_snapshots
		ORDER BY computed_at_ms DESC, id DESC LIMIT 1`)
	n, err := scanNAV(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NAVSnapshot{}, port.ErrNoData
	}
	if err != nil {
		return model.NAVSnapshot{}, fmt.Errorf("latest nav: %w", err)
	}
	return n, nil
}

func (s *Store) PositionsFor(ctx context.Context, navSnapshotID int64) ([]model.PositionSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, nav_snapshot_id, ticker, asset_class, shares, price,
		cost_basis, market_value, unrealized_pnl, pnl_pct, weight
		FROM position_snapshots WHERE nav_snapshot_id = ? ORDER BY id`), navSnapshotID)
	if err != nil {
		return nil, fmt.Errorf("positions for %d: %w", navSnapshotID, err)
	}
	defer rows.Close()

	var out []model.PositionSnapshot
	for rows.Next() {
		var (
			p     model.PositionSnapshot
			class string
		)
		if err := rows.Scan(&p.ID, &p.NAVSnapshotID, &p.Ticker, &class, &p.Shares, &p.Price,
			&p.CostBasis, &p.MarketValue, &p.UnrealizedPnL, &p.PnLPct, &p.Weight); err != nil {
			return nil, err
		}
		p.AssetClass = model.AssetClass(class)
		out = append(out, p)
	}
	return out, rows.Err()
}

// NAVHistory returns the last n snapshots, ascending.
func (s *Store) NAVHistory(ctx context.Context, n int) ([]model.NAVSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+navCols+` FROM (
			SELECT `+navCols+` FROM nav_snapshots
			ORDER BY computed_at_ms DESC, id DESC LIMIT ?
		) recent
		ORDER BY computed_at_ms ASC, id ASC`), n)
	if err != nil {
		return nil, fmt.Errorf("nav history: %w", err)
	}
	defer rows.Close()

	var out []model.NAVSnapshot
	for rows.Next() {
		nav, err := scanNAV(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, nav)
	}
	return out, rows.Err()
}

// LatestRecon returns the most recent entry per check type, ordered by check type.
func (s *Store) LatestRecon(ctx context.Context) ([]model.ReconEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT r.id, r.checked_at_ms, r.check_type, r.expected_value,
		r.actual_value, r.delta_pct, r.status, r.detail
		FROM recon_log r
		WHERE r.id = (
			SELECT r2.id FROM recon_log r2
			WHERE r2.check_type = r.check_type
			ORDER BY r2.checked_at_ms DESC, r2.id DESC
			LIMIT 1
		)
		ORDER BY r.check_type`)
	if err != nil {
		return nil, fmt.Errorf("latest recon: %w", err)
	}
	defer rows.Close()

	var out []model.ReconEntry
	for rows.Next() {
		var (
			e                 model.ReconEntry
			ms                int64
			checkType, status string
			detail            sql.NullString
		)
		if err := rows.Scan(&e.ID, &ms, &checkType, &e.ExpectedValue, &e.ActualValue, &e.DeltaPct, &status, &detail); err != nil {
			return nil, err
		}
		e.CheckedAt = fromMs(ms)
		e.CheckType = model.CheckType(checkType)
		e.Status = model.ReconStatus(status)
		e.Detail = detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) RecentAnomalies(ctx context.Context, n int) ([]model.Anomaly, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, detected_at_ms, ticker, asset_class, current_price,
		prev_close, move_pct, zscore, severity
		FROM anomaly_log
		ORDER BY detected_at_ms DESC, id DESC LIMIT ?`), n)
	if err != nil {
		return nil, fmt.Errorf("recent anomalies: %w", err)
	}
	defer rows.Close()

	var out []model.Anomaly
	for rows.Next() {
		var (
			a               model.Anomaly
			ms              int64
			class, severity string
		)
		if err := rows.Scan(&a.ID, &ms, &a.Ticker, &class, &a.CurrentPrice, &a.PrevClose, &a.MovePct, &a.ZScore, &severity); err != nil {
			return nil, err
		}
		a.DetectedAt = fromMs(ms)
		a.AssetClass = model.AssetClass(class)
		a.Severity = model.Severity(severity)
		out = append(out, a)
	}
	return out, rows.Err()
}

const metricsCols = `id, cycle_id, cycle_at_ms, status, error_detail, ingestion_latency_ms, db_write_latency_ms,
	total_rows_processed, tickers_succeeded, tickers_failed`

func scanMetrics(sc scanner) (model.SystemMetrics, error) {
	var (
		m      model.SystemMetrics
		ms     int64
		status string
		detail sql.NullString
	)
	if err := sc.Scan(&m.ID, &m.CycleID, &ms, &status, &detail, &m.IngestionLatencyMs, &m.DBWriteLatencyMs,
		&m.TotalRowsProcessed, &m.TickersSucceeded, &m.TickersFailed); err != nil {
		return model.SystemMetrics{}, err
	}
	m.CycleAt = fromMs(ms)
	m.Status = model.CycleStatus(status)
	if detail.Valid {
		d := detail.String
		m.ErrorDetail = &d
	}
	return m, nil
}

// RecentMetrics returns the last n metrics rows, ascending by cycle time.
func (s *Store) RecentMetrics(ctx context.Context, n int) ([]model.SystemMetrics, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+metricsCols+` FROM (
			SELECT `+metricsCols+` FROM system_metrics
			ORDER BY cycle_at_ms DESC, id DESC LIMIT ?
		) recent
		ORDER BY cycle_at_ms ASC, id ASC`), n)
	if err != nil {
		return nil, fmt.Errorf("recent metrics: %w", err)
	}
	defer rows.Close()

	out := []model.SystemMetrics{}
	for rows.Next() {
		m, err := scanMetrics(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) LatestMetrics(ctx context.Context) (model.SystemMetrics, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+metricsCols+` FROM system_metrics
		ORDER BY cycle_at_ms DESC, id DESC LIMIT 1`)
	m, err := scanMetrics(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SystemMetrics{}, port.ErrNoData
	}
	if err != nil {
		return model.SystemMetrics{}, fmt.Errorf("latest metrics: %w", err)
	}
	return m, nil
}

var _ port.Store = (*Store)(nil)
