package port

import (
	"context"
	"time"

	"portfolioops/internal/domain/model"
)

// CycleWrite is the atomic write set of one refresh cycle.
type CycleWrite struct {
	FetchedAt time.Time
	Prices    map[string]model.Quote
	// Tickers fixes insertion order of Prices (portfolio order).
	Tickers []string
	NAV     model.NAVResult
}

// CycleWriter writes prices, the NAV snapshot and its positions in one transaction.
// Nothing is visible if it returns an error.
type CycleWriter interface {
	WriteCycle(ctx context.Context, w CycleWrite) (navSnapshotID int64, err error)
}

// MetricsRecorder writes the system-health row on a connection independent of WriteCycle.
type MetricsRecorder interface {
	RecordMetrics(ctx context.Context, m model.SystemMetrics) error
}

type SnapshotReader interface {
	// PositionTotals returns sum(market_value) and count for one NAV snapshot.
	PositionTotals(ctx context.Context, navSnapshotID int64) (sum float64, count int, err error)
	LatestPrices(ctx context.Context) ([]model.PriceSnapshot, error)
}

type HistoryReader interface {
	// PriceHistory returns up to limit stored prices fetched strictly before `before`, oldest first.
	PriceHistory(ctx context.Context, ticker string, before time.Time, limit int) ([]float64, error)
}

type ReconLog interface {
	InsertRecon(ctx context.Context, entries []model.ReconEntry) error
}

type AnomalyLog interface {
	InsertAnomalies(ctx context.Context, anomalies []model.Anomaly) error
}

// QueryStore backs the read API. "Latest" accessors return ErrNoData when nothing exists.
type QueryStore interface {
	LatestNAV(ctx context.Context) (model.NAVSnapshot, error)
	PositionsFor(ctx context.Context, navSnapshotID int64) ([]model.PositionSnapshot, error)
	NAVHistory(ctx context.Context, n int) ([]model.NAVSnapshot, error)
	LatestRecon(ctx context.Context) ([]model.ReconEntry, error)
	RecentAnomalies(ctx context.Context, n int) ([]model.Anomaly, error)
	RecentMetrics(ctx context.Context, n int) ([]model.SystemMetrics, error)
	LatestMetrics(ctx context.Context) (model.SystemMetrics, error)
}

// Store is everything the SQL backends provide.
type Store interface {
	CycleWriter
	MetricsRecorder
	SnapshotReader
	HistoryReader
	ReconLog
	AnomalyLog
	QueryStore
	Close() error
}
