package model

import "time"

type CheckType string

const (
	CheckNAVSum         CheckType = "nav_sum"
	CheckPositionCount  CheckType = "position_count"
	CheckPriceStaleness CheckType = "price_staleness"
)

// CheckTypes lists every reconciliation check in execution order.
var CheckTypes = []CheckType{CheckNAVSum, CheckPositionCount, CheckPriceStaleness}

type ReconStatus string

const (
	ReconPass  ReconStatus = "PASS"
	ReconBreak ReconStatus = "BREAK"
)

// ReconEntry is one reconciliation log row.
type ReconEntry struct {
	ID            int64       `json:"id,omitempty"`
	CheckedAt     time.Time   `json:"checked_at"`
	CheckType     CheckType   `json:"check_type"`
	ExpectedValue float64     `json:"expected_value"`
	ActualValue   float64     `json:"actual_value"`
	DeltaPct      float64     `json:"delta_pct"`
	Status        ReconStatus `json:"status"`
	Detail        string      `json:"detail"`
}

type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Anomaly is one anomaly log row; only written when |z| crosses the threshold.
type Anomaly struct {
	ID           int64      `json:"id,omitempty"`
	DetectedAt   time.Time  `json:"detected_at"`
	Ticker       string     `json:"ticker"`
	AssetClass   AssetClass `json:"asset_class"`
	CurrentPrice float64    `json:"current_price"`
	PrevClose    float64    `json:"prev_close"`
	MovePct      float64    `json:"move_pct"`
	ZScore       float64    `json:"zscore"`
	Severity     Severity   `json:"severity"`
}

type CycleStatus string

const (
	CycleSuccess CycleStatus = "SUCCESS"
	CyclePartial CycleStatus = "PARTIAL"
	CycleFailed  CycleStatus = "FAILED"
)

// SystemMetrics is written exactly once per cycle attempt.
type SystemMetrics struct {
	ID                 int64       `json:"id,omitempty"`
	CycleID            string      `json:"cycle_id"`
	CycleAt            time.Time   `json:"cycle_at"`
	Status             CycleStatus `json:"status"`
	ErrorDetail        *string     `json:"error_detail"`
	IngestionLatencyMs float64     `json:"ingestion_latency_ms"`
	DBWriteLatencyMs   float64     `json:"db_write_latency_ms"`
	TotalRowsProcessed int         `json:"total_rows_processed"`
	TickersSucceeded   int         `json:"tickers_succeeded"`
	TickersFailed      int         `json:"tickers_failed"`
}

// CycleReport summarises one finished cycle for publishers.
type CycleReport struct {
	Metrics       SystemMetrics `json:"metrics"`
	NAVSnapshotID int64         `json:"nav_snapshot_id,omitempty"`
	NAV           *NAVResult    `json:"-"`
	FailedTickers []string      `json:"failed_tickers,omitempty"`
	Recon         []ReconEntry  `json:"recon,omitempty"`
	Anomalies     []Anomaly     `json:"anomalies,omitempty"`
}
