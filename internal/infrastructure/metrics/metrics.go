// Package metrics exposes Prometheus metrics for the refresh loop.
// Scrape them at /metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"portfolioops/internal/application/port"
	"portfolioops/internal/domain/model"
)

var (
	// Cycle metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_cycles_total",
			Help: "Refresh cycles by final status",
		},
		[]string{"status"},
	)

	IngestionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "portfolio_ingestion_latency_seconds",
			Help:    "Time spent fetching prices for one cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	DBWriteLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "portfolio_db_write_latency_seconds",
			Help:    "Time spent in the cycle write transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	TickersFailed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portfolio_tickers_failed",
			Help: "Tickers that failed to fetch in the last cycle",
		},
	)

	// Portfolio metrics
	NAV = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portfolio_nav",
			Help: "Total NAV of the last committed snapshot",
		},
	)

	PnL = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portfolio_unrealized_pnl",
			Help: "Total unrealized P&L of the last committed snapshot",
		},
	)

	// Control metrics
	ReconBreak = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "portfolio_recon_break",
			Help: "1 if the last run of the check was a BREAK",
		},
		[]string{"check_type"},
	)

	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_anomalies_total",
			Help: "Detected price anomalies by severity",
		},
		[]string{"severity"},
	)

	LastCycleTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portfolio_last_cycle_timestamp_seconds",
			Help: "Unix time of the last finished cycle",
		},
	)
)

// Recorder updates the package metrics from each cycle report.
type Recorder struct{}

func NewRecorder() *Recorder { return &Recorder{} }

func (Recorder) PublishCycle(_ context.Context, r model.CycleReport) error {
	m := r.Metrics
	CyclesTotal.WithLabelValues(string(m.Status)).Inc()
	IngestionLatency.Observe(m.IngestionLatencyMs / 1000)
	if m.Status != model.CycleFailed || m.DBWriteLatencyMs > 0 {
		DBWriteLatency.Observe(m.DBWriteLatencyMs / 1000)
	}
	TickersFailed.Set(float64(m.TickersFailed))
	LastCycleTimestamp.Set(float64(m.CycleAt.Unix()))

	if r.NAV != nil && r.NAVSnapshotID > 0 {
		NAV.Set(r.NAV.TotalNAV)
		PnL.Set(r.NAV.TotalPnL)
	}
	for _, e := range r.Recon {
		v := 0.0
		if e.Status == model.ReconBreak {
			v = 1
		}
		ReconBreak.WithLabelValues(string(e.CheckType)).Set(v)
	}
	for _, a := range r.Anomalies {
		AnomaliesTotal.WithLabelValues(string(a.Severity)).Inc()
	}
	return nil
}

var _ port.Publisher = Recorder{}
