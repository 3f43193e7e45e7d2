package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"portfolioops/internal/application/port"
	"portfolioops/internal/domain/model"
)

// Publisher mirrors each finished cycle into Redis:
//   - HSET  <prefix>:latest_nav      total_nav/total_pnl/... of the last good cycle
//   - XADD  <anomaly stream>         one entry per anomaly
//   - PUBLISH <cycle channel>        JSON cycle summary
type Publisher struct {
	rdb           *redis.Client
	ttl           time.Duration
	keyLatestNAV  string
	anomalyStream string
	cycleChan     string
}

// CycleMessage is the JSON body published on the cycle channel.
type CycleMessage struct {
	CycleID          string            `json:"cycle_id"`
	CycleAtMs        int64             `json:"cycle_at_ms"`
	Status           model.CycleStatus `json:"status"`
	ErrorDetail      *string           `json:"error_detail,omitempty"`
	NAVSnapshotID    int64             `json:"nav_snapshot_id,omitempty"`
	TotalNAV         *float64          `json:"total_nav,omitempty"`
	TickersSucceeded int               `json:"tickers_succeeded"`
	TickersFailed    int               `json:"tickers_failed"`
	ReconBreaks      []string          `json:"recon_breaks,omitempty"`
	Anomalies        int               `json:"anomalies"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, anomalyStream, cycleChan string) *Publisher {
	if strings.TrimSpace(anomalyStream) == "" {
		anomalyStream = prefix + ":anomalies"
	}
	if strings.TrimSpace(cycleChan) == "" {
		cycleChan = prefix + ":cycles"
	}
	return &Publisher{
		rdb:           rdb,
		ttl:           ttl,
		keyLatestNAV:  prefix + ":latest_nav",
		anomalyStream: anomalyStream,
		cycleChan:     cycleChan,
	}
}

func (p *Publisher) PublishCycle(ctx context.Context, r model.CycleReport) error {
	pipe := p.rdb.Pipeline()

	// FAILED cycles keep the previous hash
	if r.NAV != nil && r.NAVSnapshotID > 0 {
		pipe.HSet(ctx, p.keyLatestNAV, navFields(r))
		if p.ttl > 0 {
			pipe.Expire(ctx, p.keyLatestNAV, p.ttl)
		}
	}

	for _, a := range r.Anomalies {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: p.anomalyStream,
			Values: anomalyValues(r.Metrics.CycleID, a),
		})
	}

	b, err := json.Marshal(cycleMessage(r))
	if err != nil {
		return err
	}
	pipe.Publish(ctx, p.cycleChan, string(b))

	_, err = pipe.Exec(ctx)
	return err
}

func navFields(r model.CycleReport) map[string]any {
	return map[string]any{
		"nav_snapshot_id": r.NAVSnapshotID,
		"cycle_id":        r.Metrics.CycleID,
		"computed_at_ms":  r.Metrics.CycleAt.UnixMilli(),
		"total_nav":       r.NAV.TotalNAV,
		"total_cost":      r.NAV.TotalCost,
		"total_pnl":       r.NAV.TotalPnL,
		"total_pnl_pct":   r.NAV.TotalPnLPct,
		"positions":       len(r.NAV.Positions),
	}
}

func anomalyValues(cycleID string, a model.Anomaly) map[string]any {
	return map[string]any{
		"cycle_id":       cycleID,
		"detected_at_ms": a.DetectedAt.UnixMilli(),
		"ticker":         a.Ticker,
		"asset_class":    string(a.AssetClass),
		"current_price":  a.CurrentPrice,
		"prev_close":     a.PrevClose,
		"move_pct":       a.MovePct,
		"zscore":         a.ZScore,
		"severity":       string(a.Severity),
	}
}

func cycleMessage(r model.CycleReport) CycleMessage {
	m := CycleMessage{
		CycleID:          r.Metrics.CycleID,
		CycleAtMs:        r.Metrics.CycleAt.UnixMilli(),
		Status:           r.Metrics.Status,
		ErrorDetail:      r.Metrics.ErrorDetail,
		NAVSnapshotID:    r.NAVSnapshotID,
		TickersSucceeded: r.Metrics.TickersSucceeded,
		TickersFailed:    r.Metrics.TickersFailed,
		Anomalies:        len(r.Anomalies),
	}
	if r.NAV != nil && r.NAVSnapshotID > 0 {
		v := r.NAV.TotalNAV
		m.TotalNAV = &v
	}
	for _, e := range r.Recon {
		if e.Status == model.ReconBreak {
			m.ReconBreaks = append(m.ReconBreaks, string(e.CheckType))
		}
	}
	return m
}

var _ port.Publisher = (*Publisher)(nil)
