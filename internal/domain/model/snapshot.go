package model

import "time"

// Quote is what a price source returns for one ticker. Optional fields are nil when
// the source did not report them (or reported a non-finite value).
type Quote struct {
	Price      float64    `json:"price"`
	PrevClose  *float64   `json:"prev_close,omitempty"`
	Volume     *float64   `json:"volume,omitempty"`
	DayOpen    *float64   `json:"day_open,omitempty"`
	DayHigh    *float64   `json:"day_high,omitempty"`
	DayLow     *float64   `json:"day_low,omitempty"`
	MarketTime *time.Time `json:"market_time,omitempty"`
}

// PriceSnapshot is one persisted quote. Ordering key is (Ticker, FetchedAt).
type PriceSnapshot struct {
	ID        int64     `json:"id"`
	Ticker    string    `json:"ticker"`
	FetchedAt time.Time `json:"fetched_at"`
	Quote
}

// ReferenceTime is the authoritative time of the quote: the source-reported market
// time when present, otherwise the ingestion time.
func (p PriceSnapshot) ReferenceTime() time.Time {
	if p.MarketTime != nil && !p.MarketTime.IsZero() {
		return *p.MarketTime
	}
	return p.FetchedAt
}

// NAVSnapshot is one successful cycle's portfolio totals.
type NAVSnapshot struct {
	ID          int64     `json:"id"`
	ComputedAt  time.Time `json:"computed_at"`
	TotalNAV    float64   `json:"total_nav"`
	TotalCost   float64   `json:"total_cost"`
	TotalPnL    float64   `json:"total_pnl"`
	TotalPnLPct float64   `json:"total_pnl_pct"`
}

// PositionSnapshot belongs to exactly one NAVSnapshot.
type PositionSnapshot struct {
	ID            int64      `json:"id,omitempty"`
	NAVSnapshotID int64      `json:"nav_snapshot_id,omitempty"`
	Ticker        string     `json:"ticker"`
	AssetClass    AssetClass `json:"asset_class"`
	Shares        float64    `json:"shares"`
	Price         float64    `json:"price"`
	CostBasis     float64    `json:"cost_basis"`
	MarketValue   float64    `json:"market_value"`
	UnrealizedPnL float64    `json:"unrealized_pnl"`
	PnLPct        float64    `json:"pnl_pct"`
	Weight        float64    `json:"weight"`
}

// NAVResult is the in-memory output of the NAV calculator.
type NAVResult struct {
	TotalNAV    float64
	TotalCost   float64
	TotalPnL    float64
	TotalPnLPct float64
	Positions   []PositionSnapshot
	// Degenerate is set when positions were priced but total NAV is zero; weights are 0.
	Degenerate bool
}

// AssetClassAttribution is the latest cycle's positions rolled up by class.
type AssetClassAttribution struct {
	AssetClass       AssetClass `json:"asset_class"`
	TotalMarketValue float64    `json:"total_market_value"`
	TotalPnL         float64    `json:"total_pnl"`
	TotalWeight      float64    `json:"total_weight"`
	AvgPnLPct        float64    `json:"avg_pnl_pct"`
	Positions        int        `json:"positions"`
}
