package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"portfolioops/internal/application/port"
	"portfolioops/internal/domain/model"
	"portfolioops/internal/domain/service"
)

func ptr(v float64) *float64 { return &v }

func testPortfolio() []model.Position {
	return []model.Position{
		{Ticker: "AAPL", Shares: 10, CostBasis: 100, AssetClass: model.AssetEquity},
		{Ticker: "AGG", Shares: 20, CostBasis: 50, AssetClass: model.AssetFixedIncome},
		{Ticker: "GLD", Shares: 5, CostBasis: 200, AssetClass: model.AssetCommodity},
	}
}

func pricesUp10() map[string]model.Quote {
	mt := time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)
	return map[string]model.Quote{
		"AAPL": {Price: 110, PrevClose: ptr(109), Volume: ptr(1_000_000), DayOpen: ptr(108), DayHigh: ptr(111), DayLow: ptr(107), MarketTime: &mt},
		"AGG":  {Price: 55, PrevClose: ptr(54.5), Volume: ptr(500_000), DayOpen: ptr(54), DayHigh: ptr(55.5), DayLow: ptr(53.5), MarketTime: &mt},
		"GLD":  {Price: 220, PrevClose: ptr(218), Volume: ptr(200_000), DayOpen: ptr(217), DayHigh: ptr(221), DayLow: ptr(216), MarketTime: &mt},
	}
}

func cycleWrite(t *testing.T, at time.Time, prices map[string]model.Quote) port.CycleWrite {
	t.Helper()
	nav, err := service.ComputeNAV(prices, testPortfolio())
	require.NoError(t, err)
	return port.CycleWrite{FetchedAt: at, Prices: prices, Tickers: []string{"AAPL", "AGG", "GLD"}, NAV: nav}
}

func count(t *testing.T, repo *Repo, table string) int {
	t.Helper()
	var n int
	require.NoError(t, repo.GetDB().QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func TestWriteCycleRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 15, 0, 5, 0, time.UTC)

	id, err := repo.WriteCycle(ctx, cycleWrite(t, at, pricesUp10()))
	require.NoError(t, err)
	require.Positive(t, id)

	require.Equal(t, 3, count(t, repo, "price_snapshots"))
	require.Equal(t, 1, count(t, repo, "nav_snapshots"))
	require.Equal(t, 3, count(t, repo, "position_snapshots"))

	nav, err := repo.LatestNAV(ctx)
	require.NoError(t, err)
	require.Equal(t, id, nav.ID)
	require.InDelta(t, 3300.0, nav.TotalNAV, 1e-9)
	require.InDelta(t, 0.10, nav.TotalPnLPct, 1e-9)
	require.True(t, nav.ComputedAt.Equal(at))

	positions, err := repo.PositionsFor(ctx, id)
	require.NoError(t, err)
	require.Len(t, positions, 3)
	require.Equal(t, "AAPL", positions[0].Ticker)
	require.Equal(t, model.AssetEquity, positions[0].AssetClass)
	require.InDelta(t, 1100.0/3300.0, positions[0].Weight, 1e-9)

	sum, n, err := repo.PositionTotals(ctx, id)
	require.NoError(t, err)
	require.InDelta(t, 3300.0, sum, 1e-9)
	require.Equal(t, 3, n)
}

func TestWriteCycleSkipsUnfetchedTickers(t *testing.T) {
	repo := newTestRepo(t)
	prices := pricesUp10()
	delete(prices, "AAPL")

	id, err := repo.WriteCycle(context.Background(), cycleWrite(t, time.Now(), prices))
	require.NoError(t, err)
	require.Equal(t, 2, count(t, repo, "price_snapshots"))

	_, n, err := repo.PositionTotals(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestWriteCycleRollsBackOnFailure(t *testing.T) {
	repo := newTestRepo(t)
	w := cycleWrite(t, time.Now(), pricesUp10())
	// empty ticker violates the position CHECK after prices and nav are inserted
	w.NAV.Positions[2].Ticker = ""

	_, err := repo.WriteCycle(context.Background(), w)
	require.Error(t, err)

	require.Zero(t, count(t, repo, "price_snapshots"))
	require.Zero(t, count(t, repo, "nav_snapshots"))
	require.Zero(t, count(t, repo, "position_snapshots"))

	_, err = repo.LatestNAV(context.Background())
	require.ErrorIs(t, err, port.ErrNoData)
}

func TestRecordMetricsIgnoresCancelledContext(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	detail := "RuntimeError: boom"
	err := repo.RecordMetrics(ctx, model.SystemMetrics{
		CycleID:     "c-1",
		CycleAt:     time.Now(),
		Status:      model.CycleFailed,
		ErrorDetail: &detail,
	})
	require.NoError(t, err)

	m, err := repo.LatestMetrics(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.CycleFailed, m.Status)
	require.NotNil(t, m.ErrorDetail)
	require.Equal(t, detail, *m.ErrorDetail)
	require.Equal(t, "c-1", m.CycleID)
}

func TestRecentMetricsAscending(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)

	empty, err := repo.RecentMetrics(ctx, 50)
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.RecordMetrics(ctx, model.SystemMetrics{
			CycleID:            "c",
			CycleAt:            base.Add(time.Duration(i) * time.Minute),
			Status:             model.CycleSuccess,
			TotalRowsProcessed: i,
		}))
	}

	got, err := repo.RecentMetrics(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, 2, got[0].TotalRowsProcessed)
	require.Equal(t, 4, got[2].TotalRowsProcessed)
	require.Nil(t, got[0].ErrorDetail)
}

func TestLatestPricesPerTicker(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	t0 := time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)

	_, err := repo.WriteCycle(ctx, cycleWrite(t, t0, pricesUp10()))
	require.NoError(t, err)

	later := pricesUp10()
	later["AAPL"] = model.Quote{Price: 120}
	_, err = repo.WriteCycle(ctx, cycleWrite(t, t0.Add(time.Minute), later))
	require.NoError(t, err)

	latest, err := repo.LatestPrices(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	require.Equal(t, "AAPL", latest[0].Ticker)
	require.Equal(t, 120.0, latest[0].Price)
	require.Nil(t, latest[0].MarketTime)
	require.Nil(t, latest[0].PrevClose)
	require.True(t, latest[0].FetchedAt.Equal(t0.Add(time.Minute)))

	require.NotNil(t, latest[1].MarketTime)
	require.NotNil(t, latest[1].PrevClose)
	require.Equal(t, 54.5, *latest[1].PrevClose)
}

func TestLatestPricesTieBreaksOnID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)

	_, err := repo.WriteCycle(ctx, cycleWrite(t, at, pricesUp10()))
	require.NoError(t, err)
	second := pricesUp10()
	second["GLD"] = model.Quote{Price: 230}
	_, err = repo.WriteCycle(ctx, cycleWrite(t, at, second))
	require.NoError(t, err)

	latest, err := repo.LatestPrices(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	require.Equal(t, 230.0, latest[2].Price)
}

func TestPriceHistoryOldestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		prices := pricesUp10()
		prices["AAPL"] = model.Quote{Price: 100 + float64(i)}
		_, err := repo.WriteCycle(ctx, cycleWrite(t, base.Add(time.Duration(i)*time.Minute), prices))
		require.NoError(t, err)
	}

	hist, err := repo.PriceHistory(ctx, "AAPL", base.Add(4*time.Minute), 3)
	require.NoError(t, err)
	require.Equal(t, []float64{101, 102, 103}, hist)

	hist, err = repo.PriceHistory(ctx, "MSFT", base.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Empty(t, hist)
}

func TestNAVHistoryAscending(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		_, err := repo.WriteCycle(ctx, cycleWrite(t, base.Add(time.Duration(i)*time.Minute), pricesUp10()))
		require.NoError(t, err)
	}

	hist, err := repo.NAVHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.True(t, hist[0].ComputedAt.Before(hist[1].ComputedAt))
	require.True(t, hist[1].ComputedAt.Equal(base.Add(3*time.Minute)))
}

func TestLatestReconPerCheckType(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	t0 := time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)

	first := []model.ReconEntry{
		service.CheckNAVSum(3300, 3300, 0.01, t0),
		service.CheckPositionCount(3, 3, t0),
		service.CheckPriceStaleness(nil, 180*time.Second, t0),
	}
	require.NoError(t, repo.InsertRecon(ctx, first))
	require.NoError(t, repo.InsertRecon(ctx, []model.ReconEntry{service.CheckNAVSum(3300, 3135, 0.01, t0.Add(time.Minute))}))

	latest, err := repo.LatestRecon(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	require.Equal(t, model.CheckNAVSum, latest[0].CheckType)
	require.Equal(t, model.ReconBreak, latest[0].Status)
	require.Equal(t, model.CheckPositionCount, latest[1].CheckType)
	require.Equal(t, model.ReconPass, latest[1].Status)
	require.Equal(t, model.CheckPriceStaleness, latest[2].CheckType)

	require.Equal(t, 4, count(t, repo, "recon_log"))
}

func TestRecentAnomaliesDescending(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	t0 := time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)

	var batch []model.Anomaly
	for i := 0; i < 3; i++ {
		batch = append(batch, model.Anomaly{
			DetectedAt: t0.Add(time.Duration(i) * time.Minute),
			Ticker:     "AAPL", AssetClass: model.AssetEquity,
			CurrentPrice: 110, PrevClose: 109, MovePct: 0.05, ZScore: 2.5 + float64(i),
			Severity: model.SeverityWarning,
		})
	}
	require.NoError(t, repo.InsertAnomalies(ctx, batch))
	require.NoError(t, repo.InsertAnomalies(ctx, nil))

	got, err := repo.RecentAnomalies(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 4.5, got[0].ZScore)
	require.Equal(t, 3.5, got[1].ZScore)
}

func TestInsertAnomalyRejectsUnknownSeverity(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.InsertAnomalies(context.Background(), []model.Anomaly{{
		DetectedAt: time.Now(), Ticker: "AAPL", AssetClass: model.AssetEquity, Severity: "INFO",
	}})
	require.Error(t, err)
	require.Zero(t, count(t, repo, "anomaly_log"))
}

func TestEmptyStoreReportsNoData(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.LatestNAV(ctx)
	require.ErrorIs(t, err, port.ErrNoData)
	_, err = repo.LatestMetrics(ctx)
	require.ErrorIs(t, err, port.ErrNoData)

	recon, err := repo.LatestRecon(ctx)
	require.NoError(t, err)
	require.Empty(t, recon)
}
