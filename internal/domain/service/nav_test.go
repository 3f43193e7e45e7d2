package service

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"portfolioops/internal/domain/model"
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

func TestComputeNAVTotals(t *testing.T) {
	res, err := ComputeNAV(pricesUp10(), testPortfolio())
	require.NoError(t, err)
	require.InDelta(t, 3300.0, res.TotalNAV, 1e-9)
	require.InDelta(t, 3000.0, res.TotalCost, 1e-9)
	require.InDelta(t, 300.0, res.TotalPnL, 1e-9)
	require.InDelta(t, 0.10, res.TotalPnLPct, 1e-9)
	require.False(t, res.Degenerate)
}

func TestComputeNAVWeights(t *testing.T) {
	res, err := ComputeNAV(pricesUp10(), testPortfolio())
	require.NoError(t, err)
	require.Len(t, res.Positions, 3)

	var sum, mvSum float64
	for _, p := range res.Positions {
		require.InDelta(t, 1100.0/3300.0, p.Weight, 1e-9)
		require.InDelta(t, 100.0, p.UnrealizedPnL, 1e-9)
		require.InDelta(t, 0.10, p.PnLPct, 1e-9)
		sum += p.Weight
		mvSum += p.MarketValue
	}
	require.InDelta(t, 1.0, sum, 1e-6)
	require.InDelta(t, res.TotalNAV, mvSum, 1e-9)
}

func TestComputeNAVKeepsPortfolioOrder(t *testing.T) {
	res, err := ComputeNAV(pricesUp10(), testPortfolio())
	require.NoError(t, err)
	require.Equal(t, "AAPL", res.Positions[0].Ticker)
	require.Equal(t, "AGG", res.Positions[1].Ticker)
	require.Equal(t, "GLD", res.Positions[2].Ticker)
	require.Equal(t, model.AssetFixedIncome, res.Positions[1].AssetClass)
	require.Equal(t, 55.0, res.Positions[1].Price)
	require.Equal(t, 50.0, res.Positions[1].CostBasis)
}

func TestComputeNAVSkipsMissingTicker(t *testing.T) {
	prices := pricesUp10()
	delete(prices, "AAPL")

	res, err := ComputeNAV(prices, testPortfolio())
	require.NoError(t, err)
	require.Len(t, res.Positions, 2)
	require.InDelta(t, 2200.0, res.TotalNAV, 1e-9)
	require.InDelta(t, 2000.0, res.TotalCost, 1e-9)
	for _, p := range res.Positions {
		require.NotEqual(t, "AAPL", p.Ticker)
	}
}

func TestComputeNAVEmptyPrices(t *testing.T) {
	res, err := ComputeNAV(map[string]model.Quote{}, testPortfolio())
	require.NoError(t, err)
	require.Empty(t, res.Positions)
	require.Zero(t, res.TotalNAV)
	require.Zero(t, res.TotalPnLPct)
}

func TestComputeNAVZeroPriceIsDegenerate(t *testing.T) {
	prices := map[string]model.Quote{"AAPL": {Price: 0}}
	res, err := ComputeNAV(prices, testPortfolio())
	require.NoError(t, err)
	require.True(t, res.Degenerate)
	require.Len(t, res.Positions, 1)
	require.Zero(t, res.Positions[0].Weight)
}

func TestComputeNAVRejectsNaNPrice(t *testing.T) {
	prices := pricesUp10()
	prices["AGG"] = model.Quote{Price: math.NaN()}

	_, err := ComputeNAV(prices, testPortfolio())
	require.ErrorIs(t, err, ErrInvalidPrice)
}

func TestComputeNAVRejectsBadPosition(t *testing.T) {
	pf := testPortfolio()
	pf[0].Shares = 0

	_, err := ComputeNAV(pricesUp10(), pf)
	require.ErrorIs(t, err, ErrInvalidPosition)
}
