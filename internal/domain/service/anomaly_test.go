package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"portfolioops/internal/domain/model"
)

// alternating 100/101 history so the return series has real variance
func alternatingHistory(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100
		if i%2 == 1 {
			out[i] = 101
		}
	}
	return out
}

// priceAtSigma returns the current price whose return sits k std above the mean of the window.
func priceAtSigma(history []float64, lookback int, k float64) float64 {
	window := history[len(history)-(lookback+1):]
	mean, std := MeanStd(Returns(window))
	last := window[len(window)-1]
	return last * (1 + mean + k*std)
}

func TestDetectAnomalyNormalMove(t *testing.T) {
	cfg := DefaultAnomalyConfig()
	hist := make([]float64, 25)
	for i := range hist {
		hist[i] = 100 + 0.01*float64(i)
	}
	window := hist[len(hist)-(cfg.LookbackPeriods+1):]
	mean, _ := MeanStd(Returns(window))
	cur := model.Quote{Price: hist[len(hist)-1] * (1 + mean), PrevClose: ptr(100)}

	_, ok := DetectAnomaly("AAPL", model.AssetEquity, cur, hist, cfg, time.Now())
	require.False(t, ok)
}

func TestDetectAnomalyWarning(t *testing.T) {
	cfg := DefaultAnomalyConfig()
	hist := alternatingHistory(25)
	cur := model.Quote{Price: priceAtSigma(hist, cfg.LookbackPeriods, 2.5), PrevClose: ptr(100)}
	now := time.Now()

	a, ok := DetectAnomaly("AAPL", model.AssetEquity, cur, hist, cfg, now)
	require.True(t, ok)
	require.Equal(t, model.SeverityWarning, a.Severity)
	require.InDelta(t, 2.5, a.ZScore, 1e-6)
	require.Equal(t, "AAPL", a.Ticker)
	require.Equal(t, model.AssetEquity, a.AssetClass)
	require.Equal(t, 100.0, a.PrevClose)
	require.Equal(t, cur.Price, a.CurrentPrice)
	require.Equal(t, now, a.DetectedAt)
}

func TestDetectAnomalyCritical(t *testing.T) {
	cfg := DefaultAnomalyConfig()
	hist := alternatingHistory(25)
	cur := model.Quote{Price: priceAtSigma(hist, cfg.LookbackPeriods, 3.5), PrevClose: ptr(100)}

	a, ok := DetectAnomaly("AAPL", model.AssetEquity, cur, hist, cfg, time.Now())
	require.True(t, ok)
	require.Equal(t, model.SeverityCritical, a.Severity)
}

func TestDetectAnomalyNegativeMove(t *testing.T) {
	cfg := DefaultAnomalyConfig()
	hist := alternatingHistory(25)
	cur := model.Quote{Price: priceAtSigma(hist, cfg.LookbackPeriods, -2.5), PrevClose: ptr(100)}

	a, ok := DetectAnomaly("AAPL", model.AssetEquity, cur, hist, cfg, time.Now())
	require.True(t, ok)
	require.Less(t, a.ZScore, 0.0)
	require.Less(t, a.MovePct, 0.0)
}

func TestDetectAnomalyIdenticalPrices(t *testing.T) {
	cfg := DefaultAnomalyConfig()
	hist := make([]float64, 25)
	for i := range hist {
		hist[i] = 100
	}
	cur := model.Quote{Price: 100, PrevClose: ptr(100)}

	require.NotPanics(t, func() {
		_, ok := DetectAnomaly("AAPL", model.AssetEquity, cur, hist, cfg, time.Now())
		require.False(t, ok)
	})
}

func TestDetectAnomalyInsufficientHistory(t *testing.T) {
	cfg := DefaultAnomalyConfig()
	hist := alternatingHistory(5)
	cur := model.Quote{Price: 500, PrevClose: ptr(100)}

	_, ok := DetectAnomaly("AAPL", model.AssetEquity, cur, hist, cfg, time.Now())
	require.False(t, ok)

	// exactly lookback points is still one short
	_, ok = DetectAnomaly("AAPL", model.AssetEquity, cur, alternatingHistory(cfg.LookbackPeriods), cfg, time.Now())
	require.False(t, ok)
}

func TestDetectAnomalyNoPrevClose(t *testing.T) {
	cfg := DefaultAnomalyConfig()
	cur := model.Quote{Price: 500}

	_, ok := DetectAnomaly("AAPL", model.AssetEquity, cur, alternatingHistory(25), cfg, time.Now())
	require.False(t, ok)
}

func TestMeanStd(t *testing.T) {
	mean, std := MeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	require.InDelta(t, 5.0, mean, 1e-12)
	require.InDelta(t, 2.138089935, std, 1e-9)

	_, std = MeanStd([]float64{1})
	require.Zero(t, std)
}

func TestZScoreClampsStd(t *testing.T) {
	require.InDelta(t, 1.0, ZScore(1e-6, 0, 0, 1e-6), 1e-12)
	require.InDelta(t, 2.0, ZScore(4, 2, 1, 1e-6), 1e-12)
}

// flat history pins std to the floor, so z is exactly move/floor
func flatBoundaryCase(price float64) (model.Quote, []float64, AnomalyConfig) {
	cfg := DefaultAnomalyConfig()
	cfg.StdFloor = 0.25
	hist := make([]float64, 25)
	for i := range hist {
		hist[i] = 1
	}
	return model.Quote{Price: price, PrevClose: ptr(1)}, hist, cfg
}

func TestDetectAnomalyAtThresholdIsWarning(t *testing.T) {
	cur, hist, cfg := flatBoundaryCase(1.5)

	a, ok := DetectAnomaly("AAPL", model.AssetEquity, cur, hist, cfg, time.Now())
	require.True(t, ok)
	require.Equal(t, 2.0, a.ZScore)
	require.Equal(t, model.SeverityWarning, a.Severity)

	cur, hist, cfg = flatBoundaryCase(1.25)
	_, ok = DetectAnomaly("AAPL", model.AssetEquity, cur, hist, cfg, time.Now())
	require.False(t, ok)
}

func TestDetectAnomalyAtCriticalBoundary(t *testing.T) {
	cur, hist, cfg := flatBoundaryCase(1.75)

	a, ok := DetectAnomaly("AAPL", model.AssetEquity, cur, hist, cfg, time.Now())
	require.True(t, ok)
	require.Equal(t, 3.0, a.ZScore)
	require.Equal(t, model.SeverityCritical, a.Severity)

	cur, hist, cfg = flatBoundaryCase(0.25)
	a, ok = DetectAnomaly("AAPL", model.AssetEquity, cur, hist, cfg, time.Now())
	require.True(t, ok)
	require.Equal(t, -3.0, a.ZScore)
	require.Equal(t, model.SeverityCritical, a.Severity)
}
