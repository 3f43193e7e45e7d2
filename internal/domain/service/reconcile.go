package service

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"portfolioops/internal/domain/model"
)

// ReconConfig 对账参数
type ReconConfig struct {
	NAVTolerance        float64       // nav_sum 允许的相对偏差，默认 0.01
	RefreshInterval     time.Duration // 刷新周期
	StalenessMultiplier float64       // 价格过期阈值 = multiplier × RefreshInterval，默认 3
}

func DefaultReconConfig() ReconConfig {
	return ReconConfig{
		NAVTolerance:        0.01,
		RefreshInterval:     60 * time.Second,
		StalenessMultiplier: 3,
	}
}

// MaxPriceAge is the age beyond which a stored price is stale.
func (c ReconConfig) MaxPriceAge() time.Duration {
	return time.Duration(c.StalenessMultiplier * float64(c.RefreshInterval))
}

// CheckNAVSum compares the in-memory NAV against the persisted position market values.
func CheckNAVSum(expected, actual, tolerance float64, now time.Time) model.ReconEntry {
	var delta float64
	switch {
	case expected != 0:
		delta = math.Abs(expected-actual) / math.Abs(expected)
	case actual != 0:
		delta = 1.0
	}

	e := model.ReconEntry{
		CheckedAt:     now,
		CheckType:     model.CheckNAVSum,
		ExpectedValue: expected,
		ActualValue:   actual,
		DeltaPct:      delta,
		Status:        model.ReconPass,
	}
	if delta > tolerance {
		e.Status = model.ReconBreak
		e.Detail = fmt.Sprintf("computed NAV %.2f vs stored position sum %.2f (delta %.4f%% > tolerance %.4f%%)",
			expected, actual, delta*100, tolerance*100)
	} else {
		e.Detail = fmt.Sprintf("computed NAV %.2f matches stored position sum %.2f", expected, actual)
	}
	return e
}

func CheckPositionCount(expected, actual int, now time.Time) model.ReconEntry {
	e := model.ReconEntry{
		CheckedAt:     now,
		CheckType:     model.CheckPositionCount,
		ExpectedValue: float64(expected),
		ActualValue:   float64(actual),
		Status:        model.ReconPass,
		Detail:        fmt.Sprintf("%d positions stored", actual),
	}
	if expected != actual {
		e.Status = model.ReconBreak
		e.Detail = fmt.Sprintf("expected %d positions, found %d stored", expected, actual)
	}
	return e
}

// CheckPriceStaleness takes the latest stored price per ticker. Expected is the max allowed
// age in seconds, actual is the oldest observed age.
func CheckPriceStaleness(latest []model.PriceSnapshot, maxAge time.Duration, now time.Time) model.ReconEntry {
	var (
		oldest time.Duration
		stale  []string
	)
	for _, p := range latest {
		age := now.Sub(p.ReferenceTime())
		if age > oldest {
			oldest = age
		}
		if age > maxAge {
			stale = append(stale, fmt.Sprintf("%s (%.0fs)", p.Ticker, age.Seconds()))
		}
	}
	sort.Strings(stale)

	e := model.ReconEntry{
		CheckedAt:     now,
		CheckType:     model.CheckPriceStaleness,
		ExpectedValue: maxAge.Seconds(),
		ActualValue:   oldest.Seconds(),
		Status:        model.ReconPass,
	}
	switch {
	case len(stale) > 0:
		e.Status = model.ReconBreak
		e.Detail = fmt.Sprintf("stale prices older than %.0fs: %s", maxAge.Seconds(), strings.Join(stale, ", "))
	case len(latest) == 0:
		e.Detail = "no stored prices"
	default:
		e.Detail = fmt.Sprintf("%d tickers fresh, oldest %.0fs", len(latest), oldest.Seconds())
	}
	return e
}
