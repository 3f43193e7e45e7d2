package service

import (
	"math"
	"time"

	"portfolioops/internal/domain/model"
)

// AnomalyConfig z-score 异常检测参数
type AnomalyConfig struct {
	ZThreshold         float64 // |z| >= 阈值 时记录，默认 2.0
	LookbackPeriods    int     // 历史收益率样本数 N，需要 N+1 个历史价格，默认 20
	CriticalMultiplier float64 // |z| >= multiplier × 阈值 时为 CRITICAL，默认 1.5
	StdFloor           float64 // 标准差下限，默认 1e-6
}

func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{
		ZThreshold:         2.0,
		LookbackPeriods:    20,
		CriticalMultiplier: 1.5,
		StdFloor:           1e-6,
	}
}

// DetectAnomaly evaluates one ticker. history holds stored prices oldest first and must
// not include the current observation. Both the history series and the current move use
// the period-over-period return, so the current return is measured against the last stored price.
// ok is false when the ticker is skipped or within threshold.
func DetectAnomaly(ticker string, class model.AssetClass, current model.Quote, history []float64, cfg AnomalyConfig, now time.Time) (model.Anomaly, bool) {
	n := cfg.LookbackPeriods
	if n < 2 || len(history) < n+1 {
		return model.Anomaly{}, false
	}
	if current.PrevClose == nil || !finite(current.Price) {
		return model.Anomaly{}, false
	}

	window := history[len(history)-(n+1):]
	rets := Returns(window)
	if len(rets) < 2 {
		return model.Anomaly{}, false
	}
	last := window[len(window)-1]
	if last <= 0 {
		return model.Anomaly{}, false
	}

	mean, std := MeanStd(rets)
	move := (current.Price - last) / last
	z := ZScore(move, mean, std, cfg.StdFloor)
	if !finite(z) || math.Abs(z) < cfg.ZThreshold {
		return model.Anomaly{}, false
	}

	sev := model.SeverityWarning
	if math.Abs(z) >= cfg.CriticalMultiplier*cfg.ZThreshold {
		sev = model.SeverityCritical
	}
	return model.Anomaly{
		DetectedAt:   now,
		Ticker:       ticker,
		AssetClass:   class,
		CurrentPrice: current.Price,
		PrevClose:    *current.PrevClose,
		MovePct:      move,
		ZScore:       z,
		Severity:     sev,
	}, true
}
