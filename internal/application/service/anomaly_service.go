package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"portfolioops/internal/application/port"
	"portfolioops/internal/domain/model"
	domain "portfolioops/internal/domain/service"
)

// AnomalyService scans stored price history per ticker and logs z-score outliers.
type AnomalyService struct {
	history   port.HistoryReader
	log       port.AnomalyLog
	portfolio model.Portfolio
	cfg       domain.AnomalyConfig
}

func NewAnomalyService(history port.HistoryReader, log port.AnomalyLog, portfolio model.Portfolio, cfg domain.AnomalyConfig) *AnomalyService {
	return &AnomalyService{history: history, log: log, portfolio: portfolio, cfg: cfg}
}

// Detect evaluates every held ticker present in current. History is limited to prices
// fetched before `before`, so the cycle's own rows are never part of the baseline.
// A history read failure skips that ticker; the errors are returned joined.
func (s *AnomalyService) Detect(ctx context.Context, current map[string]model.Quote, before, now time.Time) (map[string]model.Anomaly, error) {
	found := map[string]model.Anomaly{}
	var (
		batch []model.Anomaly
		errs  []error
	)
	for _, pos := range s.portfolio.Positions() {
		q, ok := current[pos.Ticker]
		if !ok {
			continue
		}
		hist, err := s.history.PriceHistory(ctx, pos.Ticker, before, s.cfg.LookbackPeriods+1)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		a, ok := domain.DetectAnomaly(pos.Ticker, pos.AssetClass, q, hist, s.cfg, now)
		if !ok {
			continue
		}
		found[pos.Ticker] = a
		batch = append(batch, a)
	}

	if err := s.log.InsertAnomalies(ctx, batch); err != nil {
		errs = append(errs, fmt.Errorf("write anomaly log: %w", err))
	}
	return found, errors.Join(errs...)
}
