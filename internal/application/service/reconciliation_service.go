package service

import (
	"context"
	"fmt"
	"time"

	"portfolioops/internal/application/port"
	"portfolioops/internal/domain/model"
	domain "portfolioops/internal/domain/service"
)

// ReconciliationService 将内存中的 NAV 与已提交的快照对账，并写入 recon_log。
type ReconciliationService struct {
	snapshots port.SnapshotReader
	log       port.ReconLog
	cfg       domain.ReconConfig
}

func NewReconciliationService(snapshots port.SnapshotReader, log port.ReconLog, cfg domain.ReconConfig) *ReconciliationService {
	return &ReconciliationService{snapshots: snapshots, log: log, cfg: cfg}
}

// Run always produces nav_sum, position_count and price_staleness, in that order.
func (s *ReconciliationService) Run(ctx context.Context, nav model.NAVResult, navSnapshotID int64, now time.Time) ([]model.ReconEntry, error) {
	sum, count, err := s.snapshots.PositionTotals(ctx, navSnapshotID)
	if err != nil {
		return nil, fmt.Errorf("read stored positions: %w", err)
	}
	latest, err := s.snapshots.LatestPrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("read latest prices: %w", err)
	}

	entries := []model.ReconEntry{
		domain.CheckNAVSum(nav.TotalNAV, sum, s.cfg.NAVTolerance, now),
		domain.CheckPositionCount(len(nav.Positions), count, now),
		domain.CheckPriceStaleness(latest, s.cfg.MaxPriceAge(), now),
	}
	if err := s.log.InsertRecon(ctx, entries); err != nil {
		return entries, fmt.Errorf("write recon log: %w", err)
	}
	return entries, nil
}
