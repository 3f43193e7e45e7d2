package service

import (
	"errors"
	"fmt"
	"math"

	"portfolioops/internal/domain/model"
)

var (
	ErrInvalidPrice    = errors.New("invalid price")
	ErrInvalidPosition = errors.New("invalid position")
)

// ComputeNAV 计算组合净值与持仓分析。
// Positions whose ticker has no quote are skipped. Output order follows the portfolio.
func ComputeNAV(prices map[string]model.Quote, portfolio []model.Position) (model.NAVResult, error) {
	var res model.NAVResult
	res.Positions = make([]model.PositionSnapshot, 0, len(portfolio))

	for _, pos := range portfolio {
		q, ok := prices[pos.Ticker]
		if !ok {
			continue
		}
		if pos.Shares <= 0 || pos.CostBasis <= 0 || pos.Ticker == "" {
			return model.NAVResult{}, fmt.Errorf("%w: %s shares=%v cost_basis=%v", ErrInvalidPosition, pos.Ticker, pos.Shares, pos.CostBasis)
		}
		if !finite(q.Price) || q.Price < 0 {
			return model.NAVResult{}, fmt.Errorf("%w: %s price=%v", ErrInvalidPrice, pos.Ticker, q.Price)
		}

		mv := pos.Shares * q.Price
		cost := pos.Shares * pos.CostBasis
		pnl := mv - cost
		res.Positions = append(res.Positions, model.PositionSnapshot{
			Ticker:        pos.Ticker,
			AssetClass:    pos.AssetClass,
			Shares:        pos.Shares,
			Price:         q.Price,
			CostBasis:     pos.CostBasis,
			MarketValue:   mv,
			UnrealizedPnL: pnl,
			PnLPct:        pnl / cost,
		})
		res.TotalNAV += mv
		res.TotalCost += cost
	}

	res.TotalPnL = res.TotalNAV - res.TotalCost
	if res.TotalCost > 0 {
		res.TotalPnLPct = res.TotalPnL / res.TotalCost
	}

	if res.TotalNAV > 0 {
		for i := range res.Positions {
			res.Positions[i].Weight = res.Positions[i].MarketValue / res.TotalNAV
		}
	} else if len(res.Positions) > 0 {
		// zero NAV with priced positions: weights stay 0
		res.Degenerate = true
	}
	return res, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
