package service

import (
	"sort"

	"portfolioops/internal/domain/model"
)

// Attribution 按资产类别汇总持仓，按市值降序。
func Attribution(positions []model.PositionSnapshot) []model.AssetClassAttribution {
	idx := map[model.AssetClass]int{}
	var out []model.AssetClassAttribution
	pnlPctSum := map[model.AssetClass]float64{}

	for _, p := range positions {
		i, ok := idx[p.AssetClass]
		if !ok {
			i = len(out)
			idx[p.AssetClass] = i
			out = append(out, model.AssetClassAttribution{AssetClass: p.AssetClass})
		}
		a := &out[i]
		a.TotalMarketValue += p.MarketValue
		a.TotalPnL += p.UnrealizedPnL
		a.TotalWeight += p.Weight
		a.Positions++
		pnlPctSum[p.AssetClass] += p.PnLPct
	}
	for i := range out {
		out[i].AvgPnLPct = pnlPctSum[out[i].AssetClass] / float64(out[i].Positions)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalMarketValue != out[j].TotalMarketValue {
			return out[i].TotalMarketValue > out[j].TotalMarketValue
		}
		return out[i].AssetClass < out[j].AssetClass
	})
	return out
}

// SortByMarketValue returns positions ordered by market value descending, ticker ascending on ties.
func SortByMarketValue(positions []model.PositionSnapshot) []model.PositionSnapshot {
	out := make([]model.PositionSnapshot, len(positions))
	copy(out, positions)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MarketValue != out[j].MarketValue {
			return out[i].MarketValue > out[j].MarketValue
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}
