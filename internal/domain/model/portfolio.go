package model

import (
	"fmt"
	"strings"
)

// AssetClass 资产类别
type AssetClass string

const (
	AssetEquity        AssetClass = "equity"
	AssetFixedIncome   AssetClass = "fixed_income"
	AssetCommodity     AssetClass = "commodity"
	AssetInternational AssetClass = "international"
	AssetCashEquiv     AssetClass = "cash_equiv"
)

func (c AssetClass) Valid() bool {
	switch c {
	case AssetEquity, AssetFixedIncome, AssetCommodity, AssetInternational, AssetCashEquiv:
		return true
	}
	return false
}

// ParseAssetClass accepts the canonical lower-case names.
func ParseAssetClass(s string) (AssetClass, error) {
	c := AssetClass(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown asset class %q", s)
	}
	return c, nil
}

// Position is one static portfolio holding.
type Position struct {
	Ticker     string     `json:"ticker"`
	Shares     float64    `json:"shares"`
	CostBasis  float64    `json:"cost_basis"`
	AssetClass AssetClass `json:"asset_class"`
}

// Portfolio is the ordered, immutable list of holdings for the process lifetime.
// Constructed once from config; callers get copies from Positions.
type Portfolio struct {
	positions []Position
}

func NewPortfolio(positions []Position) Portfolio {
	cp := make([]Position, len(positions))
	copy(cp, positions)
	return Portfolio{positions: cp}
}

func (p Portfolio) Positions() []Position {
	cp := make([]Position, len(p.positions))
	copy(cp, p.positions)
	return cp
}

func (p Portfolio) Tickers() []string {
	out := make([]string, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos.Ticker)
	}
	return out
}

func (p Portfolio) Len() int { return len(p.positions) }
