package model

import "github.com/shopspring/decimal"

// Position is a held quantity of one symbol with cost basis and live
// valuation. Quantity and AveragePrice change only on confirmed trades;
// CurrentPrice changes only from feed events. The four derived fields are
// never set directly — Recompute refreshes them from their inputs so they
// cannot drift apart.
type Position struct {
	Symbol       string          `json:"stockSymbol"`
	Quantity     int64           `json:"quantity"`
	AveragePrice decimal.Decimal `json:"averagePrice"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`

	// Derived fields.
	MarketValue      decimal.Decimal `json:"currentMarketValue"`
	CostBasis        decimal.Decimal `json:"costBasis"`
	UnrealizedPnL    decimal.Decimal `json:"unrealizedPnL"`
	PercentageReturn decimal.Decimal `json:"percentageReturn"`
}

var hundred = decimal.NewFromInt(100)

// Recompute refreshes all derived fields from quantity, average price and
// current price. PercentageReturn is 0 when there is no cost basis.
func (p *Position) Recompute() {
	qty := decimal.NewFromInt(p.Quantity)
	p.MarketValue = qty.Mul(p.CurrentPrice)
	p.CostBasis = qty.Mul(p.AveragePrice)
	p.UnrealizedPnL = p.MarketValue.Sub(p.CostBasis)
	if p.AveragePrice.IsZero() {
		p.PercentageReturn = decimal.Zero
		return
	}
	p.PercentageReturn = p.CurrentPrice.Sub(p.AveragePrice).
		Div(p.AveragePrice).Mul(hundred)
}

// PortfolioSummary is the portfolio-level aggregate view. It is always
// rebuilt whole from a position snapshot plus the cash balance, never
// patched incrementally.
type PortfolioSummary struct {
	PortfolioID         int64           `json:"portfolioId"`
	CashBalance         decimal.Decimal `json:"cashBalance"`
	TotalPositionsValue decimal.Decimal `json:"totalPositionsValue"`
	TotalPortfolioValue decimal.Decimal `json:"totalPortfolioValue"`
	TotalCostBasis      decimal.Decimal `json:"totalCostBasis"`
	UnrealizedPnL       decimal.Decimal `json:"unrealizedPnL"`
	PercentageReturn    decimal.Decimal `json:"percentageReturn"`
}
