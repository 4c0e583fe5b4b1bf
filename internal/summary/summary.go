// Package summary derives portfolio-level aggregates from a position
// snapshot plus the cash balance. Compute is pure and rebuilds the whole
// summary on every call, so it can never diverge from the store.
package summary

import (
	"github.com/shopspring/decimal"

	"tradedesk/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Compute builds a PortfolioSummary from the given positions and cash
// balance. PercentageReturn is relative to the total cost basis and 0 when
// nothing has been bought yet.
func Compute(portfolioID int64, cash decimal.Decimal, positions []model.Position) model.PortfolioSummary {
	totalValue := decimal.Zero
	totalCost := decimal.Zero
	totalPnL := decimal.Zero

	for _, p := range positions {
		totalValue = totalValue.Add(p.MarketValue)
		totalCost = totalCost.Add(p.CostBasis)
		totalPnL = totalPnL.Add(p.UnrealizedPnL)
	}

	ret := decimal.Zero
	if !totalCost.IsZero() {
		ret = totalPnL.Div(totalCost).Mul(hundred)
	}

	return model.PortfolioSummary{
		PortfolioID:         portfolioID,
		CashBalance:         cash,
		TotalPositionsValue: totalValue,
		TotalPortfolioValue: cash.Add(totalValue),
		TotalCostBasis:      totalCost,
		UnrealizedPnL:       totalPnL,
		PercentageReturn:    ret,
	}
}
