package summary

import (
	"testing"

	"github.com/shopspring/decimal"

	"tradedesk/internal/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func pos(symbol string, qty int64, avg, cur string) model.Position {
	p := model.Position{
		Symbol:       symbol,
		Quantity:     qty,
		AveragePrice: dec(avg),
		CurrentPrice: dec(cur),
	}
	p.Recompute()
	return p
}

func TestCompute_Aggregates(t *testing.T) {
	positions := []model.Position{
		pos("AAPL", 10, "100", "110"), // marketValue 1100
		pos("MSFT", 5, "400", "400"),  // marketValue 2000
	}

	s := Compute(1, dec("500"), positions)

	if !s.TotalPositionsValue.Equal(dec("3100")) {
		t.Errorf("totalPositionsValue: got %s, want 3100", s.TotalPositionsValue)
	}
	if !s.TotalPortfolioValue.Equal(dec("3600")) {
		t.Errorf("totalPortfolioValue: got %s, want 3600", s.TotalPortfolioValue)
	}
	if !s.TotalCostBasis.Equal(dec("3000")) {
		t.Errorf("totalCostBasis: got %s, want 3000", s.TotalCostBasis)
	}
	if !s.UnrealizedPnL.Equal(dec("100")) {
		t.Errorf("unrealizedPnL: got %s, want 100", s.UnrealizedPnL)
	}
	// 100 / 3000 * 100
	want := dec("100").Div(dec("3000")).Mul(dec("100"))
	if !s.PercentageReturn.Equal(want) {
		t.Errorf("percentageReturn: got %s, want %s", s.PercentageReturn, want)
	}
}

func TestCompute_EmptyPortfolio(t *testing.T) {
	s := Compute(1, dec("2500"), nil)

	if !s.TotalPositionsValue.IsZero() {
		t.Errorf("totalPositionsValue: got %s, want 0", s.TotalPositionsValue)
	}
	if !s.TotalPortfolioValue.Equal(dec("2500")) {
		t.Errorf("totalPortfolioValue: got %s, want 2500", s.TotalPortfolioValue)
	}
	if !s.PercentageReturn.IsZero() {
		t.Errorf("percentageReturn with no cost basis: got %s, want 0", s.PercentageReturn)
	}
}

func TestCompute_NegativeReturn(t *testing.T) {
	s := Compute(1, decimal.Zero, []model.Position{pos("TSLA", 2, "200", "150")})

	if !s.UnrealizedPnL.Equal(dec("-100")) {
		t.Errorf("unrealizedPnL: got %s, want -100", s.UnrealizedPnL)
	}
	if !s.PercentageReturn.Equal(dec("-25")) {
		t.Errorf("percentageReturn: got %s, want -25", s.PercentageReturn)
	}
}
