package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PriceType selects market or limit execution.
type PriceType string

const (
	PriceTypeMarket PriceType = "MARKET"
	PriceTypeLimit  PriceType = "LIMIT"
)

// Order statuses as reported by the trading service.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusFilled    = "FILLED"
	OrderStatusCancelled = "CANCELLED"
)

// TradeRequest is a single order submission. It is built client-side from
// the current form inputs, submitted once, and never mutated afterwards.
type TradeRequest struct {
	PortfolioID int64           `json:"portfolioId"`
	Symbol      string          `json:"stockSymbol"`
	Quantity    int64           `json:"quantity"`
	PriceType   PriceType       `json:"priceType"`
	LimitPrice  decimal.Decimal `json:"limitPrice,omitempty"`
}

// Order is the service's record of a submitted order.
type Order struct {
	ID          int64           `json:"id"`
	PortfolioID int64           `json:"portfolioId"`
	Symbol      string          `json:"stockSymbol"`
	Side        Side            `json:"orderType"`
	PriceType   PriceType       `json:"priceType"`
	Quantity    int64           `json:"quantity"`
	LimitPrice  decimal.Decimal `json:"limitPrice"`
	Status      string          `json:"status"`
	FilledPrice decimal.Decimal `json:"filledPrice"`
	CreatedAt   time.Time       `json:"createdAt"`
	FilledAt    *time.Time      `json:"filledAt,omitempty"`
}

// TradeResponse is the terminal outcome of one trade attempt.
type TradeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Order   Order  `json:"order"`
}
