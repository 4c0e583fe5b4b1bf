package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the advisory price preview shown before order confirmation.
// It is ephemeral and non-binding: the service computes TotalValue and
// the authoritative execution price is decided server-side at confirm
// time, so the client displays these fields verbatim and never
// recomputes them.
type Quote struct {
	Symbol       string          `json:"stockSymbol"`
	CompanyName  string          `json:"companyName"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	Quantity     int64           `json:"quantity"`
	Side         Side            `json:"orderType"`
	TotalValue   decimal.Decimal `json:"totalValue"`
	LastUpdated  time.Time       `json:"lastUpdated"`
}
