package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceEvent is a single price update pushed by the feed service.
// Delivery is at-least-once and unordered: events may arrive duplicated
// or behind a newer price, and carry no sequence number to detect it.
type PriceEvent struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	Timestamp     time.Time       `json:"timestamp"`
}
