package journal

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradedesk/internal/model"
)

func TestJournal_RoundTrip(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	j, err := New(filepath.Join(t.TempDir(), "fills.db"), log)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	filledAt := time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)
	order := model.Order{
		ID:          101,
		Symbol:      "AAPL",
		Side:        model.SideBuy,
		PriceType:   model.PriceTypeMarket,
		Quantity:    10,
		Status:      model.OrderStatusFilled,
		FilledPrice: decimal.RequireFromString("187.25"),
		FilledAt:    &filledAt,
	}
	if err := j.RecordFill(order, "Order filled"); err != nil {
		t.Fatalf("RecordFill: %v", err)
	}

	order2 := order
	order2.ID = 102
	order2.Side = model.SideSell
	if err := j.RecordFill(order2, "Order filled"); err != nil {
		t.Fatalf("RecordFill: %v", err)
	}

	fills, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(fills))
	}
	// Newest first.
	if fills[0].OrderID != 102 || fills[1].OrderID != 101 {
		t.Errorf("fill order wrong: %d, %d", fills[0].OrderID, fills[1].OrderID)
	}
	if fills[1].FilledPrice != "187.25" {
		t.Errorf("filledPrice: got %s, want 187.25", fills[1].FilledPrice)
	}
	if fills[1].Side != "BUY" {
		t.Errorf("side: got %s, want BUY", fills[1].Side)
	}
}

func TestRecent_CorruptRowSurfacesError(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	j, err := New(filepath.Join(t.TempDir(), "fills.db"), log)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	// SQLite's type affinity lets text land in the qty column; the scan
	// into an integer must then fail loudly, not drop the row.
	_, err = j.db.Exec(
		`INSERT INTO fills (order_id, symbol, side, price_type, qty, filled_price, message, filled_at)
		 VALUES (1, 'AAPL', 'BUY', 'MARKET', 'not-a-number', '1.00', '', '2026-08-30T14:30:00Z')`)
	if err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}

	if _, err := j.Recent(10); err == nil {
		t.Fatal("expected an error for an unreadable row, got nil")
	}
}
