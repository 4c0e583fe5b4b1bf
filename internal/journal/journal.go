// Package journal persists confirmed fills to SQLite for a local audit
// trail. The trading service remains the system of record; this is the
// desk's own log of what it submitted and saw filled.
package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tradedesk/internal/model"
)

// Journal records fills in a local SQLite database.
type Journal struct {
	mu  sync.Mutex
	db  *sql.DB
	log *slog.Logger
}

// New opens (or creates) the journal database.
func New(dbPath string, log *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS fills (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id     INTEGER NOT NULL,
		symbol       TEXT NOT NULL,
		side         TEXT NOT NULL,
		price_type   TEXT NOT NULL,
		qty          INTEGER NOT NULL,
		filled_price TEXT NOT NULL,
		message      TEXT,
		filled_at    DATETIME NOT NULL,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol);
	CREATE INDEX IF NOT EXISTS idx_fills_filled_at ON fills(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("fill journal opened", "path", dbPath)
	return &Journal{db: db, log: log}, nil
}

// RecordFill persists a confirmed order.
func (j *Journal) RecordFill(order model.Order, message string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	filledAt := time.Now().UTC()
	if order.FilledAt != nil {
		filledAt = order.FilledAt.UTC()
	}

	_, err := j.db.Exec(
		`INSERT INTO fills (order_id, symbol, side, price_type, qty, filled_price, message, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.Symbol,
		string(order.Side),
		string(order.PriceType),
		order.Quantity,
		order.FilledPrice.String(),
		message,
		filledAt.Format(time.RFC3339),
	)
	return err
}

// FillRecord is a row from the fills table.
type FillRecord struct {
	ID          int64  `json:"id"`
	OrderID     int64  `json:"order_id"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	PriceType   string `json:"price_type"`
	Qty         int64  `json:"qty"`
	FilledPrice string `json:"filled_price"`
	Message     string `json:"message"`
	FilledAt    string `json:"filled_at"`
}

// Recent returns the last N fills, newest first.
func (j *Journal) Recent(limit int) ([]FillRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, symbol, side, price_type, qty, filled_price, message, filled_at
		 FROM fills ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []FillRecord
	for rows.Next() {
		var f FillRecord
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Symbol, &f.Side, &f.PriceType,
			&f.Qty, &f.FilledPrice, &f.Message, &f.FilledAt); err != nil {
			return nil, fmt.Errorf("scan fill row: %w", err)
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
