// Package db persists the order ledger in SQLite so that pending
// orders survive restarts.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"execution-core/pkg/exchanges/common"
)

var (
	ErrNotFound    = errors.New("order not found")
	ErrStatusFinal = errors.New("order status is final")
)

// Ledger provides order persistence queries.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a Ledger over an open database handle.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

const orderColumns = `order_id, symbol, side, order_price, quantity, timestamp, status,
       COALESCE(order_info, ''), created_at, updated_at`

// SaveOrder inserts or replaces an order. A record without a status is
// stored as PENDING.
func (l *Ledger) SaveOrder(ctx context.Context, rec OrderRecord) error {
	if rec.Status == "" {
		rec.Status = common.StatusPending
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	info, err := rec.Info.marshal()
	if err != nil {
		return err
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, symbol, side, order_price, quantity, timestamp, status, order_info)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			symbol = excluded.symbol,
			side = excluded.side,
			order_price = excluded.order_price,
			quantity = excluded.quantity,
			timestamp = excluded.timestamp,
			status = excluded.status,
			order_info = excluded.order_info,
			updated_at = CURRENT_TIMESTAMP
	`, rec.OrderID, rec.Symbol, rec.Side, rec.OrderPrice, rec.Quantity, rec.Timestamp, rec.Status, info)
	if err != nil {
		return fmt.Errorf("save order %d: %w", rec.OrderID, err)
	}
	return nil
}

// UpdateStatus moves an order to a new status. Transitions out of a
// terminal status are refused with ErrStatusFinal.
func (l *Ledger) UpdateStatus(ctx context.Context, orderID int64, status common.OrderStatus) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE order_id = ? AND status NOT IN ('FILLED', 'CANCELED', 'EXPIRED', 'REJECTED')
	`, status, orderID)
	if err != nil {
		return fmt.Errorf("update order %d status: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order %d status: %w", orderID, err)
	}
	if n == 0 {
		// Distinguish missing from already-final.
		if _, err := l.GetOrder(ctx, orderID); err != nil {
			return err
		}
		return fmt.Errorf("order %d: %w", orderID, ErrStatusFinal)
	}
	return nil
}

// GetOrder returns a single order by ID.
func (l *Ledger) GetOrder(ctx context.Context, orderID int64) (*OrderRecord, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, orderID)
	rec, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", orderID, err)
	}
	return rec, nil
}

// OrdersBySymbol returns orders for a symbol, optionally filtered by
// status, newest first.
func (l *Ledger) OrdersBySymbol(ctx context.Context, symbol string, status common.OrderStatus, limit int) ([]OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE symbol = ?`
	args := []any{symbol}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY timestamp DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders for %s: %w", symbol, err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// LoadPending returns all PENDING orders grouped by symbol. Used on
// startup to re-arm order monitoring.
func (l *Ledger) LoadPending(ctx context.Context) (map[string][]OrderRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = 'PENDING' ORDER BY timestamp ASC`)
	if err != nil {
		return nil, fmt.Errorf("query pending orders: %w", err)
	}
	defer rows.Close()

	recs, err := collectOrders(rows)
	if err != nil {
		return nil, err
	}
	bySymbol := make(map[string][]OrderRecord)
	for _, rec := range recs {
		bySymbol[rec.Symbol] = append(bySymbol[rec.Symbol], rec)
	}
	return bySymbol, nil
}

// Delete removes an order outright. Prefer Cleanup for routine purging.
func (l *Ledger) Delete(ctx context.Context, orderID int64) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM orders WHERE order_id = ?`, orderID)
	if err != nil {
		return fmt.Errorf("delete order %d: %w", orderID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	return nil
}

// Cleanup purges completed orders older than the retention window.
// PENDING orders are never purged. Returns the number of rows removed.
func (l *Ledger) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := l.db.ExecContext(ctx, `
		DELETE FROM orders
		WHERE status IN ('FILLED', 'CANCELED', 'EXPIRED', 'REJECTED', 'UNKNOWN') AND timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup orders: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup orders: %w", err)
	}
	return n, nil
}

// Statistics returns order counts by status plus the total.
func (l *Ledger) Statistics(ctx context.Context) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("order statistics: %w", err)
	}
	defer rows.Close()

	stats := map[string]int{"total": 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan statistics: %w", err)
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*OrderRecord, error) {
	var rec OrderRecord
	var info string
	if err := s.Scan(&rec.OrderID, &rec.Symbol, &rec.Side, &rec.OrderPrice, &rec.Quantity,
		&rec.Timestamp, &rec.Status, &info, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := unmarshalInfo(info)
	if err != nil {
		return nil, err
	}
	rec.Info = parsed
	return &rec, nil
}

func collectOrders(rows *sql.Rows) ([]OrderRecord, error) {
	var recs []OrderRecord
	for rows.Next() {
		rec, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}
