package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS orders (
    order_id INTEGER PRIMARY KEY,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    order_price REAL NOT NULL,
    quantity REAL NOT NULL,
    timestamp DATETIME NOT NULL,
    status TEXT NOT NULL,
    order_info TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_orders_symbol_status ON orders(symbol, status);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// Idempotent migration for ledger files created before order_info
	// carried the full request payload.
	if err := ensureColumn(d.DB, "orders", "order_info", "TEXT"); err != nil {
		return err
	}
	return nil
}

// ensureColumn adds a column if it does not already exist.
func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(alter); err != nil {
		return fmt.Errorf("alter table %s add column %s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
