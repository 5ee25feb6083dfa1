package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/armelgeek/better-query/internal/orm/adapter/sqladapter"
)

// HistoryTable stores one row per migrated model
const HistoryTable = "better_query_schema"

// History tracks the fingerprint each model had when its table was created
type History struct {
	db      *sql.DB
	dialect sqladapter.Dialect
	now     func() time.Time
}

// NewHistory creates a history stored in db
func NewHistory(db *sql.DB, dialect sqladapter.Dialect) *History {
	return &History{db: db, dialect: dialect, now: time.Now}
}

// Init ensures the history table exists
func (h *History) Init(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	model VARCHAR(255) PRIMARY KEY,
	checksum VARCHAR(64) NOT NULL,
	applied_at TIMESTAMP NOT NULL
)`, h.dialect.Quote(HistoryTable))
	if _, err := h.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to initialize schema history: %w", err)
	}
	return nil
}

// Applied returns model name -> checksum for every recorded model
func (h *History) Applied(ctx context.Context) (map[string]string, error) {
	query := fmt.Sprintf("SELECT model, checksum FROM %s", h.dialect.Quote(HistoryTable))
	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema history: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var model, checksum string
		if err := rows.Scan(&model, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan schema history: %w", err)
		}
		applied[model] = checksum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schema history: %w", err)
	}
	return applied, nil
}

// Record stores the checksum of model, replacing an earlier one
func (h *History) Record(ctx context.Context, model, checksum string) error {
	table := h.dialect.Quote(HistoryTable)
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE model = %s", table, h.dialect.Placeholder(1)), model); err != nil {
		return fmt.Errorf("failed to record model %s: %w", model, err)
	}
	insert := fmt.Sprintf("INSERT INTO %s (model, checksum, applied_at) VALUES (%s, %s, %s)",
		table, h.dialect.Placeholder(1), h.dialect.Placeholder(2), h.dialect.Placeholder(3))
	if _, err := tx.ExecContext(ctx, insert, model, checksum, h.now().UTC()); err != nil {
		return fmt.Errorf("failed to record model %s: %w", model, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema history: %w", err)
	}
	return nil
}

// Forget removes a model so its next migration records a fresh checksum
func (h *History) Forget(ctx context.Context, model string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE model = %s", h.dialect.Quote(HistoryTable), h.dialect.Placeholder(1))
	if _, err := h.db.ExecContext(ctx, query, model); err != nil {
		return fmt.Errorf("failed to forget model %s: %w", model, err)
	}
	return nil
}
