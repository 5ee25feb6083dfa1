// Package transaction runs units of work inside database/sql transactions,
// with rollback on error or panic and retry on deadlock.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrDeadlock is returned when a transaction keeps deadlocking after retries
	ErrDeadlock = errors.New("deadlock detected")
)

// IsolationLevel represents the transaction isolation level
type IsolationLevel int

const (
	// ReadCommitted prevents dirty reads (PostgreSQL default)
	ReadCommitted IsolationLevel = iota
	// RepeatableRead prevents non-repeatable reads
	RepeatableRead
	// Serializable provides full isolation
	Serializable
	// Default leaves the isolation level to the driver (SQLite supports no other)
	Default
)

// String returns the string representation of the isolation level
func (l IsolationLevel) String() string {
	switch l {
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	case Default:
		return "DEFAULT"
	default:
		return "READ COMMITTED"
	}
}

// ToSQLOptions converts IsolationLevel to sql.TxOptions
func (l IsolationLevel) ToSQLOptions() *sql.TxOptions {
	switch l {
	case RepeatableRead:
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
	case Serializable:
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	case Default:
		return nil
	default:
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
}

// Manager manages database transactions
type Manager struct {
	db    *sql.DB
	level IsolationLevel
}

// NewManager creates a new transaction manager using the given isolation level
func NewManager(db *sql.DB, level IsolationLevel) *Manager {
	return &Manager{db: db, level: level}
}

// WithTransaction executes fn within a transaction.
// Commits on success; rolls back on error or panic.
func (m *Manager) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, m.level.ToSQLOptions())
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
