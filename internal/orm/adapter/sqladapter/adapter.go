// Package sqladapter implements the storage contract over database/sql for
// PostgreSQL (pgx or lib/pq drivers) and SQLite. Columns are named after the
// fields they store.
package sqladapter

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/orm/adapter"
	"github.com/armelgeek/better-query/internal/orm/schema"
	"github.com/armelgeek/better-query/internal/orm/transaction"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Adapter is a database/sql backed adapter.Adapter
type Adapter struct {
	db       *sql.DB
	q        querier
	inTx     bool
	dialect  Dialect
	registry *schema.Registry
	txm      *transaction.Manager
	logger   *zap.Logger
}

// Option configures an Adapter
type Option func(*Adapter)

// WithLogger logs every statement at debug level
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an adapter. The registry resolves model names to tables and
// drives value unmarshalling.
func New(db *sql.DB, dialect Dialect, registry *schema.Registry, opts ...Option) *Adapter {
	level := transaction.ReadCommitted
	if dialect == SQLite {
		level = transaction.Default
	}
	a := &Adapter{
		db:       db,
		q:        db,
		dialect:  dialect,
		registry: registry,
		txm:      transaction.NewManager(db, level),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BindRegistry replaces the registry used for table names and unmarshalling
func (a *Adapter) BindRegistry(registry *schema.Registry) {
	a.registry = registry
}

// Dialect returns the SQL dialect in use
func (a *Adapter) Dialect() Dialect {
	return a.dialect
}

func (a *Adapter) table(model string) string {
	if a.registry == nil {
		return a.dialect.Quote(model)
	}
	return a.dialect.Quote(a.registry.TableName(model))
}

func (a *Adapter) fields(model string) map[string]*schema.FieldAttribute {
	if a.registry == nil {
		return nil
	}
	fields, err := a.registry.GetFields(model)
	if err != nil {
		return nil
	}
	return fields
}

func (a *Adapter) query(ctx context.Context, model, stmt string, args []interface{}) ([]adapter.Record, error) {
	a.logger.Debug("sql query", zap.String("model", model), zap.String("sql", stmt), zap.Int("args", len(args)))

	rows, err := a.q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return nil, ConvertDBError(err)
	}

	fields := a.fields(model)
	for i, r := range records {
		records[i] = adapter.UnmarshalRecord(r, fields)
	}
	return records, nil
}

// Create inserts a row and returns it as stored
func (a *Adapter) Create(ctx context.Context, model string, data adapter.Record) (adapter.Record, error) {
	values, err := adapter.MarshalRecord(data)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", model, err)
	}

	var stmt string
	var args []interface{}
	if len(values) == 0 {
		stmt = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", a.table(model))
	} else {
		columns := sortedKeys(values)
		quoted := make([]string, len(columns))
		placeholders := make([]string, len(columns))
		for i, col := range columns {
			quoted[i] = a.dialect.Quote(col)
			args = append(args, values[col])
			placeholders[i] = a.dialect.Placeholder(i + 1)
		}
		stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			a.table(model), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	}

	records, err := a.query(ctx, model, stmt, args)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", model, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("create %s: no row returned", model)
	}
	return records[0], nil
}

// FindFirst returns the first matching row or nil
func (a *Adapter) FindFirst(ctx context.Context, model string, where []adapter.Where, include *adapter.Include) (adapter.Record, error) {
	records, err := a.FindMany(ctx, model, adapter.Query{Where: where, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// FindMany returns matching rows, ordered and paginated
func (a *Adapter) FindMany(ctx context.Context, model string, q adapter.Query) ([]adapter.Record, error) {
	columns := "*"
	if len(q.Select) > 0 {
		quoted := make([]string, len(q.Select))
		for i, col := range q.Select {
			quoted[i] = a.dialect.Quote(col)
		}
		columns = strings.Join(quoted, ", ")
	}

	wb := &whereBuilder{dialect: a.dialect}
	clause, err := wb.build(q.Where)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", model, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", columns, a.table(model))
	if clause != "" {
		b.WriteString(" WHERE " + clause)
	}
	b.WriteString(orderClause(a.dialect, q.OrderBy))
	b.WriteString(a.dialect.limitClause(q.Limit, q.Offset))

	records, err := a.query(ctx, model, b.String(), wb.args)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", model, err)
	}
	return records, nil
}

// Update applies data to every matching row and returns the first
func (a *Adapter) Update(ctx context.Context, model string, where []adapter.Where, data adapter.Record) (adapter.Record, error) {
	if len(data) == 0 {
		return a.FindFirst(ctx, model, where, nil)
	}
	values, err := adapter.MarshalRecord(data)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", model, err)
	}

	wb := &whereBuilder{dialect: a.dialect}
	columns := sortedKeys(values)
	sets := make([]string, len(columns))
	for i, col := range columns {
		wb.args = append(wb.args, values[col])
		sets[i] = fmt.Sprintf("%s = %s", a.dialect.Quote(col), a.dialect.Placeholder(len(wb.args)))
	}

	clause, err := wb.build(where)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", model, err)
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s", a.table(model), strings.Join(sets, ", "))
	if clause != "" {
		stmt += " WHERE " + clause
	}
	stmt += " RETURNING *"

	records, err := a.query(ctx, model, stmt, wb.args)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", model, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// Delete removes every matching row
func (a *Adapter) Delete(ctx context.Context, model string, where []adapter.Where) error {
	wb := &whereBuilder{dialect: a.dialect}
	clause, err := wb.build(where)
	if err != nil {
		return fmt.Errorf("delete %s: %w", model, err)
	}
	stmt := "DELETE FROM " + a.table(model)
	if clause != "" {
		stmt += " WHERE " + clause
	}

	a.logger.Debug("sql exec", zap.String("model", model), zap.String("sql", stmt))
	if _, err := a.q.ExecContext(ctx, stmt, wb.args...); err != nil {
		return fmt.Errorf("delete %s: %w", model, ConvertDBError(err))
	}
	return nil
}

// Count returns the number of matching rows
func (a *Adapter) Count(ctx context.Context, model string, where []adapter.Where) (int, error) {
	wb := &whereBuilder{dialect: a.dialect}
	clause, err := wb.build(where)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", model, err)
	}
	stmt := "SELECT COUNT(*) FROM " + a.table(model)
	if clause != "" {
		stmt += " WHERE " + clause
	}

	rows, err := a.q.QueryContext(ctx, stmt, wb.args...)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", model, ConvertDBError(err))
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("count %s: %w", model, err)
		}
	}
	return n, rows.Err()
}

// WithTx runs fn with an adapter bound to one transaction. Nested calls reuse
// the outer transaction.
func (a *Adapter) WithTx(ctx context.Context, fn func(ctx context.Context, tx adapter.Adapter) error) error {
	if a.inTx {
		return fn(ctx, a)
	}
	return a.txm.WithRetry(ctx, nil, func(tx *sql.Tx) error {
		bound := *a
		bound.q = tx
		bound.inTx = true
		return fn(ctx, &bound)
	})
}

// CreateWithRelations inserts a row and its junction rows in one transaction
func (a *Adapter) CreateWithRelations(ctx context.Context, model string, data adapter.Record, relations []adapter.RelationWrite) (adapter.Record, error) {
	var created adapter.Record
	err := a.WithTx(ctx, func(ctx context.Context, tx adapter.Adapter) error {
		var err error
		created, err = tx.Create(ctx, model, data)
		if err != nil {
			return err
		}
		return replaceRelations(ctx, tx, created["id"], relations)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateWithRelations updates a row and replaces its junction rows in one transaction
func (a *Adapter) UpdateWithRelations(ctx context.Context, model string, where []adapter.Where, data adapter.Record, relations []adapter.RelationWrite) (adapter.Record, error) {
	var updated adapter.Record
	err := a.WithTx(ctx, func(ctx context.Context, tx adapter.Adapter) error {
		var err error
		updated, err = tx.Update(ctx, model, where, data)
		if err != nil || updated == nil {
			return err
		}
		return replaceRelations(ctx, tx, updated["id"], relations)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ValidateReferences checks that every referenced row exists
func (a *Adapter) ValidateReferences(ctx context.Context, model string, data adapter.Record) error {
	return adapter.CheckReferences(ctx, a, a.fields(model), data)
}

func replaceRelations(ctx context.Context, tx adapter.Adapter, sourceID interface{}, relations []adapter.RelationWrite) error {
	for _, rw := range relations {
		rel := rw.Relationship
		if err := tx.Delete(ctx, rel.Through, []adapter.Where{adapter.Eq(rel.LocalKey, sourceID)}); err != nil {
			return err
		}
		seen := make(map[string]bool, len(rw.IDs))
		for _, id := range rw.IDs {
			key := fmt.Sprint(id)
			if seen[key] {
				continue
			}
			seen[key] = true
			row := adapter.Record{
				"id":          uuid.New().String(),
				rel.LocalKey:  sourceID,
				rel.TargetKey: id,
			}
			if _, err := tx.Create(ctx, rel.Through, row); err != nil {
				return err
			}
		}
	}
	return nil
}

func sortedKeys(r adapter.Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
