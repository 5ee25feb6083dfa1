package sqladapter

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/orm/schema"
)

// GenerateCreateTable generates a CREATE TABLE statement for a model. An "id"
// primary key column is added when the model does not declare one.
func (a *Adapter) GenerateCreateTable(model *schema.Model) (string, error) {
	if model == nil {
		return "", fmt.Errorf("model cannot be nil")
	}

	table := model.Table
	if table == "" {
		table = model.Name
	}

	names := make([]string, 0, len(model.Fields))
	for name := range model.Fields {
		if name != "id" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	defs := []string{a.dialect.Quote("id") + " TEXT PRIMARY KEY"}
	var constraints []string
	for _, name := range names {
		attr := model.Fields[name]
		def, err := a.columnDefinition(name, attr)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", name, err)
		}
		defs = append(defs, def)

		if ref := attr.References; ref != nil {
			target := ref.Model
			if a.registry != nil {
				target = a.registry.TableName(ref.Model)
			}
			field := ref.Field
			if field == "" {
				field = "id"
			}
			constraints = append(constraints, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s",
				a.dialect.Quote(name), a.dialect.Quote(target), a.dialect.Quote(field), ref.OnDelete, ref.OnUpdate))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", a.dialect.Quote(table))
	all := append(defs, constraints...)
	for i, def := range all {
		b.WriteString("  ")
		b.WriteString(def)
		if i < len(all)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String(), nil
}

// columnDefinition generates a column definition for a field
func (a *Adapter) columnDefinition(name string, attr *schema.FieldAttribute) (string, error) {
	parts := []string{a.dialect.Quote(name), a.dialect.ColumnType(attr)}
	if attr.Required {
		parts = append(parts, "NOT NULL")
	}
	if attr.Unique {
		parts = append(parts, "UNIQUE")
	}
	if attr.HasDefault {
		if lit, ok := a.defaultLiteral(attr); ok {
			parts = append(parts, "DEFAULT "+lit)
		}
	}
	return strings.Join(parts, " "), nil
}

// defaultLiteral renders scalar defaults; other defaults are applied by validation
func (a *Adapter) defaultLiteral(attr *schema.FieldAttribute) (string, bool) {
	switch v := attr.Default.(type) {
	case string:
		if attr.Type != schema.TypeString || strings.Contains(v, `\`) {
			return "", false
		}
		return pq.QuoteLiteral(v), true
	case bool:
		if a.dialect == SQLite {
			if v {
				return "1", true
			}
			return "0", true
		}
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", false
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return "", false
}

// CreateSchema creates a table per model, in the given order. Every model is
// attempted; failures are returned together.
func (a *Adapter) CreateSchema(ctx context.Context, models []*schema.Model) error {
	var errs error
	for _, m := range models {
		stmt, err := a.GenerateCreateTable(m)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("model %s: %w", m.Name, err))
			continue
		}
		a.logger.Debug("sql exec", zap.String("model", m.Name), zap.String("sql", stmt))
		if _, err := a.q.ExecContext(ctx, stmt); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("model %s: %w", m.Name, ConvertDBError(err)))
		}
	}
	return errs
}
