package sqladapter

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/armelgeek/better-query/internal/orm/schema"
)

// Dialect selects SQL syntax differences between backends
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// String returns the dialect name
func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	default:
		return "postgres"
	}
}

// ParseDialect converts a driver name to a Dialect
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return 0, fmt.Errorf("unsupported dialect: %s", s)
	}
}

// Placeholder returns the bind parameter for the n-th argument (1-based)
func (d Dialect) Placeholder(n int) string {
	if d == SQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// Quote quotes an identifier
func (d Dialect) Quote(name string) string {
	return pq.QuoteIdentifier(name)
}

// ColumnType maps a field attribute to a column type
func (d Dialect) ColumnType(attr *schema.FieldAttribute) string {
	if d == SQLite {
		switch attr.Type {
		case schema.TypeNumber:
			return "REAL"
		case schema.TypeBoolean:
			return "INTEGER"
		default:
			return "TEXT"
		}
	}

	switch attr.Type {
	case schema.TypeString:
		if attr.MaxLength != nil {
			return fmt.Sprintf("VARCHAR(%d)", *attr.MaxLength)
		}
		return "TEXT"
	case schema.TypeNumber:
		return "DOUBLE PRECISION"
	case schema.TypeBoolean:
		return "BOOLEAN"
	case schema.TypeDate:
		return "TIMESTAMPTZ"
	case schema.TypeJSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

// likeOperator returns the keyword for a case-insensitive LIKE. SQLite's LIKE
// already ignores ASCII case.
func (d Dialect) likeOperator(insensitive bool) string {
	if insensitive && d == Postgres {
		return "ILIKE"
	}
	return "LIKE"
}

// limitClause renders LIMIT/OFFSET; SQLite requires a LIMIT before OFFSET
func (d Dialect) limitClause(limit, offset int) string {
	var b strings.Builder
	switch {
	case limit > 0:
		fmt.Fprintf(&b, " LIMIT %d", limit)
	case offset > 0 && d == SQLite:
		b.WriteString(" LIMIT -1")
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String()
}
