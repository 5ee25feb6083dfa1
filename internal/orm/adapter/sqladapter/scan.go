package sqladapter

import (
	"database/sql"

	"github.com/armelgeek/better-query/internal/orm/adapter"
)

// scanRows scans every row into a record keyed by column name. Byte slices
// become strings so text columns read the same across drivers.
func scanRows(rows *sql.Rows) ([]adapter.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []adapter.Record
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(adapter.Record, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
				continue
			}
			record[col] = values[i]
		}
		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
