package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

var returningClause = regexp.MustCompile(`(?i)\breturning\b`)

// ReturnsRows guesses whether a statement produces a result set. It looks at
// the leading keyword and for a RETURNING clause.
func ReturnsRows(statement string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(statement))
	for _, prefix := range []string{"SELECT", "WITH", "TABLE", "VALUES", "PRAGMA", "EXPLAIN", "SHOW"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return returningClause.MatchString(statement)
}

// CollectRows reads every row of rows into a Result and closes rows.
func CollectRows(rows *sql.Rows) (*Result, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	result := &Result{
		Columns: columns,
		Rows:    make([]map[string]any, 0),
	}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}
