// Package query runs SQL against the warehouse with a fixed retry budget and
// degrades to an empty Dataset once the budget is spent.
package query

import (
	"database/sql"
	"fmt"
)

// Dataset is a fetched table. It is shared between cache readers and must not
// be modified after it is returned.
type Dataset struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func EmptyDataset() Dataset {
	return Dataset{Columns: []string{}, Rows: [][]any{}}
}

func (d Dataset) Len() int { return len(d.Rows) }

func (d Dataset) Empty() bool { return len(d.Rows) == 0 }

// ColumnIndex returns the position of name, or -1.
func (d Dataset) ColumnIndex(name string) int {
	for i, column := range d.Columns {
		if column == name {
			return i
		}
	}
	return -1
}

// ScanRows drains rows into a Dataset. It does not close rows.
func ScanRows(rows *sql.Rows) (Dataset, error) {
	columns, err := rows.Columns()
	if err != nil {
		return Dataset{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Dataset{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Dataset{}, fmt.Errorf("iterate rows: %w", err)
	}
	return Dataset{Columns: columns, Rows: resultRows}, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
