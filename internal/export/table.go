// Package export renders tabular data as CSV, xlsx workbooks and zip
// archives, and reads uploaded CSV or xlsx sheets back into tables.
package export

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Table is a named grid. Rows hold cell values in Columns order.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Records converts the grid into column-keyed string records.
func (t Table) Records() []map[string]string {
	records := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		record := make(map[string]string, len(t.Columns))
		for i, col := range t.Columns {
			if i < len(row) {
				record[col] = CellString(row[i])
			} else {
				record[col] = ""
			}
		}
		records = append(records, record)
	}
	return records
}

// MissingColumns reports the columns from required that t lacks.
func (t Table) MissingColumns(required []string) []string {
	present := make(map[string]struct{}, len(t.Columns))
	for _, col := range t.Columns {
		present[col] = struct{}{}
	}

	var missing []string
	for _, col := range required {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// FromRecords builds a table from records using the given column order.
func FromRecords(name string, columns []string, records []map[string]any) Table {
	rows := make([][]any, 0, len(records))
	for _, record := range records {
		row := make([]any, len(columns))
		for i, col := range columns {
			row[i] = record[col]
		}
		rows = append(rows, row)
	}
	return Table{Name: name, Columns: columns, Rows: rows}
}

// SplitBy partitions t by the values of column, one table per value named
// "<t.Name>_<value>", sorted by value.
func (t Table) SplitBy(column string) ([]Table, error) {
	idx := -1
	for i, col := range t.Columns {
		if col == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("table %q has no column %q", t.Name, column)
	}

	groups := make(map[string][][]any)
	for _, row := range t.Rows {
		var key string
		if idx < len(row) {
			key = CellString(row[idx])
		}
		groups[key] = append(groups[key], row)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]Table, 0, len(keys))
	for _, key := range keys {
		out = append(out, Table{
			Name:    t.Name + "_" + key,
			Columns: t.Columns,
			Rows:    groups[key],
		})
	}
	return out, nil
}

// CellString renders a cell the way CSV output expects it.
func CellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}
