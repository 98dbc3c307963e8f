package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// EncodeCSV writes a header row followed by every row of t.
func EncodeCSV(t Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = CellString(row[i])
			}
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCSV parses a CSV document whose first row is the header.
// Empty input yields an empty table.
func DecodeCSV(name string, data []byte) (Table, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return Table{Name: name}, nil
	}
	if err != nil {
		return Table{}, fmt.Errorf("failed to read csv header: %w", err)
	}

	columns := make([]string, len(header))
	for i, col := range header {
		columns[i] = strings.TrimSpace(col)
	}

	t := Table{Name: name, Columns: columns}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("failed to read csv row: %w", err)
		}

		row := make([]any, len(columns))
		for i := range columns {
			if i < len(record) {
				row[i] = record[i]
			} else {
				row[i] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}

	return t, nil
}
