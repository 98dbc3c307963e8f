package export

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// EncodeWorkbook renders t as a single-sheet xlsx workbook.
func EncodeWorkbook(t Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	for col, header := range t.Columns {
		cellRef, err := cellName(col, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(defaultSheet, cellRef, header); err != nil {
			return nil, fmt.Errorf("failed to write header %q: %w", header, err)
		}
	}

	for r, row := range t.Rows {
		for col := range t.Columns {
			if col >= len(row) || row[col] == nil {
				continue
			}
			cellRef, err := cellName(col, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(defaultSheet, cellRef, row[col]); err != nil {
				return nil, fmt.Errorf("failed to write cell %s: %w", cellRef, err)
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeWorkbook reads the first sheet of an xlsx workbook; the first row is
// the header.
func DecodeWorkbook(name string, data []byte) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Table{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{Name: name}, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return Table{Name: name}, nil
	}

	columns := make([]string, len(rows[0]))
	for i, col := range rows[0] {
		columns[i] = strings.TrimSpace(col)
	}

	t := Table{Name: name, Columns: columns}
	for _, record := range rows[1:] {
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

// DecodeUpload picks the decoder from the file extension.
func DecodeUpload(filename string, data []byte) (Table, error) {
	name := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	switch strings.ToLower(path.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return DecodeWorkbook(name, data)
	case ".csv", "":
		return DecodeCSV(name, data)
	default:
		return Table{}, fmt.Errorf("unsupported file type %q", path.Ext(filename))
	}
}

func cellName(col, row int) (string, error) {
	name, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return "", fmt.Errorf("invalid cell coordinates (%d,%d): %w", col+1, row, err)
	}
	return name, nil
}
