package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"sort"
)

// Entry is one file inside a zip archive.
type Entry struct {
	Name string
	Data []byte
}

func Zip(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, entry := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: entry.Name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("failed to add %q to archive: %w", entry.Name, err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("failed to write %q to archive: %w", entry.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}
	return buf.Bytes(), nil
}

// ZipCSV archives each table as "<name>.csv".
func ZipCSV(tables []Table) ([]byte, error) {
	entries := make([]Entry, 0, len(tables))
	for _, t := range tables {
		data, err := EncodeCSV(t)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", t.Name, err)
		}
		entries = append(entries, Entry{Name: t.Name + ".csv", Data: data})
	}
	return Zip(entries)
}

// ZipWorkbooks archives each table as "<name>.xlsx".
func ZipWorkbooks(tables []Table) ([]byte, error) {
	entries := make([]Entry, 0, len(tables))
	for _, t := range tables {
		data, err := EncodeWorkbook(t)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", t.Name, err)
		}
		entries = append(entries, Entry{Name: t.Name + ".xlsx", Data: data})
	}
	return Zip(entries)
}

// Unzip returns the archive's entries sorted by name.
func Unzip(data []byte) ([]Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	entries := make([]Entry, 0, len(zr.File))
	for _, file := range zr.File {
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %q: %w", file.Name, err)
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %q: %w", file.Name, err)
		}
		entries = append(entries, Entry{Name: file.Name, Data: content})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
