// Package table reads the lab's bookkeeping tables: the session manifest,
// the subject sheet and per-subject fiber location tables. Tables are CSV
// exports with a header row.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Row maps column headers to cell values.
type Row map[string]string

// Get returns the trimmed cell for column, or "".
func (r Row) Get(column string) string {
	return strings.TrimSpace(r[column])
}

// Reader reads CSV tables.
type Reader struct{}

// NewReader creates a Reader.
func NewReader() *Reader {
	return &Reader{}
}

// ReadTable returns every data row of path keyed by header.
func (r *Reader) ReadTable(path string) ([]map[string]string, error) {
	rows, err := ReadRows(path)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]string, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out, nil
}

// ReadRows reads path into rows.
func ReadRows(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer file.Close()

	rows, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", path, err)
	}
	return rows, nil
}

// Decode parses CSV with a header row. Blank lines are skipped and short
// rows leave the missing cells empty.
func Decode(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("table is empty")
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if isBlank(record) {
			continue
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func requireColumns(rows []Row, columns ...string) error {
	if len(rows) == 0 {
		return nil
	}
	var missing []string
	for _, col := range columns {
		if _, ok := rows[0][col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("table is missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
