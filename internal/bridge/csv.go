package bridge

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
)

// Table is a parsed CSV payload held in memory for transformation. Cells
// are strings; an empty cell loads as NULL.
type Table struct {
	Columns []string
	Records [][]string
}

// ParseCSV reads a headered CSV payload. "NaN" cells (pandas' missing-value
// marker in upstream exports) are normalized to empty.
func ParseCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	t := &Table{Columns: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		for i, cell := range record {
			if cell == "NaN" {
				record[i] = ""
			}
		}
		t.Records = append(t.Records, record)
	}
	return t, nil
}

// Encode writes the table back out as headered CSV.
func (t *Table) Encode(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return err
	}
	for _, record := range t.Records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ColumnIndex returns the position of a column, -1 when absent.
func (t *Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// readHeader reads just the header record of a CSV stream.
func readHeader(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	return header, nil
}

// missingColumns reports required columns absent from the table.
func missingColumns(have, required []string) []string {
	set := make(map[string]bool, len(have))
	for _, col := range have {
		set[col] = true
	}
	var missing []string
	for _, col := range required {
		if !set[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

// Exports of the imweb shop backend render order timestamps as
// 2006-01-02T15:04:05.000+09:00 strings that the warehouse date columns
// reject; only the date part carries information.
var offsetTimestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}\+\d{2}:\d{2}$`)

// ScrubOffsetTimestamps rewrites every timestamp-shaped cell to its date
// part. Safe to apply to whole tables; non-matching cells pass through.
func ScrubOffsetTimestamps(t *Table) (*Table, error) {
	for _, record := range t.Records {
		for i, cell := range record {
			if offsetTimestampPattern.MatchString(cell) {
				record[i] = cell[:10]
			}
		}
	}
	return t, nil
}
