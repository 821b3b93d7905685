package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset is tabular content keyed by header.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Append adds one row built from values given in header order.
func (d *Dataset) Append(values ...string) {
	row := make(map[string]string, len(d.Headers))
	for i, header := range d.Headers {
		if i < len(values) {
			row[header] = values[i]
		}
	}
	d.Rows = append(d.Rows, row)
}

type CSVExporter struct{}

func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render encodes the dataset as CSV, header line first.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
