package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset is tabular summary content headed for the export directory,
// keyed by header name so renderers stay independent of column order
// beyond the Headers slice.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter renders the update_overview dataset. Faculty staff open
// these files straight in Excel, which only detects UTF-8 when a BOM is
// present, so one is always written.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset. Cells missing from
// a row render empty rather than failing the file.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	buf.Write([]byte{0xEF, 0xBB, 0xBF})
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		record := make([]string, len(data.Headers))
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
