package excel

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadGrid parses an uploaded spreadsheet into a rectangular grid of raw
// cell strings. XLSX input reads the Data entry sheet when present (the
// faculty feed is a previously exported workbook), falling back to the
// first visible sheet. CSV input is read as-is.
func ReadGrid(r io.Reader, filename string) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return readCSV(data)
	}
	return readXLSX(data)
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var grid [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		grid = append(grid, record)
	}
	return grid, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := ""
	for _, name := range f.GetSheetList() {
		if name == SheetEntry {
			sheet = name
			break
		}
	}
	if sheet == "" {
		for _, name := range f.GetSheetList() {
			visible, err := f.GetSheetVisible(name)
			if err == nil && visible {
				sheet = name
				break
			}
		}
	}
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no visible sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return rows, nil
}
