package excel

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// maxReportedMismatches bounds the mismatch list so the report stays
// readable when two exports diverge wholesale.
const maxReportedMismatches = 200

// CellDiff records one mismatching cell between two workbooks.
type CellDiff struct {
	Sheet    string `json:"sheet"`
	Cell     string `json:"cell"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// ParityReport summarises structural equivalence between a generated
// export and a legacy reference export.
type ParityReport struct {
	MatchedColumns  []string   `json:"matchedColumns"`
	MissingColumns  []string   `json:"missingColumns"`
	ExtraColumns    []string   `json:"extraColumns"`
	MissingSheets   []string   `json:"missingSheets"`
	MissingRows     []string   `json:"missingRows"`
	MismatchedCells []CellDiff `json:"mismatchedCells"`
	Truncated       bool       `json:"truncated"`
}

// Clean reports whether the two workbooks are structurally equivalent.
func (r *ParityReport) Clean() bool {
	return len(r.MissingColumns) == 0 && len(r.ExtraColumns) == 0 &&
		len(r.MissingSheets) == 0 && len(r.MissingRows) == 0 &&
		len(r.MismatchedCells) == 0
}

// CompareWorkbooks diffs the actual workbook against the expected one.
// Rows are matched by the first column value (the material identifier), so
// row ordering differences surface as cell mismatches rather than hiding
// real divergence.
func CompareWorkbooks(expectedPath, actualPath string) (*ParityReport, error) {
	expected, err := excelize.OpenFile(expectedPath)
	if err != nil {
		return nil, fmt.Errorf("open expected workbook: %w", err)
	}
	defer expected.Close()

	actual, err := excelize.OpenFile(actualPath)
	if err != nil {
		return nil, fmt.Errorf("open actual workbook: %w", err)
	}
	defer actual.Close()

	report := &ParityReport{}

	actualSheets := make(map[string]bool)
	for _, name := range actual.GetSheetList() {
		actualSheets[name] = true
	}
	for _, name := range expected.GetSheetList() {
		if !actualSheets[name] {
			report.MissingSheets = append(report.MissingSheets, name)
			continue
		}
		if err := compareSheet(expected, actual, name, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func compareSheet(expected, actual *excelize.File, sheet string, report *ParityReport) error {
	expRows, err := expected.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read expected sheet %s: %w", sheet, err)
	}
	actRows, err := actual.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read actual sheet %s: %w", sheet, err)
	}
	if len(expRows) == 0 {
		return nil
	}

	expHeaders := expRows[0]
	var actHeaders []string
	if len(actRows) > 0 {
		actHeaders = actRows[0]
	}

	actHeaderSet := make(map[string]int, len(actHeaders))
	for i, h := range actHeaders {
		actHeaderSet[h] = i
	}
	expHeaderSet := make(map[string]bool, len(expHeaders))
	for _, h := range expHeaders {
		expHeaderSet[h] = true
	}
	for _, h := range expHeaders {
		if _, ok := actHeaderSet[h]; ok {
			report.MatchedColumns = append(report.MatchedColumns, sheet+"!"+h)
		} else {
			report.MissingColumns = append(report.MissingColumns, sheet+"!"+h)
		}
	}
	for _, h := range actHeaders {
		if !expHeaderSet[h] {
			report.ExtraColumns = append(report.ExtraColumns, sheet+"!"+h)
		}
	}

	actByKey := make(map[string][]string)
	for _, row := range actRows[1:] {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		actByKey[row[0]] = row
	}

	for _, expRow := range expRows[1:] {
		if len(expRow) == 0 || expRow[0] == "" {
			continue
		}
		actRow, ok := actByKey[expRow[0]]
		if !ok {
			report.MissingRows = append(report.MissingRows, sheet+"!"+expRow[0])
			continue
		}
		for i, h := range expHeaders {
			j, ok := actHeaderSet[h]
			if !ok {
				continue
			}
			expVal := cellAt(expRow, i)
			actVal := cellAt(actRow, j)
			if expVal == actVal {
				continue
			}
			if len(report.MismatchedCells) >= maxReportedMismatches {
				report.Truncated = true
				return nil
			}
			name, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				return err
			}
			report.MismatchedCells = append(report.MismatchedCells, CellDiff{
				Sheet:    sheet,
				Cell:     fmt.Sprintf("%s (%s)", name, expRow[0]),
				Expected: expVal,
				Actual:   actVal,
			})
		}
	}
	return nil
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
