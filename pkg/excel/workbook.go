package excel

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Sheet names fixed by the legacy export contract.
const (
	SheetComplete = "Complete data"
	SheetEntry    = "Data entry"
	SheetLists    = "_ea_lists"
)

// Formatting semantics a column can carry on the Data entry sheet.
const (
	FormatNone           = ""
	FormatFileExists     = "file_exists"
	FormatWorkflowStatus = "workflow_status"
	FormatLengthBand     = "v2_lengte"
)

// Legacy palette. The colors match the reference exports cell for cell;
// changing any of them breaks structural parity with the old tool.
const (
	fillGood    = "C6EFCE"
	fontGood    = "006100"
	fillBad     = "FFC7CE"
	fontBad     = "9C0006"
	fillNeutral = "FFEB9C"
	fontNeutral = "9C6500"
	fillInfo    = "BDD7EE"
	fontInfo    = "1F4E79"
)

// Length thresholds for the v2_lengte banding.
const (
	lengthBandLow  = 10
	lengthBandHigh = 50
)

// Column describes one exported column.
type Column struct {
	Field    string
	Header   string
	Width    float64
	Editable bool   // unlocked on the Data entry sheet
	ListName string // named option list in _ea_lists backing a dropdown
	Format   string // conditional formatting semantics
}

// WorkbookSpec declares the full workbook layout.
type WorkbookSpec struct {
	CompleteColumns []Column
	EntryColumns    []Column
	Lists           map[string][]string
	ListOrder       []string
	SheetPassword   string
}

// Builder renders row maps into the two-sheet-plus-hidden-list workbook.
type Builder struct {
	spec WorkbookSpec
}

// NewBuilder validates the spec and returns a builder.
func NewBuilder(spec WorkbookSpec) (*Builder, error) {
	if len(spec.CompleteColumns) == 0 || len(spec.EntryColumns) == 0 {
		return nil, fmt.Errorf("workbook spec requires columns for both sheets")
	}
	for _, col := range spec.EntryColumns {
		if col.ListName == "" {
			continue
		}
		if _, ok := spec.Lists[col.ListName]; !ok {
			return nil, fmt.Errorf("column %s references unknown list %s", col.Field, col.ListName)
		}
	}
	return &Builder{spec: spec}, nil
}

// Build renders the workbook for the given rows. Rows map canonical field
// names to display values; iteration order is the caller's row order, so
// identical input yields an identical workbook.
func (b *Builder) Build(rows []map[string]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(SheetComplete); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetEntry); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetLists); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	if err := b.fillSheet(f, SheetComplete, b.spec.CompleteColumns, rows); err != nil {
		return nil, err
	}
	if err := b.fillSheet(f, SheetEntry, b.spec.EntryColumns, rows); err != nil {
		return nil, err
	}
	listRanges, err := b.fillLists(f)
	if err != nil {
		return nil, err
	}
	if err := b.addValidations(f, listRanges, len(rows)); err != nil {
		return nil, err
	}
	if err := b.addConditionalFormats(f, len(rows)); err != nil {
		return nil, err
	}
	if err := b.protect(f, len(rows)); err != nil {
		return nil, err
	}

	if err := f.SetSheetVisible(SheetLists, false); err != nil {
		return nil, fmt.Errorf("hide list sheet: %w", err)
	}
	idx, err := f.GetSheetIndex(SheetComplete)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *Builder) fillSheet(f *excelize.File, sheet string, cols []Column, rows []map[string]string) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9D9D9"}},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	for i, col := range cols {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		cell := name + "1"
		if err := f.SetCellValue(sheet, cell, col.Header); err != nil {
			return fmt.Errorf("write header %s: %w", col.Header, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return err
		}
		width := col.Width
		if width <= 0 {
			width = 18
		}
		if err := f.SetColWidth(sheet, name, name, width); err != nil {
			return err
		}
	}
	for r, row := range rows {
		for i, col := range cols {
			name, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, fmt.Sprintf("%s%d", name, r+2), row[col.Field]); err != nil {
				return fmt.Errorf("write row %d: %w", r+1, err)
			}
		}
	}
	return nil
}

// fillLists writes each named option list into its own _ea_lists column and
// returns absolute range references usable in data validations.
func (b *Builder) fillLists(f *excelize.File) (map[string]string, error) {
	ranges := make(map[string]string, len(b.spec.Lists))
	for i, listName := range b.spec.ListOrder {
		options, ok := b.spec.Lists[listName]
		if !ok {
			return nil, fmt.Errorf("list order references unknown list %s", listName)
		}
		colName, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(SheetLists, colName+"1", listName); err != nil {
			return nil, err
		}
		for j, opt := range options {
			if err := f.SetCellValue(SheetLists, fmt.Sprintf("%s%d", colName, j+2), opt); err != nil {
				return nil, err
			}
		}
		ranges[listName] = fmt.Sprintf("'%s'!$%s$2:$%s$%d", SheetLists, colName, colName, len(options)+1)
	}
	return ranges, nil
}

func (b *Builder) addValidations(f *excelize.File, listRanges map[string]string, rowCount int) error {
	if rowCount == 0 {
		return nil
	}
	for i, col := range b.spec.EntryColumns {
		if col.ListName == "" {
			continue
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		dv := excelize.NewDataValidation(true)
		dv.Sqref = fmt.Sprintf("%s2:%s%d", name, name, rowCount+1)
		dv.SetSqrefDropList(listRanges[col.ListName])
		dv.SetError(excelize.DataValidationErrorStyleStop, "Invalid value", "Pick a value from the dropdown list.")
		if err := f.AddDataValidation(SheetEntry, dv); err != nil {
			return fmt.Errorf("add validation for %s: %w", col.Field, err)
		}
	}
	return nil
}

func (b *Builder) addConditionalFormats(f *excelize.File, rowCount int) error {
	if rowCount == 0 {
		return nil
	}
	good, err := f.NewConditionalStyle(&excelize.Style{
		Font: &excelize.Font{Color: fontGood},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fillGood}},
	})
	if err != nil {
		return err
	}
	bad, err := f.NewConditionalStyle(&excelize.Style{
		Font: &excelize.Font{Color: fontBad},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fillBad}},
	})
	if err != nil {
		return err
	}
	neutral, err := f.NewConditionalStyle(&excelize.Style{
		Font: &excelize.Font{Color: fontNeutral},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fillNeutral}},
	})
	if err != nil {
		return err
	}
	info, err := f.NewConditionalStyle(&excelize.Style{
		Font: &excelize.Font{Color: fontInfo},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fillInfo}},
	})
	if err != nil {
		return err
	}

	for i, col := range b.spec.EntryColumns {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		rangeRef := fmt.Sprintf("%s2:%s%d", name, name, rowCount+1)

		var opts []excelize.ConditionalFormatOptions
		switch col.Format {
		case FormatFileExists:
			opts = []excelize.ConditionalFormatOptions{
				{Type: "cell", Criteria: "equal to", Value: `"yes"`, Format: good},
				{Type: "cell", Criteria: "not equal to", Value: `"yes"`, Format: bad},
			}
		case FormatWorkflowStatus:
			opts = []excelize.ConditionalFormatOptions{
				{Type: "cell", Criteria: "equal to", Value: `"ToDo"`, Format: neutral},
				{Type: "cell", Criteria: "equal to", Value: `"InProgress"`, Format: info},
				{Type: "cell", Criteria: "equal to", Value: `"Done"`, Format: good},
			}
		case FormatLengthBand:
			opts = []excelize.ConditionalFormatOptions{
				{Type: "cell", Criteria: "less than", Value: fmt.Sprint(lengthBandLow), Format: info},
				{Type: "cell", Criteria: "between", MinValue: fmt.Sprint(lengthBandLow), MaxValue: fmt.Sprint(lengthBandHigh), Format: good},
				{Type: "cell", Criteria: "greater than", Value: fmt.Sprint(lengthBandHigh), Format: bad},
			}
		default:
			continue
		}
		if err := f.SetConditionalFormat(SheetEntry, rangeRef, opts); err != nil {
			return fmt.Errorf("conditional format for %s: %w", col.Field, err)
		}
	}
	return nil
}

// protect locks both visible sheets. The Complete data sheet is entirely
// read-only; on Data entry only editable columns are unlocked, and only in
// the data region so end users cannot retitle headers.
func (b *Builder) protect(f *excelize.File, rowCount int) error {
	unlocked, err := f.NewStyle(&excelize.Style{Protection: &excelize.Protection{Locked: false}})
	if err != nil {
		return err
	}
	for i, col := range b.spec.EntryColumns {
		if !col.Editable || rowCount == 0 {
			continue
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		start := fmt.Sprintf("%s2", name)
		end := fmt.Sprintf("%s%d", name, rowCount+1)
		if err := f.SetCellStyle(SheetEntry, start, end, unlocked); err != nil {
			return err
		}
	}

	protOpts := func() *excelize.SheetProtectionOptions {
		return &excelize.SheetProtectionOptions{
			AlgorithmName:       "SHA-512",
			Password:            b.spec.SheetPassword,
			SelectLockedCells:   true,
			SelectUnlockedCells: true,
		}
	}
	if err := f.ProtectSheet(SheetComplete, protOpts()); err != nil {
		return fmt.Errorf("protect complete sheet: %w", err)
	}
	if err := f.ProtectSheet(SheetEntry, protOpts()); err != nil {
		return fmt.Errorf("protect entry sheet: %w", err)
	}
	return nil
}
