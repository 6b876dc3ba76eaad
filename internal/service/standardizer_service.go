package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/utsmok/ea-cli-django-sub002/internal/models"
	"github.com/utsmok/ea-cli-django-sub002/internal/schema"
	appErrors "github.com/utsmok/ea-cli-django-sub002/pkg/errors"
)

// dateLayouts are tried in order; the first hit wins. Four-digit years
// first so "02-03-2024" never parses as a two-digit year.
var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"2-1-2006",
	"02/01/2006",
	"2/1/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// StandardizedRow is one canonical row ready for staging.
type StandardizedRow struct {
	RowIndex int
	Fields   models.FieldMap
	Warnings []string
}

// StandardizeResult carries the canonical rows plus every row-level
// warning the file produced.
type StandardizeResult struct {
	Rows     []StandardizedRow
	Warnings []string
}

// StandardizerService normalizes raw spreadsheet grids into canonical
// rows. It is a pure per-row transformation; nothing here touches storage.
type StandardizerService struct {
	logger *zap.Logger
}

// NewStandardizerService constructs the service.
func NewStandardizerService(logger *zap.Logger) *StandardizerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StandardizerService{logger: logger}
}

// Standardize maps the grid's header row through the feed's alias table
// and normalizes every data row. A missing or ambiguous required column
// fails the whole file; a malformed cell only warns.
func (s *StandardizerService) Standardize(grid [][]string, kind schema.SourceKind) (*StandardizeResult, error) {
	feed, err := schema.ForKind(kind)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	headerIdx := -1
	for i, row := range grid {
		if !rowEmpty(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, appErrors.Clone(appErrors.ErrSchema, "file contains no header row")
	}

	resolved, err := feed.ResolveHeaders(grid[headerIdx])
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSchema.Code, appErrors.ErrSchema.Status, err.Error())
	}

	result := &StandardizeResult{}
	for i, row := range grid[headerIdx+1:] {
		if rowEmpty(row) {
			continue
		}
		rowIndex := headerIdx + i + 2 // 1-based, as shown in a spreadsheet
		std := s.standardizeRow(row, resolved, rowIndex)
		if kind == schema.SourceSystemFeed {
			s.resolveFaculty(&std)
		}
		result.Rows = append(result.Rows, std)
		result.Warnings = append(result.Warnings, std.Warnings...)
	}

	s.logger.Debug("standardized upload",
		zap.String("source_kind", string(kind)),
		zap.Int("rows", len(result.Rows)),
		zap.Int("warnings", len(result.Warnings)))
	return result, nil
}

func (s *StandardizerService) standardizeRow(row []string, resolved []string, rowIndex int) StandardizedRow {
	std := StandardizedRow{RowIndex: rowIndex, Fields: models.FieldMap{}}
	for col, field := range resolved {
		if field == "" {
			continue
		}
		raw := ""
		if col < len(row) {
			raw = row[col]
		}
		if schema.IsNullSentinel(raw) {
			std.Fields[field] = nil
			continue
		}
		value, warning := coerce(field, strings.TrimSpace(raw))
		if warning != "" {
			std.Warnings = append(std.Warnings, fmt.Sprintf("row %d: %s", rowIndex, warning))
		}
		std.Fields[field] = &value
	}
	return std
}

// resolveFaculty derives the faculty abbreviation from the department
// code. Unknown codes warn and leave the faculty absent.
func (s *StandardizerService) resolveFaculty(std *StandardizedRow) {
	dept, ok := std.Fields[schema.FieldDepartment]
	if !ok || dept == nil {
		return
	}
	faculty, known := schema.ResolveFaculty(*dept)
	if !known {
		std.Warnings = append(std.Warnings, fmt.Sprintf("row %d: unknown department code %q, faculty left empty", std.RowIndex, *dept))
		std.Fields[schema.FieldFaculty] = nil
		return
	}
	std.Fields[schema.FieldFaculty] = &faculty
}

// coerce normalizes a non-null cell into the field's canonical string
// form. On failure the raw text is kept and a warning describes why.
func coerce(fieldName, raw string) (string, string) {
	field, ok := schema.FieldByName(fieldName)
	if !ok {
		return raw, ""
	}
	switch field.Type {
	case schema.TypeInteger:
		cleaned := strings.ReplaceAll(raw, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", "")
		cleaned = strings.TrimSpace(cleaned)
		if n, err := strconv.Atoi(cleaned); err == nil {
			return strconv.Itoa(n), ""
		}
		return raw, fmt.Sprintf("field %s: %q is not an integer", fieldName, raw)
	case schema.TypeDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.Format("2006-01-02"), ""
			}
		}
		return raw, fmt.Sprintf("field %s: %q is not a recognized date", fieldName, raw)
	case schema.TypeCode:
		if len(field.Options) == 0 {
			return raw, ""
		}
		for _, opt := range field.Options {
			if strings.EqualFold(opt, raw) {
				return opt, ""
			}
		}
		return raw, fmt.Sprintf("field %s: %q is not one of the known codes", fieldName, raw)
	default:
		return raw, ""
	}
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
