package excel

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testSpec() WorkbookSpec {
	return WorkbookSpec{
		CompleteColumns: []Column{
			{Field: "material_id", Header: "Material ID"},
			{Field: "title", Header: "Title"},
			{Field: "workflow_status", Header: "Status"},
			{Field: "remarks", Header: "Remarks"},
		},
		EntryColumns: []Column{
			{Field: "material_id", Header: "Material ID"},
			{Field: "title", Header: "Title"},
			{Field: "workflow_status", Header: "Status", Editable: true, ListName: "workflow_status", Format: FormatWorkflowStatus},
			{Field: "remarks", Header: "Remarks", Editable: true},
		},
		Lists: map[string][]string{
			"workflow_status": {"ToDo", "InProgress", "Done"},
		},
		ListOrder:     []string{"workflow_status"},
		SheetPassword: "secret",
	}
}

func testRows() []map[string]string {
	return []map[string]string{
		{"material_id": "M-001", "title": "Intro to X", "workflow_status": "ToDo", "remarks": ""},
		{"material_id": "M-002", "title": "Advanced Y", "workflow_status": "Done", "remarks": "checked"},
	}
}

func TestBuilderRejectsUnknownList(t *testing.T) {
	spec := testSpec()
	spec.EntryColumns[2].ListName = "nope"
	_, err := NewBuilder(spec)
	require.Error(t, err)
}

func TestBuildWorkbookStructure(t *testing.T) {
	builder, err := NewBuilder(testSpec())
	require.NoError(t, err)

	payload, err := builder.Build(testRows())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{SheetComplete, SheetEntry, SheetLists}, f.GetSheetList())

	visible, err := f.GetSheetVisible(SheetLists)
	require.NoError(t, err)
	assert.False(t, visible, "option list sheet must be hidden")

	rows, err := f.GetRows(SheetEntry)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Material ID", "Title", "Status", "Remarks"}, rows[0])
	assert.Equal(t, "M-001", rows[1][0])
	assert.Equal(t, "Done", rows[2][2])

	lists, err := f.GetRows(SheetLists)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(lists), 4)
	assert.Equal(t, "ToDo", lists[1][0])
	assert.Equal(t, "Done", lists[3][0])
}

func TestBuildWorkbookDropdownRejectsFreeText(t *testing.T) {
	builder, err := NewBuilder(testSpec())
	require.NoError(t, err)

	payload, err := builder.Build(testRows())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	require.NoError(t, err)
	defer f.Close()

	validations, err := f.GetDataValidations(SheetEntry)
	require.NoError(t, err)
	require.Len(t, validations, 1)

	dv := validations[0]
	assert.Equal(t, "C2:C3", dv.Sqref)
	require.NotNil(t, dv.ErrorTitle)
	assert.Equal(t, "Invalid value", *dv.ErrorTitle)
	require.NotNil(t, dv.Error)
	assert.Equal(t, "Pick a value from the dropdown list.", *dv.Error)
	assert.True(t, dv.ShowErrorMessage)
	require.NotNil(t, dv.ErrorStyle)
	assert.Equal(t, "stop", *dv.ErrorStyle)
}

func TestBuildWorkbookIsDeterministic(t *testing.T) {
	builder, err := NewBuilder(testSpec())
	require.NoError(t, err)

	first, err := builder.Build(testRows())
	require.NoError(t, err)
	second, err := builder.Build(testRows())
	require.NoError(t, err)

	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.xlsx")
	pathB := filepath.Join(dir, "b.xlsx")
	require.NoError(t, os.WriteFile(pathA, first, 0o644))
	require.NoError(t, os.WriteFile(pathB, second, 0o644))

	report, err := CompareWorkbooks(pathA, pathB)
	require.NoError(t, err)
	assert.True(t, report.Clean(), "repeated builds from one snapshot must match: %+v", report)
}

func TestBuildWorkbookEmptySnapshot(t *testing.T) {
	builder, err := NewBuilder(testSpec())
	require.NoError(t, err)

	payload, err := builder.Build(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetComplete)
	require.NoError(t, err)
	require.Len(t, rows, 1, "header row only")
}
