package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utsmok/ea-cli-django-sub002/internal/schema"
	appErrors "github.com/utsmok/ea-cli-django-sub002/pkg/errors"
	"github.com/utsmok/ea-cli-django-sub002/pkg/excel"
)

type dirStorage struct {
	dir string
}

func (s dirStorage) Path(filename string) string { return filepath.Join(s.dir, filename) }

func writeWorkbook(t *testing.T, dir, name string, rows []map[string]string) {
	t.Helper()
	builder, err := excel.NewBuilder(workbookSpec("pw"))
	require.NoError(t, err)
	payload, err := builder.Build(rows)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), payload, 0o644))
}

func parityRow(materialID, title string) map[string]string {
	return map[string]string{
		schema.FieldMaterialID:     materialID,
		schema.FieldCourseCode:     "201800017",
		schema.FieldTitle:          title,
		schema.FieldWorkflowStatus: schema.StatusToDo,
	}
}

func TestCompareIdenticalWorkbooks(t *testing.T) {
	dir := t.TempDir()
	rows := []map[string]string{parityRow("M-001", "Intro to X")}
	writeWorkbook(t, dir, "a.xlsx", rows)
	writeWorkbook(t, dir, "b.xlsx", rows)

	svc := NewParityService(dirStorage{dir: dir}, nil)
	report, err := svc.Compare(context.Background(), "a.xlsx", "b.xlsx")
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestCompareReportsDrift(t *testing.T) {
	dir := t.TempDir()
	writeWorkbook(t, dir, "a.xlsx", []map[string]string{parityRow("M-001", "Intro to X")})
	writeWorkbook(t, dir, "b.xlsx", []map[string]string{parityRow("M-001", "Intro to Y")})

	svc := NewParityService(dirStorage{dir: dir}, nil)
	report, err := svc.Compare(context.Background(), "a.xlsx", "b.xlsx")
	require.NoError(t, err, "a mismatch is a finding, not an error")
	assert.False(t, report.Clean())
	assert.NotEmpty(t, report.MismatchedCells)
}

func TestCompareMissingWorkbook(t *testing.T) {
	dir := t.TempDir()
	writeWorkbook(t, dir, "a.xlsx", nil)

	svc := NewParityService(dirStorage{dir: dir}, nil)
	_, err := svc.Compare(context.Background(), "a.xlsx", "gone.xlsx")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
