package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utsmok/ea-cli-django-sub002/internal/models"
	"github.com/utsmok/ea-cli-django-sub002/internal/schema"
)

func itemRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "material_id", "course_code", "course_name", "department", "faculty", "title", "author", "publisher",
		"student_count", "canvas_url", "file_exists", "page_count",
		"workflow_status", "v1_classification", "v2_classification", "v2_lengte", "remarks", "manual_id",
		"created_at", "updated_at",
	})
}

func newItemMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestItemRepositoryFindByMaterialID(t *testing.T) {
	db, mock, cleanup := newItemMock(t)
	defer cleanup()
	repo := NewItemRepository(db)

	rows := itemRows().AddRow(
		"i1", "M-001", "201800123", nil, "EWI-CS", "EEMCS", "Intro to X", nil, nil,
		120, nil, "yes", 14,
		schema.StatusToDo, nil, nil, nil, nil, nil,
		time.Now(), time.Now(),
	)
	mock.ExpectQuery("SELECT (.+) FROM copyright_items WHERE material_id").
		WithArgs("M-001").
		WillReturnRows(rows)

	item, err := repo.FindByMaterialID(context.Background(), db, "M-001")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "Intro to X", item.Title)
	require.NotNil(t, item.StudentCount)
	assert.Equal(t, 120, *item.StudentCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemRepositoryFindByMaterialIDMissing(t *testing.T) {
	db, mock, cleanup := newItemMock(t)
	defer cleanup()
	repo := NewItemRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM copyright_items WHERE material_id").
		WithArgs("M-404").
		WillReturnRows(itemRows())

	item, err := repo.FindByMaterialID(context.Background(), db, "M-404")
	require.NoError(t, err)
	assert.Nil(t, item, "no match must be a nil item, not an error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newItemMock(t)
	defer cleanup()
	repo := NewItemRepository(db)

	mock.ExpectExec("INSERT INTO copyright_items").
		WillReturnResult(sqlmock.NewResult(1, 1))

	item := models.NewCopyrightItem("M-001")
	item.Title = "Intro to X"
	item.CourseCode = "201800123"
	err := repo.Create(context.Background(), db, item)
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, schema.StatusToDo, item.WorkflowStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemRepositoryListForExportFilters(t *testing.T) {
	db, mock, cleanup := newItemMock(t)
	defer cleanup()
	repo := NewItemRepository(db)

	rows := itemRows().AddRow(
		"i1", "M-001", "201800123", nil, "EWI-CS", "EEMCS", "Intro to X", nil, nil,
		nil, nil, nil, nil,
		schema.StatusDone, nil, nil, nil, nil, nil,
		time.Now(), time.Now(),
	)
	mock.ExpectQuery(`SELECT (.+) FROM copyright_items WHERE faculty = \$1 AND workflow_status IN \(\$2\) ORDER BY material_id ASC`).
		WithArgs("EEMCS", schema.StatusDone).
		WillReturnRows(rows)

	items, err := repo.ListForExport(context.Background(), db, ItemFilter{Faculty: "EEMCS", Statuses: []string{schema.StatusDone}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "M-001", items[0].MaterialID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemRepositoryCountCreatedSince(t *testing.T) {
	db, mock, cleanup := newItemMock(t)
	defer cleanup()
	repo := NewItemRepository(db)

	since := time.Now().Add(-time.Hour)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(since, "BMS").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountCreatedSince(context.Background(), db, "BMS", since)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
