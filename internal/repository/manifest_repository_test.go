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
)

func newManifestMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestManifestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newManifestMock(t)
	defer cleanup()
	repo := NewManifestRepository(db)

	mock.ExpectExec("INSERT INTO export_manifests").WillReturnResult(sqlmock.NewResult(1, 1))

	backup := "backups/inbox.20260314-093000.xlsx"
	manifest := &models.ExportManifest{
		RunID:        "run-1",
		Faculty:      "BMS",
		Bucket:       models.BucketInbox,
		Path:         "BMS/inbox.xlsx",
		BackupPath:   &backup,
		RowCount:     12,
		CreatedCount: 2,
		ChangedCount: 5,
		CreatedBy:    "u1",
	}
	err := repo.Create(context.Background(), manifest)
	require.NoError(t, err)
	assert.NotEmpty(t, manifest.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManifestRepositoryLatest(t *testing.T) {
	db, mock, cleanup := newManifestMock(t)
	defer cleanup()
	repo := NewManifestRepository(db)

	rows := sqlmock.NewRows([]string{"id", "run_id", "faculty", "bucket", "path", "backup_path", "row_count", "created_count", "changed_count", "created_by", "created_at"}).
		AddRow("m1", "run-1", "BMS", "inbox", "BMS/inbox.xlsx", nil, 12, 2, 5, "u1", time.Now())
	mock.ExpectQuery("SELECT (.+) FROM export_manifests").
		WithArgs("BMS", string(models.BucketInbox)).
		WillReturnRows(rows)

	manifest, err := repo.Latest(context.Background(), "BMS", models.BucketInbox)
	require.NoError(t, err)
	require.NotNil(t, manifest)
	assert.Equal(t, "BMS/inbox.xlsx", manifest.Path)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManifestRepositoryListByFaculty(t *testing.T) {
	db, mock, cleanup := newManifestMock(t)
	defer cleanup()
	repo := NewManifestRepository(db)

	rows := sqlmock.NewRows([]string{"id", "run_id", "faculty", "bucket", "path", "backup_path", "row_count", "created_count", "changed_count", "created_by", "created_at"}).
		AddRow("m1", "run-1", "BMS", "inbox", "BMS/inbox.xlsx", nil, 12, 2, 5, "u1", time.Now())
	mock.ExpectQuery(`SELECT (.+) FROM export_manifests\s+WHERE faculty = \$1`).
		WithArgs("BMS", 50).
		WillReturnRows(rows)

	manifests, err := repo.ListByFaculty(context.Background(), "BMS", 0)
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	assert.Equal(t, "BMS", manifests[0].Faculty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManifestRepositoryListAllFaculties(t *testing.T) {
	db, mock, cleanup := newManifestMock(t)
	defer cleanup()
	repo := NewManifestRepository(db)

	rows := sqlmock.NewRows([]string{"id", "run_id", "faculty", "bucket", "path", "backup_path", "row_count", "created_count", "changed_count", "created_by", "created_at"}).
		AddRow("m1", "run-1", "BMS", "inbox", "BMS/inbox.xlsx", nil, 12, 2, 5, "u1", time.Now()).
		AddRow("m2", "run-1", "EEMCS", "done", "EEMCS/done.xlsx", nil, 4, 0, 1, "u1", time.Now())
	mock.ExpectQuery(`SELECT (.+) FROM export_manifests ORDER BY created_at DESC LIMIT \$1`).
		WithArgs(10).
		WillReturnRows(rows)

	manifests, err := repo.ListByFaculty(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, manifests, 2)
	assert.Equal(t, "EEMCS", manifests[1].Faculty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManifestRepositoryLatestNone(t *testing.T) {
	db, mock, cleanup := newManifestMock(t)
	defer cleanup()
	repo := NewManifestRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM export_manifests").
		WithArgs("ITC", string(models.BucketDone)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	manifest, err := repo.Latest(context.Background(), "ITC", models.BucketDone)
	require.NoError(t, err)
	assert.Nil(t, manifest)
	assert.NoError(t, mock.ExpectationsWereMet())
}
