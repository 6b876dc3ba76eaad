package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utsmok/ea-cli-django-sub002/internal/models"
	"github.com/utsmok/ea-cli-django-sub002/internal/repository"
	"github.com/utsmok/ea-cli-django-sub002/internal/schema"
	appErrors "github.com/utsmok/ea-cli-django-sub002/pkg/errors"
	"github.com/utsmok/ea-cli-django-sub002/pkg/excel"
)

type exportItemStub struct {
	byStatus map[string][]models.CopyrightItem
	created  int
}

func (s *exportItemStub) ListForExport(_ context.Context, _ sqlx.ExtContext, filter repository.ItemFilter) ([]models.CopyrightItem, error) {
	if len(filter.Statuses) == 0 {
		var all []models.CopyrightItem
		for _, items := range s.byStatus {
			all = append(all, items...)
		}
		return all, nil
	}
	var out []models.CopyrightItem
	for _, status := range filter.Statuses {
		out = append(out, s.byStatus[status]...)
	}
	return out, nil
}

func (s *exportItemStub) CountCreatedSince(_ context.Context, _ sqlx.ExtContext, _ string, _ time.Time) (int, error) {
	return s.created, nil
}

type exportChangeStub struct {
	changes []models.ChangeLog
}

func (s *exportChangeStub) ListChangedSince(_ context.Context, _ sqlx.ExtContext, _ string, _ time.Time) ([]models.ChangeLog, error) {
	return s.changes, nil
}

type exportManifestStub struct {
	latest  map[string]*models.ExportManifest
	created []models.ExportManifest
}

func (s *exportManifestStub) Create(_ context.Context, manifest *models.ExportManifest) error {
	manifest.ID = fmt.Sprintf("manifest-%d", len(s.created)+1)
	manifest.CreatedAt = time.Now().UTC()
	s.created = append(s.created, *manifest)
	return nil
}

func (s *exportManifestStub) Latest(_ context.Context, faculty string, bucket models.WorkflowBucket) (*models.ExportManifest, error) {
	return s.latest[faculty+"/"+string(bucket)], nil
}

func (s *exportManifestStub) ListByFaculty(_ context.Context, _ string, _ int) ([]models.ExportManifest, error) {
	return s.created, nil
}

type exportStorageStub struct {
	writes    []string
	backups   []string
	backupErr error
	existing  map[string]bool
}

func (s *exportStorageStub) WriteAtomic(filename string, _ []byte) (string, error) {
	s.writes = append(s.writes, filename)
	return "/exports/" + filename, nil
}

func (s *exportStorageStub) BackupExisting(filename string, _ time.Time) (string, error) {
	if s.backupErr != nil {
		return "", s.backupErr
	}
	if s.existing[filename] {
		backup := "backups/" + filename
		s.backups = append(s.backups, backup)
		return backup, nil
	}
	return "", nil
}

func (s *exportStorageStub) Path(filename string) string { return "/exports/" + filename }

func (s *exportStorageStub) CleanupOlderThan(_ time.Duration) ([]string, error) {
	return []string{"backups/old.xlsx"}, nil
}

func exportTestDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func exportItem(materialID, status string) models.CopyrightItem {
	faculty := "BMS"
	return models.CopyrightItem{
		ID:             "item-" + materialID,
		MaterialID:     materialID,
		CourseCode:     "201800017",
		Title:          "Material " + materialID,
		Faculty:        &faculty,
		WorkflowStatus: status,
	}
}

func newExportService(t *testing.T, items *exportItemStub, changes *exportChangeStub, manifests *exportManifestStub, storage *exportStorageStub, db *sqlx.DB) *ExportService {
	t.Helper()
	svc, err := NewExportService(items, changes, manifests, storage, db, "easyaccess", false, nil, nil)
	require.NoError(t, err)
	return svc
}

func TestExportSingleFacultyWritesAllBuckets(t *testing.T) {
	db, mock := exportTestDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	items := &exportItemStub{
		byStatus: map[string][]models.CopyrightItem{
			schema.StatusToDo: {exportItem("M-001", schema.StatusToDo)},
			schema.StatusDone: {exportItem("M-002", schema.StatusDone)},
		},
		created: 2,
	}
	old := "Old title"
	now := time.Now().UTC()
	changes := &exportChangeStub{changes: []models.ChangeLog{
		{MaterialID: "M-001", Field: schema.FieldTitle, OldValue: &old, NewValue: sp("New"), CreatedAt: now},
		{MaterialID: "M-001", Field: schema.FieldAuthor, NewValue: sp("Jansen"), CreatedAt: now},
	}}
	manifests := &exportManifestStub{}
	storage := &exportStorageStub{existing: map[string]bool{"BMS/inbox.xlsx": true}}

	svc := newExportService(t, items, changes, manifests, storage, db)
	result, err := svc.Export(context.Background(), "BMS", "staff@example.org")
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, []string{
		"BMS/inbox.xlsx",
		"BMS/in_progress.xlsx",
		"BMS/done.xlsx",
		"BMS/overview.xlsx",
		"BMS/update_info.txt",
		"BMS/update_overview.csv",
	}, result.FilesWritten)
	assert.Equal(t, result.FilesWritten, storage.writes)

	require.Len(t, manifests.created, 4)
	inbox := manifests.created[0]
	assert.Equal(t, result.RunID, inbox.RunID)
	assert.Equal(t, models.BucketInbox, inbox.Bucket)
	assert.Equal(t, 1, inbox.RowCount)
	assert.Equal(t, 2, inbox.CreatedCount)
	assert.Equal(t, 1, inbox.ChangedCount, "two field changes on one item count once")
	require.NotNil(t, inbox.BackupPath, "pre-existing workbook must be backed up")
	assert.Equal(t, "backups/BMS/inbox.xlsx", *inbox.BackupPath)

	overview := manifests.created[3]
	assert.Equal(t, models.BucketOverview, overview.Bucket)
	assert.Equal(t, 2, overview.RowCount, "overview holds every status")
	assert.Nil(t, overview.BackupPath)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExportAllFaculties(t *testing.T) {
	db, mock := exportTestDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	items := &exportItemStub{byStatus: map[string][]models.CopyrightItem{}}
	svc := newExportService(t, items, &exportChangeStub{}, &exportManifestStub{}, &exportStorageStub{}, db)

	result, err := svc.Export(context.Background(), "all", "staff@example.org")
	require.NoError(t, err)

	// Four workbooks plus two update files per faculty.
	assert.Len(t, result.FilesWritten, len(schema.Faculties())*6)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExportUnknownFaculty(t *testing.T) {
	db, _ := exportTestDB(t)
	svc := newExportService(t, &exportItemStub{}, &exportChangeStub{}, &exportManifestStub{}, &exportStorageStub{}, db)

	_, err := svc.Export(context.Background(), "XYZ", "staff@example.org")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrUnknownFaculty.Code, appErr.Code)
}

func TestExportAbortsWhenBackupFails(t *testing.T) {
	db, mock := exportTestDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	storage := &exportStorageStub{backupErr: errors.New("disk full")}
	items := &exportItemStub{byStatus: map[string][]models.CopyrightItem{}}
	manifests := &exportManifestStub{}

	svc := newExportService(t, items, &exportChangeStub{}, manifests, storage, db)
	_, err := svc.Export(context.Background(), "BMS", "staff@example.org")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrBackupFailed.Code, appErr.Code)
	assert.Empty(t, storage.writes, "nothing may be overwritten after a failed backup")
	assert.Empty(t, manifests.created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExportSnapshotUsesReadOnlyTransaction(t *testing.T) {
	db, mock := exportTestDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	var seenOpts *sql.TxOptions
	provider := txOptionRecorder{db: db, opts: &seenOpts}
	items := &exportItemStub{byStatus: map[string][]models.CopyrightItem{}}

	svc, err := NewExportService(items, &exportChangeStub{}, &exportManifestStub{}, &exportStorageStub{}, provider, "easyaccess", false, nil, nil)
	require.NoError(t, err)

	_, err = svc.Export(context.Background(), "BMS", "staff@example.org")
	require.NoError(t, err)

	require.NotNil(t, seenOpts)
	assert.True(t, seenOpts.ReadOnly)
	assert.Equal(t, sql.LevelRepeatableRead, seenOpts.Isolation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type txOptionRecorder struct {
	db   *sqlx.DB
	opts **sql.TxOptions
}

func (r txOptionRecorder) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	*r.opts = opts
	return r.db.BeginTxx(ctx, nil)
}

func TestCleanupReportsRemovedBackups(t *testing.T) {
	db, _ := exportTestDB(t)
	svc := newExportService(t, &exportItemStub{}, &exportChangeStub{}, &exportManifestStub{}, &exportStorageStub{}, db)

	removed, err := svc.Cleanup(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"backups/old.xlsx"}, removed)
}

func TestEntrySheetRoundTripsAsFacultyFeed(t *testing.T) {
	spec := workbookSpec("easyaccess")
	builder, err := excel.NewBuilder(spec)
	require.NoError(t, err)

	payload, err := builder.Build([]map[string]string{{
		schema.FieldMaterialID:       "M-001",
		schema.FieldCourseCode:       "202000123",
		schema.FieldTitle:            "Research Methods Reader",
		schema.FieldAuthor:           "Vermeulen",
		schema.FieldFaculty:          "BMS",
		schema.FieldFileExists:       "yes",
		schema.FieldWorkflowStatus:   "Done",
		schema.FieldV1Classification: "korte overname",
		schema.FieldV2Classification: "overname kort",
		schema.FieldV2Lengte:         "25",
		schema.FieldRemarks:          "license cleared",
		schema.FieldManualID:         "MAN-7",
	}})
	require.NoError(t, err)

	grid, err := excel.ReadGrid(bytes.NewReader(payload), "inbox.xlsx")
	require.NoError(t, err)

	result, err := NewStandardizerService(nil).Standardize(grid, schema.SourceFacultyFeed)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Empty(t, result.Warnings)
	assert.Empty(t, result.Rows[0].Warnings)

	fields := result.Rows[0].Fields
	for _, col := range spec.EntryColumns {
		_, present := fields[col.Field]
		assert.Truef(t, present, "exported header %q must resolve back to %s", col.Header, col.Field)
	}
	require.NotNil(t, fields[schema.FieldMaterialID])
	assert.Equal(t, "M-001", *fields[schema.FieldMaterialID])
	require.NotNil(t, fields[schema.FieldWorkflowStatus])
	assert.Equal(t, "Done", *fields[schema.FieldWorkflowStatus])
	require.NotNil(t, fields[schema.FieldV2Lengte])
	assert.Equal(t, "25", *fields[schema.FieldV2Lengte])
	require.NotNil(t, fields[schema.FieldRemarks])
	assert.Equal(t, "license cleared", *fields[schema.FieldRemarks])
}

func TestChangeDatasetFoldsRowsPerItem(t *testing.T) {
	first := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	second := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	changes := []models.ChangeLog{
		{MaterialID: "M-001", Field: "title", OldValue: sp("Old reader"), NewValue: sp("New reader"), CreatedAt: first},
		{MaterialID: "M-001", Field: "workflow_status", OldValue: sp("ToDo"), NewValue: sp("Done"), CreatedAt: second},
		{MaterialID: "M-002", Field: "remarks", NewValue: sp("checked"), CreatedAt: first},
	}

	dataset := changeDataset(changes)
	require.Equal(t, []string{"Material ID", "Fields changed", "Changes", "Last changed at"}, dataset.Headers)
	require.Len(t, dataset.Rows, 2)

	assert.Equal(t, "M-001", dataset.Rows[0]["Material ID"])
	assert.Equal(t, "title; workflow_status", dataset.Rows[0]["Fields changed"])
	assert.Equal(t, "title: Old reader -> New reader; workflow_status: ToDo -> Done", dataset.Rows[0]["Changes"])
	assert.Equal(t, second.Format(time.RFC3339), dataset.Rows[0]["Last changed at"])

	assert.Equal(t, "M-002", dataset.Rows[1]["Material ID"])
	assert.Equal(t, "remarks:  -> checked", dataset.Rows[1]["Changes"])
}
