package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/utsmok/ea-cli-django-sub002/internal/models"
	"github.com/utsmok/ea-cli-django-sub002/internal/repository"
	"github.com/utsmok/ea-cli-django-sub002/internal/schema"
	appErrors "github.com/utsmok/ea-cli-django-sub002/pkg/errors"
	"github.com/utsmok/ea-cli-django-sub002/pkg/excel"
	"github.com/utsmok/ea-cli-django-sub002/pkg/export"
)

// Named option lists backing the Data entry dropdowns.
const (
	listWorkflow = "workflow_status"
	listV1       = "v1_classification"
	listV2       = "v2_classification"
	listYesNo    = "yes_no"
)

// Column headers fixed by the legacy export contract. The Data entry
// headers must stay resolvable by the faculty feed schema, or re-submitted
// sheets would fail their own round trip.
var exportHeaders = map[string]string{
	schema.FieldMaterialID:       "Material ID",
	schema.FieldCourseCode:       "Course code",
	schema.FieldCourseName:       "Course name",
	schema.FieldDepartment:       "Department",
	schema.FieldFaculty:          "Faculty",
	schema.FieldTitle:            "Title",
	schema.FieldAuthor:           "Author",
	schema.FieldPublisher:        "Publisher",
	schema.FieldStudentCount:     "Student count",
	schema.FieldCanvasURL:        "Canvas URL",
	schema.FieldFileExists:       "File exists",
	schema.FieldPageCount:        "Page count",
	schema.FieldWorkflowStatus:   "Status",
	schema.FieldV1Classification: "Classification (old)",
	schema.FieldV2Classification: "Classification (v2)",
	schema.FieldV2Lengte:         "Length (v2)",
	schema.FieldRemarks:          "Remarks",
	schema.FieldManualID:         "Manual ID",
}

type exportItemStore interface {
	ListForExport(ctx context.Context, exec sqlx.ExtContext, filter repository.ItemFilter) ([]models.CopyrightItem, error)
	CountCreatedSince(ctx context.Context, exec sqlx.ExtContext, faculty string, since time.Time) (int, error)
}

type exportChangeStore interface {
	ListChangedSince(ctx context.Context, exec sqlx.ExtContext, faculty string, since time.Time) ([]models.ChangeLog, error)
}

type exportManifestStore interface {
	Create(ctx context.Context, manifest *models.ExportManifest) error
	Latest(ctx context.Context, faculty string, bucket models.WorkflowBucket) (*models.ExportManifest, error)
	ListByFaculty(ctx context.Context, faculty string, limit int) ([]models.ExportManifest, error)
}

type exportStorage interface {
	WriteAtomic(filename string, data []byte) (string, error)
	BackupExisting(filename string, now time.Time) (string, error)
	Path(filename string) string
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportService renders faculty workbooks from a consistent database
// snapshot. Every pre-existing artifact is backed up before its replacement
// is written; a failed backup aborts the run with nothing overwritten.
type ExportService struct {
	items     exportItemStore
	changes   exportChangeStore
	manifests exportManifestStore
	storage   exportStorage
	db        txProvider
	builder   *excel.Builder
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	metrics   *MetricsService
	logger    *zap.Logger

	pdfSummary bool
	now        func() time.Time
	running    int32
}

// NewExportService constructs the service and its workbook builder.
func NewExportService(items exportItemStore, changes exportChangeStore, manifests exportManifestStore, storage exportStorage, db txProvider, sheetPassword string, pdfSummary bool, metrics *MetricsService, logger *zap.Logger) (*ExportService, error) {
	builder, err := excel.NewBuilder(workbookSpec(sheetPassword))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		items:      items,
		changes:    changes,
		manifests:  manifests,
		storage:    storage,
		db:         db,
		builder:    builder,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		metrics:    metrics,
		logger:     logger,
		pdfSummary: pdfSummary,
		now:        time.Now,
	}, nil
}

// Export runs one export for a single faculty, or for all faculties when
// faculty is empty or "all". Only one run may be in flight at a time.
func (s *ExportService) Export(ctx context.Context, faculty string, actor string) (*models.ExportResult, error) {
	faculties, err := resolveScope(faculty)
	if err != nil {
		return nil, err
	}

	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return nil, appErrors.ErrExportRunning
	}
	defer atomic.StoreInt32(&s.running, 0)

	start := s.now()
	result, err := s.run(ctx, faculties, actor)
	if err != nil {
		s.observeExport("failure", s.now().Sub(start))
		return nil, err
	}
	s.observeExport("success", s.now().Sub(start))
	s.logger.Info("export finished",
		zap.String("run_id", result.RunID),
		zap.Strings("faculties", faculties),
		zap.Int("files", len(result.FilesWritten)))
	return result, nil
}

func (s *ExportService) run(ctx context.Context, faculties []string, actor string) (*models.ExportResult, error) {
	// All reads share one repeatable-read snapshot so every workbook in
	// the run reflects the same instant.
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin export snapshot: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result := &models.ExportResult{RunID: uuid.NewString()}
	now := s.now().UTC()

	for _, faculty := range faculties {
		since, err := s.previousRun(ctx, faculty)
		if err != nil {
			return nil, err
		}
		created, err := s.items.CountCreatedSince(ctx, tx, faculty, since)
		if err != nil {
			return nil, err
		}
		changes, err := s.changes.ListChangedSince(ctx, tx, faculty, since)
		if err != nil {
			return nil, err
		}
		changed := distinctMaterials(changes)

		summary := updateSummary{
			Faculty:   faculty,
			RunID:     result.RunID,
			Generated: now,
			Created:   created,
			Changed:   changed,
		}

		for _, bucket := range models.Buckets {
			items, err := s.items.ListForExport(ctx, tx, repository.ItemFilter{Faculty: faculty, Statuses: bucket.Statuses()})
			if err != nil {
				return nil, err
			}
			rows := make([]map[string]string, len(items))
			for i := range items {
				rows[i] = items[i].ExportRow()
			}
			payload, err := s.builder.Build(rows)
			if err != nil {
				return nil, fmt.Errorf("build %s/%s workbook: %w", faculty, bucket, err)
			}

			filename := fmt.Sprintf("%s/%s.xlsx", faculty, bucket)
			backupRel, err := s.backupAndWrite(filename, payload, now)
			if err != nil {
				return nil, err
			}

			manifest := &models.ExportManifest{
				RunID:        result.RunID,
				Faculty:      faculty,
				Bucket:       bucket,
				Path:         filename,
				RowCount:     len(items),
				CreatedCount: created,
				ChangedCount: changed,
				CreatedBy:    actor,
			}
			if backupRel != "" {
				manifest.BackupPath = &backupRel
			}
			if err := s.manifests.Create(ctx, manifest); err != nil {
				return nil, err
			}
			result.Manifests = append(result.Manifests, *manifest)
			result.FilesWritten = append(result.FilesWritten, filename)
			summary.Workbooks = append(summary.Workbooks, fmt.Sprintf("%s.xlsx (%d rows)", bucket, len(items)))
		}

		written, err := s.writeUpdateFiles(faculty, summary, changes, now)
		if err != nil {
			return nil, err
		}
		result.FilesWritten = append(result.FilesWritten, written...)
	}

	return result, nil
}

// previousRun returns the creation time of the faculty's newest manifest,
// or the zero time when the faculty has never been exported.
func (s *ExportService) previousRun(ctx context.Context, faculty string) (time.Time, error) {
	var newest time.Time
	for _, bucket := range models.Buckets {
		prev, err := s.manifests.Latest(ctx, faculty, bucket)
		if err != nil {
			return time.Time{}, err
		}
		if prev != nil && prev.CreatedAt.After(newest) {
			newest = prev.CreatedAt
		}
	}
	return newest, nil
}

type updateSummary struct {
	Faculty   string
	RunID     string
	Generated time.Time
	Created   int
	Changed   int
	Workbooks []string
}

func (s *ExportService) writeUpdateFiles(faculty string, summary updateSummary, changes []models.ChangeLog, now time.Time) ([]string, error) {
	var written []string

	infoName := faculty + "/update_info.txt"
	if _, err := s.backupAndWrite(infoName, []byte(summary.render()), now); err != nil {
		return nil, err
	}
	written = append(written, infoName)

	dataset := changeDataset(changes)
	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, fmt.Errorf("render update overview: %w", err)
	}
	csvName := faculty + "/update_overview.csv"
	if _, err := s.backupAndWrite(csvName, payload, now); err != nil {
		return nil, err
	}
	written = append(written, csvName)

	if s.pdfSummary {
		pdfPayload, err := s.pdf.Render(dataset, "Update overview "+faculty)
		if err != nil {
			return nil, fmt.Errorf("render update overview pdf: %w", err)
		}
		pdfName := faculty + "/update_overview.pdf"
		if _, err := s.backupAndWrite(pdfName, pdfPayload, now); err != nil {
			return nil, err
		}
		written = append(written, pdfName)
	}
	return written, nil
}

// backupAndWrite moves any existing artifact aside, then writes the new
// payload atomically. The backup failing means the old file's fate is
// unknown, so the run stops before anything is overwritten.
func (s *ExportService) backupAndWrite(filename string, payload []byte, now time.Time) (string, error) {
	backupRel, err := s.storage.BackupExisting(filename, now)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrBackupFailed.Code, appErrors.ErrBackupFailed.Status, fmt.Sprintf("backup of %s failed", filename))
	}
	if _, err := s.storage.WriteAtomic(filename, payload); err != nil {
		return "", fmt.Errorf("write %s: %w", filename, err)
	}
	return backupRel, nil
}

// ListManifests returns a faculty's export history, newest first.
func (s *ExportService) ListManifests(ctx context.Context, faculty string, limit int) ([]models.ExportManifest, error) {
	if faculty != "" && !schema.KnownFaculty(faculty) {
		return nil, appErrors.Clone(appErrors.ErrUnknownFaculty, fmt.Sprintf("unknown faculty %q", faculty))
	}
	return s.manifests.ListByFaculty(ctx, faculty, limit)
}

// Cleanup prunes backups older than the retention window and reports what
// was removed. Current exports are never touched.
func (s *ExportService) Cleanup(_ context.Context, retention time.Duration) ([]string, error) {
	removed, err := s.storage.CleanupOlderThan(retention)
	if err != nil {
		return nil, fmt.Errorf("cleanup backups: %w", err)
	}
	s.logger.Info("backup cleanup finished", zap.Int("removed", len(removed)))
	return removed, nil
}

func (s *ExportService) observeExport(outcome string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveExport(outcome, d)
	}
}

func resolveScope(faculty string) ([]string, error) {
	if faculty == "" || strings.EqualFold(faculty, "all") {
		return schema.Faculties(), nil
	}
	if !schema.KnownFaculty(faculty) {
		return nil, appErrors.Clone(appErrors.ErrUnknownFaculty, fmt.Sprintf("unknown faculty %q", faculty))
	}
	return []string{faculty}, nil
}

func distinctMaterials(changes []models.ChangeLog) int {
	seen := make(map[string]struct{}, len(changes))
	for _, c := range changes {
		seen[c.MaterialID] = struct{}{}
	}
	return len(seen)
}

// changeDataset folds the change log into one row per changed item. An
// item edited on several fields, or across several merges, still gets a
// single row listing every old/new pair.
func changeDataset(changes []models.ChangeLog) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"Material ID", "Fields changed", "Changes", "Last changed at"},
	}

	var order []string
	grouped := make(map[string][]models.ChangeLog)
	for _, c := range changes {
		if _, seen := grouped[c.MaterialID]; !seen {
			order = append(order, c.MaterialID)
		}
		grouped[c.MaterialID] = append(grouped[c.MaterialID], c)
	}

	for _, materialID := range order {
		entries := grouped[materialID]
		fields := make([]string, len(entries))
		pairs := make([]string, len(entries))
		var last time.Time
		for i, c := range entries {
			fields[i] = c.Field
			pairs[i] = fmt.Sprintf("%s: %s -> %s", c.Field, derefOr(c.OldValue, ""), derefOr(c.NewValue, ""))
			if c.CreatedAt.After(last) {
				last = c.CreatedAt
			}
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Material ID":     materialID,
			"Fields changed":  strings.Join(fields, "; "),
			"Changes":         strings.Join(pairs, "; "),
			"Last changed at": last.UTC().Format(time.RFC3339),
		})
	}
	return dataset
}

func (u updateSummary) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Easy Access update summary\n")
	fmt.Fprintf(&b, "Faculty:   %s\n", u.Faculty)
	fmt.Fprintf(&b, "Run:       %s\n", u.RunID)
	fmt.Fprintf(&b, "Generated: %s\n\n", u.Generated.Format(time.RFC3339))
	fmt.Fprintf(&b, "New items since previous export:     %d\n", u.Created)
	fmt.Fprintf(&b, "Changed items since previous export: %d\n\n", u.Changed)
	fmt.Fprintf(&b, "Workbooks written:\n")
	for _, w := range u.Workbooks {
		fmt.Fprintf(&b, "  %s\n", w)
	}
	return b.String()
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// workbookSpec lays out the legacy two-sheet workbook: the full snapshot on
// Complete data and the faculty-editable subset on Data entry.
func workbookSpec(sheetPassword string) excel.WorkbookSpec {
	complete := make([]excel.Column, 0, len(schema.Registry))
	for _, f := range schema.Registry {
		complete = append(complete, excel.Column{
			Field:  f.Name,
			Header: exportHeaders[f.Name],
		})
	}

	entry := []excel.Column{
		{Field: schema.FieldMaterialID, Header: exportHeaders[schema.FieldMaterialID]},
		{Field: schema.FieldCourseCode, Header: exportHeaders[schema.FieldCourseCode]},
		{Field: schema.FieldTitle, Header: exportHeaders[schema.FieldTitle], Width: 40},
		{Field: schema.FieldAuthor, Header: exportHeaders[schema.FieldAuthor], Width: 28},
		{Field: schema.FieldFaculty, Header: exportHeaders[schema.FieldFaculty], Width: 10},
		{Field: schema.FieldFileExists, Header: exportHeaders[schema.FieldFileExists], Width: 12, Format: excel.FormatFileExists},
		{Field: schema.FieldWorkflowStatus, Header: exportHeaders[schema.FieldWorkflowStatus], Editable: true, ListName: listWorkflow, Format: excel.FormatWorkflowStatus},
		{Field: schema.FieldV1Classification, Header: exportHeaders[schema.FieldV1Classification], Width: 24, Editable: true, ListName: listV1},
		{Field: schema.FieldV2Classification, Header: exportHeaders[schema.FieldV2Classification], Width: 24, Editable: true, ListName: listV2},
		{Field: schema.FieldV2Lengte, Header: exportHeaders[schema.FieldV2Lengte], Width: 12, Editable: true, Format: excel.FormatLengthBand},
		{Field: schema.FieldRemarks, Header: exportHeaders[schema.FieldRemarks], Width: 40, Editable: true},
		{Field: schema.FieldManualID, Header: exportHeaders[schema.FieldManualID], Editable: true},
	}

	return excel.WorkbookSpec{
		CompleteColumns: complete,
		EntryColumns:    entry,
		Lists: map[string][]string{
			listWorkflow: schema.WorkflowStatuses,
			listV1:       schema.V1Classifications,
			listV2:       schema.V2Classifications,
			listYesNo:    {"yes", "no"},
		},
		ListOrder:     []string{listWorkflow, listV1, listV2, listYesNo},
		SheetPassword: sheetPassword,
	}
}
