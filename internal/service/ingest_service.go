package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/utsmok/ea-cli-django-sub002/internal/models"
	"github.com/utsmok/ea-cli-django-sub002/internal/schema"
	"github.com/utsmok/ea-cli-django-sub002/pkg/config"
	appErrors "github.com/utsmok/ea-cli-django-sub002/pkg/errors"
	"github.com/utsmok/ea-cli-django-sub002/pkg/excel"
)

type ingestBatchStore interface {
	CreateWithRecords(ctx context.Context, batch *models.IngestionBatch, records []models.StagingRecord) error
	GetByID(ctx context.Context, id string) (*models.IngestionBatch, error)
	List(ctx context.Context, filter models.BatchFilter) ([]models.IngestionBatch, error)
	ListRecords(ctx context.Context, batchID string) ([]models.StagingRecord, error)
}

type standardizer interface {
	Standardize(grid [][]string, kind schema.SourceKind) (*StandardizeResult, error)
}

// IngestUpload is one incoming feed file.
type IngestUpload struct {
	FileName    string `validate:"required"`
	ContentType string
	Size        int64     `validate:"gte=0"`
	Content     io.Reader `validate:"required"`
}

// IngestService stages uploaded feed files: parse, standardize, persist.
// Staging never touches authoritative items; that is the merge's job.
type IngestService struct {
	batches  ingestBatchStore
	std      standardizer
	validate *validator.Validate
	cfg      config.IngestConfig
	logger   *zap.Logger
}

// NewIngestService constructs the service.
func NewIngestService(batches ingestBatchStore, std standardizer, validate *validator.Validate, cfg config.IngestConfig, logger *zap.Logger) *IngestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{batches: batches, std: std, validate: validate, cfg: cfg, logger: logger}
}

// Stage validates and standardizes one upload into an immutable batch.
// Schema failures reject the whole file; nothing is persisted for it.
func (s *IngestService) Stage(ctx context.Context, upload IngestUpload, kind schema.SourceKind, facultyCode, actor string) (*models.IngestionBatch, error) {
	if !kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown source kind %q", kind))
	}
	if kind == schema.SourceFacultyFeed {
		if facultyCode == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "faculty code is required for faculty feeds")
		}
		if !schema.KnownFaculty(facultyCode) {
			return nil, appErrors.Clone(appErrors.ErrUnknownFaculty, fmt.Sprintf("unknown faculty %q", facultyCode))
		}
	}
	if err := s.validate.Struct(upload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload")
	}
	if err := s.checkUpload(upload); err != nil {
		return nil, err
	}

	grid, err := excel.ReadGrid(upload.Content, upload.FileName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnsupportedFile.Code, appErrors.ErrUnsupportedFile.Status, fmt.Sprintf("cannot read %s", upload.FileName))
	}

	standardized, err := s.std.Standardize(grid, kind)
	if err != nil {
		return nil, err
	}

	batch := &models.IngestionBatch{
		SourceKind: kind,
		FileName:   filepath.Base(upload.FileName),
		UploadedBy: actor,
		Status:     models.BatchStatusStaged,
		RowCount:   len(standardized.Rows),
		Warnings:   models.StringList(standardized.Warnings),
	}
	if facultyCode != "" {
		batch.FacultyCode = &facultyCode
	}

	records := make([]models.StagingRecord, len(standardized.Rows))
	for i, row := range standardized.Rows {
		records[i] = models.StagingRecord{
			RowIndex: row.RowIndex,
			Fields:   row.Fields,
			Warnings: models.StringList(row.Warnings),
		}
	}

	if err := s.batches.CreateWithRecords(ctx, batch, records); err != nil {
		return nil, err
	}

	s.logger.Info("batch staged",
		zap.String("batch_id", batch.ID),
		zap.String("source_kind", string(kind)),
		zap.String("file", batch.FileName),
		zap.Int("rows", batch.RowCount),
		zap.Int("warnings", len(batch.Warnings)))
	return batch, nil
}

// GetBatch returns one batch by id.
func (s *IngestService) GetBatch(ctx context.Context, id string) (*models.IngestionBatch, error) {
	batch, err := s.batches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("batch %s not found", id))
	}
	return batch, nil
}

// ListBatches returns batches matching the filter, newest first.
func (s *IngestService) ListBatches(ctx context.Context, filter models.BatchFilter) ([]models.IngestionBatch, error) {
	return s.batches.List(ctx, filter)
}

// ListRecords returns a batch's staged rows in row order.
func (s *IngestService) ListRecords(ctx context.Context, batchID string) ([]models.StagingRecord, error) {
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return s.batches.ListRecords(ctx, batchID)
}

func (s *IngestService) checkUpload(upload IngestUpload) error {
	if s.cfg.MaxFileSizeBytes > 0 && upload.Size > s.cfg.MaxFileSizeBytes {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte upload limit", s.cfg.MaxFileSizeBytes))
	}
	ext := strings.ToLower(filepath.Ext(upload.FileName))
	if ext != ".csv" && ext != ".xlsx" {
		return appErrors.Clone(appErrors.ErrUnsupportedFile, fmt.Sprintf("unsupported file extension %q", ext))
	}
	if len(s.cfg.AllowedMIMEs) > 0 && upload.ContentType != "" {
		for _, allowed := range s.cfg.AllowedMIMEs {
			if strings.EqualFold(allowed, upload.ContentType) {
				return nil
			}
		}
		return appErrors.Clone(appErrors.ErrUnsupportedFile, fmt.Sprintf("unsupported content type %q", upload.ContentType))
	}
	return nil
}
