package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/utsmok/ea-cli-django-sub002/internal/models"
	"github.com/utsmok/ea-cli-django-sub002/internal/schema"
	appErrors "github.com/utsmok/ea-cli-django-sub002/pkg/errors"
)

type mergeBatchStore interface {
	GetByID(ctx context.Context, id string) (*models.IngestionBatch, error)
	ListRecords(ctx context.Context, batchID string) ([]models.StagingRecord, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.BatchStatus, batchErr *string, warnings models.StringList) error
}

type mergeItemStore interface {
	FindByMaterialID(ctx context.Context, exec sqlx.ExtContext, materialID string) (*models.CopyrightItem, error)
	Create(ctx context.Context, exec sqlx.ExtContext, item *models.CopyrightItem) error
	Update(ctx context.Context, exec sqlx.ExtContext, item *models.CopyrightItem) error
}

type mergeChangeStore interface {
	CreateBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ChangeLog) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type auditInvalidator interface {
	InvalidateAll(ctx context.Context)
}

// MergeService applies a staged batch onto the authoritative item table.
// The whole batch commits or rolls back as one transaction; field
// ownership decides which columns each source kind may touch.
type MergeService struct {
	batches mergeBatchStore
	items   mergeItemStore
	changes mergeChangeStore
	db      txProvider
	audit   auditInvalidator
	metrics *MetricsService
	logger  *zap.Logger
}

// NewMergeService constructs the service. audit and metrics may be nil.
func NewMergeService(batches mergeBatchStore, items mergeItemStore, changes mergeChangeStore, db txProvider, audit auditInvalidator, metrics *MetricsService, logger *zap.Logger) *MergeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MergeService{
		batches: batches,
		items:   items,
		changes: changes,
		db:      db,
		audit:   audit,
		metrics: metrics,
		logger:  logger,
	}
}

// Process merges one staged batch. Re-running a processed batch is
// rejected; a storage failure mid-merge rolls everything back and marks
// the batch failed.
func (s *MergeService) Process(ctx context.Context, batchID string, actor string) (*models.MergeResult, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("batch %s not found", batchID))
	}
	if batch.Status != models.BatchStatusStaged {
		return nil, appErrors.Clone(appErrors.ErrBatchNotStaged, fmt.Sprintf("batch %s is %s, expected %s", batchID, batch.Status, models.BatchStatusStaged))
	}

	records, err := s.batches.ListRecords(ctx, batchID)
	if err != nil {
		return nil, err
	}

	result, mergeErr := s.merge(ctx, batch, records, actor)
	if mergeErr != nil {
		s.markFailed(batchID, mergeErr)
		s.observeMerge("failure", 0)
		return nil, appErrors.Wrap(mergeErr, appErrors.ErrMergeFailure.Code, appErrors.ErrMergeFailure.Status, "batch merge rolled back")
	}

	if s.audit != nil {
		s.audit.InvalidateAll(ctx)
	}
	s.observeMerge("success", result.Created+result.Updated)
	s.logger.Info("batch merged",
		zap.String("batch_id", batchID),
		zap.String("source_kind", string(batch.SourceKind)),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (s *MergeService) merge(ctx context.Context, batch *models.IngestionBatch, records []models.StagingRecord, actor string) (*models.MergeResult, error) {
	result := &models.MergeResult{BatchID: batch.ID}

	live, dupWarnings := dedupe(records)
	result.Warnings = append(result.Warnings, dupWarnings...)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin merge transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var entries []models.ChangeLog
	for _, record := range live {
		materialID := record.MaterialID()
		if materialID == "" {
			result.Skipped++
			result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: no material id, row skipped", record.RowIndex))
			continue
		}

		item, err := s.items.FindByMaterialID(ctx, tx, materialID)
		if err != nil {
			return nil, err
		}

		switch {
		case item == nil && batch.SourceKind == schema.SourceFacultyFeed:
			// Faculty sheets annotate existing items, never mint them.
			result.Skipped++
			result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: material id %s has no item, row skipped", record.RowIndex, materialID))
			continue
		case item == nil:
			item = models.NewCopyrightItem(materialID)
			s.applyOwned(batch, record, item, &entries, result)
			if err := s.items.Create(ctx, tx, item); err != nil {
				return nil, err
			}
			for i := range entries {
				if entries[i].ItemID == "" {
					entries[i].ItemID = item.ID
				}
			}
			result.Created++
		default:
			if changed := s.applyOwned(batch, record, item, &entries, result); changed {
				if err := s.items.Update(ctx, tx, item); err != nil {
					return nil, err
				}
				result.Updated++
			}
		}
	}

	for i := range entries {
		entries[i].BatchID = batch.ID
		entries[i].UserID = actor
	}
	if err := s.changes.CreateBatch(ctx, tx, entries); err != nil {
		return nil, err
	}
	if err := s.batches.UpdateStatus(ctx, tx, batch.ID, models.BatchStatusProcessed, nil, models.StringList(result.Warnings)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit merge transaction: %w", err)
	}
	return result, nil
}

// applyOwned writes the fields this batch's source kind owns onto the
// item, emitting one change log entry per field whose value actually
// moved. Columns absent from the upload are left untouched; a present
// null clears the field.
func (s *MergeService) applyOwned(batch *models.IngestionBatch, record models.StagingRecord, item *models.CopyrightItem, entries *[]models.ChangeLog, result *models.MergeResult) bool {
	changed := false
	for _, field := range schema.OwnedFields(batch.SourceKind) {
		value, present := record.Fields[field]
		if !present {
			continue
		}
		old := item.FieldValue(field)
		if equalValue(old, value) {
			continue
		}
		if err := item.SetField(field, value); err != nil {
			// Already warned at staging time; the rest of the row
			// still merges.
			result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: %v, field skipped", record.RowIndex, err))
			continue
		}
		*entries = append(*entries, models.ChangeLog{
			ItemID:     item.ID,
			MaterialID: item.MaterialID,
			Field:      field,
			OldValue:   old,
			NewValue:   value,
		})
		changed = true
	}
	return changed
}

// dedupe keeps the last staging row per material id, preserving original
// row order for the survivors.
func dedupe(records []models.StagingRecord) ([]models.StagingRecord, []string) {
	last := make(map[string]int)
	for i, r := range records {
		if id := r.MaterialID(); id != "" {
			last[id] = i
		}
	}

	var warnings []string
	live := make([]models.StagingRecord, 0, len(records))
	for i, r := range records {
		id := r.MaterialID()
		if id != "" && last[id] != i {
			warnings = append(warnings, fmt.Sprintf("row %d: material id %s appears again in row %d, earlier row ignored", r.RowIndex, id, records[last[id]].RowIndex))
			continue
		}
		live = append(live, r)
	}
	return live, warnings
}

func (s *MergeService) markFailed(batchID string, mergeErr error) {
	ctx := context.Background()
	msg := mergeErr.Error()
	if err := s.batches.UpdateStatus(ctx, nil, batchID, models.BatchStatusFailed, &msg, nil); err != nil {
		s.logger.Error("failed to mark batch failed", zap.String("batch_id", batchID), zap.Error(err))
	}
}

func (s *MergeService) observeMerge(outcome string, changes int) {
	if s.metrics != nil {
		s.metrics.ObserveMerge(outcome, changes)
	}
}

func equalValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
