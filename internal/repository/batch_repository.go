package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/utsmok/ea-cli-django-sub002/internal/models"
)

// BatchRepository persists ingestion batches and their staging records.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// CreateWithRecords inserts the batch and all its staging records in one
// transaction. Staging is phase 1: nothing authoritative is touched, and a
// partial batch is never visible.
func (r *BatchRepository) CreateWithRecords(ctx context.Context, batch *models.IngestionBatch, records []models.StagingRecord) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.Status == "" {
		batch.Status = models.BatchStatusStaged
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	batch.RowCount = len(records)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin staging tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const batchQuery = `INSERT INTO ingestion_batches
	(id, source_kind, faculty_code, file_name, uploaded_by, status, row_count, warnings, error, created_at, processed_at)
	VALUES (:id, :source_kind, :faculty_code, :file_name, :uploaded_by, :status, :row_count, :warnings, :error, :created_at, :processed_at)`
	if _, err = tx.NamedExecContext(ctx, batchQuery, batch); err != nil {
		err = fmt.Errorf("create batch: %w", err)
		return err
	}

	const recordQuery = `INSERT INTO staging_records
	(id, batch_id, row_index, fields, warnings, created_at)
	VALUES (:id, :batch_id, :row_index, :fields, :warnings, :created_at)`
	for i := range records {
		records[i].BatchID = batch.ID
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		if records[i].CreatedAt.IsZero() {
			records[i].CreatedAt = batch.CreatedAt
		}
		if _, err = tx.NamedExecContext(ctx, recordQuery, records[i]); err != nil {
			err = fmt.Errorf("create staging record %d: %w", records[i].RowIndex, err)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit staging tx: %w", err)
	}
	return nil
}

// GetByID fetches a batch by identifier.
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*models.IngestionBatch, error) {
	const query = `SELECT id, source_kind, faculty_code, file_name, uploaded_by, status, row_count, warnings, error, created_at, processed_at
	FROM ingestion_batches WHERE id = $1`
	var batch models.IngestionBatch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &batch, nil
}

// List returns batches matching the filter, newest first.
func (r *BatchRepository) List(ctx context.Context, filter models.BatchFilter) ([]models.IngestionBatch, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT id, source_kind, faculty_code, file_name, uploaded_by, status, row_count, warnings, error, created_at, processed_at
	FROM ingestion_batches`)

	conditions := make([]string, 0, 3)
	if filter.SourceKind != "" {
		args = append(args, filter.SourceKind)
		conditions = append(conditions, fmt.Sprintf("source_kind = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Faculty != "" {
		args = append(args, filter.Faculty)
		conditions = append(conditions, fmt.Sprintf("faculty_code = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var batches []models.IngestionBatch
	if err := r.db.SelectContext(ctx, &batches, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

// ListRecords returns the staging records of one batch in row order.
func (r *BatchRepository) ListRecords(ctx context.Context, batchID string) ([]models.StagingRecord, error) {
	const query = `SELECT id, batch_id, row_index, fields, warnings, created_at
	FROM staging_records WHERE batch_id = $1 ORDER BY row_index ASC`
	var records []models.StagingRecord
	if err := r.db.SelectContext(ctx, &records, query, batchID); err != nil {
		return nil, fmt.Errorf("list staging records: %w", err)
	}
	return records, nil
}

// UpdateStatus transitions a batch inside the caller's transaction, or
// directly on the pool when exec is nil.
func (r *BatchRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.BatchStatus, batchErr *string, warnings models.StringList) error {
	if exec == nil {
		exec = r.db
	}
	now := time.Now().UTC()
	const query = `UPDATE ingestion_batches
	SET status = $2, error = $3, warnings = $4, processed_at = $5 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, id, status, batchErr, warnings, now); err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	return nil
}

// Purge removes a batch and cascades to its staging records. Staged data
// is immutable otherwise; this is the explicit cleanup path only.
func (r *BatchRepository) Purge(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM staging_records WHERE batch_id = $1`, id); err != nil {
		return fmt.Errorf("purge staging records: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM ingestion_batches WHERE id = $1`, id); err != nil {
		return fmt.Errorf("purge batch: %w", err)
	}
	return nil
}
