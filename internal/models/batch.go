package models

import (
	"time"

	"github.com/utsmok/ea-cli-django-sub002/internal/schema"
)

// BatchStatus is the staging/processing state machine.
type BatchStatus string

const (
	BatchStatusStaged    BatchStatus = "staged"
	BatchStatusProcessed BatchStatus = "processed"
	BatchStatusFailed    BatchStatus = "failed"
)

// IngestionBatch groups the staging records of one upload. Phase 1 writes
// the batch and its records; nothing here touches authoritative state.
type IngestionBatch struct {
	ID          string            `db:"id" json:"id"`
	SourceKind  schema.SourceKind `db:"source_kind" json:"sourceKind"`
	FacultyCode *string           `db:"faculty_code" json:"facultyCode,omitempty"`
	FileName    string            `db:"file_name" json:"fileName"`
	UploadedBy  string            `db:"uploaded_by" json:"uploadedBy"`
	Status      BatchStatus       `db:"status" json:"status"`
	RowCount    int               `db:"row_count" json:"rowCount"`
	Warnings    StringList        `db:"warnings" json:"warnings,omitempty"`
	Error       *string           `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"createdAt"`
	ProcessedAt *time.Time        `db:"processed_at" json:"processedAt,omitempty"`
}

// StagingRecord is one standardized row, immutable once staged.
type StagingRecord struct {
	ID       string   `db:"id" json:"id"`
	BatchID  string   `db:"batch_id" json:"batchId"`
	RowIndex int      `db:"row_index" json:"rowIndex"`
	Fields   FieldMap `db:"fields" json:"fields"`
	Warnings StringList `db:"warnings" json:"warnings,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// MaterialID returns the record's merge key, empty when absent.
func (r *StagingRecord) MaterialID() string {
	if v, ok := r.Fields[schema.FieldMaterialID]; ok && v != nil {
		return *v
	}
	return ""
}

// MergeResult summarises one processed batch.
type MergeResult struct {
	BatchID  string   `json:"batchId"`
	Created  int      `json:"created"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	Warnings []string `json:"warnings,omitempty"`
}

// BatchFilter narrows batch listings.
type BatchFilter struct {
	SourceKind schema.SourceKind
	Status     BatchStatus
	Faculty    string
	Limit      int
	Offset     int
}
