package models

import "time"

// ExportManifest records one written workbook per export run. Superseded
// manifests stay in place; the newest row per (faculty, bucket) is the
// current export.
type ExportManifest struct {
	ID           string         `db:"id" json:"id"`
	RunID        string         `db:"run_id" json:"runId"`
	Faculty      string         `db:"faculty" json:"faculty"`
	Bucket       WorkflowBucket `db:"bucket" json:"bucket"`
	Path         string         `db:"path" json:"path"`
	BackupPath   *string        `db:"backup_path" json:"backupPath,omitempty"`
	RowCount     int            `db:"row_count" json:"rowCount"`
	CreatedCount int            `db:"created_count" json:"createdCount"`
	ChangedCount int            `db:"changed_count" json:"changedCount"`
	CreatedBy    string         `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
}

// ExportResult summarises one export run across buckets.
type ExportResult struct {
	RunID        string           `json:"runId"`
	FilesWritten []string         `json:"filesWritten"`
	Manifests    []ExportManifest `json:"manifests"`
}
