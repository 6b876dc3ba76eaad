package dto

import (
	"github.com/utsmok/ea-cli-django-sub002/internal/models"
	"github.com/utsmok/ea-cli-django-sub002/internal/schema"
)

// StageBatchRequest contains metadata submitted alongside a feed upload.
type StageBatchRequest struct {
	SourceKind  schema.SourceKind `form:"sourceKind" json:"sourceKind" binding:"required"`
	FacultyCode string            `form:"facultyCode" json:"facultyCode"`
}

// BatchQuery mirrors supported batch listing filters.
type BatchQuery struct {
	SourceKind schema.SourceKind  `form:"sourceKind"`
	Status     models.BatchStatus `form:"status"`
	Faculty    string             `form:"faculty"`
	Limit      int                `form:"limit"`
	Offset     int                `form:"offset"`
}

// BatchDetailResponse enriches a batch with its staged rows.
type BatchDetailResponse struct {
	models.IngestionBatch
	Records []models.StagingRecord `json:"records,omitempty"`
}
