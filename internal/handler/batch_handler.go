package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/utsmok/ea-cli-django-sub002/internal/dto"
	"github.com/utsmok/ea-cli-django-sub002/internal/models"
	"github.com/utsmok/ea-cli-django-sub002/internal/schema"
	"github.com/utsmok/ea-cli-django-sub002/internal/service"
	appErrors "github.com/utsmok/ea-cli-django-sub002/pkg/errors"
	"github.com/utsmok/ea-cli-django-sub002/pkg/response"
)

type ingestService interface {
	Stage(ctx context.Context, upload service.IngestUpload, kind schema.SourceKind, facultyCode, actor string) (*models.IngestionBatch, error)
	GetBatch(ctx context.Context, id string) (*models.IngestionBatch, error)
	ListBatches(ctx context.Context, filter models.BatchFilter) ([]models.IngestionBatch, error)
	ListRecords(ctx context.Context, batchID string) ([]models.StagingRecord, error)
}

type mergeProcessor interface {
	Process(ctx context.Context, batchID string, actor string) (*models.MergeResult, error)
}

// BatchHandler manages feed staging and merge HTTP endpoints.
type BatchHandler struct {
	ingest ingestService
	merge  mergeProcessor
}

// NewBatchHandler constructs the handler.
func NewBatchHandler(ingest ingestService, merge mergeProcessor) *BatchHandler {
	return &BatchHandler{ingest: ingest, merge: merge}
}

// Stage accepts a multipart feed upload and stages it as a batch.
func (h *BatchHandler) Stage(c *gin.Context) {
	var req dto.StageBatchRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid upload payload"))
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	upload := service.IngestUpload{
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Content:     src,
	}
	batch, err := h.ingest.Stage(c.Request.Context(), upload, req.SourceKind, req.FacultyCode, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, batch, nil)
}

// Process merges one staged batch into the item table.
func (h *BatchHandler) Process(c *gin.Context) {
	result, err := h.merge.Process(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List returns batches matching the query filters, newest first.
func (h *BatchHandler) List(c *gin.Context) {
	var query dto.BatchQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	batches, err := h.ingest.ListBatches(c.Request.Context(), models.BatchFilter{
		SourceKind: query.SourceKind,
		Status:     query.Status,
		Faculty:    query.Faculty,
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batches, nil)
}

// Get returns one batch with its staged rows.
func (h *BatchHandler) Get(c *gin.Context) {
	id := c.Param("id")
	batch, err := h.ingest.GetBatch(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, err := h.ingest.ListRecords(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.BatchDetailResponse{IngestionBatch: *batch, Records: records}, nil)
}
