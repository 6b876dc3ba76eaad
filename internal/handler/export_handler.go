package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/utsmok/ea-cli-django-sub002/internal/dto"
	"github.com/utsmok/ea-cli-django-sub002/internal/models"
	appErrors "github.com/utsmok/ea-cli-django-sub002/pkg/errors"
	"github.com/utsmok/ea-cli-django-sub002/pkg/excel"
	"github.com/utsmok/ea-cli-django-sub002/pkg/response"
)

type exportService interface {
	Export(ctx context.Context, faculty string, actor string) (*models.ExportResult, error)
	ListManifests(ctx context.Context, faculty string, limit int) ([]models.ExportManifest, error)
	Cleanup(ctx context.Context, retention time.Duration) ([]string, error)
}

type parityService interface {
	Compare(ctx context.Context, expected, actual string) (*excel.ParityReport, error)
}

// ExportHandler manages workbook export HTTP endpoints.
type ExportHandler struct {
	exports   exportService
	parity    parityService
	retention time.Duration
}

// NewExportHandler constructs the handler.
func NewExportHandler(exports exportService, parity parityService, retention time.Duration) *ExportHandler {
	return &ExportHandler{exports: exports, parity: parity, retention: retention}
}

// Run starts an export for one faculty or for all of them.
func (h *ExportHandler) Run(c *gin.Context) {
	var req dto.RunExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "faculty is required"))
		return
	}
	result, err := h.exports.Export(c.Request.Context(), req.Faculty, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Manifests lists the export history.
func (h *ExportHandler) Manifests(c *gin.Context) {
	var query dto.ManifestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	manifests, err := h.exports.ListManifests(c.Request.Context(), query.Faculty, query.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, manifests, nil)
}

// Compare diffs two workbooks under the export directory.
func (h *ExportHandler) Compare(c *gin.Context) {
	var req dto.CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "expected and actual workbook paths are required"))
		return
	}
	report, err := h.parity.Compare(c.Request.Context(), req.Expected, req.Actual)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Cleanup prunes backups older than the retention window.
func (h *ExportHandler) Cleanup(c *gin.Context) {
	removed, err := h.exports.Cleanup(c.Request.Context(), h.retention)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CleanupResponse{Removed: removed}, nil)
}
