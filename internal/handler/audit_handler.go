package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/utsmok/ea-cli-django-sub002/internal/models"
	"github.com/utsmok/ea-cli-django-sub002/pkg/response"
)

type auditService interface {
	ItemHistory(ctx context.Context, itemID string) ([]models.ChangeLog, error)
	BatchHistory(ctx context.Context, batchID string) ([]models.ChangeLog, error)
}

// AuditHandler serves change-history endpoints.
type AuditHandler struct {
	audit auditService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(audit auditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// ItemHistory returns every field change applied to one item.
func (h *AuditHandler) ItemHistory(c *gin.Context) {
	entries, err := h.audit.ItemHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// BatchHistory returns every field change one merge produced.
func (h *AuditHandler) BatchHistory(c *gin.Context) {
	entries, err := h.audit.BatchHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
