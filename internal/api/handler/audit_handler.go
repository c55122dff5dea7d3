package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/practiceledger-recon/internal/api/service"
)

// AuditHandler handles HTTP requests for the audit trail
type AuditHandler struct {
	auditService service.AuditService
	logger       *slog.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(logger *slog.Logger, auditService service.AuditService) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
		logger:       logger,
	}
}

// List retrieves the most recent audit records, newest first
func (h *AuditHandler) List(c *gin.Context) {
	var params AuditListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.logger.Error("Invalid audit list parameters", "error", err)
		RespondBadRequest(c, "Invalid parameters")
		return
	}

	records, err := h.auditService.ListRecords(c.Request.Context(), params.Limit)
	if err != nil {
		h.logger.Error("Failed to list audit records", "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, records)
}

// GetByID retrieves one audit record, returns 404 if not found
func (h *AuditHandler) GetByID(c *gin.Context) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid audit record ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid audit record ID")
		return
	}

	record, err := h.auditService.GetRecord(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get audit record", "id", idParam, "error", err)
		RespondInternalError(c)
		return
	}

	if record == nil {
		RespondNotFound(c, "Audit record not found")
		return
	}

	RespondOK(c, record)
}
