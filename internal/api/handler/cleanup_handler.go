package handler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/practiceledger-recon/internal/api/middleware"
	"github.com/practiceledger-recon/internal/api/service"
	"github.com/practiceledger-recon/internal/executor"
	"github.com/practiceledger-recon/internal/ledgerapi"
)

const dateLayout = "2006-01-02"

// CleanupHandler handles HTTP requests for bulk invoice cleanup
type CleanupHandler struct {
	cleanupService service.CleanupService
	logger         *slog.Logger
}

// NewCleanupHandler creates a new cleanup handler
func NewCleanupHandler(logger *slog.Logger, cleanupService service.CleanupService) *CleanupHandler {
	return &CleanupHandler{
		cleanupService: cleanupService,
		logger:         logger,
	}
}

// Cleanup runs a bulk invoice cleanup, either live or as a dry run
func (h *CleanupHandler) Cleanup(c *gin.Context) {
	var req CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if len(req.ByNumbers) == 0 && req.BeforeDate == "" && len(req.ResumeNumbers) == 0 {
		RespondBadRequest(c, "Either by_numbers, before_date or resume_numbers must be provided")
		return
	}
	if len(req.ByNumbers) > 0 && req.BeforeDate != "" {
		RespondBadRequest(c, "by_numbers and before_date are mutually exclusive")
		return
	}

	serviceReq := service.CleanupRequest{
		Numbers:       req.ByNumbers,
		ResumeNumbers: req.ResumeNumbers,
		DryRun:        req.DryRun,
		Confirmed:     req.Confirmed,
		CorrelationID: middleware.GetCorrelationID(c),
	}
	if req.BeforeDate != "" {
		cutoff, err := time.Parse(dateLayout, req.BeforeDate)
		if err != nil {
			h.logger.Error("Invalid before_date", "before_date", req.BeforeDate, "error", err)
			RespondBadRequest(c, "Invalid before_date, expected YYYY-MM-DD")
			return
		}
		serviceReq.BeforeDate = &cutoff
	}

	result, err := h.cleanupService.Cleanup(c.Request.Context(), serviceReq)
	if err != nil {
		if errors.Is(err, executor.ErrNotConfirmed) {
			RespondBadRequest(c, "Live run requires confirmed=true")
			return
		}
		if errors.Is(err, service.ErrEmptySelection) {
			RespondBadRequest(c, err.Error())
			return
		}
		var authErr *ledgerapi.AuthError
		if errors.As(err, &authErr) {
			RespondUnauthorized(c, "Remote ledger rejected our credentials")
			return
		}
		h.logger.Error("Failed to run cleanup", "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, result)
}
