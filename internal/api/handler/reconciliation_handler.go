package handler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/practiceledger-recon/internal/api/middleware"
	"github.com/practiceledger-recon/internal/api/service"
	"github.com/practiceledger-recon/internal/ledgerapi"
	"github.com/practiceledger-recon/internal/reconciler"
)

// ReconciliationHandler handles HTTP requests for three-way reconciliation
type ReconciliationHandler struct {
	reconciliationService service.ReconciliationService
	logger                *slog.Logger
}

// NewReconciliationHandler creates a new reconciliation handler
func NewReconciliationHandler(logger *slog.Logger, reconciliationService service.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconciliationService: reconciliationService,
		logger:                logger,
	}
}

// Summary builds the classified match set for a date window
func (h *ReconciliationHandler) Summary(c *gin.Context) {
	var params ReconciliationParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.logger.Error("Invalid reconciliation parameters", "error", err)
		RespondBadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	from, to, err := parseWindow(params.From, params.To)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	summary, err := h.reconciliationService.Summary(c.Request.Context(), from, to)
	if err != nil {
		var authErr *ledgerapi.AuthError
		if errors.As(err, &authErr) {
			RespondUnauthorized(c, "Remote ledger rejected our credentials")
			return
		}
		h.logger.Error("Failed to build reconciliation summary", "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, summary)
}

// Apply settles the selected matches, or previews the settlement on dry run
func (h *ReconciliationHandler) Apply(c *gin.Context) {
	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if !req.DryRun && !req.Confirmed {
		RespondBadRequest(c, "Live run requires confirmed=true")
		return
	}

	from, to, err := parseWindow(req.From, req.To)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	result, err := h.reconciliationService.Apply(c.Request.Context(), reconciler.ApplyRequest{
		From:          from,
		To:            to,
		MatchIDs:      req.MatchIDs,
		DryRun:        req.DryRun,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		var authErr *ledgerapi.AuthError
		if errors.As(err, &authErr) {
			RespondUnauthorized(c, "Remote ledger rejected our credentials")
			return
		}
		h.logger.Error("Failed to apply reconciliation matches", "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, result)
}

// parseWindow parses an inclusive from/to date pair. The to date is extended
// to the end of its day so a single-day window still covers the whole day.
func parseWindow(fromRaw, toRaw string) (time.Time, time.Time, error) {
	from, err := time.Parse(dateLayout, fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid from date, expected YYYY-MM-DD")
	}
	to, err := time.Parse(dateLayout, toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid to date, expected YYYY-MM-DD")
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to date must not precede from date")
	}
	return from, to.Add(24*time.Hour - time.Second), nil
}
