package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/practiceledger-recon/internal/api/handler"
	"github.com/practiceledger-recon/internal/api/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	cleanupHandler *handler.CleanupHandler,
	reconciliationHandler *handler.ReconciliationHandler,
	auditHandler *handler.AuditHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Bulk invoice lifecycle operations
		invoices := v1.Group("/invoices")
		{
			invoices.POST("/cleanup", cleanupHandler.Cleanup)
		}

		// Three-way reconciliation
		reconciliation := v1.Group("/reconciliation")
		{
			reconciliation.GET("", reconciliationHandler.Summary)
			reconciliation.POST("/apply", reconciliationHandler.Apply)
		}

		// Audit trail
		auditRoutes := v1.Group("/audit")
		{
			auditRoutes.GET("", auditHandler.List)
			auditRoutes.GET("/:id", auditHandler.GetByID)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
