package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/practiceledger-recon/internal/domain/audit"
	"github.com/practiceledger-recon/internal/domain/bulk"
	"github.com/practiceledger-recon/internal/domain/reconcile"
	"github.com/practiceledger-recon/internal/reconciler"
)

// CleanupRequest selects the invoices for a bulk cleanup run. Exactly one of
// Numbers and BeforeDate must be set; ResumeNumbers carries the remainder of
// an earlier capped or stopped run.
type CleanupRequest struct {
	Numbers       []string
	BeforeDate    *time.Time
	ResumeNumbers []string
	DryRun        bool
	Confirmed     bool
	CorrelationID string
}

// CleanupService defines the interface for bulk invoice cleanup operations
type CleanupService interface {
	// Cleanup fetches the selected invoices fresh, classifies them and runs
	// the batch executor. Returns ErrNotConfirmed for an unconfirmed live run.
	Cleanup(ctx context.Context, req CleanupRequest) (*bulk.Result, error)
}

// ReconciliationService defines the interface for three-way reconciliation
type ReconciliationService interface {
	// Summary builds the classified match set for the window
	Summary(ctx context.Context, from, to time.Time) (*reconcile.Summary, error)

	// Apply settles the selected exact matches, or previews the settlement
	// when the request is a dry run
	Apply(ctx context.Context, req reconciler.ApplyRequest) (*reconciler.ApplyResult, error)
}

// AuditService defines the interface for reading the audit trail
type AuditService interface {
	// GetRecord retrieves one audit record by ID
	// Returns nil if the record is not found
	GetRecord(ctx context.Context, id uuid.UUID) (*audit.Record, error)

	// ListRecords retrieves the most recent audit records, newest first
	ListRecords(ctx context.Context, limit int) ([]*audit.Record, error)
}
