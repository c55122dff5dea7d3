package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/practiceledger-recon/internal/domain/reconcile"
	"github.com/practiceledger-recon/internal/reconciler"
)

// Reconciler is the engine behind the reconciliation service.
type Reconciler interface {
	Reconcile(ctx context.Context, from, to time.Time) (*reconcile.Summary, error)
	Apply(ctx context.Context, req reconciler.ApplyRequest) (*reconciler.ApplyResult, error)
}

// ReconciliationServiceImpl implements the ReconciliationService interface
type ReconciliationServiceImpl struct {
	engine Reconciler
	logger *slog.Logger
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(logger *slog.Logger, engine Reconciler) ReconciliationService {
	return &ReconciliationServiceImpl{
		engine: engine,
		logger: logger,
	}
}

// Summary builds the classified match set for the window
func (s *ReconciliationServiceImpl) Summary(ctx context.Context, from, to time.Time) (*reconcile.Summary, error) {
	summary, err := s.engine.Reconcile(ctx, from, to)
	if err != nil {
		s.logger.Error("Failed to build reconciliation summary", "error", err)
		return nil, err
	}
	return summary, nil
}

// Apply settles the selected matches via the engine
func (s *ReconciliationServiceImpl) Apply(ctx context.Context, req reconciler.ApplyRequest) (*reconciler.ApplyResult, error) {
	result, err := s.engine.Apply(ctx, req)
	if err != nil {
		s.logger.Error("Failed to apply reconciliation matches", "error", err)
		return nil, err
	}
	return result, nil
}
