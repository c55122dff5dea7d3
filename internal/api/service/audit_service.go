package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/practiceledger-recon/internal/domain/audit"
)

// AuditServiceImpl implements the AuditService interface
type AuditServiceImpl struct {
	auditRepo audit.Repository
	logger    *slog.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(logger *slog.Logger, auditRepo audit.Repository) AuditService {
	return &AuditServiceImpl{
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// GetRecord retrieves one audit record by ID. Returns nil if not found
func (s *AuditServiceImpl) GetRecord(ctx context.Context, id uuid.UUID) (*audit.Record, error) {
	record, err := s.auditRepo.GetByID(ctx, id)
	if err != nil {
		var notFound audit.ErrRecordNotFound
		if errors.As(err, &notFound) {
			s.logger.Info("Audit record not found", "audit_id", id.String())
			return nil, nil
		}
		s.logger.Error("Failed to get audit record", "audit_id", id.String(), "error", err)
		return nil, err
	}
	return record, nil
}

// ListRecords retrieves the most recent audit records, newest first
func (s *AuditServiceImpl) ListRecords(ctx context.Context, limit int) ([]*audit.Record, error) {
	records, err := s.auditRepo.ListRecent(ctx, limit)
	if err != nil {
		s.logger.Error("Failed to list audit records", "error", err)
		return nil, err
	}
	return records, nil
}
