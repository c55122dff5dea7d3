package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/practiceledger-recon/internal/domain/bulk"
	"github.com/practiceledger-recon/internal/domain/invoice"
	"github.com/practiceledger-recon/internal/executor"
)

// ErrEmptySelection rejects a cleanup request that names no invoices at all.
var ErrEmptySelection = errors.New("cleanup request selects no invoices")

// InvoiceFetcher is the slice of the ledger API the cleanup service reads
// invoices through.
type InvoiceFetcher interface {
	FetchInvoicesByNumbers(ctx context.Context, numbers []string) ([]invoice.Record, error)
	FetchInvoicesBefore(ctx context.Context, cutoff time.Time) ([]invoice.Record, error)
}

// BulkRunner executes a classified worklist.
type BulkRunner interface {
	Run(ctx context.Context, req executor.Request) (*bulk.Result, error)
}

// CleanupServiceImpl implements the CleanupService interface
type CleanupServiceImpl struct {
	fetcher InvoiceFetcher
	runner  BulkRunner
	logger  *slog.Logger
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(logger *slog.Logger, fetcher InvoiceFetcher, runner BulkRunner) CleanupService {
	return &CleanupServiceImpl{
		fetcher: fetcher,
		runner:  runner,
		logger:  logger,
	}
}

// Cleanup fetches the selection fresh from the remote ledger, classifies each
// invoice by its current status and hands the worklist to the executor. The
// selection is always re-fetched: snapshots from an earlier summary or a
// previous run are treated as stale by construction.
func (s *CleanupServiceImpl) Cleanup(ctx context.Context, req CleanupRequest) (*bulk.Result, error) {
	numbers := append([]string(nil), req.Numbers...)
	numbers = append(numbers, req.ResumeNumbers...)

	var records []invoice.Record
	var err error
	switch {
	case len(numbers) > 0:
		records, err = s.fetcher.FetchInvoicesByNumbers(ctx, dedupe(numbers))
	case req.BeforeDate != nil:
		records, err = s.fetcher.FetchInvoicesBefore(ctx, *req.BeforeDate)
	default:
		return nil, ErrEmptySelection
	}
	if err != nil {
		s.logger.Error("Failed to fetch invoice selection", "error", err)
		return nil, err
	}

	items := executor.NewWorkItems(records)
	s.logger.Info("Cleanup selection fetched",
		"requested", len(numbers),
		"fetched", len(records),
		"dry_run", req.DryRun,
	)

	return s.runner.Run(ctx, executor.Request{
		Items:         items,
		DryRun:        req.DryRun,
		Confirmed:     req.Confirmed,
		CorrelationID: req.CorrelationID,
	})
}

func dedupe(numbers []string) []string {
	seen := make(map[string]struct{}, len(numbers))
	out := make([]string, 0, len(numbers))
	for _, n := range numbers {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
