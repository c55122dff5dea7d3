// Package reconciler composes the practice-management payment mirror, the
// ledger's clearing account and the bank deposit feed into a classified
// three-way match set, and executes the settlement transfers for confirmed
// matches.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/practiceledger-recon/internal/config"
	"github.com/practiceledger-recon/internal/domain/audit"
	"github.com/practiceledger-recon/internal/domain/payment"
	"github.com/practiceledger-recon/internal/domain/reconcile"
	"github.com/practiceledger-recon/internal/ledgerapi"
	"github.com/practiceledger-recon/internal/matching"
	"github.com/practiceledger-recon/internal/platform/messaging/producers"
)

// Gateway is the slice of the ledger API the reconciler uses: the two bank
// feeds for reading and the transfer call for applying matches.
type Gateway interface {
	FetchBankTransactions(ctx context.Context, accountID string, from, to time.Time, direction ledgerapi.Direction) ([]ledgerapi.BankTransaction, error)
	CreateBankTransfer(ctx context.Context, fromAccountID, toAccountID string, amountCents int64, date time.Time, reference string) error
}

// Service is the three-way reconciler.
type Service struct {
	gateway   Gateway
	payments  payment.Repository
	auditRepo audit.Repository
	publisher producers.MessagePublisher
	rules     *matching.RuleSet
	pool      *ants.Pool
	ledgerCfg config.LedgerConfig
	cfg       config.ReconcilerConfig
	logger    *slog.Logger
}

// New creates a reconciler service with its own worker pool for the
// read-only source fetches. Callers must Close it to release the pool.
func New(
	logger *slog.Logger,
	gateway Gateway,
	payments payment.Repository,
	auditRepo audit.Repository,
	publisher producers.MessagePublisher,
	ledgerCfg config.LedgerConfig,
	cfg config.ReconcilerConfig,
) (*Service, error) {
	pool, err := ants.NewPool(cfg.FetchPoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch worker pool: %w", err)
	}
	return &Service{
		gateway:   gateway,
		payments:  payments,
		auditRepo: auditRepo,
		publisher: publisher,
		rules:     matching.DefaultSettlementRules(),
		pool:      pool,
		ledgerCfg: ledgerCfg,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Close releases the worker pool.
func (s *Service) Close() {
	s.pool.Release()
}

// Reconcile fetches the three sources for the window and classifies them.
// The fetches are reads, so they fan out on the worker pool; everything
// mutating in this system stays sequential.
func (s *Service) Reconcile(ctx context.Context, from, to time.Time) (*reconcile.Summary, error) {
	sources, err := s.fetchSources(ctx, from, to)
	if err != nil {
		return nil, err
	}

	fees := FeeModel{PercentBps: s.cfg.FeePercentBps, FixedCents: s.cfg.FeeFixedCents}
	tolerance := time.Duration(s.cfg.DateToleranceDays) * 24 * time.Hour
	summary := buildSummary(sources.payments, sources.clearing, sources.deposits, fees, s.rules, tolerance)

	s.logger.Info("Reconciliation summary built",
		"from", from.Format("2006-01-02"),
		"to", to.Format("2006-01-02"),
		"payments", len(sources.payments),
		"clearing_entries", len(sources.clearing),
		"deposits", len(sources.deposits),
		"matched", summary.Stats.Counts[reconcile.StatusMatched],
		"orphan_deposits", summary.Stats.Counts[reconcile.StatusOrphanDeposit],
	)
	return summary, nil
}

type sourceData struct {
	payments []payment.Record
	clearing []reconcile.ClearingEntry
	deposits []reconcile.BankDeposit
}

// fetchSources pulls the three inputs concurrently and fails fast on the
// first source error.
func (s *Service) fetchSources(ctx context.Context, from, to time.Time) (*sourceData, error) {
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		data sourceData
		errs []error
	)

	submit := func(name string, task func() error) {
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			if err := task(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("failed to fetch %s: %w", name, err))
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, fmt.Errorf("failed to submit %s fetch: %w", name, err))
			mu.Unlock()
		}
	}

	submit("payments", func() error {
		records, err := s.payments.ListByDateRange(ctx, from, to)
		if err != nil {
			return err
		}
		mu.Lock()
		data.payments = records
		mu.Unlock()
		return nil
	})

	submit("clearing entries", func() error {
		transactions, err := s.gateway.FetchBankTransactions(ctx, s.ledgerCfg.ClearingAccountID, from, to, ledgerapi.DirectionCredit)
		if err != nil {
			return err
		}
		entries := make([]reconcile.ClearingEntry, 0, len(transactions))
		for _, tx := range transactions {
			entries = append(entries, reconcile.ClearingEntry{
				ID:          tx.ID,
				Date:        tx.Date,
				AmountCents: tx.AmountCents,
				Reference:   tx.Reference,
				ContactName: tx.ContactName,
			})
		}
		mu.Lock()
		data.clearing = entries
		mu.Unlock()
		return nil
	})

	submit("bank deposits", func() error {
		transactions, err := s.gateway.FetchBankTransactions(ctx, s.ledgerCfg.BankAccountID, from, to, ledgerapi.DirectionCredit)
		if err != nil {
			return err
		}
		deposits := make([]reconcile.BankDeposit, 0, len(transactions))
		for _, tx := range transactions {
			deposits = append(deposits, reconcile.BankDeposit{
				ID:          tx.ID,
				Date:        tx.Date,
				AmountCents: tx.AmountCents,
				Reference:   tx.Reference,
				Reconciled:  tx.Reconciled,
			})
		}
		mu.Lock()
		data.deposits = deposits
		mu.Unlock()
		return nil
	})

	wg.Wait()
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return &data, nil
}

// ApplyRequest selects matches from a prior summary for settlement. The
// summary is recomputed over the same window first: the remote is the
// single source of truth and may have moved since the preview.
type ApplyRequest struct {
	From          time.Time
	To            time.Time
	MatchIDs      []string
	DryRun        bool
	CorrelationID string
}

// MatchOutcome is one selected match's apply result.
type MatchOutcome struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ApplyResult aggregates an apply run.
type ApplyResult struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Results   []MatchOutcome `json:"results"`
	DryRun    bool           `json:"dry_run"`
}

// Apply executes the settlement transfer for each selected match. Only
// exact matches are applied; manual-entry matches need operator
// confirmation through a different workflow and are refused here. The dry
// run walks the same path and suppresses only the transfer call.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	summary, err := s.Reconcile(ctx, req.From, req.To)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{Total: len(req.MatchIDs), DryRun: req.DryRun}
	for _, id := range req.MatchIDs {
		match := summary.FindMatch(id)
		switch {
		case match == nil:
			result.Failed++
			result.Results = append(result.Results, MatchOutcome{
				ID:      id,
				Message: "match no longer present; remote data changed since the summary was taken",
			})
		case match.Status != reconcile.StatusMatched:
			result.Failed++
			result.Results = append(result.Results, MatchOutcome{
				ID:      id,
				Message: fmt.Sprintf("match status is %s; only exact matches can be applied", match.Status),
			})
		default:
			message := fmt.Sprintf("transferred %d cents to settle deposit %s", match.Deposit.AmountCents, match.Deposit.ID)
			if !req.DryRun {
				err := s.gateway.CreateBankTransfer(
					ctx,
					s.ledgerCfg.ClearingAccountID,
					s.ledgerCfg.BankAccountID,
					match.Deposit.AmountCents,
					match.Deposit.Date,
					match.Deposit.Reference,
				)
				if err != nil {
					result.Failed++
					result.Results = append(result.Results, MatchOutcome{ID: id, Message: err.Error()})
					continue
				}
			}
			result.Succeeded++
			result.Results = append(result.Results, MatchOutcome{ID: id, Success: true, Message: message})
		}
	}

	if !req.DryRun {
		s.recordAudit(ctx, req, result)
	}
	return result, nil
}

func (s *Service) recordAudit(ctx context.Context, req ApplyRequest, result *ApplyResult) {
	record := &audit.Record{
		ID:            uuid.New(),
		Operation:     audit.OperationReconciliationApply,
		CorrelationID: req.CorrelationID,
		DryRun:        req.DryRun,
		Attempted:     result.Total,
		Succeeded:     result.Succeeded,
		Failed:        result.Failed,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.auditRepo.Append(ctx, record); err != nil {
		s.logger.Error("Failed to append audit record", "audit_id", record.ID.String(), "error", err)
	}
	if err := s.publisher.Publish(ctx, record.ID.String(), record); err != nil {
		s.logger.Error("Failed to publish audit event", "audit_id", record.ID.String(), "error", err)
	}
}
