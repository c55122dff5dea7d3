// Package postgres provides the PostgreSQL implementation of the
// practice-management payment mirror. The mirror is read-only from this
// engine's point of view; the sync job that populates it lives elsewhere.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/practiceledger-recon/internal/domain/payment"
	"github.com/practiceledger-recon/internal/platform/persistence"
)

// PaymentRepository implements the payment.Repository interface for PostgreSQL
type PaymentRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewPaymentRepository creates a new PostgreSQL payment repository.
// It expects db.Pool() to satisfy persistence.Querier.
func NewPaymentRepository(logger *slog.Logger, db *persistence.PostgresDB) payment.Repository {
	return &PaymentRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// ListByDateRange retrieves payments created inside the window, inclusive of
// both endpoints, ordered oldest first.
func (r *PaymentRepository) ListByDateRange(ctx context.Context, from, to time.Time) ([]payment.Record, error) {
	query := `
		SELECT id, invoice_number, amount_cents, method, contact_name, created_at
		FROM pm_payments
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at
	`

	rows, err := r.querier.Query(ctx, query, from, to)
	if err != nil {
		r.logger.Error("Failed to list payments by date range", "error", err)
		return nil, fmt.Errorf("failed to list payments by date range: %w", err)
	}
	defer rows.Close()

	return scanPayments(rows)
}

// ListByInvoiceNumbers retrieves payments whose invoice number appears in the
// given set. Numbers with no mirrored payment are simply absent from the
// result.
func (r *PaymentRepository) ListByInvoiceNumbers(ctx context.Context, numbers []string) ([]payment.Record, error) {
	if len(numbers) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, invoice_number, amount_cents, method, contact_name, created_at
		FROM pm_payments
		WHERE invoice_number = ANY($1)
		ORDER BY created_at
	`

	rows, err := r.querier.Query(ctx, query, numbers)
	if err != nil {
		r.logger.Error("Failed to list payments by invoice numbers", "error", err)
		return nil, fmt.Errorf("failed to list payments by invoice numbers: %w", err)
	}
	defer rows.Close()

	return scanPayments(rows)
}

func scanPayments(rows pgx.Rows) ([]payment.Record, error) {
	var records []payment.Record
	for rows.Next() {
		var rec payment.Record
		err := rows.Scan(
			&rec.ID,
			&rec.InvoiceNumber,
			&rec.AmountCents,
			&rec.Method,
			&rec.ContactName,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read payment rows: %w", err)
	}
	return records, nil
}
