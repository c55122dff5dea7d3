package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practiceledger-recon/internal/domain/payment"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestPaymentRepository_ListByDateRange(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PaymentRepository{querier: mock, logger: logger}
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)

	expected := []payment.Record{
		{
			ID:            "pay-001",
			InvoiceNumber: "INV-1042",
			AmountCents:   4500,
			Method:        "EFTPOS",
			ContactName:   "J Citizen",
			CreatedAt:     from.Add(24 * time.Hour),
		},
		{
			ID:            "pay-002",
			InvoiceNumber: "INV-1043",
			AmountCents:   7205,
			Method:        "Medicare",
			ContactName:   "A Patient",
			CreatedAt:     from.Add(48 * time.Hour),
		},
	}

	query := `
		SELECT id, invoice_number, amount_cents, method, contact_name, created_at
		FROM pm_payments
		WHERE created_at >= \$1 AND created_at <= \$2
		ORDER BY created_at
	`

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"id", "invoice_number", "amount_cents", "method", "contact_name", "created_at"})
		for _, rec := range expected {
			rows.AddRow(rec.ID, rec.InvoiceNumber, rec.AmountCents, rec.Method, rec.ContactName, rec.CreatedAt)
		}
		mock.ExpectQuery(query).WithArgs(from, to).WillReturnRows(rows)

		records, err := repo.ListByDateRange(ctx, from, to)
		assert.NoError(t, err)
		assert.Equal(t, expected, records)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty window", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"id", "invoice_number", "amount_cents", "method", "contact_name", "created_at"})
		mock.ExpectQuery(query).WithArgs(from, to).WillReturnRows(rows)

		records, err := repo.ListByDateRange(ctx, from, to)
		assert.NoError(t, err)
		assert.Empty(t, records)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("some db error")
		mock.ExpectQuery(query).WithArgs(from, to).WillReturnError(dbErr)

		records, err := repo.ListByDateRange(ctx, from, to)
		assert.Error(t, err)
		assert.Nil(t, records)
		assert.Contains(t, err.Error(), "failed to list payments by date range")
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPaymentRepository_ListByInvoiceNumbers(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PaymentRepository{querier: mock, logger: logger}
	numbers := []string{"INV-1042", "INV-1099"}
	now := time.Now().UTC().Truncate(time.Second)

	query := `
		SELECT id, invoice_number, amount_cents, method, contact_name, created_at
		FROM pm_payments
		WHERE invoice_number = ANY\(\$1\)
		ORDER BY created_at
	`

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"id", "invoice_number", "amount_cents", "method", "contact_name", "created_at"}).
			AddRow("pay-001", "INV-1042", int64(4500), "EFTPOS", "J Citizen", now)
		mock.ExpectQuery(query).WithArgs(numbers).WillReturnRows(rows)

		records, err := repo.ListByInvoiceNumbers(ctx, numbers)
		assert.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "INV-1042", records[0].InvoiceNumber)
		assert.Equal(t, int64(4500), records[0].AmountCents)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no numbers skips the query", func(t *testing.T) {
		records, err := repo.ListByInvoiceNumbers(ctx, nil)
		assert.NoError(t, err)
		assert.Nil(t, records)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("some db error")
		mock.ExpectQuery(query).WithArgs(numbers).WillReturnError(dbErr)

		records, err := repo.ListByInvoiceNumbers(ctx, numbers)
		assert.Error(t, err)
		assert.Nil(t, records)
		assert.Contains(t, err.Error(), "failed to list payments by invoice numbers")
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
