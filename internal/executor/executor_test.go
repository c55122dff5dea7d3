package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/practiceledger-recon/internal/config"
	"github.com/practiceledger-recon/internal/domain/audit"
	"github.com/practiceledger-recon/internal/domain/invoice"
	"github.com/practiceledger-recon/internal/ledgerapi"
)

// MockGateway mocks the ledger gateway the executor drives
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) FetchInvoice(ctx context.Context, id string) (*invoice.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Record), args.Error(1)
}

func (m *MockGateway) UpdateInvoiceStatus(ctx context.Context, id, number string, status invoice.Status) error {
	args := m.Called(ctx, id, number, status)
	return args.Error(0)
}

func (m *MockGateway) UpdateInvoiceStatusBatch(ctx context.Context, refs []ledgerapi.InvoiceRef, status invoice.Status) error {
	args := m.Called(ctx, refs, status)
	return args.Error(0)
}

func (m *MockGateway) DeletePayment(ctx context.Context, paymentID string) error {
	args := m.Called(ctx, paymentID)
	return args.Error(0)
}

// MockAuditRepository mocks the audit trail store
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Append(ctx context.Context, record *audit.Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockAuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*audit.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*audit.Record), args.Error(1)
}

func (m *MockAuditRepository) ListRecent(ctx context.Context, limit int) ([]*audit.Record, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Record), args.Error(1)
}

// MockPublisher mocks the audit event stream producer
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func testConfig() config.ExecutorConfig {
	return config.ExecutorConfig{
		VoidBatchSize:   25,
		DeleteBatchSize: 100,
		UnpayCap:        40,
		PacingDelay:     time.Millisecond,
	}
}

func newTestExecutor(gateway *MockGateway, auditRepo *MockAuditRepository, publisher *MockPublisher, cfg config.ExecutorConfig) *Executor {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	e := New(logger, gateway, auditRepo, publisher, cfg)
	e.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return e
}

func draftRecord(n int) invoice.Record {
	return invoice.Record{
		ID:     fmt.Sprintf("id-%03d", n),
		Number: fmt.Sprintf("INV-%04d", n),
		Status: invoice.StatusDraft,
	}
}

func expectAudit(auditRepo *MockAuditRepository, publisher *MockPublisher) {
	auditRepo.On("Append", mock.Anything, mock.AnythingOfType("*audit.Record")).Return(nil).Once()
	publisher.On("Publish", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("*audit.Record")).Return(nil).Once()
}

func TestExecutor_Run_RequiresConfirmation(t *testing.T) {
	gateway := new(MockGateway)
	auditRepo := new(MockAuditRepository)
	publisher := new(MockPublisher)
	e := newTestExecutor(gateway, auditRepo, publisher, testConfig())

	result, err := e.Run(context.Background(), Request{
		Items:  NewWorkItems([]invoice.Record{draftRecord(1)}),
		DryRun: false,
	})

	assert.ErrorIs(t, err, ErrNotConfirmed)
	assert.Nil(t, result)
	gateway.AssertNotCalled(t, "UpdateInvoiceStatusBatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecutor_Run_DryRunNeverWrites(t *testing.T) {
	gateway := new(MockGateway)
	auditRepo := new(MockAuditRepository)
	publisher := new(MockPublisher)
	e := newTestExecutor(gateway, auditRepo, publisher, testConfig())

	paid := invoice.Record{
		ID:     "id-100",
		Number: "INV-0100",
		Status: invoice.StatusPaid,
		Payments: []invoice.PaymentAllocation{
			{ID: "pmt-1", AmountCents: 4500},
			{ID: "pmt-2", AmountCents: 2000},
		},
	}
	draft := draftRecord(1)

	// The dry run still reads fresh remote state.
	gateway.On("FetchInvoice", mock.Anything, paid.ID).Return(&paid, nil).Once()

	result, err := e.Run(context.Background(), Request{
		Items:  NewWorkItems([]invoice.Record{paid, draft}),
		DryRun: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 2, result.Counts.PaymentsRemoved)
	assert.Equal(t, 1, result.Counts.Voided)
	assert.Equal(t, 1, result.Counts.Deleted)

	// Nothing mutating, no audit: a dry run leaves no trace anywhere.
	gateway.AssertNotCalled(t, "DeletePayment", mock.Anything, mock.Anything)
	gateway.AssertNotCalled(t, "UpdateInvoiceStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	gateway.AssertNotCalled(t, "UpdateInvoiceStatusBatch", mock.Anything, mock.Anything, mock.Anything)
	auditRepo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	gateway.AssertExpectations(t)
}

func TestExecutor_Run_PoisonedBatchIsolation(t *testing.T) {
	gateway := new(MockGateway)
	auditRepo := new(MockAuditRepository)
	publisher := new(MockPublisher)
	e := newTestExecutor(gateway, auditRepo, publisher, testConfig())

	records := make([]invoice.Record, 0, 10)
	for i := 1; i <= 10; i++ {
		records = append(records, draftRecord(i))
	}
	poisoned := records[4]

	// The whole batch is rejected, then each item is retried alone and only
	// the poisoned one fails.
	gateway.On("UpdateInvoiceStatusBatch", mock.Anything, mock.Anything, invoice.StatusDeleted).
		Return(&ledgerapi.ValidationError{StatusCode: 400, Message: "a validation exception occurred"}).Once()
	for _, rec := range records {
		if rec.ID == poisoned.ID {
			gateway.On("UpdateInvoiceStatus", mock.Anything, rec.ID, rec.Number, invoice.StatusDeleted).
				Return(&ledgerapi.ValidationError{
					StatusCode: 400,
					Items: []ledgerapi.ItemValidationError{
						{InvoiceID: rec.ID, InvoiceNumber: rec.Number, Message: "invoice is locked by a credit note"},
					},
				}).Once()
			continue
		}
		gateway.On("UpdateInvoiceStatus", mock.Anything, rec.ID, rec.Number, invoice.StatusDeleted).Return(nil).Once()
	}
	expectAudit(auditRepo, publisher)

	result, err := e.Run(context.Background(), Request{
		Items:     NewWorkItems(records),
		Confirmed: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 10, result.Attempted)
	assert.Equal(t, 9, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 9, result.Counts.Deleted)
	assert.False(t, result.StoppedEarly)
	require.Len(t, result.Errors(), 1)
	assert.Contains(t, result.Errors()[0], "locked by a credit note")
	gateway.AssertExpectations(t)
	auditRepo.AssertExpectations(t)
}

func TestExecutor_Run_UnpayCapDefersOverflow(t *testing.T) {
	gateway := new(MockGateway)
	auditRepo := new(MockAuditRepository)
	publisher := new(MockPublisher)
	cfg := testConfig()
	cfg.UnpayCap = 2
	e := newTestExecutor(gateway, auditRepo, publisher, cfg)

	records := make([]invoice.Record, 0, 5)
	for i := 1; i <= 5; i++ {
		rec := draftRecord(i)
		rec.Status = invoice.StatusAuthorised
		records = append(records, rec)
	}

	for _, rec := range records[:2] {
		fresh := rec
		gateway.On("FetchInvoice", mock.Anything, rec.ID).Return(&fresh, nil).Once()
	}
	gateway.On("UpdateInvoiceStatusBatch", mock.Anything, mock.Anything, invoice.StatusVoided).Return(nil).Once()
	expectAudit(auditRepo, publisher)

	result, err := e.Run(context.Background(), Request{
		Items:     NewWorkItems(records),
		Confirmed: true,
	})
	require.NoError(t, err)

	assert.True(t, result.Partial)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, []string{"INV-0003", "INV-0004", "INV-0005"}, result.RemainingNumbers)

	// Exactly-once accounting: every input number appears once across
	// processed and remaining.
	accounted := result.AccountedNumbers()
	assert.Len(t, accounted, len(records))
	seen := make(map[string]int)
	for _, n := range accounted {
		seen[n]++
	}
	for _, rec := range records {
		assert.Equal(t, 1, seen[rec.Number], "invoice %s accounted exactly once", rec.Number)
	}
	gateway.AssertExpectations(t)
}

func TestExecutor_Run_NotFoundStopsUnpayStage(t *testing.T) {
	gateway := new(MockGateway)
	auditRepo := new(MockAuditRepository)
	publisher := new(MockPublisher)
	e := newTestExecutor(gateway, auditRepo, publisher, testConfig())

	first := draftRecord(1)
	first.Status = invoice.StatusPaid
	second := draftRecord(2)
	second.Status = invoice.StatusPaid

	gateway.On("FetchInvoice", mock.Anything, first.ID).
		Return(nil, &ledgerapi.NotFoundError{Resource: "Invoices", ID: first.ID}).Once()
	expectAudit(auditRepo, publisher)

	result, err := e.Run(context.Background(), Request{
		Items:     NewWorkItems([]invoice.Record{first, second}),
		Confirmed: true,
	})
	require.NoError(t, err)

	assert.True(t, result.StoppedEarly)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []string{second.Number}, result.RemainingNumbers)
	gateway.AssertNotCalled(t, "FetchInvoice", mock.Anything, second.ID)
	gateway.AssertExpectations(t)
}

func TestExecutor_Run_AlreadyRetiredIsSkipped(t *testing.T) {
	gateway := new(MockGateway)
	auditRepo := new(MockAuditRepository)
	publisher := new(MockPublisher)
	e := newTestExecutor(gateway, auditRepo, publisher, testConfig())

	rec := draftRecord(1)
	rec.Status = invoice.StatusPaid
	fresh := rec
	fresh.Status = invoice.StatusVoided

	gateway.On("FetchInvoice", mock.Anything, rec.ID).Return(&fresh, nil).Once()
	expectAudit(auditRepo, publisher)

	result, err := e.Run(context.Background(), Request{
		Items:     NewWorkItems([]invoice.Record{rec}),
		Confirmed: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	gateway.AssertNotCalled(t, "UpdateInvoiceStatusBatch", mock.Anything, mock.Anything, mock.Anything)
	gateway.AssertExpectations(t)
}

func TestExecutor_Run_AuthErrorIsFatal(t *testing.T) {
	gateway := new(MockGateway)
	auditRepo := new(MockAuditRepository)
	publisher := new(MockPublisher)
	e := newTestExecutor(gateway, auditRepo, publisher, testConfig())

	gateway.On("UpdateInvoiceStatusBatch", mock.Anything, mock.Anything, invoice.StatusDeleted).
		Return(&ledgerapi.AuthError{StatusCode: 401, Message: "token expired"}).Once()

	result, err := e.Run(context.Background(), Request{
		Items:     NewWorkItems([]invoice.Record{draftRecord(1)}),
		Confirmed: true,
	})

	assert.Error(t, err)
	assert.Nil(t, result)
	auditRepo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	gateway.AssertExpectations(t)
}

func TestExecutor_Run_UnpayRemovesAllocationsThenVoids(t *testing.T) {
	gateway := new(MockGateway)
	auditRepo := new(MockAuditRepository)
	publisher := new(MockPublisher)
	e := newTestExecutor(gateway, auditRepo, publisher, testConfig())

	rec := invoice.Record{
		ID:     "id-200",
		Number: "INV-0200",
		Status: invoice.StatusPaid,
	}
	fresh := rec
	fresh.Payments = []invoice.PaymentAllocation{
		{ID: "pmt-a", AmountCents: 4500},
		{ID: "pmt-b", AmountCents: 880},
	}

	gateway.On("FetchInvoice", mock.Anything, rec.ID).Return(&fresh, nil).Once()
	gateway.On("DeletePayment", mock.Anything, "pmt-a").Return(nil).Once()
	gateway.On("DeletePayment", mock.Anything, "pmt-b").Return(nil).Once()
	gateway.On("UpdateInvoiceStatusBatch", mock.Anything, []ledgerapi.InvoiceRef{{ID: rec.ID, Number: rec.Number}}, invoice.StatusVoided).Return(nil).Once()
	expectAudit(auditRepo, publisher)

	result, err := e.Run(context.Background(), Request{
		Items:     NewWorkItems([]invoice.Record{rec}),
		Confirmed: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 2, result.Counts.PaymentsRemoved)
	assert.Equal(t, 1, result.Counts.Voided)
	require.Len(t, result.Items, 1)
	assert.Contains(t, result.Items[0].Message, "removed 2 payment(s)")
	gateway.AssertExpectations(t)
}
