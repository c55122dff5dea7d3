package payment

import (
	"context"
	"time"
)

// Repository reads practice-management payment records from the local mirror
type Repository interface {
	ListByDateRange(ctx context.Context, from, to time.Time) ([]Record, error)
	ListByInvoiceNumbers(ctx context.Context, numbers []string) ([]Record, error)
}
