// Package payment holds the practice-management payment records used as
// read-only enrichment data during reconciliation. The practice-management
// sync job owns these rows; this engine never mutates them.
package payment

import "time"

// Record is one patient-level payment as recorded in the practice-management
// system. Amounts are integer cents.
type Record struct {
	ID            string    `json:"id"`
	InvoiceNumber string    `json:"invoice_number"`
	AmountCents   int64     `json:"amount_cents"`
	Method        string    `json:"method"`
	ContactName   string    `json:"contact_name"`
	CreatedAt     time.Time `json:"created_at"`
}
