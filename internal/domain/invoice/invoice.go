// Package invoice defines the remote ledger's invoice snapshot types and
// the pure lifecycle classification used by the bulk cleanup engine.
package invoice

import (
	"strings"
	"time"
)

// Status is the remote ledger's invoice lifecycle status. The set is closed;
// anything else coming off the wire is treated as unknown and skipped.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusSubmitted  Status = "SUBMITTED"
	StatusAuthorised Status = "AUTHORISED"
	StatusPaid       Status = "PAID"
	StatusVoided     Status = "VOIDED"
	StatusDeleted    Status = "DELETED"
)

// ParseStatus normalises a raw remote status string into a Status value.
// Unrecognised values pass through upper-cased so callers can still log them.
func ParseStatus(raw string) Status {
	return Status(strings.ToUpper(strings.TrimSpace(raw)))
}

// Record is an immutable snapshot of a remote invoice, fetched fresh per
// operation and never cached between invocations. Amounts are integer cents.
type Record struct {
	ID             string              `json:"id"`
	Number         string              `json:"number"`
	Date           time.Time           `json:"date"`
	Status         Status              `json:"status"`
	TotalCents     int64               `json:"total_cents"`
	AmountDueCents int64               `json:"amount_due_cents"`
	ContactName    string              `json:"contact_name"`
	Payments       []PaymentAllocation `json:"payments,omitempty"`
}

// PaymentAllocation is a payment attached to an invoice. It exists only while
// the owning invoice is in a payable state and is removed by an explicit
// deletion call against the remote ledger.
type PaymentAllocation struct {
	ID          string    `json:"id"`
	AmountCents int64     `json:"amount_cents"`
	Date        time.Time `json:"date"`
}
