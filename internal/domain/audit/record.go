// Package audit defines the durable append-only trail of bulk operations and
// applied reconciliations. Audit history lives server-side so it survives
// independent of any particular client.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/practiceledger-recon/internal/domain/bulk"
)

// Operation identifies what kind of run produced a record.
type Operation string

const (
	OperationInvoiceCleanup      Operation = "invoice_cleanup"
	OperationReconciliationApply Operation = "reconciliation_apply"
)

// Record is one completed run. Item outcomes are embedded whole so the trail
// can answer "what exactly happened to invoice X" without any other store.
type Record struct {
	ID               uuid.UUID         `json:"id" bson:"_id"`
	Operation        Operation         `json:"operation" bson:"operation"`
	CorrelationID    string            `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	DryRun           bool              `json:"dry_run" bson:"dry_run"`
	Attempted        int               `json:"attempted" bson:"attempted"`
	Succeeded        int               `json:"succeeded" bson:"succeeded"`
	Failed           int               `json:"failed" bson:"failed"`
	Skipped          int               `json:"skipped" bson:"skipped"`
	StoppedEarly     bool              `json:"stopped_early" bson:"stopped_early"`
	Partial          bool              `json:"partial" bson:"partial"`
	RemainingNumbers []string          `json:"remaining_numbers,omitempty" bson:"remaining_numbers,omitempty"`
	Items            []bulk.ItemResult `json:"items,omitempty" bson:"items,omitempty"`
	CreatedAt        time.Time         `json:"created_at" bson:"created_at"`
}
