// Package reconcile defines the three-way match model binding a
// practice-management payment, its clearing-account entry and the bank
// deposit it eventually settled into. Matches are a derived view: statuses
// are recomputed fresh on every run and nothing here is persisted as ground
// truth.
package reconcile

import (
	"time"

	"github.com/practiceledger-recon/internal/domain/payment"
)

// BankDeposit is an unreconciled incoming entry from the ledger's real bank
// account feed.
type BankDeposit struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	AmountCents int64     `json:"amount_cents"`
	Reference   string    `json:"reference"`
	Reconciled  bool      `json:"reconciled"`
}

// ClearingEntry is one patient-level payment sitting in the intermediate
// clearing account before it is swept into a real bank account.
type ClearingEntry struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	AmountCents int64     `json:"amount_cents"`
	Reference   string    `json:"reference"`
	ContactName string    `json:"contact_name,omitempty"`
	Method      string    `json:"method,omitempty"` // settlement batch group, derived from the rule table
}

// MatchStatus classifies a three-way match.
type MatchStatus string

const (
	// StatusMatched means payment, clearing entry and deposit all align and
	// the settlement transfer is ready to execute.
	StatusMatched MatchStatus = "matched"
	// StatusAwaitingDeposit means the clearing entry exists but the bank
	// money has not landed yet.
	StatusAwaitingDeposit MatchStatus = "awaiting_deposit"
	// StatusSyncFailed means a payment record has no clearing entry, i.e.
	// the practice-management sync never wrote one.
	StatusSyncFailed MatchStatus = "sync_failed"
	// StatusManualEntry means the link was made by the amount+date heuristic
	// rather than an exact reference. Lower confidence; never auto-applied.
	StatusManualEntry MatchStatus = "manual_entry"
	// StatusOrphanDeposit means bank money arrived with no corresponding
	// clearing entry.
	StatusOrphanDeposit MatchStatus = "orphan_deposit"
)

// Match is one classified triple. Any of the three sides may be absent; the
// status is a pure function of which sides are present and how they were
// linked. The ID is deterministic for unchanged inputs (derived from the
// strongest side present) so a caller can select matches from one summary
// and apply them in a follow-up request.
type Match struct {
	ID                 string          `json:"id"`
	Status             MatchStatus     `json:"status"`
	Payment            *payment.Record `json:"payment,omitempty"`
	Clearing           []ClearingEntry `json:"clearing,omitempty"`
	Deposit            *BankDeposit    `json:"deposit,omitempty"`
	CalculatedFeeCents int64           `json:"calculated_fee_cents,omitempty"`
}

// ClearingTotalCents sums the clearing entry group.
func (m *Match) ClearingTotalCents() int64 {
	var total int64
	for _, e := range m.Clearing {
		total += e.AmountCents
	}
	return total
}

// Stats aggregates a reconciliation run for the caller.
type Stats struct {
	Counts             map[MatchStatus]int `json:"counts"`
	TotalMatchedCents  int64               `json:"total_matched_cents"`
	TotalDepositsCents int64               `json:"total_deposits_cents"`
}

// Summary is the full output of one reconciliation run.
type Summary struct {
	Matches []Match `json:"matches"`
	Stats   Stats   `json:"stats"`
}

// UnmatchedDeposits returns deposits that claimed no clearing entries.
func (s *Summary) UnmatchedDeposits() []BankDeposit {
	var out []BankDeposit
	for _, m := range s.Matches {
		if m.Status == StatusOrphanDeposit && m.Deposit != nil {
			out = append(out, *m.Deposit)
		}
	}
	return out
}

// UnmatchedClearing returns clearing entries still waiting for bank money.
func (s *Summary) UnmatchedClearing() []ClearingEntry {
	var out []ClearingEntry
	for _, m := range s.Matches {
		if m.Status == StatusAwaitingDeposit {
			out = append(out, m.Clearing...)
		}
	}
	return out
}

// FindMatch returns the match with the given ID, or nil.
func (s *Summary) FindMatch(id string) *Match {
	for i := range s.Matches {
		if s.Matches[i].ID == id {
			return &s.Matches[i]
		}
	}
	return nil
}
