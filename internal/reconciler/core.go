package reconciler

import (
	"sort"
	"time"

	"github.com/practiceledger-recon/internal/domain/payment"
	"github.com/practiceledger-recon/internal/domain/reconcile"
	"github.com/practiceledger-recon/internal/matching"
)

// FeeModel is the processor's deduction applied between a recorded payment
// and the net amount that lands in the clearing account: a percentage in
// basis points plus a fixed per-payment fee, both in integer cents.
type FeeModel struct {
	PercentBps int64
	FixedCents int64
}

// FeeCents computes the expected processor fee for a gross amount.
func (f FeeModel) FeeCents(grossCents int64) int64 {
	return grossCents*f.PercentBps/10000 + f.FixedCents
}

// linkedEntry is a clearing entry with its resolved payment link, carried
// through grouping and deposit matching.
type linkedEntry struct {
	entry     reconcile.ClearingEntry
	payment   *payment.Record
	heuristic bool // linked by amount+date, not by exact reference
	feeCents  int64
}

// buildSummary is the pure reconciliation core. Statuses are a function of
// the three inputs only; running it twice over unchanged data yields
// identical results.
func buildSummary(
	payments []payment.Record,
	clearing []reconcile.ClearingEntry,
	deposits []reconcile.BankDeposit,
	fees FeeModel,
	rules *matching.RuleSet,
	dateTolerance time.Duration,
) *reconcile.Summary {
	summary := &reconcile.Summary{
		Stats: reconcile.Stats{Counts: make(map[reconcile.MatchStatus]int)},
	}

	// Step 1: link payments to clearing entries by exact reference, with
	// the amount+date heuristic as a lower-confidence fallback.
	linked, orphanPayments := linkPayments(payments, clearing, fees, rules, dateTolerance)

	// Orphan payments never produced a clearing entry: the sync failed.
	for i := range orphanPayments {
		p := orphanPayments[i]
		summary.Matches = append(summary.Matches, reconcile.Match{
			ID:      "pay:" + p.ID,
			Status:  reconcile.StatusSyncFailed,
			Payment: &p,
		})
	}

	// Step 2: match deposits against clearing-entry groups, per settlement
	// batch. Processors settle per batch, so a deposit's amount is the sum
	// of several patient-level entries; the subset-sum search finds which.
	groups := make(map[string][]*linkedEntry)
	for i := range linked {
		le := &linked[i]
		groups[le.entry.Method] = append(groups[le.entry.Method], le)
	}
	groupNames := make([]string, 0, len(groups))
	for name := range groups {
		groupNames = append(groupNames, name)
	}
	sort.Strings(groupNames) // deterministic iteration

	claimed := make(map[*linkedEntry]bool)
	for i := range deposits {
		dep := deposits[i]
		summary.Stats.TotalDepositsCents += dep.AmountCents

		var found []*linkedEntry
		for _, name := range groupNames {
			var pool []*linkedEntry
			for _, le := range groups[name] {
				if !claimed[le] {
					pool = append(pool, le)
				}
			}
			amounts := make([]int64, len(pool))
			for j, le := range pool {
				amounts[j] = le.entry.AmountCents
			}
			if picked := matching.FindExactSubset(amounts, dep.AmountCents); picked != nil {
				for _, idx := range picked {
					found = append(found, pool[idx])
				}
				break
			}
		}

		if found == nil {
			summary.Matches = append(summary.Matches, reconcile.Match{
				ID:      "dep:" + dep.ID,
				Status:  reconcile.StatusOrphanDeposit,
				Deposit: &dep,
			})
			continue
		}

		match := reconcile.Match{
			ID:      "dep:" + dep.ID,
			Status:  reconcile.StatusMatched,
			Deposit: &dep,
		}
		for _, le := range found {
			claimed[le] = true
			match.Clearing = append(match.Clearing, le.entry)
			match.CalculatedFeeCents += le.feeCents
			if le.heuristic {
				// Any heuristic link degrades the whole match: it needs
				// operator confirmation before a transfer is applied.
				match.Status = reconcile.StatusManualEntry
			}
		}
		if len(found) == 1 {
			match.Payment = found[0].payment
		}
		if match.Status == reconcile.StatusMatched {
			summary.Stats.TotalMatchedCents += dep.AmountCents
		}
		summary.Matches = append(summary.Matches, match)
	}

	// Step 3: clearing entries no deposit claimed are still waiting for
	// the bank money to land.
	for i := range linked {
		le := &linked[i]
		if claimed[le] {
			continue
		}
		match := reconcile.Match{
			ID:                 "clr:" + le.entry.ID,
			Status:             reconcile.StatusAwaitingDeposit,
			Clearing:           []reconcile.ClearingEntry{le.entry},
			Payment:            le.payment,
			CalculatedFeeCents: le.feeCents,
		}
		summary.Matches = append(summary.Matches, match)
	}

	for _, m := range summary.Matches {
		summary.Stats.Counts[m.Status]++
	}
	return summary
}

// linkPayments resolves each payment record to its clearing entry. Exact
// reference match wins; otherwise the amount+date heuristic picks the
// closest-dated equal-amount entry inside the tolerance window and flags the
// link heuristic. Returns the linked entries (including entries with no
// payment at all) and the payments that linked to nothing.
func linkPayments(
	payments []payment.Record,
	clearing []reconcile.ClearingEntry,
	fees FeeModel,
	rules *matching.RuleSet,
	dateTolerance time.Duration,
) (linked []linkedEntry, orphans []payment.Record) {
	linked = make([]linkedEntry, len(clearing))
	byReference := make(map[string][]int)
	for i, entry := range clearing {
		linked[i] = linkedEntry{entry: entry}
		if entry.Reference != "" {
			byReference[entry.Reference] = append(byReference[entry.Reference], i)
		}
	}

	taken := make(map[int]bool)
	for pi := range payments {
		p := payments[pi]

		idx := -1
		for _, candidate := range byReference[p.InvoiceNumber] {
			if !taken[candidate] {
				idx = candidate
				break
			}
		}

		heuristic := false
		if idx < 0 {
			idx = closestByAmountAndDate(linked, taken, p, dateTolerance)
			heuristic = idx >= 0
		}
		if idx < 0 {
			orphans = append(orphans, p)
			continue
		}

		taken[idx] = true
		linked[idx].payment = &payments[pi]
		linked[idx].heuristic = heuristic

		category := rules.Categorise(p.Method)
		linked[idx].entry.Method = category
		linked[idx].entry.ContactName = p.ContactName
		if category == matching.CategoryCard {
			linked[idx].feeCents = fees.FeeCents(p.AmountCents)
		}
	}

	// Entries with no payment still need a settlement group for deposit
	// matching; fall back to categorising their own reference text.
	for i := range linked {
		if linked[i].entry.Method == "" {
			linked[i].entry.Method = rules.Categorise(linked[i].entry.Reference)
		}
	}
	return linked, orphans
}

// closestByAmountAndDate finds the unclaimed clearing entry equal in amount
// to the payment and nearest in date within the tolerance, or -1.
func closestByAmountAndDate(linked []linkedEntry, taken map[int]bool, p payment.Record, tolerance time.Duration) int {
	best := -1
	var bestDelta time.Duration
	for i := range linked {
		if taken[i] || linked[i].entry.AmountCents != p.AmountCents {
			continue
		}
		delta := linked[i].entry.Date.Sub(p.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta > tolerance {
			continue
		}
		if best < 0 || delta < bestDelta {
			best = i
			bestDelta = delta
		}
	}
	return best
}
