// Package matching provides the amount-matching primitives used by the
// three-way reconciler: an exact subset-sum search over integer cents and a
// data-driven rule table for categorising free-text references.
package matching

import "sort"

// FindExactSubset returns the indices of a subset of amounts summing exactly
// to target, or nil when no subset is found. Amounts and target are integer
// cents; callers must never hand in floating-point dollars.
//
// The search is a greedy pass over the amounts in descending order: any
// candidate that fits the remaining target is taken. This is deliberately
// not a complete subset-sum solver (no backtracking). It is correct whenever
// at most one exact combination exists among the candidates, which holds for
// clinical payment amounts drawn from a small fee schedule, but it can miss
// solutions on adversarial inputs: once a large amount is taken, smaller
// amounts that only work without it are never reconsidered. Upgrade to a
// dynamic-programming search if the domain's amount diversity grows.
//
// A side effect of the descending order is the tie-break between a single
// exact candidate and a multi-entry combination: for amounts [4500, 3500,
// 8000] and target 8000 the single 8000 entry wins.
func FindExactSubset(amounts []int64, target int64) []int {
	if target <= 0 || len(amounts) == 0 {
		return nil
	}

	order := make([]int, len(amounts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return amounts[order[a]] > amounts[order[b]]
	})

	remaining := target
	var picked []int
	for _, idx := range order {
		amount := amounts[idx]
		if amount <= 0 || amount > remaining {
			continue
		}
		picked = append(picked, idx)
		remaining -= amount
		if remaining == 0 {
			break
		}
	}

	if remaining != 0 {
		return nil
	}

	sort.Ints(picked)
	return picked
}
