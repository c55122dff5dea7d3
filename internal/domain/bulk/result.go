// Package bulk defines the aggregate outcome of one bulk invoice operation.
// The accounting invariant is strict: every input invoice appears exactly
// once across succeeded, failed, skipped and remaining.
package bulk

import "github.com/practiceledger-recon/internal/domain/invoice"

// ItemResult is one invoice's outcome within a bulk operation. Messages carry
// the human invoice number, not the remote internal id, because that is what
// operators review.
type ItemResult struct {
	ID      string         `json:"id"`
	Number  string         `json:"number"`
	Action  invoice.Action `json:"action"`
	Success bool           `json:"success"`
	Skipped bool           `json:"skipped,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Counts breaks successful mutations down by kind for the caller.
type Counts struct {
	Deleted         int `json:"deleted"`
	Voided          int `json:"voided"`
	PaymentsRemoved int `json:"payments_removed"`
	Skipped         int `json:"skipped"`
}

// Result accumulates per-item outcomes plus the two control flags:
// StoppedEarly means an unrecoverable fault halted a stage; Partial means
// work was deferred under the per-invocation cap and RemainingNumbers is
// safe to feed into a follow-up call.
type Result struct {
	Items            []ItemResult `json:"items"`
	Attempted        int          `json:"attempted"`
	Succeeded        int          `json:"succeeded"`
	Failed           int          `json:"failed"`
	Skipped          int          `json:"skipped"`
	Counts           Counts       `json:"counts"`
	StoppedEarly     bool         `json:"stopped_early"`
	Partial          bool         `json:"partial"`
	RemainingNumbers []string     `json:"remaining_numbers,omitempty"`
}

// AddSuccess records a successful mutation for an invoice.
func (r *Result) AddSuccess(id, number string, action invoice.Action, message string) {
	r.Items = append(r.Items, ItemResult{ID: id, Number: number, Action: action, Success: true, Message: message})
	r.Attempted++
	r.Succeeded++
}

// AddFailure records a per-item failure. The message is the human-readable
// validation text surfaced back to the operator.
func (r *Result) AddFailure(id, number string, action invoice.Action, message string) {
	r.Items = append(r.Items, ItemResult{ID: id, Number: number, Action: action, Message: message})
	r.Attempted++
	r.Failed++
}

// AddSkip records an invoice that required no mutation.
func (r *Result) AddSkip(id, number string, message string) {
	r.Items = append(r.Items, ItemResult{ID: id, Number: number, Action: invoice.ActionSkip, Skipped: true, Message: message})
	r.Attempted++
	r.Skipped++
	r.Counts.Skipped++
}

// Defer marks an invoice as intentionally unprocessed under the item cap.
func (r *Result) Defer(number string) {
	r.Partial = true
	r.RemainingNumbers = append(r.RemainingNumbers, number)
}

// Errors returns the messages of all failed items.
func (r *Result) Errors() []string {
	var errs []string
	for _, item := range r.Items {
		if !item.Success && !item.Skipped {
			errs = append(errs, item.Message)
		}
	}
	return errs
}

// AccountedNumbers returns every invoice number the result accounts for,
// across processed, skipped and remaining work. Used to check the
// exactly-once accounting invariant.
func (r *Result) AccountedNumbers() []string {
	numbers := make([]string, 0, len(r.Items)+len(r.RemainingNumbers))
	for _, item := range r.Items {
		numbers = append(numbers, item.Number)
	}
	numbers = append(numbers, r.RemainingNumbers...)
	return numbers
}
