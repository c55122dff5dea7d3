package ledgerapi

import (
	"fmt"
	"strings"
)

// AuthError indicates the token exchange or an authenticated call failed at
// the transport/credential level. Fatal for the whole invocation; the
// client's own single refresh-and-retry is the only retry applied.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("ledger auth failed (status %d): %s", e.StatusCode, e.Message)
}

// NotFoundError indicates an expected invoice or payment no longer resolves
// remotely. Callers treat this as a stage-stopping fault: the worklist
// snapshot is stale and continuing risks inconsistent partial application.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// Is implements the errors.Is interface for NotFoundError
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	if t.Resource == "" && t.ID == "" {
		return true
	}
	return e.Resource == t.Resource && e.ID == t.ID
}

// ItemValidationError is one item's failure inside a rejected batch request,
// keyed by the remote id and translated to the human invoice number when the
// caller supplied one.
type ItemValidationError struct {
	InvoiceID     string
	InvoiceNumber string
	Message       string
}

// ValidationError is a 400-class rejection. When the request carried multiple
// items and the response body had per-item structure, Items holds one entry
// per failed item; otherwise Items is empty and Message covers the whole
// request.
type ValidationError struct {
	StatusCode int
	Message    string
	Items      []ItemValidationError
}

func (e *ValidationError) Error() string {
	if len(e.Items) == 0 {
		return fmt.Sprintf("ledger validation failed (status %d): %s", e.StatusCode, e.Message)
	}
	parts := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		label := item.InvoiceNumber
		if label == "" {
			label = item.InvoiceID
		}
		parts = append(parts, fmt.Sprintf("%s: %s", label, item.Message))
	}
	return fmt.Sprintf("ledger validation failed (status %d): %s", e.StatusCode, strings.Join(parts, "; "))
}
