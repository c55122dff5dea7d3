package audit

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists audit records append-only. Records are never updated
// or deleted.
type Repository interface {
	Append(ctx context.Context, record *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	ListRecent(ctx context.Context, limit int) ([]*Record, error)
}

// ErrRecordNotFound indicates a missing audit record
type ErrRecordNotFound struct {
	ID uuid.UUID
}

func (e ErrRecordNotFound) Error() string {
	return "audit record not found: " + e.ID.String()
}

// Is implements the errors.Is interface for ErrRecordNotFound
func (e ErrRecordNotFound) Is(target error) bool {
	t, ok := target.(ErrRecordNotFound)
	if !ok {
		return false
	}
	if t.ID == uuid.Nil {
		return true
	}
	return e.ID == t.ID
}
