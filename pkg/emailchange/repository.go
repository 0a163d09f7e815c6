package emailchange

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the storage boundary for pending email changes. A user has at
// most one outstanding request; a new request replaces the previous one.
type Repository interface {
	Upsert(ctx context.Context, change PendingEmailChange) error
	GetByConfirmationKey(ctx context.Context, key string) (PendingEmailChange, error)
	MarkConfirmed(ctx context.Context, changeID uuid.UUID) error
}
