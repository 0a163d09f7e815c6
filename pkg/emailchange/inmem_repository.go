package emailchange

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository using in-memory storage.
type InMemoryRepository struct {
	mu         sync.RWMutex
	byIdentity map[uuid.UUID]PendingEmailChange
	byKey      map[string]uuid.UUID // confirmation key -> identity ID
}

// NewInMemoryRepository creates a new in-memory pending email change
// repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byIdentity: make(map[uuid.UUID]PendingEmailChange),
		byKey:      make(map[string]uuid.UUID),
	}
}

// Upsert stores a pending change, replacing any outstanding request for the
// same identity.
func (r *InMemoryRepository) Upsert(ctx context.Context, change PendingEmailChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.byIdentity[change.IdentityID]; ok {
		delete(r.byKey, previous.ConfirmationKey)
	}
	r.byIdentity[change.IdentityID] = change
	r.byKey[change.ConfirmationKey] = change.IdentityID
	return nil
}

// GetByConfirmationKey looks up a pending change by its confirmation key.
func (r *InMemoryRepository) GetByConfirmationKey(ctx context.Context, key string) (PendingEmailChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identityID, ok := r.byKey[key]
	if !ok {
		return PendingEmailChange{}, ErrChangeRequestNotFound
	}
	return r.byIdentity[identityID], nil
}

// MarkConfirmed marks a pending change as confirmed.
func (r *InMemoryRepository) MarkConfirmed(ctx context.Context, changeID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for identityID, change := range r.byIdentity {
		if change.ID == changeID {
			now := time.Now().UTC()
			change.ConfirmedAt = &now
			r.byIdentity[identityID] = change
			return nil
		}
	}
	return ErrChangeRequestNotFound
}
