package prefs

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InMemoryPreferenceRepository implements PreferenceRepository using
// in-memory storage.
type InMemoryPreferenceRepository struct {
	mu          sync.RWMutex
	preferences map[uuid.UUID]map[string]string
}

// NewInMemoryPreferenceRepository creates a new in-memory preference
// repository.
func NewInMemoryPreferenceRepository() *InMemoryPreferenceRepository {
	return &InMemoryPreferenceRepository{
		preferences: make(map[uuid.UUID]map[string]string),
	}
}

// SetUserPreference stores one preference value.
func (r *InMemoryPreferenceRepository) SetUserPreference(ctx context.Context, identityID uuid.UUID, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.preferences[identityID] == nil {
		r.preferences[identityID] = make(map[string]string)
	}
	r.preferences[identityID][key] = value
	return nil
}

// GetUserPreference returns one preference value.
func (r *InMemoryPreferenceRepository) GetUserPreference(ctx context.Context, identityID uuid.UUID, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok := r.preferences[identityID][key]
	if !ok {
		return "", ErrPreferenceNotFound
	}
	return value, nil
}

// GetAllUserPreferences returns all preferences for a user.
func (r *InMemoryPreferenceRepository) GetAllUserPreferences(ctx context.Context, identityID uuid.UUID) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]string, len(r.preferences[identityID]))
	for key, value := range r.preferences[identityID] {
		result[key] = value
	}
	return result, nil
}

// DeleteUserPreference removes one preference, or returns
// ErrPreferenceNotFound when the key was never set.
func (r *InMemoryPreferenceRepository) DeleteUserPreference(ctx context.Context, identityID uuid.UUID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.preferences[identityID][key]; !ok {
		return ErrPreferenceNotFound
	}
	delete(r.preferences[identityID], key)
	return nil
}
