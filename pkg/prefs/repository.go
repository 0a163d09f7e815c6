package prefs

import (
	"context"

	"github.com/google/uuid"
)

// PreferenceRepository is the storage boundary for per-user preference
// key/value pairs.
type PreferenceRepository interface {
	SetUserPreference(ctx context.Context, identityID uuid.UUID, key, value string) error
	GetUserPreference(ctx context.Context, identityID uuid.UUID, key string) (string, error)
	GetAllUserPreferences(ctx context.Context, identityID uuid.UUID) (map[string]string, error)
	DeleteUserPreference(ctx context.Context, identityID uuid.UUID, key string) error
}
