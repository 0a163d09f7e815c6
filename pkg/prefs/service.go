package prefs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// KeyAccountPrivacy controls whether an account's shared fields are visible
// to other users.
const KeyAccountPrivacy = "account_privacy"

// Allowed values for the account_privacy preference.
const (
	PrivacyAllUsers = "all_users"
	PrivacyPrivate  = "private"
)

// ValueValidator checks one proposed preference value.
type ValueValidator func(value string) error

// PreferenceService validates and stores per-user preferences.
type PreferenceService struct {
	repo       PreferenceRepository
	validators map[string]ValueValidator
}

// NewPreferenceService creates a preference service with the built-in
// validators registered.
func NewPreferenceService(repo PreferenceRepository) *PreferenceService {
	s := &PreferenceService{
		repo:       repo,
		validators: make(map[string]ValueValidator),
	}
	s.RegisterValidator(KeyAccountPrivacy, validateAccountPrivacy)
	return s
}

// RegisterValidator attaches a validator to a preference key. Keys without a
// validator accept any value.
func (s *PreferenceService) RegisterValidator(key string, validator ValueValidator) {
	s.validators[key] = validator
}

// UpdateUserPreferences validates all proposed values and, only when every
// one passes, stores them for the target user. Validation failures are
// aggregated into a single ValidationError.
func (s *PreferenceService) UpdateUserPreferences(ctx context.Context, actorUsername string, updates map[string]string, targetID uuid.UUID) error {
	preferenceErrors := make(map[string]PreferenceError)
	for key, value := range updates {
		validator, ok := s.validators[key]
		if !ok {
			continue
		}
		if err := validator(value); err != nil {
			preferenceErrors[key] = PreferenceError{
				DeveloperMessage: fmt.Sprintf("Value %q not valid for preference %q: %v", value, key, err),
				UserMessage:      err.Error(),
			}
		}
	}
	if len(preferenceErrors) > 0 {
		return &ValidationError{PreferenceErrors: preferenceErrors}
	}

	for key, value := range updates {
		if err := s.repo.SetUserPreference(ctx, targetID, key, value); err != nil {
			slog.Error("Failed to store preference", "key", key, "target", targetID, "err", err)
			return fmt.Errorf("failed to store preference %q: %w", key, err)
		}
		slog.Info("Preference updated", "key", key, "target", targetID, "actor", actorUsername)
	}
	return nil
}

// GetUserPreference returns the stored value for one preference key, or
// ErrPreferenceNotFound.
func (s *PreferenceService) GetUserPreference(ctx context.Context, targetID uuid.UUID, key string) (string, error) {
	return s.repo.GetUserPreference(ctx, targetID, key)
}

// GetAllUserPreferences returns every stored preference for the target user.
// A user with no preferences yields an empty map.
func (s *PreferenceService) GetAllUserPreferences(ctx context.Context, targetID uuid.UUID) (map[string]string, error) {
	return s.repo.GetAllUserPreferences(ctx, targetID)
}

// DeleteUserPreference removes one stored preference, or returns
// ErrPreferenceNotFound when the key was never set.
func (s *PreferenceService) DeleteUserPreference(ctx context.Context, actorUsername string, targetID uuid.UUID, key string) error {
	if err := s.repo.DeleteUserPreference(ctx, targetID, key); err != nil {
		return err
	}
	slog.Info("Preference deleted", "key", key, "target", targetID, "actor", actorUsername)
	return nil
}

func validateAccountPrivacy(value string) error {
	switch value {
	case PrivacyAllUsers, PrivacyPrivate:
		return nil
	}
	return fmt.Errorf("account privacy must be %q or %q", PrivacyAllUsers, PrivacyPrivate)
}
