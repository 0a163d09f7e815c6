package accounts

import (
	"context"

	"github.com/google/uuid"
)

// CreateAccountParams bundles everything persisted atomically when a new
// account is created: the inactive identity, its registration token and an
// empty profile.
type CreateAccountParams struct {
	Username      string
	Email         string
	PasswordHash  []byte
	ActivationKey string
}

// AccountRepository is the storage boundary for identities, profiles,
// registration tokens and password reset tokens.
//
// Implementations must enforce username and email uniqueness across active
// and inactive accounts, converting races into ErrUserAlreadyExists at save
// time. CreateAccount is all-or-nothing: identity, registration and profile
// are created together or not at all.
type AccountRepository interface {
	// Identity operations
	GetIdentityByID(ctx context.Context, identityID uuid.UUID) (Identity, error)
	GetIdentityByUsername(ctx context.Context, username string) (Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (Identity, error)
	FindIdentitiesByUsernames(ctx context.Context, usernames []string) ([]Identity, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	SaveIdentity(ctx context.Context, identity Identity) error
	SetIdentityActive(ctx context.Context, identityID uuid.UUID, active bool) error

	// Profile operations; profiles are created lazily, always 1:1 with an identity
	GetOrCreateProfile(ctx context.Context, identityID uuid.UUID) (Profile, error)
	SaveProfile(ctx context.Context, profile Profile) error

	// Atomic account creation
	CreateAccount(ctx context.Context, params CreateAccountParams) (Identity, Registration, error)

	// Registration token operations
	GetRegistrationByKey(ctx context.Context, activationKey string) (Registration, error)
	MarkRegistrationConsumed(ctx context.Context, registrationID uuid.UUID) error

	// Password reset token operations
	CreatePasswordReset(ctx context.Context, reset PasswordReset) error
	GetPasswordResetByToken(ctx context.Context, token string) (PasswordReset, error)
	MarkPasswordResetUsed(ctx context.Context, resetID uuid.UUID) error
}
