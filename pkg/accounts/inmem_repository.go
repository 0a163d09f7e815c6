package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryAccountRepository implements AccountRepository using in-memory
// storage. Uniqueness is enforced under a single lock so races surface as the
// same conflict errors the SQL implementation produces.
type InMemoryAccountRepository struct {
	mu             sync.RWMutex
	identities     map[uuid.UUID]Identity
	byUsername     map[string]uuid.UUID
	byEmail        map[string]uuid.UUID
	profiles       map[uuid.UUID]Profile // keyed by identity ID
	registrations  map[uuid.UUID]Registration
	byActivation   map[string]uuid.UUID
	passwordResets map[uuid.UUID]PasswordReset
	byResetToken   map[string]uuid.UUID
}

// NewInMemoryAccountRepository creates a new in-memory account repository.
func NewInMemoryAccountRepository() *InMemoryAccountRepository {
	return &InMemoryAccountRepository{
		identities:     make(map[uuid.UUID]Identity),
		byUsername:     make(map[string]uuid.UUID),
		byEmail:        make(map[string]uuid.UUID),
		profiles:       make(map[uuid.UUID]Profile),
		registrations:  make(map[uuid.UUID]Registration),
		byActivation:   make(map[string]uuid.UUID),
		passwordResets: make(map[uuid.UUID]PasswordReset),
		byResetToken:   make(map[string]uuid.UUID),
	}
}

// GetIdentityByID gets an identity by ID.
func (r *InMemoryAccountRepository) GetIdentityByID(ctx context.Context, identityID uuid.UUID) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.identities[identityID]
	if !ok {
		return Identity{}, ErrUserNotFound
	}
	return identity, nil
}

// GetIdentityByUsername gets an identity by username.
func (r *InMemoryAccountRepository) GetIdentityByUsername(ctx context.Context, username string) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return Identity{}, ErrUserNotFound
	}
	return r.identities[id], nil
}

// GetIdentityByEmail gets an identity by email.
func (r *InMemoryAccountRepository) GetIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return Identity{}, ErrUserNotFound
	}
	return r.identities[id], nil
}

// FindIdentitiesByUsernames returns the identities whose usernames appear in
// the input, in input order. Unknown usernames are skipped.
func (r *InMemoryAccountRepository) FindIdentitiesByUsernames(ctx context.Context, usernames []string) ([]Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Identity
	for _, username := range usernames {
		if id, ok := r.byUsername[username]; ok {
			result = append(result, r.identities[id])
		}
	}
	return result, nil
}

// UsernameExists reports whether any account holds the username.
func (r *InMemoryAccountRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byUsername[username]
	return ok, nil
}

// EmailExists reports whether any account holds the email.
func (r *InMemoryAccountRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byEmail[email]
	return ok, nil
}

// SaveIdentity updates an existing identity. The username is immutable;
// an email change to a taken address fails with ErrUserAlreadyExists.
func (r *InMemoryAccountRepository) SaveIdentity(ctx context.Context, identity Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.identities[identity.ID]
	if !ok {
		return ErrUserNotFound
	}
	if identity.Email != existing.Email {
		if _, taken := r.byEmail[identity.Email]; taken {
			return ErrUserAlreadyExists
		}
		delete(r.byEmail, existing.Email)
		r.byEmail[identity.Email] = identity.ID
	}
	identity.Username = existing.Username
	r.identities[identity.ID] = identity
	return nil
}

// SetIdentityActive flips the active flag on an identity.
func (r *InMemoryAccountRepository) SetIdentityActive(ctx context.Context, identityID uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.identities[identityID]
	if !ok {
		return ErrUserNotFound
	}
	identity.Active = active
	r.identities[identityID] = identity
	return nil
}

// GetOrCreateProfile returns the profile paired with an identity, creating an
// empty one if absent.
func (r *InMemoryAccountRepository) GetOrCreateProfile(ctx context.Context, identityID uuid.UUID) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.identities[identityID]; !ok {
		return Profile{}, ErrUserNotFound
	}
	if profile, ok := r.profiles[identityID]; ok {
		return profile, nil
	}
	profile := Profile{
		ID:         uuid.New(),
		IdentityID: identityID,
		Meta:       make(map[string]any),
	}
	r.profiles[identityID] = profile
	return profile, nil
}

// SaveProfile updates a profile.
func (r *InMemoryAccountRepository) SaveProfile(ctx context.Context, profile Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.identities[profile.IdentityID]; !ok {
		return ErrUserNotFound
	}
	r.profiles[profile.IdentityID] = profile
	return nil
}

// CreateAccount creates identity, registration and profile together. The
// whole operation happens under one lock, so it either fully commits or
// leaves no trace.
func (r *InMemoryAccountRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (Identity, Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byUsername[params.Username]; taken {
		return Identity{}, Registration{}, ErrUserAlreadyExists
	}
	if _, taken := r.byEmail[params.Email]; taken {
		return Identity{}, Registration{}, ErrUserAlreadyExists
	}

	now := time.Now().UTC()
	identity := Identity{
		ID:           uuid.New(),
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		Active:       false,
		DateJoined:   now,
	}
	registration := Registration{
		ID:            uuid.New(),
		IdentityID:    identity.ID,
		ActivationKey: params.ActivationKey,
		CreatedAt:     now,
	}
	profile := Profile{
		ID:         uuid.New(),
		IdentityID: identity.ID,
		Meta:       make(map[string]any),
	}

	r.identities[identity.ID] = identity
	r.byUsername[identity.Username] = identity.ID
	r.byEmail[identity.Email] = identity.ID
	r.registrations[registration.ID] = registration
	r.byActivation[registration.ActivationKey] = registration.ID
	r.profiles[identity.ID] = profile

	return identity, registration, nil
}

// GetRegistrationByKey looks up a registration by its activation key.
func (r *InMemoryAccountRepository) GetRegistrationByKey(ctx context.Context, activationKey string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byActivation[activationKey]
	if !ok {
		return Registration{}, ErrRegistrationNotFound
	}
	return r.registrations[id], nil
}

// MarkRegistrationConsumed marks a registration token as spent.
func (r *InMemoryAccountRepository) MarkRegistrationConsumed(ctx context.Context, registrationID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	registration, ok := r.registrations[registrationID]
	if !ok {
		return ErrRegistrationNotFound
	}
	now := time.Now().UTC()
	registration.ConsumedAt = &now
	r.registrations[registrationID] = registration
	return nil
}

// CreatePasswordReset stores a new password reset token.
func (r *InMemoryAccountRepository) CreatePasswordReset(ctx context.Context, reset PasswordReset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.passwordResets[reset.ID] = reset
	r.byResetToken[reset.Token] = reset.ID
	return nil
}

// GetPasswordResetByToken looks up a password reset by token.
func (r *InMemoryAccountRepository) GetPasswordResetByToken(ctx context.Context, token string) (PasswordReset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byResetToken[token]
	if !ok {
		return PasswordReset{}, ErrPasswordResetNotFound
	}
	return r.passwordResets[id], nil
}

// MarkPasswordResetUsed marks a password reset token as spent.
func (r *InMemoryAccountRepository) MarkPasswordResetUsed(ctx context.Context, resetID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reset, ok := r.passwordResets[resetID]
	if !ok {
		return ErrPasswordResetNotFound
	}
	now := time.Now().UTC()
	reset.UsedAt = &now
	r.passwordResets[resetID] = reset
	return nil
}

// SeedIdentity adds an identity directly (for testing/initialization).
func (r *InMemoryAccountRepository) SeedIdentity(identity Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	r.identities[identity.ID] = identity
	r.byUsername[identity.Username] = identity.ID
	r.byEmail[identity.Email] = identity.ID
}
