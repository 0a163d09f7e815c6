package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestAccount(t *testing.T, repo *InMemoryAccountRepository, username, email string) Identity {
	t.Helper()
	identity, _, err := repo.CreateAccount(context.Background(), CreateAccountParams{
		Username:      username,
		Email:         email,
		PasswordHash:  []byte("hash"),
		ActivationKey: "key-" + username,
	})
	require.NoError(t, err)
	return identity
}

func TestInMemoryCreateAccountUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryAccountRepository()
	createTestAccount(t, repo, "ted", "ted@example.com")

	_, _, err := repo.CreateAccount(ctx, CreateAccountParams{Username: "ted", Email: "other@example.com"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	_, _, err = repo.CreateAccount(ctx, CreateAccountParams{Username: "other", Email: "ted@example.com"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	// A failed creation leaves no trace.
	_, err = repo.GetIdentityByUsername(ctx, "other")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestInMemorySaveIdentity(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryAccountRepository()
	ted := createTestAccount(t, repo, "ted", "ted@example.com")
	createTestAccount(t, repo, "fred", "fred@example.com")

	// Email changes to a taken address lose the uniqueness race.
	ted.Email = "fred@example.com"
	assert.ErrorIs(t, repo.SaveIdentity(ctx, ted), ErrUserAlreadyExists)

	// The username is immutable.
	ted.Email = "ted2@example.com"
	ted.Username = "newted"
	require.NoError(t, repo.SaveIdentity(ctx, ted))
	saved, err := repo.GetIdentityByUsername(ctx, "ted")
	require.NoError(t, err)
	assert.Equal(t, "ted2@example.com", saved.Email)
	_, err = repo.GetIdentityByUsername(ctx, "newted")
	assert.ErrorIs(t, err, ErrUserNotFound)

	// The old email is released.
	exists, err := repo.EmailExists(ctx, "ted@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInMemoryFindIdentitiesByUsernames(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryAccountRepository()
	createTestAccount(t, repo, "ted", "ted@example.com")
	createTestAccount(t, repo, "fred", "fred@example.com")

	found, err := repo.FindIdentitiesByUsernames(ctx, []string{"fred", "ghost", "ted"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "fred", found[0].Username)
	assert.Equal(t, "ted", found[1].Username)
}

func TestInMemoryRegistrations(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryAccountRepository()
	createTestAccount(t, repo, "ted", "ted@example.com")

	registration, err := repo.GetRegistrationByKey(ctx, "key-ted")
	require.NoError(t, err)
	assert.Nil(t, registration.ConsumedAt)

	require.NoError(t, repo.MarkRegistrationConsumed(ctx, registration.ID))
	registration, err = repo.GetRegistrationByKey(ctx, "key-ted")
	require.NoError(t, err)
	assert.NotNil(t, registration.ConsumedAt)

	_, err = repo.GetRegistrationByKey(ctx, "missing")
	assert.ErrorIs(t, err, ErrRegistrationNotFound)
}

func TestInMemoryGetOrCreateProfile(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryAccountRepository()
	ted := createTestAccount(t, repo, "ted", "ted@example.com")

	profile, err := repo.GetOrCreateProfile(ctx, ted.ID)
	require.NoError(t, err)
	assert.Equal(t, ted.ID, profile.IdentityID)

	profile.Name = "Ted Tester"
	require.NoError(t, repo.SaveProfile(ctx, profile))

	again, err := repo.GetOrCreateProfile(ctx, ted.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ted Tester", again.Name)
}
