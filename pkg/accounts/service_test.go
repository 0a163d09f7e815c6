package accounts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-accounts/pkg/config"
	"github.com/tendant/simple-accounts/pkg/emailchange"
	"github.com/tendant/simple-accounts/pkg/events"
	"github.com/tendant/simple-accounts/pkg/notification"
	"github.com/tendant/simple-accounts/pkg/prefs"
)

type serviceFixture struct {
	repo      *InMemoryAccountRepository
	prefs     *prefs.PreferenceService
	events    *events.Recorder
	notifier  *notification.MockNotifier
	emailRepo *emailchange.InMemoryRepository
	cfg       config.Static
	service   *AccountService
}

func newTestNotificationManager(notifier *notification.MockNotifier) *notification.NotificationManager {
	nm := notification.NewNotificationManager()
	nm.RegisterNotifier(notification.EmailSystem, notifier)
	for _, noticeType := range []notification.NoticeType{
		notification.AccountActivationNotice,
		notification.PasswordResetNotice,
		notification.EmailChangeNotice,
	} {
		nm.RegisterNotification(noticeType, notification.EmailSystem, notification.NoticeTemplate{
			Subject: string(noticeType),
		})
	}
	return nm
}

func newTestService(t *testing.T, cfg config.Static) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		repo:      NewInMemoryAccountRepository(),
		events:    events.NewRecorder(),
		notifier:  notification.NewMockNotifier(),
		emailRepo: emailchange.NewInMemoryRepository(),
		cfg:       cfg,
	}
	nm := newTestNotificationManager(f.notifier)
	f.prefs = prefs.NewPreferenceService(prefs.NewInMemoryPreferenceRepository())

	emailChanger := emailchange.NewService(f.emailRepo, f.repo, nm,
		emailchange.WithEmailValidator(ValidateEmail),
	)

	f.service = NewAccountService(f.repo,
		WithPreferences(f.prefs),
		WithEmailChanger(emailChanger),
		WithEventEmitter(f.events),
		WithNotificationManager(nm),
		WithConfigProvider(cfg),
	)
	return f
}

func (f *serviceFixture) createActiveAccount(t *testing.T, username, email string) Identity {
	t.Helper()
	ctx := context.Background()

	key, err := f.service.CreateAccount(ctx, username, "correct horse", email)
	require.NoError(t, err)
	require.NoError(t, f.service.ActivateAccount(ctx, key))

	identity, err := f.repo.GetIdentityByUsername(ctx, username)
	require.NoError(t, err)
	return identity
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})

	key, err := f.service.CreateAccount(ctx, "ted", "correct horse", "ted@example.com")
	require.NoError(t, err)
	assert.Len(t, key, 32)

	identity, err := f.repo.GetIdentityByUsername(ctx, "ted")
	require.NoError(t, err)
	assert.False(t, identity.Active)
	assert.NotEmpty(t, identity.PasswordHash)

	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, notification.AccountActivationNotice, sent[0].NoticeType)
	assert.Equal(t, "ted@example.com", sent[0].Data.To)
	assert.Equal(t, key, sent[0].Data.Data["ActivationKey"])
}

func TestCreateAccountDisabled(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{config.KeyAllowPublicAccountCreation: "false"})

	_, err := f.service.CreateAccount(ctx, "ted", "correct horse", "ted@example.com")
	assert.ErrorIs(t, err, ErrAccountCreationNotAllowed)
}

func TestCreateAccountFailFast(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})

	// Both username and email are invalid; the username error wins because
	// creation validates fields in order and stops on the first failure.
	_, err := f.service.CreateAccount(ctx, "!", "pw123456", "not-an-email")
	var usernameErr *UsernameInvalidError
	assert.ErrorAs(t, err, &usernameErr)

	// Password equal to the username always fails, regardless of length and
	// format validity.
	_, err = f.service.CreateAccount(ctx, "teddy", "teddy", "ted@example.com")
	var passwordErr *PasswordInvalidError
	assert.ErrorAs(t, err, &passwordErr)
}

func TestCreateAccountConflicts(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})
	f.createActiveAccount(t, "ted", "ted@example.com")

	_, err := f.service.CreateAccount(ctx, "fred", "correct horse", "ted@example.com")
	var emailConflict *EmailAlreadyExistsError
	require.ErrorAs(t, err, &emailConflict)
	assert.Equal(t, `An account with the E-mail "ted@example.com" already exists.`, emailConflict.Message)

	_, err = f.service.CreateAccount(ctx, "ted", "correct horse", "fred@example.com")
	var usernameConflict *UsernameAlreadyExistsError
	require.ErrorAs(t, err, &usernameConflict)
	assert.Equal(t, `An account with the Public Username "ted" already exists.`, usernameConflict.Message)
}

func TestCheckAccountExists(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})

	conflicts, err := f.service.CheckAccountExists(ctx, "ted", "ted@example.com")
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	f.createActiveAccount(t, "ted", "ted@example.com")

	// Email conflicts are listed before username conflicts.
	conflicts, err = f.service.CheckAccountExists(ctx, "ted", "ted@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "username"}, conflicts)

	conflicts, err = f.service.CheckAccountExists(ctx, "ted", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"username"}, conflicts)
}

func TestActivateAccount(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})

	key, err := f.service.CreateAccount(ctx, "ted", "correct horse", "ted@example.com")
	require.NoError(t, err)

	// Unknown key changes nothing.
	err = f.service.ActivateAccount(ctx, "no-such-key")
	assert.ErrorIs(t, err, ErrUserNotAuthorized)
	identity, err := f.repo.GetIdentityByUsername(ctx, "ted")
	require.NoError(t, err)
	assert.False(t, identity.Active)

	require.NoError(t, f.service.ActivateAccount(ctx, key))
	identity, err = f.repo.GetIdentityByUsername(ctx, "ted")
	require.NoError(t, err)
	assert.True(t, identity.Active)

	// The key is single use.
	err = f.service.ActivateAccount(ctx, key)
	assert.ErrorIs(t, err, ErrUserNotAuthorized)
}

func TestGetAccountSettings(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})
	ted := f.createActiveAccount(t, "ted", "ted@example.com")
	f.createActiveAccount(t, "fred", "fred@example.com")

	// Owners get the admin-field superset.
	views, err := f.service.GetAccountSettings(ctx, ted, nil, nil, "")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "ted", views[0][FieldUsername])
	assert.Equal(t, "ted@example.com", views[0][FieldEmail])

	// Another non-staff user gets shared fields only.
	fred, err := f.repo.GetIdentityByUsername(ctx, "fred")
	require.NoError(t, err)
	views, err = f.service.GetAccountSettings(ctx, fred, []string{"ted"}, nil, "")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Contains(t, views[0], FieldUsername)
	assert.Contains(t, views[0], FieldBio)
	assert.NotContains(t, views[0], FieldEmail)
	assert.NotContains(t, views[0], FieldDateJoined)

	// Staff get full access to anyone.
	staff := Identity{Username: "admin", IsStaff: true}
	views, err = f.service.GetAccountSettings(ctx, staff, []string{"ted"}, nil, "")
	require.NoError(t, err)
	assert.Contains(t, views[0], FieldEmail)

	// The shared view restricts even the owner.
	views, err = f.service.GetAccountSettings(ctx, ted, []string{"ted"}, nil, ViewShared)
	require.NoError(t, err)
	assert.NotContains(t, views[0], FieldEmail)

	// Views follow input order; unknown usernames are skipped.
	views, err = f.service.GetAccountSettings(ctx, staff, []string{"fred", "ghost", "ted"}, nil, "")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "fred", views[0][FieldUsername])
	assert.Equal(t, "ted", views[1][FieldUsername])

	// Nothing resolving at all is NotFound.
	_, err = f.service.GetAccountSettings(ctx, staff, []string{"ghost"}, nil, "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateAccountSettingsAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})
	ted := f.createActiveAccount(t, "ted", "ted@example.com")

	err := f.service.UpdateAccountSettings(ctx, ted, map[string]any{"name": "x"}, "fred")
	assert.ErrorIs(t, err, ErrUserNotAuthorized)

	ghost := Identity{Username: "ghost"}
	err = f.service.UpdateAccountSettings(ctx, ghost, map[string]any{"name": "x"}, "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateAccountSettingsReadOnlyFields(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})
	ted := f.createActiveAccount(t, "ted", "ted@example.com")

	err := f.service.UpdateAccountSettings(ctx, ted, map[string]any{
		"username":    "newted",
		"date_joined": "2020-01-01",
		"name":        "Ted Tester",
	}, "")

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.FieldErrors, "username")
	assert.Contains(t, validationErr.FieldErrors, "date_joined")
	assert.Equal(t, "This field is not editable via this API", validationErr.FieldErrors["username"].DeveloperMessage)
	assert.Equal(t, "The 'username' field cannot be edited.", validationErr.FieldErrors["username"].UserMessage)

	// Validation failures reject the whole update.
	profile, err := f.repo.GetOrCreateProfile(ctx, ted.ID)
	require.NoError(t, err)
	assert.Empty(t, profile.Name)
}

func TestUpdateAccountSettingsAggregatesFieldErrors(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})
	ted := f.createActiveAccount(t, "ted", "ted@example.com")

	err := f.service.UpdateAccountSettings(ctx, ted, map[string]any{
		"name":                   123,
		"bio":                    strings.Repeat("a", BioMaxLength+1),
		"language_proficiencies": []any{"en", "en"},
	}, "")

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Len(t, validationErr.FieldErrors, 3)
	assert.Contains(t, validationErr.FieldErrors, "name")
	assert.Contains(t, validationErr.FieldErrors, "bio")
	assert.Contains(t, validationErr.FieldErrors, "language_proficiencies")
}

func TestUpdateAccountSettingsPersistsProfileFields(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})
	ted := f.createActiveAccount(t, "ted", "ted@example.com")

	err := f.service.UpdateAccountSettings(ctx, ted, map[string]any{
		"name":                   "Ted Tester",
		"bio":                    "hello",
		"language_proficiencies": []any{"en", "fr"},
	}, "")
	require.NoError(t, err)

	profile, err := f.repo.GetOrCreateProfile(ctx, ted.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ted Tester", profile.Name)
	assert.Equal(t, "hello", profile.Bio)
	assert.Equal(t, []string{"en", "fr"}, profile.LanguageProficiencies)

	// Setting the first name records no history entry.
	assert.Empty(t, profile.OldNames())

	// A language change emits an event carrying old and new values.
	recorded := f.events.Events()
	require.Len(t, recorded, 1)
	assert.Equal(t, "ted", recorded[0].Username)
	assert.Equal(t, FieldLanguageProficiencies, recorded[0].Setting)
	assert.Equal(t, []string{"en", "fr"}, recorded[0].New)
}

func TestUpdateAccountSettingsNameHistory(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})
	ted := f.createActiveAccount(t, "ted", "ted@example.com")

	require.NoError(t, f.service.UpdateAccountSettings(ctx, ted, map[string]any{"name": "First Name"}, ""))
	require.NoError(t, f.service.UpdateAccountSettings(ctx, ted, map[string]any{"name": "Second Name"}, ""))

	profile, err := f.repo.GetOrCreateProfile(ctx, ted.ID)
	require.NoError(t, err)
	assert.Equal(t, "Second Name", profile.Name)

	history := profile.OldNames()
	require.Len(t, history, 1)
	assert.Equal(t, "First Name", history[0].OldName)
	assert.Equal(t, "Name change requested through account API by ted", history[0].ChangedBy)
}

func TestUpdateAccountSettingsAccountPrivacy(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})
	ted := f.createActiveAccount(t, "ted", "ted@example.com")

	require.NoError(t, f.service.UpdateAccountSettings(ctx, ted, map[string]any{
		"account_privacy": prefs.PrivacyPrivate,
	}, ""))

	stored, err := f.prefs.GetUserPreference(ctx, ted.ID, prefs.KeyAccountPrivacy)
	require.NoError(t, err)
	assert.Equal(t, prefs.PrivacyPrivate, stored)
}

func TestUpdateAccountSettingsPrivacyRejectionAfterSave(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})
	ted := f.createActiveAccount(t, "ted", "ted@example.com")

	err := f.service.UpdateAccountSettings(ctx, ted, map[string]any{
		"name":            "Ted Tester",
		"account_privacy": "bogus",
	}, "")

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.FieldErrors, prefs.KeyAccountPrivacy)

	// The profile save has already committed by the time the preference is
	// rejected. Documented partial-failure behavior.
	profile, err := f.repo.GetOrCreateProfile(ctx, ted.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ted Tester", profile.Name)
}

func TestUpdateAccountSettingsEmailChangeRequest(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})
	ted := f.createActiveAccount(t, "ted", "ted@example.com")
	before := len(f.notifier.Sent())

	err := f.service.UpdateAccountSettings(ctx, ted, map[string]any{
		"email": "new@example.com",
	}, "")
	require.NoError(t, err)

	// The stored address does not change until the link is confirmed.
	identity, err := f.repo.GetIdentityByUsername(ctx, "ted")
	require.NoError(t, err)
	assert.Equal(t, "ted@example.com", identity.Email)

	sent := f.notifier.Sent()
	require.Len(t, sent, before+1)
	notice := sent[len(sent)-1]
	assert.Equal(t, notification.EmailChangeNotice, notice.NoticeType)
	assert.Equal(t, "new@example.com", notice.Data.To)
	assert.NotEmpty(t, notice.Data.Data["ConfirmationLink"])
}

func TestUpdateAccountSettingsEmailValidationErrors(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})
	ted := f.createActiveAccount(t, "ted", "ted@example.com")
	f.createActiveAccount(t, "fred", "fred@example.com")

	tests := []struct {
		name        string
		email       any
		userMessage string
	}{
		{name: "same email", email: "ted@example.com", userMessage: "Old email is the same as the new email."},
		{name: "taken email", email: "fred@example.com"},
		{name: "malformed email", email: "nope"},
		{name: "wrong type", email: 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.service.UpdateAccountSettings(ctx, ted, map[string]any{"email": tt.email}, "")
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			require.Contains(t, validationErr.FieldErrors, "email")
			if tt.userMessage != "" {
				assert.Equal(t, tt.userMessage, validationErr.FieldErrors["email"].UserMessage)
			}
		})
	}
}

func TestUpdateAccountSettingsEmailChangesDisabled(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{config.KeyAllowEmailAddressChange: "false"})
	ted := f.createActiveAccount(t, "ted", "ted@example.com")

	err := f.service.UpdateAccountSettings(ctx, ted, map[string]any{
		"name":  "Ted Tester",
		"email": "new@example.com",
	}, "")

	var updateErr *UpdateError
	require.ErrorAs(t, err, &updateErr)
	assert.Equal(t, StepEmailChange, updateErr.FailedStep)
	assert.Equal(t, "Email address changes have been disabled by the site operators.", updateErr.UserMessage)

	// Earlier steps remain committed.
	assert.Contains(t, updateErr.CompletedSteps, StepSaveAccount)
	profile, err := f.repo.GetOrCreateProfile(ctx, ted.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ted Tester", profile.Name)
}

func TestConfirmEmailChange(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})
	ted := f.createActiveAccount(t, "ted", "ted@example.com")

	require.NoError(t, f.service.UpdateAccountSettings(ctx, ted, map[string]any{
		"email": "new@example.com",
	}, ""))

	sent := f.notifier.Sent()
	link := sent[len(sent)-1].Data.Data["ConfirmationLink"]
	key := link[strings.LastIndex(link, "/")+1:]
	require.NotEmpty(t, key)

	require.NoError(t, f.service.ConfirmEmailChange(ctx, key))

	identity, err := f.repo.GetIdentityByUsername(ctx, "ted")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", identity.Email)

	// Confirmation keys are single use.
	err = f.service.ConfirmEmailChange(ctx, key)
	assert.ErrorIs(t, err, ErrUserNotAuthorized)
}

func TestRequestPasswordChange(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})

	err := f.service.RequestPasswordChange(ctx, "ghost@example.com", "example.com", true)
	assert.ErrorIs(t, err, ErrUserNotFound)

	// Inactive accounts cannot request a reset.
	_, err = f.service.CreateAccount(ctx, "fred", "correct horse", "fred@example.com")
	require.NoError(t, err)
	err = f.service.RequestPasswordChange(ctx, "fred@example.com", "example.com", true)
	assert.ErrorIs(t, err, ErrUserNotFound)

	f.createActiveAccount(t, "ted", "ted@example.com")
	before := len(f.notifier.Sent())
	require.NoError(t, f.service.RequestPasswordChange(ctx, "ted@example.com", "example.com", true))

	sent := f.notifier.Sent()
	require.Len(t, sent, before+1)
	notice := sent[len(sent)-1]
	assert.Equal(t, notification.PasswordResetNotice, notice.NoticeType)
	assert.True(t, strings.HasPrefix(notice.Data.Data["ResetLink"], "https://example.com/password_reset_confirm/"))
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})
	ted := f.createActiveAccount(t, "ted", "ted@example.com")

	require.NoError(t, f.service.RequestPasswordChange(ctx, "ted@example.com", "example.com", false))
	sent := f.notifier.Sent()
	link := sent[len(sent)-1].Data.Data["ResetLink"]
	token := link[strings.LastIndex(link, "/")+1:]

	// The new password is validated against the username rule.
	err := f.service.ResetPassword(ctx, token, "ted")
	var passwordErr *PasswordInvalidError
	assert.ErrorAs(t, err, &passwordErr)

	require.NoError(t, f.service.ResetPassword(ctx, token, "new password"))

	identity, err := f.repo.GetIdentityByID(ctx, ted.ID)
	require.NoError(t, err)
	ok, err := NewBcryptHasher().Verify("new password", identity.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	// Tokens are single use.
	err = f.service.ResetPassword(ctx, token, "another password")
	assert.ErrorIs(t, err, ErrUserNotAuthorized)

	err = f.service.ResetPassword(ctx, "no-such-token", "another password")
	assert.ErrorIs(t, err, ErrUserNotAuthorized)
}

func TestExistenceValidationErrorWrappers(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t, config.Static{})
	f.createActiveAccount(t, "ted", "ted@example.com")

	msg := f.service.GetUsernameExistenceValidationError(ctx, "ted", "fallback")
	assert.Equal(t, `An account with the Public Username "ted" already exists.`, msg)
	assert.Equal(t, "fallback", f.service.GetUsernameExistenceValidationError(ctx, "fred", "fallback"))

	msg = f.service.GetEmailExistenceValidationError(ctx, "ted@example.com", "fallback")
	assert.Equal(t, `An account with the E-mail "ted@example.com" already exists.`, msg)
	assert.Equal(t, "fallback", f.service.GetEmailExistenceValidationError(ctx, "fred@example.com", "fallback"))
}

func TestIsRequestError(t *testing.T) {
	assert.True(t, IsRequestError(ErrUserNotFound))
	assert.True(t, IsRequestError(&ValidationError{}))
	assert.True(t, IsRequestError(&UsernameInvalidError{}))
	assert.False(t, IsRequestError(errors.New("boom")))
	assert.False(t, IsRequestError(&InternalError{Err: errors.New("boom")}))
}
