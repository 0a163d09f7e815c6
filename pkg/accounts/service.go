package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-accounts/pkg/config"
	"github.com/tendant/simple-accounts/pkg/events"
	"github.com/tendant/simple-accounts/pkg/notification"
	"github.com/tendant/simple-accounts/pkg/prefs"
	"github.com/tendant/simple-accounts/pkg/utils"
)

// Named steps of the account update persistence sequence, in execution order.
// UpdateError reports progress in these terms.
const (
	StepSaveAccount       = "save_account"
	StepUpdatePreferences = "update_preferences"
	StepEmitSettingChange = "emit_setting_change"
	StepRecordNameHistory = "record_name_history"
	StepEmailChange       = "email_change_request"
)

// Length bounds for the mutable profile fields.
const (
	NameMaxLength = 255
	BioMaxLength  = 3000
)

const emailChangesDisabledMsg = "Email address changes have been disabled by the site operators."

var languageCodePattern = regexp.MustCompile(`^[a-z]{2,8}(-[a-zA-Z0-9]{1,8})*$`)

// PreferencesUpdater is the preferences subsystem boundary. The prefs package
// PreferenceService satisfies this.
type PreferencesUpdater interface {
	UpdateUserPreferences(ctx context.Context, actorUsername string, updates map[string]string, targetID uuid.UUID) error
	GetUserPreference(ctx context.Context, targetID uuid.UUID, key string) (string, error)
}

// EmailChanger is the confirm-by-link email change workflow boundary. The
// emailchange package Service satisfies this.
type EmailChanger interface {
	ValidateNewEmail(ctx context.Context, currentEmail, newEmail string) error
	DoEmailChangeRequest(ctx context.Context, identityID uuid.UUID, username, newEmail string) error
	ConsumeChangeRequest(ctx context.Context, confirmationKey string) (uuid.UUID, string, error)
}

// AccountService coordinates account reads, validated multi-field updates,
// account creation and the activation and password reset workflows across the
// repository and its collaborator subsystems.
type AccountService struct {
	repo             AccountRepository
	hasher           PasswordHasher
	prefs            PreferencesUpdater
	emailChanger     EmailChanger
	events           events.Emitter
	notifier         *notification.NotificationManager
	cfg              config.Provider
	visibility       VisibilityConfiguration
	activationKeyLen int
	resetTokenExpiry time.Duration
}

// AccountServiceOption configures the account service.
type AccountServiceOption func(*AccountService)

// WithPasswordHasher overrides the credential hasher.
func WithPasswordHasher(hasher PasswordHasher) AccountServiceOption {
	return func(s *AccountService) {
		s.hasher = hasher
	}
}

// WithPreferences wires in the preferences subsystem.
func WithPreferences(p PreferencesUpdater) AccountServiceOption {
	return func(s *AccountService) {
		s.prefs = p
	}
}

// WithEmailChanger wires in the email change workflow.
func WithEmailChanger(e EmailChanger) AccountServiceOption {
	return func(s *AccountService) {
		s.emailChanger = e
	}
}

// WithEventEmitter overrides the setting-change event emitter.
func WithEventEmitter(e events.Emitter) AccountServiceOption {
	return func(s *AccountService) {
		s.events = e
	}
}

// WithNotificationManager wires in outbound notifications.
func WithNotificationManager(nm *notification.NotificationManager) AccountServiceOption {
	return func(s *AccountService) {
		s.notifier = nm
	}
}

// WithConfigProvider overrides the feature flag source.
func WithConfigProvider(p config.Provider) AccountServiceOption {
	return func(s *AccountService) {
		s.cfg = p
	}
}

// WithVisibilityConfiguration overrides the process-wide visibility defaults.
func WithVisibilityConfiguration(c VisibilityConfiguration) AccountServiceOption {
	return func(s *AccountService) {
		s.visibility = c
	}
}

// WithResetTokenExpiry overrides the password reset token lifetime.
func WithResetTokenExpiry(d time.Duration) AccountServiceOption {
	return func(s *AccountService) {
		s.resetTokenExpiry = d
	}
}

// NewAccountService creates an account service backed by the given repository.
func NewAccountService(repo AccountRepository, opts ...AccountServiceOption) *AccountService {
	s := &AccountService{
		repo:             repo,
		hasher:           NewBcryptHasher(),
		events:           events.NewSlogEmitter(),
		cfg:              config.NewEnvProvider(),
		visibility:       DefaultVisibilityConfiguration(),
		activationKeyLen: 32,
		resetTokenExpiry: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetAccountSettings assembles a visibility-filtered view of one or more
// accounts for the viewer. With no usernames the viewer's own account is
// returned. Staff and account owners get the admin-field superset unless the
// shared view is explicitly requested; everyone else gets shared fields only.
// Views come back in input order; unknown usernames are skipped, and
// ErrUserNotFound is returned only when none resolve.
func (s *AccountService) GetAccountSettings(ctx context.Context, viewer Identity, usernames []string, configuration *VisibilityConfiguration, view string) ([]AccountView, error) {
	if len(usernames) == 0 {
		usernames = []string{viewer.Username}
	}
	visibility := s.visibility
	if configuration != nil {
		visibility = *configuration
	}

	identities, err := s.repo.FindIdentitiesByUsernames(ctx, usernames)
	if err != nil {
		return nil, wrapUnexpected(err)
	}
	if len(identities) == 0 {
		return nil, ErrUserNotFound
	}

	views := make([]AccountView, 0, len(identities))
	for _, identity := range identities {
		profile, err := s.repo.GetOrCreateProfile(ctx, identity.ID)
		if err != nil {
			return nil, wrapUnexpected(err)
		}

		fullAccess := viewer.IsStaff || viewer.Username == identity.Username
		fields := visibility.VisibleFields(fullAccess && view != ViewShared)

		accountPrivacy, err := s.accountPrivacy(ctx, identity.ID, visibility)
		if err != nil {
			return nil, wrapUnexpected(err)
		}
		views = append(views, buildAccountView(identity, profile, accountPrivacy, fields))
	}
	return views, nil
}

func (s *AccountService) accountPrivacy(ctx context.Context, identityID uuid.UUID, visibility VisibilityConfiguration) (string, error) {
	if s.prefs == nil {
		return string(visibility.DefaultVisibility), nil
	}
	value, err := s.prefs.GetUserPreference(ctx, identityID, prefs.KeyAccountPrivacy)
	if errors.Is(err, prefs.ErrPreferenceNotFound) {
		return string(visibility.DefaultVisibility), nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// profileUpdate holds the typed, validated field values extracted from one
// update request. Nil pointers mean the field was not requested.
type profileUpdate struct {
	name                  *string
	bio                   *string
	languageProficiencies []string
	languagesRequested    bool
	accountPrivacy        *string
}

// editableFields are the account fields the update API accepts. Email is
// deliberately absent: it is extracted before generic validation and handled
// by the confirm-by-link workflow.
var editableFields = map[string]bool{
	FieldName:                  true,
	FieldBio:                   true,
	FieldLanguageProficiencies: true,
	FieldAccountPrivacy:        true,
}

// UpdateAccountSettings applies a validated multi-field update to the
// requesting user's own account. Validation failures are aggregated across
// fields and reject the whole update before anything is persisted; failures
// during the persistence sequence surface as UpdateError (or a converted
// ValidationError for preference rejections) with earlier steps left
// committed.
func (s *AccountService) UpdateAccountSettings(ctx context.Context, requestingUser Identity, updates map[string]any, username string) error {
	if username == "" {
		username = requestingUser.Username
	}
	// Users may only update their own account.
	if requestingUser.Username != username {
		return ErrUserNotAuthorized
	}

	identity, err := s.repo.GetIdentityByUsername(ctx, username)
	if err != nil {
		return wrapUnexpected(err)
	}
	profile, err := s.repo.GetOrCreateProfile(ctx, identity.ID)
	if err != nil {
		return wrapUnexpected(err)
	}

	pending := make(map[string]any, len(updates))
	for field, value := range updates {
		pending[field] = value
	}
	emailValue, emailRequested := pending[FieldEmail]
	delete(pending, FieldEmail)

	oldName := profile.Name
	oldLanguages := append([]string(nil), profile.LanguageProficiencies...)

	fieldErrors := FieldErrors{}

	// Read-only and unknown fields accumulate errors without aborting the
	// call; they are removed from the update set.
	for field := range pending {
		if !editableFields[field] {
			fieldErrors[field] = FieldError{
				DeveloperMessage: "This field is not editable via this API",
				UserMessage:      fmt.Sprintf("The '%s' field cannot be edited.", field),
			}
			delete(pending, field)
		}
	}

	parsed := parseProfileUpdate(pending, fieldErrors)

	if emailRequested {
		newEmail, ok := emailValue.(string)
		switch {
		case !ok:
			fieldErrors[FieldEmail] = FieldError{
				DeveloperMessage: emailBadTypeMsg,
				UserMessage:      emailBadTypeMsg,
			}
		case s.emailChanger == nil:
			fieldErrors[FieldEmail] = FieldError{
				DeveloperMessage: "Email change workflow is not configured",
				UserMessage:      emailChangesDisabledMsg,
			}
		default:
			if err := s.emailChanger.ValidateNewEmail(ctx, identity.Email, newEmail); err != nil {
				fieldErrors[FieldEmail] = FieldError{
					DeveloperMessage: fmt.Sprintf("Error thrown from ValidateNewEmail: '%v'", err),
					UserMessage:      err.Error(),
				}
			}
		}
	}

	if len(fieldErrors) > 0 {
		return &ValidationError{FieldErrors: fieldErrors}
	}

	// Persistence sequence. From here on failures may leave earlier steps
	// committed; CompletedSteps records how far the update progressed.
	var completed []string

	if parsed.name != nil {
		profile.Name = *parsed.name
	}
	if parsed.bio != nil {
		profile.Bio = *parsed.bio
	}
	if parsed.languagesRequested {
		profile.LanguageProficiencies = parsed.languageProficiencies
	}
	if err := s.repo.SaveProfile(ctx, profile); err != nil {
		return &UpdateError{
			Message:        fmt.Sprintf("Error thrown when saving account updates: '%v'", err),
			CompletedSteps: completed,
			FailedStep:     StepSaveAccount,
			Err:            err,
		}
	}
	completed = append(completed, StepSaveAccount)

	if parsed.accountPrivacy != nil && s.prefs != nil {
		prefUpdates := map[string]string{prefs.KeyAccountPrivacy: *parsed.accountPrivacy}
		err := s.prefs.UpdateUserPreferences(ctx, requestingUser.Username, prefUpdates, identity.ID)
		var prefErr *prefs.ValidationError
		if errors.As(err, &prefErr) {
			// The profile save has already committed. Documented
			// partial-failure behavior.
			converted := FieldErrors{}
			for key, pe := range prefErr.PreferenceErrors {
				converted[key] = FieldError{
					DeveloperMessage: pe.DeveloperMessage,
					UserMessage:      pe.UserMessage,
				}
			}
			return &ValidationError{FieldErrors: converted}
		}
		if err != nil {
			return &UpdateError{
				Message:        fmt.Sprintf("Error thrown when saving account updates: '%v'", err),
				CompletedSteps: completed,
				FailedStep:     StepUpdatePreferences,
				Err:            err,
			}
		}
		completed = append(completed, StepUpdatePreferences)
	}

	if parsed.languagesRequested && !slices.Equal(oldLanguages, parsed.languageProficiencies) {
		event := events.SettingChanged{
			Username: identity.Username,
			Setting:  FieldLanguageProficiencies,
			Old:      oldLanguages,
			New:      parsed.languageProficiencies,
			At:       time.Now().UTC(),
		}
		if err := s.events.EmitSettingChanged(ctx, event); err != nil {
			// Emission is fire-and-forget.
			slog.Error("Failed to emit setting change", "username", identity.Username, "err", err)
		} else {
			completed = append(completed, StepEmitSettingChange)
		}
	}

	if parsed.name != nil && oldName != "" {
		profile.AppendOldName(NameChangeHistoryEntry{
			OldName:   oldName,
			ChangedBy: fmt.Sprintf("Name change requested through account API by %s", requestingUser.Username),
			ChangedAt: time.Now().UTC(),
		})
		if err := s.repo.SaveProfile(ctx, profile); err != nil {
			return &UpdateError{
				Message:        fmt.Sprintf("Error thrown when saving account updates: '%v'", err),
				CompletedSteps: completed,
				FailedStep:     StepRecordNameHistory,
				Err:            err,
			}
		}
		completed = append(completed, StepRecordNameHistory)
	}

	if emailRequested {
		if !s.cfg.GetBool(config.KeyAllowEmailAddressChange, true) {
			return &UpdateError{
				Message:        emailChangesDisabledMsg,
				UserMessage:    emailChangesDisabledMsg,
				CompletedSteps: completed,
				FailedStep:     StepEmailChange,
			}
		}
		newEmail := emailValue.(string)
		if err := s.emailChanger.DoEmailChangeRequest(ctx, identity.ID, identity.Username, newEmail); err != nil {
			return &UpdateError{
				Message:        fmt.Sprintf("Error thrown from DoEmailChangeRequest: '%v'", err),
				UserMessage:    err.Error(),
				CompletedSteps: completed,
				FailedStep:     StepEmailChange,
				Err:            err,
			}
		}
		completed = append(completed, StepEmailChange)
	}

	slog.Info("Account settings updated", "username", identity.Username, "steps", completed)
	return nil
}

// parseProfileUpdate type-checks and validates the editable profile fields,
// accumulating failures per field. Stages within one field short-circuit;
// different fields are validated independently.
func parseProfileUpdate(pending map[string]any, fieldErrors FieldErrors) profileUpdate {
	var parsed profileUpdate

	if raw, ok := pending[FieldName]; ok {
		if name, ok := raw.(string); !ok {
			fieldErrors[FieldName] = fieldError("Name must be a string.")
		} else if len([]rune(name)) > NameMaxLength {
			fieldErrors[FieldName] = fieldError(fmt.Sprintf("Name must be at most %d characters long.", NameMaxLength))
		} else {
			parsed.name = &name
		}
	}

	if raw, ok := pending[FieldBio]; ok {
		if bio, ok := raw.(string); !ok {
			fieldErrors[FieldBio] = fieldError("Bio must be a string.")
		} else if len([]rune(bio)) > BioMaxLength {
			fieldErrors[FieldBio] = fieldError(fmt.Sprintf("Bio must be at most %d characters long.", BioMaxLength))
		} else {
			parsed.bio = &bio
		}
	}

	if raw, ok := pending[FieldLanguageProficiencies]; ok {
		languages, err := parseLanguageList(raw)
		if err != nil {
			fieldErrors[FieldLanguageProficiencies] = fieldError(err.Error())
		} else {
			parsed.languageProficiencies = languages
			parsed.languagesRequested = true
		}
	}

	if raw, ok := pending[FieldAccountPrivacy]; ok {
		if privacy, ok := raw.(string); !ok {
			fieldErrors[FieldAccountPrivacy] = fieldError("Account privacy must be a string.")
		} else {
			// Allowed values are enforced by the preferences subsystem.
			parsed.accountPrivacy = &privacy
		}
	}

	return parsed
}

func fieldError(message string) FieldError {
	return FieldError{DeveloperMessage: message, UserMessage: message}
}

// parseLanguageList normalizes a proposed language_proficiencies value:
// a list of distinct, well-formed language codes.
func parseLanguageList(raw any) ([]string, error) {
	var codes []string
	switch value := raw.(type) {
	case []string:
		codes = value
	case []any:
		codes = make([]string, 0, len(value))
		for _, item := range value {
			code, ok := item.(string)
			if !ok {
				return nil, errors.New("Language proficiencies must be a list of language codes.")
			}
			codes = append(codes, code)
		}
	default:
		return nil, errors.New("Language proficiencies must be a list of language codes.")
	}

	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if !languageCodePattern.MatchString(code) {
			return nil, fmt.Errorf("%q is not a valid language code.", code)
		}
		if seen[code] {
			return nil, errors.New("Language proficiencies must be unique.")
		}
		seen[code] = true
	}
	return append([]string(nil), codes...), nil
}

// RegisterParams carries the inputs of one account creation request.
type RegisterParams struct {
	Username string
	Password string
	Email    string
}

// Register creates a new account from bound request parameters.
func (s *AccountService) Register(ctx context.Context, params RegisterParams) (string, error) {
	return s.CreateAccount(ctx, params.Username, params.Password, params.Email)
}

// CreateAccount validates and persists a new inactive account with its
// registration token and empty profile, all-or-nothing, and returns the
// activation key for out-of-band delivery. Unlike updates, creation is
// fail-fast: the first invalid field rejects the call.
func (s *AccountService) CreateAccount(ctx context.Context, username, password, email string) (string, error) {
	if !s.cfg.GetBool(config.KeyAllowPublicAccountCreation, true) {
		return "", ErrAccountCreationNotAllowed
	}

	if err := ValidateUsername(username); err != nil {
		return "", err
	}
	if err := ValidatePassword(password, username); err != nil {
		return "", err
	}
	if err := ValidateEmail(email); err != nil {
		return "", err
	}
	if err := s.ValidateEmailDoesntExist(ctx, email); err != nil {
		return "", err
	}
	if err := s.ValidateUsernameDoesntExist(ctx, username); err != nil {
		return "", err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", wrapUnexpected(err)
	}

	identity, registration, err := s.repo.CreateAccount(ctx, CreateAccountParams{
		Username:      username,
		Email:         email,
		PasswordHash:  hash,
		ActivationKey: utils.GenerateRandomString(s.activationKeyLen),
	})
	if err != nil {
		// A uniqueness race lost at save time surfaces the same way the
		// pre-checks would have.
		return "", wrapUnexpected(err)
	}

	if s.notifier != nil {
		err := s.notifier.Send(notification.AccountActivationNotice, notification.NotificationData{
			To: email,
			Data: map[string]string{
				"Username":      username,
				"ActivationKey": registration.ActivationKey,
			},
		})
		if err != nil {
			slog.Error("Failed to send activation notice", "username", username, "err", err)
		}
	}

	slog.Info("Account created", "username", username, "identity", identity.ID)
	return registration.ActivationKey, nil
}

// ActivateAccount marks the account bound to an activation key active and the
// key consumed. Unknown and already-consumed keys fail with
// ErrUserNotAuthorized and change nothing. Re-activating an already active
// account with its unconsumed key is a no-op beyond consuming the key.
func (s *AccountService) ActivateAccount(ctx context.Context, activationKey string) error {
	registration, err := s.repo.GetRegistrationByKey(ctx, activationKey)
	if errors.Is(err, ErrRegistrationNotFound) {
		return ErrUserNotAuthorized
	}
	if err != nil {
		return wrapUnexpected(err)
	}
	if registration.ConsumedAt != nil {
		return ErrUserNotAuthorized
	}

	if err := s.repo.SetIdentityActive(ctx, registration.IdentityID, true); err != nil {
		return wrapUnexpected(err)
	}
	if err := s.repo.MarkRegistrationConsumed(ctx, registration.ID); err != nil {
		return wrapUnexpected(err)
	}

	slog.Info("Account activated", "identity", registration.IdentityID)
	return nil
}

// RequestPasswordChange issues a single-use, expiring reset link for the
// active account holding the email and mails it out. The link is addressed
// with the caller's host and protocol context. Inactive and unknown accounts
// fail with ErrUserNotFound.
func (s *AccountService) RequestPasswordChange(ctx context.Context, email, originHost string, isSecure bool) error {
	identity, err := s.repo.GetIdentityByEmail(ctx, email)
	if err != nil {
		return wrapUnexpected(err)
	}
	if !identity.Active {
		return ErrUserNotFound
	}

	now := time.Now().UTC()
	reset := PasswordReset{
		ID:         uuid.New(),
		IdentityID: identity.ID,
		Token:      utils.GenerateRandomString(s.activationKeyLen),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.resetTokenExpiry),
	}
	if err := s.repo.CreatePasswordReset(ctx, reset); err != nil {
		return wrapUnexpected(err)
	}

	scheme := "http"
	if isSecure {
		scheme = "https"
	}
	resetLink := fmt.Sprintf("%s://%s/password_reset_confirm/%s", scheme, originHost, reset.Token)

	if s.notifier != nil {
		err := s.notifier.Send(notification.PasswordResetNotice, notification.NotificationData{
			To: email,
			Data: map[string]string{
				"Username":  identity.Username,
				"ResetLink": resetLink,
			},
		})
		if err != nil {
			// Outbound mail is fire-and-forget.
			slog.Error("Failed to send password reset notice", "identity", identity.ID, "err", err)
		}
	}

	slog.Info("Password reset requested", "identity", identity.ID)
	return nil
}

// ResetPassword consumes a reset token and stores the new credential. Unknown,
// used and expired tokens fail with ErrUserNotAuthorized.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	reset, err := s.repo.GetPasswordResetByToken(ctx, token)
	if errors.Is(err, ErrPasswordResetNotFound) {
		return ErrUserNotAuthorized
	}
	if err != nil {
		return wrapUnexpected(err)
	}
	if reset.UsedAt != nil || time.Now().UTC().After(reset.ExpiresAt) {
		return ErrUserNotAuthorized
	}

	identity, err := s.repo.GetIdentityByID(ctx, reset.IdentityID)
	if err != nil {
		return wrapUnexpected(err)
	}
	if err := ValidatePassword(newPassword, identity.Username); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return wrapUnexpected(err)
	}
	identity.PasswordHash = hash
	if err := s.repo.SaveIdentity(ctx, identity); err != nil {
		return wrapUnexpected(err)
	}
	if err := s.repo.MarkPasswordResetUsed(ctx, reset.ID); err != nil {
		return wrapUnexpected(err)
	}

	slog.Info("Password reset completed", "identity", identity.ID)
	return nil
}

// ConfirmEmailChange consumes an email change confirmation key and applies the
// pending address to the account. Unknown and already-confirmed keys fail with
// ErrUserNotAuthorized.
func (s *AccountService) ConfirmEmailChange(ctx context.Context, confirmationKey string) error {
	if s.emailChanger == nil {
		return ErrUserNotAuthorized
	}
	identityID, newEmail, err := s.emailChanger.ConsumeChangeRequest(ctx, confirmationKey)
	if err != nil {
		return ErrUserNotAuthorized
	}

	identity, err := s.repo.GetIdentityByID(ctx, identityID)
	if err != nil {
		return wrapUnexpected(err)
	}
	oldEmail := identity.Email
	identity.Email = newEmail
	if err := s.repo.SaveIdentity(ctx, identity); err != nil {
		// The address may have been taken while the confirmation was pending.
		return wrapUnexpected(err)
	}

	if err := s.events.EmitSettingChanged(ctx, events.SettingChanged{
		Username: identity.Username,
		Setting:  FieldEmail,
		Old:      oldEmail,
		New:      newEmail,
		At:       time.Now().UTC(),
	}); err != nil {
		slog.Error("Failed to emit setting change", "username", identity.Username, "err", err)
	}

	slog.Info("Email change confirmed", "identity", identity.ID)
	return nil
}
