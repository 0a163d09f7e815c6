package emailchange

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-accounts/pkg/notification"
	"github.com/tendant/simple-accounts/pkg/utils"
)

// EmailChecker reports whether an email address is already held by any
// account. The account repository satisfies this.
type EmailChecker interface {
	EmailExists(ctx context.Context, email string) (bool, error)
}

// Service drives the confirm-by-link email change workflow.
type Service struct {
	repo          Repository
	emails        EmailChecker
	notifier      *notification.NotificationManager
	validateEmail func(email string) error
	baseURL       string
	keyLength     int
}

// ServiceOption configures the email change service.
type ServiceOption func(*Service)

// WithBaseURL sets the base URL used to build confirmation links.
func WithBaseURL(baseURL string) ServiceOption {
	return func(s *Service) {
		s.baseURL = baseURL
	}
}

// WithEmailValidator sets the format validator applied to proposed addresses.
func WithEmailValidator(validate func(email string) error) ServiceOption {
	return func(s *Service) {
		s.validateEmail = validate
	}
}

// NewService creates an email change service.
func NewService(repo Repository, emails EmailChecker, notifier *notification.NotificationManager, opts ...ServiceOption) *Service {
	s := &Service{
		repo:      repo,
		emails:    emails,
		notifier:  notifier,
		baseURL:   "http://localhost:4000",
		keyLength: 32,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateNewEmail checks that a proposed address is well-formed, differs
// from the current one, and is not already taken. Every failure carries a
// user-facing message.
func (s *Service) ValidateNewEmail(ctx context.Context, currentEmail, newEmail string) error {
	if s.validateEmail != nil {
		if err := s.validateEmail(newEmail); err != nil {
			return err
		}
	}
	if newEmail == currentEmail {
		return ErrSameEmail
	}
	taken, err := s.emails.EmailExists(ctx, newEmail)
	if err != nil {
		return fmt.Errorf("failed to check email availability: %w", err)
	}
	if taken {
		return ErrEmailTaken
	}
	return nil
}

// DoEmailChangeRequest records a pending change and mails a confirmation link
// to the new address. The stored email does not change until the link is
// confirmed.
func (s *Service) DoEmailChangeRequest(ctx context.Context, identityID uuid.UUID, username, newEmail string) error {
	change := PendingEmailChange{
		ID:              uuid.New(),
		IdentityID:      identityID,
		NewEmail:        newEmail,
		ConfirmationKey: utils.GenerateRandomString(s.keyLength),
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, change); err != nil {
		slog.Error("Failed to store email change request", "identity", identityID, "err", err)
		return fmt.Errorf("failed to store email change request: %w", err)
	}

	confirmationLink := fmt.Sprintf("%s/email_change_confirm/%s", s.baseURL, change.ConfirmationKey)
	err := s.notifier.Send(notification.EmailChangeNotice, notification.NotificationData{
		To: newEmail,
		Data: map[string]string{
			"Username":         username,
			"NewEmail":         newEmail,
			"ConfirmationLink": confirmationLink,
		},
	})
	if err != nil {
		slog.Error("Failed to send email change confirmation", "identity", identityID, "err", err)
		return ErrSendFailed
	}

	slog.Info("Email change request created", "identity", identityID, "new_email", newEmail)
	return nil
}

// ConsumeChangeRequest looks up an unconfirmed pending change by key, marks
// it confirmed, and returns the identity and new address so the caller can
// apply the change to the account record.
func (s *Service) ConsumeChangeRequest(ctx context.Context, confirmationKey string) (uuid.UUID, string, error) {
	change, err := s.repo.GetByConfirmationKey(ctx, confirmationKey)
	if err != nil {
		return uuid.Nil, "", err
	}
	if change.ConfirmedAt != nil {
		return uuid.Nil, "", ErrChangeRequestNotFound
	}
	if err := s.repo.MarkConfirmed(ctx, change.ID); err != nil {
		return uuid.Nil, "", err
	}
	return change.IdentityID, change.NewEmail, nil
}
