package accounts

import (
	"context"
	"errors"
	"fmt"
)

const (
	usernameConflictMsgFmt = `An account with the Public Username "%s" already exists.`
	emailConflictMsgFmt    = `An account with the E-mail "%s" already exists.`
)

// ValidateUsernameDoesntExist raises a UsernameAlreadyExistsError with a
// templated user message when the username is taken. Empty input is skipped.
func (s *AccountService) ValidateUsernameDoesntExist(ctx context.Context, username string) error {
	if username == "" {
		return nil
	}
	taken, err := s.repo.UsernameExists(ctx, username)
	if err != nil {
		return wrapUnexpected(err)
	}
	if taken {
		return &UsernameAlreadyExistsError{Message: fmt.Sprintf(usernameConflictMsgFmt, username)}
	}
	return nil
}

// ValidateEmailDoesntExist raises an EmailAlreadyExistsError with a templated
// user message when the email is taken. Empty input is skipped.
func (s *AccountService) ValidateEmailDoesntExist(ctx context.Context, email string) error {
	if email == "" {
		return nil
	}
	taken, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return wrapUnexpected(err)
	}
	if taken {
		return &EmailAlreadyExistsError{Message: fmt.Sprintf(emailConflictMsgFmt, email)}
	}
	return nil
}

// CheckAccountExists is a non-throwing batch probe used by signup-flow
// pre-checks: it returns the names of the fields already held by an existing
// account, listing email conflicts before username conflicts.
func (s *AccountService) CheckAccountExists(ctx context.Context, username, email string) ([]string, error) {
	conflicts := []string{}
	if email != "" {
		taken, err := s.repo.EmailExists(ctx, email)
		if err != nil {
			return nil, wrapUnexpected(err)
		}
		if taken {
			conflicts = append(conflicts, FieldEmail)
		}
	}
	if username != "" {
		taken, err := s.repo.UsernameExists(ctx, username)
		if err != nil {
			return nil, wrapUnexpected(err)
		}
		if taken {
			conflicts = append(conflicts, FieldUsername)
		}
	}
	return conflicts, nil
}

// GetUsernameExistenceValidationError adapts ValidateUsernameDoesntExist into
// a "message or default" form for UI pre-validation.
func (s *AccountService) GetUsernameExistenceValidationError(ctx context.Context, username, defaultMsg string) string {
	var conflict *UsernameAlreadyExistsError
	if err := s.ValidateUsernameDoesntExist(ctx, username); errors.As(err, &conflict) {
		return conflict.Message
	}
	return defaultMsg
}

// GetEmailExistenceValidationError adapts ValidateEmailDoesntExist into a
// "message or default" form for UI pre-validation.
func (s *AccountService) GetEmailExistenceValidationError(ctx context.Context, email, defaultMsg string) string {
	var conflict *EmailAlreadyExistsError
	if err := s.ValidateEmailDoesntExist(ctx, email); errors.As(err, &conflict) {
		return conflict.Message
	}
	return defaultMsg
}
