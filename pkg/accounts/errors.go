package accounts

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors shared by all account operations.
var (
	// ErrUserNotFound is returned when no account matches the requested username or email
	ErrUserNotFound = errors.New("user not found")

	// ErrUserNotAuthorized is returned when the requesting user may not act on the target account
	ErrUserNotAuthorized = errors.New("user not authorized")

	// ErrUserAlreadyExists is returned when an account save loses a uniqueness race
	ErrUserAlreadyExists = errors.New("an account with that username or email already exists")

	// ErrAccountCreationNotAllowed is returned when public account creation is disabled
	ErrAccountCreationNotAllowed = errors.New("account creation not allowed")

	// ErrRegistrationNotFound is returned by repositories when no registration
	// matches an activation key
	ErrRegistrationNotFound = errors.New("registration not found")

	// ErrPasswordResetNotFound is returned by repositories when no password
	// reset matches a token
	ErrPasswordResetNotFound = errors.New("password reset not found")
)

// FieldError carries both the diagnostic and the user-facing message for one
// failed field.
type FieldError struct {
	DeveloperMessage string `json:"developer_message"`
	UserMessage      string `json:"user_message"`
}

// FieldErrors aggregates failures across independent fields of one call.
type FieldErrors map[string]FieldError

// ValidationError rejects an update before any persistence has happened.
// Every invalid field contributes an entry; the update is all-or-nothing with
// respect to validation failures.
type ValidationError struct {
	FieldErrors FieldErrors
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.FieldErrors))
	for field := range e.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fmt.Sprintf("validation failed for fields: %s", strings.Join(fields, ", "))
}

// UpdateError reports a failure during the persistence phase of an account
// update. Steps listed in CompletedSteps have already been committed when the
// step named by FailedStep failed; callers can observe exactly how far the
// update progressed.
type UpdateError struct {
	Message        string
	UserMessage    string
	CompletedSteps []string
	FailedStep     string
	Err            error
}

func (e *UpdateError) Error() string {
	if e.FailedStep != "" {
		return fmt.Sprintf("account update failed at step %q: %s", e.FailedStep, e.Message)
	}
	return fmt.Sprintf("account update failed: %s", e.Message)
}

func (e *UpdateError) Unwrap() error {
	return e.Err
}

// DataBadTypeError marks input that is not well-formed text.
type DataBadTypeError struct {
	Message string
}

func (e *DataBadTypeError) Error() string { return e.Message }

// DataBadLengthError marks input outside the allowed length bounds.
type DataBadLengthError struct {
	Message string
}

func (e *DataBadLengthError) Error() string { return e.Message }

// UsernameInvalidError is raised by the username validation pipeline.
type UsernameInvalidError struct {
	Message string
}

func (e *UsernameInvalidError) Error() string { return e.Message }

// EmailInvalidError is raised by the email validation pipeline.
type EmailInvalidError struct {
	Message string
}

func (e *EmailInvalidError) Error() string { return e.Message }

// PasswordInvalidError is raised by the password validation pipeline.
type PasswordInvalidError struct {
	Message string
}

func (e *PasswordInvalidError) Error() string { return e.Message }

// UsernameAlreadyExistsError is raised when a proposed username is taken.
type UsernameAlreadyExistsError struct {
	Message string
}

func (e *UsernameAlreadyExistsError) Error() string { return e.Message }

// EmailAlreadyExistsError is raised when a proposed email is taken.
type EmailAlreadyExistsError struct {
	Message string
}

func (e *EmailAlreadyExistsError) Error() string { return e.Message }

// InternalError wraps an unexpected failure so callers can distinguish
// user-caused request errors from system faults.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal account API error: %v", e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// IsRequestError reports whether err belongs to the allow-list of expected,
// user-caused errors that public entry points let through unchanged.
func IsRequestError(err error) bool {
	if errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrUserNotAuthorized) ||
		errors.Is(err, ErrUserAlreadyExists) ||
		errors.Is(err, ErrAccountCreationNotAllowed) {
		return true
	}

	var (
		validationErr      *ValidationError
		updateErr          *UpdateError
		badType            *DataBadTypeError
		badLength          *DataBadLengthError
		usernameInvalid    *UsernameInvalidError
		emailInvalid       *EmailInvalidError
		passwordInvalid    *PasswordInvalidError
		usernameConflict   *UsernameAlreadyExistsError
		emailConflict      *EmailAlreadyExistsError
	)
	switch {
	case errors.As(err, &validationErr),
		errors.As(err, &updateErr),
		errors.As(err, &badType),
		errors.As(err, &badLength),
		errors.As(err, &usernameInvalid),
		errors.As(err, &emailInvalid),
		errors.As(err, &passwordInvalid),
		errors.As(err, &usernameConflict),
		errors.As(err, &emailConflict):
		return true
	}
	return false
}

// wrapUnexpected passes expected request errors through unchanged and wraps
// everything else as an InternalError.
func wrapUnexpected(err error) error {
	if err == nil {
		return nil
	}
	if IsRequestError(err) {
		return err
	}
	return &InternalError{Err: err}
}
