package accounts

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Length bounds enforced by the field validators.
const (
	UsernameMinLength = 2
	UsernameMaxLength = 30
	EmailMinLength    = 3
	EmailMaxLength    = 254
	PasswordMinLength = 2
	PasswordMaxLength = 75
)

const (
	usernameBadTypeMsg   = "Username must be a string."
	emailBadTypeMsg      = "Email must be a string."
	passwordBadTypeMsg   = "Password must be a string."
	usernameBadLengthMsg = "Username must be between 2 and 30 characters long."
	emailBadLengthMsg    = "Email must be between 3 and 254 characters long."
	passwordBadLengthMsg = "Password must be between 2 and 75 characters long."
	usernameBadFormatMsg = "Usernames can only contain letters, digits and @/./+/-/_ characters."

	passwordCantEqualUsernameMsg = "Password cannot be the same as the username."
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// ValidateUsername runs the ordered username validation pipeline: encoding
// well-formedness, length bounds, then the username character rule. The first
// failing stage aborts the pipeline with a UsernameInvalidError.
func ValidateUsername(username string) error {
	if err := runPipeline(username, usernameBadTypeMsg, UsernameMinLength, UsernameMaxLength, usernameBadLengthMsg); err != nil {
		return &UsernameInvalidError{Message: err.Error()}
	}
	if !usernamePattern.MatchString(username) {
		return &UsernameInvalidError{Message: usernameBadFormatMsg}
	}
	return nil
}

// ValidateEmail runs the ordered email validation pipeline: encoding
// well-formedness, length bounds, then an RFC-shaped address check. The first
// failing stage aborts the pipeline with an EmailInvalidError.
func ValidateEmail(email string) error {
	if err := runPipeline(email, emailBadTypeMsg, EmailMinLength, EmailMaxLength, emailBadLengthMsg); err != nil {
		return &EmailInvalidError{Message: err.Error()}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || strings.ContainsAny(email, " \t") {
		return &EmailInvalidError{Message: fmt.Sprintf("%q is not a valid email address.", email)}
	}
	return nil
}

// ValidatePassword runs the ordered password validation pipeline: encoding
// well-formedness, length bounds, then the username-equality rule. Passwords
// cannot be the same as the username of the account, so the username is taken
// as an argument. The first failing stage aborts the pipeline with a
// PasswordInvalidError.
func ValidatePassword(password, username string) error {
	if err := runPipeline(password, passwordBadTypeMsg, PasswordMinLength, PasswordMaxLength, passwordBadLengthMsg); err != nil {
		return &PasswordInvalidError{Message: err.Error()}
	}
	if password == username {
		return &PasswordInvalidError{Message: passwordCantEqualUsernameMsg}
	}
	return nil
}

// runPipeline applies the stages common to all field validators. Stages within
// one field short-circuit; different fields are validated independently.
func runPipeline(value, badTypeMsg string, minLen, maxLen int, badLengthMsg string) error {
	if !utf8.ValidString(value) {
		return &DataBadTypeError{Message: badTypeMsg}
	}
	if n := utf8.RuneCountInString(value); n < minLen || n > maxLen {
		return &DataBadLengthError{Message: badLengthMsg}
	}
	return nil
}

// GetUsernameValidationError adapts ValidateUsername into a "message or
// default" form for UI pre-validation.
func GetUsernameValidationError(username, defaultMsg string) string {
	var invalidErr *UsernameInvalidError
	if err := ValidateUsername(username); errors.As(err, &invalidErr) {
		return invalidErr.Message
	}
	return defaultMsg
}

// GetEmailValidationError adapts ValidateEmail into a "message or default"
// form for UI pre-validation.
func GetEmailValidationError(email, defaultMsg string) string {
	var invalidErr *EmailInvalidError
	if err := ValidateEmail(email); errors.As(err, &invalidErr) {
		return invalidErr.Message
	}
	return defaultMsg
}

// GetPasswordValidationError adapts ValidatePassword into a "message or
// default" form for UI pre-validation.
func GetPasswordValidationError(password, username, defaultMsg string) string {
	var invalidErr *PasswordInvalidError
	if err := ValidatePassword(password, username); errors.As(err, &invalidErr) {
		return invalidErr.Message
	}
	return defaultMsg
}
