package emailchange

import "errors"

var (
	// ErrSameEmail is returned when the proposed email equals the current one
	ErrSameEmail = errors.New("Old email is the same as the new email.")

	// ErrEmailTaken is returned when the proposed email belongs to another account
	ErrEmailTaken = errors.New("An account with this e-mail already exists.")

	// ErrSendFailed is returned when the confirmation email cannot be sent
	ErrSendFailed = errors.New("Unable to send email change confirmation link. Please try again later.")

	// ErrChangeRequestNotFound is returned when no pending change matches a
	// confirmation key
	ErrChangeRequestNotFound = errors.New("email change request not found")
)
