package api

import "github.com/tendant/simple-accounts/pkg/accounts"

// RegisterParams represents the body of an account creation request
type RegisterParams struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// RegisterInput binds the account creation request
type RegisterInput struct {
	Payload *RegisterParams `in:"body=json"`
}

// RegisterResponse represents the response after creating an account
type RegisterResponse struct {
	Username      string `json:"username"`
	ActivationKey string `json:"activation_key"`
}

// CheckAccountResponse lists the fields already held by an existing account
type CheckAccountResponse struct {
	Conflicts []string `json:"conflicts"`
}

// PasswordResetRequest represents the request to issue a password reset link
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirmRequest represents the request to consume a reset token
type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// MessageResponse represents a plain success response
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ValidationErrorResponse carries the aggregated per-field failures of a
// rejected update
type ValidationErrorResponse struct {
	Error       string              `json:"error"`
	FieldErrors accounts.FieldErrors `json:"field_errors"`
}
