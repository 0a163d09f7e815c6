package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ggicci/httpin"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"
	"github.com/tendant/simple-accounts/pkg/accounts"
	"github.com/tendant/simple-accounts/pkg/client"
)

// Handler exposes the account service over HTTP
type Handler struct {
	service *accounts.AccountService
}

// NewHandler creates a new account API handler
func NewHandler(service *accounts.AccountService) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the authenticated account routes. The caller is
// expected to wrap the router with jwtauth verification middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/accounts", h.GetAccounts)
	r.Patch("/accounts/{username}", h.UpdateAccount)
}

// RegisterPublicRoutes registers the routes reachable without a session:
// signup, existence pre-checks and the token-consuming workflows.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.With(httpin.NewInput(RegisterInput{})).Post("/register", h.Register)
	r.Get("/accounts/check", h.CheckAccount)
	r.Post("/activate/{key}", h.Activate)
	r.Post("/password_reset", h.RequestPasswordReset)
	r.Post("/password_reset_confirm", h.ConfirmPasswordReset)
	r.Post("/email_change_confirm/{key}", h.ConfirmEmailChange)
}

// GetAccounts handles GET /accounts?username=a,b&view=shared
func (h *Handler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	viewer, err := getViewerFromContext(r)
	if err != nil {
		slog.Error("Failed to get viewer from context", "error", err)
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: "Unauthorized"})
		return
	}

	var usernames []string
	if raw := r.URL.Query().Get("username"); raw != "" {
		usernames = strings.Split(raw, ",")
	}
	view := r.URL.Query().Get("view")

	views, err := h.service.GetAccountSettings(r.Context(), viewer, usernames, nil, view)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, views)
}

// UpdateAccount handles PATCH /accounts/{username}
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	viewer, err := getViewerFromContext(r)
	if err != nil {
		slog.Error("Failed to get viewer from context", "error", err)
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: "Unauthorized"})
		return
	}

	var updates map[string]any
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}

	username := chi.URLParam(r, "username")
	if err := h.service.UpdateAccountSettings(r.Context(), viewer, updates, username); err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, MessageResponse{Message: "Account updated"})
}

// Register handles POST /register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	input := r.Context().Value(httpin.Input).(*RegisterInput)
	if input.Payload == nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}

	params := accounts.RegisterParams{}
	copier.Copy(&params, input.Payload)

	activationKey, err := h.service.Register(r.Context(), params)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, RegisterResponse{
		Username:      params.Username,
		ActivationKey: activationKey,
	})
}

// CheckAccount handles GET /accounts/check?username=&email=
func (h *Handler) CheckAccount(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	email := r.URL.Query().Get("email")

	conflicts, err := h.service.CheckAccountExists(r.Context(), username, email)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, CheckAccountResponse{Conflicts: conflicts})
}

// Activate handles POST /activate/{key}
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.service.ActivateAccount(r.Context(), key); err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, MessageResponse{Message: "Account activated"})
}

// RequestPasswordReset handles POST /password_reset
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.Email == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Email is required"})
		return
	}

	err := h.service.RequestPasswordChange(r.Context(), req.Email, r.Host, r.TLS != nil)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, MessageResponse{Message: "Password reset email sent"})
}

// ConfirmPasswordReset handles POST /password_reset_confirm
func (h *Handler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.Token == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Token is required"})
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, MessageResponse{Message: "Password updated"})
}

// ConfirmEmailChange handles POST /email_change_confirm/{key}
func (h *Handler) ConfirmEmailChange(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.service.ConfirmEmailChange(r.Context(), key); err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, MessageResponse{Message: "Email change confirmed"})
}

// renderError maps service errors onto HTTP responses. Expected request
// errors keep their user-facing messages; anything else becomes a 500.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *accounts.ValidationError
	if errors.As(err, &validationErr) {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ValidationErrorResponse{
			Error:       "Validation failed",
			FieldErrors: validationErr.FieldErrors,
		})
		return
	}

	var updateErr *accounts.UpdateError
	if errors.As(err, &updateErr) {
		message := updateErr.UserMessage
		if message == "" {
			message = "Failed to update account"
		}
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: message})
		return
	}

	status := http.StatusBadRequest
	message := err.Error()
	switch {
	case errors.Is(err, accounts.ErrUserNotFound):
		status = http.StatusNotFound
		message = "User not found"
	case errors.Is(err, accounts.ErrUserNotAuthorized):
		status = http.StatusForbidden
		message = "Not authorized"
	case errors.Is(err, accounts.ErrAccountCreationNotAllowed):
		status = http.StatusForbidden
		message = "Account creation is not allowed"
	case errors.Is(err, accounts.ErrUserAlreadyExists):
		status = http.StatusConflict
		message = "An account with that username or email already exists"
	case !accounts.IsRequestError(err):
		slog.Error("Unexpected account API error", "error", err)
		status = http.StatusInternalServerError
		message = "An internal error occurred"
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message})
}

// getViewerFromContext extracts the acting identity bound by the AuthUser
// middleware
func getViewerFromContext(r *http.Request) (accounts.Identity, error) {
	authUser, ok := r.Context().Value(client.AuthUserKey).(*client.AuthUser)
	if !ok || authUser == nil {
		return accounts.Identity{}, errors.New("no auth user found in context")
	}
	return accounts.Identity{
		Username: authUser.Username,
		Email:    authUser.Email,
		IsStaff:  authUser.IsStaff,
	}, nil
}
