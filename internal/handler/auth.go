package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gratefultime/journal-api/internal/apple"
	"github.com/gratefultime/journal-api/internal/service"
)

// AuthHandler manages signup and login endpoints.
type AuthHandler struct {
	accounts *service.AccountService
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(accounts *service.AccountService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, logger: logger}
}

type signupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type appleLoginRequest struct {
	IdentityToken string `json:"identityToken"`
	AppleUserID   string `json:"appleUserId"`
	Email         string `json:"email"`
	FullName      string `json:"fullName"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	IsNewUser *bool  `json:"isNewUser,omitempty"`
}

// Signup creates a credential-based account.
// POST /signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, _, err := h.accounts.Signup(r.Context(), service.SignupInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		h.writeAccountError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, tokenResponse{Token: token})
}

// Login verifies credentials and returns a bearer token.
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, _, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAccountError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// AppleLogin verifies an Apple identity token and signs the bound user
// in, creating the account on first sign-in.
// POST /apple-login
func (h *AuthHandler) AppleLogin(w http.ResponseWriter, r *http.Request) {
	var req appleLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, _, isNew, err := h.accounts.AppleLogin(r.Context(), service.AppleLoginInput{
		IdentityToken: req.IdentityToken,
		AppleUserID:   req.AppleUserID,
		Email:         req.Email,
		FullName:      req.FullName,
	})
	if err != nil {
		h.writeAccountError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token, IsNewUser: &isNew})
}

// writeAccountError maps account service errors to HTTP responses.
// Every identity verification failure collapses to the same 401 body so
// the caller learns nothing about keys, signatures or claims.
func (h *AuthHandler) writeAccountError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *service.ValidationError

	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Message, vErr.Field)
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusBadRequest, "Email already registered", "email")
	case errors.Is(err, service.ErrUsernameTaken):
		writeError(w, http.StatusBadRequest, "Username already taken", "username")
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User does not exist", "email")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid password", "password")
	case errors.Is(err, apple.ErrTokenInvalid),
		errors.Is(err, apple.ErrIdentityMismatch),
		errors.Is(err, apple.ErrUnknownKey),
		errors.Is(err, apple.ErrUpstream):
		h.logger.Warn("apple identity verification failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusUnauthorized, "Invalid identity token", "")
	default:
		h.logger.Error("account request failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Internal server error", "")
	}
}
