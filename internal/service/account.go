package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gratefultime/journal-api/internal/apple"
	"github.com/gratefultime/journal-api/internal/auth"
	"github.com/gratefultime/journal-api/internal/metrics"
	"github.com/gratefultime/journal-api/internal/model"
	"github.com/gratefultime/journal-api/internal/repository"
)

// Account service errors.
var (
	ErrUserNotFound       = errors.New("user does not exist")
	ErrInvalidCredentials = errors.New("invalid password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
)

var (
	emailRegex    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

const (
	minUsernameLen = 3
	minPasswordLen = 6
	// defaultUnlockHour is the hour of day new accounts unlock their journal.
	defaultUnlockHour  = 20
	maxUsernameRetries = 3
)

// UserStore is the persistence surface the account service needs.
// *repository.Repository satisfies it.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByAppleID(ctx context.Context, appleUserID string) (*model.User, error)
	SetUserActive(ctx context.Context, id string, active bool) error
	UpdateUnlockTime(ctx context.Context, id string, hour int) error
}

// IdentityVerifier verifies an externally issued identity token and binds
// it to the caller-claimed external user id.
type IdentityVerifier interface {
	Verify(ctx context.Context, identityToken, claimedUserID string) (*apple.IdentityClaims, error)
}

// AccountService owns signup, login and federated login.
type AccountService struct {
	users    UserStore
	tokens   *auth.TokenService
	verifier IdentityVerifier
	devMode  bool
	metrics  metrics.Recorder
}

// NewAccountService creates an AccountService.
func NewAccountService(users UserStore, tokens *auth.TokenService, verifier IdentityVerifier, devMode bool, recorder metrics.Recorder) *AccountService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AccountService{
		users:    users,
		tokens:   tokens,
		verifier: verifier,
		devMode:  devMode,
		metrics:  recorder,
	}
}

// SignupInput defines input for credential-based signup.
type SignupInput struct {
	Email    string
	Username string
	Password string
}

// Signup creates a credential-based account and returns a bearer token.
func (s *AccountService) Signup(ctx context.Context, input SignupInput) (token, userID string, err error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.ToLower(strings.TrimSpace(input.Username))
	// Passwords are stored and checked exactly as given, whitespace included.
	password := input.Password

	if email == "" || !emailRegex.MatchString(email) {
		return "", "", validationErr("email", "Enter a valid email")
	}
	if len(username) < minUsernameLen {
		return "", "", validationErr("username", "Username must be at least 3 characters")
	}
	if !usernameRegex.MatchString(username) {
		return "", "", validationErr("username", "Username can only contain letters and numbers")
	}
	if len(password) < minPasswordLen {
		return "", "", validationErr("password", "Password must be at least 6 characters")
	}

	// Friendly pre-checks; the unique indexes still catch concurrent races.
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return "", "", ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return "", "", fmt.Errorf("check email: %w", err)
	}
	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return "", "", ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return "", "", fmt.Errorf("check username: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", "", fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:                  uuid.NewString(),
		Email:               &email,
		Username:            username,
		PasswordHash:        &hash,
		Active:              true,
		PreferredUnlockTime: defaultUnlockHour,
		CreatedAt:           time.Now().UTC(),
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return "", "", ErrEmailTaken
		case errors.Is(err, repository.ErrUsernameExists):
			return "", "", ErrUsernameTaken
		default:
			return "", "", fmt.Errorf("create user: %w", err)
		}
	}

	return s.issueToken(user.ID)
}

// Login verifies credentials and returns a bearer token.
func (s *AccountService) Login(ctx context.Context, email, password string) (token, userID string, err error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if email == "" || !emailRegex.MatchString(email) {
		return "", "", validationErr("email", "Enter a valid email")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", "", ErrUserNotFound
		}
		return "", "", fmt.Errorf("lookup user: %w", err)
	}

	if password == "" {
		return "", "", validationErr("password", "Enter your password")
	}
	if user.PasswordHash == nil {
		// Federated-only account; no password to check.
		return "", "", ErrInvalidCredentials
	}

	match, err := auth.VerifyPassword(password, *user.PasswordHash)
	if err != nil || !match {
		return "", "", ErrInvalidCredentials
	}

	return s.issueToken(user.ID)
}

// AppleLoginInput defines input for federated login.
type AppleLoginInput struct {
	IdentityToken string
	AppleUserID   string
	Email         string
	FullName      string
}

// AppleLogin verifies an Apple identity token and returns a bearer token
// for the bound local account, creating it on first sign-in.
//
// Verification failures surface as the apple package's errors; callers
// must collapse them to one generic unauthorized response.
func (s *AccountService) AppleLogin(ctx context.Context, input AppleLoginInput) (token, userID string, isNew bool, err error) {
	claims, err := s.verifier.Verify(ctx, input.IdentityToken, input.AppleUserID)
	if err != nil {
		return "", "", false, err
	}

	user, err := s.users.GetUserByAppleID(ctx, claims.Subject)
	if err == nil {
		// Deleted accounts come back to life on a successful sign-in.
		if !user.Active {
			if err := s.users.SetUserActive(ctx, user.ID, true); err != nil {
				return "", "", false, fmt.Errorf("reactivate user: %w", err)
			}
		}
		token, userID, err = s.issueToken(user.ID)
		return token, userID, false, err
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return "", "", false, fmt.Errorf("lookup apple user: %w", err)
	}

	user, err = s.createAppleUser(ctx, claims, input)
	if err != nil {
		return "", "", false, err
	}

	token, userID, err = s.issueToken(user.ID)
	return token, userID, true, err
}

// createAppleUser binds a new local account to a verified Apple subject.
func (s *AccountService) createAppleUser(ctx context.Context, claims *apple.IdentityClaims, input AppleLoginInput) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		email = strings.ToLower(strings.TrimSpace(input.Email))
	}

	var emailPtr *string
	if email != "" {
		if !emailRegex.MatchString(email) {
			return nil, validationErr("email", "Enter a valid email")
		}
		if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
			return nil, ErrEmailTaken
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("check email: %w", err)
		}
		emailPtr = &email
	} else if !s.devMode {
		return nil, validationErr("email", "Email is required")
	}

	username, err := s.pickUsername(ctx, input.FullName, email)
	if err != nil {
		return nil, err
	}

	appleID := claims.Subject
	user := &model.User{
		ID:                  uuid.NewString(),
		Email:               emailPtr,
		Username:            username,
		AppleUserID:         &appleID,
		Active:              true,
		PreferredUnlockTime: defaultUnlockHour,
		CreatedAt:           time.Now().UTC(),
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrAppleIDExists):
			// Concurrent first sign-in; the other request won the insert.
			return s.users.GetUserByAppleID(ctx, claims.Subject)
		case errors.Is(err, repository.ErrEmailExists):
			return nil, ErrEmailTaken
		case errors.Is(err, repository.ErrUsernameExists):
			return nil, ErrUsernameTaken
		default:
			return nil, fmt.Errorf("create apple user: %w", err)
		}
	}

	return user, nil
}

// pickUsername derives a username from the full name or email local part,
// retrying with a random suffix on collision.
func (s *AccountService) pickUsername(ctx context.Context, fullName, email string) (string, error) {
	base := sanitizeUsername(fullName)
	if len(base) < minUsernameLen {
		if at := strings.IndexByte(email, '@'); at > 0 {
			base = sanitizeUsername(email[:at])
		}
	}
	if len(base) < minUsernameLen {
		base = "journaler"
	}

	candidate := base
	for i := 0; i < maxUsernameRetries; i++ {
		if _, err := s.users.GetUserByUsername(ctx, candidate); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return candidate, nil
			}
			return "", fmt.Errorf("check username: %w", err)
		}
		candidate = base + uuid.NewString()[:8]
	}

	// Last candidate carries a random suffix; the unique index is the
	// final arbiter.
	return candidate, nil
}

func sanitizeUsername(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *AccountService) issueToken(userID string) (string, string, error) {
	token, err := s.tokens.Issue(userID)
	if err != nil {
		return "", "", fmt.Errorf("issue token: %w", err)
	}
	s.metrics.IncTokenIssued()
	return token, userID, nil
}
