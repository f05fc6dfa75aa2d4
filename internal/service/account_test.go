package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gratefultime/journal-api/internal/apple"
	"github.com/gratefultime/journal-api/internal/auth"
	"github.com/gratefultime/journal-api/internal/metrics"
)

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	return tokens
}

func newAccountService(t *testing.T, users UserStore, verifier IdentityVerifier, devMode bool) (*AccountService, *auth.TokenService, *metrics.InMemory) {
	t.Helper()
	tokens := newTestTokens(t)
	recorder := metrics.NewInMemory()
	return NewAccountService(users, tokens, verifier, devMode, recorder), tokens, recorder
}

func TestSignup_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     SignupInput
		wantField string
	}{
		{"empty email", SignupInput{Email: "", Username: "alice", Password: "secret1"}, "email"},
		{"bad email", SignupInput{Email: "not-an-email", Username: "alice", Password: "secret1"}, "email"},
		{"short username", SignupInput{Email: "a@b.com", Username: "ab", Password: "secret1"}, "username"},
		{"bad username chars", SignupInput{Email: "a@b.com", Username: "al ice!", Password: "secret1"}, "username"},
		{"short password", SignupInput{Email: "a@b.com", Username: "alice", Password: "12345"}, "password"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, _, _ := newAccountService(t, newFakeUserStore(), nil, false)

			_, _, err := svc.Signup(context.Background(), tt.input)

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Signup() error = %v, want ValidationError", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", vErr.Field, tt.wantField)
			}
		})
	}
}

func TestSignup_IssuesValidToken(t *testing.T) {
	t.Parallel()

	users := newFakeUserStore()
	svc, tokens, recorder := newAccountService(t, users, nil, false)

	token, userID, err := svc.Signup(context.Background(), SignupInput{
		Email:    "Alice@Example.com",
		Username: "Alice",
		Password: "secret1",
	})
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	got, err := tokens.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != userID {
		t.Errorf("token encodes %q, want %q", got, userID)
	}

	// Email and username are normalized to lower case at rest.
	user, err := users.GetUserByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.Email == nil || *user.Email != "alice@example.com" {
		t.Errorf("stored email = %v, want alice@example.com", user.Email)
	}
	if user.Username != "alice" {
		t.Errorf("stored username = %q, want alice", user.Username)
	}
	if user.PreferredUnlockTime != 20 {
		t.Errorf("PreferredUnlockTime = %d, want default 20", user.PreferredUnlockTime)
	}

	if recorder.Snapshot().TokensIssued != 1 {
		t.Errorf("TokensIssued = %d, want 1", recorder.Snapshot().TokensIssued)
	}
}

func TestSignup_CaseInsensitiveConflicts(t *testing.T) {
	t.Parallel()

	svc, _, _ := newAccountService(t, newFakeUserStore(), nil, false)
	ctx := context.Background()

	if _, _, err := svc.Signup(ctx, SignupInput{Email: "alice@example.com", Username: "alice", Password: "secret1"}); err != nil {
		t.Fatalf("first Signup() error = %v", err)
	}

	_, _, err := svc.Signup(ctx, SignupInput{Email: "ALICE@example.com", Username: "bob", Password: "secret1"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("Signup() with same email error = %v, want ErrEmailTaken", err)
	}

	_, _, err = svc.Signup(ctx, SignupInput{Email: "bob@example.com", Username: "ALICE", Password: "secret1"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("Signup() with same username error = %v, want ErrUsernameTaken", err)
	}
}

func TestSignup_ConcurrentSameEmail(t *testing.T) {
	t.Parallel()

	svc, _, _ := newAccountService(t, newFakeUserStore(), nil, false)
	ctx := context.Background()

	start := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup

	for _, username := range []string{"alice", "bob"} {
		username := username
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := svc.Signup(ctx, SignupInput{
				Email:    "alice@example.com",
				Username: username,
				Password: "secret1",
			})
			errs <- err
		}()
	}

	close(start)
	wg.Wait()
	close(errs)

	var successes, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrEmailTaken):
			conflicts++
		default:
			t.Errorf("Signup() error = %v, want nil or ErrEmailTaken", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Errorf("got %d successes and %d conflicts, want exactly one of each", successes, conflicts)
	}
}

func TestSignupLogin_PasswordWhitespacePreserved(t *testing.T) {
	t.Parallel()

	svc, _, _ := newAccountService(t, newFakeUserStore(), nil, false)
	ctx := context.Background()

	if _, _, err := svc.Signup(ctx, SignupInput{Email: "alice@example.com", Username: "alice", Password: " secret1 "}); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	if _, _, err := svc.Login(ctx, "alice@example.com", " secret1 "); err != nil {
		t.Errorf("Login() with the exact password error = %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login() with trimmed password error = %v, want ErrInvalidCredentials", err)
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	svc, tokens, _ := newAccountService(t, newFakeUserStore(), nil, false)
	ctx := context.Background()

	if _, _, err := svc.Signup(ctx, SignupInput{Email: "alice@example.com", Username: "alice", Password: "secret1"}); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	t.Run("success", func(t *testing.T) {
		token, userID, err := svc.Login(ctx, "Alice@Example.com", "secret1")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		got, err := tokens.Validate(token)
		if err != nil || got != userID {
			t.Errorf("token validation got (%q, %v), want (%q, nil)", got, err, userID)
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "nobody@example.com", "secret1")
		if !errors.Is(err, ErrUserNotFound) {
			t.Errorf("Login() error = %v, want ErrUserNotFound", err)
		}
	})

	t.Run("invalid email", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "garbage", "secret1")
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.Field != "email" {
			t.Errorf("Login() error = %v, want email ValidationError", err)
		}
	})

	t.Run("empty password", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "alice@example.com", "")
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.Field != "password" {
			t.Errorf("Login() error = %v, want password ValidationError", err)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "alice@example.com", "wrongpass")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
		}
	})
}

func TestAppleLogin_FirstSignInCreatesUser(t *testing.T) {
	t.Parallel()

	users := newFakeUserStore()
	verifier := &fakeVerifier{claims: &apple.IdentityClaims{Subject: "apple-1", Email: "alice@example.com"}}
	svc, tokens, _ := newAccountService(t, users, verifier, false)

	token, userID, isNew, err := svc.AppleLogin(context.Background(), AppleLoginInput{
		IdentityToken: "opaque",
		AppleUserID:   "apple-1",
		FullName:      "Alice Smith",
	})
	if err != nil {
		t.Fatalf("AppleLogin() error = %v", err)
	}
	if !isNew {
		t.Error("first sign-in should report a new user")
	}
	if got, err := tokens.Validate(token); err != nil || got != userID {
		t.Errorf("token validation got (%q, %v)", got, err)
	}

	user, err := users.GetUserByAppleID(context.Background(), "apple-1")
	if err != nil {
		t.Fatalf("GetUserByAppleID() error = %v", err)
	}
	if user.Email == nil || *user.Email != "alice@example.com" {
		t.Errorf("stored email = %v, want alice@example.com", user.Email)
	}
	if user.Username != "alicesmith" {
		t.Errorf("derived username = %q, want alicesmith", user.Username)
	}
	if user.PasswordHash != nil {
		t.Error("federated account should have no password hash")
	}
}

func TestAppleLogin_SecondSignInIsIdempotent(t *testing.T) {
	t.Parallel()

	users := newFakeUserStore()
	verifier := &fakeVerifier{claims: &apple.IdentityClaims{Subject: "apple-1", Email: "alice@example.com"}}
	svc, _, _ := newAccountService(t, users, verifier, false)
	ctx := context.Background()

	_, firstID, _, err := svc.AppleLogin(ctx, AppleLoginInput{AppleUserID: "apple-1"})
	if err != nil {
		t.Fatalf("first AppleLogin() error = %v", err)
	}

	_, secondID, isNew, err := svc.AppleLogin(ctx, AppleLoginInput{AppleUserID: "apple-1"})
	if err != nil {
		t.Fatalf("second AppleLogin() error = %v", err)
	}
	if isNew {
		t.Error("second sign-in should not report a new user")
	}
	if firstID != secondID {
		t.Errorf("user ids differ across sign-ins: %q vs %q", firstID, secondID)
	}
}

func TestAppleLogin_ReactivatesInactiveUser(t *testing.T) {
	t.Parallel()

	users := newFakeUserStore()
	verifier := &fakeVerifier{claims: &apple.IdentityClaims{Subject: "apple-1", Email: "alice@example.com"}}
	svc, _, _ := newAccountService(t, users, verifier, false)
	ctx := context.Background()

	_, userID, _, err := svc.AppleLogin(ctx, AppleLoginInput{AppleUserID: "apple-1"})
	if err != nil {
		t.Fatalf("AppleLogin() error = %v", err)
	}

	if err := users.SetUserActive(ctx, userID, false); err != nil {
		t.Fatalf("SetUserActive() error = %v", err)
	}

	if _, _, _, err := svc.AppleLogin(ctx, AppleLoginInput{AppleUserID: "apple-1"}); err != nil {
		t.Fatalf("AppleLogin() on inactive account error = %v", err)
	}

	user, err := users.GetUserByID(ctx, userID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if !user.Active {
		t.Error("successful sign-in should reactivate the account")
	}
}

func TestAppleLogin_VerificationFailurePropagates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{"mismatch", apple.ErrIdentityMismatch},
		{"upstream", apple.ErrUpstream},
		{"unknown key", apple.ErrUnknownKey},
		{"invalid token", apple.ErrTokenInvalid},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			verifier := &fakeVerifier{err: tt.err}
			svc, _, _ := newAccountService(t, newFakeUserStore(), verifier, false)

			_, _, _, err := svc.AppleLogin(context.Background(), AppleLoginInput{AppleUserID: "apple-1"})
			if !errors.Is(err, tt.err) {
				t.Errorf("AppleLogin() error = %v, want %v", err, tt.err)
			}
		})
	}
}

func TestAppleLogin_EmailRequiredOutsideDevMode(t *testing.T) {
	t.Parallel()

	verifier := &fakeVerifier{claims: &apple.IdentityClaims{Subject: "apple-1"}}

	t.Run("production requires email", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newAccountService(t, newFakeUserStore(), verifier, false)

		_, _, _, err := svc.AppleLogin(context.Background(), AppleLoginInput{AppleUserID: "apple-1"})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.Field != "email" {
			t.Errorf("AppleLogin() error = %v, want email ValidationError", err)
		}
	})

	t.Run("dev mode does not", func(t *testing.T) {
		t.Parallel()

		users := newFakeUserStore()
		svc, _, _ := newAccountService(t, users, verifier, true)

		_, userID, _, err := svc.AppleLogin(context.Background(), AppleLoginInput{AppleUserID: "apple-1"})
		if err != nil {
			t.Fatalf("AppleLogin() in dev mode error = %v", err)
		}

		user, err := users.GetUserByID(context.Background(), userID)
		if err != nil {
			t.Fatalf("GetUserByID() error = %v", err)
		}
		if user.Email != nil {
			t.Errorf("stored email = %v, want nil", user.Email)
		}
	})
}

func TestAppleLogin_EmailBoundElsewhere(t *testing.T) {
	t.Parallel()

	users := newFakeUserStore()
	verifier := &fakeVerifier{claims: &apple.IdentityClaims{Subject: "apple-1", Email: "alice@example.com"}}
	svc, _, _ := newAccountService(t, users, verifier, false)
	ctx := context.Background()

	if _, _, err := svc.Signup(ctx, SignupInput{Email: "alice@example.com", Username: "alice", Password: "secret1"}); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	_, _, _, err := svc.AppleLogin(ctx, AppleLoginInput{AppleUserID: "apple-1"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("AppleLogin() error = %v, want ErrEmailTaken", err)
	}
}

func TestAppleLogin_UsernameCollisionGetsSuffix(t *testing.T) {
	t.Parallel()

	users := newFakeUserStore()
	verifier := &fakeVerifier{claims: &apple.IdentityClaims{Subject: "apple-1", Email: "bob@example.com"}}
	svc, _, _ := newAccountService(t, users, verifier, false)
	ctx := context.Background()

	if _, _, err := svc.Signup(ctx, SignupInput{Email: "alice@example.com", Username: "bobsmith", Password: "secret1"}); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	_, userID, _, err := svc.AppleLogin(ctx, AppleLoginInput{AppleUserID: "apple-1", FullName: "Bob Smith"})
	if err != nil {
		t.Fatalf("AppleLogin() error = %v", err)
	}

	user, err := users.GetUserByID(ctx, userID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.Username == "bobsmith" {
		t.Error("colliding username should have been suffixed")
	}
	if len(user.Username) <= len("bobsmith") {
		t.Errorf("suffixed username %q should be longer than the base", user.Username)
	}
}
