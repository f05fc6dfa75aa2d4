// Package apple verifies Sign in with Apple identity tokens against the
// issuer's rotating published keys.
package apple

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// claimLeeway is the clock-skew allowance for timestamp claims.
const claimLeeway = 300 * time.Second

var (
	// ErrUnknownKey indicates the token's kid is absent from the issuer's
	// key set even after a refetch.
	ErrUnknownKey = errors.New("no signing key found for kid")
	// ErrUpstream indicates the issuer's key set could not be fetched or
	// parsed. Verification fails closed on this error.
	ErrUpstream = errors.New("identity provider unavailable")
	// ErrTokenInvalid indicates the identity token failed signature or
	// claim validation.
	ErrTokenInvalid = errors.New("identity token invalid")
	// ErrIdentityMismatch indicates the token's subject does not match the
	// external user id the caller claimed.
	ErrIdentityMismatch = errors.New("identity token subject mismatch")
)

// IdentityClaims are the verified claims extracted from an identity token.
type IdentityClaims struct {
	Subject string
	Email   string
}

type identityTokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier verifies identity tokens issued by Apple for this application.
// It caches the issuer's public keys by kid and refetches the full set
// when a presented kid is unknown, coalescing concurrent refetches.
type Verifier struct {
	keysURL      string
	issuer       string
	audience     string
	fetchTimeout time.Duration
	client       *http.Client
	logger       *slog.Logger

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time

	fetchGroup singleflight.Group
}

// NewVerifier creates a Verifier for the given issuer configuration.
func NewVerifier(keysURL, issuer, audience string, fetchTimeout time.Duration, logger *slog.Logger) *Verifier {
	return &Verifier{
		keysURL:      keysURL,
		issuer:       issuer,
		audience:     audience,
		fetchTimeout: fetchTimeout,
		client:       &http.Client{Timeout: fetchTimeout},
		logger:       logger,
		keys:         make(map[string]*rsa.PublicKey),
	}
}

// Verify checks that identityToken was issued by the trusted issuer for
// this application and that its subject matches claimedUserID.
//
// Failures are ErrUnknownKey, ErrUpstream, ErrTokenInvalid or
// ErrIdentityMismatch. HTTP-facing callers must collapse all of them into
// one generic unauthorized response.
func (v *Verifier) Verify(ctx context.Context, identityToken, claimedUserID string) (*IdentityClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithLeeway(claimLeeway),
	)

	token, err := parser.ParseWithClaims(identityToken, &identityTokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: missing kid header", ErrTokenInvalid)
		}
		return v.resolveKey(ctx, kid)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownKey):
			return nil, ErrUnknownKey
		case errors.Is(err, ErrUpstream):
			return nil, ErrUpstream
		default:
			return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
		}
	}

	claims, ok := token.Claims.(*identityTokenClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	// Anti-spoofing: the caller cannot present someone else's token while
	// claiming their own external id, or vice versa.
	if claims.Subject != claimedUserID {
		return nil, ErrIdentityMismatch
	}

	return &IdentityClaims{Subject: claims.Subject, Email: claims.Email}, nil
}

// resolveKey returns the public key for kid. On a cache miss the full key
// set is refetched once; concurrent misses share a single fetch.
func (v *Verifier) resolveKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	v.mu.RUnlock()
	if ok {
		return key, nil
	}

	// Coalesce concurrent refetches during key rotation.
	_, err, _ := v.fetchGroup.Do("keyset", func() (interface{}, error) {
		return nil, v.refreshKeys(ctx)
	})
	if err != nil {
		return nil, err
	}

	v.mu.RLock()
	key, ok = v.keys[kid]
	v.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownKey
	}
	return key, nil
}

// refreshKeys fetches the issuer's published key set and replaces the
// cache wholesale. On any failure the cache is left untouched.
func (v *Verifier) refreshKeys(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, v.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.keysURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: key endpoint returned %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	keys, err := parseKeySet(body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	// Do not commit a refresh for a request that was cancelled mid-fetch;
	// a stale write here could race a restart.
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrUpstream, ctx.Err())
	}

	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = time.Now()
	v.mu.Unlock()

	if v.logger != nil {
		v.logger.Info("identity key set refreshed", "keys", len(keys))
	}
	return nil
}

// KeyCount reports the number of cached verification keys.
func (v *Verifier) KeyCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}
