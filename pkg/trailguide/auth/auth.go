// Package auth decides whether an HTTP request may perform a content
// operation. The production authorizer verifies bearer JWTs (HS256) and
// checks issuer, audience, and OAuth-style space-delimited scopes; the static
// authorizer grants everything and exists for local development and tests.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/jwtauth"
)

// ErrUnauthorized is returned for any request that fails authorization;
// handlers render it as a 401 without detail.
var ErrUnauthorized = errors.New("unauthorized")

// Authorizer checks a request against a required scope.
type Authorizer interface {
	Authorize(r *http.Request, requiredScope string) error
}

// Static grants every request every scope. Used when no auth secret is
// configured; never run a public deployment this way.
type Static struct{}

func (Static) Authorize(*http.Request, string) error { return nil }

// JWTConfig configures the JWT authorizer.
type JWTConfig struct {
	// Secret is the HS256 signing key shared with the token issuer.
	Secret string
	// Issuer, when non-empty, must match the token's iss claim.
	Issuer string
	// Audience, when non-empty, must appear in the token's aud claim.
	Audience string
}

// JWT verifies HS256 bearer tokens and their scope claim.
type JWT struct {
	auth *jwtauth.JWTAuth
	cfg  JWTConfig
}

// NewJWT builds a JWT authorizer from config.
func NewJWT(cfg JWTConfig) (*JWT, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth secret is required")
	}
	return &JWT{
		auth: jwtauth.New("HS256", []byte(cfg.Secret), nil),
		cfg:  cfg,
	}, nil
}

// Authorize verifies the request's bearer token (Authorization header or
// jwt cookie) and checks that its scope claim grants requiredScope.
func (j *JWT) Authorize(r *http.Request, requiredScope string) error {
	token, err := jwtauth.VerifyRequest(j.auth, r, jwtauth.TokenFromHeader, jwtauth.TokenFromCookie)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	if j.cfg.Issuer != "" && token.Issuer() != j.cfg.Issuer {
		return fmt.Errorf("%w: issuer mismatch", ErrUnauthorized)
	}
	if j.cfg.Audience != "" && !contains(token.Audience(), j.cfg.Audience) {
		return fmt.Errorf("%w: audience mismatch", ErrUnauthorized)
	}

	if !contains(tokenScopes(token), requiredScope) {
		return fmt.Errorf("%w: missing scope %s", ErrUnauthorized, requiredScope)
	}
	return nil
}

// tokenScopes extracts the space-delimited scope claim.
func tokenScopes(token interface{ Get(string) (any, bool) }) []string {
	raw, ok := token.Get("scope")
	if !ok {
		return nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil
	}
	return strings.Fields(s)
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
