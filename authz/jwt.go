// Package authz provides optional JWKS-backed bearer token verification
// gating the store's provideFeedback and validateTask mutators. When no
// Verifier is configured, both mutators behave exactly as specified for
// an open caller.
package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims is the subset of a validated token's claims flowcrew acts on.
type Claims struct {
	Subject string
	Role    string
	TeamID  string
	Custom  map[string]any
}

// Verifier checks a bearer token and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// JWTVerifier validates JWTs against a JWKS endpoint, auto-refreshed
// every 15 minutes to handle key rotation.
type JWTVerifier struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

// NewJWTVerifier registers jwksURL for auto-refresh and performs an
// initial fetch to validate configuration eagerly.
func NewJWTVerifier(ctx context.Context, jwksURL, issuer, audience string) (*JWTVerifier, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("authz: register JWKS URL: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("authz: fetch JWKS from %s: %w", jwksURL, err)
	}
	return &JWTVerifier{jwksURL: jwksURL, cache: cache, issuer: issuer, audience: audience}, nil
}

// Verify checks signature, expiry, issuer, and audience, then extracts
// claims relevant to feedback/validation entitlement.
func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return Claims{}, fmt.Errorf("authz: fetch JWKS: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("authz: invalid token: %w", err)
	}

	claims := Claims{Subject: token.Subject(), Custom: map[string]any{}}
	if role, ok := token.Get("role"); ok {
		if s, ok := role.(string); ok {
			claims.Role = s
		}
	}
	if teamID, ok := token.Get("team_id"); ok {
		if s, ok := teamID.(string); ok {
			claims.TeamID = s
		}
	}
	for iter := token.Iterate(ctx); iter.Next(ctx); {
		pair := iter.Pair()
		key, _ := pair.Key.(string)
		switch key {
		case "sub", "role", "team_id", "iss", "aud", "exp", "iat", "nbf":
		default:
			claims.Custom[key] = pair.Value
		}
	}
	return claims, nil
}

// RequiredRole gates access to feedback/validation on the team the
// caller is entitled to act on. Unconfigured (the zero value, i.e.
// Verifier is nil) means open to any caller.
type RequiredRole struct {
	Role   string
	TeamID string
}

// Allows reports whether claims entitle the caller to feedback/validate
// the given team.
func (r RequiredRole) Allows(claims Claims) bool {
	if r.Role != "" && claims.Role != r.Role {
		return false
	}
	if r.TeamID != "" && claims.TeamID != r.TeamID {
		return false
	}
	return true
}
