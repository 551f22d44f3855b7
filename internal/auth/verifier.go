// Package auth verifies bearer tokens issued by the identity provider and
// resolves the caller's identity. Token issuance happens elsewhere (Keycloak);
// only the verification contract lives here.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/empire-compass/compass-server/internal/model"
)

// AdminRole is the realm role that pre-establishes admin status.
const AdminRole = "admin"

// Verifier validates JWTs against the provider's JWKS endpoint. Keys are
// cached and refreshed to survive key rotation.
type Verifier struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

// NewVerifier fetches the JWKS once to validate configuration and returns a
// verifier with an auto-refreshing key cache.
func NewVerifier(ctx context.Context, jwksURL, issuer, audience string) (*Verifier, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("register JWKS URL: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("fetch JWKS from %s: %w", jwksURL, err)
	}
	return &Verifier{jwksURL: jwksURL, cache: cache, issuer: issuer, audience: audience}, nil
}

// Verify checks signature, expiry, issuer, and audience, and extracts the
// caller identity from the claims.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*model.Identity, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("get JWKS: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	id := &model.Identity{Subject: token.Subject()}
	if email, ok := token.Get("email"); ok {
		id.Email, _ = email.(string)
	}
	if name, ok := token.Get("name"); ok {
		id.Name, _ = name.(string)
	}
	id.Roles = realmRoles(token)
	id.Admin = id.HasRole(AdminRole)
	return id, nil
}

// realmRoles extracts Keycloak's realm_access.roles claim.
func realmRoles(token jwt.Token) []string {
	raw, ok := token.Get("realm_access")
	if !ok {
		return nil
	}
	access, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	list, ok := access["roles"].([]any)
	if !ok {
		return nil
	}
	roles := make([]string, 0, len(list))
	for _, r := range list {
		if s, ok := r.(string); ok {
			roles = append(roles, s)
		}
	}
	return roles
}
