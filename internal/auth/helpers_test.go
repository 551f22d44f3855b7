package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://keycloak.test/realms/compass"
	testAudience = "compass-api"
	testKeyID    = "test-key"
)

// testIDP is a fake identity provider: a signing key plus a JWKS endpoint.
type testIDP struct {
	key    *rsa.PrivateKey
	server *httptest.Server
}

func newTestIDP(t *testing.T) *testIDP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pub, err := jwk.FromRaw(&key.PublicKey)
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, testKeyID))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, jwa.RS256))

	keyset := jwk.NewSet()
	require.NoError(t, keyset.AddKey(pub))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(keyset)
	}))
	t.Cleanup(server.Close)

	return &testIDP{key: key, server: server}
}

func (idp *testIDP) jwksURL() string { return idp.server.URL + "/jwks" }

func (idp *testIDP) verifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(context.Background(), idp.jwksURL(), testIssuer, testAudience)
	require.NoError(t, err)
	return v
}

// mint signs a token with the given subject and extra claims.
func (idp *testIDP) mint(t *testing.T, subject string, claims map[string]any) string {
	t.Helper()

	token := jwt.New()
	require.NoError(t, token.Set(jwt.IssuerKey, testIssuer))
	require.NoError(t, token.Set(jwt.AudienceKey, testAudience))
	require.NoError(t, token.Set(jwt.SubjectKey, subject))
	require.NoError(t, token.Set(jwt.IssuedAtKey, time.Now()))
	require.NoError(t, token.Set(jwt.ExpirationKey, time.Now().Add(time.Hour)))
	for k, v := range claims {
		require.NoError(t, token.Set(k, v))
	}

	key, err := jwk.FromRaw(idp.key)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, testKeyID))

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, key))
	require.NoError(t, err)
	return string(signed)
}
