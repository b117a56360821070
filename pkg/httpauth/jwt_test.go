// Copyright 2025 The autocore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package httpauth

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyID = "test-key-id"

func generateTestKeyPair(t *testing.T) (*rsa.PrivateKey, jwk.Set) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pub, err := jwk.FromRaw(&priv.PublicKey)
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, testKeyID))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, jwa.RS256))

	keyset := jwk.NewSet()
	require.NoError(t, keyset.AddKey(pub))
	return priv, keyset
}

func startJWKSServer(t *testing.T, keyset jwk.Set) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := json.Marshal(keyset)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func signTestToken(t *testing.T, priv *rsa.PrivateKey, issuer, audience, subject string, expiry time.Duration) string {
	t.Helper()
	token := jwt.New()
	require.NoError(t, token.Set(jwt.IssuerKey, issuer))
	require.NoError(t, token.Set(jwt.AudienceKey, audience))
	require.NoError(t, token.Set(jwt.SubjectKey, subject))
	require.NoError(t, token.Set(jwt.IssuedAtKey, time.Now().Add(-expiry)))
	require.NoError(t, token.Set(jwt.ExpirationKey, time.Now().Add(expiry)))

	key, err := jwk.FromRaw(priv)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, testKeyID))

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, key))
	require.NoError(t, err)
	return string(signed)
}

func TestNewValidator_RejectsUnreachableJWKS(t *testing.T) {
	_, err := NewValidator(context.Background(), "http://127.0.0.1:0/jwks.json", "issuer", "audience")
	assert.Error(t, err)
}

func TestValidator_Subject(t *testing.T) {
	priv, keyset := generateTestKeyPair(t)
	server := startJWKSServer(t, keyset)
	jwksURL := server.URL + "/.well-known/jwks.json"

	const issuer = "https://autocore.test"
	const audience = "autocore-sessions"

	validator, err := NewValidator(context.Background(), jwksURL, issuer, audience)
	require.NoError(t, err)

	tests := []struct {
		name      string
		issuer    string
		audience  string
		expiry    time.Duration
		wantError bool
	}{
		{name: "valid token", issuer: issuer, audience: audience, expiry: time.Hour, wantError: false},
		{name: "wrong issuer", issuer: "https://someone-else.test", audience: audience, expiry: time.Hour, wantError: true},
		{name: "wrong audience", issuer: issuer, audience: "other-audience", expiry: time.Hour, wantError: true},
		{name: "expired token", issuer: issuer, audience: audience, expiry: -time.Hour, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := signTestToken(t, priv, tt.issuer, tt.audience, "user-123", tt.expiry)
			subject, err := validator.Subject(context.Background(), raw)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user-123", subject)
		})
	}
}

func TestValidator_Subject_MalformedToken(t *testing.T) {
	_, keyset := generateTestKeyPair(t)
	server := startJWKSServer(t, keyset)
	jwksURL := server.URL + "/.well-known/jwks.json"

	validator, err := NewValidator(context.Background(), jwksURL, "issuer", "audience")
	require.NoError(t, err)

	_, err = validator.Subject(context.Background(), "not-a-jwt")
	assert.Error(t, err)
}

func TestValidator_Middleware(t *testing.T) {
	priv, keyset := generateTestKeyPair(t)
	server := startJWKSServer(t, keyset)
	jwksURL := server.URL + "/.well-known/jwks.json"

	const issuer = "https://autocore.test"
	const audience = "autocore-sessions"

	validator, err := NewValidator(context.Background(), jwksURL, issuer, audience)
	require.NoError(t, err)

	var reachedNext bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reachedNext = true
		w.WriteHeader(http.StatusOK)
	})
	handler := validator.Middleware(next)

	t.Run("missing header", func(t *testing.T) {
		reachedNext = false
		req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, reachedNext)
	})

	t.Run("valid bearer token", func(t *testing.T) {
		reachedNext = false
		raw := signTestToken(t, priv, issuer, audience, "user-123", time.Hour)
		req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, reachedNext)
	})

	t.Run("invalid bearer token", func(t *testing.T) {
		reachedNext = false
		req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, reachedNext)
	})
}

