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

// Package httpauth guards the orchestrator's HTTP surface (metrics,
// health, session inspection) with bearer JWTs validated against a
// JWKS endpoint, for deployments where that surface is reachable
// outside the cluster.
package httpauth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Validator checks bearer tokens against a cached, auto-refreshing
// JWKS and an expected issuer/audience.
type Validator struct {
	cache    *jwk.Cache
	jwksURL  string
	issuer   string
	audience string
}

// NewValidator registers jwksURL for background refresh and performs
// one synchronous fetch so configuration errors surface at startup.
func NewValidator(ctx context.Context, jwksURL, issuer, audience string) (*Validator, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("httpauth: register jwks %s: %w", jwksURL, err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("httpauth: fetch jwks %s: %w", jwksURL, err)
	}
	return &Validator{cache: cache, jwksURL: jwksURL, issuer: issuer, audience: audience}, nil
}

// Subject validates raw and returns its subject claim.
func (v *Validator) Subject(ctx context.Context, raw string) (string, error) {
	keySet, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return "", fmt.Errorf("httpauth: refresh jwks: %w", err)
	}

	opts := []jwt.ParseOption{jwt.WithKeySet(keySet), jwt.WithValidate(true)}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseString(raw, opts...)
	if err != nil {
		return "", fmt.Errorf("httpauth: invalid token: %w", err)
	}
	return token.Subject(), nil
}

// Middleware rejects requests without a valid "Authorization: Bearer
// <token>" header, wrapping next otherwise.
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(authz, "Bearer ")
		if !ok || raw == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if _, err := v.Subject(r.Context(), raw); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
