// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package auth

import (
	"strings"

	"github.com/samber/oops"
)

// AccessVerifier verifies access tokens.
type AccessVerifier interface {
	VerifyAccess(token string) (int64, error)
}

// Gate authorizes requests from their Authorization header. It verifies the
// access token locally and never consults the store, so a token for a
// deleted account still passes until it expires.
type Gate struct {
	verifier AccessVerifier
}

// NewGate creates a Gate.
func NewGate(verifier AccessVerifier) (*Gate, error) {
	if verifier == nil {
		return nil, oops.Errorf("access verifier is required")
	}
	return &Gate{verifier: verifier}, nil
}

// Authorize extracts a bearer token from header and returns its subject.
// Every failure is Unauthorized.
func (g *Gate) Authorize(header string) (int64, error) {
	token, err := BearerToken(header)
	if err != nil {
		return 0, err
	}
	id, err := g.verifier.VerifyAccess(token)
	if err != nil {
		if KindOf(err) == KindUnauthorized {
			return 0, err
		}
		return 0, unauthorizedError("access token rejected")
	}
	return id, nil
}

// BearerToken parses "Bearer <token>". The scheme is case-insensitive.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", unauthorizedError("authorization header missing")
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", unauthorizedError("bearer scheme required")
	}
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", unauthorizedError("malformed bearer token")
	}
	return token, nil
}
