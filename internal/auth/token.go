// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package auth

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token defaults.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultIssuer     = "calmpulse"

	RefreshSecretBytes = 32 // 32 bytes = 64 hex chars

	audienceAccess  = "access"
	audienceRefresh = "refresh"
)

// TokenConfig configures a TokenCodec. Keys are fixed for the lifetime of
// the codec.
type TokenConfig struct {
	AccessKey  []byte
	RefreshKey []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
}

// RefreshClaims is the verified content of a refresh envelope.
type RefreshClaims struct {
	AccountID int64
	Secret    string
	ExpiresAt time.Time
}

// TokenCodec signs and verifies HS256 JWTs. Access and refresh tokens
// use independent keys and distinct audiences.
type TokenCodec struct {
	cfg TokenConfig
	now func() time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithCodecClock overrides the codec's time source.
func WithCodecClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec validates cfg and creates a TokenCodec.
// Zero TTLs are allowed and produce tokens that are already expired.
func NewTokenCodec(cfg TokenConfig, opts ...CodecOption) (*TokenCodec, error) {
	if len(cfg.AccessKey) == 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("access signing key is required")
	}
	if len(cfg.RefreshKey) == 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("refresh signing key is required")
	}
	if bytes.Equal(cfg.AccessKey, cfg.RefreshKey) {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("access and refresh signing keys must differ")
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("access_ttl", cfg.AccessTTL).
			With("refresh_ttl", cfg.RefreshTTL).
			Errorf("token TTLs cannot be negative")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}

	c := &TokenCodec{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration {
	return c.cfg.AccessTTL
}

// RefreshTTL returns the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration {
	return c.cfg.RefreshTTL
}

// SignAccess issues an access token for the account.
func (c *TokenCodec) SignAccess(accountID int64) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(c.cfg.AccessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(accountID, 10),
		Issuer:    c.cfg.Issuer,
		Audience:  jwt.ClaimStrings{audienceAccess},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        ulid.Make().String(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.AccessKey)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_SIGN_FAILED").With("kind", audienceAccess).Wrap(err)
	}
	return token, expiresAt, nil
}

// VerifyAccess checks signature, issuer, audience and expiry and returns
// the subject. All failures are Unauthorized.
func (c *TokenCodec) VerifyAccess(token string) (int64, error) {
	claims, err := c.parse(token, c.cfg.AccessKey, audienceAccess)
	if err != nil {
		return 0, unauthorizedError(err.Error())
	}
	id, err := parseSubject(claims.Subject)
	if err != nil {
		return 0, unauthorizedError(err.Error())
	}
	return id, nil
}

// SignRefresh wraps secret in a signed refresh envelope expiring at expiresAt.
func (c *TokenCodec) SignRefresh(accountID int64, secret string, expiresAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(accountID, 10),
		Issuer:    c.cfg.Issuer,
		Audience:  jwt.ClaimStrings{audienceRefresh},
		IssuedAt:  jwt.NewNumericDate(c.now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        secret,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.RefreshKey)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").With("kind", audienceRefresh).Wrap(err)
	}
	return token, nil
}

// VerifyRefresh checks the refresh envelope. A valid envelope is necessary
// but not sufficient: the ledger decides whether the secret is still live.
// All failures are InvalidToken.
func (c *TokenCodec) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims, err := c.parse(token, c.cfg.RefreshKey, audienceRefresh)
	if err != nil {
		return nil, invalidTokenError(err)
	}
	id, err := parseSubject(claims.Subject)
	if err != nil {
		return nil, invalidTokenError(err)
	}
	if claims.ID == "" {
		return nil, invalidTokenError(oops.Errorf("refresh token has no secret"))
	}
	return &RefreshClaims{
		AccountID: id,
		Secret:    claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (c *TokenCodec) parse(token string, key []byte, audience string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // classified by the caller
	}
	return claims, nil
}

func parseSubject(subject string) (int64, error) {
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, oops.Errorf("invalid token subject %q", subject)
	}
	return id, nil
}

// GenerateRefreshSecret creates the random secret carried by a refresh
// envelope and hashed into the ledger.
func GenerateRefreshSecret() (string, error) {
	b := make([]byte, RefreshSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("REFRESH_SECRET_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", RefreshSecretBytes).
			Wrap(err)
	}
	return hex.EncodeToString(b), nil
}
