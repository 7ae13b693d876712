// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package auth

import (
	"bytes"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenPurpose separates the signing contexts. A token signed for one
// purpose never verifies for another.
type TokenPurpose string

// Token purposes.
const (
	PurposeAccess        TokenPurpose = "access"
	PurposeRefresh       TokenPurpose = "refresh"
	PurposePasswordReset TokenPurpose = "password_reset"
)

// Default token lifetimes.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultResetTokenTTL   = 15 * time.Minute
)

// SigningKey is the secret and lifetime for one purpose.
type SigningKey struct {
	Secret []byte
	TTL    time.Duration
}

// TokenConfig configures a TokenSigner.
type TokenConfig struct {
	Issuer        string
	Access        SigningKey
	Refresh       SigningKey
	PasswordReset SigningKey
}

// Claims are the JWT claims issued by TokenSigner.
type Claims struct {
	Role    Role         `json:"role,omitempty"`
	Purpose TokenPurpose `json:"typ"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (ulid.ULID, error) {
	id, err := ulid.Parse(c.Subject)
	if err != nil {
		return ulid.ULID{}, invalidToken()
	}
	return id, nil
}

// IssuedToken is a signed token plus the metadata callers persist.
type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TokenSigner signs and verifies HS256 tokens for each purpose.
type TokenSigner struct {
	issuer string
	keys   map[TokenPurpose]SigningKey
	now    func() time.Time
}

// NewTokenSigner validates cfg and returns a signer. Every purpose needs
// its own non-empty secret and a positive TTL.
func NewTokenSigner(cfg TokenConfig) (*TokenSigner, error) {
	keys := map[TokenPurpose]SigningKey{
		PurposeAccess:        cfg.Access,
		PurposeRefresh:       cfg.Refresh,
		PurposePasswordReset: cfg.PasswordReset,
	}
	for purpose, key := range keys {
		if len(key.Secret) == 0 {
			return nil, oops.Code("TOKEN_CONFIG_INVALID").With("purpose", purpose).Errorf("secret is required")
		}
		if key.TTL <= 0 {
			return nil, oops.Code("TOKEN_CONFIG_INVALID").With("purpose", purpose).Errorf("ttl must be positive")
		}
	}
	if bytes.Equal(cfg.Access.Secret, cfg.Refresh.Secret) ||
		bytes.Equal(cfg.Access.Secret, cfg.PasswordReset.Secret) ||
		bytes.Equal(cfg.Refresh.Secret, cfg.PasswordReset.Secret) {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("each token purpose needs a distinct secret")
	}
	return &TokenSigner{issuer: cfg.Issuer, keys: keys, now: time.Now}, nil
}

// Sign issues a token for userID. Role is embedded for access and refresh tokens.
func (s *TokenSigner) Sign(purpose TokenPurpose, userID ulid.ULID, role Role) (IssuedToken, error) {
	key, ok := s.keys[purpose]
	if !ok {
		return IssuedToken{}, oops.Code("TOKEN_SIGN_FAILED").With("purpose", purpose).Errorf("unknown token purpose")
	}

	now := s.now().UTC()
	expiresAt := now.Add(key.TTL)
	jti := ulid.Make().String()
	claims := Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	}
	if purpose != PurposePasswordReset {
		claims.Role = role
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key.Secret)
	if err != nil {
		return IssuedToken{}, oops.Code("TOKEN_SIGN_FAILED").With("purpose", purpose).Wrap(err)
	}
	// NumericDate truncates to seconds; report what the token actually carries.
	return IssuedToken{Token: signed, ID: jti, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks signature, issuer, expiry and purpose. It returns a
// TOKEN_EXPIRED error for an elapsed token and TOKEN_INVALID for anything else.
func (s *TokenSigner) Verify(purpose TokenPurpose, token string) (*Claims, error) {
	key, ok := s.keys[purpose]
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return nil, invalidToken()
	}

	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fail(KindAuth, "TOKEN_EXPIRED").With("purpose", purpose).Errorf("token has expired")
		}
		return nil, invalidToken()
	}
	if claims.Purpose != purpose || claims.ID == "" {
		return nil, invalidToken()
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}

func invalidToken() error {
	return fail(KindAuth, "TOKEN_INVALID").Errorf("token is invalid")
}
