// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/juleno/CA-DevAvance/connectors/base"
	"github.com/juleno/CA-DevAvance/gateway"
)

// Session errors. Both wrap base.ErrAuthContextMissing so callers treat
// them like any other request without a usable identity.
var (
	ErrInvalidSession = fmt.Errorf("invalid or expired session: %w", base.ErrAuthContextMissing)
	ErrSessionRevoked = fmt.Errorf("session revoked: %w", base.ErrAuthContextMissing)
)

// DefaultSessionTTL is used when no TTL is configured
const DefaultSessionTTL = 12 * time.Hour

const sessionIssuer = "nucleotic-gateway"

// Claims is the session token payload
type Claims struct {
	UserID    string `json:"uid"`
	LicenseID string `json:"lic"`
	Login     string `json:"login"`
	jwt.RegisteredClaims
}

// Principal converts the claims back to a request identity
func (c *Claims) Principal() (gateway.Principal, error) {
	userID, err := primitive.ObjectIDFromHex(c.UserID)
	if err != nil {
		return gateway.Principal{}, ErrInvalidSession
	}
	licenseID, err := primitive.ObjectIDFromHex(c.LicenseID)
	if err != nil {
		return gateway.Principal{}, ErrInvalidSession
	}
	return gateway.Principal{UserID: userID, Login: c.Login, LicenseID: licenseID}, nil
}

// SessionIssuer signs and verifies HS256 session tokens
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionIssuer creates an issuer. The secret must not be empty.
func NewSessionIssuer(secret string, ttl time.Duration) (*SessionIssuer, error) {
	if secret == "" {
		return nil, base.NewConnectorError("auth", "NewSessionIssuer", "JWT secret is empty", base.ErrConfiguration)
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the lifetime of issued tokens
func (s *SessionIssuer) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for a successful login
func (s *SessionIssuer) Issue(res *LoginResult) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		UserID:    res.UserID.Hex(),
		LicenseID: res.LicenseID.Hex(),
		Login:     res.Login,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    sessionIssuer,
			Subject:   res.UserID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, claims, nil
}

// Parse verifies a token and returns its claims
func (s *SessionIssuer) Parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidSession
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", ErrInvalidSession)
		}
		return nil, ErrInvalidSession
	}
	if claims.ID == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
