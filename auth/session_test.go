// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/juleno/CA-DevAvance/connectors/base"
)

func testLogin() *LoginResult {
	return &LoginResult{
		LicenseID: primitive.NewObjectID(),
		UserID:    primitive.NewObjectID(),
		Login:     "jdoe",
	}
}

func TestNewSessionIssuer(t *testing.T) {
	_, err := NewSessionIssuer("", time.Hour)
	assert.True(t, errors.Is(err, base.ErrConfiguration))

	s, err := NewSessionIssuer("secret", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionTTL, s.TTL())
}

func TestIssueAndParse(t *testing.T) {
	s, err := NewSessionIssuer("secret", time.Hour)
	require.NoError(t, err)
	login := testLogin()

	token, issued, err := s.Issue(login)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.NotEmpty(t, issued.ID)

	claims, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, claims.ID)
	assert.Equal(t, login.Login, claims.Login)

	p, err := claims.Principal()
	require.NoError(t, err)
	assert.Equal(t, login.Principal(), p)

	other, _, err := s.Issue(login)
	require.NoError(t, err)
	otherClaims, err := s.Parse(other)
	require.NoError(t, err)
	assert.NotEqual(t, claims.ID, otherClaims.ID, "every session gets its own id")
}

func TestParseRejects(t *testing.T) {
	s, err := NewSessionIssuer("secret", time.Hour)
	require.NoError(t, err)
	valid, _, err := s.Issue(testLogin())
	require.NoError(t, err)

	otherKey, err := NewSessionIssuer("another-secret", time.Hour)
	require.NoError(t, err)
	foreign, _, err := otherKey.Issue(testLogin())
	require.NoError(t, err)

	expiredIssuer, err := NewSessionIssuer("secret", time.Hour)
	require.NoError(t, err)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := expiredIssuer.Issue(testLogin())
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "x"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"tampered", valid[:len(valid)-2] + "xx"},
		{"wrong key", foreign},
		{"expired", expired},
		{"alg none", unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := s.Parse(tt.token)
			assert.Nil(t, claims)
			assert.True(t, errors.Is(err, ErrInvalidSession))
			assert.True(t, errors.Is(err, base.ErrAuthContextMissing))
		})
	}
}

func TestClaimsPrincipalRejectsBadIDs(t *testing.T) {
	c := &Claims{UserID: "nope", LicenseID: primitive.NewObjectID().Hex()}
	_, err := c.Principal()
	assert.True(t, errors.Is(err, ErrInvalidSession))

	c = &Claims{UserID: primitive.NewObjectID().Hex(), LicenseID: ""}
	_, err = c.Principal()
	assert.True(t, errors.Is(err, ErrInvalidSession))
}
