package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rwaledger/pkg/errors"
)

var secret = strings.Repeat("s", MinSecretLen)

func newTokens(t *testing.T, issuer string, ttl time.Duration) *Tokens {
	t.Helper()
	tk, err := NewTokens(secret, issuer, ttl)
	require.NoError(t, err)
	return tk
}

func TestNewTokens_RejectsShortSecret(t *testing.T) {
	_, err := NewTokens("short", "rwaledger", time.Hour)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestTokens_RoundTrip(t *testing.T) {
	tk := newTokens(t, "rwaledger", time.Hour)
	wallet := "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

	raw, err := tk.Issue(wallet)
	require.NoError(t, err)

	claims, err := tk.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, wallet, claims.ActorID())
	assert.Contains(t, []string(claims.Audience), Audience)
}

func TestTokens_Verify_Rejections(t *testing.T) {
	tk := newTokens(t, "rwaledger", time.Hour)

	expired, err := tk.issueAt("alice", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	foreignIssuer, err := newTokens(t, "someone-else", time.Hour).Issue("alice")
	require.NoError(t, err)

	other, err := NewTokens(strings.Repeat("x", MinSecretLen), "rwaledger", time.Hour)
	require.NoError(t, err)
	foreignKey, err := other.Issue("alice")
	require.NoError(t, err)

	noAudience, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer: "rwaledger", Subject: "alice", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer: "rwaledger", Subject: "alice", Audience: jwt.ClaimStrings{Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"expired", expired, ErrExpiredToken},
		{"wrong issuer", foreignIssuer, ErrInvalidToken},
		{"wrong key", foreignKey, ErrInvalidToken},
		{"missing audience", noAudience, ErrInvalidToken},
		{"unsigned", noneAlg, ErrInvalidToken},
		{"garbage", "not.a.jwt", ErrInvalidToken},
		{"empty", "", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tk.Verify(tt.raw)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, errors.KindForbidden, errors.KindOf(err))
		})
	}
}

func TestTokens_IssueRequiresSubject(t *testing.T) {
	_, err := newTokens(t, "rwaledger", time.Hour).Issue("")
	assert.ErrorIs(t, err, ErrNoSubject)
}
