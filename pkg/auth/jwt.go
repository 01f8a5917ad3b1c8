package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"rwaledger/pkg/errors"
)

// MinSecretLen is the shortest HMAC secret Tokens accepts
const MinSecretLen = 32

// Audience is stamped on every ledger API token
const Audience = "rwaledger-api"

// All token failures are forbidden errors so the API answers 403.
var (
	ErrInvalidToken = errors.Wrap(errors.ErrForbidden, "invalid token")
	ErrExpiredToken = errors.Wrap(errors.ErrForbidden, "token expired")
	ErrNoSubject    = errors.Wrap(errors.ErrForbidden, "token has no subject")
)

// Claims carry the acting principal in the subject. For holders the subject
// is the wallet address that holds their tokens.
type Claims struct {
	jwt.RegisteredClaims
}

func (c *Claims) ActorID() string { return c.Subject }

// Tokens issues and verifies HS256 actor tokens
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
}

// NewTokens rejects secrets shorter than MinSecretLen
func NewTokens(secret, issuer string, ttl time.Duration) (*Tokens, error) {
	if len(secret) < MinSecretLen {
		return nil, errors.NewValidationError("jwt_secret", "too short", len(secret))
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(Audience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}, nil
}

// Issue signs a token for actorID valid for the configured ttl
func (t *Tokens) Issue(actorID string) (string, error) {
	return t.issueAt(actorID, time.Now())
}

func (t *Tokens) issueAt(actorID string, now time.Time) (string, error) {
	if actorID == "" {
		return "", ErrNoSubject
	}
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    t.issuer,
		Subject:   actorID,
		Audience:  jwt.ClaimStrings{Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify checks signature, issuer, audience and expiry
func (t *Tokens) Verify(raw string) (*Claims, error) {
	var claims Claims
	_, err := t.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	case claims.Subject == "":
		return nil, ErrNoSubject
	}
	return &claims, nil
}
