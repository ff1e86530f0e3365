package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// Token verification failures. Callers distinguish them with errors.Is.
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// Purpose labels what a token was minted for. It is informational only:
// any token signed with the server secret verifies for any purpose.
type Purpose string

const (
	PurposeSession Purpose = "session"
	PurposeReset   Purpose = "reset"
)

// Claims carries the user id plus the registered JWT claims.
type Claims struct {
	UserID  string  `json:"id"`
	Purpose Purpose `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// TokenTTL is the lifetime of session and reset tokens.
const TokenTTL = time.Hour

// TokenManager issues and verifies HS256 JWTs.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a manager with the provided secret, issuer, and lifetime.
func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock returns a copy of the manager that reads the time from now.
func (t *TokenManager) WithClock(now func() time.Time) *TokenManager {
	c := *t
	c.now = now
	return &c
}

// TTL reports the lifetime of issued tokens.
func (t *TokenManager) TTL() time.Duration {
	return t.ttl
}

// Generate issues a signed JWT for userID that expires TTL after issuance.
func (t *TokenManager) Generate(userID string, purpose Purpose) (string, error) {
	now := t.now().Truncate(time.Second)
	claims := Claims{
		UserID:  userID,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").With("purpose", purpose).Wrap(err)
	}
	return signed, nil
}

// Parse verifies signature and expiry and returns the claims. Expired tokens
// yield ErrTokenExpired; every other failure yields ErrTokenInvalid.
func (t *TokenManager) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code("TOKEN_EXPIRED").With("reason", err.Error()).Wrap(ErrTokenExpired)
		}
		return nil, oops.Code("TOKEN_INVALID").With("reason", err.Error()).Wrap(ErrTokenInvalid)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, oops.Code("TOKEN_INVALID").With("reason", "missing user id").Wrap(ErrTokenInvalid)
	}
	return claims, nil
}
