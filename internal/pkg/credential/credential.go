// Package credential hashes link passwords and issues the short-lived
// access tokens that let a visitor skip password re-entry.
package credential

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrEmptySecret  = errors.New("token secret must not be empty")
)

// AccessClaims is the signed payload of a link access token.
type AccessClaims struct {
	ShortCode string `json:"short_code"`
	jwtlib.RegisteredClaims
}

// Verifier implements password hashing and access token signing.
type Verifier struct {
	secret []byte
	cost   int
	now    func() time.Time
}

func NewVerifier(secret string, cost int) (*Verifier, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cost)
	}
	return &Verifier{secret: []byte(secret), cost: cost, now: time.Now}, nil
}

// WithClock overrides the clock used for token issue and validation.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

func (v *Verifier) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), v.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify compares in constant time; any malformed hash is a mismatch.
func (v *Verifier) Verify(plaintext, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// IssueToken signs {short_code, exp, iat} with HS256.
func (v *Verifier) IssueToken(shortCode string, ttl time.Duration) (string, time.Time, error) {
	if shortCode == "" {
		return "", time.Time{}, errors.New("short code is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token ttl must be positive")
	}

	now := v.now()
	exp := now.Add(ttl)
	claims := AccessClaims{
		ShortCode: shortCode,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(exp),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// VerifyToken fails on a bad signature, a non-HMAC algorithm, an expired claim or a missing short code.
func (v *Verifier) VerifyToken(token string) (*AccessClaims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &AccessClaims{}, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	},
		jwtlib.WithTimeFunc(v.now),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || claims.ShortCode == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
