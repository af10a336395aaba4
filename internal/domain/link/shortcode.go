package link

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	MinCodeLength     = 8
	DefaultCodeLength = 10
	GenerateAttempts  = 5
)

// ExistsFunc reports whether a code is already taken.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// ShortCodeGenerator mints base62 codes and pre-checks them for uniqueness.
type ShortCodeGenerator struct {
	length   int
	attempts int
	exists   ExistsFunc
	random   func(n int) (string, error)
}

func NewShortCodeGenerator(length int, exists ExistsFunc) *ShortCodeGenerator {
	if length < MinCodeLength {
		length = MinCodeLength
	}
	return &ShortCodeGenerator{
		length:   length,
		attempts: GenerateAttempts,
		exists:   exists,
		random:   RandomBase62,
	}
}

// Generate returns an unused code or ErrGenerationExhausted after GenerateAttempts collisions.
func (g *ShortCodeGenerator) Generate(ctx context.Context) (string, error) {
	for i := 0; i < g.attempts; i++ {
		code, free, err := g.draw(ctx)
		if err != nil {
			return "", err
		}
		if free {
			return code, nil
		}
	}
	return "", ErrGenerationExhausted
}

// draw spends one attempt: a random code and its uniqueness pre-check.
func (g *ShortCodeGenerator) draw(ctx context.Context) (string, bool, error) {
	code, err := g.random(g.length)
	if err != nil {
		return "", false, err
	}
	taken, err := g.exists(ctx, code)
	if err != nil {
		return "", false, fmt.Errorf("check short code: %w", err)
	}
	return code, !taken, nil
}

// RandomBase62 draws n characters uniformly from the base62 alphabet using crypto/rand.
func RandomBase62(n int) (string, error) {
	max := big.NewInt(int64(len(base62Alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("random short code: %w", err)
		}
		out[i] = base62Alphabet[idx.Int64()]
	}
	return string(out), nil
}

// ValidShortCode reports whether s could have been produced by the generator.
func ValidShortCode(s string) bool {
	if len(s) < MinCodeLength || len(s) > 32 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}
