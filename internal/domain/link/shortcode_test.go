package link

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomBase62(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		code, err := RandomBase62(DefaultCodeLength)
		require.NoError(t, err)
		assert.Len(t, code, DefaultCodeLength)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(base62Alphabet, c), "unexpected rune %q", c)
		}
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestShortCodeGenerator_EnforcesMinimumLength(t *testing.T) {
	g := NewShortCodeGenerator(4, func(context.Context, string) (bool, error) { return false, nil })

	code, err := g.Generate(context.Background())
	require.NoError(t, err)
	assert.Len(t, code, MinCodeLength)
	assert.True(t, ValidShortCode(code))
}

func TestShortCodeGenerator_RetriesOnCollision(t *testing.T) {
	calls := 0
	g := NewShortCodeGenerator(DefaultCodeLength, func(context.Context, string) (bool, error) {
		calls++
		return calls < 3, nil
	})

	code, err := g.Generate(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, code)
	assert.Equal(t, 3, calls)
}

func TestShortCodeGenerator_Exhausted(t *testing.T) {
	calls := 0
	g := NewShortCodeGenerator(DefaultCodeLength, func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	})

	_, err := g.Generate(context.Background())
	assert.ErrorIs(t, err, ErrGenerationExhausted)
	assert.Equal(t, GenerateAttempts, calls)
}

func TestShortCodeGenerator_StoreError(t *testing.T) {
	boom := errors.New("db down")
	g := NewShortCodeGenerator(DefaultCodeLength, func(context.Context, string) (bool, error) {
		return false, boom
	})

	_, err := g.Generate(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestValidShortCode(t *testing.T) {
	assert.True(t, ValidShortCode("Ab3dE6gH"))
	assert.False(t, ValidShortCode("short"))
	assert.False(t, ValidShortCode("has-dash1"))
	assert.False(t, ValidShortCode("../../etc"))
	assert.False(t, ValidShortCode(strings.Repeat("a", 33)))
}
