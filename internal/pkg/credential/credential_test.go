package credential

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier("test-link-secret", bcrypt.MinCost)
	require.NoError(t, err)
	return v
}

func TestHashVerify(t *testing.T) {
	v := newTestVerifier(t)

	for _, plain := range []string{"secret", "", "пароль", "a very long passphrase with spaces"} {
		hash, err := v.Hash(plain)
		require.NoError(t, err)
		assert.NotEqual(t, plain, hash)
		assert.True(t, v.Verify(plain, hash), "plaintext %q must verify", plain)
		assert.False(t, v.Verify(plain+"x", hash), "wrong plaintext for %q must not verify", plain)
	}
}

func TestHash_IsSalted(t *testing.T) {
	v := newTestVerifier(t)

	h1, err := v.Hash("secret")
	require.NoError(t, err)
	h2, err := v.Hash("secret")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestVerify_MalformedHash(t *testing.T) {
	v := newTestVerifier(t)
	assert.False(t, v.Verify("secret", ""))
	assert.False(t, v.Verify("secret", "not-a-bcrypt-hash"))
}

func TestNewVerifier_Validation(t *testing.T) {
	_, err := NewVerifier("", bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrEmptySecret)

	_, err = NewVerifier("s", 100)
	assert.Error(t, err)
}

func TestIssueAndVerifyToken(t *testing.T) {
	v := newTestVerifier(t)

	token, exp, err := v.IssueToken("Ab3dE6gH9k", time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 2*time.Second)

	claims, err := v.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "Ab3dE6gH9k", claims.ShortCode)
}

func TestVerifyToken_RejectedAfterTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(t).WithClock(func() time.Time { return now })

	token, _, err := v.IssueToken("code1234", 10*time.Minute)
	require.NoError(t, err)

	now = now.Add(9 * time.Minute)
	_, err = v.VerifyToken(token)
	assert.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = v.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	issuer := newTestVerifier(t)
	other, err := NewVerifier("another-secret", bcrypt.MinCost)
	require.NoError(t, err)

	token, _, err := issuer.IssueToken("code1234", time.Minute)
	require.NoError(t, err)

	_, err = other.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyToken_RejectsNoneAlgorithm(t *testing.T) {
	v := newTestVerifier(t)

	claims := AccessClaims{
		ShortCode: "code1234",
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.VerifyToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyToken_RequiresExpiry(t *testing.T) {
	v := newTestVerifier(t)

	claims := AccessClaims{ShortCode: "code1234"}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-link-secret"))
	require.NoError(t, err)

	_, err = v.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueToken_Validation(t *testing.T) {
	v := newTestVerifier(t)

	_, _, err := v.IssueToken("", time.Minute)
	assert.Error(t, err)
	_, _, err = v.IssueToken("code1234", 0)
	assert.Error(t, err)
}
