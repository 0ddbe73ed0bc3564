package security

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))

	token, exp, err := Generate(opts, "u1", "freelancer")
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	claims, err := Verify(opts, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.PrincipalID())
	assert.Equal(t, "freelancer", claims.Role())
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, _, err := Generate(DefaultOptions([]byte("secret-a")), "u1", "")
	require.NoError(t, err)

	_, err = Verify(DefaultOptions([]byte("secret-b")), token)
	require.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))

	now := time.Now().Add(-3 * time.Hour)
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "u1",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString(opts.Secret)
	require.NoError(t, err)

	_, err = Verify(opts, signed)
	require.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := Verify(DefaultOptions([]byte("secret")), "not.a.token")
	require.Error(t, err)
}

func TestUnsupportedAlg(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))
	opts.Alg = "RS256"
	_, _, err := Generate(opts, "u1", "")
	require.Error(t, err)
}
