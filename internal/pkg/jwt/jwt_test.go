package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	secret := []byte("secret")
	token, err := GenerateToken("ops", secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, "ops", claims.Operator)

	_, err = ParseToken(token, []byte("other"))
	require.Error(t, err)
}

func TestParseTokenExpired(t *testing.T) {
	secret := []byte("secret")
	token, err := GenerateToken("ops", secret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(token, secret)
	require.Error(t, err)
}

func TestGenerateTokenRequiresOperator(t *testing.T) {
	_, err := GenerateToken("", []byte("secret"), time.Hour)
	require.Error(t, err)
}

func TestEmptySecretRejected(t *testing.T) {
	_, err := GenerateToken("ops", nil, time.Hour)
	require.ErrorIs(t, err, ErrEmptySecret)

	forged, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims{
		Operator: "ops",
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("x"))
	require.NoError(t, err)
	_, err = ParseToken(forged, nil)
	require.ErrorIs(t, err, ErrEmptySecret)
	_, err = ParseToken(forged, []byte(""))
	require.ErrorIs(t, err, ErrEmptySecret)
}
