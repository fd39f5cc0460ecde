package jwt

import (
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("s3cret")
	token, err := GenerateToken("u1", secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.Equal(t, "u1", claims.Subject)
}

func TestParseTokenRejects(t *testing.T) {
	secret := []byte("s3cret")

	expired, err := GenerateToken("u1", secret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired, secret)
	require.True(t, errors.Is(err, ErrInvalidToken))

	_, err = ParseToken(expired, []byte("other"))
	require.True(t, errors.Is(err, ErrInvalidToken))

	foreign, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims{UserID: "u1"}).SignedString(secret)
	require.NoError(t, err)
	_, err = ParseToken(foreign, secret)
	require.True(t, errors.Is(err, ErrInvalidToken))

	_, err = GenerateToken("", secret, time.Hour)
	require.Error(t, err)
}
