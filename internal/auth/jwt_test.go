package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	s := NewSigner("secret", time.Hour)

	token, err := s.GenerateJWT("user-1")
	require.NoError(t, err)

	sub, err := s.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestValidateRejectsBadTokens(t *testing.T) {
	s := NewSigner("secret", time.Hour)
	token, err := s.GenerateJWT("user-1")
	require.NoError(t, err)

	_, err = NewSigner("other", time.Hour).ValidateJWT(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewSigner("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.GenerateJWT("user-1")
	require.NoError(t, err)
	_, err = s.ValidateJWT(old)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.ValidateJWT(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.ValidateJWT("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUserIDContext(t *testing.T) {
	_, ok := UserID(context.Background())
	assert.False(t, ok)

	id, ok := UserID(WithUserID(context.Background(), "user-1"))
	assert.True(t, ok)
	assert.Equal(t, "user-1", id)
}
