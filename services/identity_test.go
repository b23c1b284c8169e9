package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTDecoder(t *testing.T) {
	decoder := NewJWTDecoder("test-secret")
	token, err := decoder.Sign("user-1", "device-1")
	require.NoError(t, err)

	identity, err := decoder.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "user-1", DeviceID: "device-1"}, identity)

	identity, err = decoder.Decode("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UserID)

	_, err = NewJWTDecoder("other-secret").Decode(token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = decoder.Decode("")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = decoder.Decode("not-a-jwt")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
