package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	tg := NewTokenGenerator()

	token, hash, err := tg.GenerateToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	assert.Len(t, hash, 64) // hex-encoded SHA256
	assert.Equal(t, hash, tg.HashToken(token))

	// Two tokens must never collide
	token2, hash2, err := tg.GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
	assert.NotEqual(t, hash, hash2)
}

func TestValidateTokenFormat(t *testing.T) {
	tg := NewTokenGenerator()

	token, _, err := tg.GenerateToken()
	require.NoError(t, err)
	assert.NoError(t, tg.ValidateTokenFormat(token))

	assert.Error(t, tg.ValidateTokenFormat("bearer_abc"))
	assert.Error(t, tg.ValidateTokenFormat(TokenPrefix))
	assert.Error(t, tg.ValidateTokenFormat(TokenPrefix+"not!base64url!!"))
}
