package token

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducesDecodableToken(t *testing.T) {
	tok, err := New()
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(tok)
	require.NoError(t, err)
	assert.Len(t, raw, tokenByteLength)
}

func TestNewProducesUniqueTokens(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := New()
		require.NoError(t, err)
		assert.False(t, seen[tok], "令牌不应重复")
		seen[tok] = true
	}
}

func TestEqual(t *testing.T) {
	tok, err := New()
	require.NoError(t, err)

	assert.True(t, Equal(tok, tok))
	assert.False(t, Equal(tok, tok+"x"))
	assert.False(t, Equal(tok, ""))
}
