package util

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken(t *testing.T) {
	tok, err := Token(32)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(tok)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	other, err := Token(32)
	require.NoError(t, err)
	assert.NotEqual(t, tok, other)
}

func TestHashUserAgent(t *testing.T) {
	h := HashUserAgent("Mozilla/5.0 (X11; Linux x86_64)")
	assert.Len(t, h, 64)
	assert.NotContains(t, h, "Mozilla")

	assert.Equal(t, h, HashUserAgent("Mozilla/5.0 (X11; Linux x86_64)"))
	assert.NotEqual(t, h, HashUserAgent("curl/8.0"))
	assert.Empty(t, HashUserAgent(""))
}
