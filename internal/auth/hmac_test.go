package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	s := NewSigner("secret")
	token := s.Token("12345.67890", "private-x")
	assert.True(t, s.Verify(token, "12345.67890", "private-x"))
}

func TestTokenShape(t *testing.T) {
	s := NewSigner("secret")
	token := s.Token("12345.67890", "private-x")

	id, sig, ok := strings.Cut(token, ":")
	require.True(t, ok)
	assert.Equal(t, "12345.67890", id)
	assert.Len(t, sig, 64) // hex sha256

	// Signing is deterministic for a fixed secret and inputs.
	assert.Equal(t, token, s.Token("12345.67890", "private-x"))
}

func TestVerifyRejectsTampering(t *testing.T) {
	s := NewSigner("secret")
	token := s.Token("12345.67890", "private-x")

	// Bound to a single socket id: replay on another connection fails.
	assert.False(t, s.Verify(token, "99999.11111", "private-x"))

	// Bound to a single channel.
	assert.False(t, s.Verify(token, "12345.67890", "private-y"))

	// Different secret.
	assert.False(t, NewSigner("other").Verify(token, "12345.67890", "private-x"))

	// Flipped signature byte.
	tampered := token[:len(token)-1] + "0"
	if tampered == token {
		tampered = token[:len(token)-1] + "1"
	}
	assert.False(t, s.Verify(tampered, "12345.67890", "private-x"))
}

func TestVerifyMalformedTokens(t *testing.T) {
	s := NewSigner("secret")
	for _, token := range []string{
		"",
		"no-separator",
		":",
		"12345.67890:",
		":abcdef",
		"12345.67890:zz",
	} {
		assert.False(t, s.Verify(token, "12345.67890", "private-x"), "token %q", token)
	}
}
