package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyChannel(t *testing.T) {
	tests := []struct {
		name string
		want ChannelType
	}{
		{"public-chat", ChannelPublic},
		{"private-user-1", ChannelPrivate},
		{"presence-room", ChannelPresence},
		{"chat", ChannelPublic},                // no prefix defaults to public
		{"privatechat", ChannelPublic},         // prefix needs the dash
		{"presence-private-x", ChannelPresence}, // first prefix wins
		{"", ChannelPublic},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyChannel(tt.name), tt.name)
	}
}

func TestIsValidChannelName(t *testing.T) {
	valid := []string{
		"public-chat",
		"private-user_42",
		"presence-room-1",
		"public-" + strings.Repeat("a", MaxChannelNameLen-len("public-")),
	}
	for _, name := range valid {
		assert.True(t, IsValidChannelName(name), name)
	}

	invalid := []string{
		"",
		"chat",          // missing prefix
		"public-",       // empty suffix
		"public-ch at",  // space
		"public-ch/at",  // slash
		"Public-chat",   // prefix is case-sensitive
		"public-" + strings.Repeat("a", MaxChannelNameLen),
	}
	for _, name := range invalid {
		assert.False(t, IsValidChannelName(name), name)
	}
}

func TestRequiresAuth(t *testing.T) {
	assert.False(t, RequiresAuth("public-chat"))
	assert.True(t, RequiresAuth("private-x"))
	assert.True(t, RequiresAuth("presence-room"))
}
