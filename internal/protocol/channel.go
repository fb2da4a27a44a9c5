package protocol

import "regexp"

// ChannelType is derived from the channel name prefix.
type ChannelType string

const (
	ChannelPublic   ChannelType = "public"
	ChannelPrivate  ChannelType = "private"
	ChannelPresence ChannelType = "presence"
)

// MaxChannelNameLen bounds channel names on the wire.
const MaxChannelNameLen = 200

var channelNamePattern = regexp.MustCompile(`^(public|private|presence)-[A-Za-z0-9_-]+$`)

// ClassifyChannel returns the channel type implied by the name prefix.
// The type is a pure function of the name; unknown prefixes are public.
func ClassifyChannel(name string) ChannelType {
	switch {
	case hasPrefix(name, "presence-"):
		return ChannelPresence
	case hasPrefix(name, "private-"):
		return ChannelPrivate
	default:
		return ChannelPublic
	}
}

// IsValidChannelName reports whether name is a well-formed channel name:
// a recognized prefix, a non-empty [A-Za-z0-9_-] suffix, and bounded length.
func IsValidChannelName(name string) bool {
	if len(name) == 0 || len(name) > MaxChannelNameLen {
		return false
	}
	return channelNamePattern.MatchString(name)
}

// RequiresAuth reports whether subscribing to name needs a signed token.
func RequiresAuth(name string) bool {
	t := ClassifyChannel(name)
	return t == ChannelPrivate || t == ChannelPresence
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
