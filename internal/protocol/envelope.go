// Package protocol implements the Pusher-compatible wire protocol:
// the JSON message envelope exchanged over WebSocket text frames and
// the channel naming rules that drive routing and authorization.
package protocol

import (
	"encoding/json"
	"errors"
	"strings"
)

// Reserved client→server events. Any other inbound event name is a
// client event and is fanned out verbatim.
const (
	EventSubscribe   = "pusher:subscribe"
	EventUnsubscribe = "pusher:unsubscribe"
	EventPing        = "pusher:ping"
)

// Reserved server→client events.
const (
	EventConnectionEstablished = "pusher:connection_established"
	EventPong                  = "pusher:pong"
	EventError                 = "pusher:error"
	EventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
	EventMemberAdded           = "pusher_internal:member_added"
	EventMemberRemoved         = "pusher_internal:member_removed"
)

const (
	// MaxEventNameLen bounds the event field.
	MaxEventNameLen = 200

	// MaxFrameBytes bounds an inbound text frame. Larger frames are
	// rejected without being parsed.
	MaxFrameBytes = 64 * 1024
)

// Decode failure modes. The dispatcher maps each to a distinct
// pusher:error message, keeping the connection open.
var (
	ErrFrameTooLarge = errors.New("frame exceeds size limit")
	ErrInvalidJSON   = errors.New("invalid JSON")
	ErrInvalidEvent  = errors.New("missing or oversized event name")
)

// Envelope is the wire message shape in both directions.
//
// Data is kept as a raw JSON blob: fan-out re-emits client payloads
// verbatim without a decode/encode round trip. ChannelData is the
// string-encoded JSON used by presence subscriptions.
type Envelope struct {
	Event       string          `json:"event"`
	Data        json.RawMessage `json:"data,omitempty"`
	Channel     string          `json:"channel,omitempty"`
	Auth        string          `json:"auth,omitempty"`
	ChannelData string          `json:"channel_data,omitempty"`
}

// DecodeEnvelope parses an inbound text frame, enforcing the frame
// size cap and the event name bounds.
func DecodeEnvelope(frame []byte) (*Envelope, error) {
	if len(frame) > MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, ErrInvalidJSON
	}
	if env.Event == "" || len(env.Event) > MaxEventNameLen {
		return nil, ErrInvalidEvent
	}
	if len(env.Channel) > MaxChannelNameLen {
		return nil, ErrInvalidJSON
	}
	return &env, nil
}

// IsClientEvent reports whether event is a user-defined event rather
// than a reserved pusher:/pusher_internal: name.
func IsClientEvent(event string) bool {
	return !strings.HasPrefix(event, "pusher:") && !strings.HasPrefix(event, "pusher_internal:")
}

// ErrorData is the payload of a pusher:error frame.
type ErrorData struct {
	Message string `json:"message"`
}

// PresenceMemberData is the payload of member_added / member_removed.
type PresenceMemberData struct {
	UserID   string          `json:"user_id"`
	UserInfo json.RawMessage `json:"user_info,omitempty"`
}
