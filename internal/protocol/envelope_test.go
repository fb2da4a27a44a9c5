package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"event":"pusher:subscribe","channel":"public-chat"}`))
	require.NoError(t, err)
	assert.Equal(t, EventSubscribe, env.Event)
	assert.Equal(t, "public-chat", env.Channel)

	env, err = DecodeEnvelope([]byte(`{"event":"my-event","channel":"public-chat","data":{"k":1}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":1}`, string(env.Data))
}

func TestDecodeEnvelopeRejectsBadFrames(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrInvalidJSON)

	// Valid JSON that is not an envelope object.
	_, err = DecodeEnvelope([]byte(`[1,2,3]`))
	assert.ErrorIs(t, err, ErrInvalidJSON)

	_, err = DecodeEnvelope([]byte(`{"channel":"public-chat"}`))
	assert.ErrorIs(t, err, ErrInvalidEvent)

	long := `{"event":"` + strings.Repeat("x", MaxEventNameLen+1) + `"}`
	_, err = DecodeEnvelope([]byte(long))
	assert.ErrorIs(t, err, ErrInvalidEvent)

	huge := `{"event":"x","data":"` + strings.Repeat("a", MaxFrameBytes) + `"}`
	_, err = DecodeEnvelope([]byte(huge))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDecodeEnvelopeIgnoresUnknownFields(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"event":"pusher:ping","extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, EventPing, env.Event)
}

func TestIsClientEvent(t *testing.T) {
	assert.True(t, IsClientEvent("new-message"))
	assert.True(t, IsClientEvent("client-typing"))
	assert.False(t, IsClientEvent("pusher:ping"))
	assert.False(t, IsClientEvent("pusher_internal:subscription_succeeded"))
}
