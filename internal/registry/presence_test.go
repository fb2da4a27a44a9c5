package registry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRemoveMember(t *testing.T) {
	r := NewPresenceRegistry()

	r.AddMember("presence-room", "c1", Member{UserID: "u1"})
	assert.True(t, r.HasMember("presence-room", "c1"))
	assert.Equal(t, 1, r.ChannelCount())

	m, ok := r.RemoveMember("presence-room", "c1")
	require.True(t, ok)
	assert.Equal(t, "u1", m.UserID)
	assert.False(t, r.HasMember("presence-room", "c1"))
	assert.Zero(t, r.ChannelCount())
}

func TestRemoveMemberAbsent(t *testing.T) {
	r := NewPresenceRegistry()

	_, ok := r.RemoveMember("presence-room", "c1")
	assert.False(t, ok)

	r.AddMember("presence-room", "c1", Member{UserID: "u1"})
	_, ok = r.RemoveMember("presence-room", "c2")
	assert.False(t, ok)
	assert.True(t, r.HasMember("presence-room", "c1"))
}

func TestPresenceData(t *testing.T) {
	r := NewPresenceRegistry()
	r.AddMember("presence-room", "c1", Member{
		UserID:   "u1",
		UserInfo: json.RawMessage(`{"name":"One"}`),
	})
	r.AddMember("presence-room", "c2", Member{UserID: "u2"})

	data := r.Data("presence-room")
	assert.Equal(t, 2, data.Presence.Count)
	assert.JSONEq(t, `{"name":"One"}`, string(data.Presence.Hash["u1"]))

	// Missing user_info is reported as an empty object.
	assert.JSONEq(t, `{}`, string(data.Presence.Hash["u2"]))
}

func TestPresenceDataDuplicateUserID(t *testing.T) {
	r := NewPresenceRegistry()
	r.AddMember("presence-room", "c1", Member{UserID: "u1"})
	r.AddMember("presence-room", "c2", Member{UserID: "u1"})

	// Two connections, one hash entry. The count tracks connections.
	data := r.Data("presence-room")
	assert.Equal(t, 2, data.Presence.Count)
	assert.Len(t, data.Presence.Hash, 1)

	// Dropping one connection keeps the user present via the other.
	_, ok := r.RemoveMember("presence-room", "c1")
	require.True(t, ok)
	data = r.Data("presence-room")
	assert.Equal(t, 1, data.Presence.Count)
	assert.Contains(t, data.Presence.Hash, "u1")
}

func TestPresenceDataEmptyChannel(t *testing.T) {
	r := NewPresenceRegistry()

	data := r.Data("presence-room")
	assert.Zero(t, data.Presence.Count)
	assert.Empty(t, data.Presence.Hash)
	assert.NotNil(t, data.Presence.Hash) // marshals as {}, not null
}

func TestMembersSnapshot(t *testing.T) {
	r := NewPresenceRegistry()
	r.AddMember("presence-room", "c1", Member{UserID: "u1"})

	snap := r.Members("presence-room")
	r.RemoveMember("presence-room", "c1")

	assert.Len(t, snap, 1)
	assert.Nil(t, r.Members("presence-room"))
}
