package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	r := NewChannelRegistry()

	assert.True(t, r.Subscribe("public-chat", "c1"))
	assert.True(t, r.Subscribe("public-chat", "c2"))
	assert.True(t, r.IsSubscribed("public-chat", "c1"))
	assert.Equal(t, 2, r.SubscriberCount("public-chat"))
	assert.Equal(t, 1, r.Count())

	assert.True(t, r.Unsubscribe("public-chat", "c1"))
	assert.False(t, r.IsSubscribed("public-chat", "c1"))
	assert.Equal(t, 1, r.SubscriberCount("public-chat"))
}

func TestSubscribeIdempotent(t *testing.T) {
	r := NewChannelRegistry()

	assert.True(t, r.Subscribe("public-chat", "c1"))
	assert.False(t, r.Subscribe("public-chat", "c1"))
	assert.Equal(t, 1, r.SubscriberCount("public-chat"))
}

func TestEmptyChannelIsDropped(t *testing.T) {
	r := NewChannelRegistry()

	r.Subscribe("public-chat", "c1")
	r.Unsubscribe("public-chat", "c1")

	assert.Zero(t, r.Count())
	assert.Nil(t, r.Subscribers("public-chat"))

	// Resubscribing recreates the channel from scratch.
	assert.True(t, r.Subscribe("public-chat", "c1"))
	assert.Equal(t, 1, r.Count())
}

func TestUnsubscribeAbsent(t *testing.T) {
	r := NewChannelRegistry()

	assert.False(t, r.Unsubscribe("public-chat", "c1"))
	r.Subscribe("public-chat", "c1")
	assert.False(t, r.Unsubscribe("public-chat", "c2"))
	assert.Equal(t, 1, r.SubscriberCount("public-chat"))
}

func TestSubscribersSnapshot(t *testing.T) {
	r := NewChannelRegistry()
	r.Subscribe("public-chat", "c1")
	r.Subscribe("public-chat", "c2")

	snap := r.Subscribers("public-chat")
	assert.ElementsMatch(t, []string{"c1", "c2"}, snap)

	// Mutating after the snapshot does not affect it.
	r.Unsubscribe("public-chat", "c2")
	assert.ElementsMatch(t, []string{"c1", "c2"}, snap)
}

func TestChannelsFor(t *testing.T) {
	r := NewChannelRegistry()
	r.Subscribe("public-a", "c1")
	r.Subscribe("public-b", "c1")
	r.Subscribe("public-b", "c2")

	assert.ElementsMatch(t, []string{"public-a", "public-b"}, r.ChannelsFor("c1"))
	assert.ElementsMatch(t, []string{"public-b"}, r.ChannelsFor("c2"))
	assert.Empty(t, r.ChannelsFor("c3"))
}
