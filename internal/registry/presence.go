package registry

import (
	"encoding/json"
	"sync"
)

// Member is the presence record attached to one subscribing connection.
// UserInfo is opaque to the server and re-emitted as-is.
type Member struct {
	UserID   string          `json:"user_id"`
	UserInfo json.RawMessage `json:"user_info,omitempty"`
}

// PresenceData is the wire shape sent in subscription_succeeded for
// presence channels. Hash is keyed by user_id; Count is the number of
// connection entries, so the same user on two tabs counts twice while
// the hash carries whichever record was written last.
type PresenceData struct {
	Presence struct {
		Hash  map[string]json.RawMessage `json:"hash"`
		Count int                        `json:"count"`
	} `json:"presence"`
}

// PresenceRegistry maps (presence channel, connection id) → member.
// An entry exists iff the connection is subscribed to the channel; the
// dispatcher keeps that parity by registering and removing members in
// the same paths that touch the channel registry.
type PresenceRegistry struct {
	mu       sync.RWMutex
	channels map[string]map[string]Member
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		channels: make(map[string]map[string]Member),
	}
}

// AddMember records the member for connID on channel.
func (r *PresenceRegistry) AddMember(channel, connID string, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.channels[channel]
	if !ok {
		members = make(map[string]Member)
		r.channels[channel] = members
	}
	members[connID] = m
}

// RemoveMember deletes and returns the member for connID on channel.
// The channel entry is dropped when it empties.
func (r *PresenceRegistry) RemoveMember(channel, connID string) (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.channels[channel]
	if !ok {
		return Member{}, false
	}
	m, present := members[connID]
	if !present {
		return Member{}, false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.channels, channel)
	}
	return m, true
}

// HasMember reports whether connID has a member record on channel.
func (r *PresenceRegistry) HasMember(channel, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[channel][connID]
	return ok
}

// GetMember returns the member record for connID on channel.
func (r *PresenceRegistry) GetMember(channel, connID string) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.channels[channel][connID]
	return m, ok
}

// Members returns a snapshot of channel's members keyed by connection id.
func (r *PresenceRegistry) Members(channel string) map[string]Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.channels[channel]
	if !ok {
		return nil
	}
	out := make(map[string]Member, len(members))
	for id, m := range members {
		out[id] = m
	}
	return out
}

// Data flattens channel membership into the transmitted presence hash.
func (r *PresenceRegistry) Data(channel string) PresenceData {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var data PresenceData
	data.Presence.Hash = make(map[string]json.RawMessage)

	members := r.channels[channel]
	for _, m := range members {
		info := m.UserInfo
		if info == nil {
			info = json.RawMessage(`{}`)
		}
		data.Presence.Hash[m.UserID] = info
	}
	data.Presence.Count = len(members)
	return data
}

// ChannelCount returns the number of presence channels with members.
func (r *PresenceRegistry) ChannelCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
