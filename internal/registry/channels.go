// Package registry holds the in-process subscription state: which
// connections are in which channels, and the member records behind
// presence channels. Registries are plain mutex-guarded maps owned by
// the server and injected into the dispatcher, so tests can run fully
// isolated engines.
package registry

import "sync"

// ChannelRegistry maps channel name → set of subscriber connection ids.
//
// Entries are created on first subscribe and removed as soon as the
// subscriber set drains; an empty channel is never observable through
// Subscribers or Count.
type ChannelRegistry struct {
	mu       sync.RWMutex
	channels map[string]map[string]struct{}
}

func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{
		channels: make(map[string]map[string]struct{}),
	}
}

// Subscribe adds connID to channel, creating the channel on first use.
// Idempotent: re-adding a present id is a no-op. Returns false when the
// id was already subscribed.
func (r *ChannelRegistry) Subscribe(channel, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.channels[channel]
	if !ok {
		subs = make(map[string]struct{})
		r.channels[channel] = subs
	}
	if _, present := subs[connID]; present {
		return false
	}
	subs[connID] = struct{}{}
	return true
}

// Unsubscribe removes connID from channel, dropping the channel entry
// when it empties. No-op (false) if either is absent.
func (r *ChannelRegistry) Unsubscribe(channel, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.channels[channel]
	if !ok {
		return false
	}
	if _, present := subs[connID]; !present {
		return false
	}
	delete(subs, connID)
	if len(subs) == 0 {
		delete(r.channels, channel)
	}
	return true
}

// IsSubscribed reports whether connID is in channel.
func (r *ChannelRegistry) IsSubscribed(channel, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[channel][connID]
	return ok
}

// Subscribers returns a snapshot of the subscriber set. Fan-out
// iterates the copy without holding the registry lock, so a concurrent
// unsubscribe never races the iteration; senders tolerate ids whose
// connection is already gone.
func (r *ChannelRegistry) Subscribers(channel string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs, ok := r.channels[channel]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(subs))
	for id := range subs {
		out = append(out, id)
	}
	return out
}

// SubscriberCount returns the number of subscribers in channel.
func (r *ChannelRegistry) SubscriberCount(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channel])
}

// ChannelsFor returns every channel containing connID. Used on
// connection teardown to reverse all registrations.
func (r *ChannelRegistry) ChannelsFor(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for name, subs := range r.channels {
		if _, ok := subs[connID]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Count returns the number of live (non-empty) channels.
func (r *ChannelRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
