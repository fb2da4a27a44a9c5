package server

import (
	"encoding/json"
	"sync/atomic"

	"github.com/pusherd/pusherd/internal/monitoring"
	"github.com/pusherd/pusherd/internal/protocol"
	"github.com/pusherd/pusherd/internal/registry"
)

// Error frame messages. The first group is fixed protocol wording;
// the second covers cases the protocol leaves to the server.
const (
	errInvalidJSON     = "Invalid JSON format"
	errRateLimited     = "Rate limit exceeded"
	errAuthFailed      = "Authentication failed"
	errNotSubscribed   = "Not subscribed to channel"
	errClientEventType = "Client events not allowed on private/presence channels"

	errInvalidChannel    = "Invalid channel name"
	errChannelLimit      = "Channel limit exceeded"
	errInvalidMemberData = "Invalid channel_data"
	errInvalidClientEv   = "Invalid client event"
	errInvalidEventName  = "Invalid event name"
	errFrameTooLarge     = "Message too large"
)

// handleFrame routes one inbound text frame. The rate limiter is
// consulted before anything else — parsing cost is the resource being
// protected, so malformed frames and pings spend quota too.
func (s *Server) handleFrame(c *Client, frame []byte) {
	if !s.admission.CanSendMessage(c.id) {
		atomic.AddInt64(&s.stats.RateLimitedFrames, 1)
		monitoring.RateLimitedMessages.Inc()
		s.sendError(c, errRateLimited)
		return
	}

	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		switch err {
		case protocol.ErrFrameTooLarge:
			s.sendError(c, errFrameTooLarge)
		case protocol.ErrInvalidEvent:
			s.sendError(c, errInvalidEventName)
		default:
			s.sendError(c, errInvalidJSON)
		}
		return
	}

	switch env.Event {
	case protocol.EventSubscribe:
		s.handleSubscribe(c, env)
	case protocol.EventUnsubscribe:
		s.handleUnsubscribe(c, env)
	case protocol.EventPing:
		s.sendEnvelope(c, &protocol.Envelope{
			Event: protocol.EventPong,
			Data:  json.RawMessage(`{}`),
		})
	default:
		s.handleClientEvent(c, env)
	}
}

// memberData is the decoded form of a presence subscription's
// channel_data string.
type memberData struct {
	UserID   string          `json:"user_id"`
	UserInfo json.RawMessage `json:"user_info"`
}

func (s *Server) handleSubscribe(c *Client, env *protocol.Envelope) {
	channel := env.Channel

	if !protocol.IsValidChannelName(channel) {
		s.sendError(c, errInvalidChannel)
		return
	}
	if c.subscriptions.Count() >= s.cfg.ChannelLimitPerConnection {
		s.sendError(c, errChannelLimit)
		return
	}

	// Re-subscribing is acknowledged again, with empty data.
	if c.subscriptions.Has(channel) {
		s.sendEnvelope(c, &protocol.Envelope{
			Event:   protocol.EventSubscriptionSucceeded,
			Channel: channel,
			Data:    json.RawMessage(`{}`),
		})
		return
	}

	if protocol.RequiresAuth(channel) {
		if env.Auth == "" || !s.signer.Verify(env.Auth, c.id, channel) {
			s.logger.Warn().
				Str("socket_id", c.id).
				Str("channel", channel).
				Msg("Subscription auth failed")
			s.sendError(c, errAuthFailed)
			return
		}
	}

	s.channels.Subscribe(channel, c.id)
	c.subscriptions.Add(channel)

	if protocol.ClassifyChannel(channel) == protocol.ChannelPresence {
		member, ok := s.parseMemberData(c, env.ChannelData)
		if !ok {
			// Roll the partial subscription back before reporting.
			s.channels.Unsubscribe(channel, c.id)
			c.subscriptions.Remove(channel)
			s.sendError(c, errInvalidMemberData)
			return
		}

		s.presence.AddMember(channel, c.id, member)

		// The subscriber sees itself in the success payload; everyone
		// already present sees exactly one member_added instead.
		s.sendEnvelope(c, &protocol.Envelope{
			Event:   protocol.EventSubscriptionSucceeded,
			Channel: channel,
			Data:    mustMarshal(s.presence.Data(channel)),
		})
		s.fanoutEnvelope(channel, &protocol.Envelope{
			Event:   protocol.EventMemberAdded,
			Channel: channel,
			Data: mustMarshal(protocol.PresenceMemberData{
				UserID:   member.UserID,
				UserInfo: member.UserInfo,
			}),
		}, c.id)
	} else {
		s.sendEnvelope(c, &protocol.Envelope{
			Event:   protocol.EventSubscriptionSucceeded,
			Channel: channel,
			Data:    json.RawMessage(`{}`),
		})
	}

	monitoring.ChannelsActive.Set(float64(s.channels.Count()))
	monitoring.PresenceMembers.Set(float64(s.presence.ChannelCount()))

	s.logger.Debug().
		Str("socket_id", c.id).
		Str("channel", channel).
		Msg("Client subscribed")
}

// parseMemberData decodes the presence channel_data string. A missing
// user_id falls back to the socket id; missing user_info becomes an
// empty object. An empty string is treated as an empty object so a
// bare presence subscribe joins under its socket id.
func (s *Server) parseMemberData(c *Client, channelData string) (registry.Member, bool) {
	var md memberData
	if channelData != "" {
		if err := json.Unmarshal([]byte(channelData), &md); err != nil {
			return registry.Member{}, false
		}
	}
	if md.UserID == "" {
		md.UserID = c.id
	}
	if md.UserInfo == nil {
		md.UserInfo = json.RawMessage(`{}`)
	}
	return registry.Member{UserID: md.UserID, UserInfo: md.UserInfo}, true
}

func (s *Server) handleUnsubscribe(c *Client, env *protocol.Envelope) {
	channel := env.Channel
	if !c.subscriptions.Has(channel) {
		return
	}

	s.channels.Unsubscribe(channel, c.id)
	c.subscriptions.Remove(channel)

	if member, ok := s.presence.RemoveMember(channel, c.id); ok {
		s.broadcastMemberRemoved(channel, member, c.id)
	}

	monitoring.ChannelsActive.Set(float64(s.channels.Count()))
	monitoring.PresenceMembers.Set(float64(s.presence.ChannelCount()))

	s.logger.Debug().
		Str("socket_id", c.id).
		Str("channel", channel).
		Msg("Client unsubscribed")
}

// handleClientEvent fans a user-defined event out to the channel,
// echoing it back to the sender as well — the sender observes its own
// dispatch ordering that way.
func (s *Server) handleClientEvent(c *Client, env *protocol.Envelope) {
	// Reserved names stay server-only; a peer may not forge
	// pusher:/pusher_internal: frames through fan-out.
	if !protocol.IsClientEvent(env.Event) {
		s.sendError(c, errInvalidEventName)
		return
	}
	if env.Channel == "" || env.Data == nil {
		s.sendError(c, errInvalidClientEv)
		return
	}
	if !c.subscriptions.Has(env.Channel) {
		s.sendError(c, errNotSubscribed)
		return
	}
	if protocol.ClassifyChannel(env.Channel) != protocol.ChannelPublic {
		s.sendError(c, errClientEventType)
		return
	}

	atomic.AddInt64(&s.stats.ClientEvents, 1)
	monitoring.ClientEvents.Inc()

	s.fanoutEnvelope(env.Channel, &protocol.Envelope{
		Event:   env.Event,
		Data:    env.Data,
		Channel: env.Channel,
	}, "")
}
