package server

import (
	"encoding/json"
	"sync/atomic"

	"github.com/pusherd/pusherd/internal/monitoring"
	"github.com/pusherd/pusherd/internal/protocol"
	"github.com/pusherd/pusherd/internal/registry"
)

// sendEnvelope serializes env and queues it for one client.
func (s *Server) sendEnvelope(c *Client, env *protocol.Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		s.logger.Error().Err(err).Str("event", env.Event).Msg("Failed to serialize frame")
		return
	}
	s.enqueue(c, payload)
}

// sendError emits an in-band pusher:error frame. Errors never close
// the connection; transport failures do that on their own.
func (s *Server) sendError(c *Client, message string) {
	monitoring.ErrorFrames.WithLabelValues(message).Inc()
	s.sendEnvelope(c, &protocol.Envelope{
		Event: protocol.EventError,
		Data:  mustMarshal(protocol.ErrorData{Message: message}),
	})
}

// enqueue hands payload to the client's write pump without blocking.
// A full buffer drops the frame for this peer only.
func (s *Server) enqueue(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		atomic.AddInt64(&s.stats.DroppedSends, 1)
		monitoring.DroppedSends.Inc()
		s.logger.Warn().
			Str("socket_id", c.id).
			Int("buffer_cap", cap(c.send)).
			Msg("Send buffer full, frame dropped")
	}
}

// fanoutEnvelope serializes env once and delivers it to every current
// subscriber of channel except excludeID (empty string excludes no
// one). The subscriber list is a snapshot; ids whose connection is
// gone by send time are skipped silently.
func (s *Server) fanoutEnvelope(channel string, env *protocol.Envelope, excludeID string) {
	payload, err := json.Marshal(env)
	if err != nil {
		s.logger.Error().Err(err).Str("event", env.Event).Msg("Failed to serialize broadcast")
		return
	}

	for _, id := range s.channels.Subscribers(channel) {
		if id == excludeID {
			continue
		}
		value, ok := s.clients.Load(id)
		if !ok {
			continue
		}
		s.enqueue(value.(*Client), payload)
	}
}

// broadcastMemberRemoved notifies the remaining subscribers of a
// presence channel that member left.
func (s *Server) broadcastMemberRemoved(channel string, member registry.Member, leftID string) {
	s.fanoutEnvelope(channel, &protocol.Envelope{
		Event:   protocol.EventMemberRemoved,
		Channel: channel,
		Data:    mustMarshal(protocol.PresenceMemberData{UserID: member.UserID}),
	}, leftID)
}

// BroadcastServerEvent emits {event, data, channel} to every current
// subscriber of channel. The server is trusted: channel type and rate
// limits do not apply.
func (s *Server) BroadcastServerEvent(channel, event string, data json.RawMessage) {
	s.fanoutEnvelope(channel, &protocol.Envelope{
		Event:   event,
		Data:    data,
		Channel: channel,
	}, "")
}
