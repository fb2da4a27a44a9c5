package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"

	"github.com/pusherd/pusherd/internal/monitoring"
	"github.com/pusherd/pusherd/internal/protocol"
)

// connectionEstablishedData tells the client its socket id, which it
// needs for the /auth exchange.
type connectionEstablishedData struct {
	SocketID        string `json:"socket_id"`
	ActivityTimeout int    `json:"activity_timeout"`
}

// handleWebSocket upgrades the request and runs admission: origin
// allow-list and connect-attempt rate before the handshake, the per-IP
// connection cap after it (the cap rejection is an in-band 1008 close).
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientIP := clientIP(r)

	if atomic.LoadInt32(&s.shuttingDown) == 1 {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	if len(s.origins) > 0 && !originAllowed(r.Header.Get("Origin"), s.origins) {
		s.logger.Warn().
			Str("client_ip", clientIP).
			Str("origin", r.Header.Get("Origin")).
			Msg("Connection rejected: origin not allowed")
		monitoring.ConnectionsRejected.WithLabelValues("origin").Inc()
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	if s.connectRL != nil && !s.connectRL.Allow(clientIP) {
		monitoring.ConnectionsRejected.WithLabelValues("connect_rate").Inc()
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("client_ip", clientIP).
			Msg("WebSocket upgrade failed")
		monitoring.ConnectionsRejected.WithLabelValues("upgrade").Inc()
		return
	}

	if !s.admission.TryAddConnection(clientIP) {
		s.logger.Warn().
			Str("client_ip", clientIP).
			Int("limit", s.cfg.ConnectionLimitPerIP).
			Msg("Connection rejected: per-IP limit")
		monitoring.ConnectionsRejected.WithLabelValues("ip_limit").Inc()
		writeClose(conn, 1008, "Connection limit exceeded")
		conn.Close()
		return
	}

	c := newClient(s.newSocketID(), clientIP, conn)
	s.clients.Store(c.id, c)

	atomic.AddInt64(&s.stats.TotalConnections, 1)
	atomic.AddInt64(&s.stats.CurrentConnections, 1)
	monitoring.ConnectionsTotal.Inc()
	monitoring.ConnectionsActive.Inc()

	s.sendEnvelope(c, &protocol.Envelope{
		Event: protocol.EventConnectionEstablished,
		Data:  mustMarshal(connectionEstablishedData{SocketID: c.id, ActivityTimeout: 120}),
	})

	s.logger.Info().
		Str("socket_id", c.id).
		Str("client_ip", clientIP).
		Int64("current_connections", atomic.LoadInt64(&s.stats.CurrentConnections)).
		Msg("Client connected")

	s.wg.Add(2)
	go s.writePump(c)
	go s.readPump(c)
}

// disconnectClient reverses every registration for c, in the order
// that keeps the registries consistent with the connection table:
// channels and presence first, then the table, then admission. Runs
// once, from the reader goroutine's deferred teardown.
func (s *Server) disconnectClient(c *Client) {
	c.close()

	for _, channel := range c.subscriptions.List() {
		s.channels.Unsubscribe(channel, c.id)
		if member, ok := s.presence.RemoveMember(channel, c.id); ok {
			s.broadcastMemberRemoved(channel, member, c.id)
		}
	}

	s.clients.Delete(c.id)
	s.admission.RemoveConnection(c.ip)
	s.admission.ReleaseConnection(c.id)

	atomic.AddInt64(&s.stats.CurrentConnections, -1)
	monitoring.ConnectionsActive.Dec()
	monitoring.ChannelsActive.Set(float64(s.channels.Count()))
	monitoring.PresenceMembers.Set(float64(s.presence.ChannelCount()))

	s.logger.Info().
		Str("socket_id", c.id).
		Str("client_ip", c.ip).
		Dur("connection_duration", time.Since(c.connectedAt)).
		Int("subscriptions", c.subscriptions.Count()).
		Msg("Client disconnected")
}

// clientIP extracts the client IP: first hop of X-Forwarded-For when
// present, else the transport remote address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == origin {
			return true
		}
	}
	return false
}

// writeClose sends a close frame with the given status code. Best
// effort; the connection is torn down regardless.
func writeClose(conn net.Conn, code ws.StatusCode, reason string) {
	if conn == nil {
		return
	}
	body := ws.NewCloseFrameBody(code, reason)
	ws.WriteFrame(conn, ws.NewCloseFrame(body))
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
